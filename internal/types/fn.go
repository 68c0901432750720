package types //nolint:revive

import (
	"fmt"

	"fortio.org/safecast"
)

// FnInfo stores metadata for function types.
type FnInfo struct {
	Params   []TypeID // Parameter types (in order)
	Result   TypeID   // Return type
	Variadic bool
}

// RegisterFn creates or finds a function type.
func (in *Interner) RegisterFn(params []TypeID, result TypeID, variadic bool) TypeID {
	key := compositeKey(KindFn, params, result, variadic)
	if id, ok := in.composite[key]; ok {
		return id
	}
	slot := in.appendFnInfo(FnInfo{
		Params:   params,
		Result:   result,
		Variadic: variadic,
	})
	id := in.internRaw(Type{Kind: KindFn, Payload: slot})
	in.composite[key] = id
	return id
}

// FnInfo retrieves function type metadata by TypeID.
func (in *Interner) FnInfo(id TypeID) (*FnInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindFn {
		return nil, false
	}
	if int(tt.Payload) >= len(in.fns) {
		return nil, false
	}
	return &in.fns[tt.Payload], true
}

// PointeeFn returns the function type a pointer-to-function type points to.
func (in *Interner) PointeeFn(ptr TypeID) (TypeID, *FnInfo, bool) {
	tt, ok := in.Lookup(ptr)
	if !ok || tt.Kind != KindPointer {
		return NoTypeID, nil, false
	}
	info, ok := in.FnInfo(tt.Elem)
	if !ok {
		return NoTypeID, nil, false
	}
	return tt.Elem, info, true
}

func (in *Interner) appendFnInfo(info FnInfo) uint32 {
	in.fns = append(in.fns, FnInfo{
		Params:   cloneTypeArgs(info.Params),
		Result:   info.Result,
		Variadic: info.Variadic,
	})
	slot, err := safecast.Conv[uint32](len(in.fns) - 1)
	if err != nil {
		panic(fmt.Errorf("fn info overflow: %w", err))
	}
	return slot
}

func compositeKey(kind Kind, elems []TypeID, extra TypeID, flag bool) string {
	buf := make([]byte, 0, 8+4*len(elems))
	buf = append(buf, byte(kind))
	if flag {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendID(buf, extra)
	for _, e := range elems {
		buf = appendID(buf, e)
	}
	return string(buf)
}

func appendID(buf []byte, id TypeID) []byte {
	return append(buf, byte(id), byte(id>>8), byte(id>>16), byte(id>>24))
}
