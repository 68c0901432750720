package types

import (
	"fmt"

	"fortio.org/safecast"
)

// StructInfo stores the element types of a literal struct type.
type StructInfo struct {
	Elems []TypeID
}

// RegisterStruct creates or finds a struct type with the given elements.
func (in *Interner) RegisterStruct(elems []TypeID, packed bool) TypeID {
	key := compositeKey(KindStruct, elems, NoTypeID, packed)
	if id, ok := in.composite[key]; ok {
		return id
	}
	slot := in.appendStructInfo(StructInfo{Elems: elems})
	id := in.internRaw(Type{Kind: KindStruct, Packed: packed, Payload: slot})
	in.composite[key] = id
	return id
}

// StructInfo returns the element types for a struct TypeID.
func (in *Interner) StructInfo(id TypeID) (*StructInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindStruct {
		return nil, false
	}
	if int(tt.Payload) >= len(in.structs) {
		return nil, false
	}
	return &in.structs[tt.Payload], true
}

func (in *Interner) appendStructInfo(info StructInfo) uint32 {
	in.structs = append(in.structs, StructInfo{
		Elems: cloneTypeArgs(info.Elems),
	})
	slot, err := safecast.Conv[uint32](len(in.structs) - 1)
	if err != nil {
		panic(fmt.Errorf("struct info overflow: %w", err))
	}
	return slot
}
