package types

import (
	"fmt"

	"fortio.org/safecast"
)

// Layout carries the target data layout facts the IR depends on.
type Layout struct {
	PointerBits Width
}

// DefaultLayout is a 64-bit target.
var DefaultLayout = Layout{PointerBits: Width64}

// Builtins stores TypeIDs for common primitive types.
type Builtins struct {
	Void   TypeID
	Label  TypeID
	I1     TypeID
	I8     TypeID
	I16    TypeID
	I32    TypeID
	I64    TypeID
	Half   TypeID
	Float  TypeID
	Double TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
type Interner struct {
	types     []Type
	index     map[Type]TypeID
	composite map[string]TypeID
	builtins  Builtins
	structs   []StructInfo
	fns       []FnInfo
	layout    Layout
}

// NewInterner constructs an interner for the default 64-bit layout.
func NewInterner() *Interner {
	return NewInternerWithLayout(DefaultLayout)
}

// NewInternerWithLayout constructs an interner seeded with built-in primitives.
func NewInternerWithLayout(layout Layout) *Interner {
	if layout.PointerBits == 0 {
		layout = DefaultLayout
	}
	in := &Interner{
		index:     make(map[Type]TypeID, 64),
		composite: make(map[string]TypeID, 32),
		layout:    layout,
	}
	in.structs = append(in.structs, StructInfo{}) // reserve 0 as invalid sentinel
	in.fns = append(in.fns, FnInfo{})
	in.internRaw(Type{Kind: KindInvalid}) // TypeID 0
	in.builtins.Void = in.Intern(Type{Kind: KindVoid})
	in.builtins.Label = in.Intern(Type{Kind: KindLabel})
	in.builtins.I1 = in.Intern(MakeInt(Width1))
	in.builtins.I8 = in.Intern(MakeInt(Width8))
	in.builtins.I16 = in.Intern(MakeInt(Width16))
	in.builtins.I32 = in.Intern(MakeInt(Width32))
	in.builtins.I64 = in.Intern(MakeInt(Width64))
	in.builtins.Half = in.Intern(MakeFloat(Width16))
	in.builtins.Float = in.Intern(MakeFloat(Width32))
	in.builtins.Double = in.Intern(MakeFloat(Width64))
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Layout returns the data layout the interner was created with.
func (in *Interner) Layout() Layout {
	return in.layout
}

// Len returns the number of registered types, including the invalid sentinel.
func (in *Interner) Len() int {
	return len(in.types)
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	if id, ok := in.index[t]; ok {
		return id
	}
	return in.internRaw(t)
}

// internRaw adds the descriptor to the storage without consulting the map.
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[t] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// Kind returns the kind of id, or KindInvalid.
func (in *Interner) Kind(id TypeID) Kind {
	tt, ok := in.Lookup(id)
	if !ok {
		return KindInvalid
	}
	return tt.Kind
}

// Int returns the integer type of the given width.
func (in *Interner) Int(width Width) TypeID {
	return in.Intern(MakeInt(width))
}

// IntPtr returns the pointer-sized integer type of the layout.
func (in *Interner) IntPtr() TypeID {
	return in.Int(in.layout.PointerBits)
}

// Pointer returns elem* in address space 0.
func (in *Interner) Pointer(elem TypeID) TypeID {
	return in.Intern(MakePointer(elem, 0))
}

// PointerIn returns elem* in the given address space.
func (in *Interner) PointerIn(elem TypeID, addrSpace uint32) TypeID {
	return in.Intern(MakePointer(elem, addrSpace))
}

// Array returns [count x elem].
func (in *Interner) Array(elem TypeID, count uint32) TypeID {
	return in.Intern(MakeArray(elem, count))
}

// IsVoid reports whether id is the void type (or no type at all).
func (in *Interner) IsVoid(id TypeID) bool {
	return id == NoTypeID || id == in.builtins.Void
}

// ElemAt returns the type of the idx-th element of a struct or array type.
func (in *Interner) ElemAt(agg TypeID, idx int) (TypeID, bool) {
	tt, ok := in.Lookup(agg)
	if !ok || idx < 0 {
		return NoTypeID, false
	}
	switch tt.Kind {
	case KindStruct:
		info, ok := in.StructInfo(agg)
		if !ok || idx >= len(info.Elems) {
			return NoTypeID, false
		}
		return info.Elems[idx], true
	case KindArray:
		if uint64(idx) >= uint64(tt.Count) {
			return NoTypeID, false
		}
		return tt.Elem, true
	default:
		return NoTypeID, false
	}
}

// NumElems returns the element count of an aggregate type.
func (in *Interner) NumElems(agg TypeID) int {
	tt, ok := in.Lookup(agg)
	if !ok {
		return 0
	}
	switch tt.Kind {
	case KindStruct:
		if info, ok := in.StructInfo(agg); ok {
			return len(info.Elems)
		}
	case KindArray:
		return int(tt.Count)
	}
	return 0
}

func cloneTypeArgs(args []TypeID) []TypeID {
	if len(args) == 0 {
		return nil
	}
	out := make([]TypeID, len(args))
	copy(out, args)
	return out
}
