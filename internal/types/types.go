package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type. Instructions without a result use it.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of IR types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindVoid
	KindLabel
	KindInt
	KindFloat
	KindPointer
	KindStruct
	KindArray
	KindFn
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindVoid:
		return "void"
	case KindLabel:
		return "label"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindPointer:
		return "pointer"
	case KindStruct:
		return "struct"
	case KindArray:
		return "array"
	case KindFn:
		return "fn"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers/floats in bits.
type Width uint8

const (
	Width1  Width = 1
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// Type is a compact descriptor for any supported type.
type Type struct {
	Kind      Kind
	Elem      TypeID // pointee for pointers, element for arrays
	Count     uint32 // for arrays
	Width     Width  // for numeric primitives
	AddrSpace uint32 // for pointers
	Packed    bool   // for structs
	Payload   uint32 // slot in the struct/fn side tables
}

// Descriptor helpers ---------------------------------------------------------

// MakeInt describes an integer of the given bit width.
func MakeInt(width Width) Type {
	return Type{Kind: KindInt, Width: width}
}

// MakeFloat describes a floating-point type (16, 32 or 64 bits).
func MakeFloat(width Width) Type {
	return Type{Kind: KindFloat, Width: width}
}

// MakeArray describes a fixed-length array of element type.
func MakeArray(elem TypeID, count uint32) Type {
	return Type{Kind: KindArray, Elem: elem, Count: count}
}

// MakePointer describes a pointer to elem in the given address space.
func MakePointer(elem TypeID, addrSpace uint32) Type {
	return Type{Kind: KindPointer, Elem: elem, AddrSpace: addrSpace}
}

// IsFirstClass reports whether values of the kind can be produced by instructions.
func (k Kind) IsFirstClass() bool {
	return k != KindInvalid && k != KindVoid && k != KindFn
}

// IsAggregate reports whether the kind is a struct or an array.
func (k Kind) IsAggregate() bool {
	return k == KindStruct || k == KindArray
}
