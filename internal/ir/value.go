package ir

import "funcmerge/internal/types"

// ValueKind distinguishes operand kinds.
type ValueKind uint8

const (
	// ValueNone is the zero value; it never appears in valid IR.
	ValueNone ValueKind = iota
	// ValueArg refers to a function parameter.
	ValueArg
	// ValueInstr refers to the result of an instruction.
	ValueInstr
	// ValueConst refers to an entry in the module constant pool.
	ValueConst
	// ValueGlobal refers to the address of a global.
	ValueGlobal
)

// Value is an instruction operand.
type Value struct {
	Kind ValueKind
	Type types.TypeID

	Arg    int
	Instr  InstrID
	Const  ConstID
	Global Global
}

// ArgValue refers to parameter i of type ty.
func ArgValue(i int, ty types.TypeID) Value {
	return Value{Kind: ValueArg, Type: ty, Arg: i}
}

// GlobalRef refers to the address of g.
func GlobalRef(g Global) Value {
	return Value{Kind: ValueGlobal, Type: g.Base().Type, Global: g}
}

// IsValid reports whether v refers to anything.
func (v Value) IsValid() bool {
	return v.Kind != ValueNone
}

// IsConstant reports whether v is a constant; global addresses are constants.
func (v Value) IsConstant() bool {
	return v.Kind == ValueConst || v.Kind == ValueGlobal
}

// Refers reports whether v is exactly the address of g.
func (v Value) Refers(g Global) bool {
	return v.Kind == ValueGlobal && v.Global == g
}
