package ir

import (
	"fmt"
	"math"

	"fortio.org/safecast"

	"funcmerge/internal/types"
)

// ConstKind distinguishes constant kinds.
type ConstKind uint8

const (
	// ConstInt represents an integer constant.
	ConstInt ConstKind = iota
	// ConstFloat represents a floating-point constant.
	ConstFloat
	// ConstNull represents a null pointer.
	ConstNull
	// ConstUndef represents an undefined value.
	ConstUndef
	// ConstZero represents zeroinitializer.
	ConstZero
	// ConstStruct represents a struct aggregate.
	ConstStruct
	// ConstArray represents an array aggregate.
	ConstArray
	// ConstCast represents a cast constant expression.
	ConstCast
)

// Const is an entry of the module constant pool.
type Const struct {
	Kind ConstKind
	Type types.TypeID

	// Int holds the two's complement bits, truncated to the type width.
	Int   uint64
	Float float64

	Elems []Value

	Cast    CastOp
	Operand Value
}

// Operands returns pointers to the constant's value operands.
func (c *Const) Operands() []*Value {
	switch c.Kind {
	case ConstStruct, ConstArray:
		out := make([]*Value, len(c.Elems))
		for i := range c.Elems {
			out[i] = &c.Elems[i]
		}
		return out
	case ConstCast:
		return []*Value{&c.Operand}
	default:
		return nil
	}
}

// SignedInt returns the integer constant sign-extended from its width.
func (c *Const) SignedInt(typesIn *types.Interner) int64 {
	tt, ok := typesIn.Lookup(c.Type)
	if !ok || tt.Kind != types.KindInt || tt.Width >= 64 {
		return int64(c.Int) //nolint:gosec // G115: reinterpretation of two's complement bits
	}
	shift := 64 - uint(tt.Width)
	return int64(c.Int<<shift) >> shift //nolint:gosec // G115: reinterpretation of two's complement bits
}

type scalarKey struct {
	kind ConstKind
	ty   types.TypeID
	bits uint64
}

// Const returns the pool entry for id.
func (m *Module) Const(id ConstID) *Const {
	if id < 0 || int(id) >= len(m.consts) {
		return nil
	}
	return &m.consts[id]
}

// NumConsts returns the size of the constant pool.
func (m *Module) NumConsts() int {
	return len(m.consts)
}

func (m *Module) addConst(c Const) Value {
	n, err := safecast.Conv[int32](len(m.consts))
	if err != nil {
		panic(fmt.Errorf("constant pool overflow: %w", err))
	}
	m.consts = append(m.consts, c)
	return Value{Kind: ValueConst, Type: c.Type, Const: ConstID(n)}
}

func (m *Module) scalar(kind ConstKind, ty types.TypeID, bits uint64, c Const) Value {
	key := scalarKey{kind: kind, ty: ty, bits: bits}
	if id, ok := m.scalars[key]; ok {
		return Value{Kind: ValueConst, Type: ty, Const: id}
	}
	v := m.addConst(c)
	m.scalars[key] = v.Const
	return v
}

// ConstInt returns an integer constant of type ty.
func (m *Module) ConstInt(ty types.TypeID, v int64) Value {
	bits := uint64(v) //nolint:gosec // G115: two's complement bits
	if tt, ok := m.Types.Lookup(ty); ok && tt.Kind == types.KindInt && tt.Width < 64 {
		bits &= (uint64(1) << tt.Width) - 1
	}
	return m.scalar(ConstInt, ty, bits, Const{Kind: ConstInt, Type: ty, Int: bits})
}

// ConstFloat returns a floating-point constant of type ty.
func (m *Module) ConstFloat(ty types.TypeID, v float64) Value {
	return m.scalar(ConstFloat, ty, math.Float64bits(v), Const{Kind: ConstFloat, Type: ty, Float: v})
}

// Null returns the null pointer of type ty.
func (m *Module) Null(ty types.TypeID) Value {
	return m.scalar(ConstNull, ty, 0, Const{Kind: ConstNull, Type: ty})
}

// Undef returns an undefined value of type ty.
func (m *Module) Undef(ty types.TypeID) Value {
	return m.scalar(ConstUndef, ty, 0, Const{Kind: ConstUndef, Type: ty})
}

// Zero returns zeroinitializer of type ty.
func (m *Module) Zero(ty types.TypeID) Value {
	return m.scalar(ConstZero, ty, 0, Const{Kind: ConstZero, Type: ty})
}

// ConstAggregate returns a struct or array constant. Aggregates are not
// uniqued since their operands may be rewritten.
func (m *Module) ConstAggregate(ty types.TypeID, elems []Value) Value {
	kind := ConstStruct
	if m.Types.Kind(ty) == types.KindArray {
		kind = ConstArray
	}
	return m.addConst(Const{Kind: kind, Type: ty, Elems: append([]Value(nil), elems...)})
}

// ConstCast returns a cast expression over a constant value. A bitcast to the
// value's own type folds to the value itself.
func (m *Module) ConstCast(op CastOp, v Value, to types.TypeID) Value {
	if op == CastBitcast && v.Type == to {
		return v
	}
	return m.addConst(Const{Kind: ConstCast, Type: to, Cast: op, Operand: v})
}

// BitcastOrSelf returns g's address as type to.
func (m *Module) BitcastOrSelf(g Global, to types.TypeID) Value {
	return m.ConstCast(CastBitcast, GlobalRef(g), to)
}
