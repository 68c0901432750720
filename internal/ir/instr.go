package ir

import (
	"fmt"

	"funcmerge/internal/types"
)

// InstrKind enumerates instruction kinds.
type InstrKind uint8

const (
	// InstrBinary represents an arithmetic or bitwise binary operation.
	InstrBinary InstrKind = iota
	// InstrICmp represents an integer comparison.
	InstrICmp
	// InstrCast represents a conversion between types.
	InstrCast
	// InstrCall represents a call instruction.
	InstrCall
	// InstrLoad represents a memory load.
	InstrLoad
	// InstrStore represents a memory store.
	InstrStore
	// InstrAlloca represents a stack slot allocation.
	InstrAlloca
	// InstrExtractValue reads one member of an aggregate.
	InstrExtractValue
	// InstrInsertValue writes one member of an aggregate.
	InstrInsertValue
	// InstrSelect picks one of two values.
	InstrSelect
	// InstrPhi merges values flowing in from predecessors.
	InstrPhi
)

var instrKindNames = [...]string{
	InstrBinary:       "binary",
	InstrICmp:         "icmp",
	InstrCast:         "cast",
	InstrCall:         "call",
	InstrLoad:         "load",
	InstrStore:        "store",
	InstrAlloca:       "alloca",
	InstrExtractValue: "extractvalue",
	InstrInsertValue:  "insertvalue",
	InstrSelect:       "select",
	InstrPhi:          "phi",
}

func (k InstrKind) String() string {
	if int(k) < len(instrKindNames) {
		return instrKindNames[k]
	}
	return fmt.Sprintf("InstrKind(%d)", k)
}

// Instr is a single non-terminator instruction. Type is the result type;
// types.NoTypeID marks instructions without a result.
type Instr struct {
	ID   InstrID
	Kind InstrKind
	Type types.TypeID

	Binary       BinaryInstr
	ICmp         ICmpInstr
	Cast         CastInstr
	Call         CallInstr
	Load         LoadInstr
	Store        StoreInstr
	Alloca       AllocaInstr
	ExtractValue ExtractValueInstr
	InsertValue  InsertValueInstr
	Select       SelectInstr
	Phi          PhiInstr
}

// BinOp enumerates binary operators.
type BinOp uint8

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinUDiv
	BinSDiv
	BinURem
	BinSRem
	BinAnd
	BinOr
	BinXor
	BinShl
	BinLShr
	BinAShr
	BinFAdd
	BinFSub
	BinFMul
	BinFDiv
)

var binOpNames = [...]string{
	BinAdd:  "add",
	BinSub:  "sub",
	BinMul:  "mul",
	BinUDiv: "udiv",
	BinSDiv: "sdiv",
	BinURem: "urem",
	BinSRem: "srem",
	BinAnd:  "and",
	BinOr:   "or",
	BinXor:  "xor",
	BinShl:  "shl",
	BinLShr: "lshr",
	BinAShr: "ashr",
	BinFAdd: "fadd",
	BinFSub: "fsub",
	BinFMul: "fmul",
	BinFDiv: "fdiv",
}

func (op BinOp) String() string {
	if int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return fmt.Sprintf("BinOp(%d)", op)
}

// ParseBinOp maps a mnemonic to its operator.
func ParseBinOp(s string) (BinOp, bool) {
	for i, n := range binOpNames {
		if n == s {
			return BinOp(i), true //nolint:gosec // G115: bounded by table size
		}
	}
	return 0, false
}

// BinaryInstr computes L op R.
type BinaryInstr struct {
	Op BinOp
	L  Value
	R  Value
}

// ICmpPred enumerates integer comparison predicates.
type ICmpPred uint8

const (
	ICmpEQ ICmpPred = iota
	ICmpNE
	ICmpUGT
	ICmpUGE
	ICmpULT
	ICmpULE
	ICmpSGT
	ICmpSGE
	ICmpSLT
	ICmpSLE
)

var icmpNames = [...]string{
	ICmpEQ:  "eq",
	ICmpNE:  "ne",
	ICmpUGT: "ugt",
	ICmpUGE: "uge",
	ICmpULT: "ult",
	ICmpULE: "ule",
	ICmpSGT: "sgt",
	ICmpSGE: "sge",
	ICmpSLT: "slt",
	ICmpSLE: "sle",
}

func (p ICmpPred) String() string {
	if int(p) < len(icmpNames) {
		return icmpNames[p]
	}
	return fmt.Sprintf("ICmpPred(%d)", p)
}

// ParseICmpPred maps a predicate keyword to its value.
func ParseICmpPred(s string) (ICmpPred, bool) {
	for i, n := range icmpNames {
		if n == s {
			return ICmpPred(i), true //nolint:gosec // G115: bounded by table size
		}
	}
	return 0, false
}

// ICmpInstr compares two integers or pointers and yields an i1.
type ICmpInstr struct {
	Pred ICmpPred
	L    Value
	R    Value
}

// CastOp enumerates conversion operators.
type CastOp uint8

const (
	CastBitcast CastOp = iota
	CastIntToPtr
	CastPtrToInt
	CastTrunc
	CastZExt
	CastSExt
)

var castNames = [...]string{
	CastBitcast:  "bitcast",
	CastIntToPtr: "inttoptr",
	CastPtrToInt: "ptrtoint",
	CastTrunc:    "trunc",
	CastZExt:     "zext",
	CastSExt:     "sext",
}

func (op CastOp) String() string {
	if int(op) < len(castNames) {
		return castNames[op]
	}
	return fmt.Sprintf("CastOp(%d)", op)
}

// ParseCastOp maps a cast mnemonic to its operator.
func ParseCastOp(s string) (CastOp, bool) {
	for i, n := range castNames {
		if n == s {
			return CastOp(i), true //nolint:gosec // G115: bounded by table size
		}
	}
	return 0, false
}

// CastInstr converts Value to the instruction's result type.
type CastInstr struct {
	Op    CastOp
	Value Value
}

// CallInstr calls Callee with Args. Callee is usually a function address but
// may be any pointer-to-function value.
type CallInstr struct {
	Callee   Value
	Args     []Value
	Tail     bool
	CallConv CallConv
	Attrs    AttrList
}

// LoadInstr reads from Ptr.
type LoadInstr struct {
	Ptr      Value
	Align    uint32
	Volatile bool
}

// StoreInstr writes Value to Ptr.
type StoreInstr struct {
	Value    Value
	Ptr      Value
	Align    uint32
	Volatile bool
}

// AllocaInstr reserves a stack slot of Elem.
type AllocaInstr struct {
	Elem  types.TypeID
	Align uint32
}

// ExtractValueInstr reads member Index of Agg.
type ExtractValueInstr struct {
	Agg   Value
	Index int
}

// InsertValueInstr produces Agg with member Index replaced by Elem.
type InsertValueInstr struct {
	Agg   Value
	Elem  Value
	Index int
}

// SelectInstr yields Then if Cond is true and Else otherwise.
type SelectInstr struct {
	Cond Value
	Then Value
	Else Value
}

// PhiIncoming pairs a value with the predecessor it flows from.
type PhiIncoming struct {
	Value Value
	Block BlockID
}

// PhiInstr merges values from predecessors.
type PhiInstr struct {
	Incoming []PhiIncoming
}

// HasResult reports whether the instruction defines a value.
func (in *Instr) HasResult() bool {
	return in.Type != types.NoTypeID
}

// Result returns the value defined by the instruction.
func (in *Instr) Result() Value {
	return Value{Kind: ValueInstr, Type: in.Type, Instr: in.ID}
}

// Operands returns pointers to every value operand. For calls the callee is
// slot 0 and arguments follow.
func (in *Instr) Operands() []*Value {
	switch in.Kind {
	case InstrBinary:
		return []*Value{&in.Binary.L, &in.Binary.R}
	case InstrICmp:
		return []*Value{&in.ICmp.L, &in.ICmp.R}
	case InstrCast:
		return []*Value{&in.Cast.Value}
	case InstrCall:
		out := make([]*Value, 0, 1+len(in.Call.Args))
		out = append(out, &in.Call.Callee)
		for i := range in.Call.Args {
			out = append(out, &in.Call.Args[i])
		}
		return out
	case InstrLoad:
		return []*Value{&in.Load.Ptr}
	case InstrStore:
		return []*Value{&in.Store.Value, &in.Store.Ptr}
	case InstrExtractValue:
		return []*Value{&in.ExtractValue.Agg}
	case InstrInsertValue:
		return []*Value{&in.InsertValue.Agg, &in.InsertValue.Elem}
	case InstrSelect:
		return []*Value{&in.Select.Cond, &in.Select.Then, &in.Select.Else}
	case InstrPhi:
		out := make([]*Value, len(in.Phi.Incoming))
		for i := range in.Phi.Incoming {
			out[i] = &in.Phi.Incoming[i].Value
		}
		return out
	default:
		return nil
	}
}

// IsCallTo reports whether the instruction is a call whose callee is exactly g.
func (in *Instr) IsCallTo(g Global) bool {
	return in.Kind == InstrCall && in.Call.Callee.Refers(g)
}
