package ir

import (
	"fmt"

	"funcmerge/internal/types"
)

// Builder appends instructions to a function's blocks.
type Builder struct {
	F   *Func
	cur BlockID
}

// NewBuilder returns a builder positioned at f's entry block, if any.
func NewBuilder(f *Func) *Builder {
	return &Builder{F: f, cur: f.Entry}
}

// NewBlock appends a block without moving the insertion point, unless the
// function had no blocks yet.
func (b *Builder) NewBlock() BlockID {
	id := b.F.NewBlock()
	if b.cur == NoBlockID {
		b.cur = id
	}
	return id
}

// SetBlock moves the insertion point to the end of block id.
func (b *Builder) SetBlock(id BlockID) {
	b.cur = id
}

// Current returns the block instructions are appended to.
func (b *Builder) Current() BlockID {
	return b.cur
}

func (b *Builder) typesIn() *types.Interner {
	return b.F.module.Types
}

func (b *Builder) block() *Block {
	blk := b.F.Block(b.cur)
	if blk == nil {
		panic(fmt.Errorf("builder for @%s has no insertion block", b.F.Name))
	}
	if blk.Terminated() {
		panic(fmt.Errorf("builder for @%s: bb%d already terminated", b.F.Name, blk.ID))
	}
	return blk
}

func (b *Builder) emit(in Instr) Value {
	blk := b.block()
	in.ID = b.F.NewInstrID()
	blk.Instrs = append(blk.Instrs, in)
	if in.Type == types.NoTypeID {
		return Value{}
	}
	return in.Result()
}

// Binary emits l op r.
func (b *Builder) Binary(op BinOp, l, r Value) Value {
	return b.emit(Instr{Kind: InstrBinary, Type: l.Type, Binary: BinaryInstr{Op: op, L: l, R: r}})
}

// ICmp emits an integer comparison.
func (b *Builder) ICmp(pred ICmpPred, l, r Value) Value {
	return b.emit(Instr{Kind: InstrICmp, Type: b.typesIn().Builtins().I1, ICmp: ICmpInstr{Pred: pred, L: l, R: r}})
}

// Cast emits a conversion. A bitcast to the value's own type is elided.
func (b *Builder) Cast(op CastOp, v Value, to types.TypeID) Value {
	if op == CastBitcast && v.Type == to {
		return v
	}
	return b.emit(Instr{Kind: InstrCast, Type: to, Cast: CastInstr{Op: op, Value: v}})
}

// CallOpts carries optional call-site properties.
type CallOpts struct {
	Tail     bool
	CallConv CallConv
	Attrs    AttrList
}

// Call emits a call through callee, whose type must be a pointer to a
// function type.
func (b *Builder) Call(callee Value, args []Value, opts CallOpts) Value {
	result := types.NoTypeID
	if _, info, ok := b.typesIn().PointeeFn(callee.Type); ok && !b.typesIn().IsVoid(info.Result) {
		result = info.Result
	}
	return b.emit(Instr{Kind: InstrCall, Type: result, Call: CallInstr{
		Callee:   callee,
		Args:     append([]Value(nil), args...),
		Tail:     opts.Tail,
		CallConv: opts.CallConv,
		Attrs:    opts.Attrs.Clone(),
	}})
}

// Load emits a load of the pointee of ptr.
func (b *Builder) Load(ptr Value, align uint32) Value {
	tt := b.typesIn().MustLookup(ptr.Type)
	return b.emit(Instr{Kind: InstrLoad, Type: tt.Elem, Load: LoadInstr{Ptr: ptr, Align: align}})
}

// Store emits a store of v through ptr.
func (b *Builder) Store(v, ptr Value, align uint32) {
	b.emit(Instr{Kind: InstrStore, Store: StoreInstr{Value: v, Ptr: ptr, Align: align}})
}

// Alloca emits a stack slot for elem.
func (b *Builder) Alloca(elem types.TypeID, align uint32) Value {
	return b.emit(Instr{Kind: InstrAlloca, Type: b.typesIn().Pointer(elem), Alloca: AllocaInstr{Elem: elem, Align: align}})
}

// ExtractValue emits a read of member idx.
func (b *Builder) ExtractValue(agg Value, idx int) Value {
	elem, ok := b.typesIn().ElemAt(agg.Type, idx)
	if !ok {
		panic(fmt.Errorf("extractvalue: index %d out of range for %s", idx, types.Label(b.typesIn(), agg.Type)))
	}
	return b.emit(Instr{Kind: InstrExtractValue, Type: elem, ExtractValue: ExtractValueInstr{Agg: agg, Index: idx}})
}

// InsertValue emits agg with member idx replaced by elem.
func (b *Builder) InsertValue(agg, elem Value, idx int) Value {
	return b.emit(Instr{Kind: InstrInsertValue, Type: agg.Type, InsertValue: InsertValueInstr{Agg: agg, Elem: elem, Index: idx}})
}

// Select emits cond ? then : els.
func (b *Builder) Select(cond, then, els Value) Value {
	return b.emit(Instr{Kind: InstrSelect, Type: then.Type, Select: SelectInstr{Cond: cond, Then: then, Else: els}})
}

// Phi emits a phi node of type ty.
func (b *Builder) Phi(ty types.TypeID, incoming ...PhiIncoming) Value {
	return b.emit(Instr{Kind: InstrPhi, Type: ty, Phi: PhiInstr{Incoming: append([]PhiIncoming(nil), incoming...)}})
}

func (b *Builder) terminate(t Terminator) {
	blk := b.block()
	blk.Term = t
}

// Ret terminates the block returning v.
func (b *Builder) Ret(v Value) {
	b.terminate(Terminator{Kind: TermRet, Ret: RetTerm{HasValue: true, Value: v}})
}

// RetVoid terminates the block without a value.
func (b *Builder) RetVoid() {
	b.terminate(Terminator{Kind: TermRet})
}

// Br terminates the block with an unconditional branch.
func (b *Builder) Br(target BlockID) {
	b.terminate(Terminator{Kind: TermBr, Br: BrTerm{Target: target}})
}

// CondBr terminates the block with a two-way branch.
func (b *Builder) CondBr(cond Value, then, els BlockID) {
	b.terminate(Terminator{Kind: TermCondBr, CondBr: CondBrTerm{Cond: cond, Then: then, Else: els}})
}

// Switch terminates the block with a multi-way branch.
func (b *Builder) Switch(v Value, def BlockID, cases ...SwitchCase) {
	b.terminate(Terminator{Kind: TermSwitch, Switch: SwitchTerm{Value: v, Default: def, Cases: append([]SwitchCase(nil), cases...)}})
}

// Unreachable terminates the block with unreachable.
func (b *Builder) Unreachable() {
	b.terminate(Terminator{Kind: TermUnreachable})
}
