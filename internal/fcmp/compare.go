package fcmp

import (
	"math"

	"golang.org/x/tools/container/intsets"

	"funcmerge/internal/ir"
	"funcmerge/internal/types"
)

// Comparator imposes a total order on function definitions. Equal means one
// function can stand in for the other behind a single cast of each argument
// and of the result.
type Comparator interface {
	Compare(l, r *ir.Func, gn *GlobalNumbers) Ordering
}

// Structural compares functions by a lockstep walk over their control flow
// graphs. Pointers in the default address space compare like the
// pointer-sized integer.
type Structural struct{}

// Compare implements Comparator.
func (Structural) Compare(l, r *ir.Func, gn *GlobalNumbers) Ordering {
	if l == r {
		return Equal
	}
	c := newFuncCmp(l, r, gn)
	return c.compare()
}

type localKey struct {
	kind ir.ValueKind
	id   int32
}

// funcCmp holds the state of one comparison. Local values and blocks get
// serial numbers on each side as they are first met, so two functions are
// equal when their walks assign numbers identically.
type funcCmp struct {
	l, r   *ir.Func
	ml, mr *ir.Module
	in     *types.Interner
	gn     *GlobalNumbers

	valuesL, valuesR map[localKey]int
	blocksL, blocksR map[ir.BlockID]int
}

func newFuncCmp(l, r *ir.Func, gn *GlobalNumbers) *funcCmp {
	c := &funcCmp{
		l:       l,
		r:       r,
		ml:      l.Module(),
		mr:      r.Module(),
		gn:      gn,
		valuesL: make(map[localKey]int),
		valuesR: make(map[localKey]int),
		blocksL: make(map[ir.BlockID]int),
		blocksR: make(map[ir.BlockID]int),
	}
	if c.ml != nil {
		c.in = c.ml.Types
	} else if c.mr != nil {
		c.in = c.mr.Types
	}
	return c
}

func (c *funcCmp) compare() Ordering {
	l, r := c.l, c.r
	if o := cmpAttrs(l.Attrs, r.Attrs); o != Equal {
		return o
	}
	if o := cmpBool(l.IsVarArg(), r.IsVarArg()); o != Equal {
		return o
	}
	if o := cmpNum(l.CallConv, r.CallConv); o != Equal {
		return o
	}
	if o := c.cmpTypes(l.Sig, r.Sig); o != Equal {
		return o
	}
	if o := cmpNum(l.NumParams(), r.NumParams()); o != Equal {
		return o
	}
	for i := 0; i < l.NumParams(); i++ {
		if o := c.cmpValues(l.Param(i), r.Param(i)); o != Equal {
			return o
		}
	}

	entryL, entryR := l.EntryBlock(), r.EntryBlock()
	switch {
	case entryL == nil && entryR == nil:
		return Equal
	case entryL == nil:
		return Less
	case entryR == nil:
		return Greater
	}

	type pair struct{ l, r *ir.Block }
	var visited intsets.Sparse
	visited.Insert(int(entryL.ID))
	stack := []pair{{entryL, entryR}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if o := c.cmpBlockRefs(p.l.ID, p.r.ID); o != Equal {
			return o
		}
		if o := c.cmpBlocks(p.l, p.r); o != Equal {
			return o
		}

		succL, succR := p.l.Term.Successors(), p.r.Term.Successors()
		for i, s := range succL {
			if !visited.Insert(int(s)) {
				continue
			}
			bl, br := l.Block(s), r.Block(succR[i])
			if bl == nil || br == nil {
				if o := cmpBool(bl != nil, br != nil); o != Equal {
					return o
				}
				continue
			}
			stack = append(stack, pair{bl, br})
		}
	}
	return Equal
}

// cmpBlocks compares instructions pairwise, terminator included. A block
// that runs out of instructions first orders before the other.
func (c *funcCmp) cmpBlocks(l, r *ir.Block) Ordering {
	n := min(len(l.Instrs), len(r.Instrs))
	for i := 0; i < n; i++ {
		if o := c.cmpInstrs(&l.Instrs[i], &r.Instrs[i]); o != Equal {
			return o
		}
	}
	switch {
	case len(l.Instrs) > n:
		// Instruction against terminator.
		return Less
	case len(r.Instrs) > n:
		return Greater
	}
	return c.cmpTerms(&l.Term, &r.Term)
}

func (c *funcCmp) cmpInstrs(l, r *ir.Instr) Ordering {
	if o := cmpNum(l.Kind, r.Kind); o != Equal {
		return o
	}
	opsL, opsR := l.Operands(), r.Operands()
	if o := cmpNum(len(opsL), len(opsR)); o != Equal {
		return o
	}
	if o := c.cmpResultTypes(l.Type, r.Type); o != Equal {
		return o
	}
	if o := c.cmpOperation(l, r); o != Equal {
		return o
	}
	if l.HasResult() {
		if o := c.cmpValues(l.Result(), r.Result()); o != Equal {
			return o
		}
	}
	return c.cmpOperands(opsL, opsR)
}

// cmpOperation compares the fields specific to each instruction kind.
func (c *funcCmp) cmpOperation(l, r *ir.Instr) Ordering {
	switch l.Kind {
	case ir.InstrBinary:
		return cmpNum(l.Binary.Op, r.Binary.Op)
	case ir.InstrICmp:
		return cmpNum(l.ICmp.Pred, r.ICmp.Pred)
	case ir.InstrCast:
		return cmpNum(l.Cast.Op, r.Cast.Op)
	case ir.InstrCall:
		if o := cmpNum(l.Call.CallConv, r.Call.CallConv); o != Equal {
			return o
		}
		if o := cmpBool(l.Call.Tail, r.Call.Tail); o != Equal {
			return o
		}
		return cmpAttrs(l.Call.Attrs, r.Call.Attrs)
	case ir.InstrLoad:
		if o := cmpBool(l.Load.Volatile, r.Load.Volatile); o != Equal {
			return o
		}
		return cmpNum(l.Load.Align, r.Load.Align)
	case ir.InstrStore:
		if o := cmpBool(l.Store.Volatile, r.Store.Volatile); o != Equal {
			return o
		}
		return cmpNum(l.Store.Align, r.Store.Align)
	case ir.InstrAlloca:
		if o := c.cmpTypes(l.Alloca.Elem, r.Alloca.Elem); o != Equal {
			return o
		}
		return cmpNum(l.Alloca.Align, r.Alloca.Align)
	case ir.InstrExtractValue:
		return cmpNum(l.ExtractValue.Index, r.ExtractValue.Index)
	case ir.InstrInsertValue:
		return cmpNum(l.InsertValue.Index, r.InsertValue.Index)
	case ir.InstrPhi:
		for i := range l.Phi.Incoming {
			if o := c.cmpBlockRefs(l.Phi.Incoming[i].Block, r.Phi.Incoming[i].Block); o != Equal {
				return o
			}
		}
	}
	return Equal
}

func (c *funcCmp) cmpTerms(l, r *ir.Terminator) Ordering {
	if o := cmpNum(l.Kind, r.Kind); o != Equal {
		return o
	}
	opsL, opsR := l.Operands(), r.Operands()
	if o := cmpNum(len(opsL), len(opsR)); o != Equal {
		return o
	}
	if o := c.cmpOperands(opsL, opsR); o != Equal {
		return o
	}
	succL, succR := l.Successors(), r.Successors()
	if o := cmpNum(len(succL), len(succR)); o != Equal {
		return o
	}
	for i := range succL {
		if o := c.cmpBlockRefs(succL[i], succR[i]); o != Equal {
			return o
		}
	}
	return Equal
}

func (c *funcCmp) cmpOperands(l, r []*ir.Value) Ordering {
	for i := range l {
		if o := c.cmpTypes(l[i].Type, r[i].Type); o != Equal {
			return o
		}
		if o := c.cmpValues(*l[i], *r[i]); o != Equal {
			return o
		}
	}
	return Equal
}

func (c *funcCmp) cmpBlockRefs(l, r ir.BlockID) Ordering {
	return cmpNum(serial(c.blocksL, l), serial(c.blocksR, r))
}

func serial[K comparable](m map[K]int, k K) int {
	if n, ok := m[k]; ok {
		return n
	}
	n := len(m)
	m[k] = n
	return n
}

// cmpValues orders constants after locals; locals compare by the order in
// which each walk first met them.
func (c *funcCmp) cmpValues(l, r ir.Value) Ordering {
	constL, constR := l.IsConstant(), r.IsConstant()
	switch {
	case constL && constR:
		return c.cmpConstants(l, r)
	case constL:
		return Greater
	case constR:
		return Less
	}
	if o := cmpBool(l.IsValid(), r.IsValid()); o != Equal || !l.IsValid() {
		return o
	}
	return cmpNum(serial(c.valuesL, keyOf(l)), serial(c.valuesR, keyOf(r)))
}

func keyOf(v ir.Value) localKey {
	if v.Kind == ir.ValueArg {
		return localKey{kind: v.Kind, id: int32(v.Arg)} //nolint:gosec // G115: parameter index
	}
	return localKey{kind: v.Kind, id: int32(v.Instr)}
}

func (c *funcCmp) cmpConstants(l, r ir.Value) Ordering {
	if o := c.cmpTypes(l.Type, r.Type); o != Equal {
		return o
	}
	nullL, nullR := c.isNull(c.ml, l), c.isNull(c.mr, r)
	switch {
	case nullL && nullR:
		return Equal
	case nullL:
		return Less
	case nullR:
		return Greater
	}
	if o := cmpNum(constRank(c.ml, l), constRank(c.mr, r)); o != Equal {
		return o
	}
	if l.Kind == ir.ValueGlobal {
		return c.cmpGlobals(l.Global, r.Global)
	}

	cl, cr := c.ml.Const(l.Const), c.mr.Const(r.Const)
	switch cl.Kind {
	case ir.ConstInt:
		return cmpNum(cl.Int, cr.Int)
	case ir.ConstFloat:
		return cmpNum(math.Float64bits(cl.Float), math.Float64bits(cr.Float))
	case ir.ConstStruct, ir.ConstArray:
		if o := cmpNum(len(cl.Elems), len(cr.Elems)); o != Equal {
			return o
		}
		for i := range cl.Elems {
			if o := c.cmpValues(cl.Elems[i], cr.Elems[i]); o != Equal {
				return o
			}
		}
	case ir.ConstCast:
		if o := cmpNum(cl.Cast, cr.Cast); o != Equal {
			return o
		}
		return c.cmpValues(cl.Operand, cr.Operand)
	}
	return Equal
}

// cmpGlobals compares global addresses by their numbering, except that each
// function's reference to itself matches the other's and orders before any
// other global.
func (c *funcCmp) cmpGlobals(l, r ir.Global) Ordering {
	selfL, selfR := l == ir.Global(c.l), r == ir.Global(c.r)
	switch {
	case selfL && selfR:
		return Equal
	case selfL:
		return Less
	case selfR:
		return Greater
	}
	return cmpNum(c.gn.Number(l), c.gn.Number(r))
}

// constRank orders constant kinds; global addresses come after every pool
// constant.
func constRank(m *ir.Module, v ir.Value) int {
	if v.Kind == ir.ValueGlobal {
		return math.MaxInt8
	}
	return int(m.Const(v.Const).Kind)
}

func (c *funcCmp) isNull(m *ir.Module, v ir.Value) bool {
	if v.Kind != ir.ValueConst {
		return false
	}
	k := m.Const(v.Const)
	switch k.Kind {
	case ir.ConstNull, ir.ConstZero:
		return true
	case ir.ConstInt:
		return k.Int == 0
	case ir.ConstFloat:
		return math.Float64bits(k.Float) == 0
	}
	return false
}

func cmpAttrs(l, r ir.AttrList) Ordering {
	if o := cmpNum(l.Fn, r.Fn); o != Equal {
		return o
	}
	if o := cmpNum(l.Ret, r.Ret); o != Equal {
		return o
	}
	n := l.NumParams()
	if o := cmpNum(n, r.NumParams()); o != Equal {
		return o
	}
	for i := 0; i < n; i++ {
		if o := cmpNum(l.Param(i), r.Param(i)); o != Equal {
			return o
		}
	}
	return Equal
}

// cmpResultTypes treats "no result" as the smallest type.
func (c *funcCmp) cmpResultTypes(l, r types.TypeID) Ordering {
	if o := cmpBool(l != types.NoTypeID, r != types.NoTypeID); o != Equal || l == types.NoTypeID {
		return o
	}
	return c.cmpTypes(l, r)
}

// cmpTypes orders types structurally. Pointers in address space 0 are
// identified with the pointer-sized integer; other pointers compare by
// address space alone.
func (c *funcCmp) cmpTypes(l, r types.TypeID) Ordering {
	in := c.in
	l, r = c.flattenPointer(l), c.flattenPointer(r)
	if l == r {
		return Equal
	}
	tl, _ := in.Lookup(l)
	tr, _ := in.Lookup(r)
	if o := cmpNum(tl.Kind, tr.Kind); o != Equal {
		return o
	}
	switch tl.Kind {
	case types.KindInt, types.KindFloat:
		return cmpNum(tl.Width, tr.Width)
	case types.KindPointer:
		return cmpNum(tl.AddrSpace, tr.AddrSpace)
	case types.KindArray:
		if o := cmpNum(tl.Count, tr.Count); o != Equal {
			return o
		}
		return c.cmpTypes(tl.Elem, tr.Elem)
	case types.KindStruct:
		sl, _ := in.StructInfo(l)
		sr, _ := in.StructInfo(r)
		if o := cmpNum(len(sl.Elems), len(sr.Elems)); o != Equal {
			return o
		}
		if o := cmpBool(tl.Packed, tr.Packed); o != Equal {
			return o
		}
		for i := range sl.Elems {
			if o := c.cmpTypes(sl.Elems[i], sr.Elems[i]); o != Equal {
				return o
			}
		}
	case types.KindFn:
		fl, _ := in.FnInfo(l)
		fr, _ := in.FnInfo(r)
		if o := cmpNum(len(fl.Params), len(fr.Params)); o != Equal {
			return o
		}
		if o := cmpBool(fl.Variadic, fr.Variadic); o != Equal {
			return o
		}
		if o := c.cmpTypes(fl.Result, fr.Result); o != Equal {
			return o
		}
		for i := range fl.Params {
			if o := c.cmpTypes(fl.Params[i], fr.Params[i]); o != Equal {
				return o
			}
		}
	}
	return Equal
}

func (c *funcCmp) flattenPointer(id types.TypeID) types.TypeID {
	tt, ok := c.in.Lookup(id)
	if ok && tt.Kind == types.KindPointer && tt.AddrSpace == 0 {
		return c.in.IntPtr()
	}
	return id
}
