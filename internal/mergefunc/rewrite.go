package mergefunc

import (
	"context"
	"fmt"

	"github.com/oleiade/lane"

	"funcmerge/internal/ir"
	"funcmerge/internal/trace"
	"funcmerge/internal/types"
)

// rewriter applies merge decisions to the module and keeps the index and
// the worklist in step with every body it changes.
type rewriter struct {
	m        *ir.Module
	index    *CandidateIndex
	deferred *worklist
	target   Target
	stats    *Stats

	tracer trace.Tracer
	parent uint64
}

func newRewriter(ctx context.Context, m *ir.Module, index *CandidateIndex, deferred *worklist, target Target, stats *Stats) *rewriter {
	return &rewriter{
		m:        m,
		index:    index,
		deferred: deferred,
		target:   target,
		stats:    stats,
		tracer:   trace.FromContext(ctx),
	}
}

func (r *rewriter) note(name, detail string) {
	trace.Point(r.tracer, trace.ScopeNode, name, detail, r.parent)
}

// remove takes f out of the index and queues it for another look.
func (r *rewriter) remove(f *ir.Func) {
	if r.index.Remove(f) {
		r.note("deferred", "@"+f.Name)
		r.deferred.push(f)
	}
}

// removeUsers pulls every function that uses v, directly or through
// constant expressions, out of the index. It must run before v's uses are
// rewritten.
func (r *rewriter) removeUsers(v ir.Global) {
	uses := ir.BuildUseIndex(r.m)
	visited := make(map[ir.ConstID]bool)
	stack := lane.NewStack()

	visit := func(u ir.Use) {
		switch u.Kind {
		case ir.UseInstr, ir.UseTerm:
			r.remove(u.Func)
		case ir.UseInit, ir.UseAliasee:
			// Global users have no body to re-examine.
		case ir.UseConst:
			if !visited[u.Const] {
				visited[u.Const] = true
				stack.Push(u.Const)
			}
		}
	}

	for _, u := range uses.GlobalUses(v) {
		visit(u)
	}
	for !stack.Empty() {
		c := stack.Pop().(ir.ConstID)
		for _, u := range uses.ConstUses(c) {
			visit(u)
		}
	}
}

// replaceDirectCallers points every call whose callee is exactly old at nf
// instead, cast to old's type. nf's return and parameter attributes are
// added to each call site.
func (r *rewriter) replaceDirectCallers(old, nf *ir.Func) {
	uses := ir.BuildUseIndex(r.m)
	callee := r.m.BitcastOrSelf(nf, old.Type)
	for _, u := range uses.GlobalUses(old) {
		if !u.IsCallee() {
			continue
		}
		call := &u.Instr().Call
		attrs := call.Attrs.Clone()
		attrs.Ret |= nf.Attrs.Ret
		for i := range call.Args {
			attrs.AddParam(i, nf.Attrs.Param(i))
		}
		call.Attrs = attrs

		r.remove(u.Func)
		*u.Ref() = callee
	}
}

// writeThunkOrAlias replaces g with an alias to f when g qualifies and with
// a thunk otherwise.
func (r *rewriter) writeThunkOrAlias(f, g *ir.Func) {
	if aliasEligible(g, r.target) {
		r.writeAlias(f, g)
		return
	}
	r.writeThunk(f, g)
}

// writeThunk replaces g with a function of g's type that tail-calls f.
// Direct callers of a strong g are sent to f first; a local g left without
// users is simply erased. The thunk is queued like any other changed body,
// so thunks that cast the same way are folded in the same run.
func (r *rewriter) writeThunk(f, g *ir.Func) {
	if !g.IsInterposable() {
		r.replaceDirectCallers(g, f)
	}
	if g.HasLocalLinkage() && !ir.BuildUseIndex(r.m).Used(g) {
		r.note("erased", "@"+g.Name)
		r.m.EraseFunc(g)
		return
	}

	thunk := r.m.NewFunc("", g.Sig, g.Linkage)
	b := ir.NewBuilder(thunk)
	b.NewBlock()

	target := f.FnInfo()
	args := make([]ir.Value, thunk.NumParams())
	for i := range args {
		args[i] = createCast(b, thunk.Param(i), target.Params[i])
	}
	call := b.Call(ir.GlobalRef(f), args, ir.CallOpts{
		Tail:     true,
		CallConv: f.CallConv,
		Attrs:    f.Attrs,
	})
	if r.m.Types.IsVoid(thunk.Result()) {
		b.RetVoid()
	} else {
		b.Ret(createCast(b, call, thunk.Result()))
	}

	thunk.CopyAttributesFrom(g)
	r.m.TakeName(thunk, g)
	r.removeUsers(g)
	r.m.ReplaceAllUsesWith(g, ir.GlobalRef(thunk))
	r.m.EraseFunc(g)
	r.deferred.push(thunk)

	r.note("thunk written", "@"+thunk.Name)
	r.stats.ThunksWritten++
}

// writeAlias replaces g with an alias to f carrying g's linkage and
// visibility. f's alignment grows to cover g's.
func (r *rewriter) writeAlias(f, g *ir.Func) {
	alias := r.m.NewAlias("", g.Type, g.Linkage, r.m.BitcastOrSelf(f, g.Type))
	f.Align = max(f.Align, g.Align)
	r.m.TakeName(alias, g)
	alias.Visibility = g.Visibility
	r.removeUsers(g)
	r.m.ReplaceAllUsesWith(g, ir.GlobalRef(alias))
	r.m.EraseFunc(g)

	r.note("alias written", "@"+alias.Name)
	r.stats.AliasesWritten++
}

// mergeTwoFunctions folds g into f. When both are interposable, f's body
// moves behind a private symbol and both original symbols forward to it.
func (r *rewriter) mergeTwoFunctions(f, g *ir.Func) {
	switch plan(f, g, r.target) {
	case strategyDoubleThunk:
		h := r.m.NewFunc("", f.Sig, f.Linkage)
		h.CopyAttributesFrom(f)
		r.m.TakeName(h, f)
		r.removeUsers(f)
		r.m.ReplaceAllUsesWith(f, ir.GlobalRef(h))

		maxAlign := max(g.Align, h.Align)
		r.writeThunkOrAlias(f, g)
		r.writeThunkOrAlias(f, h)

		f.Align = maxAlign
		f.Linkage = ir.LinkagePrivate
		r.stats.DoubleWeak++
	case strategyAlias:
		r.writeAlias(f, g)
	case strategyThunk:
		r.writeThunk(f, g)
	}
	r.stats.FunctionsMerged++
}

// createCast converts v to type to: member by member for structs, through
// inttoptr/ptrtoint between integers and pointers, by bitcast otherwise.
func createCast(b *ir.Builder, v ir.Value, to types.TypeID) ir.Value {
	if v.Type == to {
		return v
	}
	m := b.F.Module()
	in := m.Types
	src := in.Kind(v.Type)
	if src == types.KindStruct {
		n := in.NumElems(v.Type)
		if in.Kind(to) != types.KindStruct || in.NumElems(to) != n {
			panic(fmt.Errorf("mergefunc: cannot cast %s to %s", types.Label(in, v.Type), types.Label(in, to)))
		}
		res := m.Undef(to)
		for i := 0; i < n; i++ {
			elem, _ := in.ElemAt(to, i)
			res = b.InsertValue(res, createCast(b, b.ExtractValue(v, i), elem), i)
		}
		return res
	}
	switch dst := in.Kind(to); {
	case src == types.KindInt && dst == types.KindPointer:
		return b.Cast(ir.CastIntToPtr, v, to)
	case src == types.KindPointer && dst == types.KindInt:
		return b.Cast(ir.CastPtrToInt, v, to)
	default:
		return b.Cast(ir.CastBitcast, v, to)
	}
}
