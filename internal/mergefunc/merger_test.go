package mergefunc_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"funcmerge/internal/fcmp"
	"funcmerge/internal/ir"
	"funcmerge/internal/mergefunc"
	"funcmerge/internal/trace"
)

type aliases bool

func (a aliases) SupportsGlobalAliases() bool { return bool(a) }

func parseModule(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := ir.Parse("test.mf", src)
	require.NoError(t, err)
	require.NoError(t, ir.Validate(m))
	return m
}

// addFunc renders an unoptimized x+y body under the given header.
func addFunc(header string) string {
	return header + ` {
bb0:
  %v0 = alloca i32, align 4
  store i32 %a0, i32* %v0, align 4
  %v1 = load i32, i32* %v0, align 4
  %v2 = add i32 %v1, %a1
  ret i32 %v2
}
`
}

func run(t *testing.T, m *ir.Module, opts mergefunc.Options) mergefunc.Result {
	t.Helper()
	res := mergefunc.New(opts).Run(context.Background(), m)
	require.NoError(t, ir.Validate(m), "module invalid after merge:\n%s", m)
	return res
}

// thunkTarget returns the function a thunk tail-calls.
func thunkTarget(t *testing.T, f *ir.Func) ir.Global {
	t.Helper()
	require.NotNil(t, f)
	require.Len(t, f.Blocks, 1, "thunk @%s should have one block", f.Name)
	for i := range f.Blocks[0].Instrs {
		in := &f.Blocks[0].Instrs[i]
		if in.Kind != ir.InstrCall {
			continue
		}
		require.True(t, in.Call.Tail, "thunk call should be a tail call")
		require.Equal(t, ir.ValueGlobal, in.Call.Callee.Kind)
		return in.Call.Callee.Global
	}
	t.Fatalf("@%s has no call:\n%s", f.Name, spew.Sdump(f.Blocks))
	return nil
}

func callsIn(f *ir.Func) []*ir.Instr {
	var out []*ir.Instr
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			if in := &f.Blocks[bi].Instrs[ii]; in.Kind == ir.InstrCall {
				out = append(out, in)
			}
		}
	}
	return out
}

func TestMergeEqualFunctionsWritesThunk(t *testing.T) {
	m := parseModule(t, addFunc("define i32 @addA(i32 %a0, i32 %a1)")+
		addFunc("define i32 @addB(i32 %a0, i32 %a1)")+`
define i32 @caller(i32 %a0) {
bb0:
  %v0 = call i32 @addB(i32 %a0, i32 %a0)
  ret i32 %v0
}
`)

	res := run(t, m, mergefunc.Options{})
	require.True(t, res.Changed)
	require.Equal(t, mergefunc.Stats{FunctionsMerged: 1, ThunksWritten: 1}, res.Stats)

	addA, addB := m.Func("addA"), m.Func("addB")
	require.NotNil(t, addA)
	require.Len(t, addA.Blocks[0].Instrs, 4, "survivor keeps its body")
	require.Equal(t, ir.Global(addA), thunkTarget(t, addB))
	require.Equal(t, ir.LinkageExternal, addB.Linkage)

	calls := callsIn(m.Func("caller"))
	require.Len(t, calls, 1)
	require.True(t, calls[0].IsCallTo(addA), "direct caller should now call @addA")
}

func TestMergeTransfersCallAttributes(t *testing.T) {
	m := parseModule(t, addFunc("define fastcc signext i32 @addA(i32 signext %a0, i32 %a1) nounwind")+
		addFunc("define fastcc signext i32 @addB(i32 signext %a0, i32 %a1) nounwind")+`
define i32 @caller(i32 %a0) {
bb0:
  %v0 = call fastcc i32 @addB(i32 %a0, i32 inreg %a0)
  ret i32 %v0
}
`)

	res := run(t, m, mergefunc.Options{})
	require.Equal(t, mergefunc.Stats{FunctionsMerged: 1, ThunksWritten: 1}, res.Stats)
	addA := m.Func("addA")

	call := callsIn(m.Func("caller"))[0]
	require.True(t, call.IsCallTo(addA))
	require.Equal(t, ir.CallConvFast, call.Call.CallConv)
	require.Equal(t, ir.AttrSExt, call.Call.Attrs.Ret, "return attributes of the survivor are added")
	require.Equal(t, ir.AttrSExt, call.Call.Attrs.Param(0))
	require.Equal(t, ir.AttrInReg, call.Call.Attrs.Param(1), "existing call site attributes stay")

	thunkCall := callsIn(m.Func("addB"))[0]
	require.True(t, thunkCall.IsCallTo(addA))
	require.True(t, thunkCall.Call.Tail)
	require.Equal(t, addA.CallConv, thunkCall.Call.CallConv)
	require.Equal(t, ir.CallConvFast, thunkCall.Call.CallConv)
	require.Equal(t, addA.Attrs.Ret, thunkCall.Call.Attrs.Ret)
	require.Equal(t, ir.AttrSExt, thunkCall.Call.Attrs.Param(0))
	require.Equal(t, ir.AttrNoUnwind, thunkCall.Call.Attrs.Fn)

	addB := m.Func("addB")
	require.Equal(t, ir.CallConvFast, addB.CallConv, "thunk keeps the replaced function's convention")
	require.Equal(t, ir.AttrSExt, addB.Attrs.Param(0))
}

func TestMergeEqualFunctionsWritesAlias(t *testing.T) {
	m := parseModule(t, addFunc("define i32 @addA(i32 %a0, i32 %a1)")+
		addFunc("define unnamed_addr i32 @addB(i32 %a0, i32 %a1) align 16")+`
define i32 @caller(i32 %a0) {
bb0:
  %v0 = call i32 @addB(i32 %a0, i32 %a0)
  ret i32 %v0
}
`)

	res := run(t, m, mergefunc.Options{Target: aliases(true)})
	require.True(t, res.Changed)
	require.Equal(t, mergefunc.Stats{FunctionsMerged: 1, AliasesWritten: 1}, res.Stats)

	addA := m.Func("addA")
	alias, ok := m.Lookup("addB").(*ir.Alias)
	require.True(t, ok, "@addB should be an alias, got %T", m.Lookup("addB"))
	require.True(t, alias.Aliasee.Refers(addA))
	require.Equal(t, uint32(16), addA.Align, "survivor alignment covers the alias")

	calls := callsIn(m.Func("caller"))
	require.Len(t, calls, 1)
	require.True(t, calls[0].IsCallTo(alias))
}

func TestMergeWithoutUnnamedAddrFallsBackToThunk(t *testing.T) {
	m := parseModule(t, addFunc("define i32 @addA(i32 %a0, i32 %a1)")+
		addFunc("define i32 @addB(i32 %a0, i32 %a1)"))

	res := run(t, m, mergefunc.Options{Target: aliases(true)})
	require.Equal(t, mergefunc.Stats{FunctionsMerged: 1, ThunksWritten: 1}, res.Stats)
	require.Equal(t, ir.Global(m.Func("addA")), thunkTarget(t, m.Func("addB")))
}

func TestTinyFunctionsAreNotMerged(t *testing.T) {
	src := `define i32 @one(i32 %a0) {
bb0:
  ret i32 %a0
}

define i32 @two(i32 %a0) {
bb0:
  ret i32 %a0
bb1:
  unreachable
}
`
	m := parseModule(t, src)
	res := run(t, m, mergefunc.Options{Target: aliases(true)})
	require.False(t, res.Changed)
	require.Equal(t, mergefunc.Stats{}, res.Stats)
	require.NotNil(t, m.Func("one"))
	require.NotNil(t, m.Func("two"))
	require.Equal(t, src, strings.TrimPrefix(m.String(), "layout ptrbits=64\n\n"))
}

func TestMergeTwoWeakFunctions(t *testing.T) {
	m := parseModule(t, addFunc("define weak i32 @wa(i32 %a0, i32 %a1) align 4")+
		addFunc("define weak i32 @wb(i32 %a0, i32 %a1) align 8"))

	res := run(t, m, mergefunc.Options{})
	require.True(t, res.Changed)
	require.Equal(t, mergefunc.Stats{FunctionsMerged: 1, ThunksWritten: 2, DoubleWeak: 1}, res.Stats)

	wa, wb := m.Func("wa"), m.Func("wb")
	require.NotNil(t, wa, "weak symbols are never dropped")
	require.NotNil(t, wb, "weak symbols are never dropped")
	require.Equal(t, ir.LinkageWeakAny, wa.Linkage)
	require.Equal(t, ir.LinkageWeakAny, wb.Linkage)

	body := thunkTarget(t, wa)
	require.Equal(t, body, thunkTarget(t, wb), "both weak symbols forward to one body")
	shared := body.(*ir.Func)
	require.Equal(t, ir.LinkagePrivate, shared.Linkage)
	require.Empty(t, shared.Name)
	require.Equal(t, uint32(8), shared.Align)
	require.Len(t, shared.Blocks[0].Instrs, 4)
}

func TestMergeTwoWeakFunctionsWithAliases(t *testing.T) {
	m := parseModule(t, addFunc("define weak unnamed_addr i32 @wa(i32 %a0, i32 %a1)")+
		addFunc("define weak unnamed_addr i32 @wb(i32 %a0, i32 %a1)"))

	res := run(t, m, mergefunc.Options{Target: aliases(true)})
	require.Equal(t, mergefunc.Stats{FunctionsMerged: 1, AliasesWritten: 2, DoubleWeak: 1}, res.Stats)

	wa, okA := m.Lookup("wa").(*ir.Alias)
	wb, okB := m.Lookup("wb").(*ir.Alias)
	require.True(t, okA && okB, "both weak symbols become aliases")
	require.Equal(t, ir.LinkageWeakAny, wa.Linkage)
	require.Equal(t, ir.LinkageWeakAny, wb.Linkage)
	require.Equal(t, wa.Aliasee, wb.Aliasee)
	require.Len(t, m.Definitions(), 1)
}

func TestStrongFunctionIsCanonicalOverWeak(t *testing.T) {
	for _, order := range [][]string{{"s", "w"}, {"w", "s"}} {
		t.Run(strings.Join(order, ""), func(t *testing.T) {
			var sb strings.Builder
			for _, name := range order {
				linkage := ""
				if name == "w" {
					linkage = "weak "
				}
				sb.WriteString(addFunc(fmt.Sprintf("define %si32 @%s(i32 %%a0, i32 %%a1)", linkage, name)))
			}
			m := parseModule(t, sb.String())
			run(t, m, mergefunc.Options{})

			s, w := m.Func("s"), m.Func("w")
			require.Len(t, s.Blocks[0].Instrs, 4)
			require.Equal(t, ir.LinkageWeakAny, w.Linkage, "interposable symbol survives as a thunk")
			require.Equal(t, ir.Global(s), thunkTarget(t, w))
		})
	}
}

// TestCalleeMergeReinsertsCaller covers a function whose body changes
// because one of its callees is merged away.
func TestCalleeMergeReinsertsCaller(t *testing.T) {
	leaf := func(name string) string {
		return fmt.Sprintf(`define internal i32 @%s(i32 %%a0) {
bb0:
  %%v0 = alloca i32, align 4
  store i32 %%a0, i32* %%v0, align 4
  %%v1 = load i32, i32* %%v0, align 4
  %%v2 = add i32 %%v1, 1
  ret i32 %%v2
}

`, name)
	}
	outer := func(name, callee string) string {
		return fmt.Sprintf(`define i32 @%s(i32 %%a0) {
bb0:
  %%v0 = call i32 @%s(i32 %%a0)
  %%v1 = add i32 %%v0, 7
  ret i32 %%v1
}

`, name, callee)
	}
	m := parseModule(t, outer("a_original", "leaf1")+outer("b_dup", "leaf2")+leaf("leaf1")+leaf("leaf2"))

	res := run(t, m, mergefunc.Options{})
	require.True(t, res.Changed)
	require.Equal(t, 2, res.Stats.FunctionsMerged, spew.Sdump(res))
	require.Equal(t, 1, res.Stats.ThunksWritten, "the local leaf is erased, not thunked")

	require.Nil(t, m.Func("leaf2"))
	leaf1, original := m.Func("leaf1"), m.Func("a_original")
	require.True(t, callsIn(original)[0].IsCallTo(leaf1))
	require.Equal(t, ir.Global(original), thunkTarget(t, m.Func("b_dup")))
}

// TestCalleeMergeKeepsAlias has the outer pair merged into an alias while
// their callees are still distinct; later callee merges rewrite the
// survivor, which the alias still denotes.
func TestCalleeMergeKeepsAlias(t *testing.T) {
	src := addFunc("define internal i32 @leaf1(i32 %a0, i32 %a1)") +
		addFunc("define internal i32 @leaf2(i32 %a0, i32 %a1)") + `
define unnamed_addr i32 @a_original(i32 %a0) {
bb0:
  %v0 = call i32 @leaf2(i32 %a0, i32 %a0)
  %v1 = add i32 %v0, 7
  ret i32 %v1
}

define unnamed_addr i32 @b_dup(i32 %a0) {
bb0:
  %v0 = call i32 @leaf2(i32 %a0, i32 %a0)
  %v1 = add i32 %v0, 7
  ret i32 %v1
}
`
	m := parseModule(t, src)
	res := run(t, m, mergefunc.Options{Target: aliases(true)})
	require.Equal(t, 2, res.Stats.FunctionsMerged)

	original := m.Func("a_original")
	alias, ok := m.Lookup("b_dup").(*ir.Alias)
	require.True(t, ok)
	require.True(t, alias.Aliasee.Refers(original))
	require.True(t, callsIn(original)[0].IsCallTo(m.Func("leaf1")))
	require.Nil(t, m.Lookup("leaf2"))
}

func TestThunkCastsArguments(t *testing.T) {
	m := parseModule(t, `layout ptrbits=64

define i8* @pa(i8* %a0) {
bb0:
  %v0 = alloca i8*, align 8
  store i8* %a0, i8** %v0, align 8
  %v1 = load i8*, i8** %v0, align 8
  ret i8* %v1
}

define i64 @pb(i64 %a0) {
bb0:
  %v0 = alloca i64, align 8
  store i64 %a0, i64* %v0, align 8
  %v1 = load i64, i64* %v0, align 8
  ret i64 %v1
}

define i64 @caller(i64 %a0) {
bb0:
  %v0 = call i64 @pb(i64 %a0)
  ret i64 %v0
}
`)
	res := run(t, m, mergefunc.Options{})
	require.Equal(t, mergefunc.Stats{FunctionsMerged: 1, ThunksWritten: 1}, res.Stats)

	pa, pb := m.Func("pa"), m.Func("pb")
	instrs := pb.Blocks[0].Instrs
	require.Len(t, instrs, 3, spew.Sdump(instrs))
	require.Equal(t, ir.InstrCast, instrs[0].Kind)
	require.Equal(t, ir.CastIntToPtr, instrs[0].Cast.Op)
	require.True(t, instrs[1].IsCallTo(pa))
	require.Equal(t, ir.InstrCast, instrs[2].Kind)
	require.Equal(t, ir.CastPtrToInt, instrs[2].Cast.Op)

	// The caller keeps its signature and reaches @pa through a constant cast.
	call := callsIn(m.Func("caller"))[0]
	require.Equal(t, ir.ValueConst, call.Call.Callee.Kind)
	c := m.Const(call.Call.Callee.Const)
	require.Equal(t, ir.ConstCast, c.Kind)
	require.True(t, c.Operand.Refers(pa))
	require.Equal(t, pb.Type, call.Call.Callee.Type)
}

func TestMergeIsIdempotent(t *testing.T) {
	m := parseModule(t, addFunc("define i32 @addA(i32 %a0, i32 %a1)")+
		addFunc("define weak i32 @w1(i32 %a0, i32 %a1)")+
		addFunc("define weak i32 @w2(i32 %a0, i32 %a1)")+
		addFunc("define internal i32 @addB(i32 %a0, i32 %a1)")+`
define i32 @caller(i32 %a0) {
bb0:
  %v0 = call i32 @addB(i32 %a0, i32 %a0)
  %v1 = call i32 @w2(i32 %v0, i32 %a0)
  ret i32 %v1
}
`)
	first := run(t, m, mergefunc.Options{})
	require.True(t, first.Changed)
	after := m.String()

	second := run(t, m, mergefunc.Options{})
	require.False(t, second.Changed, "second run changed the module:\n%s", m)
	require.Equal(t, after, m.String())
}

// TestMergeIsDeterministic runs the same functions in different orders and
// expects the same survivor every time.
func TestMergeIsDeterministic(t *testing.T) {
	orders := [][]string{{"a", "b", "c"}, {"c", "a", "b"}, {"b", "c", "a"}, {"c", "b", "a"}}
	var want string
	for _, order := range orders {
		var sb strings.Builder
		for _, name := range order {
			sb.WriteString(addFunc(fmt.Sprintf("define i32 @%s(i32 %%a0, i32 %%a1)", name)))
		}
		m := parseModule(t, sb.String())
		res := run(t, m, mergefunc.Options{})
		require.Equal(t, 2, res.Stats.FunctionsMerged)

		a := m.Func("a")
		require.Len(t, a.Blocks[0].Instrs, 4, "order %v: @a should keep the body", order)
		for _, name := range []string{"b", "c"} {
			require.Equal(t, ir.Global(a), thunkTarget(t, m.Func(name)), "order %v: @%s", order, name)
		}

		// Print in a fixed order to compare the outcome across permutations.
		var out strings.Builder
		for _, name := range []string{"a", "b", "c"} {
			fmt.Fprintf(&out, "%s:%d;", name, m.Func(name).Size())
		}
		if want == "" {
			want = out.String()
		}
		require.Equal(t, want, out.String())
	}
}

// TestSurvivorsAreDistinct checks that no two surviving functions above the
// size threshold compare equal after a run.
func TestSurvivorsAreDistinct(t *testing.T) {
	m := parseModule(t, addFunc("define i32 @x1(i32 %a0, i32 %a1)")+
		addFunc("define i32 @x2(i32 %a0, i32 %a1)")+
		addFunc("define linkonce i32 @x3(i32 %a0, i32 %a1)")+
		addFunc("define internal i32 @x4(i32 %a0, i32 %a1)")+`
define i32 @y1(i32 %a0, i32 %a1) {
bb0:
  %v0 = sub i32 %a0, %a1
  %v1 = add i32 %v0, 1
  ret i32 %v1
}

define i32 @y2(i32 %a0, i32 %a1) {
bb0:
  %v0 = sub i32 %a0, %a1
  %v1 = add i32 %v0, 1
  ret i32 %v1
}
`)
	run(t, m, mergefunc.Options{})

	requireDistinctSurvivors(t, m)
	require.Nil(t, m.Func("x4"), "unused local duplicate is erased")
	require.NotNil(t, m.Func("x3"), "interposable duplicate is kept")
}

func requireDistinctSurvivors(t *testing.T, m *ir.Module) {
	t.Helper()
	gn := fcmp.NewGlobalNumbers()
	var big []*ir.Func
	for _, f := range m.Definitions() {
		if blocks, instrs := ir.ReachableSize(f); blocks > 1 || instrs > 2 {
			big = append(big, f)
		}
	}
	for i, f := range big {
		for _, g := range big[i+1:] {
			require.NotEqual(t, fcmp.Equal, fcmp.Structural{}.Compare(f, g, gn), "@%s and @%s both survived:\n%s", f.Name, g.Name, m)
		}
	}
}

// castModule has one pointer flavored body and two integer ones. Both
// integer functions become cast thunks to @pa, which are equal to each
// other and must fold in the same run.
const castModule = `layout ptrbits=64

define i8* @pa(i8* %a0) {
bb0:
  %v0 = alloca i8*, align 8
  store i8* %a0, i8** %v0, align 8
  %v1 = load i8*, i8** %v0, align 8
  ret i8* %v1
}

define i64 @pb(i64 %a0) {
bb0:
  %v0 = alloca i64, align 8
  store i64 %a0, i64* %v0, align 8
  %v1 = load i64, i64* %v0, align 8
  ret i64 %v1
}

define i64 @pc(i64 %a0) {
bb0:
  %v0 = alloca i64, align 8
  store i64 %a0, i64* %v0, align 8
  %v1 = load i64, i64* %v0, align 8
  ret i64 %v1
}
`

func TestCastThunksFoldInOneRun(t *testing.T) {
	m := parseModule(t, castModule)
	first := run(t, m, mergefunc.Options{})
	require.True(t, first.Changed)
	require.Equal(t, mergefunc.Stats{FunctionsMerged: 3, ThunksWritten: 3}, first.Stats)
	requireDistinctSurvivors(t, m)

	pa, pb, pc := m.Func("pa"), m.Func("pb"), m.Func("pc")
	require.Equal(t, ir.Global(pa), thunkTarget(t, pb))
	require.Equal(t, ir.Global(pb), thunkTarget(t, pc), "@pc forwards to the equal cast thunk @pb")
	require.Len(t, pc.Blocks[0].Instrs, 1, "same types need no casts")

	after := m.String()
	second := run(t, m, mergefunc.Options{})
	require.False(t, second.Changed, "second run changed the module:\n%s", m)
	require.Equal(t, mergefunc.Stats{}, second.Stats)
	require.Equal(t, after, m.String())
}

func TestSelfRecursiveDuplicatesMerge(t *testing.T) {
	body := func(name string) string {
		return fmt.Sprintf(`define i32 @%s(i32 %%a0) {
bb0:
  %%v0 = call i32 @%s(i32 %%a0)
  %%v1 = add i32 %%v0, 1
  ret i32 %%v1
}

`, name, name)
	}
	m := parseModule(t, body("fa")+body("fb"))

	res := run(t, m, mergefunc.Options{})
	require.True(t, res.Changed)
	require.Equal(t, mergefunc.Stats{FunctionsMerged: 1, ThunksWritten: 1}, res.Stats)

	fa := m.Func("fa")
	require.True(t, callsIn(fa)[0].IsCallTo(fa), "survivor keeps calling itself")
	require.Equal(t, ir.Global(fa), thunkTarget(t, m.Func("fb")))
	requireDistinctSurvivors(t, m)
}

type alwaysLess struct{}

func (alwaysLess) Compare(l, r *ir.Func, _ *fcmp.GlobalNumbers) fcmp.Ordering {
	if l == r {
		return fcmp.Equal
	}
	return fcmp.Less
}

func TestSanityCheckReportsBrokenComparator(t *testing.T) {
	src := addFunc("define i32 @a(i32 %a0, i32 %a1)") + addFunc("define i32 @b(i32 %a0, i32 %a1)")

	good := run(t, parseModule(t, src), mergefunc.Options{SanityCheckLimit: 8})
	require.NotEmpty(t, good.Sanity)
	for _, rep := range good.Sanity {
		require.True(t, rep.Valid, spew.Sdump(rep))
	}

	bad := run(t, parseModule(t, src), mergefunc.Options{Comparator: alwaysLess{}, SanityCheckLimit: 8})
	require.False(t, bad.Changed)
	require.Len(t, bad.Sanity, 1)
	rep := bad.Sanity[0]
	require.False(t, rep.Valid)
	require.Equal(t, 2, rep.Checked)
	require.NotEmpty(t, rep.Violations)
	require.Equal(t, mergefunc.NonSymmetric, rep.Violations[0].Kind)
	require.Equal(t, []string{"a", "b"}, rep.Violations[0].Funcs)
}

func TestRunEmitsTraceEvents(t *testing.T) {
	m := parseModule(t, addFunc("define i32 @addA(i32 %a0, i32 %a1)")+
		addFunc("define i32 @addB(i32 %a0, i32 %a1)"))

	ring := trace.NewRingTracer(256, trace.LevelDebug)
	ctx := trace.WithTracer(context.Background(), ring)
	mergefunc.New(mergefunc.Options{}).Run(ctx, m)

	var names []string
	var merged string
	for _, ev := range ring.Snapshot() {
		names = append(names, ev.Name)
		if ev.Name == "merged" {
			merged = ev.Detail
		}
	}
	require.Contains(t, names, "mergefunc")
	require.Contains(t, names, "batch")
	require.Contains(t, names, "inserted as unique")
	require.Contains(t, names, "thunk written")
	require.Equal(t, "@addA == @addB", merged)
}
