package fcmp_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"funcmerge/internal/fcmp"
	"funcmerge/internal/ir"
)

const cmpModule = `layout ptrbits=64

@g1 = global i32 0
@g2 = global i32 0

define i32 @add1(i32 %a0, i32 %a1) {
bb0:
  %v0 = add i32 %a0, %a1
  ret i32 %v0
}

define i32 @add2(i32 %a0, i32 %a1) {
bb0:
  %v0 = add i32 %a0, %a1
  ret i32 %v0
}

define i32 @sub(i32 %a0, i32 %a1) {
bb0:
  %v0 = sub i32 %a0, %a1
  ret i32 %v0
}

define i32 @swapped(i32 %a0, i32 %a1) {
bb0:
  %v0 = add i32 %a1, %a0
  ret i32 %v0
}

define i8* @idp(i8* %a0) {
bb0:
  ret i8* %a0
}

define i64 @idi(i64 %a0) {
bb0:
  ret i64 %a0
}

define i32 @idi32(i32 %a0) {
bb0:
  ret i32 %a0
}

define i32 @load1() {
bb0:
  %v0 = load i32, i32* @g1, align 4
  ret i32 %v0
}

define i32 @load2() {
bb0:
  %v0 = load i32, i32* @g2, align 4
  ret i32 %v0
}

define i32 @branchy(i1 %a0) {
bb0:
  br i1 %a0, bb1, bb2
bb1:
  ret i32 1
bb2:
  ret i32 2
}

define i32 @branchy2(i1 %a0) {
bb0:
  br i1 %a0, bb2, bb1
bb2:
  ret i32 1
bb1:
  ret i32 2
}

define i32 @branchy3(i1 %a0) {
bb0:
  br i1 %a0, bb1, bb2
bb1:
  ret i32 2
bb2:
  ret i32 1
}
`

func parse(t *testing.T) *ir.Module {
	t.Helper()
	m, err := ir.Parse("cmp.mf", cmpModule)
	require.NoError(t, err)
	require.NoError(t, ir.Validate(m))
	return m
}

func compare(m *ir.Module, gn *fcmp.GlobalNumbers, l, r string) fcmp.Ordering {
	return fcmp.Structural{}.Compare(m.Func(l), m.Func(r), gn)
}

func TestStructuralEqualBodies(t *testing.T) {
	m := parse(t)
	gn := fcmp.NewGlobalNumbers()

	require.Equal(t, fcmp.Equal, compare(m, gn, "add1", "add2"))
	require.Equal(t, fcmp.Equal, compare(m, gn, "add2", "add1"))
	require.Equal(t, fcmp.Equal, compare(m, gn, "add1", "add1"))
	require.Equal(t, fcmp.FunctionHash(m.Func("add1")), fcmp.FunctionHash(m.Func("add2")))
}

func TestStructuralDistinguishes(t *testing.T) {
	m := parse(t)
	gn := fcmp.NewGlobalNumbers()

	pairs := [][2]string{
		{"add1", "sub"},
		{"add1", "swapped"},
		{"idi", "idi32"},
		{"load1", "load2"},
		{"branchy", "branchy3"},
	}
	for _, p := range pairs {
		o := compare(m, gn, p[0], p[1])
		require.NotEqual(t, fcmp.Equal, o, "%s vs %s", p[0], p[1])
		require.Equal(t, o.Reverse(), compare(m, gn, p[1], p[0]), "antisymmetry of %s vs %s", p[0], p[1])
	}
}

func TestStructuralPointerIsPointerSizedInt(t *testing.T) {
	m := parse(t)
	gn := fcmp.NewGlobalNumbers()

	require.Equal(t, fcmp.Equal, compare(m, gn, "idp", "idi"))
	require.NotEqual(t, fcmp.Equal, compare(m, gn, "idp", "idi32"))
}

// Block layout does not matter, only the shape of the walk from entry.
func TestStructuralIgnoresBlockOrder(t *testing.T) {
	m := parse(t)
	gn := fcmp.NewGlobalNumbers()

	require.Equal(t, fcmp.Equal, compare(m, gn, "branchy", "branchy2"))
	require.Equal(t, fcmp.FunctionHash(m.Func("branchy")), fcmp.FunctionHash(m.Func("branchy2")))
}

// TestStructuralTotalOrder checks antisymmetry and transitivity over every
// triple of definitions in the module.
func TestStructuralTotalOrder(t *testing.T) {
	m := parse(t)
	gn := fcmp.NewGlobalNumbers()
	fns := m.Definitions()

	for _, a := range fns {
		for _, b := range fns {
			ab := fcmp.Structural{}.Compare(a, b, gn)
			ba := fcmp.Structural{}.Compare(b, a, gn)
			require.Equal(t, ab, ba.Reverse(), "antisymmetry %s/%s", a.Name, b.Name)
			for _, c := range fns {
				bc := fcmp.Structural{}.Compare(b, c, gn)
				ac := fcmp.Structural{}.Compare(a, c, gn)
				if ab != fcmp.Greater && bc != fcmp.Greater && ac == fcmp.Greater {
					t.Fatalf("not transitive: %s <= %s <= %s but %s > %s\n%s",
						a.Name, b.Name, c.Name, a.Name, c.Name, spew.Sdump(ab, bc, ac))
				}
			}
		}
	}
}

func TestGlobalNumbers(t *testing.T) {
	m := parse(t)
	gn := fcmp.NewGlobalNumbers()
	g1, g2 := m.Lookup("g1"), m.Lookup("g2")

	require.Equal(t, uint64(0), gn.Number(g2))
	require.Equal(t, uint64(1), gn.Number(g1))
	require.Equal(t, uint64(0), gn.Number(g2))
	require.Equal(t, 2, gn.Len())

	// Numbering order decides the order of otherwise equal loads.
	require.Equal(t, fcmp.Greater, compare(m, gn, "load1", "load2"))

	gn.Clear()
	require.Equal(t, 0, gn.Len())
	require.Equal(t, uint64(0), gn.Number(g1))
	require.Equal(t, fcmp.Less, compare(m, gn, "load1", "load2"))
}

func TestFunctionHashBuckets(t *testing.T) {
	m := parse(t)
	require.NotEqual(t, fcmp.FunctionHash(m.Func("add1")), fcmp.FunctionHash(m.Func("sub")))
	// Same opcodes, different operand order: same bucket, different order.
	require.Equal(t, fcmp.FunctionHash(m.Func("add1")), fcmp.FunctionHash(m.Func("swapped")))
}

func TestFunctionHashIgnoresUnreachableBlocks(t *testing.T) {
	m, err := ir.Parse("dead.mf", `define i32 @a() {
bb0:
  ret i32 0
}

define i32 @b() {
bb0:
  ret i32 0
bb1:
  %v0 = add i32 1, 2
  ret i32 %v0
}
`)
	require.NoError(t, err)
	require.Equal(t, fcmp.FunctionHash(m.Func("a")), fcmp.FunctionHash(m.Func("b")))
	require.Equal(t, fcmp.Equal, fcmp.Structural{}.Compare(m.Func("a"), m.Func("b"), fcmp.NewGlobalNumbers()))
}

func TestStructuralSelfReferences(t *testing.T) {
	m, err := ir.Parse("rec.mf", `define i32 @fa(i32 %a0) {
bb0:
  %v0 = call i32 @fa(i32 %a0)
  %v1 = add i32 %v0, 1
  ret i32 %v1
}

define i32 @fb(i32 %a0) {
bb0:
  %v0 = call i32 @fb(i32 %a0)
  %v1 = add i32 %v0, 1
  ret i32 %v1
}

define i32 @fc(i32 %a0) {
bb0:
  %v0 = call i32 @fa(i32 %a0)
  %v1 = add i32 %v0, 1
  ret i32 %v1
}
`)
	require.NoError(t, err)
	gn := fcmp.NewGlobalNumbers()
	fa, fb, fc := m.Func("fa"), m.Func("fb"), m.Func("fc")

	require.Equal(t, fcmp.Equal, fcmp.Structural{}.Compare(fa, fb, gn))
	require.Equal(t, fcmp.Equal, fcmp.Structural{}.Compare(fb, fa, gn))

	// @fc calls @fa, which is not itself: a self call orders first.
	require.Equal(t, fcmp.Less, fcmp.Structural{}.Compare(fa, fc, gn))
	require.Equal(t, fcmp.Greater, fcmp.Structural{}.Compare(fc, fa, gn))
	require.Equal(t, fcmp.Less, fcmp.Structural{}.Compare(fb, fc, gn))
}
