package ir_test

import (
	"testing"

	"funcmerge/internal/ir"
)

const useModule = `layout ptrbits=64

@fp = global i8* bitcast (i32 ()* @a to i8*)

define i32 @a() {
bb0:
  ret i32 1
}

define i32 @b() {
bb0:
  ret i32 1
}

define i32 @c() {
bb0:
  %v0 = call i32 @a()
  ret i32 %v0
}
`

func TestUseIndex(t *testing.T) {
	m := mustParse(t, useModule)
	a, b := m.Func("a"), m.Func("b")

	ix := ir.BuildUseIndex(m)
	uses := ix.GlobalUses(a)
	if len(uses) != 2 {
		t.Fatalf("@a has %d uses, want 2", len(uses))
	}
	var calls, consts int
	for _, u := range uses {
		switch u.Kind {
		case ir.UseInstr:
			calls++
			if !u.IsCallee() || u.Func != m.Func("c") {
				t.Errorf("instruction use should be the callee in @c: %+v", u)
			}
			if in := u.Instr(); in == nil || !in.IsCallTo(a) {
				t.Errorf("use does not resolve to the call")
			}
		case ir.UseConst:
			consts++
			if len(ix.ConstUses(u.Const)) != 1 {
				t.Errorf("bitcast constant should be used by @fp")
			}
		}
	}
	if calls != 1 || consts != 1 {
		t.Fatalf("calls=%d consts=%d, want 1 and 1", calls, consts)
	}
	if !ix.Used(a) {
		t.Error("@a should be used")
	}
	if ix.Used(b) {
		t.Error("@b should be unused")
	}
}

func TestReplaceAllUsesWith(t *testing.T) {
	m := mustParse(t, useModule)
	a, b := m.Func("a"), m.Func("b")

	m.ReplaceAllUsesWith(a, ir.GlobalRef(b))
	if err := ir.Validate(m); err != nil {
		t.Fatalf("validate after RAUW: %v", err)
	}

	ix := ir.BuildUseIndex(m)
	if ix.Used(a) {
		t.Error("@a should have no live uses left")
	}
	if got := len(ix.GlobalUses(b)); got != 2 {
		t.Fatalf("@b has %d uses, want 2", got)
	}
	call := m.Func("c").Blocks[0].Instrs[0]
	if !call.IsCallTo(b) {
		t.Errorf("call in @c should target @b")
	}
}

func TestUsedIgnoresDeadConstants(t *testing.T) {
	m := mustParse(t, useModule)
	a := m.Func("a")

	// Detaching the initializer leaves the bitcast constant orphaned.
	fp := m.Vars[0]
	fp.HasInit = false
	fp.Init = ir.Value{}
	m.Func("c").Blocks[0].Instrs[0].Call.Callee = ir.GlobalRef(m.Func("b"))

	ix := ir.BuildUseIndex(m)
	if len(ix.GlobalUses(a)) != 1 {
		t.Fatalf("orphaned constant should still be listed as a use")
	}
	if ix.Used(a) {
		t.Error("uses through dead constants should not count")
	}
}
