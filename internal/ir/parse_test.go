package ir_test

import (
	"errors"
	"strings"
	"testing"

	"funcmerge/internal/ir"
)

const sampleModule = `layout ptrbits=64

@counter = internal global i32 0, align 4
@table = private unnamed_addr constant [2 x i32] [ i32 1, i32 2 ]

@inc.alias = weak alias i32 (i32)*, @inc

define i32 @inc(i32 %a0) {
bb0:
  %v0 = add i32 %a0, 1
  ret i32 %v0
}

define internal fastcc void @loop(i32 %a0, i32* nocapture %a1) nounwind align 16 {
bb0:
  br bb1
bb1:
  %v0 = phi i32 [0, bb0], [%v2, bb2]
  %v1 = icmp slt i32 %v0, %a0
  br i1 %v1, bb2, bb3
bb2:
  %v2 = add i32 %v0, 1
  store i32 %v2, i32* %a1, align 4
  br bb1
bb3:
  ret void
}

declare i32 @ext(i8* %a0, ...)
`

func mustParse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := ir.Parse("test.mf", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ir.Validate(m); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return m
}

// TestParsePrintRoundTrip checks that canonical text survives parse+print.
func TestParsePrintRoundTrip(t *testing.T) {
	m := mustParse(t, sampleModule)
	if got := m.String(); got != sampleModule {
		t.Fatalf("round trip mismatch:\n--- got ---\n%s\n--- want ---\n%s", got, sampleModule)
	}
}

func TestParseModuleShape(t *testing.T) {
	m := mustParse(t, sampleModule)
	if len(m.Vars) != 2 || len(m.Aliases) != 1 || len(m.Funcs) != 3 {
		t.Fatalf("unexpected shape: %d vars, %d aliases, %d funcs", len(m.Vars), len(m.Aliases), len(m.Funcs))
	}
	loop := m.Func("loop")
	if loop == nil {
		t.Fatal("missing @loop")
	}
	if loop.Linkage != ir.LinkageInternal || loop.CallConv != ir.CallConvFast {
		t.Errorf("loop header: linkage %s cc %s", loop.Linkage, loop.CallConv)
	}
	if loop.Attrs.Fn != ir.AttrNoUnwind || loop.Attrs.Param(1) != ir.AttrNoCapture {
		t.Errorf("loop attrs: fn=%q p1=%q", loop.Attrs.Fn, loop.Attrs.Param(1))
	}
	if loop.Align != 16 || len(loop.Blocks) != 4 {
		t.Errorf("loop align %d blocks %d", loop.Align, len(loop.Blocks))
	}
	ext := m.Func("ext")
	if ext == nil || !ext.IsDeclaration() || !ext.IsVarArg() {
		t.Fatal("@ext should be a variadic declaration")
	}
	alias := m.Aliases[0]
	if !alias.Aliasee.Refers(m.Func("inc")) {
		t.Errorf("alias should point at @inc")
	}
}

func TestParseUnnamedGlobals(t *testing.T) {
	src := `layout ptrbits=64

@0 = private unnamed_addr constant i32 7

define i32 @get() {
bb0:
  %v0 = load i32, i32* @0, align 4
  ret i32 %v0
}
`
	m := mustParse(t, src)
	if m.Vars[0].Name != "" {
		t.Fatalf("@0 should be unnamed, got %q", m.Vars[0].Name)
	}
	if got := m.String(); got != src {
		t.Fatalf("round trip mismatch:\n%s", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		want string
	}{
		{
			name: "undefined_global",
			src:  "define void @f() {\nbb0:\n  call void @nope()\n  ret void\n}\n",
			line: 3,
			want: "undefined global @nope",
		},
		{
			name: "undefined_label",
			src:  "define void @f() {\nbb0:\n  br bb7\n}\n",
			line: 3,
			want: "undefined label bb7",
		},
		{
			name: "redefinition",
			src:  "declare void @f()\ndeclare void @f()\n",
			line: 2,
			want: "redefinition of @f",
		},
		{
			name: "bad_type",
			src:  "define i99 @f() {\nbb0:\n  unreachable\n}\n",
			line: 1,
			want: "expected type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ir.Parse("bad.mf", tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			var se *ir.SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("expected *ir.SyntaxError, got %T: %v", err, err)
			}
			if se.Line != tt.line {
				t.Errorf("line = %d, want %d (%v)", se.Line, tt.line, err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
			if !strings.HasPrefix(err.Error(), "bad.mf:") {
				t.Errorf("error %q lacks file position", err)
			}
		})
	}
}

func TestValidateReportsCallArity(t *testing.T) {
	src := `define i32 @inc(i32 %a0) {
bb0:
  ret i32 %a0
}

define i32 @bad() {
bb0:
  %v0 = call i32 @inc()
  ret i32 %v0
}
`
	m, err := ir.Parse("arity.mf", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	err = ir.Validate(m)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "function @bad") || !strings.Contains(msg, "0 arguments for 1 parameters") {
		t.Fatalf("unexpected error: %v", err)
	}
}
