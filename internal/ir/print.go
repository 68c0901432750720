package ir

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"funcmerge/internal/types"
)

// Print writes the text form of m. The output parses back to an equivalent
// module.
func Print(w io.Writer, m *Module) error {
	if w == nil || m == nil {
		return nil
	}
	bw := bufio.NewWriter(w)
	p := &printer{w: bw, m: m, unnamed: make(map[Global]int)}
	p.number()
	p.module()
	return bw.Flush()
}

// String renders m in text form.
func (m *Module) String() string {
	var sb strings.Builder
	if err := Print(&sb, m); err != nil {
		return fmt.Sprintf("<print error: %v>", err)
	}
	return sb.String()
}

type printer struct {
	w       *bufio.Writer
	m       *Module
	unnamed map[Global]int
}

func (p *printer) number() {
	n := 0
	for _, g := range p.m.Globals() {
		if g.Base().Name == "" {
			p.unnamed[g] = n
			n++
		}
	}
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) ty(id types.TypeID) string {
	return types.Label(p.m.Types, id)
}

func (p *printer) module() {
	p.printf("layout ptrbits=%d\n", p.m.Types.Layout().PointerBits)
	if len(p.m.Vars) > 0 {
		p.printf("\n")
	}
	for _, g := range p.m.Vars {
		p.globalVar(g)
	}
	if len(p.m.Aliases) > 0 {
		p.printf("\n")
	}
	for _, a := range p.m.Aliases {
		p.alias(a)
	}
	for _, f := range p.m.Funcs {
		p.printf("\n")
		p.fn(f)
	}
}

func (p *printer) globalName(g Global) string {
	name := g.Base().Name
	if name == "" {
		return "@" + strconv.Itoa(p.unnamed[g])
	}
	return "@" + quoteName(name)
}

// quoteName returns name bare when it lexes as an identifier and quoted
// otherwise.
func quoteName(name string) string {
	if isBareName(name) {
		return name
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range name {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}

func isBareName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == '.', c == '$':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func (p *printer) header(g *GlobalValue, omitExternal bool) {
	if g.Linkage != LinkageExternal || !omitExternal {
		p.printf(" %s", g.Linkage)
	}
	if g.Visibility != VisibilityDefault {
		p.printf(" %s", g.Visibility)
	}
	if g.UnnamedAddr != UnnamedAddrNone {
		p.printf(" %s", g.UnnamedAddr)
	}
}

func (p *printer) globalVar(g *GlobalVar) {
	p.printf("%s =", p.globalName(g))
	p.header(&g.GlobalValue, true)
	kw := "global"
	if g.Constant {
		kw = "constant"
	}
	p.printf(" %s %s", kw, p.ty(g.ValueType))
	if g.HasInit {
		p.printf(" %s", p.value(g.Init))
	}
	if g.Align != 0 {
		p.printf(", align %d", g.Align)
	}
	p.printf("\n")
}

func (p *printer) alias(a *Alias) {
	p.printf("%s =", p.globalName(a))
	p.header(&a.GlobalValue, true)
	p.printf(" alias %s, %s\n", p.ty(a.Type), p.value(a.Aliasee))
}

func (p *printer) fn(f *Func) {
	kw := "define"
	if f.IsDeclaration() {
		kw = "declare"
	}
	p.printf("%s", kw)
	p.header(&f.GlobalValue, true)
	if f.CallConv != CallConvC {
		p.printf(" %s", f.CallConv)
	}
	if f.Attrs.Ret != 0 {
		p.printf(" %s", f.Attrs.Ret)
	}
	info := f.FnInfo()
	if info == nil {
		p.printf(" ? %s()\n", p.globalName(f))
		return
	}
	p.printf(" %s %s(", p.ty(info.Result), p.globalName(f))
	for i, pt := range info.Params {
		if i > 0 {
			p.printf(", ")
		}
		p.printf("%s", p.ty(pt))
		if a := f.Attrs.Param(i); a != 0 {
			p.printf(" %s", a)
		}
		p.printf(" %%a%d", i)
	}
	if info.Variadic {
		if len(info.Params) > 0 {
			p.printf(", ")
		}
		p.printf("...")
	}
	p.printf(")")
	if f.Attrs.Fn != 0 {
		p.printf(" %s", f.Attrs.Fn)
	}
	if f.Align != 0 {
		p.printf(" align %d", f.Align)
	}
	if f.IsDeclaration() {
		p.printf("\n")
		return
	}
	p.printf(" {\n")
	// The entry block is printed first; the parser treats the first label as
	// the entry.
	if entry := f.EntryBlock(); entry != nil {
		p.block(entry)
	}
	for i := range f.Blocks {
		if f.Blocks[i].ID != f.Entry {
			p.block(&f.Blocks[i])
		}
	}
	p.printf("}\n")
}

func (p *printer) block(b *Block) {
	p.printf("bb%d:\n", b.ID)
	for i := range b.Instrs {
		p.printf("  %s\n", p.instr(&b.Instrs[i]))
	}
	p.printf("  %s\n", p.term(&b.Term))
}

func (p *printer) typed(v Value) string {
	return p.ty(v.Type) + " " + p.value(v)
}

func alignSuffix(align uint32) string {
	if align == 0 {
		return ""
	}
	return fmt.Sprintf(", align %d", align)
}

func (p *printer) instr(in *Instr) string {
	var sb strings.Builder
	if in.HasResult() {
		fmt.Fprintf(&sb, "%%v%d = ", in.ID)
	}
	switch in.Kind {
	case InstrBinary:
		fmt.Fprintf(&sb, "%s %s %s, %s", in.Binary.Op, p.ty(in.Binary.L.Type), p.value(in.Binary.L), p.value(in.Binary.R))
	case InstrICmp:
		fmt.Fprintf(&sb, "icmp %s %s %s, %s", in.ICmp.Pred, p.ty(in.ICmp.L.Type), p.value(in.ICmp.L), p.value(in.ICmp.R))
	case InstrCast:
		fmt.Fprintf(&sb, "%s %s to %s", in.Cast.Op, p.typed(in.Cast.Value), p.ty(in.Type))
	case InstrCall:
		p.call(&sb, in)
	case InstrLoad:
		sb.WriteString("load ")
		if in.Load.Volatile {
			sb.WriteString("volatile ")
		}
		fmt.Fprintf(&sb, "%s, %s%s", p.ty(in.Type), p.typed(in.Load.Ptr), alignSuffix(in.Load.Align))
	case InstrStore:
		sb.WriteString("store ")
		if in.Store.Volatile {
			sb.WriteString("volatile ")
		}
		fmt.Fprintf(&sb, "%s, %s%s", p.typed(in.Store.Value), p.typed(in.Store.Ptr), alignSuffix(in.Store.Align))
	case InstrAlloca:
		fmt.Fprintf(&sb, "alloca %s%s", p.ty(in.Alloca.Elem), alignSuffix(in.Alloca.Align))
	case InstrExtractValue:
		fmt.Fprintf(&sb, "extractvalue %s, %d", p.typed(in.ExtractValue.Agg), in.ExtractValue.Index)
	case InstrInsertValue:
		fmt.Fprintf(&sb, "insertvalue %s, %s, %d", p.typed(in.InsertValue.Agg), p.typed(in.InsertValue.Elem), in.InsertValue.Index)
	case InstrSelect:
		fmt.Fprintf(&sb, "select %s, %s, %s", p.typed(in.Select.Cond), p.typed(in.Select.Then), p.typed(in.Select.Else))
	case InstrPhi:
		fmt.Fprintf(&sb, "phi %s ", p.ty(in.Type))
		for i, inc := range in.Phi.Incoming {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "[%s, bb%d]", p.value(inc.Value), inc.Block)
		}
	default:
		fmt.Fprintf(&sb, "<%s>", in.Kind)
	}
	return sb.String()
}

func (p *printer) call(sb *strings.Builder, in *Instr) {
	c := &in.Call
	if c.Tail {
		sb.WriteString("tail ")
	}
	sb.WriteString("call ")
	if c.CallConv != CallConvC {
		fmt.Fprintf(sb, "%s ", c.CallConv)
	}
	if c.Attrs.Ret != 0 {
		fmt.Fprintf(sb, "%s ", c.Attrs.Ret)
	}
	fnTy, info, ok := p.m.Types.PointeeFn(c.Callee.Type)
	switch {
	case !ok:
		fmt.Fprintf(sb, "%s ", p.ty(in.Type))
	case c.Callee.Kind == ValueGlobal && !info.Variadic:
		fmt.Fprintf(sb, "%s ", p.ty(info.Result))
	default:
		// Spell out the callee's function type when it cannot be recovered
		// from the callee and arguments alone.
		fmt.Fprintf(sb, "%s ", p.ty(fnTy))
	}
	sb.WriteString(p.value(c.Callee))
	sb.WriteString("(")
	for i, a := range c.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.ty(a.Type))
		if attr := c.Attrs.Param(i); attr != 0 {
			fmt.Fprintf(sb, " %s", attr)
		}
		sb.WriteString(" ")
		sb.WriteString(p.value(a))
	}
	sb.WriteString(")")
	if c.Attrs.Fn != 0 {
		fmt.Fprintf(sb, " %s", c.Attrs.Fn)
	}
}

func (p *printer) term(t *Terminator) string {
	switch t.Kind {
	case TermRet:
		if !t.Ret.HasValue {
			return "ret void"
		}
		return "ret " + p.typed(t.Ret.Value)
	case TermBr:
		return fmt.Sprintf("br bb%d", t.Br.Target)
	case TermCondBr:
		return fmt.Sprintf("br %s, bb%d, bb%d", p.typed(t.CondBr.Cond), t.CondBr.Then, t.CondBr.Else)
	case TermSwitch:
		var sb strings.Builder
		fmt.Fprintf(&sb, "switch %s, bb%d [", p.typed(t.Switch.Value), t.Switch.Default)
		for _, c := range t.Switch.Cases {
			fmt.Fprintf(&sb, " %s, bb%d", p.value(c.Value), c.Target)
		}
		sb.WriteString(" ]")
		return sb.String()
	case TermUnreachable:
		return "unreachable"
	default:
		return "<unterminated>"
	}
}

func (p *printer) value(v Value) string {
	switch v.Kind {
	case ValueArg:
		return fmt.Sprintf("%%a%d", v.Arg)
	case ValueInstr:
		return fmt.Sprintf("%%v%d", v.Instr)
	case ValueGlobal:
		return p.globalName(v.Global)
	case ValueConst:
		return p.constant(v.Const)
	default:
		return "<none>"
	}
}

func (p *printer) constant(id ConstID) string {
	c := p.m.Const(id)
	if c == nil {
		return fmt.Sprintf("<const #%d>", id)
	}
	switch c.Kind {
	case ConstInt:
		if tt, ok := p.m.Types.Lookup(c.Type); ok && tt.Width == types.Width1 {
			if c.Int != 0 {
				return "true"
			}
			return "false"
		}
		return strconv.FormatInt(c.SignedInt(p.m.Types), 10)
	case ConstFloat:
		return formatFloat(c.Float)
	case ConstNull:
		return "null"
	case ConstUndef:
		return "undef"
	case ConstZero:
		return "zeroinitializer"
	case ConstStruct, ConstArray:
		open, closing := "[", "]"
		if c.Kind == ConstStruct {
			open, closing = "{", "}"
			if tt, ok := p.m.Types.Lookup(c.Type); ok && tt.Packed {
				open, closing = "<{", "}>"
			}
		}
		parts := make([]string, len(c.Elems))
		for i, e := range c.Elems {
			parts[i] = p.typed(e)
		}
		return open + " " + strings.Join(parts, ", ") + " " + closing
	case ConstCast:
		return fmt.Sprintf("%s (%s to %s)", c.Cast, p.typed(c.Operand), p.ty(c.Type))
	default:
		return "<const>"
	}
}

// formatFloat prints finite values in decimal and everything else as raw
// IEEE bits.
func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Sprintf("0x%016X", math.Float64bits(f))
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
