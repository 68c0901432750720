package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"funcmerge/internal/types"
)

// Parse reads a module in text form. name becomes the module name and is
// used as the file name in errors.
func Parse(name, src string) (*Module, error) {
	toks, err := lex(name, src)
	if err != nil {
		return nil, err
	}
	p := &parser{file: name, toks: toks, unnamed: make(map[string]Global)}
	if err := p.parseHeaders(name); err != nil {
		return nil, err
	}
	if err := p.parseBodies(); err != nil {
		return nil, err
	}
	return p.m, nil
}

type pendingGlobal struct {
	g      Global
	start  int
	params []string
}

type parser struct {
	file    string
	toks    []token
	pos     int
	m       *Module
	unnamed map[string]Global
	pending []pendingGlobal
}

// fnState holds the local namespaces of the function being parsed.
type fnState struct {
	f      *Func
	labels map[string]BlockID
	locals map[string]InstrID
	params map[string]int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{File: p.file, Line: t.line, Col: t.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) at(text string) bool {
	t := p.peek()
	return (t.kind == tokPunct || t.kind == tokIdent) && t.text == text
}

func (p *parser) accept(text string) bool {
	if p.at(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		return p.errorf(p.peek(), "expected %q, found %s", text, p.peek())
	}
	return nil
}

func (p *parser) expectKind(kind tokKind) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s, found %s", kind, t)
	}
	p.pos++
	return t, nil
}

func (p *parser) parseUint32() (uint32, error) {
	t, err := p.expectKind(tokNumber)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(t.text, 0, 32)
	if err != nil {
		return 0, p.errorf(t, "invalid number %s", t.text)
	}
	return uint32(n), nil
}

// atTopLevel reports whether the cursor starts a new module-level entity.
func (p *parser) atTopLevel() bool {
	t := p.peek()
	switch t.kind {
	case tokEOF:
		return true
	case tokIdent:
		return t.text == "define" || t.text == "declare"
	case tokGlobal:
		nx := p.peekAt(1)
		return nx.kind == tokPunct && nx.text == "="
	}
	return false
}

func (p *parser) skipToTopLevel() {
	depth := 0
	for {
		if depth == 0 && p.atTopLevel() {
			return
		}
		t := p.next()
		if t.kind == tokEOF {
			return
		}
		if t.kind == tokPunct {
			switch t.text {
			case "(", "[", "{", "<":
				depth++
			case ")", "]", "}", ">":
				depth--
			}
		}
	}
}

// skipBalanced consumes an opener and everything up to its partner.
func (p *parser) skipBalanced() error {
	open := p.next()
	depth := 1
	for depth > 0 {
		t := p.next()
		if t.kind == tokEOF {
			return p.errorf(open, "unbalanced %q", open.text)
		}
		if t.kind == tokPunct {
			switch t.text {
			case "(", "[", "{", "<":
				depth++
			case ")", "]", "}", ">":
				depth--
			}
		}
	}
	return nil
}

func isNumericName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// declareGlobal names g after t, or binds it to an unnamed slot for @N.
func (p *parser) declareGlobal(t token, g Global) error {
	if !t.quoted && isNumericName(t.text) {
		if _, dup := p.unnamed[t.text]; dup {
			return p.errorf(t, "redefinition of @%s", t.text)
		}
		p.unnamed[t.text] = g
		return nil
	}
	p.m.SetName(g, norm.NFC.String(t.text))
	return nil
}

func (p *parser) checkFresh(t token) error {
	if !t.quoted && isNumericName(t.text) {
		if _, dup := p.unnamed[t.text]; dup {
			return p.errorf(t, "redefinition of @%s", t.text)
		}
		return nil
	}
	if p.m.Lookup(norm.NFC.String(t.text)) != nil {
		return p.errorf(t, "redefinition of @%s", t.text)
	}
	return nil
}

func (p *parser) resolveGlobal(t token) (Global, error) {
	var g Global
	if !t.quoted && isNumericName(t.text) {
		g = p.unnamed[t.text]
	} else {
		g = p.m.Lookup(norm.NFC.String(t.text))
	}
	if g == nil {
		return nil, p.errorf(t, "undefined global @%s", t.text)
	}
	return g, nil
}

// Headers ---------------------------------------------------------------

func (p *parser) parseHeaders(name string) error {
	layout := types.DefaultLayout
	if p.at("layout") {
		p.next()
		if err := p.expect("ptrbits"); err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		t := p.peek()
		bits, err := p.parseUint32()
		if err != nil {
			return err
		}
		if bits != 16 && bits != 32 && bits != 64 {
			return p.errorf(t, "unsupported pointer width %d", bits)
		}
		layout.PointerBits = types.Width(bits)
	}
	p.m = NewModule(name, types.NewInternerWithLayout(layout))

	for p.peek().kind != tokEOF {
		t := p.peek()
		var err error
		switch {
		case t.kind == tokGlobal:
			err = p.parseGlobalHeader()
		case t.kind == tokIdent && (t.text == "define" || t.text == "declare"):
			err = p.parseFuncHeader()
		default:
			err = p.errorf(t, "expected global or function, found %s", t)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseGlobalFlags(g *GlobalValue) {
	for {
		t := p.peek()
		if t.kind != tokIdent {
			return
		}
		if l, ok := ParseLinkage(t.text); ok {
			g.Linkage = l
		} else if v, ok := parseVisibility(t.text); ok {
			g.Visibility = v
		} else if u, ok := parseUnnamedAddr(t.text); ok {
			g.UnnamedAddr = u
		} else {
			return
		}
		p.pos++
	}
}

func parseVisibility(s string) (Visibility, bool) {
	switch s {
	case "default":
		return VisibilityDefault, true
	case "hidden":
		return VisibilityHidden, true
	case "protected":
		return VisibilityProtected, true
	}
	return VisibilityDefault, false
}

func parseUnnamedAddr(s string) (UnnamedAddr, bool) {
	switch s {
	case "unnamed_addr":
		return UnnamedAddrGlobal, true
	case "local_unnamed_addr":
		return UnnamedAddrLocal, true
	}
	return UnnamedAddrNone, false
}

func parseCallConv(s string) (CallConv, bool) {
	switch s {
	case "ccc":
		return CallConvC, true
	case "fastcc":
		return CallConvFast, true
	case "coldcc":
		return CallConvCold, true
	}
	if rest, ok := strings.CutPrefix(s, "cc"); ok && isNumericName(rest) {
		n, err := strconv.ParseUint(rest, 10, 16)
		if err == nil {
			return CallConv(n), true
		}
	}
	return CallConvC, false
}

func (p *parser) parseAttrs() Attr {
	var a Attr
	for p.peek().kind == tokIdent {
		bit, ok := ParseAttr(p.peek().text)
		if !ok {
			break
		}
		a |= bit
		p.pos++
	}
	return a
}

func (p *parser) parseGlobalHeader() error {
	nameTok := p.next()
	if err := p.checkFresh(nameTok); err != nil {
		return err
	}
	if err := p.expect("="); err != nil {
		return err
	}
	var hdr GlobalValue
	p.parseGlobalFlags(&hdr)
	kw, err := p.expectKind(tokIdent)
	if err != nil {
		return err
	}
	switch kw.text {
	case "alias":
		ty, err := p.parseType()
		if err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		a := p.m.NewAlias("", ty, hdr.Linkage, Value{})
		a.Visibility, a.UnnamedAddr = hdr.Visibility, hdr.UnnamedAddr
		if err := p.declareGlobal(nameTok, a); err != nil {
			return err
		}
		p.pending = append(p.pending, pendingGlobal{g: a, start: p.pos})
	case "global", "constant":
		ty, err := p.parseType()
		if err != nil {
			return err
		}
		g := p.m.NewGlobalVar("", ty, hdr.Linkage)
		g.Visibility, g.UnnamedAddr = hdr.Visibility, hdr.UnnamedAddr
		g.Constant = kw.text == "constant"
		if err := p.declareGlobal(nameTok, g); err != nil {
			return err
		}
		p.pending = append(p.pending, pendingGlobal{g: g, start: p.pos})
	default:
		return p.errorf(kw, "expected global, constant or alias, found %s", kw)
	}
	p.skipToTopLevel()
	return nil
}

func (p *parser) parseFuncHeader() error {
	kw := p.next()
	var hdr GlobalValue
	p.parseGlobalFlags(&hdr)
	cc := CallConvC
	if t := p.peek(); t.kind == tokIdent {
		if c, ok := parseCallConv(t.text); ok {
			cc = c
			p.pos++
		}
	}
	var attrs AttrList
	attrs.Ret = p.parseAttrs()
	ret, err := p.parseType()
	if err != nil {
		return err
	}
	nameTok, err := p.expectKind(tokGlobal)
	if err != nil {
		return err
	}
	if err := p.checkFresh(nameTok); err != nil {
		return err
	}
	if err := p.expect("("); err != nil {
		return err
	}
	var (
		params   []types.TypeID
		names    []string
		variadic bool
	)
	for !p.accept(")") {
		if len(params) > 0 || variadic {
			if err := p.expect(","); err != nil {
				return err
			}
		}
		if p.accept("...") {
			variadic = true
			continue
		}
		if variadic {
			return p.errorf(p.peek(), "parameter after ...")
		}
		ty, err := p.parseType()
		if err != nil {
			return err
		}
		attrs.AddParam(len(params), p.parseAttrs())
		pname := ""
		if t := p.peek(); t.kind == tokLocal {
			pname = norm.NFC.String(t.text)
			p.pos++
		}
		params = append(params, ty)
		names = append(names, pname)
	}
	attrs.Fn = p.parseAttrs()
	var align uint32
	if p.accept("align") {
		if align, err = p.parseUint32(); err != nil {
			return err
		}
	}
	sig := p.m.Types.RegisterFn(params, ret, variadic)
	f := p.m.NewFunc("", sig, hdr.Linkage)
	f.Visibility, f.UnnamedAddr = hdr.Visibility, hdr.UnnamedAddr
	f.CallConv = cc
	f.Attrs = attrs
	f.Align = align
	if err := p.declareGlobal(nameTok, f); err != nil {
		return err
	}
	if kw.text == "declare" {
		return nil
	}
	if !p.at("{") {
		return p.errorf(p.peek(), "expected function body, found %s", p.peek())
	}
	p.pending = append(p.pending, pendingGlobal{g: f, start: p.pos, params: names})
	return p.skipBalanced()
}

// Bodies ----------------------------------------------------------------

func (p *parser) parseBodies() error {
	for _, pg := range p.pending {
		p.pos = pg.start
		var err error
		switch g := pg.g.(type) {
		case *GlobalVar:
			err = p.parseVarInit(g)
		case *Alias:
			g.Aliasee, err = p.parseValue(nil, g.Type)
		case *Func:
			err = p.parseBody(g, pg.params)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseVarInit(g *GlobalVar) error {
	if !p.at(",") && !p.atTopLevel() {
		v, err := p.parseValue(nil, g.ValueType)
		if err != nil {
			return err
		}
		g.Init, g.HasInit = v, true
	}
	if p.accept(",") {
		if err := p.expect("align"); err != nil {
			return err
		}
		align, err := p.parseUint32()
		if err != nil {
			return err
		}
		g.Align = align
	}
	if !p.atTopLevel() {
		return p.errorf(p.peek(), "unexpected %s after global", p.peek())
	}
	return nil
}

func (p *parser) parseBody(f *Func, paramNames []string) error {
	open := p.next() // {
	start := p.pos
	p.pos--
	if err := p.skipBalanced(); err != nil {
		return err
	}
	end := p.pos - 1 // index of the closing }

	fs := &fnState{
		f:      f,
		labels: make(map[string]BlockID),
		locals: make(map[string]InstrID),
		params: make(map[string]int),
	}
	for i, n := range paramNames {
		if n == "" {
			continue
		}
		if _, dup := fs.params[n]; dup {
			return p.errorf(open, "duplicate parameter name %%%s", n)
		}
		fs.params[n] = i
	}

	// Blocks and result names are numbered up front so forward references
	// resolve in one pass.
	if start < end && !(p.toks[start].kind == tokIdent && p.toks[start+1].text == ":") {
		f.NewBlock()
	}
	for i := start; i < end; i++ {
		t := p.toks[i]
		nx := p.toks[i+1]
		if nx.kind != tokPunct {
			continue
		}
		switch {
		case t.kind == tokIdent && nx.text == ":":
			if _, dup := fs.labels[t.text]; dup {
				return p.errorf(t, "duplicate label %s", t.text)
			}
			fs.labels[t.text] = f.NewBlock()
		case t.kind == tokLocal && nx.text == "=":
			name := norm.NFC.String(t.text)
			if _, dup := fs.locals[name]; dup {
				return p.errorf(t, "redefinition of %%%s", t.text)
			}
			if _, clash := fs.params[name]; clash {
				return p.errorf(t, "%%%s redefines a parameter", t.text)
			}
			fs.locals[name] = f.NewInstrID()
		}
	}
	if len(f.Blocks) == 0 {
		return p.errorf(open, "function @%s has an empty body", f.Name)
	}

	p.pos = start
	cur := f.Entry
	for p.pos < end {
		t := p.peek()
		if t.kind == tokIdent && p.peekAt(1).text == ":" {
			cur = fs.labels[t.text]
			p.pos += 2
			continue
		}
		blk := f.Block(cur)
		if blk.Terminated() {
			return p.errorf(t, "instruction after terminator in %s", blockName(fs, cur))
		}
		if t.kind == tokLocal && p.peekAt(1).text == "=" {
			p.pos += 2
			in, err := p.parseInstr(fs)
			if err != nil {
				return err
			}
			if !in.HasResult() {
				return p.errorf(t, "%%%s names an instruction without a result", t.text)
			}
			in.ID = fs.locals[norm.NFC.String(t.text)]
			blk.Instrs = append(blk.Instrs, in)
			continue
		}
		if t.kind == tokIdent {
			switch t.text {
			case "ret", "br", "switch", "unreachable":
				term, err := p.parseTerm(fs)
				if err != nil {
					return err
				}
				blk.Term = term
				continue
			}
		}
		in, err := p.parseInstr(fs)
		if err != nil {
			return err
		}
		in.ID = f.NewInstrID()
		blk.Instrs = append(blk.Instrs, in)
	}
	for i := range f.Blocks {
		if !f.Blocks[i].Terminated() {
			return p.errorf(open, "block %s of @%s is not terminated", blockName(fs, BlockID(i)), f.Name) //nolint:gosec // G115: bounded by block count
		}
	}
	p.pos = end + 1
	return nil
}

func blockName(fs *fnState, id BlockID) string {
	for name, b := range fs.labels {
		if b == id {
			return name
		}
	}
	return fmt.Sprintf("bb%d", id)
}

func (p *parser) parseLabel(fs *fnState) (BlockID, error) {
	t, err := p.expectKind(tokIdent)
	if err != nil {
		return NoBlockID, err
	}
	id, ok := fs.labels[t.text]
	if !ok {
		return NoBlockID, p.errorf(t, "undefined label %s", t.text)
	}
	return id, nil
}

func (p *parser) parseAlign() (uint32, error) {
	if p.at(",") && p.peekAt(1).text == "align" {
		p.pos += 2
		return p.parseUint32()
	}
	return 0, nil
}

func (p *parser) parseIndex() (int, error) {
	t, err := p.expectKind(tokNumber)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(t.text)
	if err != nil || n < 0 {
		return 0, p.errorf(t, "invalid index %s", t.text)
	}
	return n, nil
}

func (p *parser) parseInstr(fs *fnState) (Instr, error) {
	t, err := p.expectKind(tokIdent)
	if err != nil {
		return Instr{}, err
	}
	typesIn := p.m.Types
	if op, ok := ParseBinOp(t.text); ok {
		ty, err := p.parseType()
		if err != nil {
			return Instr{}, err
		}
		l, r, err := p.parsePair(fs, ty)
		if err != nil {
			return Instr{}, err
		}
		return Instr{Kind: InstrBinary, Type: ty, Binary: BinaryInstr{Op: op, L: l, R: r}}, nil
	}
	if op, ok := ParseCastOp(t.text); ok {
		v, err := p.parseTyped(fs)
		if err != nil {
			return Instr{}, err
		}
		if err := p.expect("to"); err != nil {
			return Instr{}, err
		}
		to, err := p.parseType()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Kind: InstrCast, Type: to, Cast: CastInstr{Op: op, Value: v}}, nil
	}
	switch t.text {
	case "icmp":
		pt, err := p.expectKind(tokIdent)
		if err != nil {
			return Instr{}, err
		}
		pred, ok := ParseICmpPred(pt.text)
		if !ok {
			return Instr{}, p.errorf(pt, "unknown icmp predicate %s", pt.text)
		}
		ty, err := p.parseType()
		if err != nil {
			return Instr{}, err
		}
		l, r, err := p.parsePair(fs, ty)
		if err != nil {
			return Instr{}, err
		}
		return Instr{Kind: InstrICmp, Type: typesIn.Builtins().I1, ICmp: ICmpInstr{Pred: pred, L: l, R: r}}, nil
	case "tail":
		if err := p.expect("call"); err != nil {
			return Instr{}, err
		}
		return p.parseCall(fs, true)
	case "call":
		return p.parseCall(fs, false)
	case "load":
		volatile := p.accept("volatile")
		ty, err := p.parseType()
		if err != nil {
			return Instr{}, err
		}
		if err := p.expect(","); err != nil {
			return Instr{}, err
		}
		ptr, err := p.parseTyped(fs)
		if err != nil {
			return Instr{}, err
		}
		align, err := p.parseAlign()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Kind: InstrLoad, Type: ty, Load: LoadInstr{Ptr: ptr, Align: align, Volatile: volatile}}, nil
	case "store":
		volatile := p.accept("volatile")
		v, err := p.parseTyped(fs)
		if err != nil {
			return Instr{}, err
		}
		if err := p.expect(","); err != nil {
			return Instr{}, err
		}
		ptr, err := p.parseTyped(fs)
		if err != nil {
			return Instr{}, err
		}
		align, err := p.parseAlign()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Kind: InstrStore, Store: StoreInstr{Value: v, Ptr: ptr, Align: align, Volatile: volatile}}, nil
	case "alloca":
		elem, err := p.parseType()
		if err != nil {
			return Instr{}, err
		}
		align, err := p.parseAlign()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Kind: InstrAlloca, Type: typesIn.Pointer(elem), Alloca: AllocaInstr{Elem: elem, Align: align}}, nil
	case "extractvalue":
		agg, err := p.parseTyped(fs)
		if err != nil {
			return Instr{}, err
		}
		if err := p.expect(","); err != nil {
			return Instr{}, err
		}
		it := p.peek()
		idx, err := p.parseIndex()
		if err != nil {
			return Instr{}, err
		}
		elem, ok := typesIn.ElemAt(agg.Type, idx)
		if !ok {
			return Instr{}, p.errorf(it, "index %d out of range for %s", idx, types.Label(typesIn, agg.Type))
		}
		return Instr{Kind: InstrExtractValue, Type: elem, ExtractValue: ExtractValueInstr{Agg: agg, Index: idx}}, nil
	case "insertvalue":
		agg, err := p.parseTyped(fs)
		if err != nil {
			return Instr{}, err
		}
		if err := p.expect(","); err != nil {
			return Instr{}, err
		}
		elem, err := p.parseTyped(fs)
		if err != nil {
			return Instr{}, err
		}
		if err := p.expect(","); err != nil {
			return Instr{}, err
		}
		idx, err := p.parseIndex()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Kind: InstrInsertValue, Type: agg.Type, InsertValue: InsertValueInstr{Agg: agg, Elem: elem, Index: idx}}, nil
	case "select":
		vals := make([]Value, 3)
		for i := range vals {
			if i > 0 {
				if err := p.expect(","); err != nil {
					return Instr{}, err
				}
			}
			if vals[i], err = p.parseTyped(fs); err != nil {
				return Instr{}, err
			}
		}
		return Instr{Kind: InstrSelect, Type: vals[1].Type, Select: SelectInstr{Cond: vals[0], Then: vals[1], Else: vals[2]}}, nil
	case "phi":
		ty, err := p.parseType()
		if err != nil {
			return Instr{}, err
		}
		var incoming []PhiIncoming
		for {
			if err := p.expect("["); err != nil {
				return Instr{}, err
			}
			v, err := p.parseValue(fs, ty)
			if err != nil {
				return Instr{}, err
			}
			if err := p.expect(","); err != nil {
				return Instr{}, err
			}
			b, err := p.parseLabel(fs)
			if err != nil {
				return Instr{}, err
			}
			if err := p.expect("]"); err != nil {
				return Instr{}, err
			}
			incoming = append(incoming, PhiIncoming{Value: v, Block: b})
			if !p.accept(",") {
				break
			}
		}
		return Instr{Kind: InstrPhi, Type: ty, Phi: PhiInstr{Incoming: incoming}}, nil
	}
	return Instr{}, p.errorf(t, "unknown instruction %s", t.text)
}

func (p *parser) parsePair(fs *fnState, ty types.TypeID) (Value, Value, error) {
	l, err := p.parseValue(fs, ty)
	if err != nil {
		return Value{}, Value{}, err
	}
	if err := p.expect(","); err != nil {
		return Value{}, Value{}, err
	}
	r, err := p.parseValue(fs, ty)
	if err != nil {
		return Value{}, Value{}, err
	}
	return l, r, nil
}

// skipValue steps over one untyped value without interpreting it.
func (p *parser) skipValue() error {
	t := p.peek()
	switch {
	case t.kind == tokPunct && (t.text == "{" || t.text == "[" || t.text == "<"):
		return p.skipBalanced()
	case t.kind == tokIdent:
		p.pos++
		if _, ok := ParseCastOp(t.text); ok && p.at("(") {
			return p.skipBalanced()
		}
		return nil
	case t.kind == tokEOF:
		return p.errorf(t, "expected value, found end of input")
	default:
		p.pos++
		return nil
	}
}

func (p *parser) parseCall(fs *fnState, tail bool) (Instr, error) {
	typesIn := p.m.Types
	call := CallInstr{Tail: tail}
	if t := p.peek(); t.kind == tokIdent {
		if c, ok := parseCallConv(t.text); ok {
			call.CallConv = c
			p.pos++
		}
	}
	call.Attrs.Ret = p.parseAttrs()
	tyTok := p.peek()
	ty, err := p.parseType()
	if err != nil {
		return Instr{}, err
	}
	fnTy := types.NoTypeID
	if typesIn.Kind(ty) == types.KindFn {
		fnTy = ty
	}

	calleeStart := p.pos
	if err := p.skipValue(); err != nil {
		return Instr{}, err
	}
	if err := p.expect("("); err != nil {
		return Instr{}, err
	}
	var argTypes []types.TypeID
	for !p.accept(")") {
		if len(call.Args) > 0 {
			if err := p.expect(","); err != nil {
				return Instr{}, err
			}
		}
		aty, err := p.parseType()
		if err != nil {
			return Instr{}, err
		}
		call.Attrs.AddParam(len(call.Args), p.parseAttrs())
		v, err := p.parseValue(fs, aty)
		if err != nil {
			return Instr{}, err
		}
		call.Args = append(call.Args, v)
		argTypes = append(argTypes, aty)
	}
	call.Attrs.Fn = p.parseAttrs()
	resume := p.pos

	p.pos = calleeStart
	calleeTok := p.peek()
	if calleeTok.kind == tokGlobal && fnTy == types.NoTypeID {
		g, err := p.resolveGlobal(calleeTok)
		if err != nil {
			return Instr{}, err
		}
		call.Callee = GlobalRef(g)
		p.pos++
	} else {
		if fnTy == types.NoTypeID {
			fnTy = typesIn.RegisterFn(argTypes, ty, false)
		}
		if call.Callee, err = p.parseValue(fs, typesIn.Pointer(fnTy)); err != nil {
			return Instr{}, err
		}
	}
	p.pos = resume

	_, info, ok := typesIn.PointeeFn(call.Callee.Type)
	if !ok {
		return Instr{}, p.errorf(calleeTok, "callee has non-function type %s", types.Label(typesIn, call.Callee.Type))
	}
	if typesIn.Kind(ty) != types.KindFn && info.Result != ty {
		return Instr{}, p.errorf(tyTok, "call returns %s but callee returns %s", types.Label(typesIn, ty), types.Label(typesIn, info.Result))
	}
	result := info.Result
	if typesIn.IsVoid(result) {
		result = types.NoTypeID
	}
	return Instr{Kind: InstrCall, Type: result, Call: call}, nil
}

func (p *parser) parseTerm(fs *fnState) (Terminator, error) {
	t := p.next()
	switch t.text {
	case "ret":
		if p.accept("void") {
			return Terminator{Kind: TermRet}, nil
		}
		v, err := p.parseTyped(fs)
		if err != nil {
			return Terminator{}, err
		}
		return Terminator{Kind: TermRet, Ret: RetTerm{HasValue: true, Value: v}}, nil
	case "br":
		if nx := p.peek(); nx.kind == tokIdent && !isTypeKeyword(nx.text) {
			target, err := p.parseLabel(fs)
			if err != nil {
				return Terminator{}, err
			}
			return Terminator{Kind: TermBr, Br: BrTerm{Target: target}}, nil
		}
		cond, err := p.parseTyped(fs)
		if err != nil {
			return Terminator{}, err
		}
		if err := p.expect(","); err != nil {
			return Terminator{}, err
		}
		then, err := p.parseLabel(fs)
		if err != nil {
			return Terminator{}, err
		}
		if err := p.expect(","); err != nil {
			return Terminator{}, err
		}
		els, err := p.parseLabel(fs)
		if err != nil {
			return Terminator{}, err
		}
		return Terminator{Kind: TermCondBr, CondBr: CondBrTerm{Cond: cond, Then: then, Else: els}}, nil
	case "switch":
		v, err := p.parseTyped(fs)
		if err != nil {
			return Terminator{}, err
		}
		if err := p.expect(","); err != nil {
			return Terminator{}, err
		}
		def, err := p.parseLabel(fs)
		if err != nil {
			return Terminator{}, err
		}
		if err := p.expect("["); err != nil {
			return Terminator{}, err
		}
		var cases []SwitchCase
		for !p.accept("]") {
			c, err := p.parseValue(fs, v.Type)
			if err != nil {
				return Terminator{}, err
			}
			if err := p.expect(","); err != nil {
				return Terminator{}, err
			}
			target, err := p.parseLabel(fs)
			if err != nil {
				return Terminator{}, err
			}
			cases = append(cases, SwitchCase{Value: c, Target: target})
		}
		return Terminator{Kind: TermSwitch, Switch: SwitchTerm{Value: v, Default: def, Cases: cases}}, nil
	default:
		return Terminator{Kind: TermUnreachable}, nil
	}
}

// Values ----------------------------------------------------------------

func (p *parser) parseTyped(fs *fnState) (Value, error) {
	ty, err := p.parseType()
	if err != nil {
		return Value{}, err
	}
	return p.parseValue(fs, ty)
}

// parseValue reads an untyped value whose type is ty. fs is nil outside
// function bodies.
func (p *parser) parseValue(fs *fnState, ty types.TypeID) (Value, error) {
	typesIn := p.m.Types
	t := p.next()
	switch t.kind {
	case tokLocal:
		if fs == nil {
			return Value{}, p.errorf(t, "local %%%s outside a function", t.text)
		}
		name := norm.NFC.String(t.text)
		if i, ok := fs.params[name]; ok {
			return ArgValue(i, ty), nil
		}
		if id, ok := fs.locals[name]; ok {
			return Value{Kind: ValueInstr, Type: ty, Instr: id}, nil
		}
		return Value{}, p.errorf(t, "undefined local %%%s", t.text)
	case tokGlobal:
		g, err := p.resolveGlobal(t)
		if err != nil {
			return Value{}, err
		}
		v := GlobalRef(g)
		if v.Type != ty {
			return Value{}, p.errorf(t, "@%s has type %s, expected %s", t.text, types.Label(typesIn, v.Type), types.Label(typesIn, ty))
		}
		return v, nil
	case tokNumber:
		return p.parseNumber(t, ty)
	case tokIdent:
		return p.parseKeywordValue(fs, t, ty)
	case tokPunct:
		return p.parseAggregate(fs, t, ty)
	}
	return Value{}, p.errorf(t, "expected value, found %s", t)
}

func (p *parser) parseNumber(t token, ty types.TypeID) (Value, error) {
	typesIn := p.m.Types
	switch typesIn.Kind(ty) {
	case types.KindInt:
		if n, err := strconv.ParseInt(t.text, 0, 64); err == nil {
			return p.m.ConstInt(ty, n), nil
		}
		u, err := strconv.ParseUint(t.text, 0, 64)
		if err != nil {
			return Value{}, p.errorf(t, "invalid integer %s", t.text)
		}
		return p.m.ConstInt(ty, int64(u)), nil //nolint:gosec // G115: two's complement bits
	case types.KindFloat:
		if strings.HasPrefix(t.text, "0x") || strings.HasPrefix(t.text, "0X") {
			bits, err := strconv.ParseUint(t.text[2:], 16, 64)
			if err != nil {
				return Value{}, p.errorf(t, "invalid float bits %s", t.text)
			}
			return p.m.ConstFloat(ty, math.Float64frombits(bits)), nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Value{}, p.errorf(t, "invalid float %s", t.text)
		}
		return p.m.ConstFloat(ty, f), nil
	}
	return Value{}, p.errorf(t, "numeric literal for non-numeric type %s", types.Label(typesIn, ty))
}

func (p *parser) parseKeywordValue(fs *fnState, t token, ty types.TypeID) (Value, error) {
	typesIn := p.m.Types
	switch t.text {
	case "true", "false":
		if ty != typesIn.Builtins().I1 {
			return Value{}, p.errorf(t, "%s requires i1, found %s", t.text, types.Label(typesIn, ty))
		}
		var n int64
		if t.text == "true" {
			n = 1
		}
		return p.m.ConstInt(ty, n), nil
	case "null":
		if typesIn.Kind(ty) != types.KindPointer {
			return Value{}, p.errorf(t, "null requires a pointer type, found %s", types.Label(typesIn, ty))
		}
		return p.m.Null(ty), nil
	case "undef":
		return p.m.Undef(ty), nil
	case "zeroinitializer":
		return p.m.Zero(ty), nil
	}
	op, ok := ParseCastOp(t.text)
	if !ok {
		return Value{}, p.errorf(t, "expected value, found %s", t)
	}
	if err := p.expect("("); err != nil {
		return Value{}, err
	}
	v, err := p.parseTyped(fs)
	if err != nil {
		return Value{}, err
	}
	if err := p.expect("to"); err != nil {
		return Value{}, err
	}
	to, err := p.parseType()
	if err != nil {
		return Value{}, err
	}
	if err := p.expect(")"); err != nil {
		return Value{}, err
	}
	if !v.IsConstant() {
		return Value{}, p.errorf(t, "constant %s of a non-constant operand", op)
	}
	if to != ty {
		return Value{}, p.errorf(t, "%s yields %s, expected %s", op, types.Label(typesIn, to), types.Label(typesIn, ty))
	}
	return p.m.ConstCast(op, v, to), nil
}

func (p *parser) parseAggregate(fs *fnState, t token, ty types.TypeID) (Value, error) {
	typesIn := p.m.Types
	closer := ""
	switch t.text {
	case "{":
		closer = "}"
	case "[":
		closer = "]"
	case "<":
		if err := p.expect("{"); err != nil {
			return Value{}, err
		}
		closer = "}"
	default:
		return Value{}, p.errorf(t, "expected value, found %s", t)
	}
	wantKind := types.KindStruct
	if t.text == "[" {
		wantKind = types.KindArray
	}
	if typesIn.Kind(ty) != wantKind {
		return Value{}, p.errorf(t, "aggregate literal for %s", types.Label(typesIn, ty))
	}
	var elems []Value
	for !p.accept(closer) {
		if len(elems) > 0 {
			if err := p.expect(","); err != nil {
				return Value{}, err
			}
		}
		v, err := p.parseTyped(fs)
		if err != nil {
			return Value{}, err
		}
		if !v.IsConstant() {
			return Value{}, p.errorf(t, "aggregate element is not a constant")
		}
		elems = append(elems, v)
	}
	if t.text == "<" {
		if err := p.expect(">"); err != nil {
			return Value{}, err
		}
	}
	if len(elems) != typesIn.NumElems(ty) {
		return Value{}, p.errorf(t, "%d elements for %s", len(elems), types.Label(typesIn, ty))
	}
	for i, e := range elems {
		if want, _ := typesIn.ElemAt(ty, i); e.Type != want {
			return Value{}, p.errorf(t, "element %d has type %s, want %s", i, types.Label(typesIn, e.Type), types.Label(typesIn, want))
		}
	}
	return p.m.ConstAggregate(ty, elems), nil
}

// Types -----------------------------------------------------------------

// isTypeKeyword reports whether s spells a primitive type.
func isTypeKeyword(s string) bool {
	switch s {
	case "void", "label", "half", "float", "double":
		return true
	}
	rest, ok := strings.CutPrefix(s, "i")
	return ok && isNumericName(rest)
}

func (p *parser) parseType() (types.TypeID, error) {
	typesIn := p.m.Types
	b := typesIn.Builtins()
	t := p.next()
	var ty types.TypeID
	switch {
	case t.kind == tokIdent:
		switch t.text {
		case "void":
			ty = b.Void
		case "label":
			ty = b.Label
		case "half":
			ty = b.Half
		case "float":
			ty = b.Float
		case "double":
			ty = b.Double
		default:
			rest, ok := strings.CutPrefix(t.text, "i")
			width, err := strconv.Atoi(rest)
			if !ok || err != nil || width < 1 || width > 64 {
				return types.NoTypeID, p.errorf(t, "expected type, found %s", t)
			}
			ty = typesIn.Int(types.Width(width))
		}
	case t.kind == tokPunct && t.text == "[":
		count, err := p.parseUint32()
		if err != nil {
			return types.NoTypeID, err
		}
		if err := p.expect("x"); err != nil {
			return types.NoTypeID, err
		}
		elem, err := p.parseType()
		if err != nil {
			return types.NoTypeID, err
		}
		if err := p.expect("]"); err != nil {
			return types.NoTypeID, err
		}
		ty = typesIn.Array(elem, count)
	case t.kind == tokPunct && (t.text == "{" || t.text == "<"):
		packed := t.text == "<"
		if packed {
			if err := p.expect("{"); err != nil {
				return types.NoTypeID, err
			}
		}
		var elems []types.TypeID
		for !p.accept("}") {
			if len(elems) > 0 {
				if err := p.expect(","); err != nil {
					return types.NoTypeID, err
				}
			}
			e, err := p.parseType()
			if err != nil {
				return types.NoTypeID, err
			}
			elems = append(elems, e)
		}
		if packed {
			if err := p.expect(">"); err != nil {
				return types.NoTypeID, err
			}
		}
		ty = typesIn.RegisterStruct(elems, packed)
	default:
		return types.NoTypeID, p.errorf(t, "expected type, found %s", t)
	}

	for {
		switch {
		case p.accept("*"):
			ty = typesIn.Pointer(ty)
		case p.at("addrspace"):
			p.pos++
			if err := p.expect("("); err != nil {
				return types.NoTypeID, err
			}
			as, err := p.parseUint32()
			if err != nil {
				return types.NoTypeID, err
			}
			if err := p.expect(")"); err != nil {
				return types.NoTypeID, err
			}
			if err := p.expect("*"); err != nil {
				return types.NoTypeID, err
			}
			ty = typesIn.PointerIn(ty, as)
		case p.at("("):
			p.pos++
			var (
				params   []types.TypeID
				variadic bool
			)
			for !p.accept(")") {
				if len(params) > 0 || variadic {
					if err := p.expect(","); err != nil {
						return types.NoTypeID, err
					}
				}
				if p.accept("...") {
					variadic = true
					continue
				}
				pt, err := p.parseType()
				if err != nil {
					return types.NoTypeID, err
				}
				params = append(params, pt)
			}
			ty = typesIn.RegisterFn(params, ty, variadic)
		default:
			return ty, nil
		}
	}
}
