package ir

import (
	"errors"
	"fmt"
	"io"
	"math"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"funcmerge/internal/types"
)

// codecSchemaVersion must be bumped whenever the wire structs change.
const codecSchemaVersion uint16 = 1

// ErrSchemaMismatch reports a binary module written by an incompatible version.
var ErrSchemaMismatch = errors.New("module schema mismatch")

type wireModule struct {
	Schema  uint16
	Name    string
	PtrBits uint8
	Types   []wireType
	Consts  []wireConst
	Globals []wireGlobal
}

// wireType mirrors one interner entry. IDs refer to earlier entries, with
// 0 meaning no type.
type wireType struct {
	Kind      uint8
	Elem      uint32
	Count     uint32
	Width     uint8
	AddrSpace uint32
	Packed    bool
	Elems     []uint32
	Result    uint32
	Variadic  bool
}

type wireValue struct {
	Kind   uint8
	Type   uint32
	Arg    int
	Instr  int32
	Const  int32
	Global int32
}

type wireConst struct {
	Kind    uint8
	Type    uint32
	Int     uint64
	Float   float64
	Elems   []wireValue
	Cast    uint8
	Operand wireValue
}

type wireAttrs struct {
	Fn     uint32
	Ret    uint32
	Params []uint32
}

type wireGlobal struct {
	Kind        uint8
	Name        string
	Linkage     uint8
	Visibility  uint8
	UnnamedAddr uint8
	Align       uint32
	Type        uint32

	// Variables.
	ValueType uint32
	Constant  bool
	HasInit   bool
	Init      wireValue

	// Aliases.
	Aliasee wireValue

	// Functions.
	Sig      uint32
	CallConv uint16
	Attrs    wireAttrs
	Entry    int32
	NextID   int32
	Blocks   []wireBlock
}

type wireBlock struct {
	Instrs []wireInstr
	Term   wireTerm
}

type wireInstr struct {
	ID       int32
	Kind     uint8
	Type     uint32
	Op       uint8
	Ops      []wireValue
	Blocks   []int32
	Tail     bool
	CallConv uint16
	Attrs    wireAttrs
	Align    uint32
	Volatile bool
	Elem     uint32
	Index    int
}

type wireTerm struct {
	Kind    uint8
	Ops     []wireValue
	Targets []int32
}

// Encode writes m in the msgpack wire form.
func Encode(w io.Writer, m *Module) error {
	enc := &encoder{m: m, globals: make(map[Global]int32)}
	wm, err := enc.module()
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(w).Encode(wm); err != nil {
		return fmt.Errorf("encode module %s: %w", m.Name, err)
	}
	return nil
}

// Decode reads a module written by Encode.
func Decode(r io.Reader) (*Module, error) {
	var wm wireModule
	if err := msgpack.NewDecoder(r).Decode(&wm); err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	if wm.Schema != codecSchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSchemaMismatch, wm.Schema, codecSchemaVersion)
	}
	dec := &decoder{wm: &wm}
	return dec.module()
}

type encoder struct {
	m       *Module
	globals map[Global]int32
}

func (e *encoder) module() (*wireModule, error) {
	m := e.m
	wm := &wireModule{
		Schema:  codecSchemaVersion,
		Name:    m.Name,
		PtrBits: uint8(m.Types.Layout().PointerBits),
	}
	for id := 1; id < m.Types.Len(); id++ {
		tid := types.TypeID(id) //nolint:gosec // G115: bounded by interner size
		tt := m.Types.MustLookup(tid)
		wt := wireType{
			Kind:      uint8(tt.Kind),
			Elem:      uint32(tt.Elem),
			Count:     tt.Count,
			Width:     uint8(tt.Width),
			AddrSpace: tt.AddrSpace,
			Packed:    tt.Packed,
		}
		switch tt.Kind {
		case types.KindStruct:
			info, _ := m.Types.StructInfo(tid)
			wt.Elems = typeIDs(info.Elems)
		case types.KindFn:
			info, _ := m.Types.FnInfo(tid)
			wt.Elems = typeIDs(info.Params)
			wt.Result = uint32(info.Result)
			wt.Variadic = info.Variadic
		}
		wm.Types = append(wm.Types, wt)
	}

	all := m.Globals()
	for i, g := range all {
		n, err := safecast.Conv[int32](i)
		if err != nil {
			return nil, fmt.Errorf("encode module %s: %w", m.Name, err)
		}
		e.globals[g] = n
	}

	wm.Consts = make([]wireConst, len(m.consts))
	for i := range m.consts {
		c := &m.consts[i]
		wc := wireConst{
			Kind:    uint8(c.Kind),
			Type:    uint32(c.Type),
			Int:     c.Int,
			Float:   c.Float,
			Cast:    uint8(c.Cast),
			Operand: e.value(c.Operand),
		}
		for _, el := range c.Elems {
			wc.Elems = append(wc.Elems, e.value(el))
		}
		wm.Consts[i] = wc
	}

	for _, g := range all {
		base := g.Base()
		wg := wireGlobal{
			Kind:        uint8(g.GlobalKind()),
			Name:        base.Name,
			Linkage:     uint8(base.Linkage),
			Visibility:  uint8(base.Visibility),
			UnnamedAddr: uint8(base.UnnamedAddr),
			Align:       base.Align,
			Type:        uint32(base.Type),
		}
		switch g := g.(type) {
		case *GlobalVar:
			wg.ValueType = uint32(g.ValueType)
			wg.Constant = g.Constant
			wg.HasInit = g.HasInit
			wg.Init = e.value(g.Init)
		case *Alias:
			wg.Aliasee = e.value(g.Aliasee)
		case *Func:
			wg.Sig = uint32(g.Sig)
			wg.CallConv = uint16(g.CallConv)
			wg.Attrs = wireAttrsOf(g.Attrs)
			wg.Entry = int32(g.Entry)
			wg.NextID = int32(g.nextID)
			for bi := range g.Blocks {
				wg.Blocks = append(wg.Blocks, e.block(&g.Blocks[bi]))
			}
		}
		wm.Globals = append(wm.Globals, wg)
	}
	return wm, nil
}

func typeIDs(ids []types.TypeID) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}

func wireAttrsOf(l AttrList) wireAttrs {
	w := wireAttrs{Fn: uint32(l.Fn), Ret: uint32(l.Ret)}
	for i := 0; i < l.NumParams(); i++ {
		w.Params = append(w.Params, uint32(l.Params[i]))
	}
	return w
}

func (e *encoder) value(v Value) wireValue {
	w := wireValue{
		Kind:   uint8(v.Kind),
		Type:   uint32(v.Type),
		Arg:    v.Arg,
		Instr:  int32(v.Instr),
		Const:  int32(v.Const),
		Global: -1,
	}
	if v.Kind == ValueGlobal {
		w.Global = e.globals[v.Global]
	}
	return w
}

func (e *encoder) block(b *Block) wireBlock {
	wb := wireBlock{}
	for i := range b.Instrs {
		in := &b.Instrs[i]
		wi := wireInstr{ID: int32(in.ID), Kind: uint8(in.Kind), Type: uint32(in.Type)}
		for _, op := range in.Operands() {
			wi.Ops = append(wi.Ops, e.value(*op))
		}
		switch in.Kind {
		case InstrBinary:
			wi.Op = uint8(in.Binary.Op)
		case InstrICmp:
			wi.Op = uint8(in.ICmp.Pred)
		case InstrCast:
			wi.Op = uint8(in.Cast.Op)
		case InstrCall:
			wi.Tail = in.Call.Tail
			wi.CallConv = uint16(in.Call.CallConv)
			wi.Attrs = wireAttrsOf(in.Call.Attrs)
		case InstrLoad:
			wi.Align, wi.Volatile = in.Load.Align, in.Load.Volatile
		case InstrStore:
			wi.Align, wi.Volatile = in.Store.Align, in.Store.Volatile
		case InstrAlloca:
			wi.Align, wi.Elem = in.Alloca.Align, uint32(in.Alloca.Elem)
		case InstrExtractValue:
			wi.Index = in.ExtractValue.Index
		case InstrInsertValue:
			wi.Index = in.InsertValue.Index
		case InstrPhi:
			for _, inc := range in.Phi.Incoming {
				wi.Blocks = append(wi.Blocks, int32(inc.Block))
			}
		}
		wb.Instrs = append(wb.Instrs, wi)
	}
	wb.Term.Kind = uint8(b.Term.Kind)
	for _, op := range b.Term.Operands() {
		wb.Term.Ops = append(wb.Term.Ops, e.value(*op))
	}
	for _, succ := range b.Term.Successors() {
		wb.Term.Targets = append(wb.Term.Targets, int32(succ))
	}
	return wb
}

type decoder struct {
	wm      *wireModule
	m       *Module
	typeMap []types.TypeID
	globals []Global
}

func (d *decoder) ty(id uint32) (types.TypeID, error) {
	if int(id) >= len(d.typeMap) {
		return types.NoTypeID, fmt.Errorf("type id %d out of range", id)
	}
	return d.typeMap[id], nil
}

func (d *decoder) tys(ids []uint32) ([]types.TypeID, error) {
	out := make([]types.TypeID, len(ids))
	for i, id := range ids {
		t, err := d.ty(id)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (d *decoder) module() (*Module, error) {
	wm := d.wm
	layout := types.DefaultLayout
	if wm.PtrBits != 0 {
		layout.PointerBits = types.Width(wm.PtrBits)
	}
	d.m = NewModule(wm.Name, types.NewInternerWithLayout(layout))
	if err := d.types(); err != nil {
		return nil, fmt.Errorf("decode module %s: %w", wm.Name, err)
	}
	if err := d.headers(); err != nil {
		return nil, fmt.Errorf("decode module %s: %w", wm.Name, err)
	}
	if err := d.consts(); err != nil {
		return nil, fmt.Errorf("decode module %s: %w", wm.Name, err)
	}
	if err := d.bodies(); err != nil {
		return nil, fmt.Errorf("decode module %s: %w", wm.Name, err)
	}
	return d.m, nil
}

func (d *decoder) types() error {
	in := d.m.Types
	d.typeMap = []types.TypeID{types.NoTypeID}
	for i, wt := range d.wm.Types {
		var id types.TypeID
		switch kind := types.Kind(wt.Kind); kind {
		case types.KindStruct:
			elems, err := d.tys(wt.Elems)
			if err != nil {
				return err
			}
			id = in.RegisterStruct(elems, wt.Packed)
		case types.KindFn:
			params, err := d.tys(wt.Elems)
			if err != nil {
				return err
			}
			result, err := d.ty(wt.Result)
			if err != nil {
				return err
			}
			id = in.RegisterFn(params, result, wt.Variadic)
		case types.KindPointer, types.KindArray:
			elem, err := d.ty(wt.Elem)
			if err != nil {
				return err
			}
			id = in.Intern(types.Type{Kind: kind, Elem: elem, Count: wt.Count, AddrSpace: wt.AddrSpace})
		case types.KindVoid, types.KindLabel, types.KindInt, types.KindFloat:
			id = in.Intern(types.Type{Kind: kind, Width: types.Width(wt.Width)})
		default:
			return fmt.Errorf("type %d: unknown kind %d", i+1, wt.Kind)
		}
		d.typeMap = append(d.typeMap, id)
	}
	return nil
}

func (d *decoder) headers() error {
	m := d.m
	for i, wg := range d.wm.Globals {
		ty, err := d.ty(wg.Type)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		var g Global
		switch GlobalKind(wg.Kind) {
		case GlobalVariable:
			vt, err := d.ty(wg.ValueType)
			if err != nil {
				return fmt.Errorf("global %d: %w", i, err)
			}
			v := m.NewGlobalVar(wg.Name, vt, Linkage(wg.Linkage))
			v.Constant = wg.Constant
			g = v
		case GlobalAliasKind:
			g = m.NewAlias(wg.Name, ty, Linkage(wg.Linkage), Value{})
		case GlobalFunc:
			sig, err := d.ty(wg.Sig)
			if err != nil {
				return fmt.Errorf("global %d: %w", i, err)
			}
			f := m.NewFunc(wg.Name, sig, Linkage(wg.Linkage))
			f.CallConv = CallConv(wg.CallConv)
			f.Attrs = attrListOf(wg.Attrs)
			g = f
		default:
			return fmt.Errorf("global %d: unknown kind %d", i, wg.Kind)
		}
		base := g.Base()
		if base.Name != wg.Name {
			return fmt.Errorf("global %d: duplicate name @%s", i, wg.Name)
		}
		base.Visibility = Visibility(wg.Visibility)
		base.UnnamedAddr = UnnamedAddr(wg.UnnamedAddr)
		base.Align = wg.Align
		d.globals = append(d.globals, g)
	}
	return nil
}

func attrListOf(w wireAttrs) AttrList {
	l := AttrList{Fn: Attr(w.Fn), Ret: Attr(w.Ret)}
	for i, a := range w.Params {
		l.AddParam(i, Attr(a))
	}
	return l
}

func (d *decoder) value(w wireValue) (Value, error) {
	ty, err := d.ty(w.Type)
	if err != nil {
		return Value{}, err
	}
	v := Value{Kind: ValueKind(w.Kind), Type: ty, Arg: w.Arg, Instr: InstrID(w.Instr), Const: ConstID(w.Const)}
	if v.Kind == ValueGlobal {
		if w.Global < 0 || int(w.Global) >= len(d.globals) {
			return Value{}, fmt.Errorf("global index %d out of range", w.Global)
		}
		v.Global = d.globals[w.Global]
	}
	return v, nil
}

func (d *decoder) consts() error {
	for i, wc := range d.wm.Consts {
		ty, err := d.ty(wc.Type)
		if err != nil {
			return fmt.Errorf("constant %d: %w", i, err)
		}
		c := Const{Kind: ConstKind(wc.Kind), Type: ty, Int: wc.Int, Float: wc.Float, Cast: CastOp(wc.Cast)}
		if c.Operand, err = d.value(wc.Operand); err != nil {
			return fmt.Errorf("constant %d: %w", i, err)
		}
		for _, we := range wc.Elems {
			el, err := d.value(we)
			if err != nil {
				return fmt.Errorf("constant %d: %w", i, err)
			}
			c.Elems = append(c.Elems, el)
		}
		d.m.restoreConst(c)
	}
	return nil
}

// restoreConst appends c at the next pool slot, keeping scalar uniquing
// consistent with the constructors.
func (m *Module) restoreConst(c Const) {
	v := m.addConst(c)
	var bits uint64
	switch c.Kind {
	case ConstInt:
		bits = c.Int
	case ConstFloat:
		bits = math.Float64bits(c.Float)
	case ConstNull, ConstUndef, ConstZero:
	default:
		return
	}
	key := scalarKey{kind: c.Kind, ty: c.Type, bits: bits}
	if _, ok := m.scalars[key]; !ok {
		m.scalars[key] = v.Const
	}
}

func (d *decoder) bodies() error {
	for i, wg := range d.wm.Globals {
		var err error
		switch g := d.globals[i].(type) {
		case *GlobalVar:
			if wg.HasInit {
				g.HasInit = true
				g.Init, err = d.value(wg.Init)
			}
		case *Alias:
			g.Aliasee, err = d.value(wg.Aliasee)
		case *Func:
			err = d.body(g, &wg)
		}
		if err != nil {
			return fmt.Errorf("global @%s: %w", wg.Name, err)
		}
	}
	return nil
}

func (d *decoder) body(f *Func, wg *wireGlobal) error {
	for bi, wb := range wg.Blocks {
		id := f.NewBlock()
		b := f.Block(id)
		for _, wi := range wb.Instrs {
			in, err := d.instr(wi)
			if err != nil {
				return fmt.Errorf("bb%d: %w", bi, err)
			}
			f.noteInstrID(in.ID)
			b.Instrs = append(b.Instrs, in)
		}
		term, err := d.term(wb.Term)
		if err != nil {
			return fmt.Errorf("bb%d: %w", bi, err)
		}
		b.Term = term
	}
	if len(wg.Blocks) > 0 {
		f.Entry = BlockID(wg.Entry)
	}
	f.noteInstrID(InstrID(wg.NextID) - 1)
	return nil
}

func (d *decoder) instr(wi wireInstr) (Instr, error) {
	ty, err := d.ty(wi.Type)
	if err != nil {
		return Instr{}, err
	}
	in := Instr{ID: InstrID(wi.ID), Kind: InstrKind(wi.Kind), Type: ty}
	switch in.Kind {
	case InstrBinary:
		in.Binary.Op = BinOp(wi.Op)
	case InstrICmp:
		in.ICmp.Pred = ICmpPred(wi.Op)
	case InstrCast:
		in.Cast.Op = CastOp(wi.Op)
	case InstrCall:
		if len(wi.Ops) == 0 {
			return Instr{}, errors.New("call without callee")
		}
		in.Call.Args = make([]Value, len(wi.Ops)-1)
		in.Call.Tail = wi.Tail
		in.Call.CallConv = CallConv(wi.CallConv)
		in.Call.Attrs = attrListOf(wi.Attrs)
	case InstrLoad:
		in.Load.Align, in.Load.Volatile = wi.Align, wi.Volatile
	case InstrStore:
		in.Store.Align, in.Store.Volatile = wi.Align, wi.Volatile
	case InstrAlloca:
		in.Alloca.Align = wi.Align
		if in.Alloca.Elem, err = d.ty(wi.Elem); err != nil {
			return Instr{}, err
		}
	case InstrExtractValue:
		in.ExtractValue.Index = wi.Index
	case InstrInsertValue:
		in.InsertValue.Index = wi.Index
	case InstrPhi:
		if len(wi.Blocks) != len(wi.Ops) {
			return Instr{}, errors.New("phi incoming count mismatch")
		}
		in.Phi.Incoming = make([]PhiIncoming, len(wi.Blocks))
		for i, b := range wi.Blocks {
			in.Phi.Incoming[i].Block = BlockID(b)
		}
	case InstrSelect:
	default:
		return Instr{}, fmt.Errorf("unknown instruction kind %d", wi.Kind)
	}
	slots := in.Operands()
	if len(slots) != len(wi.Ops) {
		return Instr{}, fmt.Errorf("%s: %d operands, want %d", in.Kind, len(wi.Ops), len(slots))
	}
	for i, w := range wi.Ops {
		if *slots[i], err = d.value(w); err != nil {
			return Instr{}, err
		}
	}
	return in, nil
}

func (d *decoder) term(wt wireTerm) (Terminator, error) {
	t := Terminator{Kind: TermKind(wt.Kind)}
	switch t.Kind {
	case TermRet:
		t.Ret.HasValue = len(wt.Ops) == 1
	case TermSwitch:
		if len(wt.Ops) == 0 {
			return Terminator{}, errors.New("switch without condition")
		}
		t.Switch.Cases = make([]SwitchCase, len(wt.Ops)-1)
	case TermBr, TermCondBr, TermUnreachable, TermNone:
	default:
		return Terminator{}, fmt.Errorf("unknown terminator kind %d", wt.Kind)
	}
	slots := t.Operands()
	if len(slots) != len(wt.Ops) {
		return Terminator{}, fmt.Errorf("terminator has %d operands, want %d", len(wt.Ops), len(slots))
	}
	for i, w := range wt.Ops {
		v, err := d.value(w)
		if err != nil {
			return Terminator{}, err
		}
		*slots[i] = v
	}
	refs := t.successorRefs()
	if len(refs) != len(wt.Targets) {
		return Terminator{}, fmt.Errorf("terminator has %d targets, want %d", len(wt.Targets), len(refs))
	}
	for i, target := range wt.Targets {
		*refs[i] = BlockID(target)
	}
	return t, nil
}
