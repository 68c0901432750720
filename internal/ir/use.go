package ir

// UseKind says where an operand lives.
type UseKind uint8

const (
	// UseInstr is an instruction operand.
	UseInstr UseKind = iota
	// UseTerm is a terminator operand.
	UseTerm
	// UseConst is an operand of a pool constant.
	UseConst
	// UseInit is a global variable initializer.
	UseInit
	// UseAliasee is the target of an alias.
	UseAliasee
)

// Use locates one operand slot that refers to a global or a constant.
type Use struct {
	Kind UseKind

	// Func, Block and Index locate instruction and terminator operands.
	Func  *Func
	Block BlockID
	Index int
	// Slot is the operand position; slot 0 of a call is the callee.
	Slot int

	// Const is the using constant for UseConst.
	Const ConstID
	// Global is the using variable or alias for UseInit and UseAliasee.
	Global Global

	callee bool
	ref    *Value
}

// IsCallee reports whether the use is the callee operand of a call.
func (u Use) IsCallee() bool {
	return u.callee
}

// Ref returns the operand slot. It stays valid until the owning block or
// constant pool is resized.
func (u Use) Ref() *Value {
	return u.ref
}

// Instr returns the using instruction for UseInstr.
func (u Use) Instr() *Instr {
	if u.Kind != UseInstr || u.Func == nil {
		return nil
	}
	b := u.Func.Block(u.Block)
	if b == nil || u.Index >= len(b.Instrs) {
		return nil
	}
	return &b.Instrs[u.Index]
}

// walkOperands visits every operand slot in the module.
func (m *Module) walkOperands(visit func(u Use)) {
	for _, f := range m.Funcs {
		for bi := range f.Blocks {
			b := &f.Blocks[bi]
			for ii := range b.Instrs {
				in := &b.Instrs[ii]
				for slot, ref := range in.Operands() {
					visit(Use{
						Kind:   UseInstr,
						Func:   f,
						Block:  b.ID,
						Index:  ii,
						Slot:   slot,
						callee: in.Kind == InstrCall && slot == 0,
						ref:    ref,
					})
				}
			}
			for slot, ref := range b.Term.Operands() {
				visit(Use{Kind: UseTerm, Func: f, Block: b.ID, Index: len(b.Instrs), Slot: slot, ref: ref})
			}
		}
	}
	for ci := range m.consts {
		for slot, ref := range m.consts[ci].Operands() {
			visit(Use{Kind: UseConst, Const: ConstID(ci), Slot: slot, ref: ref}) //nolint:gosec // G115: pool size checked on insert
		}
	}
	for _, g := range m.Vars {
		if g.HasInit {
			visit(Use{Kind: UseInit, Global: g, ref: &g.Init})
		}
	}
	for _, a := range m.Aliases {
		visit(Use{Kind: UseAliasee, Global: a, ref: &a.Aliasee})
	}
}

// UseIndex is a snapshot of who uses each global and constant. Any mutation
// of the module invalidates it.
type UseIndex struct {
	m       *Module
	globals map[Global][]Use
	consts  map[ConstID][]Use
	live    map[ConstID]bool
}

// BuildUseIndex scans m once.
func BuildUseIndex(m *Module) *UseIndex {
	ix := &UseIndex{
		m:       m,
		globals: make(map[Global][]Use),
		consts:  make(map[ConstID][]Use),
		live:    make(map[ConstID]bool),
	}
	m.walkOperands(func(u Use) {
		switch v := u.ref; v.Kind {
		case ValueGlobal:
			ix.globals[v.Global] = append(ix.globals[v.Global], u)
		case ValueConst:
			ix.consts[v.Const] = append(ix.consts[v.Const], u)
		}
	})
	return ix
}

// GlobalUses returns the direct uses of g.
func (ix *UseIndex) GlobalUses(g Global) []Use {
	return ix.globals[g]
}

// ConstUses returns the direct uses of constant c.
func (ix *UseIndex) ConstUses(c ConstID) []Use {
	return ix.consts[c]
}

// Used reports whether anything live still refers to g. Constants nobody
// reaches do not count.
func (ix *UseIndex) Used(g Global) bool {
	for _, u := range ix.globals[g] {
		if u.Kind != UseConst || ix.constLive(u.Const, map[ConstID]bool{}) {
			return true
		}
	}
	return false
}

func (ix *UseIndex) constLive(c ConstID, onPath map[ConstID]bool) bool {
	if live, ok := ix.live[c]; ok {
		return live
	}
	if onPath[c] {
		return false
	}
	onPath[c] = true
	live := false
	for _, u := range ix.consts[c] {
		if u.Kind != UseConst || ix.constLive(u.Const, onPath) {
			live = true
			break
		}
	}
	delete(onPath, c)
	ix.live[c] = live
	return live
}

// ReplaceAllUsesWith rewrites every operand referring to old so it refers to
// nv instead. nv should have old's type.
func (m *Module) ReplaceAllUsesWith(old Global, nv Value) {
	m.walkOperands(func(u Use) {
		if u.ref.Refers(old) {
			*u.ref = nv
		}
	})
}
