package ir

import (
	"fmt"
	"slices"

	"funcmerge/internal/types"
)

// Module owns a set of globals and the constant pool they share.
type Module struct {
	Name  string
	Types *types.Interner

	Funcs   []*Func
	Vars    []*GlobalVar
	Aliases []*Alias

	consts  []Const
	scalars map[scalarKey]ConstID
	symtab  map[string]Global
}

// NewModule creates an empty module using the given type interner.
func NewModule(name string, typesIn *types.Interner) *Module {
	if typesIn == nil {
		typesIn = types.NewInterner()
	}
	return &Module{
		Name:    name,
		Types:   typesIn,
		scalars: make(map[scalarKey]ConstID),
		symtab:  make(map[string]Global),
	}
}

// NewFunc appends a declaration with the given signature. Add blocks to turn
// it into a definition.
func (m *Module) NewFunc(name string, sig types.TypeID, linkage Linkage) *Func {
	f := &Func{Sig: sig, Entry: NoBlockID}
	f.Linkage = linkage
	f.Type = m.Types.Pointer(sig)
	f.module = m
	m.Funcs = append(m.Funcs, f)
	m.SetName(f, name)
	return f
}

// NewGlobalVar appends a global variable of type valueType.
func (m *Module) NewGlobalVar(name string, valueType types.TypeID, linkage Linkage) *GlobalVar {
	g := &GlobalVar{ValueType: valueType}
	g.Linkage = linkage
	g.Type = m.Types.Pointer(valueType)
	g.module = m
	m.Vars = append(m.Vars, g)
	m.SetName(g, name)
	return g
}

// NewAlias appends an alias of type ty denoting aliasee.
func (m *Module) NewAlias(name string, ty types.TypeID, linkage Linkage, aliasee Value) *Alias {
	a := &Alias{Aliasee: aliasee}
	a.Linkage = linkage
	a.Type = ty
	a.module = m
	m.Aliases = append(m.Aliases, a)
	m.SetName(a, name)
	return a
}

// SetName renames g. A taken name gets a numeric suffix, so the final name
// may differ from the requested one.
func (m *Module) SetName(g Global, name string) {
	base := g.Base()
	if base.Name != "" && m.symtab[base.Name] == g {
		delete(m.symtab, base.Name)
	}
	base.Name = ""
	if name == "" {
		return
	}
	final := name
	for i := 1; ; i++ {
		if _, taken := m.symtab[final]; !taken {
			break
		}
		final = fmt.Sprintf("%s.%d", name, i)
	}
	base.Name = final
	m.symtab[final] = g
}

// TakeName moves src's name to dst and leaves src unnamed.
func (m *Module) TakeName(dst, src Global) {
	name := src.Base().Name
	m.SetName(src, "")
	m.SetName(dst, name)
}

// Lookup finds a named global.
func (m *Module) Lookup(name string) Global {
	if name == "" {
		return nil
	}
	return m.symtab[name]
}

// Func finds a function by name.
func (m *Module) Func(name string) *Func {
	f, _ := m.Lookup(name).(*Func)
	return f
}

// Globals returns every live global: variables, aliases, then functions.
func (m *Module) Globals() []Global {
	out := make([]Global, 0, len(m.Vars)+len(m.Aliases)+len(m.Funcs))
	for _, g := range m.Vars {
		out = append(out, g)
	}
	for _, a := range m.Aliases {
		out = append(out, a)
	}
	for _, f := range m.Funcs {
		out = append(out, f)
	}
	return out
}

// Definitions returns the functions that have a body.
func (m *Module) Definitions() []*Func {
	out := make([]*Func, 0, len(m.Funcs))
	for _, f := range m.Funcs {
		if !f.IsDeclaration() {
			out = append(out, f)
		}
	}
	return out
}

func (m *Module) erase(g Global) {
	base := g.Base()
	if base.erased {
		return
	}
	m.SetName(g, "")
	base.erased = true
}

// EraseFunc removes f from the module. Remaining uses become dangling, so
// callers replace them first.
func (m *Module) EraseFunc(f *Func) {
	if f.erased {
		return
	}
	m.erase(f)
	f.DropBody()
	m.Funcs = slices.DeleteFunc(m.Funcs, func(x *Func) bool { return x == f })
}

// EraseAlias removes a from the module.
func (m *Module) EraseAlias(a *Alias) {
	if a.erased {
		return
	}
	m.erase(a)
	m.Aliases = slices.DeleteFunc(m.Aliases, func(x *Alias) bool { return x == a })
}

// EraseGlobalVar removes g from the module.
func (m *Module) EraseGlobalVar(g *GlobalVar) {
	if g.erased {
		return
	}
	m.erase(g)
	m.Vars = slices.DeleteFunc(m.Vars, func(x *GlobalVar) bool { return x == g })
}
