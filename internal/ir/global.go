package ir

import "funcmerge/internal/types"

// GlobalKind distinguishes module-level entities.
type GlobalKind uint8

const (
	// GlobalFunc is a function definition or declaration.
	GlobalFunc GlobalKind = iota
	// GlobalVariable is a global variable.
	GlobalVariable
	// GlobalAliasKind is an alias to another global.
	GlobalAliasKind
)

// Global is implemented by *Func, *GlobalVar and *Alias. Identity is pointer
// identity.
type Global interface {
	Base() *GlobalValue
	GlobalKind() GlobalKind
}

// GlobalValue holds what every module-level symbol has in common.
type GlobalValue struct {
	Name        string
	Linkage     Linkage
	Visibility  Visibility
	UnnamedAddr UnnamedAddr
	Align       uint32
	// Type is the type of the symbol's address (always a pointer).
	Type types.TypeID

	module *Module
	erased bool
}

// Base returns the shared header.
func (g *GlobalValue) Base() *GlobalValue { return g }

// Module returns the owning module, or nil once erased.
func (g *GlobalValue) Module() *Module {
	if g == nil || g.erased {
		return nil
	}
	return g.module
}

// Erased reports whether the global was removed from its module.
func (g *GlobalValue) Erased() bool { return g == nil || g.erased }

// IsInterposable reports whether a linker may swap in another definition.
func (g *GlobalValue) IsInterposable() bool { return g.Linkage.IsInterposable() }

// HasLocalLinkage reports internal or private linkage.
func (g *GlobalValue) HasLocalLinkage() bool { return g.Linkage.IsLocal() }

// HasGlobalUnnamedAddr reports whether the address may be folded with another
// global's address.
func (g *GlobalValue) HasGlobalUnnamedAddr() bool { return g.UnnamedAddr == UnnamedAddrGlobal }

// GlobalVar is a module-level variable.
type GlobalVar struct {
	GlobalValue
	ValueType types.TypeID
	Constant  bool
	HasInit   bool
	Init      Value
}

// GlobalKind implements Global.
func (*GlobalVar) GlobalKind() GlobalKind { return GlobalVariable }

// Alias is a symbol denoting another global's address.
type Alias struct {
	GlobalValue
	Aliasee Value
}

// GlobalKind implements Global.
func (*Alias) GlobalKind() GlobalKind { return GlobalAliasKind }

// NameOf returns the name of g, or "" for nil.
func NameOf(g Global) string {
	if g == nil {
		return ""
	}
	return g.Base().Name
}
