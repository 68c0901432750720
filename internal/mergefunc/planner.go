package mergefunc

import (
	"fmt"

	"funcmerge/internal/ir"
)

// Target describes what the output object format can express.
type Target interface {
	SupportsGlobalAliases() bool
}

// staticTarget is a Target with a fixed answer.
type staticTarget bool

func (t staticTarget) SupportsGlobalAliases() bool { return bool(t) }

// strategy says how the superseded function of a pair is replaced.
type strategy uint8

const (
	// strategyAlias turns the superseded function into an alias.
	strategyAlias strategy = iota
	// strategyThunk turns it into a tail-calling forwarder.
	strategyThunk
	// strategyDoubleThunk keeps both interposable symbols as forwarders to a
	// new private body.
	strategyDoubleThunk
)

func (s strategy) String() string {
	switch s {
	case strategyAlias:
		return "alias"
	case strategyThunk:
		return "thunk"
	case strategyDoubleThunk:
		return "double-thunk"
	default:
		return fmt.Sprintf("strategy(%d)", s)
	}
}

// preferIncoming reports whether incoming should replace indexed as the
// canonical function of an equal pair. Strong symbols win over interposable
// ones; otherwise the smaller name wins. The name order is what keeps
// separately merged modules from thunking into each other after linking.
func preferIncoming(indexed, incoming *ir.Func) bool {
	oldWeak, newWeak := indexed.IsInterposable(), incoming.IsInterposable()
	if oldWeak != newWeak {
		return oldWeak
	}
	return indexed.Name > incoming.Name
}

// plan picks the strategy for (canonical, superseded) after tie-break.
func plan(canonical, superseded *ir.Func, target Target) strategy {
	switch canonicalWeak, supersededWeak := canonical.IsInterposable(), superseded.IsInterposable(); {
	case canonicalWeak && supersededWeak:
		return strategyDoubleThunk
	case canonicalWeak:
		panic(fmt.Errorf("mergefunc: interposable @%s chosen over strong @%s", canonical.Name, superseded.Name))
	}
	if aliasEligible(superseded, target) {
		return strategyAlias
	}
	return strategyThunk
}

// aliasEligible reports whether g may be replaced by an alias: the target
// must support aliases, g's address must be insignificant, and its linkage
// must be external, local or weak.
func aliasEligible(g *ir.Func, target Target) bool {
	if target == nil || !target.SupportsGlobalAliases() || !g.HasGlobalUnnamedAddr() {
		return false
	}
	return g.Linkage == ir.LinkageExternal || g.HasLocalLinkage() || g.Linkage.IsWeak()
}
