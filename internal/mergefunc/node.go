package mergefunc

import (
	"funcmerge/internal/fcmp"
	"funcmerge/internal/ir"
)

// FunctionNode is one slot of the candidate index. The slot's position is
// fixed by the hash and body it was inserted with; the function it denotes
// can be swapped for an equal one without moving the slot.
type FunctionNode struct {
	fn   *ir.Func
	hash uint64
}

func newFunctionNode(f *ir.Func) *FunctionNode {
	return &FunctionNode{fn: f, hash: fcmp.FunctionHash(f)}
}

// Func returns the function the slot currently denotes.
func (n *FunctionNode) Func() *ir.Func {
	return n.fn
}

// Hash returns the structural hash computed at insertion.
func (n *FunctionNode) Hash() uint64 {
	return n.hash
}

func (n *FunctionNode) replaceBy(g *ir.Func) {
	n.fn = g
}
