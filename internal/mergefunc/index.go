package mergefunc

import (
	"fmt"
	"slices"
	"sort"

	"funcmerge/internal/fcmp"
	"funcmerge/internal/ir"
)

// CandidateIndex holds one representative per equivalence class, ordered by
// (hash, comparator). byFunc maps every representative to its slot; there is
// exactly one entry per slot.
type CandidateIndex struct {
	cmp    fcmp.Comparator
	gn     *fcmp.GlobalNumbers
	nodes  []*FunctionNode
	byFunc map[*ir.Func]*FunctionNode
}

// NewCandidateIndex returns an empty index ordering functions with cmp.
func NewCandidateIndex(cmp fcmp.Comparator, gn *fcmp.GlobalNumbers) *CandidateIndex {
	return &CandidateIndex{
		cmp:    cmp,
		gn:     gn,
		byFunc: make(map[*ir.Func]*FunctionNode),
	}
}

// Len returns the number of representatives.
func (ix *CandidateIndex) Len() int {
	return len(ix.nodes)
}

// Contains reports whether f is a representative.
func (ix *CandidateIndex) Contains(f *ir.Func) bool {
	_, ok := ix.byFunc[f]
	return ok
}

// Representatives lists the indexed functions in index order.
func (ix *CandidateIndex) Representatives() []*ir.Func {
	out := make([]*ir.Func, len(ix.nodes))
	for i, n := range ix.nodes {
		out[i] = n.fn
	}
	return out
}

func (ix *CandidateIndex) order(a, b *FunctionNode) int {
	if a.hash != b.hash {
		if a.hash < b.hash {
			return -1
		}
		return 1
	}
	return int(ix.cmp.Compare(a.fn, b.fn, ix.gn))
}

// Insert adds f unless an equal function is already indexed, in which case
// the slot holding it is returned and f is left out.
func (ix *CandidateIndex) Insert(f *ir.Func) (inserted bool, match *FunctionNode) {
	if _, dup := ix.byFunc[f]; dup {
		panic(fmt.Errorf("mergefunc: @%s inserted twice", f.Name))
	}
	node := newFunctionNode(f)
	i, found := slices.BinarySearchFunc(ix.nodes, node, ix.order)
	if found {
		return false, ix.nodes[i]
	}
	ix.nodes = slices.Insert(ix.nodes, i, node)
	ix.byFunc[f] = node
	return true, nil
}

// Remove drops f's slot if f is a representative. The slot is located by
// hash and identity, so f's body may already differ from when it was
// inserted.
func (ix *CandidateIndex) Remove(f *ir.Func) bool {
	node, ok := ix.byFunc[f]
	if !ok {
		return false
	}
	lo := sort.Search(len(ix.nodes), func(i int) bool { return ix.nodes[i].hash >= node.hash })
	for i := lo; i < len(ix.nodes) && ix.nodes[i].hash == node.hash; i++ {
		if ix.nodes[i] == node {
			ix.nodes = slices.Delete(ix.nodes, i, i+1)
			delete(ix.byFunc, f)
			return true
		}
	}
	panic(fmt.Errorf("mergefunc: side table lists @%s but its slot is gone", f.Name))
}

// ReplaceRepresentative makes node denote g instead of its current function.
// g must compare equal to it, so the slot keeps its position.
func (ix *CandidateIndex) ReplaceRepresentative(node *FunctionNode, g *ir.Func) {
	old := node.fn
	if ix.byFunc[old] != node {
		panic(fmt.Errorf("mergefunc: @%s does not own the slot being replaced", old.Name))
	}
	if _, dup := ix.byFunc[g]; dup {
		panic(fmt.Errorf("mergefunc: @%s is already a representative", g.Name))
	}
	delete(ix.byFunc, old)
	ix.byFunc[g] = node
	node.replaceBy(g)
}

// Clear empties the index.
func (ix *CandidateIndex) Clear() {
	ix.nodes = nil
	clear(ix.byFunc)
}
