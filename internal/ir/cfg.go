package ir

import "golang.org/x/tools/container/intsets"

// Reachable returns the IDs of blocks reachable from the entry block.
func Reachable(f *Func) *intsets.Sparse {
	var seen intsets.Sparse
	if f == nil || f.Block(f.Entry) == nil {
		return &seen
	}
	stack := []BlockID{f.Entry}
	seen.Insert(int(f.Entry))
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		b := f.Block(id)
		if b == nil {
			continue
		}
		for _, succ := range b.Term.Successors() {
			if f.Block(succ) != nil && seen.Insert(int(succ)) {
				stack = append(stack, succ)
			}
		}
	}
	return &seen
}

// ReachableSize counts reachable blocks and the instructions (terminators
// included) they hold.
func ReachableSize(f *Func) (blocks, instrs int) {
	live := Reachable(f)
	for i := range f.Blocks {
		if live.Has(i) {
			blocks++
			instrs += f.Blocks[i].Size()
		}
	}
	return blocks, instrs
}

// Predecessors maps each block to the blocks branching to it, in block order.
func Predecessors(f *Func) map[BlockID][]BlockID {
	preds := make(map[BlockID][]BlockID, len(f.Blocks))
	for i := range f.Blocks {
		b := &f.Blocks[i]
		for _, succ := range b.Term.Successors() {
			preds[succ] = append(preds[succ], b.ID)
		}
	}
	return preds
}
