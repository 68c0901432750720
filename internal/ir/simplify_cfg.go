package ir

// SimplifyCFG performs control flow graph simplification on a function.
// Transformations:
// 1. Forward edges through trivial branch blocks (no instructions + br)
// 2. Collapse branch chains
// 3. Remove unreachable blocks
// 4. Renumber blocks deterministically
//
// A trivial block is kept when its target has phi nodes, since the incoming
// edge it contributes is observable there.
func SimplifyCFG(f *Func) {
	if f == nil || len(f.Blocks) == 0 {
		return
	}

	redirects := buildRedirectMap(f)
	applyRedirects(f, redirects)

	live := Reachable(f)
	reachable := make([]bool, len(f.Blocks))
	for i := range reachable {
		reachable[i] = live.Has(i)
	}
	compactBlocks(f, reachable)
}

// buildRedirectMap finds trivial branch blocks and maps them to their final
// targets (following chains).
func buildRedirectMap(f *Func) map[BlockID]BlockID {
	redirects := make(map[BlockID]BlockID)

	for i := range f.Blocks {
		bb := &f.Blocks[i]
		if !isTrivialBranchBlock(f, bb.ID) {
			continue
		}
		target := bb.Term.Br.Target
		visited := map[BlockID]bool{bb.ID: true}
		for !visited[target] {
			visited[target] = true
			if next, ok := redirects[target]; ok {
				target = next
				continue
			}
			if isTrivialBranchBlock(f, target) {
				target = f.Blocks[target].Term.Br.Target
				continue
			}
			break
		}
		if visited[target] && isTrivialBranchBlock(f, target) {
			// Self loop of empty blocks; leave it alone.
			continue
		}
		redirects[bb.ID] = target
	}
	return redirects
}

// isTrivialBranchBlock reports whether a block is empty, ends in br, and
// targets a block without phis.
func isTrivialBranchBlock(f *Func, id BlockID) bool {
	bb := f.Block(id)
	if bb == nil || len(bb.Instrs) != 0 || bb.Term.Kind != TermBr {
		return false
	}
	target := f.Block(bb.Term.Br.Target)
	return target != nil && !hasPhi(target)
}

func hasPhi(b *Block) bool {
	return len(b.Instrs) > 0 && b.Instrs[0].Kind == InstrPhi
}

// applyRedirects updates all terminators to use the redirected targets.
func applyRedirects(f *Func, redirects map[BlockID]BlockID) {
	if len(redirects) == 0 {
		return
	}
	for i := range f.Blocks {
		for _, ref := range f.Blocks[i].Term.successorRefs() {
			if newID, ok := redirects[*ref]; ok {
				*ref = newID
			}
		}
	}
	if newID, ok := redirects[f.Entry]; ok {
		f.Entry = newID
	}
}

// compactBlocks removes unreachable blocks and renumbers the remaining ones.
func compactBlocks(f *Func, reachable []bool) {
	oldToNew := make(map[BlockID]BlockID, len(f.Blocks))
	newBlocks := make([]Block, 0, len(f.Blocks))

	for i, keep := range reachable {
		if keep {
			//nolint:gosec // G115: bounded by existing block count
			oldToNew[BlockID(i)] = BlockID(len(newBlocks))
			newBlocks = append(newBlocks, f.Blocks[i])
		}
	}

	for i := range newBlocks {
		newBlocks[i].ID = BlockID(i) //nolint:gosec // G115: bounded by newBlocks length
		for _, ref := range newBlocks[i].Term.successorRefs() {
			*ref = oldToNew[*ref]
		}
		for j := range newBlocks[i].Instrs {
			in := &newBlocks[i].Instrs[j]
			if in.Kind != InstrPhi {
				continue
			}
			kept := in.Phi.Incoming[:0:0]
			for _, inc := range in.Phi.Incoming {
				if newID, ok := oldToNew[inc.Block]; ok {
					kept = append(kept, PhiIncoming{Value: inc.Value, Block: newID})
				}
			}
			in.Phi.Incoming = kept
		}
	}

	f.Blocks = newBlocks
	f.Entry = oldToNew[f.Entry]
}
