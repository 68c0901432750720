package fcmp

import "funcmerge/internal/ir"

// GlobalNumbers hands out stable numbers to globals in first-seen order.
// Comparisons of global operands use these numbers, so one instance must be
// shared by every comparison of a run and cleared when the run ends.
type GlobalNumbers struct {
	ids  map[ir.Global]uint64
	next uint64
}

// NewGlobalNumbers returns an empty numbering.
func NewGlobalNumbers() *GlobalNumbers {
	return &GlobalNumbers{ids: make(map[ir.Global]uint64)}
}

// Number returns g's number, assigning the next free one on first sight.
func (gn *GlobalNumbers) Number(g ir.Global) uint64 {
	if gn.ids == nil {
		gn.ids = make(map[ir.Global]uint64)
	}
	if id, ok := gn.ids[g]; ok {
		return id
	}
	id := gn.next
	gn.next++
	gn.ids[g] = id
	return id
}

// Len reports how many globals have been numbered.
func (gn *GlobalNumbers) Len() int {
	return len(gn.ids)
}

// Clear forgets every number.
func (gn *GlobalNumbers) Clear() {
	clear(gn.ids)
	gn.next = 0
}
