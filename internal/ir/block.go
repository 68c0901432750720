package ir

type Block struct {
	ID     BlockID
	Instrs []Instr
	Term   Terminator
}

func (b *Block) Terminated() bool {
	if b == nil {
		return true
	}
	return b.Term.Kind != TermNone
}

// Size counts the block's instructions including its terminator.
func (b *Block) Size() int {
	n := len(b.Instrs)
	if b.Terminated() {
		n++
	}
	return n
}
