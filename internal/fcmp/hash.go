package fcmp

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/oleiade/lane"
	"golang.org/x/tools/container/intsets"

	"funcmerge/internal/ir"
)

// blockMarker separates the opcode runs of consecutive blocks.
const blockMarker = 45798

// FunctionHash summarizes the shape of f: its vararg flag, its parameter
// count and the opcodes of its reachable blocks in depth-first order.
// Functions that compare Equal always hash alike; the converse does not hold.
func FunctionHash(f *ir.Func) uint64 {
	h := hasher{d: xxhash.New()}
	h.add(boolBit(f.IsVarArg()))
	h.add(uint64(f.NumParams())) //nolint:gosec // G115: parameter counts are small

	entry := f.EntryBlock()
	if entry == nil {
		return h.sum()
	}
	var visited intsets.Sparse
	visited.Insert(int(entry.ID))
	stack := lane.NewStack()
	stack.Push(entry)
	for !stack.Empty() {
		b := stack.Pop().(*ir.Block)
		h.add(blockMarker)
		for i := range b.Instrs {
			h.add(instrOpcode(&b.Instrs[i]))
		}
		h.add(termOpcode(&b.Term))
		for _, succ := range b.Term.Successors() {
			next := f.Block(succ)
			if next == nil || !visited.Insert(int(succ)) {
				continue
			}
			stack.Push(next)
		}
	}
	return h.sum()
}

type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func (h *hasher) add(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

func (h *hasher) sum() uint64 {
	return h.d.Sum64()
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// instrOpcode distinguishes operators as well as instruction kinds, so that
// add and sub land in different buckets.
func instrOpcode(in *ir.Instr) uint64 {
	var sub uint64
	switch in.Kind {
	case ir.InstrBinary:
		sub = uint64(in.Binary.Op)
	case ir.InstrCast:
		sub = uint64(in.Cast.Op)
	}
	return uint64(in.Kind)<<8 | sub
}

func termOpcode(t *ir.Terminator) uint64 {
	return 1<<16 | uint64(t.Kind)
}
