package ir

import (
	"fmt"

	"fortio.org/safecast"

	"funcmerge/internal/types"
)

type Func struct {
	GlobalValue

	// Sig is the function type; GlobalValue.Type is a pointer to it.
	Sig      types.TypeID
	CallConv CallConv
	Attrs    AttrList

	Blocks []Block
	Entry  BlockID

	nextID InstrID
}

// GlobalKind implements Global.
func (*Func) GlobalKind() GlobalKind { return GlobalFunc }

// IsDeclaration reports whether the function has no body.
func (f *Func) IsDeclaration() bool {
	return len(f.Blocks) == 0
}

// FnInfo returns the signature descriptor.
func (f *Func) FnInfo() *types.FnInfo {
	if f.module == nil {
		return nil
	}
	info, ok := f.module.Types.FnInfo(f.Sig)
	if !ok {
		return nil
	}
	return info
}

// IsVarArg reports whether the signature accepts extra arguments.
func (f *Func) IsVarArg() bool {
	info := f.FnInfo()
	return info != nil && info.Variadic
}

// NumParams returns the number of declared parameters.
func (f *Func) NumParams() int {
	info := f.FnInfo()
	if info == nil {
		return 0
	}
	return len(info.Params)
}

// Param returns the value of parameter i.
func (f *Func) Param(i int) Value {
	info := f.FnInfo()
	if info == nil || i < 0 || i >= len(info.Params) {
		return Value{}
	}
	return ArgValue(i, info.Params[i])
}

// Result returns the return type.
func (f *Func) Result() types.TypeID {
	info := f.FnInfo()
	if info == nil {
		return types.NoTypeID
	}
	return info.Result
}

// Block returns the block with the given ID, or nil.
func (f *Func) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(f.Blocks) {
		return nil
	}
	return &f.Blocks[id]
}

// EntryBlock returns the entry block, or nil for declarations.
func (f *Func) EntryBlock() *Block {
	return f.Block(f.Entry)
}

// NewInstrID reserves a fresh instruction ID.
func (f *Func) NewInstrID() InstrID {
	id := f.nextID
	f.nextID++
	return id
}

// noteInstrID keeps nextID above IDs assigned outside NewInstrID.
func (f *Func) noteInstrID(id InstrID) {
	if id >= f.nextID {
		f.nextID = id + 1
	}
}

// NewBlock appends an empty block and returns its ID. The first block becomes
// the entry.
func (f *Func) NewBlock() BlockID {
	n, err := safecast.Conv[int32](len(f.Blocks))
	if err != nil {
		panic(fmt.Errorf("block count overflow: %w", err))
	}
	id := BlockID(n)
	f.Blocks = append(f.Blocks, Block{ID: id})
	if f.Entry == NoBlockID {
		f.Entry = id
	}
	return id
}

// DropBody turns the function into a declaration.
func (f *Func) DropBody() {
	f.Blocks = nil
	f.Entry = NoBlockID
	f.nextID = 0
}

// StealBody moves src's blocks into f, leaving src a declaration.
func (f *Func) StealBody(src *Func) {
	f.Blocks = src.Blocks
	f.Entry = src.Entry
	f.nextID = src.nextID
	src.DropBody()
}

// CopyAttributesFrom copies the calling convention, attributes, visibility,
// unnamed-address kind and alignment of src. Linkage and name are left alone.
func (f *Func) CopyAttributesFrom(src *Func) {
	f.CallConv = src.CallConv
	f.Attrs = src.Attrs.Clone()
	f.Visibility = src.Visibility
	f.UnnamedAddr = src.UnnamedAddr
	f.Align = src.Align
}

// Size counts instructions and terminators across all blocks.
func (f *Func) Size() int {
	n := 0
	for i := range f.Blocks {
		n += f.Blocks[i].Size()
	}
	return n
}

// FindInstr returns the instruction with the given ID and its block.
func (f *Func) FindInstr(id InstrID) (*Instr, BlockID) {
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		for ii := range b.Instrs {
			if b.Instrs[ii].ID == id {
				return &b.Instrs[ii], b.ID
			}
		}
	}
	return nil, NoBlockID
}
