package ir

type TermKind uint8

const (
	TermNone TermKind = iota
	TermRet
	TermBr
	TermCondBr
	TermSwitch
	TermUnreachable
)

type Terminator struct {
	Kind TermKind

	Ret    RetTerm
	Br     BrTerm
	CondBr CondBrTerm
	Switch SwitchTerm
}

type RetTerm struct {
	HasValue bool
	Value    Value
}

type BrTerm struct {
	Target BlockID
}

type CondBrTerm struct {
	Cond Value
	Then BlockID
	Else BlockID
}

type SwitchCase struct {
	Value  Value
	Target BlockID
}

type SwitchTerm struct {
	Value   Value
	Default BlockID
	Cases   []SwitchCase
}

// Operands returns pointers to the terminator's value operands.
func (t *Terminator) Operands() []*Value {
	switch t.Kind {
	case TermRet:
		if t.Ret.HasValue {
			return []*Value{&t.Ret.Value}
		}
	case TermCondBr:
		return []*Value{&t.CondBr.Cond}
	case TermSwitch:
		out := make([]*Value, 0, 1+len(t.Switch.Cases))
		out = append(out, &t.Switch.Value)
		for i := range t.Switch.Cases {
			out = append(out, &t.Switch.Cases[i].Value)
		}
		return out
	}
	return nil
}

// Successors lists the blocks control may transfer to, in operand order.
func (t *Terminator) Successors() []BlockID {
	switch t.Kind {
	case TermBr:
		return []BlockID{t.Br.Target}
	case TermCondBr:
		return []BlockID{t.CondBr.Then, t.CondBr.Else}
	case TermSwitch:
		out := make([]BlockID, 0, 1+len(t.Switch.Cases))
		out = append(out, t.Switch.Default)
		for _, c := range t.Switch.Cases {
			out = append(out, c.Target)
		}
		return out
	default:
		return nil
	}
}

// successorRefs returns pointers to every successor slot so passes can
// retarget edges in place.
func (t *Terminator) successorRefs() []*BlockID {
	switch t.Kind {
	case TermBr:
		return []*BlockID{&t.Br.Target}
	case TermCondBr:
		return []*BlockID{&t.CondBr.Then, &t.CondBr.Else}
	case TermSwitch:
		out := make([]*BlockID, 0, 1+len(t.Switch.Cases))
		out = append(out, &t.Switch.Default)
		for i := range t.Switch.Cases {
			out = append(out, &t.Switch.Cases[i].Target)
		}
		return out
	default:
		return nil
	}
}
