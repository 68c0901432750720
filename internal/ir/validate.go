package ir

import (
	"errors"
	"fmt"

	"funcmerge/internal/types"
)

// Validate checks module invariants.
// Returns error if any invariant is violated.
func Validate(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	if err := validateNames(m); err != nil {
		errs = append(errs, err)
	}
	for _, a := range m.Aliases {
		if err := validateOperand(m, nil, nil, a.Aliasee); err != nil {
			errs = append(errs, fmt.Errorf("alias @%s: %w", a.Name, err))
		}
	}
	for _, g := range m.Vars {
		if !g.HasInit {
			continue
		}
		if err := validateOperand(m, nil, nil, g.Init); err != nil {
			errs = append(errs, fmt.Errorf("global @%s: %w", g.Name, err))
		} else if g.Init.Type != g.ValueType {
			errs = append(errs, fmt.Errorf("global @%s: initializer type %s, want %s",
				g.Name, types.Label(m.Types, g.Init.Type), types.Label(m.Types, g.ValueType)))
		}
	}
	for _, f := range m.Funcs {
		if f == nil {
			continue
		}
		if err := validateFunc(m, f); err != nil {
			errs = append(errs, fmt.Errorf("function @%s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

// validateNames checks that no two live globals share a name.
func validateNames(m *Module) error {
	var errs []error
	seen := make(map[string]bool)
	for _, g := range m.Globals() {
		name := g.Base().Name
		if name == "" {
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("duplicate global name @%s", name))
		}
		seen[name] = true
	}
	return errors.Join(errs...)
}

func validateFunc(m *Module, f *Func) error {
	info, ok := m.Types.FnInfo(f.Sig)
	if !ok {
		return fmt.Errorf("signature %s is not a function type", types.Label(m.Types, f.Sig))
	}
	if f.Type != m.Types.Pointer(f.Sig) {
		return fmt.Errorf("address type %s does not point to the signature", types.Label(m.Types, f.Type))
	}
	if f.IsDeclaration() {
		return nil
	}

	var errs []error

	// 1. Check all blocks terminated
	if err := validateBlocksTerminated(f); err != nil {
		errs = append(errs, err)
	}

	// 2. Check block targets exist
	if err := validateBlockTargets(f); err != nil {
		errs = append(errs, err)
	}

	// 3. Check operands resolve and calls match their callee
	defs, err := collectDefs(f)
	if err != nil {
		errs = append(errs, err)
	}
	if err := validateInstrs(m, f, defs); err != nil {
		errs = append(errs, err)
	}

	// 4. Check return type matching
	if err := validateReturn(m, f, info); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// validateBlocksTerminated checks that every block ends with a terminator.
func validateBlocksTerminated(f *Func) error {
	var errs []error
	for i := range f.Blocks {
		if f.Blocks[i].ID != BlockID(i) { //nolint:gosec // G115: bounded by block count
			errs = append(errs, fmt.Errorf("bb%d: stored ID %d does not match position", i, f.Blocks[i].ID))
		}
		if f.Blocks[i].Term.Kind == TermNone {
			errs = append(errs, fmt.Errorf("bb%d: unterminated block", i))
		}
	}
	return errors.Join(errs...)
}

// validateBlockTargets checks that the entry, every successor and every phi
// predecessor name an existing block.
func validateBlockTargets(f *Func) error {
	var errs []error
	if f.Block(f.Entry) == nil {
		errs = append(errs, fmt.Errorf("entry bb%d does not exist", f.Entry))
	}
	for i := range f.Blocks {
		b := &f.Blocks[i]
		for _, succ := range b.Term.Successors() {
			if f.Block(succ) == nil {
				errs = append(errs, fmt.Errorf("bb%d: branch to missing bb%d", b.ID, succ))
			}
		}
		for j := range b.Instrs {
			in := &b.Instrs[j]
			if in.Kind != InstrPhi {
				continue
			}
			for _, inc := range in.Phi.Incoming {
				if f.Block(inc.Block) == nil {
					errs = append(errs, fmt.Errorf("bb%d: phi %%v%d names missing bb%d", b.ID, in.ID, inc.Block))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func collectDefs(f *Func) (map[InstrID]types.TypeID, error) {
	var errs []error
	defs := make(map[InstrID]types.TypeID)
	for i := range f.Blocks {
		for j := range f.Blocks[i].Instrs {
			in := &f.Blocks[i].Instrs[j]
			if _, dup := defs[in.ID]; dup {
				errs = append(errs, fmt.Errorf("bb%d: instruction id %d defined twice", i, in.ID))
			}
			defs[in.ID] = in.Type
		}
	}
	return defs, errors.Join(errs...)
}

func validateOperand(m *Module, f *Func, defs map[InstrID]types.TypeID, v Value) error {
	switch v.Kind {
	case ValueNone:
		return errors.New("missing operand")
	case ValueArg:
		if f == nil {
			return errors.New("argument used outside a function")
		}
		if p := f.Param(v.Arg); !p.IsValid() || p.Type != v.Type {
			return fmt.Errorf("argument %%a%d does not match the signature", v.Arg)
		}
	case ValueInstr:
		ty, ok := defs[v.Instr]
		if !ok {
			return fmt.Errorf("use of undefined %%v%d", v.Instr)
		}
		if ty != v.Type {
			return fmt.Errorf("%%v%d used as %s, defined as %s", v.Instr, types.Label(m.Types, v.Type), types.Label(m.Types, ty))
		}
	case ValueConst:
		c := m.Const(v.Const)
		if c == nil {
			return fmt.Errorf("constant #%d out of range", v.Const)
		}
		if c.Type != v.Type {
			return fmt.Errorf("constant #%d type mismatch", v.Const)
		}
		for _, op := range c.Operands() {
			if err := validateOperand(m, nil, nil, *op); err != nil {
				return fmt.Errorf("constant #%d: %w", v.Const, err)
			}
		}
	case ValueGlobal:
		base := v.Global.Base()
		if base.Erased() || base.module != m {
			return fmt.Errorf("reference to erased or foreign global %q", base.Name)
		}
		if base.Type != v.Type {
			return fmt.Errorf("reference to @%s with type %s, want %s", base.Name, types.Label(m.Types, v.Type), types.Label(m.Types, base.Type))
		}
	}
	return nil
}

func validateInstrs(m *Module, f *Func, defs map[InstrID]types.TypeID) error {
	var errs []error
	for i := range f.Blocks {
		b := &f.Blocks[i]
		for j := range b.Instrs {
			in := &b.Instrs[j]
			for _, op := range in.Operands() {
				if err := validateOperand(m, f, defs, *op); err != nil {
					errs = append(errs, fmt.Errorf("bb%d %s %%v%d: %w", b.ID, in.Kind, in.ID, err))
				}
			}
			if in.Kind == InstrCall {
				if err := validateCall(m, in); err != nil {
					errs = append(errs, fmt.Errorf("bb%d call %%v%d: %w", b.ID, in.ID, err))
				}
			}
		}
		for _, op := range b.Term.Operands() {
			if err := validateOperand(m, f, defs, *op); err != nil {
				errs = append(errs, fmt.Errorf("bb%d terminator: %w", b.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// validateCall checks arity and argument types against the callee's type.
func validateCall(m *Module, in *Instr) error {
	_, info, ok := m.Types.PointeeFn(in.Call.Callee.Type)
	if !ok {
		return fmt.Errorf("callee type %s is not a function pointer", types.Label(m.Types, in.Call.Callee.Type))
	}
	args := in.Call.Args
	if len(args) < len(info.Params) || (!info.Variadic && len(args) != len(info.Params)) {
		return fmt.Errorf("%d arguments for %d parameters", len(args), len(info.Params))
	}
	var errs []error
	for i, p := range info.Params {
		if args[i].Type != p {
			errs = append(errs, fmt.Errorf("argument %d has type %s, want %s", i, types.Label(m.Types, args[i].Type), types.Label(m.Types, p)))
		}
	}
	want := info.Result
	if m.Types.IsVoid(want) {
		want = types.NoTypeID
	}
	if in.Type != want {
		errs = append(errs, fmt.Errorf("result type %s, callee returns %s", types.Label(m.Types, in.Type), types.Label(m.Types, info.Result)))
	}
	return errors.Join(errs...)
}

// validateReturn checks that ret terminators agree with the signature.
func validateReturn(m *Module, f *Func, info *types.FnInfo) error {
	void := m.Types.IsVoid(info.Result)
	var errs []error
	for i := range f.Blocks {
		term := &f.Blocks[i].Term
		if term.Kind != TermRet {
			continue
		}
		switch {
		case void && term.Ret.HasValue:
			errs = append(errs, fmt.Errorf("bb%d: void function returns a value", i))
		case !void && !term.Ret.HasValue:
			errs = append(errs, fmt.Errorf("bb%d: missing return value", i))
		case !void && term.Ret.Value.Type != info.Result:
			errs = append(errs, fmt.Errorf("bb%d: returns %s, want %s", i, types.Label(m.Types, term.Ret.Value.Type), types.Label(m.Types, info.Result)))
		}
	}
	return errors.Join(errs...)
}
