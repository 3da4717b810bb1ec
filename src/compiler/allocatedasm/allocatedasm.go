// Package allocatedasm is the output of register allocation: a vasm.Op
// sequence in which every register operand is either a reserved VM register
// or a physical register ID, never a virtual one.
//
// It reuses vasm.Op rather than introducing a parallel opcode enumeration —
// an Op's register operands simply flip from virtual to physical in place;
// this package does the same thing at the slice level instead of
// re-declaring every opcode.
package allocatedasm

import (
	"fmt"

	"crucible/compiler/asmtypes"
	"crucible/compiler/vasm"
)

// Function is one function's allocated instruction sequence plus the
// physical registers its prologue/epilogue must actually save, resolved
// from the PushAll/PopAll placeholders.
type Function struct {
	Name string
	Ops []vasm.Op
	UsedPhysical []asmtypes.Register // distinct GP registers this function assigns
	IsEntry bool
}

// Validate checks the register-legality invariant: every operand register is
// either reserved or an allocated physical register ID within the
// VM-specified range.
func Validate(f *Function) error {
	check := func(r asmtypes.Register) error {
		switch r.Kind {
		case asmtypes.KindReserved:
			return nil
		case asmtypes.KindPhysical:
			if r.Physical < 0 || r.Physical >= asmtypes.NumGeneralPurpose {
				return fmt.Errorf("internal compiler error: physical register %d out of range in function %q", r.Physical, f.Name)
			}
			return nil
		default:
			return fmt.Errorf("internal compiler error: unallocated virtual register %s reached allocated ASM in function %q", r, f.Name)
		}
	}

	for i, op := range f.Ops {
		if op.HasDst {
			if err := check(op.Dst); err != nil {
				return fmt.Errorf("op %d (%s): %w", i, op, err)
			}
		}
		for _, r := range op.Reads() {
			if err := check(r); err != nil {
				return fmt.Errorf("op %d (%s): %w", i, op, err)
			}
		}
	}
	return nil
}
