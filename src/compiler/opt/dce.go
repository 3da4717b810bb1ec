package opt

import "crucible/compiler/ir"

// DCE removes instructions whose values are unused and that have no side
// effects.
type DCE struct{}

func (DCE) Name() string { return "dce" }

func (p DCE) Run(m *ir.Module) bool {
	changed := false
	for _, fh := range m.Functions() {
		fn := m.Function(fh)
		if fn == nil {
			continue
		}
		if runDCE(fn) {
			changed = true
		}
	}
	return changed
}

func runDCE(fn *ir.Function) bool {
	changed := false
	// Iterate to a local fixpoint: removing a dead value can make its own
	// operands dead in turn.
	for {
		uses := countUses(fn)
		removedAny := false
		for _, bh := range fn.Blocks() {
			blk := fn.Block(bh)
			kept := blk.Instructions[:0]
			for _, vh := range blk.Instructions {
				inst := fn.Value(vh)
				if inst == nil {
					continue
				}
				if !inst.Op.HasSideEffect() && uses[vh] == 0 {
					fn.DeleteValue(vh)
					removedAny = true
					changed = true
					continue
				}
				kept = append(kept, vh)
			}
			blk.Instructions = kept
		}
		if !removedAny {
			break
		}
	}
	return changed
}
