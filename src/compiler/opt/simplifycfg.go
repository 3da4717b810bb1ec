package opt

import "crucible/compiler/ir"

// SimplifyCFG merges straight-line blocks, removes unreachable blocks, and
// collapses trivial conditionals.
type SimplifyCFG struct{}

func (SimplifyCFG) Name() string { return "simplify-cfg" }

func (p SimplifyCFG) Run(m *ir.Module) bool {
	changed := false
	for _, fh := range m.Functions() {
		fn := m.Function(fh)
		if fn == nil {
			continue
		}
		if runSimplifyCFG(fn) {
			changed = true
		}
	}
	return changed
}

func runSimplifyCFG(fn *ir.Function) bool {
	changed := false
	changed = collapseTrivialConditionals(fn) || changed
	changed = removeUnreachableBlocks(fn) || changed
	changed = mergeStraightLineBlocks(fn) || changed
	return changed
}

// collapseTrivialConditionals rewrites an OpBranch into an OpJump when its
// condition is a known constant, or when both successors are identical.
func collapseTrivialConditionals(fn *ir.Function) bool {
	changed := false
	for _, bh := range fn.Blocks() {
		blk := fn.Block(bh)
		if len(blk.Instructions) == 0 {
			continue
		}
		termH := blk.Instructions[len(blk.Instructions)-1]
		term := fn.Value(termH)
		if term == nil || term.Op != ir.OpBranch {
			continue
		}
		var target ir.BlockHandle
		collapse := false
		if term.Then == term.Else {
			target, collapse = term.Then, true
		} else if c, ok := asConstInt(fn, term.Operands[0]); ok {
			if c != 0 {
				target = term.Then
			} else {
				target = term.Else
			}
			collapse = true
		}
		if !collapse {
			continue
		}
		dead := term.Then
		if target == term.Then {
			dead = term.Else
		}
		if dead != target {
			removeEdge(fn, bh, dead)
		}
		fn.ReplaceValue(termH, ir.Instruction{Op: ir.OpJump, Type: ir.TypeUnit, Span: term.Span, Then: target})
		changed = true
	}
	return changed
}

func removeEdge(fn *ir.Function, from, to ir.BlockHandle) {
	toBlk := fn.Block(to)
	if toBlk == nil {
		return
	}
	kept := toBlk.Preds[:0]
	for _, p := range toBlk.Preds {
		if p != from {
			kept = append(kept, p)
		}
	}
	toBlk.Preds = kept
	fromBlk := fn.Block(from)
	keptSucc := fromBlk.Succs[:0]
	for _, s := range fromBlk.Succs {
		if s != to {
			keptSucc = append(keptSucc, s)
		}
	}
	fromBlk.Succs = keptSucc
}

func removeUnreachableBlocks(fn *ir.Function) bool {
	reach := reachableBlocks(fn)
	changed := false
	for _, bh := range fn.Blocks() {
		if !reach[bh] {
			fn.RemoveBlock(bh)
			changed = true
		}
	}
	return changed
}

// mergeStraightLineBlocks folds a block with exactly one successor into that
// successor when the successor has exactly one predecessor (this block).
func mergeStraightLineBlocks(fn *ir.Function) bool {
	changed := false
	for _, bh := range fn.Blocks() {
		blk := fn.Block(bh)
		if blk == nil || len(blk.Instructions) == 0 {
			continue
		}
		termH := blk.Instructions[len(blk.Instructions)-1]
		term := fn.Value(termH)
		if term == nil || term.Op != ir.OpJump {
			continue
		}
		target := term.Then
		if target == bh {
			continue // self-loop, not mergeable
		}
		succBlk := fn.Block(target)
		if succBlk == nil || len(succBlk.Preds) != 1 || succBlk.Preds[0] != bh {
			continue
		}
		// Drop the jump and splice the successor's instructions in.
		blk.Instructions = blk.Instructions[:len(blk.Instructions)-1]
		blk.Instructions = append(blk.Instructions, succBlk.Instructions...)
		blk.Succs = succBlk.Succs
		for _, s := range blk.Succs {
			sBlk := fn.Block(s)
			for i, p := range sBlk.Preds {
				if p == target {
					sBlk.Preds[i] = bh
				}
			}
		}
		fn.RemoveBlock(target)
		changed = true
	}
	return changed
}
