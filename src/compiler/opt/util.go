package opt

import "crucible/compiler/ir"

// countUses returns, for every value defined in fn, how many times it is
// referenced as an operand (including branch conditions and phi edges) by
// another live instruction. dce needs this to decide whether a value may be
// removed, const-combine to tell whether an identity still has uses to
// rewrite.
func countUses(fn *ir.Function) map[ir.ValueHandle]int {
	uses := make(map[ir.ValueHandle]int)
	for _, bh := range fn.Blocks() {
		blk := fn.Block(bh)
		for _, vh := range blk.Instructions {
			inst := fn.Value(vh)
			if inst == nil {
				continue
			}
			for _, op := range inst.Operands {
				uses[op]++
			}
			for _, e := range inst.PhiEdges {
				uses[e.Value]++
			}
		}
	}
	return uses
}

// reachableBlocks returns the set of blocks reachable from fn.Entry by
// following Succs, used by simplify-cfg to discard dead blocks.
func reachableBlocks(fn *ir.Function) map[ir.BlockHandle]bool {
	seen := map[ir.BlockHandle]bool{fn.Entry: true}
	queue := []ir.BlockHandle{fn.Entry}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		blk := fn.Block(h)
		if blk == nil {
			continue
		}
		for _, s := range blk.Succs {
			if !seen[s] {
				seen[s] = true
				queue = append(queue, s)
			}
		}
	}
	return seen
}

// reachableFunctions walks the call graph from m.EntryPoints, used by
// func-dce to remove functions never reachable from the module's entry
// points.
func reachableFunctions(m *ir.Module) map[ir.FunctionHandle]bool {
	seen := make(map[ir.FunctionHandle]bool)
	var visit func(h ir.FunctionHandle)
	visit = func(h ir.FunctionHandle) {
		if seen[h] {
			return
		}
		fn := m.Function(h)
		if fn == nil {
			return
		}
		seen[h] = true
		for _, bh := range fn.Blocks() {
			blk := fn.Block(bh)
			for _, vh := range blk.Instructions {
				inst := fn.Value(vh)
				if inst != nil && inst.Op == ir.OpCall {
					visit(inst.Callee)
				}
			}
		}
	}
	for _, h := range m.EntryPoints {
		visit(h)
	}
	return seen
}
