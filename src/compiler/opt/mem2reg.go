package opt

import "crucible/compiler/ir"

// Mem2Reg promotes stack locals whose address is never observed escapingly
// to SSA values, inserting phi equivalents at join points.
//
// This IR never materializes an address-of operator (irgen only ever reads
// a local through OpLoadLocal/OpStoreLocal), so "address never observed
// escapingly" reduces to "every use of the local is a Load or a Store in
// this function". The one case this pass conservatively declines to handle
// is a local touched inside a loop body, where promotion needs a real
// dominance-frontier phi placement; those stay stack-allocated (a
// correctness-preserving simplification, see DESIGN.md).
type Mem2Reg struct{}

func (Mem2Reg) Name() string { return "mem2reg" }

func (p Mem2Reg) Run(m *ir.Module) bool {
	changed := false
	for _, fh := range m.Functions() {
		fn := m.Function(fh)
		if fn == nil {
			continue
		}
		if runMem2RegOnFunction(fn) {
			changed = true
		}
	}
	return changed
}

func runMem2RegOnFunction(fn *ir.Function) bool {
	loopTouched := markLoopTouchedLocals(fn)
	promotable := make(map[int]bool)
	for i := range fn.Locals {
		if !loopTouched[i] {
			promotable[i] = true
		}
	}
	if len(promotable) == 0 {
		return false
	}

	changed := false
	current := make(map[int]ir.ValueHandle) // last known value per local, within this linear walk
	blockExit := make(map[ir.BlockHandle]map[int]ir.ValueHandle)

	order := fn.Blocks() // construction order == reverse postorder for the acyclic shapes irgen builds
	for _, bh := range order {
		blk := fn.Block(bh)
		// Seed `current` from predecessors already visited.
		seeded := false
		for _, pred := range blk.Preds {
			if vals, ok := blockExit[pred]; ok {
				if !seeded {
					current = map[int]ir.ValueHandle{}
					for k, v := range vals {
						current[k] = v
					}
					seeded = true
				} else {
					// Multiple predecessors disagreeing: insert a phi for
					// any local whose incoming value differs, and only if
					// every predecessor has been visited (no back-edges
					// among the promotable set here, loop-touched locals
					// are already excluded).
					for k, v := range vals {
						if cur, ok := current[k]; ok && cur != v {
							phiVal := fn.Emit(bh, ir.Instruction{
								Op: ir.OpPhi,
								Type: localType(fn, k),
								PhiEdges: []ir.PhiEdge{
									{From: blk.Preds[0], Value: cur},
									{From: pred, Value: v},
								},
							})
							// Move the freshly emitted phi to the front of
							// the block's instruction list so it precedes
							// whatever was already appended as part of
							// seeding another local's phi.
							movePhiToFront(fn, bh, phiVal)
							current[k] = phiVal
							changed = true
						}
					}
				}
			}
		}
		if !seeded {
			current = map[int]ir.ValueHandle{}
		}

		var kept []ir.ValueHandle
		for _, vh := range blk.Instructions {
			inst := fn.Value(vh)
			if inst == nil {
				continue
			}
			switch inst.Op {
			case ir.OpAlloca:
				if promotable[inst.LocalIdx] {
					changed = true
					continue // drop the alloca
				}
			case ir.OpStoreLocal:
				if promotable[inst.LocalIdx] {
					current[inst.LocalIdx] = inst.Operands[0]
					changed = true
					continue // drop the store; value lives in `current`
				}
			case ir.OpLoadLocal:
				if promotable[inst.LocalIdx] {
					if v, ok := current[inst.LocalIdx]; ok {
						substitute(fn, vh, v)
						changed = true
						continue // drop the load
					}
				}
			}
			kept = append(kept, vh)
		}
		blk.Instructions = kept

		snapshot := make(map[int]ir.ValueHandle, len(current))
		for k, v := range current {
			snapshot[k] = v
		}
		blockExit[bh] = snapshot
	}
	return changed
}

func localType(fn *ir.Function, idx int) ir.Type {
	if idx >= 0 && idx < len(fn.Locals) {
		return fn.Locals[idx].Type
	}
	return ir.TypeUnit
}

func movePhiToFront(fn *ir.Function, bh ir.BlockHandle, vh ir.ValueHandle) {
	blk := fn.Block(bh)
	for i, v := range blk.Instructions {
		if v == vh {
			blk.Instructions = append(blk.Instructions[:i], blk.Instructions[i+1:]...)
			break
		}
	}
	blk.Instructions = append([]ir.ValueHandle{vh}, blk.Instructions...)
}

// substitute rewrites every remaining reference to `from` into `to` across
// the whole function. It is used by both mem2reg (load -> last store) and
// const-combine (folded value -> its new constant).
func substitute(fn *ir.Function, from, to ir.ValueHandle) {
	for _, bh := range fn.Blocks() {
		blk := fn.Block(bh)
		for _, vh := range blk.Instructions {
			inst := fn.Value(vh)
			if inst == nil {
				continue
			}
			for i, op := range inst.Operands {
				if op == from {
					inst.Operands[i] = to
				}
			}
			for i, e := range inst.PhiEdges {
				if e.Value == from {
					inst.PhiEdges[i].Value = to
				}
			}
		}
	}
}

// markLoopTouchedLocals finds every local read or written from within a
// block that is part of a loop (reachable from itself via Succs), the
// simplified escape condition this pass bails promotion on.
func markLoopTouchedLocals(fn *ir.Function) map[int]bool {
	loopBlocks := findLoopBlocks(fn)
	touched := make(map[int]bool)
	for _, bh := range fn.Blocks() {
		if !loopBlocks[bh] {
			continue
		}
		blk := fn.Block(bh)
		for _, vh := range blk.Instructions {
			inst := fn.Value(vh)
			if inst == nil {
				continue
			}
			if inst.Op == ir.OpAlloca || inst.Op == ir.OpLoadLocal || inst.Op == ir.OpStoreLocal {
				touched[inst.LocalIdx] = true
			}
		}
	}
	return touched
}

// findLoopBlocks marks every block that lies on some cycle (i.e. is
// reachable from itself), by finding back-edges: an edge (u, v) where v
// was already on the current DFS stack.
func findLoopBlocks(fn *ir.Function) map[ir.BlockHandle]bool {
	const (
		white = iota
		gray
		black
	)
	color := make(map[ir.BlockHandle]int)
	loop := make(map[ir.BlockHandle]bool)

	var dfs func(h ir.BlockHandle)
	dfs = func(h ir.BlockHandle) {
		color[h] = gray
		blk := fn.Block(h)
		if blk != nil {
			for _, s := range blk.Succs {
				switch color[s] {
				case white:
					dfs(s)
				case gray:
					loop[s] = true
					loop[h] = true
				}
			}
		}
		color[h] = black
	}
	dfs(fn.Entry)
	return loop
}
