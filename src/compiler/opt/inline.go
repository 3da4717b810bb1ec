package opt

import "crucible/compiler/ir"

// Inline inlines callees into callers subject to policy: in predicate
// programs, inline all non-recursive calls, since predicates forbid runtime
// control-transfer instructions and a program of kind predicate must never
// emit a Call opcode; in other programs, inline by a cost heuristic.
//
// To keep SSA reconstruction tractable this pass only inlines callees with
// exactly one return point — a callee with multiple returns is left as a
// real call (simplify-cfg's block-merging pass tends to reduce a function to
// a single return over time, so running the schedule to fixpoint recovers
// most of these on a later pass). This is a deliberate, documented
// simplification (see DESIGN.md): every call that *can* be inlined under the
// single-return restriction still is.
type Inline struct{}

func (Inline) Name() string { return "inline" }

// smallCalleeThreshold bounds the cost-heuristic inliner: a callee with more
// than this many instructions is not considered small enough to inline.
const smallCalleeThreshold = 24

func (p Inline) Run(m *ir.Module) bool {
	changed := false
	recursive := findRecursiveFunctions(m)

	for _, callerH := range m.Functions() {
		caller := m.Function(callerH)
		if caller == nil {
			continue
		}
		for {
			site, ok := findInlinableCallSite(m, caller, callerH, recursive)
			if !ok {
				break
			}
			inlineCallSite(m, caller, site)
			changed = true
		}
	}
	return changed
}

type callSite struct {
	block ir.BlockHandle
	index int
	value ir.ValueHandle
	inst *ir.Instruction
}

func findInlinableCallSite(m *ir.Module, caller *ir.Function, callerH ir.FunctionHandle, recursive map[ir.FunctionHandle]bool) (callSite, bool) {
	for _, bh := range caller.Blocks() {
		blk := caller.Block(bh)
		for i, vh := range blk.Instructions {
			inst := caller.Value(vh)
			if inst == nil || inst.Op != ir.OpCall {
				continue
			}
			if inst.Callee == callerH || recursive[inst.Callee] {
				continue
			}
			callee := m.Function(inst.Callee)
			if callee == nil || countReturns(callee) != 1 {
				continue
			}
			if m.Kind != ir.KindPredicate && countInstructions(callee) > smallCalleeThreshold {
				continue
			}
			return callSite{block: bh, index: i, value: vh, inst: inst}, true
		}
	}
	return callSite{}, false
}

func countReturns(fn *ir.Function) int {
	n := 0
	for _, bh := range fn.Blocks() {
		for _, vh := range fn.Block(bh).Instructions {
			if inst := fn.Value(vh); inst != nil && inst.Op == ir.OpReturn {
				n++
			}
		}
	}
	return n
}

func countInstructions(fn *ir.Function) int {
	n := 0
	for _, bh := range fn.Blocks() {
		n += len(fn.Block(bh).Instructions)
	}
	return n
}

func findRecursiveFunctions(m *ir.Module) map[ir.FunctionHandle]bool {
	rec := make(map[ir.FunctionHandle]bool)
	for _, h := range m.Functions() {
		fn := m.Function(h)
		if fn == nil {
			continue
		}
		for _, bh := range fn.Blocks() {
			for _, vh := range fn.Block(bh).Instructions {
				if inst := fn.Value(vh); inst != nil && inst.Op == ir.OpCall && inst.Callee == h {
					rec[h] = true
				}
			}
		}
	}
	return rec
}

// inlineCallSite splices callee's single-return body into caller at site.
func inlineCallSite(m *ir.Module, caller *ir.Function, site callSite) {
	callee := m.Function(site.inst.Callee)
	blk := caller.Block(site.block)

	before := append([]ir.ValueHandle{}, blk.Instructions[:site.index]...)
	after := append([]ir.ValueHandle{}, blk.Instructions[site.index+1:]...)

	contBlock := caller.NewBlock(blk.Label + ".cont")
	caller.Block(contBlock).Instructions = after
	caller.Block(contBlock).Succs = blk.Succs
	for _, s := range blk.Succs {
		sBlk := caller.Block(s)
		for i, p := range sBlk.Preds {
			if p == site.block {
				sBlk.Preds[i] = contBlock
			}
		}
	}

	blockMap := map[ir.BlockHandle]ir.BlockHandle{}
	valueMap := map[ir.ValueHandle]ir.ValueHandle{}

	// Bind callee parameters directly to the call's argument values: the
	// callee's entry block begins with one OpLoadLocal{LocalIdx:-1} per
	// parameter, in the order irgen emitted them.
	entryBlk := callee.Block(callee.Entry)
	paramCount := len(callee.Sig.Params)
	for i := 0; i < paramCount && i < len(entryBlk.Instructions); i++ {
		valueMap[entryBlk.Instructions[i]] = site.inst.Operands[i]
	}

	for _, cbh := range callee.Blocks() {
		nbh := caller.NewBlock(blk.Label + ".inl")
		blockMap[cbh] = nbh
	}

	var calleeEntryNew ir.BlockHandle
	var returnValue ir.ValueHandle
	var returnBlockNew ir.BlockHandle

	for idx, cbh := range callee.Blocks() {
		nbh := blockMap[cbh]
		cblk := callee.Block(cbh)
		if cbh == callee.Entry {
			calleeEntryNew = nbh
		}
		var newInstrs []ir.ValueHandle
		for i, cvh := range cblk.Instructions {
			if idx == indexOf(callee.Blocks(), callee.Entry) && i < paramCount {
				continue // already bound to the call's argument
			}
			cinst := callee.Value(cvh)
			if cinst == nil {
				continue
			}
			if cinst.Op == ir.OpReturn {
				if len(cinst.Operands) > 0 {
					returnValue = remap(valueMap, cinst.Operands[0])
				}
				returnBlockNew = nbh
				jh := caller.Emit(nbh, ir.Instruction{Op: ir.OpJump, Type: ir.TypeUnit, Span: cinst.Span, Then: contBlock})
				newInstrs = append(newInstrs, jh)
				continue
			}
			newInst := remapInstruction(cinst, valueMap, blockMap)
			nvh := caller.Emit(nbh, newInst)
			valueMap[cvh] = nvh
			newInstrs = append(newInstrs, nvh)
		}
		caller.Block(nbh).Instructions = newInstrs
		for _, s := range cblk.Succs {
			caller.Block(nbh).AddSucc(blockMap[s])
		}
		for _, pr := range cblk.Preds {
			caller.Block(nbh).AddPred(blockMap[pr])
		}
	}

	// Wire the split caller block into the inlined body.
	blk.Instructions = append(before, caller.Emit(site.block, ir.Instruction{Op: ir.OpJump, Type: ir.TypeUnit, Then: calleeEntryNew}))
	blk.Succs = []ir.BlockHandle{calleeEntryNew}
	caller.Block(calleeEntryNew).AddPred(site.block)

	caller.Block(returnBlockNew).AddSucc(contBlock)
	caller.Block(contBlock).AddPred(returnBlockNew)

	if site.inst.Type != ir.TypeUnit && returnValue.Valid() {
		substitute(caller, site.value, returnValue)
	}
}

func indexOf(blocks []ir.BlockHandle, target ir.BlockHandle) int {
	for i, b := range blocks {
		if b == target {
			return i
		}
	}
	return -1
}

func remap(valueMap map[ir.ValueHandle]ir.ValueHandle, h ir.ValueHandle) ir.ValueHandle {
	if v, ok := valueMap[h]; ok {
		return v
	}
	return h
}

func remapInstruction(inst *ir.Instruction, valueMap map[ir.ValueHandle]ir.ValueHandle, blockMap map[ir.BlockHandle]ir.BlockHandle) ir.Instruction {
	out := *inst
	out.Operands = make([]ir.ValueHandle, len(inst.Operands))
	for i, o := range inst.Operands {
		out.Operands[i] = remap(valueMap, o)
	}
	if inst.Op == ir.OpBranch || inst.Op == ir.OpJump {
		if nb, ok := blockMap[inst.Then]; ok {
			out.Then = nb
		}
		if inst.Op == ir.OpBranch {
			if nb, ok := blockMap[inst.Else]; ok {
				out.Else = nb
			}
		}
	}
	if len(inst.PhiEdges) > 0 {
		out.PhiEdges = make([]ir.PhiEdge, len(inst.PhiEdges))
		for i, e := range inst.PhiEdges {
			out.PhiEdges[i] = ir.PhiEdge{From: blockMap[e.From], Value: remap(valueMap, e.Value)}
		}
	}
	return out
}
