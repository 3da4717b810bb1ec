package ir

import (
	"crucible/compiler/diag"
)

// CheckPurity walks every function of the module and flags any storage read
// or write that violates the function's declared purity. This runs immediately after
// IR construction, before any optimization pass touches the module.
func CheckPurity(m *Module, h *diag.Handler) {
	for _, fh := range m.Functions() {
		fn := m.Function(fh)
		if fn == nil {
			continue
		}
		checkFunctionPurity(fn, h)
	}
}

// CheckNoResidualCalls runs after the optimizer's inline pass, not at
// irgen time: a predicate program must never emit a runtime Call opcode,
// but inline only guarantees that for single-return, non-recursive
// callees (see opt.Inline), so a multi-return or recursive callee can
// leave a real OpCall behind. This catches that case before asmgen lowers
// it to an unguarded vasm Call.
func CheckNoResidualCalls(m *Module, h *diag.Handler) {
	if m.Kind != KindPredicate {
		return
	}
	for _, fh := range m.Functions() {
		fn := m.Function(fh)
		if fn == nil {
			continue
		}
		for _, bh := range fn.Blocks() {
			blk := fn.Block(bh)
			for _, vh := range blk.Instructions {
				inst := fn.Value(vh)
				if inst == nil || inst.Op != OpCall {
					continue
				}
				callee := m.Function(inst.Callee)
				name := "<unknown>"
				if callee != nil {
					name = callee.Name
				}
				h.Emit(diag.New(diag.LevelError, diag.CodePurityViolation, inst.Span,
					"predicate programs must never emit a call instruction, but a call to "+name+" survived inlining").
					WithHelp("split the callee into single-return, non-recursive form so inline can fully absorb it"))
			}
		}
	}
}

func checkFunctionPurity(fn *Function, h *diag.Handler) {
	for _, bh := range fn.Blocks() {
		blk := fn.Block(bh)
		for _, vh := range blk.Instructions {
			inst := fn.Value(vh)
			if inst == nil {
				continue
			}
			switch inst.Op {
			case OpStorageRead:
				if !fn.Purity.AllowsRead() {
					h.Emit(diag.New(diag.LevelError, diag.CodePurityViolation, inst.Span,
						"storage read in function declared "+fn.Purity.String()).
						WithHelp("declare the function read or read-write to permit storage reads"))
				}
			case OpStorageWrite:
				if !fn.Purity.AllowsWrite() {
					h.Emit(diag.New(diag.LevelError, diag.CodePurityViolation, inst.Span,
						"storage write in function declared "+fn.Purity.String()).
						WithHelp("declare the function write or read-write to permit storage writes"))
				}
			}
		}
	}
}
