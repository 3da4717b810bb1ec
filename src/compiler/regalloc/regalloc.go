// Package regalloc maps the virtual registers asmgen hands out onto the
// VM's fixed-size physical general-purpose register file, using a linear
// scan driven directly by a backward liveness fixpoint over the already
// linear vasm.Op stream asmgen produces — there is no separate CFG type to
// build here, only successor edges derived from each Op's own
// Target/fallthrough shape.
package regalloc

import (
	"fmt"
	"sort"

	"crucible/compiler/allocatedasm"
	"crucible/compiler/asmgen"
	"crucible/compiler/asmtypes"
	"crucible/compiler/vasm"
)

// Allocate lowers one asmgen.Function's virtual registers to physical
// registers, returning an allocatedasm.Function ready for finalization.
func Allocate(fn *asmgen.Function) (*allocatedasm.Function, error) {
	a := &allocator{fn: fn, labelIndex: indexLabels(fn.Ops)}
	a.computeLiveness()
	if err := a.assignColors(); err != nil {
		return nil, fmt.Errorf("function %q: %w", fn.Name, err)
	}

	out := &allocatedasm.Function{Name: fn.Name, IsEntry: fn.IsEntry}
	out.Ops = make([]vasm.Op, len(fn.Ops))
	for i, op := range fn.Ops {
		out.Ops[i] = a.rewrite(op)
	}
	out.UsedPhysical = a.usedPhysical()

	for i := range out.Ops {
		if out.Ops[i].Code == vasm.PushAll || out.Ops[i].Code == vasm.PopAll {
			out.Ops[i].SavedRegisters = out.UsedPhysical
		}
	}
	return out, nil
}

// indexLabels maps every label bound in ops to the index of the op it is
// bound to, so a jump Target can be turned into a successor index.
func indexLabels(ops []vasm.Op) map[asmtypes.Label]int {
	idx := make(map[asmtypes.Label]int)
	for i, op := range ops {
		for _, l := range op.Labels {
			idx[l] = i
		}
	}
	return idx
}

type allocator struct {
	fn *asmgen.Function
	labelIndex map[asmtypes.Label]int

	liveIn []map[string]bool
	liveOut []map[string]bool

	assigned map[string]int // virtual register name -> physical id
}

// successors returns the op indices control may flow to immediately after i.
func (a *allocator) successors(i int) []int {
	op := a.fn.Ops[i]
	switch op.Code {
	case vasm.Ret:
		return nil
	case vasm.JumpTo:
		if t, ok := a.labelIndex[op.Target]; ok {
			return []int{t}
		}
		return nil
	case vasm.Call:
		// Call transfers to a label in a different function's own Ops
		// slice (not present in this function's labelIndex); control
		// returns here via the callee's Ret reading ReturnAddress, which
		// asmgen always points at the very next op (the bound resume
		// label immediately follows the Call). So the only successor
		// that matters for this function's own liveness is i+1.
		if i+1 < len(a.fn.Ops) {
			return []int{i + 1}
		}
		return nil
	case vasm.JumpIfNotZero:
		var out []int
		if t, ok := a.labelIndex[op.Target]; ok {
			out = append(out, t)
		}
		if i+1 < len(a.fn.Ops) {
			out = append(out, i+1)
		}
		return out
	default:
		if i+1 < len(a.fn.Ops) {
			return []int{i + 1}
		}
		return nil
	}
}

func virtualNames(regs []asmtypes.Register) []string {
	var names []string
	for _, r := range regs {
		if r.Kind == asmtypes.KindVirtual {
			names = append(names, r.Name)
		}
	}
	return names
}

func (a *allocator) defs(i int) []string {
	op := a.fn.Ops[i]
	if op.HasDst {
		return virtualNames([]asmtypes.Register{op.Dst})
	}
	return nil
}

func (a *allocator) uses(i int) []string {
	return virtualNames(a.fn.Ops[i].Reads())
}

// computeLiveness runs the standard backward dataflow fixpoint:
//
//	liveOut[i] = union of liveIn[s] for s in successors(i)
//	liveIn[i] = uses(i) ∪ (liveOut[i] - defs(i))
//
// Iterating to a fixpoint handles back edges from loops correctly, unlike a
// single backward pass.
func (a *allocator) computeLiveness() {
	n := len(a.fn.Ops)
	a.liveIn = make([]map[string]bool, n)
	a.liveOut = make([]map[string]bool, n)
	for i := 0; i < n; i++ {
		a.liveIn[i] = make(map[string]bool)
		a.liveOut[i] = make(map[string]bool)
	}

	changed := true
	for changed {
		changed = false
		for i := n - 1; i >= 0; i-- {
			out := make(map[string]bool)
			for _, s := range a.successors(i) {
				for v := range a.liveIn[s] {
					out[v] = true
				}
			}
			in := make(map[string]bool)
			for _, v := range a.uses(i) {
				in[v] = true
			}
			defSet := make(map[string]bool)
			for _, v := range a.defs(i) {
				defSet[v] = true
			}
			for v := range out {
				if !defSet[v] {
					in[v] = true
				}
			}

			if !mapsEqual(out, a.liveOut[i]) || !mapsEqual(in, a.liveIn[i]) {
				changed = true
			}
			a.liveOut[i] = out
			a.liveIn[i] = in
		}
	}
}

func mapsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// assignColors walks the function in program order; every virtual register
// is assigned the lowest-numbered physical register not already held by
// another virtual register simultaneously live at the point it is first
// defined or used. Processing in a fixed, deterministic order keeps
// allocation output reproducible across runs for the same input.
func (a *allocator) assignColors() error {
	a.assigned = make(map[string]int)

	order := make([]string, 0)
	seen := make(map[string]bool)
	addOrdered := func(names []string) {
		for _, v := range names {
			if !seen[v] {
				seen[v] = true
				order = append(order, v)
			}
		}
	}
	for i := range a.fn.Ops {
		addOrdered(a.defs(i))
		addOrdered(a.uses(i))
	}

	for i := range a.fn.Ops {
		live := make(map[string]bool)
		for v := range a.liveIn[i] {
			live[v] = true
		}
		for _, v := range a.defs(i) {
			live[v] = true
		}

		for _, name := range order {
			if !live[name] {
				continue
			}
			if _, ok := a.assigned[name]; ok {
				continue
			}
			forbidden := make(map[int]bool)
			for other := range live {
				if other == name {
					continue
				}
				if id, ok := a.assigned[other]; ok {
					forbidden[id] = true
				}
			}
			id, err := lowestFree(forbidden)
			if err != nil {
				return err
			}
			a.assigned[name] = id
		}
	}
	return nil
}

func lowestFree(forbidden map[int]bool) (int, error) {
	for id := 0; id < asmtypes.NumGeneralPurpose; id++ {
		if !forbidden[id] {
			return id, nil
		}
	}
	return 0, fmt.Errorf("internal compiler error: allocator cannot resolve a register mapping; reduce variable pressure")
}

func (a *allocator) rewrite(op vasm.Op) vasm.Op {
	if op.HasDst && op.Dst.Kind == asmtypes.KindVirtual {
		op.Dst = a.physical(op.Dst)
	}
	for i := 0; i < op.NumSrc; i++ {
		if op.Src[i].Kind == asmtypes.KindVirtual {
			op.Src[i] = a.physical(op.Src[i])
		}
	}
	return op
}

func (a *allocator) physical(r asmtypes.Register) asmtypes.Register {
	id, ok := a.assigned[r.Name]
	if !ok {
		// Defined but never live anywhere a use could see it (dead
		// definition dce should have removed). Give it an arbitrary
		// register rather than leaving it virtual; correctness is
		// unaffected since nothing reads it.
		return asmtypes.Physical(0)
	}
	return asmtypes.Physical(id)
}

func (a *allocator) usedPhysical() []asmtypes.Register {
	ids := make(map[int]bool)
	for _, id := range a.assigned {
		ids[id] = true
	}
	sorted := make([]int, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)
	regs := make([]asmtypes.Register, len(sorted))
	for i, id := range sorted {
		regs[i] = asmtypes.Physical(id)
	}
	return regs
}
