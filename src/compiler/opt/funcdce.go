package opt

import "crucible/compiler/ir"

// FuncDCE removes functions never reachable from the module's entry points.
type FuncDCE struct{}

func (FuncDCE) Name() string { return "func-dce" }

func (p FuncDCE) Run(m *ir.Module) bool {
	live := reachableFunctions(m)
	changed := false
	for _, h := range m.Functions() {
		if !live[h] {
			m.RemoveFunction(h)
			changed = true
		}
	}
	return changed
}
