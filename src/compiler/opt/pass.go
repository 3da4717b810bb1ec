// Package opt is the pass manager and the standard optimization schedule.
// Pass identity is a name; NewRegistry registers every built-in pass, and
// the schedule is a vector of names, which supports experimenting with pass
// orders without type-level changes.
package opt

import "crucible/compiler/ir"

// Pass is a named function from IR to IR, reporting whether it changed
// anything. Passes must be idempotent on unchanged input and
// may be scheduled more than once to reach a fixpoint.
type Pass interface {
	Name() string
	Run(m *ir.Module) bool
}

// Registry holds every known pass by name.
type Registry struct {
	passes map[string]Pass
}

func NewRegistry() *Registry {
	r := &Registry{passes: make(map[string]Pass)}
	for _, p := range []Pass{
		&Mem2Reg{}, &Inline{}, &ConstCombine{}, &SimplifyCFG{}, &FuncDCE{}, &DCE{},
	} {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Pass) {
	r.passes[p.Name()] = p
}

func (r *Registry) Lookup(name string) (Pass, bool) {
	p, ok := r.passes[name]
	return p, ok
}

// StandardSchedule is the fixed pass schedule: mem2reg, inline,
// const-combine, simplify-cfg, const-combine, simplify-cfg (again, to clean
// up after inlining), func-dce, dce.
var StandardSchedule = []string{
	"mem2reg",
	"inline",
	"const-combine",
	"simplify-cfg",
	"const-combine",
	"simplify-cfg",
	"func-dce",
	"dce",
}

// Manager executes an ordered schedule of named passes against a Module.
type Manager struct {
	registry *Registry
	schedule []string
}

func NewManager(schedule []string) *Manager {
	return &Manager{registry: NewRegistry(), schedule: schedule}
}

// Run executes the schedule in order, returning whether any pass in the
// schedule reported a change.
func (m *Manager) Run(mod *ir.Module) (bool, error) {
	anyChanged := false
	for _, name := range m.schedule {
		p, ok := m.registry.Lookup(name)
		if !ok {
			return anyChanged, &UnknownPassError{Name: name}
		}
		if p.Run(mod) {
			anyChanged = true
		}
	}
	return anyChanged, nil
}

type UnknownPassError struct{ Name string }

func (e *UnknownPassError) Error() string {
	return "internal compiler error: unknown pass name " + e.Name
}

// RunToFixpoint re-runs a single named pass until it reports no further
// change, used both as an optimization strategy and to assert the
// idempotence property of directly: running a pass twice in a row
// must produce the same IR as running it once.
func (m *Manager) RunToFixpoint(mod *ir.Module, name string, limit int) (int, error) {
	p, ok := m.registry.Lookup(name)
	if !ok {
		return 0, &UnknownPassError{Name: name}
	}
	iterations := 0
	for i := 0; i < limit; i++ {
		iterations++
		if !p.Run(mod) {
			break
		}
	}
	return iterations, nil
}
