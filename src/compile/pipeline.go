// Package compile is the top-level pipeline orchestrator: it wires the
// control-flow analyzer, IR-gen, the optimizer, ASM-gen, register
// allocation and finalization into the single driver entry point external
// callers invoke with (a TAST, a module name, and a build config), in the
// same style as a named-stage PipelineOptions struct rather than exposing
// each stage as its own public entry point.
package compile

import (
	"fmt"

	"crucible/compiler/abi"
	"crucible/compiler/allocatedasm"
	"crucible/compiler/asmgen"
	"crucible/compiler/cfa"
	"crucible/compiler/diag"
	"crucible/compiler/finalize"
	"crucible/compiler/ir"
	"crucible/compiler/irgen"
	"crucible/compiler/opt"
	"crucible/compiler/regalloc"
	"crucible/compiler/source"
	"crucible/compiler/tast"
)

// BuildTarget names the on-chain VM this compilation targets.
type BuildTarget int

const (
	FuelVM BuildTarget = iota
	EVM
)

func (t BuildTarget) String() string {
	if t == EVM {
		return "EVM"
	}
	return "FuelVM"
}

// Config is the build configuration named by the external interface: the
// flags a driver (CLI, test harness, package-manager build step) may set
// before invoking the pipeline.
type Config struct {
	PrintIR bool
	PrintASM bool
	PrintBytecode bool
	Release bool
	IncludeTests bool
	BuildTarget BuildTarget

	// WarningsAsErrors escalates every warning to abort-worthy. Warnings
	// never abort the pipeline on their own otherwise.
	WarningsAsErrors bool

	// PassSchedule overrides opt.StandardSchedule; nil uses the standard
	// schedule.
	PassSchedule []string
}

// DefaultConfig returns the build config a bare `crucible build` would use.
func DefaultConfig() *Config {
	return &Config{BuildTarget: FuelVM}
}

// Result is everything one invocation of Run produces: the diagnostics
// accumulated across every stage that ran, the module at whichever point
// the driver stopped, the finalized bytecode (nil if a stage aborted before
// finalization), and the ABI document (nil for kinds with no ABI surface).
type Result struct {
	Diags *diag.Handler
	Module *ir.Module
	ASM *asmgen.Program
	Bytecode *finalize.Result
	ABI *abi.Document

	// Stage records the last stage that actually ran, for driver logging and
	// for tests asserting where a compilation was expected to stop.
	Stage string
}

// Run executes the pipeline against prog, stopping immediately after the
// first stage whose diagnostics make its output unusable by the next stage
// (e.g. IR-gen requires a clean TAST). A stage that ran but produced only
// warnings still lets the pipeline proceed, unless WarningsAsErrors is set.
func Run(prog *tast.Program, moduleName string, cfg *Config) *Result {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	diags := diag.NewHandler()
	res := &Result{Diags: diags}

	cfa.Check(prog, diags)
	res.Stage = "cfa"
	if abortAfter(diags, cfg) {
		return res
	}

	mod := irgen.Generate(prog, moduleName, diags)
	res.Module = mod
	res.Stage = "irgen"
	if abortAfter(diags, cfg) {
		return res
	}

	schedule := cfg.PassSchedule
	if schedule == nil {
		schedule = opt.StandardSchedule
	}
	mgr := opt.NewManager(schedule)
	if _, err := mgr.Run(mod); err != nil {
		diags.Emit(diag.Internal(source.NoSpan, err.Error()))
		res.Stage = "optimize"
		return res
	}
	res.Stage = "optimize"
	if abortAfter(diags, cfg) {
		return res
	}

	ir.CheckNoResidualCalls(mod, diags)
	if abortAfter(diags, cfg) {
		return res
	}

	asmProg := asmgen.Generate(mod, diags)
	res.ASM = asmProg
	res.Stage = "asmgen"
	if abortAfter(diags, cfg) {
		return res
	}

	allocated := make([]*allocatedasm.Function, 0, len(asmProg.Functions))
	for _, fn := range asmProg.Functions {
		af, err := regalloc.Allocate(fn)
		if err != nil {
			diags.Emit(diag.Internal(source.NoSpan, fmt.Sprintf("register allocation for %q: %s", fn.Name, err)))
			continue
		}
		allocated = append(allocated, af)
	}
	res.Stage = "regalloc"
	if abortAfter(diags, cfg) {
		return res
	}

	bc, err := finalize.Finalize(allocated, asmProg.Data)
	if err != nil {
		diags.Emit(diag.Internal(source.NoSpan, err.Error()))
		res.Stage = "finalize"
		return res
	}
	res.Bytecode = bc
	res.Stage = "finalize"

	if mod.Kind == ir.KindContract || mod.Kind == ir.KindScript {
		res.ABI = abi.Emit(mod)
	}

	return res
}

// abortAfter implements the propagation policy's abort test for the stage
// that just ran: abort on any error, or on any warning when the build
// requests warnings-as-errors. Info-level diagnostics never abort.
func abortAfter(diags *diag.Handler, cfg *Config) bool {
	if diags.HasErrors() {
		return true
	}
	return cfg.WarningsAsErrors && diags.HasWarnings()
}
