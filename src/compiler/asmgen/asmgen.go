// Package asmgen lowers one ir.Module into a set of vasm.Op sequences, one
// per function, implementing the calling convention, locals-frame layout,
// and entry-point argument unpacking for the on-chain VM's register ISA.
// There is a single target — the VM ISA vasm.Op already encodes — so
// there is no per-target selector interface here, just one lowering pass.
package asmgen

import (
	"fmt"

	"crucible/compiler/asmtypes"
	"crucible/compiler/datasection"
	"crucible/compiler/diag"
	"crucible/compiler/ir"
	"crucible/compiler/source"
	"crucible/compiler/vasm"
)

// Function is one function's virtual-assembly body, still carrying virtual
// registers; register allocation resolves those to physical IDs.
type Function struct {
	Name string
	Entry asmtypes.Label
	Epilogue asmtypes.Label
	PrologueID asmtypes.Label // the PushAll/PopAll pairing key, see funcCtx.lowerPrologue
	Ops []vasm.Op
	IsEntry bool
}

// Program is the ASM-gen output for one module: every function's lowered
// body plus the shared data section entries collected along the way.
type Program struct {
	Functions []*Function
	Data *datasection.Section
}

// Generator holds the state threaded through one module's lowering: the
// label allocator is module-global (label identity only needs to be unique
// within a function's own Ops slice, but a single allocator avoids ever
// having to reason about per-function resets).
type Generator struct {
	diags *diag.Handler
	data *datasection.Section
	labels *asmtypes.LabelAllocator

	// funcLabels maps every function to its entry label, assigned up front
	// so a call site can reference a callee lowered earlier OR later in
	// leaves-first order.
	funcLabels map[ir.FunctionHandle]asmtypes.Label
}

// Generate lowers every function in m, in leaves-first call order, into a
// Program.
func Generate(m *ir.Module, diags *diag.Handler) *Program {
	g := &Generator{diags: diags, data: datasection.New(), labels: asmtypes.NewLabelAllocator(), funcLabels: make(map[ir.FunctionHandle]asmtypes.Label)}
	prog := &Program{Data: g.data}

	order := leavesFirstOrder(m)
	for _, fh := range order {
		g.funcLabels[fh] = g.labels.Fresh()
	}

	for _, fh := range order {
		fn := m.Function(fh)
		if fn == nil {
			continue
		}
		prog.Functions = append(prog.Functions, g.lowerFunction(m, fh, fn))
	}
	return prog
}

// leavesFirstOrder topologically sorts the call graph so callees are lowered
// (and therefore have a known entry label) before their first caller, falling
// back to declaration order for any function left over by a recursive cycle
// — label references do not actually require this ordering (labels resolve
// in a later finalization pass regardless of emission order), but it matches
// literal instruction and keeps output deterministic.
func leavesFirstOrder(m *ir.Module) []ir.FunctionHandle {
	visited := make(map[ir.FunctionHandle]bool)
	var order []ir.FunctionHandle
	var visit func(h ir.FunctionHandle)
	visit = func(h ir.FunctionHandle) {
		if visited[h] {
			return
		}
		visited[h] = true
		fn := m.Function(h)
		if fn == nil {
			return
		}
		for _, bh := range fn.Blocks() {
			for _, vh := range fn.Block(bh).Instructions {
				if inst := fn.Value(vh); inst != nil && inst.Op == ir.OpCall {
					visit(inst.Callee)
				}
			}
		}
		order = append(order, h)
	}
	for _, h := range m.Functions() {
		visit(h)
	}
	return order
}

// funcCtx is the per-function lowering state.
type funcCtx struct {
	g *Generator
	m *ir.Module
	fn *ir.Function
	out *Function
	regs *asmtypes.VirtualRegisterAllocator

	blockLabel map[ir.BlockHandle]asmtypes.Label
	value map[ir.ValueHandle]asmtypes.Register
	frame *frameLayout

	raSave asmtypes.Register
	rvSave asmtypes.Register

	// pendingLabels holds labels bound since the last emitted op, attached
	// to the next op that's actually emitted.
	pendingLabels []asmtypes.Label

	// curSpan is the source span of whichever IR instruction (or function
	// declaration, for prologue/epilogue ops) is currently being lowered;
	// emit stamps it onto every op so the finalizer can build a source map
	// in one pass over the final op stream.
	curSpan source.Span
}

// emit appends op to the function's body, attaching any label bound since
// the previous emit (the finalizer needs to know exactly which
// op each label resolves to) and the span of whatever is currently lowering.
func (c *funcCtx) emit(op vasm.Op) {
	for _, l := range c.pendingLabels {
		op = op.WithLabel(l)
	}
	c.pendingLabels = nil
	op.Span = c.curSpan
	c.out.Ops = append(c.out.Ops, op)
}

// emitLabeled is an alias for emit kept for readability at call sites that
// are conceptually "the first op after a bind".
func (c *funcCtx) emitLabeled(op vasm.Op) { c.emit(op) }

// bindLabel marks l as bound at the position of the next emitted op. A
// label bound at the very end of a function (nothing left to emit) is given
// a trailing Undefined placeholder so it still resolves to a valid offset.
func (c *funcCtx) bindLabel(l asmtypes.Label) {
	if err := c.g.labels.Bind(l); err != nil {
		c.g.diags.Emit(diag.Internal(source.NoSpan, err.Error()))
	}
	c.pendingLabels = append(c.pendingLabels, l)
}

func (g *Generator) lowerFunction(m *ir.Module, fh ir.FunctionHandle, fn *ir.Function) *Function {
	out := &Function{Name: fn.Name, IsEntry: fn.Meta.IsEntryPoint}
	out.Entry = g.funcLabels[fh]
	out.Epilogue = g.labels.Fresh()
	out.PrologueID = out.Entry

	c := &funcCtx{
		g: g, m: m, fn: fn, out: out,
		regs: asmtypes.NewVirtualRegisterAllocator(),
		blockLabel: make(map[ir.BlockHandle]asmtypes.Label),
		value: make(map[ir.ValueHandle]asmtypes.Register),
	}
	c.frame = buildFrameLayout(c)

	for _, bh := range fn.Blocks() {
		if bh == fn.Entry {
			// The IR entry block's label IS the function entry label; no
			// separate label is ever bound for it.
			c.blockLabel[bh] = out.Entry
			continue
		}
		c.blockLabel[bh] = g.labels.Fresh()
	}

	c.bindLabel(out.Entry)
	c.curSpan = fn.Span
	c.lowerPrologue()

	for _, bh := range fn.Blocks() {
		if bh != fn.Entry {
			c.bindLabel(c.blockLabel[bh])
		}
		c.lowerBlock(bh)
	}

	c.bindLabel(out.Epilogue)
	c.curSpan = fn.Span
	c.lowerEpilogue()

	if len(c.pendingLabels) > 0 {
		c.emitLabeled(vasm.NewUndefined())
	}
	return out
}

func (c *funcCtx) lowerPrologue() {
	c.emitLabeled(vasm.NewPushAll(c.out.PrologueID))

	if c.out.IsEntry {
		// Extend the frame before the argument unpacking, whose predicate
		// failure path jumps straight to the epilogue's CFSI.
		if sz := c.frame.stackBytes; sz > 0 {
			imm := asmtypes.MustImmediate24(int64(sz), "stack frame size overflowed CFEI's 24-bit width")
			c.emit(vasm.NewExtendFrame(imm))
		}
		c.lowerEntryPointArgs()
		return
	}

	c.raSave = c.regs.Fresh()
	c.rvSave = c.regs.Fresh()
	c.emit(vasm.NewMove(c.raSave, asmtypes.ReservedReg(asmtypes.ReturnAddress)))
	c.emit(vasm.NewMove(c.rvSave, asmtypes.ReservedReg(asmtypes.ReturnValue)))

	if len(c.fn.Sig.Params) > asmtypes.NumArgRegisters {
		c.g.diags.Emit(diag.New(diag.LevelError, diag.CodeTooManyArguments, c.fn.Span,
			fmt.Sprintf("function %q takes %d arguments, exceeding the %d-register argument window",
				c.fn.Name, len(c.fn.Sig.Params), asmtypes.NumArgRegisters)))
	}
	c.bindParamsFromArgRegisters()

	if sz := c.frame.stackBytes; sz > 0 {
		imm := asmtypes.MustImmediate24(int64(sz), "stack frame size overflowed CFEI's 24-bit width")
		c.emit(vasm.NewExtendFrame(imm))
	}
}

// bindParamsFromArgRegisters binds every ir parameter's entry-block
// OpLoadLocal value directly to its argument register: irgen
// always emits exactly one OpLoadLocal{LocalIdx:-1} per parameter at the
// front of the entry block, in declaration order.
func (c *funcCtx) bindParamsFromArgRegisters() {
	entry := c.fn.Block(c.fn.Entry)
	n := len(c.fn.Sig.Params)
	for i := 0; i < n && i < len(entry.Instructions); i++ {
		c.value[entry.Instructions[i]] = asmtypes.ArgReg(i)
	}
}

func (c *funcCtx) lowerEpilogue() {
	if c.frame.stackBytes > 0 {
		imm := asmtypes.MustImmediate24(int64(c.frame.stackBytes), "stack frame size overflowed CFSI's 24-bit width")
		c.emit(vasm.NewShrinkFrame(imm))
	}
	if !c.out.IsEntry {
		c.emit(vasm.NewMove(asmtypes.ReservedReg(asmtypes.ReturnAddress), c.raSave))
	}
	c.emit(vasm.NewPopAll(c.out.PrologueID))
	c.emit(vasm.NewRet())
}

func (c *funcCtx) lowerBlock(bh ir.BlockHandle) {
	blk := c.fn.Block(bh)
	for _, vh := range blk.Instructions {
		inst := c.fn.Value(vh)
		c.curSpan = inst.Span
		c.lowerInst(inst)
	}
}

func (c *funcCtx) reg(h ir.ValueHandle) asmtypes.Register {
	if r, ok := c.value[h]; ok {
		return r
	}
	r := c.regs.Fresh()
	c.value[h] = r
	return r
}
