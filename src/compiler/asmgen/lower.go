package asmgen

import (
	"encoding/binary"
	"fmt"

	"crucible/compiler/asmtypes"
	"crucible/compiler/datasection"
	"crucible/compiler/diag"
	"crucible/compiler/ir"
	"crucible/compiler/vasm"
)

// lowerInst dispatches one IR instruction to its vasm.Op(s). Every
// non-terminator IR value gets a fresh virtual register (via c.reg) lazily,
// the first time it is either defined or referenced.
func (c *funcCtx) lowerInst(inst *ir.Instruction) {
	if inst == nil {
		return
	}
	switch inst.Op {
	case ir.OpConstInt:
		c.lowerConstInt(inst)
	case ir.OpConstBool:
		v := int64(0)
		if inst.ConstBool {
			v = 1
		}
		c.emit(vasm.NewMoveImmediate(c.reg(inst.ID), asmtypes.MustImmediate18(v, "boolean constant does not fit 1 bit")))
	case ir.OpUnit:
		// No runtime representation; nothing to emit.
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpEq, ir.OpLt, ir.OpGt:
		c.lowerBinOp(inst)
	case ir.OpNot:
		c.emit(vasm.NewNot(c.reg(inst.ID), c.reg(inst.Operands[0])))
	case ir.OpAlloca:
		// Frame layout already reserved this local's home (data section or
		// stack offset) during buildFrameLayout; nothing to emit here.
	case ir.OpLoadLocal:
		c.lowerLoadLocal(inst)
	case ir.OpStoreLocal:
		c.lowerStoreLocal(inst)
	case ir.OpJump:
		c.emitPhiMoves(inst.Block, inst.Then)
		c.emit(vasm.NewJumpTo(c.blockLabel[inst.Then]))
	case ir.OpBranch:
		c.lowerBranch(inst)
	case ir.OpReturn:
		c.lowerReturn(inst)
	case ir.OpCall:
		c.lowerCall(inst)
	case ir.OpStorageRead:
		c.lowerStorageRead(inst)
	case ir.OpStorageWrite:
		c.lowerStorageWrite(inst)
	case ir.OpPhi:
		// The value already arrived in c.reg(inst.ID) via the Move(s)
		// emitted at the end of whichever predecessor block actually ran
		// (see emitPhiMoves); allocating the register here (if no
		// predecessor happened to have done so yet) is all that's left.
		c.reg(inst.ID)
	default:
		c.g.diags.Emit(diag.Internal(inst.Span, fmt.Sprintf("asmgen: unhandled IR opcode %v", inst.Op)))
	}
}

// lowerConstInt loads a literal into a fresh register. Values fitting the
// 18-bit immediate-load window use a single MoveImmediate; wider values
// (u256, or any u64 too large for the window) are placed in the data section
// once and loaded from there, the same path a load of a data-section-resident
// (constant) local takes.
func (c *funcCtx) lowerConstInt(inst *ir.Instruction) {
	dst := c.reg(inst.ID)
	if inst.ConstInt >= 0 && inst.ConstInt < (1<<18) {
		c.emit(vasm.NewMoveImmediate(dst, asmtypes.MustImmediate18(inst.ConstInt, "bounds already checked")))
		return
	}
	bits := 64
	if inst.Type != nil {
		bits = inst.Type.SizeWords() * 64
	}
	// IntValue's length must agree with IntBits/8: the data section sizes
	// and offsets every entry from IntBits, so a narrower buffer here would
	// desynchronize every later entry's offset.
	buf := make([]byte, bits/8)
	binary.BigEndian.PutUint64(buf[len(buf)-8:], uint64(inst.ConstInt))
	id := c.g.data.Insert(datasection.Entry{Kind: datasection.KindInt, IntBits: bits, IntValue: buf})
	c.emit(vasm.NewLoadWord(dst, asmtypes.ReservedReg(asmtypes.DataSection), id))
}

func (c *funcCtx) lowerBinOp(inst *ir.Instruction) {
	a, b := c.reg(inst.Operands[0]), c.reg(inst.Operands[1])
	dst := c.reg(inst.ID)
	var op vasm.Op
	switch inst.Op {
	case ir.OpAdd:
		op = vasm.NewAdd(dst, a, b)
	case ir.OpSub:
		op = vasm.NewSub(dst, a, b)
	case ir.OpMul:
		op = vasm.NewMul(dst, a, b)
	case ir.OpDiv:
		op = vasm.NewDiv(dst, a, b)
	case ir.OpMod:
		op = vasm.NewMod(dst, a, b)
	case ir.OpAnd:
		op = vasm.NewAnd(dst, a, b)
	case ir.OpOr:
		op = vasm.NewOr(dst, a, b)
	case ir.OpXor:
		op = vasm.NewXor(dst, a, b)
	case ir.OpEq:
		op = vasm.NewEq(dst, a, b)
	case ir.OpLt:
		op = vasm.NewLt(dst, a, b)
	case ir.OpGt:
		op = vasm.NewGt(dst, a, b)
	}
	c.emit(op)
}

// leadingPhis returns the OpPhi instructions stacked at the front of target
// (mem2reg and the if/short-circuit lowerers in irgen both only ever place
// Phis at the very front of a block).
func (c *funcCtx) leadingPhis(target ir.BlockHandle) []*ir.Instruction {
	blk := c.fn.Block(target)
	var out []*ir.Instruction
	for _, vh := range blk.Instructions {
		inst := c.fn.Value(vh)
		if inst == nil || inst.Op != ir.OpPhi {
			break
		}
		out = append(out, inst)
	}
	return out
}

// emitPhiMoves places, for every leading Phi of target, a Move from the
// value that from's edge supplies into the Phi's own register. Called right
// before the jump that actually transfers control along that edge, so it
// only ever runs when that edge is the one taken at runtime.
func (c *funcCtx) emitPhiMoves(from, target ir.BlockHandle) {
	for _, phi := range c.leadingPhis(target) {
		for _, e := range phi.PhiEdges {
			if e.From == from {
				c.emit(vasm.NewMove(c.reg(phi.ID), c.reg(e.Value)))
				break
			}
		}
	}
}

// lowerBranch lowers a two-successor conditional. When neither target begins
// with a Phi the direct two-op form suffices; otherwise each edge gets its
// own small trampoline so the Phi moves for the *other* edge are never
// executed: conditional branches lower to JumpIfNotZero, unconditional
// branches to JumpTo.
func (c *funcCtx) lowerBranch(inst *ir.Instruction) {
	cond := c.reg(inst.Operands[0])
	thenPhis := len(c.leadingPhis(inst.Then)) > 0
	elsePhis := len(c.leadingPhis(inst.Else)) > 0

	if !thenPhis && !elsePhis {
		c.emit(vasm.NewJumpIfNotZero(cond, c.blockLabel[inst.Then]))
		c.emit(vasm.NewJumpTo(c.blockLabel[inst.Else]))
		return
	}

	thenTarget, elseTarget := c.blockLabel[inst.Then], c.blockLabel[inst.Else]
	var thenTramp, elseTramp asmtypes.Label
	if thenPhis {
		thenTramp = c.g.labels.Fresh()
		thenTarget = thenTramp
	}
	if elsePhis {
		elseTramp = c.g.labels.Fresh()
		elseTarget = elseTramp
	}

	c.emit(vasm.NewJumpIfNotZero(cond, thenTarget))
	c.emit(vasm.NewJumpTo(elseTarget))

	if thenPhis {
		c.bindLabel(thenTramp)
		c.emitPhiMoves(inst.Block, inst.Then)
		c.emit(vasm.NewJumpTo(c.blockLabel[inst.Then]))
	}
	if elsePhis {
		c.bindLabel(elseTramp)
		c.emitPhiMoves(inst.Block, inst.Else)
		c.emit(vasm.NewJumpTo(c.blockLabel[inst.Else]))
	}
}

func (c *funcCtx) lowerLoadLocal(inst *ir.Instruction) {
	home, ok := c.frame.locals[inst.LocalIdx]
	if !ok {
		c.g.diags.Emit(diag.Internal(inst.Span, "load of a local with no frame home"))
		return
	}
	dst := c.reg(inst.ID)
	if home.inData {
		c.emit(vasm.NewLoadWord(dst, asmtypes.ReservedReg(asmtypes.DataSection), home.dataID))
		return
	}
	c.emitLoadStackSlot(dst, home.stackWordOffset)
}

func (c *funcCtx) lowerStoreLocal(inst *ir.Instruction) {
	home, ok := c.frame.locals[inst.LocalIdx]
	if !ok {
		c.g.diags.Emit(diag.Internal(inst.Span, "store to a local with no frame home"))
		return
	}
	if home.inData {
		// Only immutable, const-initialized locals land in the data
		// section, and those are never the target of OpStoreLocal in
		// well-formed IR — surfaced as an internal error if it happens.
		c.g.diags.Emit(diag.Internal(inst.Span, "store to a data-section-resident local"))
		return
	}
	c.emit(c.storeStackSlotOp(c.reg(inst.Operands[0]), home.stackWordOffset))
}

func (c *funcCtx) emitLoadStackSlot(dst asmtypes.Register, wordOffset int) {
	if imm, err := asmtypes.NewImmediate12(int64(wordOffset), c.fn.Span); err == nil {
		c.emit(vasm.NewLoadWordImm(dst, asmtypes.ReservedReg(asmtypes.FramePointer), imm))
		return
	}
	addr := c.synthesizeAddress(asmtypes.ReservedReg(asmtypes.FramePointer), wordOffset)
	c.emit(vasm.NewLoadWordImm(dst, addr, asmtypes.MustImmediate12(0, "synthesized address already includes the offset")))
}

func (c *funcCtx) storeStackSlotOp(value asmtypes.Register, wordOffset int) vasm.Op {
	if imm, err := asmtypes.NewImmediate12(int64(wordOffset), c.fn.Span); err == nil {
		return vasm.NewStoreWord(asmtypes.ReservedReg(asmtypes.FramePointer), value, imm)
	}
	addr := c.synthesizeAddress(asmtypes.ReservedReg(asmtypes.FramePointer), wordOffset)
	return vasm.NewStoreWord(addr, value, asmtypes.MustImmediate12(0, "synthesized address already includes the offset"))
}

// synthesizeAddress builds base+wordOffset*8 in a fresh register for offsets
// too wide for a 12-bit immediate load/store: larger offsets synthesize an
// address via add.
func (c *funcCtx) synthesizeAddress(base asmtypes.Register, wordOffset int) asmtypes.Register {
	byteOffset := int64(wordOffset) * 8
	tmp := c.regs.Fresh()
	c.emit(vasm.NewMoveImmediate(tmp, asmtypes.MustImmediate18(byteOffset, "frame offset too large even for address synthesis")))
	addr := c.regs.Fresh()
	c.emit(vasm.NewAdd(addr, base, tmp))
	return addr
}

func (c *funcCtx) lowerStorageRead(inst *ir.Instruction) {
	keyReg := c.loadStorageKey(inst.StorageSlot)
	dst := c.reg(inst.ID)
	if inst.Type != nil && inst.Type.SizeWords() > 1 {
		c.emit(vasm.NewStorageReadQuad(dst, keyReg))
		return
	}
	c.emit(vasm.NewStorageReadWord(dst, keyReg))
}

func (c *funcCtx) lowerStorageWrite(inst *ir.Instruction) {
	keyReg := c.loadStorageKey(inst.StorageSlot)
	value := c.reg(inst.Operands[0])
	c.emit(vasm.NewStorageWriteWord(keyReg, value))
}

// loadStorageKey places the 32-byte slot key into the data section (as a
// deduplicated KindBytes entry) and loads its address into a fresh register.
func (c *funcCtx) loadStorageKey(slot [32]byte) asmtypes.Register {
	id := c.g.data.Insert(datasection.Entry{Kind: datasection.KindBytes, Bytes: append([]byte{}, slot[:]...)})
	r := c.regs.Fresh()
	c.emit(vasm.NewLoadWord(r, asmtypes.ReservedReg(asmtypes.DataSection), id))
	return r
}

func (c *funcCtx) lowerReturn(inst *ir.Instruction) {
	if len(inst.Operands) > 0 {
		c.emit(vasm.NewMove(asmtypes.ReservedReg(asmtypes.ReturnValue), c.reg(inst.Operands[0])))
	}
	c.emit(vasm.NewJumpTo(c.out.Epilogue))
}

func (c *funcCtx) lowerCall(inst *ir.Instruction) {
	if len(inst.Operands) > asmtypes.NumArgRegisters {
		c.g.diags.Emit(diag.New(diag.LevelError, diag.CodeTooManyArguments, inst.Span,
			fmt.Sprintf("call passes %d arguments, exceeding the %d-register argument window", len(inst.Operands), asmtypes.NumArgRegisters)))
	}
	for i, a := range inst.Operands {
		if i >= asmtypes.NumArgRegisters {
			break
		}
		c.emit(vasm.NewMove(asmtypes.ArgReg(i), c.reg(a)))
	}
	callee := c.m.Function(inst.Callee)
	calleeLabel := c.g.funcLabels[inst.Callee]

	resumeLabel := c.g.labels.Fresh()
	c.emit(vasm.NewMoveAddress(asmtypes.ReservedReg(asmtypes.ReturnAddress), resumeLabel))
	c.emit(vasm.NewCall(calleeLabel))
	c.bindLabel(resumeLabel)
	if callee != nil && callee.Sig.Return != ir.TypeUnit {
		c.emit(vasm.NewMove(c.reg(inst.ID), asmtypes.ReservedReg(asmtypes.ReturnValue)))
	} else {
		c.reg(inst.ID)
	}
}
