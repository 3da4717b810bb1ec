package asmgen

import (
	"crucible/compiler/asmtypes"
	"crucible/compiler/ir"
	"crucible/compiler/vasm"
)

// Input-type constants read back from GetTxField(InputType), used only by
// the predicate three-way dispatch below.
const (
	inputTypeCoin = 0
	inputTypeMessage = 2
)

// lowerEntryPointArgs implements three entry-point argument
// conventions, then unpacks the function's parameters from whatever base
// pointer each convention produces.
func (c *funcCtx) lowerEntryPointArgs() {
	switch c.m.Kind {
	case ir.KindContract:
		c.lowerContractEntry()
	case ir.KindScript:
		c.lowerScriptEntry()
	case ir.KindPredicate:
		c.lowerPredicateEntry()
	default:
		// Library entry points are never call targets from outside the
		// module (library functions are merged in by
		// inlining), so this path is unreachable for well-formed input.
	}
}

func (c *funcCtx) lowerContractEntry() {
	base := c.regs.Fresh()
	c.emit(vasm.NewLoadWordImm(base, asmtypes.ReservedReg(asmtypes.FramePointer), contractArgFrameOffset()))
	c.unpackArgsFrom(base)
}

func (c *funcCtx) lowerScriptEntry() {
	base := c.regs.Fresh()
	c.emit(vasm.NewGetTxField(base, asmtypes.MustImmediate12(vasm.GTFScriptData, "field constant fits 12 bits")))
	c.unpackArgsFrom(base)
}

// lowerPredicateEntry emits the three-way coin/message/neither dispatch:
// read the VM-provided input index, fetch its input type, then branch to
// the matching predicate-data pointer or fail with a zero return.
func (c *funcCtx) lowerPredicateEntry() {
	inputIdx := c.regs.Fresh()
	c.emit(vasm.NewGetMeta(inputIdx, asmtypes.MustImmediate6(vasm.GMInputIndex, "input-index metadata slot fits 6 bits")))

	inputType := c.regs.Fresh()
	c.emit(vasm.NewGetTxField(inputType, asmtypes.MustImmediate12(vasm.GTFInputType, "field constant fits 12 bits")))

	coinConst := c.regs.Fresh()
	c.emit(vasm.NewMoveImmediate(coinConst, asmtypes.MustImmediate18(inputTypeCoin, "input-type constant fits 18 bits")))
	isCoin := c.regs.Fresh()
	c.emit(vasm.NewEq(isCoin, inputType, coinConst))

	coinLabel := c.g.labels.Fresh()
	notCoinLabel := c.g.labels.Fresh()
	c.emit(vasm.NewJumpIfNotZero(isCoin, coinLabel))
	c.emit(vasm.NewJumpTo(notCoinLabel))

	successLabel := c.g.labels.Fresh()
	base := c.regs.Fresh()

	c.bindLabel(coinLabel)
	c.emit(vasm.NewGetTxField(base, asmtypes.MustImmediate12(vasm.GTFInputCoinData, "field constant fits 12 bits")))
	c.emit(vasm.NewJumpTo(successLabel))

	c.bindLabel(notCoinLabel)
	messageConst := c.regs.Fresh()
	c.emit(vasm.NewMoveImmediate(messageConst, asmtypes.MustImmediate18(inputTypeMessage, "input-type constant fits 18 bits")))
	isMessage := c.regs.Fresh()
	c.emit(vasm.NewEq(isMessage, inputType, messageConst))
	messageLabel := c.g.labels.Fresh()
	failLabel := c.g.labels.Fresh()
	c.emit(vasm.NewJumpIfNotZero(isMessage, messageLabel))
	c.emit(vasm.NewJumpTo(failLabel))

	c.bindLabel(messageLabel)
	c.emit(vasm.NewGetTxField(base, asmtypes.MustImmediate12(vasm.GTFInputMessageData, "field constant fits 12 bits")))
	c.emit(vasm.NewJumpTo(successLabel))

	// Neither coin nor message: the predicate fails with a zero return.
	c.bindLabel(failLabel)
	zero := c.regs.Fresh()
	c.emit(vasm.NewMoveImmediate(zero, asmtypes.MustImmediate18(0, "zero fits 18 bits")))
	c.emit(vasm.NewMove(asmtypes.ReservedReg(asmtypes.ReturnValue), zero))
	c.emit(vasm.NewJumpTo(c.out.Epilogue))

	c.bindLabel(successLabel)
	c.unpackArgsFrom(base)
}

// contractArgFrameOffset is the fixed word offset, within the call frame,
// where a contract's argument bundle base pointer lives.
func contractArgFrameOffset() asmtypes.Immediate12 {
	return asmtypes.MustImmediate12(0, "contract call-frame argument offset is word 0 by convention")
}

// unpackArgsFrom binds each parameter to a word load from base: a single
// copy-type argument is dereferenced at offset 0, while multiple arguments
// are loaded at successive increasing offsets from base.
func (c *funcCtx) unpackArgsFrom(base asmtypes.Register) {
	params := c.fn.Sig.Params
	entry := c.fn.Block(c.fn.Entry)

	if len(params) == 1 && params[0].Type.SizeWords() <= 1 {
		if len(entry.Instructions) > 0 {
			dst := c.regs.Fresh()
			c.emitLoadStackSlotFrom(base, dst, 0)
			c.value[entry.Instructions[0]] = dst
		}
		return
	}

	offset := 0
	for i, p := range params {
		if i >= len(entry.Instructions) {
			break
		}
		dst := c.regs.Fresh()
		c.emitLoadStackSlotFrom(base, dst, offset)
		c.value[entry.Instructions[i]] = dst
		offset += p.Type.SizeWords()
	}
}

func (c *funcCtx) emitLoadStackSlotFrom(base, dst asmtypes.Register, wordOffset int) {
	if imm, err := asmtypes.NewImmediate12(int64(wordOffset), c.fn.Span); err == nil {
		c.emit(vasm.NewLoadWordImm(dst, base, imm))
		return
	}
	addr := c.synthesizeAddress(base, wordOffset)
	c.emit(vasm.NewLoadWordImm(dst, addr, asmtypes.MustImmediate12(0, "synthesized address already includes the offset")))
}
