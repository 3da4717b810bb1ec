package ir

import (
	"fmt"

	"crucible/compiler/source"
)

// Op is the IR instruction opcode. It is intentionally smaller and more
// abstract than vasm.Code: IR operations describe *what* the program does
// (add these two values), ASM-gen decides *how* (which VM opcode, which
// registers).
type Op uint8

const (
	OpConstInt Op = iota
	OpConstBool
	OpUnit

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpNot
	OpEq
	OpLt
	OpGt

	// Locals
	OpAlloca // reserve storage for a Local (stack or data section)
	OpLoadLocal // read a Local's current value
	OpStoreLocal

	// Control flow (always block terminators)
	OpJump
	OpBranch // conditional: two successors
	OpReturn

	// Calls
	OpCall

	// Storage (contract programs only)
	OpStorageRead
	OpStorageWrite

	// SSA join; mem2reg inserts these at blocks with multiple reaching
	// definitions of a promoted local, inserting phi equivalents at join
	// points.
	OpPhi
)

func (o Op) IsTerminator() bool {
	switch o {
	case OpJump, OpBranch, OpReturn:
		return true
	default:
		return false
	}
}

// HasSideEffect reports whether dce must never remove this instruction even
// if its value is unused: dce only removes instructions whose values are
// unused and that have no side effects.
func (o Op) HasSideEffect() bool {
	switch o {
	case OpStoreLocal, OpStorageWrite, OpCall, OpJump, OpBranch, OpReturn:
		return true
	default:
		return false
	}
}

// PhiEdge is one incoming value of a Phi, keyed by the predecessor block it
// arrives from.
type PhiEdge struct {
	From BlockHandle
	Value ValueHandle
}

// Instruction is a typed SSA value: defined once (at index ID within its
// owning Function), used many times by other instructions' Operands.
type Instruction struct {
	ID ValueHandle
	Block BlockHandle
	Op Op
	Type Type
	Span source.Span

	Operands []ValueHandle

	// ConstInt/ConstBool hold the literal for OpConstInt/OpConstBool.
	ConstInt int64
	ConstBool bool

	// LocalIdx indexes Function.Locals for OpAlloca/OpLoadLocal/OpStoreLocal.
	LocalIdx int

	// Jump/Branch targets.
	Then BlockHandle
	Else BlockHandle // valid only for OpBranch

	// Callee is the resolved callee reference for OpCall; Operands holds the
	// argument values.
	Callee FunctionHandle

	// StorageSlot is the 32-byte slot key derived from the storage field
	// path; the derivation is performed by irgen (see irgen.DeriveSlotKey).
	StorageSlot [32]byte

	// PhiEdges holds the incoming (predecessor, value) pairs for OpPhi.
	PhiEdges []PhiEdge
}

func (i *Instruction) String() string {
	switch i.Op {
	case OpConstInt:
		return fmt.Sprintf("v%d = const.int %d", i.ID, i.ConstInt)
	case OpConstBool:
		return fmt.Sprintf("v%d = const.bool %v", i.ID, i.ConstBool)
	case OpReturn:
		if len(i.Operands) > 0 {
			return fmt.Sprintf("return v%d", i.Operands[0])
		}
		return "return"
	case OpJump:
		return fmt.Sprintf("jump block%d", i.Then)
	case OpBranch:
		return fmt.Sprintf("branch v%d ? block%d : block%d", i.Operands[0], i.Then, i.Else)
	default:
		return fmt.Sprintf("v%d = %v %v", i.ID, i.Op, i.Operands)
	}
}
