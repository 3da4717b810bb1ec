package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/compiler/diag"
	"crucible/compiler/source"
)

func Test_CheckNoResidualCalls_FlagsCallInPredicate(t *testing.T) {
	m := NewModule(KindPredicate, "p")
	calleeH := m.NewFunction("helper", Signature{Return: TypeU64}, Pure, source.NoSpan)
	callee := m.Function(calleeH)
	b0 := callee.NewBlock("entry")
	callee.Entry = b0
	v := callee.Emit(b0, Instruction{Op: OpConstInt, Type: TypeU64, ConstInt: 1})
	callee.Emit(b0, Instruction{Op: OpReturn, Operands: []ValueHandle{v}})

	mainH := m.NewFunction("main", Signature{Return: TypeU64}, Pure, source.NoSpan)
	main := m.Function(mainH)
	mb0 := main.NewBlock("entry")
	main.Entry = mb0
	callV := main.Emit(mb0, Instruction{Op: OpCall, Type: TypeU64, Callee: calleeH, Span: source.Span{File: "t.sw", StartLine: 4}})
	main.Emit(mb0, Instruction{Op: OpReturn, Operands: []ValueHandle{callV}})

	diags := diag.NewHandler()
	CheckNoResidualCalls(m, diags)

	require.True(t, diags.HasErrors())
	assert.Equal(t, diag.CodePurityViolation, diags.Diagnostics()[0].Code)
}

func Test_CheckNoResidualCalls_IgnoresNonPredicatePrograms(t *testing.T) {
	m := NewModule(KindScript, "s")
	calleeH := m.NewFunction("helper", Signature{Return: TypeU64}, Pure, source.NoSpan)
	callee := m.Function(calleeH)
	b0 := callee.NewBlock("entry")
	callee.Entry = b0
	v := callee.Emit(b0, Instruction{Op: OpConstInt, Type: TypeU64, ConstInt: 1})
	callee.Emit(b0, Instruction{Op: OpReturn, Operands: []ValueHandle{v}})

	mainH := m.NewFunction("main", Signature{Return: TypeU64}, Pure, source.NoSpan)
	main := m.Function(mainH)
	mb0 := main.NewBlock("entry")
	main.Entry = mb0
	callV := main.Emit(mb0, Instruction{Op: OpCall, Type: TypeU64, Callee: calleeH})
	main.Emit(mb0, Instruction{Op: OpReturn, Operands: []ValueHandle{callV}})

	diags := diag.NewHandler()
	CheckNoResidualCalls(m, diags)

	assert.False(t, diags.HasErrors())
}

func Test_CheckNoResidualCalls_NoCallsIsClean(t *testing.T) {
	m := NewModule(KindPredicate, "p")
	fnH := m.NewFunction("main", Signature{Return: TypeU64}, Pure, source.NoSpan)
	fn := m.Function(fnH)
	b0 := fn.NewBlock("entry")
	fn.Entry = b0
	v := fn.Emit(b0, Instruction{Op: OpConstInt, Type: TypeU64, ConstInt: 42})
	fn.Emit(b0, Instruction{Op: OpReturn, Operands: []ValueHandle{v}})

	diags := diag.NewHandler()
	CheckNoResidualCalls(m, diags)

	assert.False(t, diags.HasErrors())
}
