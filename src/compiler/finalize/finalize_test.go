package finalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/compiler/allocatedasm"
	"crucible/compiler/asmtypes"
	"crucible/compiler/datasection"
	"crucible/compiler/vasm"
)

func Test_Finalize_DataSectionFollowsCode(t *testing.T) {
	data := datasection.New()
	id := data.Insert(datasection.Entry{Kind: datasection.KindInt, IntBits: 64, IntValue: []byte{0, 0, 0, 0, 0, 0, 0, 7}})

	r0 := asmtypes.Physical(0)
	fn := &allocatedasm.Function{
		Name: "main",
		IsEntry: true,
		Ops: []vasm.Op{
			vasm.NewLoadWord(r0, asmtypes.ReservedReg(asmtypes.DataSection), id),
			vasm.NewRet(),
		},
	}

	res, err := Finalize([]*allocatedasm.Function{fn}, data)
	require.NoError(t, err)

	codeLen := res.DataSectionOffset
	assert.Equal(t, codeLen, len(res.Bytecode)-8) // one KindInt entry, 8 bytes
	assert.Equal(t, (preambleWords+2)*wordBytes, codeLen)
	assert.Len(t, res.SourceMap, 2)
}

func Test_Finalize_JumpResolvesToBoundLabel(t *testing.T) {
	data := datasection.New()

	target := asmtypes.NewLabelAllocator().Fresh()
	r0 := asmtypes.Physical(0)
	jump := vasm.NewJumpTo(target)
	landing := vasm.NewMove(r0, r0).WithLabel(target)

	fn := &allocatedasm.Function{
		Name: "f",
		IsEntry: true,
		Ops: []vasm.Op{jump, landing, vasm.NewRet()},
	}

	res, err := Finalize([]*allocatedasm.Function{fn}, data)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Bytecode)
}

func Test_Finalize_RejectsMoreThanOneEntryFunction(t *testing.T) {
	data := datasection.New()
	a := &allocatedasm.Function{Name: "a", IsEntry: true, Ops: []vasm.Op{vasm.NewRet()}}
	b := &allocatedasm.Function{Name: "b", IsEntry: true, Ops: []vasm.Op{vasm.NewRet()}}

	_, err := Finalize([]*allocatedasm.Function{a, b}, data)
	require.Error(t, err)
}

func Test_ExpandPushPop_PreservesEntryLabelWhenNothingSaved(t *testing.T) {
	entry := asmtypes.NewLabelAllocator().Fresh()
	ops := []vasm.Op{
		vasm.NewPushAll(entry).WithLabel(entry),
		vasm.NewRet(),
	}
	expanded := expandPushPop(ops)
	require.NotEmpty(t, expanded)
	assert.Contains(t, expanded[0].Labels, entry)
}
