package regalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/compiler/asmgen"
	"crucible/compiler/asmtypes"
	"crucible/compiler/vasm"
)

func Test_Allocate_NonInterferingValuesGetPhysicalRegisters(t *testing.T) {
	x := asmtypes.Virtual("x")
	y := asmtypes.Virtual("y")
	fn := &asmgen.Function{
		Name: "f",
		Ops: []vasm.Op{
			vasm.NewMoveImmediate(x, asmtypes.MustImmediate18(1, "test")),
			vasm.NewMoveImmediate(y, asmtypes.MustImmediate18(2, "test")),
			vasm.NewRet(),
		},
	}

	out, err := Allocate(fn)
	require.NoError(t, err)
	assert.True(t, out.Ops[0].Dst.IsPhysical())
	assert.True(t, out.Ops[1].Dst.IsPhysical())
}

func Test_Allocate_InterferingValuesGetDistinctRegisters(t *testing.T) {
	x := asmtypes.Virtual("x")
	y := asmtypes.Virtual("y")
	z := asmtypes.Virtual("z")
	fn := &asmgen.Function{
		Name: "f",
		Ops: []vasm.Op{
			vasm.NewMoveImmediate(x, asmtypes.MustImmediate18(1, "test")),
			vasm.NewMoveImmediate(y, asmtypes.MustImmediate18(2, "test")),
			vasm.NewAdd(z, x, y), // both x and y live here simultaneously
			vasm.NewMove(asmtypes.ReservedReg(asmtypes.ReturnValue), z),
			vasm.NewRet(),
		},
	}

	out, err := Allocate(fn)
	require.NoError(t, err)
	addOp := out.Ops[2]
	require.True(t, addOp.Src[0].IsPhysical())
	require.True(t, addOp.Src[1].IsPhysical())
	assert.NotEqual(t, addOp.Src[0].Physical, addOp.Src[1].Physical)
}

func Test_Allocate_ExhaustedPoolReportsInternalError(t *testing.T) {
	var ops []vasm.Op
	names := make([]asmtypes.Register, 0, asmtypes.NumGeneralPurpose+1)
	for i := 0; i < asmtypes.NumGeneralPurpose+1; i++ {
		v := asmtypes.Virtual(indexName(i))
		names = append(names, v)
		ops = append(ops, vasm.NewMoveImmediate(v, asmtypes.MustImmediate18(int64(i), "test")))
	}
	// Right after the last def above, every one of the NumGeneralPurpose+1
	// values is simultaneously live (none has been consumed yet), which
	// already exceeds the physical register pool regardless of what the
	// consuming instructions below do.
	for i := 0; i+1 < len(names); i += 2 {
		dst := asmtypes.Virtual("sum" + indexName(i))
		ops = append(ops, vasm.NewAdd(dst, names[i], names[i+1]))
	}
	ops = append(ops, vasm.NewRet())

	fn := &asmgen.Function{Name: "overloaded", Ops: ops}
	_, err := Allocate(fn)
	require.Error(t, err)
}

func indexName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%26]) + string(rune('0'+i/26))
}
