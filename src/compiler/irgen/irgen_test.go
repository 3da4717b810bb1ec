package irgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/compiler/diag"
	"crucible/compiler/ir"
	"crucible/compiler/source"
	"crucible/compiler/tast"
)

func scriptProgram() *tast.Program {
	i64 := ir.TypeU64
	return &tast.Program{
		Kind: ir.KindScript,
		Functions: []*tast.Function{{
			Name: "main",
			Params: []ir.Param{{Name: "a", Type: i64}},
			Return: i64,
			IsEntry: true,
			Span: source.Span{File: "t.sw", StartLine: 1, EndLine: 3},
			Body: &tast.Block{
				Stmts: []tast.Stmt{
					&tast.ReturnStmt{
						SourceSpan: source.Span{File: "t.sw", StartLine: 2, EndLine: 2},
						Value: &tast.VarRef{Name: "a", Type: i64},
					},
				},
			},
		}},
	}
}

func Test_Generate_UndeclaredKindIsAnError(t *testing.T) {
	prog := scriptProgram()
	prog.Kind = ir.KindUnspecified

	diags := diag.NewHandler()
	mod := Generate(prog, "undeclared", diags)

	require.True(t, diags.HasErrors())
	assert.Equal(t, diag.CodeUndeclaredKind, diags.Diagnostics()[0].Code)
	assert.NotNil(t, mod)
}

func Test_Generate_ScriptProgramLowersCleanly(t *testing.T) {
	diags := diag.NewHandler()
	mod := Generate(scriptProgram(), "ok", diags)

	require.False(t, diags.HasErrors())
	assert.Equal(t, ir.KindScript, mod.Kind)
	assert.Len(t, mod.Functions(), 1)
}
