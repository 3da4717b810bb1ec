package compile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/compiler/ir"
	"crucible/compiler/source"
	"crucible/compiler/tast"
)

func addFunction() *tast.Function {
	i64 := ir.TypeU64
	return &tast.Function{
		Name: "add",
		Params: []ir.Param{{Name: "a", Type: i64}, {Name: "b", Type: i64}},
		Return: i64,
		IsEntry: true,
		Span: source.Span{File: "t.sw", StartLine: 1, EndLine: 3},
		Body: &tast.Block{
			Stmts: []tast.Stmt{
				&tast.ReturnStmt{
					SourceSpan: source.Span{File: "t.sw", StartLine: 2, EndLine: 2},
					Value: &tast.BinOp{
						SourceSpan: source.Span{File: "t.sw", StartLine: 2, EndLine: 2},
						Kind: tast.OpAdd,
						Left: &tast.VarRef{Name: "a", Type: i64},
						Right: &tast.VarRef{Name: "b", Type: i64},
						Type: i64,
					},
				},
			},
		},
	}
}

func Test_Run_CompilesAddFunctionToBytecode(t *testing.T) {
	prog := &tast.Program{Kind: ir.KindScript, Functions: []*tast.Function{addFunction()}}

	res := Run(prog, "add_example", DefaultConfig())

	require.False(t, res.Diags.HasErrors(), "unexpected diagnostics: %v", res.Diags.Diagnostics())
	assert.Equal(t, "finalize", res.Stage)
	require.NotNil(t, res.Bytecode)
	assert.NotEmpty(t, res.Bytecode.Bytecode)
}

func Test_Run_AbortsAfterCFAOnMissingReturn(t *testing.T) {
	fn := &tast.Function{
		Name: "bad",
		Return: ir.TypeU64,
		Span: source.Span{File: "t.sw", StartLine: 1, EndLine: 1},
		Body: &tast.Block{},
	}
	prog := &tast.Program{Kind: ir.KindScript, Functions: []*tast.Function{fn}}

	res := Run(prog, "bad_example", DefaultConfig())

	assert.Equal(t, "cfa", res.Stage)
	assert.True(t, res.Diags.HasErrors())
	assert.Nil(t, res.Module)
	assert.Nil(t, res.Bytecode)
}

func Test_Run_ContractModuleGetsABIDocument(t *testing.T) {
	prog := &tast.Program{Kind: ir.KindContract, Functions: []*tast.Function{addFunction()}}

	res := Run(prog, "token", DefaultConfig())

	require.False(t, res.Diags.HasErrors(), "unexpected diagnostics: %v", res.Diags.Diagnostics())
	require.NotNil(t, res.ABI)
	assert.Len(t, res.ABI.Functions, 1)
}

func Test_Run_WarningsAsErrorsAbortsOnDeadCodeWarning(t *testing.T) {
	fn := &tast.Function{
		Name: "f",
		Return: ir.TypeUnit,
		Span: source.Span{File: "t.sw", StartLine: 1, EndLine: 3},
		Body: &tast.Block{Stmts: []tast.Stmt{
			&tast.ReturnStmt{SourceSpan: source.Span{File: "t.sw", StartLine: 2, EndLine: 2}},
			&tast.LetStmt{SourceSpan: source.Span{File: "t.sw", StartLine: 3, EndLine: 3}, Name: "x", Type: ir.TypeU64,
				Init: &tast.IntLit{SourceSpan: source.Span{File: "t.sw", StartLine: 3, EndLine: 3}, Value: 1, Type: ir.TypeU64}},
		}},
	}
	prog := &tast.Program{Kind: ir.KindScript, Functions: []*tast.Function{fn}}

	cfg := DefaultConfig()
	cfg.WarningsAsErrors = true
	res := Run(prog, "warn_example", cfg)

	assert.Equal(t, "cfa", res.Stage)
	assert.Nil(t, res.Module)
}
