package cfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/compiler/diag"
	"crucible/compiler/ir"
	"crucible/compiler/source"
	"crucible/compiler/tast"
)

func span(line int) source.Span {
	return source.Span{File: "t.sw", StartLine: line, EndLine: line}
}

func Test_Check_MissingReturnOnFallthroughPath(t *testing.T) {
	fn := &tast.Function{
		Name: "f",
		Return: ir.TypeU64,
		Span: span(1),
		Body: &tast.Block{
			Stmts: []tast.Stmt{
				&tast.LetStmt{SourceSpan: span(2), Name: "x", Type: ir.TypeU64, Init: &tast.IntLit{SourceSpan: span(2), Value: 1, Type: ir.TypeU64}},
			},
		},
	}
	diags := diag.NewHandler()
	Check(&tast.Program{Functions: []*tast.Function{fn}}, diags)

	found := false
	for _, d := range diags.Diagnostics() {
		if d.Code == diag.CodeMissingReturn {
			found = true
		}
	}
	assert.True(t, found, "expected CodeMissingReturn diagnostic")
}

func Test_Check_IfElseBothReturningSatisfiesReturn(t *testing.T) {
	fn := &tast.Function{
		Name: "f",
		Return: ir.TypeU64,
		Span: span(1),
		Body: &tast.Block{
			Stmts: []tast.Stmt{
				&tast.ExprStmt{SourceSpan: span(2), Value: &tast.IfExpr{
					SourceSpan: span(2),
					Cond: &tast.BoolLit{SourceSpan: span(2), Value: true},
					Then: &tast.Block{Stmts: []tast.Stmt{
						&tast.ReturnStmt{SourceSpan: span(3), Value: &tast.IntLit{SourceSpan: span(3), Value: 1, Type: ir.TypeU64}},
					}},
					Else: &tast.Block{Stmts: []tast.Stmt{
						&tast.ReturnStmt{SourceSpan: span(4), Value: &tast.IntLit{SourceSpan: span(4), Value: 2, Type: ir.TypeU64}},
					}},
					Type: ir.TypeU64,
				}},
			},
		},
	}
	diags := diag.NewHandler()
	Check(&tast.Program{Functions: []*tast.Function{fn}}, diags)

	for _, d := range diags.Diagnostics() {
		require.NotEqual(t, diag.CodeMissingReturn, d.Code)
	}
}

func Test_Check_WhileNeverSatisfiesReturnOnItsOwn(t *testing.T) {
	fn := &tast.Function{
		Name: "f",
		Return: ir.TypeU64,
		Span: span(1),
		Body: &tast.Block{
			Stmts: []tast.Stmt{
				&tast.WhileStmt{
					SourceSpan: span(2),
					Cond: &tast.BoolLit{SourceSpan: span(2), Value: true},
					Body: &tast.Block{Stmts: []tast.Stmt{
						&tast.ReturnStmt{SourceSpan: span(3), Value: &tast.IntLit{SourceSpan: span(3), Value: 1, Type: ir.TypeU64}},
					}},
				},
			},
		},
	}
	diags := diag.NewHandler()
	Check(&tast.Program{Functions: []*tast.Function{fn}}, diags)

	found := false
	for _, d := range diags.Diagnostics() {
		if d.Code == diag.CodeMissingReturn {
			found = true
		}
	}
	assert.True(t, found, "a while loop must never be treated as a guaranteed return")
}

func Test_Check_StatementAfterReturnIsDeadCode(t *testing.T) {
	fn := &tast.Function{
		Name: "f",
		Return: ir.TypeUnit,
		Span: span(1),
		Body: &tast.Block{
			Stmts: []tast.Stmt{
				&tast.ReturnStmt{SourceSpan: span(2)},
				&tast.LetStmt{SourceSpan: span(3), Name: "unreachable", Type: ir.TypeU64, Init: &tast.IntLit{SourceSpan: span(3), Value: 1, Type: ir.TypeU64}},
			},
		},
	}
	diags := diag.NewHandler()
	Check(&tast.Program{Functions: []*tast.Function{fn}}, diags)

	found := false
	for _, d := range diags.Diagnostics() {
		if d.Code == diag.CodeDeadCode {
			found = true
			assert.Equal(t, 3, d.Primary.Span.StartLine)
		}
	}
	assert.True(t, found, "expected CodeDeadCode diagnostic for the statement after the return")
}

func Test_Check_UnitFunctionFallingOffTheEndNeedsNoReturn(t *testing.T) {
	fn := &tast.Function{
		Name: "f",
		Return: ir.TypeUnit,
		Span: span(1),
		Body: &tast.Block{
			Stmts: []tast.Stmt{
				&tast.LetStmt{SourceSpan: span(2), Name: "x", Type: ir.TypeU64, Init: &tast.IntLit{SourceSpan: span(2), Value: 1, Type: ir.TypeU64}},
				&tast.ExprStmt{SourceSpan: span(3), Value: &tast.VarRef{SourceSpan: span(3), Name: "x", Type: ir.TypeU64}},
			},
		},
	}
	diags := diag.NewHandler()
	Check(&tast.Program{Functions: []*tast.Function{fn}}, diags)
	assert.Empty(t, diags.Diagnostics())
}

func Test_Check_UnusedLocalIsReportedAtItsOwnSpan(t *testing.T) {
	fn := &tast.Function{
		Name: "f",
		Return: ir.TypeBool,
		Span: span(1),
		Body: &tast.Block{
			Stmts: []tast.Stmt{
				&tast.LetStmt{SourceSpan: span(2), Name: "x", Type: ir.TypeU64, Init: &tast.IntLit{SourceSpan: span(2), Value: 5, Type: ir.TypeU64}},
				&tast.ReturnStmt{SourceSpan: span(3), Value: &tast.BoolLit{SourceSpan: span(3), Value: true}},
			},
		},
	}
	diags := diag.NewHandler()
	Check(&tast.Program{Functions: []*tast.Function{fn}}, diags)

	found := false
	for _, d := range diags.Diagnostics() {
		if d.Code == diag.CodeDeadCode {
			found = true
			assert.Equal(t, 2, d.Primary.Span.StartLine, "warning must be labeled at the local's own declaration span")
		}
	}
	assert.True(t, found, "expected a dead-code warning for the unused local")
}

func Test_Check_LocalUsedOnlyInAssignmentTargetIsStillUnused(t *testing.T) {
	fn := &tast.Function{
		Name: "f",
		Return: ir.TypeUnit,
		Span: span(1),
		Body: &tast.Block{
			Stmts: []tast.Stmt{
				&tast.LetStmt{SourceSpan: span(2), Name: "x", Type: ir.TypeU64, Mutable: true, Init: &tast.IntLit{SourceSpan: span(2), Value: 0, Type: ir.TypeU64}},
				&tast.AssignStmt{SourceSpan: span(3), Target: &tast.VarRef{SourceSpan: span(3), Name: "x", Type: ir.TypeU64}, Value: &tast.IntLit{SourceSpan: span(3), Value: 1, Type: ir.TypeU64}},
			},
		},
	}
	diags := diag.NewHandler()
	Check(&tast.Program{Functions: []*tast.Function{fn}}, diags)

	found := false
	for _, d := range diags.Diagnostics() {
		if d.Code == diag.CodeDeadCode {
			found = true
		}
	}
	assert.True(t, found, "a local that is only ever assigned to, never read, is still unused")
}

func Test_Check_DeadCodeInsideNestedIfBranchIsCaught(t *testing.T) {
	fn := &tast.Function{
		Name: "f",
		Return: ir.TypeUnit,
		Span: span(1),
		Body: &tast.Block{
			Stmts: []tast.Stmt{
				&tast.ExprStmt{SourceSpan: span(2), Value: &tast.IfExpr{
					SourceSpan: span(2),
					Cond: &tast.BoolLit{SourceSpan: span(2), Value: true},
					Then: &tast.Block{Stmts: []tast.Stmt{
						&tast.ReturnStmt{SourceSpan: span(3)},
						&tast.LetStmt{SourceSpan: span(4), Name: "unreachable", Type: ir.TypeU64, Init: &tast.IntLit{SourceSpan: span(4), Value: 1, Type: ir.TypeU64}},
					}},
					Type: ir.TypeUnit,
				}},
			},
		},
	}
	diags := diag.NewHandler()
	Check(&tast.Program{Functions: []*tast.Function{fn}}, diags)

	found := false
	for _, d := range diags.Diagnostics() {
		if d.Code == diag.CodeDeadCode {
			found = true
		}
	}
	assert.True(t, found, "expected dead-code detection inside a nested if branch")
}
