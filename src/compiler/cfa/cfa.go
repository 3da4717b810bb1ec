// Package cfa is the control-flow analyzer: three diagnostic-only checks
// (return paths, dead code, unused locals) that run over the TAST before IR-gen, so the errors and warnings they
// raise carry the program's original spans rather than anything IR-gen
// might have synthesized. It has no effect on the program being compiled —
// it only ever appends to a diag.Handler — so unlike every later stage
// there is no "output" type here, only Check.
package cfa

import (
	"fmt"

	"crucible/compiler/diag"
	"crucible/compiler/ir"
	"crucible/compiler/tast"
)

// Check runs all three checks over every function in prog, reporting
// through diags.
func Check(prog *tast.Program, diags *diag.Handler) {
	for _, fn := range prog.Functions {
		checkReturns(fn, diags)
		checkDeadCode(fn.Body, diags)
		checkUnusedLocals(fn, diags)
	}
}

// checkReturns builds the return-path graph: every non-unit-returning
// function must return a value on every path through its body. Unit-returning
// functions fall off the end implicitly and need no check.
func checkReturns(fn *tast.Function, diags *diag.Handler) {
	if fn.Return == ir.TypeUnit {
		return
	}
	if !blockAlwaysReturns(fn.Body) {
		diags.Emit(diag.New(diag.LevelError, diag.CodeMissingReturn, fn.Span,
			fmt.Sprintf("function %q does not return a value on every path", fn.Name)))
	}
}

// blockAlwaysReturns reports whether every path through block ends in a
// ReturnStmt (directly, or via a tail if/else where both arms do).
func blockAlwaysReturns(block *tast.Block) bool {
	if block == nil {
		return false
	}
	for _, stmt := range block.Stmts {
		if stmtAlwaysReturns(stmt) {
			return true
		}
	}
	return false
}

// stmtAlwaysReturns reports whether executing stmt unconditionally leaves
// the function via a return, so any statement after it in the same block is
// dead code and no further statement in the block can still need a return.
func stmtAlwaysReturns(stmt tast.Stmt) bool {
	switch s := stmt.(type) {
	case *tast.ReturnStmt:
		return true
	case *tast.ExprStmt:
		return exprAlwaysReturns(s.Value)
	default:
		// LetStmt, AssignStmt, WhileStmt: none unconditionally return. A
		// while loop's body may return, but the loop guard may also never
		// admit a single iteration, so a while never counts as a guaranteed
		// return.
		return false
	}
}

// exprAlwaysReturns handles the one expression shape that can appear in tail
// position and still guarantee a return on every path: an if/else where
// both arms do.
func exprAlwaysReturns(e tast.Expr) bool {
	ifExpr, ok := e.(*tast.IfExpr)
	if !ok {
		return false
	}
	if ifExpr.Else == nil {
		return false
	}
	return blockAlwaysReturns(ifExpr.Then) && blockAlwaysReturns(ifExpr.Else)
}

// checkDeadCode builds the dead-code graph: any statement that can never be
// reached because an earlier statement in the same block always returns is
// reported as unreachable. It recurses into every nested block (if/while
// bodies) so dead code inside a branch is still caught.
func checkDeadCode(block *tast.Block, diags *diag.Handler) {
	if block == nil {
		return
	}
	terminated := false
	for _, stmt := range block.Stmts {
		if terminated {
			diags.Emit(diag.New(diag.LevelWarning, diag.CodeDeadCode, stmt.Span(),
				"unreachable statement"))
			continue
		}
		walkNested(stmt, diags)
		if stmtAlwaysReturns(stmt) {
			terminated = true
		}
	}
}

// walkNested recurses checkDeadCode into every block stmt itself contains,
// without re-reporting stmt as dead (its own reachability was already
// decided by its caller).
func walkNested(stmt tast.Stmt, diags *diag.Handler) {
	switch s := stmt.(type) {
	case *tast.WhileStmt:
		checkDeadCode(s.Body, diags)
	case *tast.ExprStmt:
		walkNestedExpr(s.Value, diags)
	case *tast.LetStmt:
		walkNestedExpr(s.Init, diags)
	case *tast.AssignStmt:
		walkNestedExpr(s.Value, diags)
	}
}

func walkNestedExpr(e tast.Expr, diags *diag.Handler) {
	ifExpr, ok := e.(*tast.IfExpr)
	if !ok {
		return
	}
	checkDeadCode(ifExpr.Then, diags)
	checkDeadCode(ifExpr.Else, diags)
}

// checkUnusedLocals builds the unused-declaration graph: a let whose name is
// never read anywhere in the function is reported at the let's own span.
// Assigning to a local does not count as reading it — a variable that is
// only ever written is still unused.
func checkUnusedLocals(fn *tast.Function, diags *diag.Handler) {
	used := make(map[string]bool)
	collectUsedNames(fn.Body, used)
	reportUnusedLocals(fn.Body, used, diags)
}

func collectUsedNames(block *tast.Block, used map[string]bool) {
	if block == nil {
		return
	}
	for _, stmt := range block.Stmts {
		switch s := stmt.(type) {
		case *tast.LetStmt:
			collectUsedNamesExpr(s.Init, used)
		case *tast.AssignStmt:
			// s.Target names the local being written, not read.
			collectUsedNamesExpr(s.Value, used)
		case *tast.ExprStmt:
			collectUsedNamesExpr(s.Value, used)
		case *tast.ReturnStmt:
			collectUsedNamesExpr(s.Value, used)
		case *tast.WhileStmt:
			collectUsedNamesExpr(s.Cond, used)
			collectUsedNames(s.Body, used)
		}
	}
}

func collectUsedNamesExpr(e tast.Expr, used map[string]bool) {
	switch ex := e.(type) {
	case nil:
	case *tast.VarRef:
		used[ex.Name] = true
	case *tast.BinOp:
		collectUsedNamesExpr(ex.Left, used)
		collectUsedNamesExpr(ex.Right, used)
	case *tast.CallExpr:
		for _, arg := range ex.Args {
			collectUsedNamesExpr(arg, used)
		}
	case *tast.IfExpr:
		collectUsedNamesExpr(ex.Cond, used)
		collectUsedNames(ex.Then, used)
		collectUsedNamesExpr(ex.ThenValue, used)
		collectUsedNames(ex.Else, used)
		collectUsedNamesExpr(ex.ElseValue, used)
	}
}

func reportUnusedLocals(block *tast.Block, used map[string]bool, diags *diag.Handler) {
	if block == nil {
		return
	}
	for _, stmt := range block.Stmts {
		switch s := stmt.(type) {
		case *tast.LetStmt:
			if !used[s.Name] {
				diags.Emit(diag.New(diag.LevelWarning, diag.CodeDeadCode, s.Span(),
					fmt.Sprintf("local %q is never used", s.Name)))
			}
		case *tast.WhileStmt:
			reportUnusedLocals(s.Body, used, diags)
		case *tast.ExprStmt:
			reportUnusedLocalsExpr(s.Value, used, diags)
		case *tast.ReturnStmt:
			reportUnusedLocalsExpr(s.Value, used, diags)
		}
	}
}

func reportUnusedLocalsExpr(e tast.Expr, used map[string]bool, diags *diag.Handler) {
	ifExpr, ok := e.(*tast.IfExpr)
	if !ok {
		return
	}
	reportUnusedLocals(ifExpr.Then, used, diags)
	reportUnusedLocals(ifExpr.Else, used, diags)
}
