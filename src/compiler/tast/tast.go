// Package tast models the input contract IR-gen consumes: a
// TyProgram with a kind tag, a module tree of already-typed, already
// monomorphized declarations, resolved callee references, and resolved
// storage field paths. It contains no lexer and no grammar — lexing,
// parsing and type checking are out of scope — this is purely
// the data model the (external) front end is contractually required to
// hand the core.
//
// IR-gen reports an internal compiler error with the offending span and
// aborts if any of these contracts are violated; Type is
// reused directly from the ir package rather than duplicated, since by the
// time a TAST exists every type is already the same fully-resolved concrete
// type IR-gen will carry forward unchanged.
package tast

import (
	"crucible/compiler/ir"
	"crucible/compiler/source"
)

// Program is the root node: one compilation unit of a single kind, plus the
// storage layout (non-empty only for contracts).
type Program struct {
	Kind ir.Kind
	Functions []*Function
	Storage []*StorageField
}

// StorageField is one declared contract storage slot; Path is the
// dot-separated field path IR-gen derives a 32-byte slot key from.
type StorageField struct {
	Path []string
	Type ir.Type
	Span source.Span
}

// Function is a fully resolved function declaration: every value-producing
// node inside it already carries a concrete ir.Type.
type Function struct {
	Name string
	Params []ir.Param
	Return ir.Type
	Purity ir.Purity
	Body *Block
	Span source.Span
	IsEntry bool // true for the program's designated main/entry function
	Selector uint32
}

type Block struct {
	Stmts []Stmt
}

// Stmt is a statement node.
type Stmt interface {
	stmt
	Span() source.Span
}

type LetStmt struct {
	SourceSpan source.Span
	Name string
	Type ir.Type
	Mutable bool
	Init Expr // nil if uninitialized
}

func (s *LetStmt) stmt() {}
func (s *LetStmt) Span() source.Span { return s.SourceSpan }

type AssignStmt struct {
	SourceSpan source.Span
	Target Expr // VarRef or StorageFieldRef
	Value Expr
}

func (s *AssignStmt) stmt() {}
func (s *AssignStmt) Span() source.Span { return s.SourceSpan }

type ExprStmt struct {
	SourceSpan source.Span
	Value Expr
}

func (s *ExprStmt) stmt() {}
func (s *ExprStmt) Span() source.Span { return s.SourceSpan }

type ReturnStmt struct {
	SourceSpan source.Span
	Value Expr // nil for unit return
}

func (s *ReturnStmt) stmt() {}
func (s *ReturnStmt) Span() source.Span { return s.SourceSpan }

// WhileStmt lowers to a loop header with a back-edge.
type WhileStmt struct {
	SourceSpan source.Span
	Cond Expr
	Body *Block
}

func (s *WhileStmt) stmt() {}
func (s *WhileStmt) Span() source.Span { return s.SourceSpan }

// Expr is a value-producing node. Every expression yields a value
// (unit-typed if void).
type Expr interface {
	expr
	Span() source.Span
	ResolvedType() ir.Type
}

type IntLit struct {
	SourceSpan source.Span
	Value int64
	Type ir.Type
}

func (e *IntLit) expr() {}
func (e *IntLit) Span() source.Span { return e.SourceSpan }
func (e *IntLit) ResolvedType() ir.Type { return e.Type }

type BoolLit struct {
	SourceSpan source.Span
	Value bool
}

func (e *BoolLit) expr() {}
func (e *BoolLit) Span() source.Span { return e.SourceSpan }
func (e *BoolLit) ResolvedType() ir.Type { return ir.TypeBool }

type VarRef struct {
	SourceSpan source.Span
	Name string
	Type ir.Type
}

func (e *VarRef) expr() {}
func (e *VarRef) Span() source.Span { return e.SourceSpan }
func (e *VarRef) ResolvedType() ir.Type { return e.Type }

// BinOpKind mirrors the ir.Op arithmetic/comparison set one-for-one so
// irgen's lowering is a direct table lookup.
type BinOpKind uint8

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpEq
	OpLt
	OpGt
)

type BinOp struct {
	SourceSpan source.Span
	Kind BinOpKind
	Left Expr
	Right Expr
	Type ir.Type
}

func (e *BinOp) expr() {}
func (e *BinOp) Span() source.Span { return e.SourceSpan }
func (e *BinOp) ResolvedType() ir.Type { return e.Type }

// CallExpr's Callee is a resolved callee reference — a stable identifier
// within the declaration engine — modeled here simply as the
// target function's name, since name resolution itself is out of scope and
// already complete by the time a TAST exists.
type CallExpr struct {
	SourceSpan source.Span
	Callee string
	Args []Expr
	Type ir.Type
}

func (e *CallExpr) expr() {}
func (e *CallExpr) Span() source.Span { return e.SourceSpan }
func (e *CallExpr) ResolvedType() ir.Type { return e.Type }

// StorageFieldRef reads a resolved storage field path.
// Storage access in a non-contract program is a user error surfaced with a
// span — irgen is responsible for that check, not this type.
type StorageFieldRef struct {
	SourceSpan source.Span
	Path []string
	Type ir.Type
}

func (e *StorageFieldRef) expr() {}
func (e *StorageFieldRef) Span() source.Span { return e.SourceSpan }
func (e *StorageFieldRef) ResolvedType() ir.Type { return e.Type }

// IfExpr lowers to a decision tree of conditional branches.
// A match expression with N arms is modeled as N-1 nested IfExprs by the
// (out-of-scope) front end; IR-gen does not need to see raw match arms.
type IfExpr struct {
	SourceSpan source.Span
	Cond Expr
	Then *Block
	ThenValue Expr // value of the then-branch, nil if unit
	Else *Block
	ElseValue Expr // nil if there is no else branch (result is unit)
	Type ir.Type
}

func (e *IfExpr) expr() {}
func (e *IfExpr) Span() source.Span { return e.SourceSpan }
func (e *IfExpr) ResolvedType() ir.Type { return e.Type }
