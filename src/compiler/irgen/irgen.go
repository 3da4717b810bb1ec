// Package irgen lowers a tast.Program into an ir.Module: match
// expressions become decision trees of conditional branches, while/for loops
// become loop headers with back-edges, return becomes a block terminator,
// and every expression yields a value (unit-typed if void). Short-circuit
// boolean operators are not modeled as a TAST primitive here — tast.BinOp
// with OpAnd/OpOr already carries resolved boolean operands, so irgen builds
// the short-circuit two-successor diamond directly for those two operators
// rather than the (out-of-scope) front end building one.
package irgen

import (
	"fmt"

	"crucible/compiler/diag"
	"crucible/compiler/ir"
	"crucible/compiler/source"
	"crucible/compiler/tast"
)

// Generator lowers one Program into one Module.
type Generator struct {
	diags *diag.Handler
	mod *ir.Module
}

func New(diags *diag.Handler) *Generator {
	return &Generator{diags: diags}
}

// Generate is the entry point. It reports internal compiler errors (via the
// handler) for every TAST-contract violation, and returns the partially
// built module even when diagnostics exist, as long as the value is usable
// by the next stage.
func Generate(prog *tast.Program, moduleName string, diags *diag.Handler) *ir.Module {
	g := &Generator{diags: diags, mod: ir.NewModule(prog.Kind, moduleName)}

	if prog.Kind == ir.KindUnspecified {
		g.diags.Emit(diag.New(diag.LevelError, diag.CodeUndeclaredKind, source.NoSpan,
			fmt.Sprintf("program %q declares neither script, predicate, contract nor library", moduleName)))
		return g.mod
	}

	for _, fn := range prog.Functions {
		if fn.Purity.AllowsRead() || fn.Purity.AllowsWrite() {
			if prog.Kind != ir.KindContract && hasStorageAccess(fn.Body) {
				g.diags.Emit(diag.New(diag.LevelError, diag.CodeStorageOutsideContract, fn.Span,
					fmt.Sprintf("function %q accesses storage in a %s program", fn.Name, prog.Kind)))
			}
		}
	}

	// Declare every function's signature first so forward calls resolve:
	// lowering a call site requires the callee's FunctionHandle to already
	// exist, so every signature is registered before any body is lowered.
	handles := make(map[string]ir.FunctionHandle, len(prog.Functions))
	for _, fn := range prog.Functions {
		sig := ir.Signature{Return: fn.Return}
		for _, p := range fn.Params {
			sig.Params = append(sig.Params, p)
		}
		h := g.mod.NewFunction(fn.Name, sig, fn.Purity, fn.Span)
		handles[fn.Name] = h
		if fn.IsEntry {
			g.mod.EntryPoints = append(g.mod.EntryPoints, h)
			g.mod.Function(h).Meta.IsEntryPoint = true
		}
		g.mod.Function(h).Meta.Selector = fn.Selector
		g.mod.Function(h).Meta.TestDeclIdx = -1
	}

	for _, fn := range prog.Functions {
		g.lowerFunction(handles[fn.Name], fn, handles)
	}

	ir.CheckPurity(g.mod, g.diags)

	return g.mod
}

func hasStorageAccess(b *tast.Block) bool {
	if b == nil {
		return false
	}
	for _, s := range b.Stmts {
		switch st := s.(type) {
		case *tast.AssignStmt:
			if _, ok := st.Target.(*tast.StorageFieldRef); ok {
				return true
			}
			if exprHasStorageAccess(st.Value) {
				return true
			}
		case *tast.ExprStmt:
			if exprHasStorageAccess(st.Value) {
				return true
			}
		case *tast.LetStmt:
			if st.Init != nil && exprHasStorageAccess(st.Init) {
				return true
			}
		case *tast.ReturnStmt:
			if st.Value != nil && exprHasStorageAccess(st.Value) {
				return true
			}
		case *tast.WhileStmt:
			if exprHasStorageAccess(st.Cond) || hasStorageAccess(st.Body) {
				return true
			}
		}
	}
	return false
}

func exprHasStorageAccess(e tast.Expr) bool {
	switch v := e.(type) {
	case *tast.StorageFieldRef:
		return true
	case *tast.BinOp:
		return exprHasStorageAccess(v.Left) || exprHasStorageAccess(v.Right)
	case *tast.IfExpr:
		if exprHasStorageAccess(v.Cond) || hasStorageAccess(v.Then) || hasStorageAccess(v.Else) {
			return true
		}
		if v.ThenValue != nil && exprHasStorageAccess(v.ThenValue) {
			return true
		}
		if v.ElseValue != nil && exprHasStorageAccess(v.ElseValue) {
			return true
		}
	case *tast.CallExpr:
		for _, a := range v.Args {
			if exprHasStorageAccess(a) {
				return true
			}
		}
	}
	return false
}

// funcScope tracks the lowering state for one function body.
type funcScope struct {
	g *Generator
	fn *ir.Function
	handles map[string]ir.FunctionHandle
	vars map[string]binding
	cur ir.BlockHandle
	inLoop bool
}

// binding is either a direct SSA value (address never taken, never
// reassigned) or a stack local accessed through alloca/load/store.
type binding struct {
	isSSA bool
	value ir.ValueHandle
	localIdx int
	loopTouched bool
}

func (g *Generator) lowerFunction(h ir.FunctionHandle, fn *tast.Function, handles map[string]ir.FunctionHandle) {
	f := g.mod.Function(h)
	entry := f.NewBlock("entry")
	f.Entry = entry

	s := &funcScope{g: g, fn: f, handles: handles, vars: make(map[string]binding), cur: entry}

	for _, p := range fn.Params {
		v := f.Emit(entry, ir.Instruction{Op: ir.OpLoadLocal, Type: p.Type, Span: fn.Span, LocalIdx: -1})
		// Parameters are bound as direct SSA values (never stack-homed
		// unless later reassigned) — AssignStmt to a parameter falls back
		// to an alloca lazily, see lowerAssign.
		s.vars[p.Name] = binding{isSSA: true, value: v}
	}

	s.lowerBlock(fn.Body)

	// Ensure every path terminates; an implicit unit/undefined return covers
	// bodies whose last statement is not itself a return (the control-flow
	// analyzer is the one that warns a non-unit function might not return on
	// every path — this fallback only keeps the IR well-formed).
	if !blockHasTerminator(f, s.cur) {
		s.emitReturn(nil, fn.Span)
	}
}

func blockHasTerminator(f *ir.Function, h ir.BlockHandle) bool {
	blk := f.Block(h)
	if blk == nil || len(blk.Instructions) == 0 {
		return false
	}
	last := f.Value(blk.Instructions[len(blk.Instructions)-1])
	return last != nil && last.Op.IsTerminator()
}

func (s *funcScope) lowerBlock(b *tast.Block) {
	for _, stmt := range b.Stmts {
		if blockHasTerminator(s.fn, s.cur) {
			// Dead code after a terminator; the control-flow analyzer is
			// responsible for warning about this on the TAST, irgen just
			// stops emitting into an already-closed block.
			break
		}
		s.lowerStmt(stmt)
	}
}

func (s *funcScope) lowerStmt(stmt tast.Stmt) {
	switch st := stmt.(type) {
	case *tast.LetStmt:
		s.lowerLet(st)
	case *tast.AssignStmt:
		s.lowerAssign(st)
	case *tast.ExprStmt:
		s.lowerExpr(st.Value)
	case *tast.ReturnStmt:
		var v ir.ValueHandle
		if st.Value != nil {
			v = s.lowerExpr(st.Value)
			s.emitReturn(&v, st.SourceSpan)
		} else {
			s.emitReturn(nil, st.SourceSpan)
		}
	case *tast.WhileStmt:
		s.lowerWhile(st)
	default:
		s.g.diags.Emit(diag.Internal(stmt.Span(), fmt.Sprintf("unhandled statement kind %T", stmt)))
	}
}

func (s *funcScope) emitReturn(v *ir.ValueHandle, span source.Span) {
	inst := ir.Instruction{Op: ir.OpReturn, Span: span, Type: ir.TypeUnit}
	if v != nil {
		inst.Operands = []ir.ValueHandle{*v}
	}
	s.fn.Emit(s.cur, inst)
}

func (s *funcScope) lowerLet(st *tast.LetStmt) {
	var val ir.ValueHandle
	if st.Init != nil {
		val = s.lowerExpr(st.Init)
	}

	addressTaken := st.Mutable || st.Type.IsReference()
	if !addressTaken {
		s.vars[st.Name] = binding{isSSA: true, value: val, loopTouched: s.inLoop}
		return
	}

	local := &ir.Local{Name: st.Name, Type: st.Type, Mutable: st.Mutable, Span: st.SourceSpan}
	if intLit, ok := constOf(st.Init); ok && !st.Mutable {
		local.HasConst = true
		local.ConstInit = intLit
	}
	idx := s.fn.AddLocal(local)
	s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpAlloca, Type: st.Type, Span: st.SourceSpan, LocalIdx: idx})
	if st.Init != nil {
		s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpStoreLocal, Type: ir.TypeUnit, Span: st.SourceSpan, LocalIdx: idx, Operands: []ir.ValueHandle{val}})
	}
	s.vars[st.Name] = binding{isSSA: false, localIdx: idx, loopTouched: s.inLoop}
}

// constOf extracts a literal integer/bool value for data-section placement
// decisions: a constant value stored at an immutable local is promoted to
// the data section.
func constOf(e tast.Expr) (int64, bool) {
	switch v := e.(type) {
	case *tast.IntLit:
		return v.Value, true
	case *tast.BoolLit:
		if v.Value {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (s *funcScope) lowerAssign(st *tast.AssignStmt) {
	val := s.lowerExpr(st.Value)
	switch target := st.Target.(type) {
	case *tast.VarRef:
		b, ok := s.vars[target.Name]
		if !ok {
			s.g.diags.Emit(diag.Internal(st.SourceSpan, fmt.Sprintf("assignment to unresolved variable %q", target.Name)))
			return
		}
		if b.isSSA {
			// A previously-SSA binding has been reassigned: promote it to
			// a stack local retroactively, applying the "address taken
			// or reassigned => stack" rule the moment reassignment is
			// observed.
			local := &ir.Local{Name: target.Name, Type: target.Type, Mutable: true, Span: st.SourceSpan}
			idx := s.fn.AddLocal(local)
			s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpAlloca, Type: target.Type, Span: st.SourceSpan, LocalIdx: idx})
			s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpStoreLocal, Type: ir.TypeUnit, Span: st.SourceSpan, LocalIdx: idx, Operands: []ir.ValueHandle{b.value}})
			b = binding{isSSA: false, localIdx: idx, loopTouched: s.inLoop}
		}
		s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpStoreLocal, Type: ir.TypeUnit, Span: st.SourceSpan, LocalIdx: b.localIdx, Operands: []ir.ValueHandle{val}})
		s.vars[target.Name] = b
	case *tast.StorageFieldRef:
		slot := DeriveSlotKey(target.Path)
		s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpStorageWrite, Type: ir.TypeUnit, Span: st.SourceSpan, StorageSlot: slot, Operands: []ir.ValueHandle{val}})
	default:
		s.g.diags.Emit(diag.Internal(st.SourceSpan, "assignment target is neither a variable nor a storage field"))
	}
}

func (s *funcScope) lowerWhile(st *tast.WhileStmt) {
	cond := s.fn.NewBlock("while.cond")
	body := s.fn.NewBlock("while.body")
	exit := s.fn.NewBlock("while.exit")

	s.link(s.cur, cond)
	s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpJump, Type: ir.TypeUnit, Span: st.SourceSpan, Then: cond})

	s.cur = cond
	c := s.lowerExpr(st.Cond)
	s.link(cond, body)
	s.link(cond, exit)
	s.fn.Emit(cond, ir.Instruction{Op: ir.OpBranch, Type: ir.TypeUnit, Span: st.SourceSpan, Operands: []ir.ValueHandle{c}, Then: body, Else: exit})

	wasLoop := s.inLoop
	s.inLoop = true
	s.cur = body
	s.lowerBlock(st.Body)
	if !blockHasTerminator(s.fn, s.cur) {
		s.link(s.cur, cond) // back-edge closing the loop
		s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpJump, Type: ir.TypeUnit, Span: st.SourceSpan, Then: cond})
	}
	s.inLoop = wasLoop

	s.cur = exit
}

func (s *funcScope) link(from, to ir.BlockHandle) {
	s.fn.Block(from).AddSucc(to)
	s.fn.Block(to).AddPred(from)
}

func (s *funcScope) lowerExpr(e tast.Expr) ir.ValueHandle {
	switch v := e.(type) {
	case *tast.IntLit:
		return s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpConstInt, Type: v.Type, Span: v.SourceSpan, ConstInt: v.Value})
	case *tast.BoolLit:
		return s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpConstBool, Type: ir.TypeBool, Span: v.SourceSpan, ConstBool: v.Value})
	case *tast.VarRef:
		b, ok := s.vars[v.Name]
		if !ok {
			s.g.diags.Emit(diag.Internal(v.SourceSpan, fmt.Sprintf("reference to unresolved variable %q", v.Name)))
			return 0
		}
		if b.isSSA {
			return b.value
		}
		return s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpLoadLocal, Type: v.Type, Span: v.SourceSpan, LocalIdx: b.localIdx})
	case *tast.StorageFieldRef:
		slot := DeriveSlotKey(v.Path)
		return s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpStorageRead, Type: v.Type, Span: v.SourceSpan, StorageSlot: slot})
	case *tast.BinOp:
		return s.lowerBinOp(v)
	case *tast.CallExpr:
		return s.lowerCall(v)
	case *tast.IfExpr:
		return s.lowerIf(v)
	default:
		s.g.diags.Emit(diag.Internal(e.Span(), fmt.Sprintf("unhandled expression kind %T", e)))
		return 0
	}
}

var binOpTable = map[tast.BinOpKind]ir.Op{
	tast.OpAdd: ir.OpAdd, tast.OpSub: ir.OpSub, tast.OpMul: ir.OpMul, tast.OpDiv: ir.OpDiv,
	tast.OpMod: ir.OpMod, tast.OpAnd: ir.OpAnd, tast.OpOr: ir.OpOr, tast.OpXor: ir.OpXor,
	tast.OpEq: ir.OpEq, tast.OpLt: ir.OpLt, tast.OpGt: ir.OpGt,
}

// lowerBinOp builds the two-successor diamond for short-circuit && / ||
// and a plain instruction for every other operator.
func (s *funcScope) lowerBinOp(v *tast.BinOp) ir.ValueHandle {
	if v.Kind == tast.OpAnd || v.Kind == tast.OpOr {
		return s.lowerShortCircuit(v)
	}
	l := s.lowerExpr(v.Left)
	r := s.lowerExpr(v.Right)
	op, ok := binOpTable[v.Kind]
	if !ok {
		s.g.diags.Emit(diag.Internal(v.SourceSpan, "unknown binary operator"))
		return 0
	}
	return s.fn.Emit(s.cur, ir.Instruction{Op: op, Type: v.Type, Span: v.SourceSpan, Operands: []ir.ValueHandle{l, r}})
}

func (s *funcScope) lowerShortCircuit(v *tast.BinOp) ir.ValueHandle {
	l := s.lowerExpr(v.Left)
	rhsBlock := s.fn.NewBlock("sc.rhs")
	mergeBlock := s.fn.NewBlock("sc.merge")

	evalStart := s.cur
	s.link(evalStart, rhsBlock)
	s.link(evalStart, mergeBlock)
	if v.Kind == tast.OpAnd {
		s.fn.Emit(evalStart, ir.Instruction{Op: ir.OpBranch, Type: ir.TypeUnit, Span: v.SourceSpan, Operands: []ir.ValueHandle{l}, Then: rhsBlock, Else: mergeBlock})
	} else {
		s.fn.Emit(evalStart, ir.Instruction{Op: ir.OpBranch, Type: ir.TypeUnit, Span: v.SourceSpan, Operands: []ir.ValueHandle{l}, Then: mergeBlock, Else: rhsBlock})
	}

	s.cur = rhsBlock
	r := s.lowerExpr(v.Right)
	s.link(rhsBlock, mergeBlock)
	s.fn.Emit(rhsBlock, ir.Instruction{Op: ir.OpJump, Type: ir.TypeUnit, Span: v.SourceSpan, Then: mergeBlock})

	s.cur = mergeBlock
	return s.fn.Emit(mergeBlock, ir.Instruction{
		Op: ir.OpPhi, Type: ir.TypeBool, Span: v.SourceSpan,
		PhiEdges: []ir.PhiEdge{{From: evalStart, Value: l}, {From: rhsBlock, Value: r}},
	})
}

func (s *funcScope) lowerCall(v *tast.CallExpr) ir.ValueHandle {
	callee, ok := s.handles[v.Callee]
	if !ok {
		s.g.diags.Emit(diag.Internal(v.SourceSpan, fmt.Sprintf("unresolved call target %q", v.Callee)))
		return 0
	}
	args := make([]ir.ValueHandle, len(v.Args))
	for i, a := range v.Args {
		args[i] = s.lowerExpr(a)
	}
	return s.fn.Emit(s.cur, ir.Instruction{Op: ir.OpCall, Type: v.Type, Span: v.SourceSpan, Callee: callee, Operands: args})
}

func (s *funcScope) lowerIf(v *tast.IfExpr) ir.ValueHandle {
	cond := s.lowerExpr(v.Cond)
	thenBlock := s.fn.NewBlock("if.then")
	elseBlock := s.fn.NewBlock("if.else")
	mergeBlock := s.fn.NewBlock("if.merge")

	start := s.cur
	s.link(start, thenBlock)
	s.link(start, elseBlock)
	s.fn.Emit(start, ir.Instruction{Op: ir.OpBranch, Type: ir.TypeUnit, Span: v.SourceSpan, Operands: []ir.ValueHandle{cond}, Then: thenBlock, Else: elseBlock})

	s.cur = thenBlock
	s.lowerBlock(v.Then)
	var thenVal ir.ValueHandle
	if v.ThenValue != nil {
		thenVal = s.lowerExpr(v.ThenValue)
	}
	thenExit := s.cur
	if !blockHasTerminator(s.fn, thenExit) {
		s.link(thenExit, mergeBlock)
		s.fn.Emit(thenExit, ir.Instruction{Op: ir.OpJump, Type: ir.TypeUnit, Span: v.SourceSpan, Then: mergeBlock})
	}

	s.cur = elseBlock
	if v.Else != nil {
		s.lowerBlock(v.Else)
	}
	var elseVal ir.ValueHandle
	if v.ElseValue != nil {
		elseVal = s.lowerExpr(v.ElseValue)
	}
	elseExit := s.cur
	if !blockHasTerminator(s.fn, elseExit) {
		s.link(elseExit, mergeBlock)
		s.fn.Emit(elseExit, ir.Instruction{Op: ir.OpJump, Type: ir.TypeUnit, Span: v.SourceSpan, Then: mergeBlock})
	}

	s.cur = mergeBlock
	if v.ThenValue == nil && v.ElseValue == nil {
		return 0
	}
	return s.fn.Emit(mergeBlock, ir.Instruction{
		Op: ir.OpPhi, Type: v.Type, Span: v.SourceSpan,
		PhiEdges: []ir.PhiEdge{{From: thenExit, Value: thenVal}, {From: elseExit, Value: elseVal}},
	})
}
