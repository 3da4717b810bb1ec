// Package ir is the typed intermediate representation lowered from the TAST:
// Context ⊇ Module ⊇ Function ⊇ Block ⊇ Instruction. Every level is
// addressed by an opaque integer handle rather than a pointer, so nothing
// holds a direct back-pointer into another level — that eliminates cycles
// by construction and makes every level trivially copyable.
package ir

import (
	"fmt"

	"crucible/compiler/source"
)

// Kind is the program's root kind: contract, script, predicate, or library.
type Kind uint8

const (
	// KindUnspecified is the zero value: a tast.Program whose author never
	// declared a script/predicate/contract/library kind. irgen rejects it
	// rather than silently treating it as KindScript.
	KindUnspecified Kind = iota
	KindScript
	KindPredicate
	KindContract
	KindLibrary
)

func (k Kind) String() string {
	switch k {
	case KindUnspecified:
		return "unspecified"
	case KindScript:
		return "script"
	case KindPredicate:
		return "predicate"
	case KindContract:
		return "contract"
	case KindLibrary:
		return "library"
	default:
		return "unknown"
	}
}

// Purity is the declared effect class of a function, checked post-hoc by the
// purity checker.
type Purity uint8

const (
	Pure Purity = iota
	ReadOnly
	WriteOnly
	ReadWrite
)

func (p Purity) AllowsRead() bool { return p == ReadOnly || p == ReadWrite }
func (p Purity) AllowsWrite() bool { return p == WriteOnly || p == ReadWrite }

func (p Purity) String() string {
	switch p {
	case Pure:
		return "pure"
	case ReadOnly:
		return "read"
	case WriteOnly:
		return "write"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// Handles are opaque arena indices. The zero value of each is never a valid
// handle (arenas are 1-indexed) so a missing handle reads as "not set"
// rather than silently aliasing index 0.
type FunctionHandle int
type BlockHandle int
type ValueHandle int

const invalidHandle = 0

func (h FunctionHandle) Valid() bool { return int(h) != invalidHandle }
func (h BlockHandle) Valid() bool { return int(h) != invalidHandle }
func (h ValueHandle) Valid() bool { return int(h) != invalidHandle }

// Module is one compilation unit: one function per top-level function of the
// source program. Library functions are merged in by inlining rather than
// kept as standalone functions.
type Module struct {
	Kind Kind
	Name string
	functions []*Function // index 0 unused, handles are 1-based
	// EntryPoints lists the functions reachable from the program's public
	// surface — func-dce's reachability root set.
	EntryPoints []FunctionHandle

	// LoggedTypes, MessageTypes and Configurables feed the ABI artifact: the
	// set of types a contract's log calls reference, the payload types its
	// output messages carry, and its configurable constants. None of these
	// influence codegen. irgen.Generate leaves them empty; abi.Emit
	// serializes whatever they hold.
	LoggedTypes []LoggedType
	MessageTypes []Type
	Configurables []Configurable
}

// LoggedType is one entry of the logged-type table: the numeric log id a
// contract's `log` calls are keyed by, paired with the type logged there.
type LoggedType struct {
	LogID int
	Type Type
}

// Configurable is one contract-level configurable constant: its declared
// name and type, and the byte offset of its backing slot in the data
// section.
type Configurable struct {
	Name string
	Type Type
	Offset int
}

func NewModule(kind Kind, name string) *Module {
	return &Module{Kind: kind, Name: name, functions: []*Function{nil}}
}

func (m *Module) NewFunction(name string, sig Signature, purity Purity, span source.Span) FunctionHandle {
	fn := &Function{
		Name: name,
		Sig: sig,
		Purity: purity,
		Span: span,
		blocks: []*Block{nil},
		values: []*Instruction{nil},
	}
	h := FunctionHandle(len(m.functions))
	m.functions = append(m.functions, fn)
	return h
}

func (m *Module) Function(h FunctionHandle) *Function {
	if !h.Valid() || int(h) >= len(m.functions) {
		return nil
	}
	return m.functions[h]
}

func (m *Module) Functions() []FunctionHandle {
	out := make([]FunctionHandle, 0, len(m.functions)-1)
	for i := 1; i < len(m.functions); i++ {
		out = append(out, FunctionHandle(i))
	}
	return out
}

// FunctionByName is a declaration-order lookup used by irgen and tests; the
// pass manager itself always visits functions in declaration order.
func (m *Module) FunctionByName(name string) (FunctionHandle, bool) {
	for i := 1; i < len(m.functions); i++ {
		if m.functions[i].Name == name {
			return FunctionHandle(i), true
		}
	}
	return 0, false
}

// RemoveFunction deletes a function's body (used by func-dce). The handle
// becomes invalid; callers must not reference it again.
func (m *Module) RemoveFunction(h FunctionHandle) {
	if !h.Valid() || int(h) >= len(m.functions) {
		return
	}
	m.functions[h] = nil
}

func (m *Module) removed(h FunctionHandle) bool {
	return int(h) >= len(m.functions) || m.functions[h] == nil
}

// Param describes one function parameter.
type Param struct {
	Name string
	Type Type
}

type Signature struct {
	Params []Param
	Return Type
}

// Local is a syntactic variable. It becomes either an SSA value (address
// never taken, never reassigned) or a stack-allocated local; reference-typed
// locals are always stack-allocated.
type Local struct {
	Name string
	Type Type
	Mutable bool
	IsSSA bool
	HasConst bool
	ConstInit int64 // valid when HasConst; only meaningful for integer/bool consts
	Span source.Span
}

// Metadata carries the per-function facts lists: span, purity,
// selector (4-byte function selector for contract ABI dispatch) and test
// declaration index (-1 if this function is not a #[test] function).
type Metadata struct {
	Span source.Span
	Selector uint32
	TestDeclIdx int
	IsEntryPoint bool
}

// Function owns its blocks and locals; it is never referenced by pointer
// from another Function, only by FunctionHandle.
type Function struct {
	Name string
	Sig Signature
	Purity Purity
	Span source.Span
	Meta Metadata

	Locals []*Local

	Entry BlockHandle
	blocks []*Block // index 0 unused

	values []*Instruction // index 0 unused; ValueHandle indexes here
}

func (f *Function) NewBlock(label string) BlockHandle {
	b := &Block{Label: label}
	h := BlockHandle(len(f.blocks))
	f.blocks = append(f.blocks, b)
	return h
}

func (f *Function) Block(h BlockHandle) *Block {
	if !h.Valid() || int(h) >= len(f.blocks) {
		return nil
	}
	return f.blocks[h]
}

func (f *Function) Blocks() []BlockHandle {
	out := make([]BlockHandle, 0, len(f.blocks)-1)
	for i := 1; i < len(f.blocks); i++ {
		if f.blocks[i] != nil {
			out = append(out, BlockHandle(i))
		}
	}
	return out
}

func (f *Function) RemoveBlock(h BlockHandle) {
	if !h.Valid() || int(h) >= len(f.blocks) {
		return
	}
	f.blocks[h] = nil
}

func (f *Function) AddLocal(l *Local) int {
	f.Locals = append(f.Locals, l)
	return len(f.Locals) - 1
}

// Value returns the Instruction defining handle h.
func (f *Function) Value(h ValueHandle) *Instruction {
	if !h.Valid() || int(h) >= len(f.values) {
		return nil
	}
	return f.values[h]
}

// Emit appends a new instruction to block `in`, assigning it a fresh
// ValueHandle under the SSA single-assignment discipline: every IR value is
// assigned in exactly one instruction.
func (f *Function) Emit(in BlockHandle, inst Instruction) ValueHandle {
	h := ValueHandle(len(f.values))
	inst.ID = h
	inst.Block = in
	f.values = append(f.values, &inst)
	blk := f.Block(in)
	blk.Instructions = append(blk.Instructions, h)
	return h
}

// ReplaceValue overwrites the instruction at h in place (used by
// const-combine / mem2reg to rewrite a value without changing its
// identity — later uses still reference the same ValueHandle).
func (f *Function) ReplaceValue(h ValueHandle, inst Instruction) {
	inst.ID = h
	old := f.values[h]
	inst.Block = old.Block
	f.values[h] = &inst
}

// DeleteValue marks a value dead (dce). The slot becomes nil; any remaining
// reference to it is an internal-compiler-error by construction (dce must
// only remove values with no remaining uses).
func (f *Function) DeleteValue(h ValueHandle) {
	f.values[h] = nil
}

func (f *Function) String() string {
	return fmt.Sprintf("func %s%v -> %s", f.Name, f.Sig.Params, f.Sig.Return.Name)
}

// Block is an ordered instruction sequence terminated by a control-flow
// instruction: every block ends in a terminator.
type Block struct {
	Label string
	Instructions []ValueHandle
	Preds []BlockHandle
	Succs []BlockHandle
}

func (b *Block) AddSucc(target BlockHandle) {
	b.Succs = append(b.Succs, target)
}

func (b *Block) AddPred(from BlockHandle) {
	b.Preds = append(b.Preds, from)
}

// Terminator returns the last instruction of the block, or 0 (the invalid
// handle) if the block is empty.
func (b *Block) Terminator() ValueHandle {
	if len(b.Instructions) == 0 {
		return 0
	}
	return b.Instructions[len(b.Instructions)-1]
}

// Context owns every Module compiled in one invocation. Most compilations
// use exactly one module; Context exists so the arena-handle discipline is
// uniform top to bottom.
type Context struct {
	Modules []*Module
}

func NewContext() *Context {
	return &Context{}
}

func (c *Context) AddModule(m *Module) {
	c.Modules = append(c.Modules, m)
}
