// Package vasm is the virtual assembly: a safe mirror of the VM's opcode
// table parameterized over the width-checked register/immediate types in
// asmtypes, plus the synthetic variants listed at the end of Code.
// This is one concrete struct carrying every opcode's operand shape rather
// than one Go type per variant — the single place where ISA knowledge is
// encoded.
package vasm

import (
	"fmt"

	"crucible/compiler/asmtypes"
	"crucible/compiler/datasection"
	"crucible/compiler/source"
)

// Code is the tagged discriminant for VirtualOp.
type Code uint8

const (
	// Arithmetic
	Add Code = iota
	Addi
	Sub
	Subi
	Mul
	Muli
	Div
	Divi
	Mod
	Modi
	And
	Andi
	Or
	Ori
	Xor
	Xori
	Not
	Eq
	Lt
	Gt

	// Memory
	LoadWord
	StoreWord
	LoadByte
	StoreByte
	MemCopy
	MemClear
	MemEq

	// Stack frame
	ExtendFrame // CFEI
	ShrinkFrame // CFSI

	// Control flow
	JumpTo
	JumpIfNotZero
	Call
	MoveAddress
	Ret

	// Storage
	StorageReadWord // SRW
	StorageWriteWord // SWW
	StorageReadQuad // SRWQ (32-byte)
	StorageWriteQuad // SWWQ (32-byte)

	// VM metadata
	GetMeta // GM
	GetTxField // GTF

	// Register moves
	Move
	MoveImmediate

	// Synthetic: the finalizer expands PushAll/PopAll into push/pop
	// sequences over the SavedRegisters regalloc fills in, and encodes
	// Undefined as a word of its own. Nothing in the compiler builds the
	// two data-section placeholders; the finalizer writes the preamble
	// directly.
	PushAll
	PopAll
	Undefined
	DataSectionOffsetPlaceholder
	DataSectionRegisterLoadPlaceholder
)

var names = map[Code]string{
	Add: "ADD", Addi: "ADDI", Sub: "SUB", Subi: "SUBI",
	Mul: "MUL", Muli: "MULI", Div: "DIV", Divi: "DIVI",
	Mod: "MOD", Modi: "MODI", And: "AND", Andi: "ANDI",
	Or: "OR", Ori: "ORI", Xor: "XOR", Xori: "XORI", Not: "NOT",
	Eq: "EQ", Lt: "LT", Gt: "GT",
	LoadWord: "LW", StoreWord: "SW", LoadByte: "LB", StoreByte: "SB",
	MemCopy: "MCP", MemClear: "MCL", MemEq: "MEQ",
	ExtendFrame: "CFEI", ShrinkFrame: "CFSI",
	JumpTo: "JI", JumpIfNotZero: "JNZI", Call: "CALL", MoveAddress: "MOVA", Ret: "RET",
	StorageReadWord: "SRW", StorageWriteWord: "SWW",
	StorageReadQuad: "SRWQ", StorageWriteQuad: "SWWQ",
	GetMeta: "GM", GetTxField: "GTF",
	Move: "MOVE", MoveImmediate: "MOVI",
	PushAll: "PSHALL", PopAll: "POPALL",
	Undefined: "UNDEF",
	DataSectionOffsetPlaceholder: "$DS_OFFSET",
	DataSectionRegisterLoadPlaceholder: "$DS_LOAD",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", uint8(c))
}

// terminators are opcodes that end a basic block.
var terminators = map[Code]bool{
	JumpTo: true, JumpIfNotZero: true, Ret: true,
}

func (c Code) IsTerminator() bool { return terminators[c] }

// ImmKind records which width (if any) an Op's immediate operand carries, so
// the finalizer and the encoder know how to validate/pack it.
type ImmKind uint8

const (
	ImmNone ImmKind = iota
	ImmI6
	ImmI12
	ImmI18
	ImmI24
)

// GetMeta index constants: GMInputIndex fetches the current input index via
// GM index=3.
const (
	GMInputIndex = 3
)

// GetTxField field constants relevant to entry-point unpacking.
const (
	GTFScriptData = 0
	GTFInputType = 1
	GTFInputCoinData = 2
	GTFInputMessageData = 3
	GTFContractFrameData = 4
)

// Op is one virtual-assembly instruction. Exactly one of {Data, Target} is
// meaningful depending on Code; Imm/ImmKind carry any immediate operand.
type Op struct {
	Code Code

	// Span is the source location that produced this op, threaded through
	// unchanged by regalloc so the finalizer's source map
	// can be built by a single pass over the final, allocated op stream.
	Span source.Span

	// Dst is the write operand, if any.
	Dst asmtypes.Register
	HasDst bool

	// Src holds up to two read register operands.
	Src [2]asmtypes.Register
	NumSrc int

	ImmKind ImmKind
	ImmValue int64

	Data datasection.DataId
	HasData bool

	Target asmtypes.Label
	HasTarget bool

	// SavedRegisters is filled in on PushAll/PopAll only after register
	// allocation resolves which physical registers the function actually
	// used.
	SavedRegisters []asmtypes.Register

	// Labels holds every label bound immediately before this op in program
	// order (usually zero or one; more than one when two block labels
	// collapse onto the same position). The finalizer's offset pass walks
	// these rather than relying on slice index, since expanding PushAll /
	// PopAll / the placeholder ops changes how many words precede a given
	// op.
	Labels []asmtypes.Label

	Comment string
}

// WithLabel returns a copy of o with l appended to its bound-label set.
func (o Op) WithLabel(l asmtypes.Label) Op {
	o.Labels = append(append([]asmtypes.Label{}, o.Labels...), l)
	return o
}

func (o Op) Reads() []asmtypes.Register {
	return o.Src[:o.NumSrc]
}

func (o Op) Writes() []asmtypes.Register {
	if o.HasDst {
		return []asmtypes.Register{o.Dst}
	}
	return nil
}

func (o Op) String() string {
	s := o.Code.String()
	if o.HasDst {
		s += " " + o.Dst.String()
	}
	for i := 0; i < o.NumSrc; i++ {
		s += ", " + o.Src[i].String()
	}
	switch o.ImmKind {
	case ImmI6, ImmI12, ImmI18, ImmI24:
		s += fmt.Sprintf(", #%d", o.ImmValue)
	}
	if o.HasData {
		s += ", " + o.Data.String()
	}
	if o.HasTarget {
		s += ", " + o.Target.String()
	}
	return s
}

// --- Constructors --------------------------------------------------------

func bin(code Code, dst asmtypes.Register, a, b asmtypes.Register) Op {
	return Op{Code: code, Dst: dst, HasDst: true, Src: [2]asmtypes.Register{a, b}, NumSrc: 2}
}

func binImm(code Code, kind ImmKind, dst, a asmtypes.Register, imm int64) Op {
	return Op{Code: code, Dst: dst, HasDst: true, Src: [2]asmtypes.Register{a}, NumSrc: 1, ImmKind: kind, ImmValue: imm}
}

func NewAdd(dst, a, b asmtypes.Register) Op { return bin(Add, dst, a, b) }
func NewSub(dst, a, b asmtypes.Register) Op { return bin(Sub, dst, a, b) }
func NewMul(dst, a, b asmtypes.Register) Op { return bin(Mul, dst, a, b) }
func NewDiv(dst, a, b asmtypes.Register) Op { return bin(Div, dst, a, b) }
func NewMod(dst, a, b asmtypes.Register) Op { return bin(Mod, dst, a, b) }
func NewAnd(dst, a, b asmtypes.Register) Op { return bin(And, dst, a, b) }
func NewOr(dst, a, b asmtypes.Register) Op { return bin(Or, dst, a, b) }
func NewXor(dst, a, b asmtypes.Register) Op { return bin(Xor, dst, a, b) }
func NewEq(dst, a, b asmtypes.Register) Op { return bin(Eq, dst, a, b) }
func NewLt(dst, a, b asmtypes.Register) Op { return bin(Lt, dst, a, b) }
func NewGt(dst, a, b asmtypes.Register) Op { return bin(Gt, dst, a, b) }

func NewAddi(dst, a asmtypes.Register, imm asmtypes.Immediate12) Op {
	return binImm(Addi, ImmI12, dst, a, imm.Value())
}

func NewSubi(dst, a asmtypes.Register, imm asmtypes.Immediate12) Op {
	return binImm(Subi, ImmI12, dst, a, imm.Value())
}

func NewNot(dst, a asmtypes.Register) Op {
	return Op{Code: Not, Dst: dst, HasDst: true, Src: [2]asmtypes.Register{a}, NumSrc: 1}
}

func NewMove(dst, src asmtypes.Register) Op {
	return Op{Code: Move, Dst: dst, HasDst: true, Src: [2]asmtypes.Register{src}, NumSrc: 1}
}

func NewMoveImmediate(dst asmtypes.Register, imm asmtypes.Immediate18) Op {
	return Op{Code: MoveImmediate, Dst: dst, HasDst: true, ImmKind: ImmI18, ImmValue: imm.Value()}
}

func NewMoveAddress(dst asmtypes.Register, target asmtypes.Label) Op {
	return Op{Code: MoveAddress, Dst: dst, HasDst: true, Target: target, HasTarget: true}
}

func NewLoadWord(dst, base asmtypes.Register, id datasection.DataId) Op {
	return Op{Code: LoadWord, Dst: dst, HasDst: true, Src: [2]asmtypes.Register{base}, NumSrc: 1, Data: id, HasData: true}
}

func NewLoadWordImm(dst, base asmtypes.Register, wordOffset asmtypes.Immediate12) Op {
	return Op{Code: LoadWord, Dst: dst, HasDst: true, Src: [2]asmtypes.Register{base}, NumSrc: 1, ImmKind: ImmI12, ImmValue: wordOffset.Value()}
}

func NewStoreWord(base, value asmtypes.Register, wordOffset asmtypes.Immediate12) Op {
	return Op{Code: StoreWord, Src: [2]asmtypes.Register{base, value}, NumSrc: 2, ImmKind: ImmI12, ImmValue: wordOffset.Value()}
}

func NewExtendFrame(bytes asmtypes.Immediate24) Op {
	return Op{Code: ExtendFrame, ImmKind: ImmI24, ImmValue: bytes.Value()}
}

func NewShrinkFrame(bytes asmtypes.Immediate24) Op {
	return Op{Code: ShrinkFrame, ImmKind: ImmI24, ImmValue: bytes.Value()}
}

func NewJumpTo(target asmtypes.Label) Op {
	return Op{Code: JumpTo, Target: target, HasTarget: true}
}

func NewJumpIfNotZero(cond asmtypes.Register, target asmtypes.Label) Op {
	return Op{Code: JumpIfNotZero, Src: [2]asmtypes.Register{cond}, NumSrc: 1, Target: target, HasTarget: true}
}

func NewCall(target asmtypes.Label) Op {
	return Op{Code: Call, Target: target, HasTarget: true}
}

func NewRet() Op {
	return Op{Code: Ret}
}

func NewStorageReadWord(dst, key asmtypes.Register) Op {
	return Op{Code: StorageReadWord, Dst: dst, HasDst: true, Src: [2]asmtypes.Register{key}, NumSrc: 1}
}

func NewStorageWriteWord(key, value asmtypes.Register) Op {
	return Op{Code: StorageWriteWord, Src: [2]asmtypes.Register{key, value}, NumSrc: 2}
}

func NewStorageReadQuad(dst, key asmtypes.Register) Op {
	return Op{Code: StorageReadQuad, Dst: dst, HasDst: true, Src: [2]asmtypes.Register{key}, NumSrc: 1}
}

func NewStorageWriteQuad(key, value asmtypes.Register) Op {
	return Op{Code: StorageWriteQuad, Src: [2]asmtypes.Register{key, value}, NumSrc: 2}
}

func NewGetMeta(dst asmtypes.Register, index asmtypes.Immediate6) Op {
	return Op{Code: GetMeta, Dst: dst, HasDst: true, ImmKind: ImmI6, ImmValue: index.Value()}
}

func NewGetTxField(dst asmtypes.Register, field asmtypes.Immediate12) Op {
	return Op{Code: GetTxField, Dst: dst, HasDst: true, ImmKind: ImmI12, ImmValue: field.Value()}
}

// NewUndefined builds the placeholder op that carries labels bound at the
// very end of a function's op stream, so they resolve to a valid offset.
func NewUndefined() Op { return Op{Code: Undefined} }

// NewDataSectionOffsetPlaceholder builds the op standing for the 64-bit
// word that holds the data section's byte offset.
func NewDataSectionOffsetPlaceholder() Op {
	return Op{Code: DataSectionOffsetPlaceholder}
}

// NewDataSectionRegisterLoad builds the op standing for the sequence that
// reads instruction-start and writes the data-section register.
func NewDataSectionRegisterLoad() Op {
	return Op{
		Code: DataSectionRegisterLoadPlaceholder,
		Dst: asmtypes.ReservedReg(asmtypes.DataSection),
		HasDst: true,
		Src: [2]asmtypes.Register{asmtypes.ReservedReg(asmtypes.InstructionStart)},
		NumSrc: 1,
	}
}

func NewPushAll(label asmtypes.Label) Op {
	return Op{Code: PushAll, Target: label, HasTarget: true}
}

func NewPopAll(label asmtypes.Label) Op {
	return Op{Code: PopAll, Target: label, HasTarget: true}
}
