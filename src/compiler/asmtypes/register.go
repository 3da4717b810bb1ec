// Package asmtypes holds the width-checked immediate wrappers and the
// register and label types shared by the VASM and allocated-ASM opcode sets:
// a reserved-register set fixed by the VM plus an open pool of
// general-purpose physical registers the allocator draws from.
package asmtypes

import "fmt"

// Reserved enumerates the VM's fixed, non-allocatable registers plus the one
// compiler-reserved register (DataSection) this toolchain adds on top. The
// VM-reserved set never participates in allocation.
type Reserved uint8

const (
	Zero Reserved = iota
	One
	ProgramCounter
	StackStart
	StackPointer
	FramePointer
	Heap
	Err
	GasGlobal
	GasContext
	Balance
	InstructionStart
	Flags
	// DataSection is the compiler-reserved register holding the base
	// address of the data section. It receives a well-known physical ID
	// only after finalization.
	DataSection
	// ReturnValue and ReturnAddress are the two compiler-reserved registers
	// the calling convention dedicates to a call's result and its resume
	// point: the return value travels in a dedicated return-value register,
	// the return address in a dedicated return-address register.
	ReturnValue
	ReturnAddress
)

// NumArgRegisters is the size of the fixed argument-register window.
// Arguments occupy a fixed set of argument registers (at most 6); functions
// requiring more are rejected.
const NumArgRegisters = 6

// ArgReg returns the i'th argument register, i in [0, NumArgRegisters).
func ArgReg(i int) Register {
	if i < 0 || i >= NumArgRegisters {
		panic(fmt.Sprintf("asmtypes: argument index %d out of the %d-register window", i, NumArgRegisters))
	}
	return Register{Kind: KindReserved, Reserved: Reserved(int(arg0) + i)}
}

// arg0 is the first of the NumArgRegisters contiguous reserved argument
// registers, allocated after every named Reserved constant above.
const arg0 = ReturnAddress + 1

var reservedNames = map[Reserved]string{
	Zero: "zero",
	One: "one",
	ProgramCounter: "pc",
	StackStart: "ssp",
	StackPointer: "sp",
	FramePointer: "fp",
	Heap: "hp",
	Err: "err",
	GasGlobal: "ggas",
	GasContext: "cgas",
	Balance: "bal",
	InstructionStart: "is",
	Flags: "flag",
	DataSection: "$ds",
	ReturnValue: "rv",
	ReturnAddress: "ra",
}

func init() {
	for i := 0; i < NumArgRegisters; i++ {
		reservedNames[Reserved(int(arg0)+i)] = fmt.Sprintf("arg%d", i)
	}
}

func (r Reserved) String() string {
	if n, ok := reservedNames[r]; ok {
		return n
	}
	return fmt.Sprintf("reserved(%d)", uint8(r))
}

// NumGeneralPurpose is the size of the physical general-purpose register
// pool the allocator draws from.
const NumGeneralPurpose = 48

// RegKind distinguishes how a Register should be interpreted.
type RegKind uint8

const (
	// KindVirtual is a symbolic register awaiting allocation.
	KindVirtual RegKind = iota
	// KindReserved is one of the closed set of VM-defined registers.
	KindReserved
	// KindPhysical is a concrete general-purpose physical register,
	// produced only by the register allocator.
	KindPhysical
)

// Register is either a virtual register identified by an opaque symbolic
// name, a reserved VM register, or (post-allocation) a physical register ID.
// Go has no tagged unions, so this is one struct carrying every variant's
// fields, keyed by Kind.
type Register struct {
	Kind RegKind
	Name string // valid when Kind == KindVirtual
	Reserved Reserved // valid when Kind == KindReserved
	Physical int // valid when Kind == KindPhysical, in [0, NumGeneralPurpose)
}

func Virtual(name string) Register {
	return Register{Kind: KindVirtual, Name: name}
}

func ReservedReg(r Reserved) Register {
	return Register{Kind: KindReserved, Reserved: r}
}

func Physical(id int) Register {
	return Register{Kind: KindPhysical, Physical: id}
}

func (r Register) IsVirtual() bool { return r.Kind == KindVirtual }
func (r Register) IsReserved() bool { return r.Kind == KindReserved }
func (r Register) IsPhysical() bool { return r.Kind == KindPhysical }

// Equal reports whether two registers name the same storage location.
func (r Register) Equal(o Register) bool {
	if r.Kind != o.Kind {
		return false
	}
	switch r.Kind {
	case KindVirtual:
		return r.Name == o.Name
	case KindReserved:
		return r.Reserved == o.Reserved
	case KindPhysical:
		return r.Physical == o.Physical
	}
	return false
}

func (r Register) String() string {
	switch r.Kind {
	case KindVirtual:
		return "%" + r.Name
	case KindReserved:
		return r.Reserved.String()
	case KindPhysical:
		return fmt.Sprintf("r%d", r.Physical)
	}
	return "?"
}

// VirtualRegisterAllocator hands out fresh virtual registers during ASM-gen
// using a monotonic counter.
type VirtualRegisterAllocator struct {
	next int
}

func NewVirtualRegisterAllocator() *VirtualRegisterAllocator {
	return &VirtualRegisterAllocator{}
}

func (a *VirtualRegisterAllocator) Fresh() Register {
	name := fmt.Sprintf("v%d", a.next)
	a.next++
	return Virtual(name)
}
