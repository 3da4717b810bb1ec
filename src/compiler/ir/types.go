package ir

import "fmt"

// Type is a resolved IR type. Unlike the TAST's tast.Type, every IR type has
// already passed monomorphization: there is no generic parameter left to
// resolve — unresolved generics at IR construction are a hard internal error.
type Type interface {
	Name() string
	// SizeWords is this type's size in 8-byte stack words, used by the
	// per-type frame layout.
	SizeWords() int
	IsReference() bool
}

type Primitive struct {
	name string
	words int
	reference bool
}

func (t *Primitive) Name() string { return t.name }
func (t *Primitive) SizeWords() int { return t.words }
func (t *Primitive) IsReference() bool { return t.reference }

var (
	// Bool, u8..u64 and the VM word are 1 stack word.
	TypeBool = &Primitive{name: "bool", words: 1}
	TypeU64 = &Primitive{name: "u64", words: 1}
	TypeU256 = &Primitive{name: "u256", words: 4}
	TypeUnit = &Primitive{name: "", words: 0}
)

// SliceType is always 2 words (pointer + length).
type SliceType struct{ Elem Type }

func (t *SliceType) Name() string { return fmt.Sprintf("[%s]", t.Elem.Name()) }
func (t *SliceType) SizeWords() int { return 2 }
func (t *SliceType) IsReference() bool { return false }

// StringType's stack size is the round-up-to-word byte length.
type StringType struct{ ByteLen int }

func (t *StringType) Name() string { return fmt.Sprintf("str[%d]", t.ByteLen) }
func (t *StringType) SizeWords() int {
	return (t.ByteLen + 7) / 8
}
func (t *StringType) IsReference() bool { return false }

// StructType's stack size is the round-up-to-word size of its fields,
// expressed directly in words here since IR has already computed layout.
type StructField struct {
	Name string
	Type Type
}

type StructType struct {
	TypeName string
	Fields []StructField
	words int
}

func NewStructType(name string, fields []StructField) *StructType {
	total := 0
	for _, f := range fields {
		total += f.Type.SizeWords()
	}
	return &StructType{TypeName: name, Fields: fields, words: total}
}

func (t *StructType) Name() string { return t.TypeName }
func (t *StructType) SizeWords() int { return t.words }
func (t *StructType) IsReference() bool { return false }

// PointerType represents a reference-typed local. Reference-typed locals are
// always stack-allocated.
type PointerType struct{ Pointee Type }

func (t *PointerType) Name() string { return "*" + t.Pointee.Name() }
func (t *PointerType) SizeWords() int { return 1 }
func (t *PointerType) IsReference() bool { return true }
