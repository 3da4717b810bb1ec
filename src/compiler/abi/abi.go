// Package abi renders a contract or script Module into its ABI JSON
// artifact: a deduplicated type table referenced by integer id, plus
// per-function name/inputs/output/attributes, the logged-type table,
// message types, and configurables. This is deliberately a thin serializer
// over data the ir package already carries — no analysis happens here, only
// projection and type-table dedup, so the encoding stays bit-exact across
// runs for the same Module.
package abi

import (
	"encoding/json"
	"fmt"

	"crucible/compiler/ir"
)

// TypeEntry is one row of the deduplicated type table.
type TypeEntry struct {
	ID int `json:"typeId"`
	Name string `json:"type"`
	Fields []FieldSpec `json:"components,omitempty"`
}

// FieldSpec names one field of a struct type and the type-table id of its
// type, used both for struct components and function parameters.
type FieldSpec struct {
	Name string `json:"name"`
	TypeID int `json:"typeId"`
	TypeArgStr string `json:"type,omitempty"`
}

// FunctionSpec is one exported function's ABI entry.
type FunctionSpec struct {
	Name string `json:"name"`
	Inputs []FieldSpec `json:"inputs"`
	Output FieldSpec `json:"output"`
	Attributes []string `json:"attributes,omitempty"`
}

// LoggedTypeSpec pairs a log id with its type-table entry.
type LoggedTypeSpec struct {
	LogID int `json:"logId"`
	TypeID int `json:"typeId"`
}

// ConfigurableSpec is one configurable constant's ABI entry.
type ConfigurableSpec struct {
	Name string `json:"name"`
	TypeID int `json:"typeId"`
	Offset int `json:"offset"`
}

// Document is the full ABI artifact: the schema version named here is the
// "stable and versioned" contract off-chain consumers rely on bit-exactly.
type Document struct {
	SchemaVersion string `json:"abiVersion"`
	Types []TypeEntry `json:"types"`
	Functions []FunctionSpec `json:"functions"`
	LoggedTypes []LoggedTypeSpec `json:"loggedTypes,omitempty"`
	MessageTypes []int `json:"messageTypes,omitempty"`
	Configurables []ConfigurableSpec `json:"configurables,omitempty"`
}

const schemaVersion = "1"

// typeTable accumulates types in first-seen order, deduplicated by Name —
// every IR type is already fully resolved by the time a Module reaches this
// package, so Name is a stable structural key.
type typeTable struct {
	order []ir.Type
	ids map[string]int
}

func newTypeTable() *typeTable {
	return &typeTable{ids: make(map[string]int)}
}

// intern returns the stable id for t, assigning a fresh one the first time a
// given Name is seen.
func (tt *typeTable) intern(t ir.Type) int {
	key := t.Name()
	if id, ok := tt.ids[key]; ok {
		return id
	}
	id := len(tt.order)
	tt.ids[key] = id
	tt.order = append(tt.order, t)
	return id
}

func (tt *typeTable) entries() []TypeEntry {
	out := make([]TypeEntry, 0, len(tt.order))
	// Indexed loop: interning a struct's field types may append to tt.order,
	// and those new types need rows of their own.
	for id := 0; id < len(tt.order); id++ {
		t := tt.order[id]
		entry := TypeEntry{ID: id, Name: t.Name()}
		if st, ok := t.(*ir.StructType); ok {
			for _, f := range st.Fields {
				entry.Fields = append(entry.Fields, FieldSpec{
					Name: f.Name,
					TypeID: tt.intern(f.Type),
				})
			}
		}
		out = append(out, entry)
	}
	return out
}

// Emit projects m into its ABI Document. Only Kind contract and Kind script
// programs carry a meaningful ABI; predicates and libraries
// have no externally callable surface, so Emit still succeeds for them but
// returns a Document with no functions.
func Emit(m *ir.Module) *Document {
	tt := newTypeTable()

	var fns []FunctionSpec
	hasSurface := m.Kind == ir.KindContract || m.Kind == ir.KindScript
	for _, fh := range m.Functions() {
		fn := m.Function(fh)
		if !hasSurface || fn == nil || !fn.Meta.IsEntryPoint {
			continue
		}
		fns = append(fns, FunctionSpec{
			Name: fn.Name,
			Inputs: paramFields(tt, fn.Sig.Params),
			Output: FieldSpec{Name: "", TypeID: tt.intern(fn.Sig.Return)},
			Attributes: attributesOf(fn),
		})
	}

	var logged []LoggedTypeSpec
	for _, lt := range m.LoggedTypes {
		logged = append(logged, LoggedTypeSpec{LogID: lt.LogID, TypeID: tt.intern(lt.Type)})
	}

	var messages []int
	for _, t := range m.MessageTypes {
		messages = append(messages, tt.intern(t))
	}

	var configs []ConfigurableSpec
	for _, cfg := range m.Configurables {
		configs = append(configs, ConfigurableSpec{
			Name: cfg.Name,
			TypeID: tt.intern(cfg.Type),
			Offset: cfg.Offset,
		})
	}

	return &Document{
		SchemaVersion: schemaVersion,
		Types: tt.entries(),
		Functions: fns,
		LoggedTypes: logged,
		MessageTypes: messages,
		Configurables: configs,
	}
}

func paramFields(tt *typeTable, params []ir.Param) []FieldSpec {
	out := make([]FieldSpec, 0, len(params))
	for _, p := range params {
		out = append(out, FieldSpec{Name: p.Name, TypeID: tt.intern(p.Type)})
	}
	return out
}

// attributesOf derives the function's ABI attribute list from its purity:
// read/write capability is the only attribute a function's own signature
// carries, so there is nothing else to project here.
func attributesOf(fn *ir.Function) []string {
	var attrs []string
	if fn.Purity.AllowsRead() {
		attrs = append(attrs, "storage-read")
	}
	if fn.Purity.AllowsWrite() {
		attrs = append(attrs, "storage-write")
	}
	return attrs
}

// MarshalJSON renders doc as the canonical ABI artifact bytes, indented for
// readability: off-chain consumers rely on the schema bit-exactly, not on
// whitespace, so indentation is a presentation choice, not part of the
// contract.
func MarshalJSON(doc *Document) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", " ")
	if err != nil {
		return nil, fmt.Errorf("internal compiler error: ABI document failed to serialize: %w", err)
	}
	return b, nil
}
