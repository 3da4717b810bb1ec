package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/compiler/ir"
	"crucible/compiler/source"
)

func newContractModule() *ir.Module {
	m := ir.NewModule(ir.KindContract, "token")
	sig := ir.Signature{
		Params: []ir.Param{{Name: "amount", Type: ir.TypeU64}},
		Return: ir.TypeBool,
	}
	fh := m.NewFunction("transfer", sig, ir.ReadWrite, source.NoSpan)
	fn := m.Function(fh)
	fn.Meta.IsEntryPoint = true
	fn.Meta.Selector = 0xdeadbeef

	m.LoggedTypes = []ir.LoggedType{{LogID: 1, Type: ir.TypeU64}}
	m.Configurables = []ir.Configurable{{Name: "OWNER", Type: ir.TypeU256, Offset: 0}}
	return m
}

func Test_Emit_OnlyEntryPointsBecomeFunctions(t *testing.T) {
	m := newContractModule()
	sig := ir.Signature{Return: ir.TypeUnit}
	m.NewFunction("helper", sig, ir.Pure, source.NoSpan) // not an entry point

	doc := Emit(m)
	require.Len(t, doc.Functions, 1)
	assert.Equal(t, "transfer", doc.Functions[0].Name)
}

func Test_Emit_AttributesReflectPurity(t *testing.T) {
	m := newContractModule()
	doc := Emit(m)
	require.Len(t, doc.Functions, 1)
	assert.ElementsMatch(t, []string{"storage-read", "storage-write"}, doc.Functions[0].Attributes)
}

func Test_Emit_TypeTableDedupesRepeatedTypes(t *testing.T) {
	m := newContractModule()
	sig := ir.Signature{
		Params: []ir.Param{{Name: "x", Type: ir.TypeU64}},
		Return: ir.TypeU64,
	}
	fh := m.NewFunction("other", sig, ir.Pure, source.NoSpan)
	m.Function(fh).Meta.IsEntryPoint = true

	doc := Emit(m)
	u64Count := 0
	for _, te := range doc.Types {
		if te.Name == ir.TypeU64.Name() {
			u64Count++
		}
	}
	assert.Equal(t, 1, u64Count, "u64 should appear exactly once in the deduplicated type table")
}

func Test_Emit_LoggedTypesAndConfigurablesRoundTripTypeIds(t *testing.T) {
	m := newContractModule()
	doc := Emit(m)

	require.Len(t, doc.LoggedTypes, 1)
	require.Len(t, doc.Configurables, 1)
	assert.Equal(t, doc.Types[doc.LoggedTypes[0].TypeID].Name, ir.TypeU64.Name())
	assert.Equal(t, doc.Types[doc.Configurables[0].TypeID].Name, ir.TypeU256.Name())
	assert.Equal(t, "OWNER", doc.Configurables[0].Name)
}

func Test_MarshalJSON_ProducesStableSchemaVersion(t *testing.T) {
	m := newContractModule()
	doc := Emit(m)
	b, err := MarshalJSON(doc)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"abiVersion": "1"`)
}

func Test_Emit_PredicateModuleHasNoFunctions(t *testing.T) {
	m := ir.NewModule(ir.KindPredicate, "p")
	doc := Emit(m)
	assert.Empty(t, doc.Functions)
}
