package maglev

import (
	"testing"

	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/bytecode"
	"github.com/ketrewq/v8/ir"
)

func literalFunction(bp *ObjectBoilerplate) *functionBuilder {
	f := newFunction(1, 0)
	idx := f.AddConstant(bp)
	f.Emit(bytecode.CreateObjectLiteral, idx, 0)
	f.Emit(bytecode.Return)
	return f
}

func TestObjectLiteralFastPath(t *testing.T) {
	m := broker.NewMap(broker.JSObjectType, broker.PackedElements,
		broker.FieldDescriptor{Name: "x", Offset: 0, Representation: broker.FieldSmi},
		broker.FieldDescriptor{Name: "y", Offset: 8, Representation: broker.FieldTagged})
	bp := &ObjectBoilerplate{Map: m, Fields: []BoilerplateField{
		{Name: "x", Value: 1},
		{Name: "y", Value: "hello"},
	}}
	g := buildGraph(t, literalFunction(bp))

	if n := countOps(g, ir.OpAllocateObject); n != 1 {
		t.Errorf("AllocateObject count = %d, want 1", n)
	}
	if n := countOps(g, ir.OpStoreField); n != 2 {
		t.Errorf("StoreField count = %d, want 2", n)
	}
	if countOps(g, ir.OpCallBuiltin) != 0 {
		t.Errorf("runtime fallback taken for a well-formed boilerplate")
	}
}

func TestObjectLiteralRejectsWithoutPartialEmission(t *testing.T) {
	// The second field is missing from the map; the whole literal must
	// fall back, with no allocation or stores from the first field.
	m := broker.NewMap(broker.JSObjectType, broker.PackedElements,
		broker.FieldDescriptor{Name: "x", Offset: 0, Representation: broker.FieldSmi})
	bp := &ObjectBoilerplate{Map: m, Fields: []BoilerplateField{
		{Name: "x", Value: 1},
		{Name: "missing", Value: 2},
	}}
	g := buildGraph(t, literalFunction(bp))

	if countOps(g, ir.OpAllocateObject) != 0 {
		t.Errorf("allocation emitted for a rejected boilerplate")
	}
	if countOps(g, ir.OpStoreField) != 0 {
		t.Errorf("field store emitted for a rejected boilerplate")
	}
	if n := countOps(g, ir.OpCallBuiltin); n != 1 {
		t.Errorf("CallBuiltin count = %d, want 1", n)
	}
}

func TestObjectLiteralRejectsMisrepresentedConstant(t *testing.T) {
	m := broker.NewMap(broker.JSObjectType, broker.PackedElements,
		broker.FieldDescriptor{Name: "x", Offset: 0, Representation: broker.FieldSmi})
	bp := &ObjectBoilerplate{Map: m, Fields: []BoilerplateField{
		{Name: "x", Value: "not a smi"},
	}}
	g := buildGraph(t, literalFunction(bp))

	if countOps(g, ir.OpAllocateObject) != 0 {
		t.Errorf("allocation emitted for a constant the field cannot hold")
	}
	if n := countOps(g, ir.OpCallBuiltin); n != 1 {
		t.Errorf("CallBuiltin count = %d, want 1", n)
	}
}

func TestObjectLiteralNarrowsMaps(t *testing.T) {
	// The literal's map is statically known, so a following monomorphic
	// load on it needs no map check.
	m := broker.NewMap(broker.JSObjectType, broker.PackedElements,
		broker.FieldDescriptor{Name: "x", Offset: 0, Representation: broker.FieldTagged})
	bp := &ObjectBoilerplate{Map: m, Fields: []BoilerplateField{{Name: "x", Value: 1}}}

	f := newFunction(1, 1)
	f.feedback.SetPropertyFeedback(1, broker.PropertyFeedback{Maps: []*broker.Map{m}})
	bpIdx := f.AddConstant(bp)
	nameIdx := f.AddConstant("x")
	f.Emit(bytecode.CreateObjectLiteral, bpIdx, 0)
	f.Emit(bytecode.Star, 0)
	f.Emit(bytecode.GetNamedProperty, 0, nameIdx, 1)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	if n := countOps(g, ir.OpCheckMaps); n != 0 {
		t.Errorf("CheckMaps count = %d, want 0 for a freshly allocated literal", n)
	}
	if n := countOps(g, ir.OpLoadField); n != 1 {
		t.Errorf("LoadField count = %d, want 1", n)
	}
}
