package maglev

import (
	"testing"

	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/bytecode"
	"github.com/ketrewq/v8/ir"
)

func objectMapWithField(name string) *broker.Map {
	return broker.NewMap(broker.JSObjectType, broker.PackedElements,
		broker.FieldDescriptor{Name: name, Offset: 0, Representation: broker.FieldTagged})
}

func namedLoad(maps ...*broker.Map) *functionBuilder {
	f := newFunction(2, 0)
	f.feedback.SetPropertyFeedback(0, broker.PropertyFeedback{Maps: maps})
	nameIdx := f.AddConstant("x")
	f.Emit(bytecode.GetNamedProperty, param(1), nameIdx, 0)
	f.Emit(bytecode.Return)
	return f
}

func TestMonomorphicLoad(t *testing.T) {
	m := objectMapWithField("x")
	f := namedLoad(m)
	deps := broker.NewDependencies()
	g, err := BuildGraph(f.info(), deps, DefaultOptions())
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if n := countOps(g, ir.OpCheckMaps); n != 1 {
		t.Errorf("CheckMaps count = %d, want 1", n)
	}
	if n := countOps(g, ir.OpLoadField); n != 1 {
		t.Errorf("LoadField count = %d, want 1", n)
	}
	if countOps(g, ir.OpLoadNamedGeneric) != 0 {
		t.Errorf("generic load emitted on a monomorphic site")
	}
	if !deps.DependsOnStability(m) {
		t.Errorf("no stability dependency registered for the checked map")
	}
}

func TestRepeatedLoadElidesMapCheck(t *testing.T) {
	m := objectMapWithField("x")
	f := newFunction(2, 0)
	f.feedback.SetPropertyFeedback(0, broker.PropertyFeedback{Maps: []*broker.Map{m}})
	f.feedback.SetPropertyFeedback(1, broker.PropertyFeedback{Maps: []*broker.Map{m}})
	nameIdx := f.AddConstant("x")
	f.Emit(bytecode.GetNamedProperty, param(1), nameIdx, 0)
	f.Emit(bytecode.GetNamedProperty, param(1), nameIdx, 1)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	// The second load sees the receiver's map set already narrowed.
	if n := countOps(g, ir.OpCheckMaps); n != 1 {
		t.Errorf("CheckMaps count = %d, want 1", n)
	}
	if n := countOps(g, ir.OpLoadField); n != 2 {
		t.Errorf("LoadField count = %d, want 2", n)
	}
}

func TestDisjointMapFeedbackDeopts(t *testing.T) {
	m1 := objectMapWithField("x")
	m2 := objectMapWithField("x")
	f := newFunction(2, 0)
	f.feedback.SetPropertyFeedback(0, broker.PropertyFeedback{Maps: []*broker.Map{m1}})
	f.feedback.SetPropertyFeedback(1, broker.PropertyFeedback{Maps: []*broker.Map{m2}})
	nameIdx := f.AddConstant("x")
	f.Emit(bytecode.GetNamedProperty, param(1), nameIdx, 0)
	f.Emit(bytecode.GetNamedProperty, param(1), nameIdx, 1)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	if n := countOps(g, ir.OpDeopt); n != 1 {
		t.Errorf("Deopt count = %d, want 1", n)
	}
	if n := countOps(g, ir.OpLoadField); n != 1 {
		t.Errorf("LoadField count = %d, want 1", n)
	}
	if countOps(g, ir.OpReturn) != 0 {
		t.Errorf("code emitted past a provably failing map check")
	}
}

func TestMegamorphicLoad(t *testing.T) {
	f := newFunction(2, 0)
	f.feedback.SetPropertyFeedback(0, broker.PropertyFeedback{Megamorphic: true})
	nameIdx := f.AddConstant("x")
	f.Emit(bytecode.GetNamedProperty, param(1), nameIdx, 0)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	load := findOp(g, ir.OpLoadMegamorphic)
	if load == nil {
		t.Fatalf("no megamorphic load emitted")
	}
	if load.LazyDeoptInfo() == nil {
		t.Errorf("megamorphic load has no lazy deopt frame")
	}
	if countOps(g, ir.OpCheckMaps) != 0 {
		t.Errorf("map check emitted on a megamorphic site")
	}
}

func TestPolymorphicLoad(t *testing.T) {
	m1 := objectMapWithField("x")
	m2 := broker.NewMap(broker.JSObjectType, broker.PackedElements,
		broker.FieldDescriptor{Name: "x", Offset: 8, Representation: broker.FieldTagged})
	f := namedLoad(m1, m2)

	g := buildGraph(t, f)
	if n := countOps(g, ir.OpCheckMaps); n != 1 {
		t.Errorf("CheckMaps count = %d, want 1", n)
	}
	load := findOp(g, ir.OpPolymorphicLoad)
	if load == nil {
		t.Fatalf("no polymorphic load emitted for two maps")
	}
	if load.EagerDeoptInfo() == nil {
		t.Errorf("polymorphic load has no eager deopt frame")
	}
	if countOps(g, ir.OpLoadField) != 0 {
		t.Errorf("direct field load emitted on a polymorphic site")
	}
}

func TestUninitializedLoadDeopts(t *testing.T) {
	f := newFunction(2, 0)
	nameIdx := f.AddConstant("x")
	f.Emit(bytecode.GetNamedProperty, param(1), nameIdx, 0)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	if n := countOps(g, ir.OpDeopt); n != 1 {
		t.Errorf("Deopt count = %d, want 1", n)
	}
}

func TestTooManyMapsFallsBackToGeneric(t *testing.T) {
	maps := make([]*broker.Map, maxPolymorphicMaps+1)
	for i := range maps {
		maps[i] = objectMapWithField("x")
	}
	f := namedLoad(maps...)

	g := buildGraph(t, f)
	load := findOp(g, ir.OpLoadNamedGeneric)
	if load == nil {
		t.Fatalf("no generic load past the polymorphism bound")
	}
	if load.LazyDeoptInfo() == nil {
		t.Errorf("generic load has no lazy deopt frame")
	}
	if countOps(g, ir.OpCheckMaps) != 0 {
		t.Errorf("map check emitted past the polymorphism bound")
	}
}

func TestMonomorphicStore(t *testing.T) {
	m := objectMapWithField("x")
	f := newFunction(3, 0)
	f.feedback.SetPropertyFeedback(0, broker.PropertyFeedback{Maps: []*broker.Map{m}})
	nameIdx := f.AddConstant("x")
	f.Emit(bytecode.Ldar, param(2))
	f.Emit(bytecode.SetNamedProperty, param(1), nameIdx, 0)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	if n := countOps(g, ir.OpCheckMaps); n != 1 {
		t.Errorf("CheckMaps count = %d, want 1", n)
	}
	if n := countOps(g, ir.OpStoreField); n != 1 {
		t.Errorf("StoreField count = %d, want 1", n)
	}
	if countOps(g, ir.OpSetNamedGeneric) != 0 {
		t.Errorf("generic store emitted on a monomorphic site")
	}
}

func TestStoreToConstantFieldDeopts(t *testing.T) {
	m := broker.NewMap(broker.JSObjectType, broker.PackedElements,
		broker.FieldDescriptor{Name: "x", Offset: 0, Representation: broker.FieldTagged, Constness: true})
	f := newFunction(3, 0)
	f.feedback.SetPropertyFeedback(0, broker.PropertyFeedback{Maps: []*broker.Map{m}})
	nameIdx := f.AddConstant("x")
	f.Emit(bytecode.Ldar, param(2))
	f.Emit(bytecode.SetNamedProperty, param(1), nameIdx, 0)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	if n := countOps(g, ir.OpDeopt); n != 1 {
		t.Errorf("Deopt count = %d, want 1", n)
	}
	if countOps(g, ir.OpStoreField) != 0 {
		t.Errorf("store emitted to a runtime-proven constant field")
	}
}

func TestElementLoadUniformKind(t *testing.T) {
	m := broker.NewMap(broker.JSArrayType, broker.PackedSmiElements)
	f := newFunction(3, 0)
	f.feedback.SetPropertyFeedback(0, broker.PropertyFeedback{Maps: []*broker.Map{m}})
	f.Emit(bytecode.Ldar, param(2))
	f.Emit(bytecode.GetKeyedProperty, param(1), 0)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	if n := countOps(g, ir.OpLoadElement); n != 1 {
		t.Errorf("LoadElement count = %d, want 1", n)
	}
	if n := countOps(g, ir.OpCheckMaps); n != 1 {
		t.Errorf("CheckMaps count = %d, want 1", n)
	}
}

func TestElementLoadMixedKindsFallsBack(t *testing.T) {
	m1 := broker.NewMap(broker.JSArrayType, broker.PackedSmiElements)
	m2 := broker.NewMap(broker.JSArrayType, broker.PackedDoubleElements)
	f := newFunction(3, 0)
	f.feedback.SetPropertyFeedback(0, broker.PropertyFeedback{Maps: []*broker.Map{m1, m2}})
	f.Emit(bytecode.Ldar, param(2))
	f.Emit(bytecode.GetKeyedProperty, param(1), 0)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	if countOps(g, ir.OpLoadElement) != 0 {
		t.Errorf("fast element load emitted over disagreeing elements kinds")
	}
	if n := countOps(g, ir.OpCallBuiltin); n != 1 {
		t.Errorf("CallBuiltin count = %d, want 1", n)
	}
}

func TestElementStorePacked(t *testing.T) {
	m := broker.NewMap(broker.JSArrayType, broker.PackedElements)
	f := newFunction(4, 0)
	f.feedback.SetPropertyFeedback(0, broker.PropertyFeedback{Maps: []*broker.Map{m}})
	f.Emit(bytecode.Ldar, param(3))
	f.Emit(bytecode.SetKeyedProperty, param(1), param(2), 0)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	if n := countOps(g, ir.OpStoreElement); n != 1 {
		t.Errorf("StoreElement count = %d, want 1", n)
	}
}

func TestElementStoreHoleyFallsBack(t *testing.T) {
	m := broker.NewMap(broker.JSArrayType, broker.HoleyElements)
	f := newFunction(4, 0)
	f.feedback.SetPropertyFeedback(0, broker.PropertyFeedback{Maps: []*broker.Map{m}})
	f.Emit(bytecode.Ldar, param(3))
	f.Emit(bytecode.SetKeyedProperty, param(1), param(2), 0)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	if countOps(g, ir.OpStoreElement) != 0 {
		t.Errorf("fast element store emitted for a holey receiver")
	}
	if n := countOps(g, ir.OpCallBuiltin); n != 1 {
		t.Errorf("CallBuiltin count = %d, want 1", n)
	}
}
