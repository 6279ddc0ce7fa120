package maglev

import (
	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/ir"
)

// ObjectBoilerplate describes an object-literal template from the
// constant pool: the map the literal starts with and its initial fields.
type ObjectBoilerplate struct {
	Map    *broker.Map
	Fields []BoilerplateField
}

// BoilerplateField is one constant-initialized field of a boilerplate.
type BoilerplateField struct {
	Name  string
	Value any
}

// boilerplateSlot pairs a field descriptor with the constant to store,
// resolved by the analysis pass.
type boilerplateSlot struct {
	field broker.FieldDescriptor
	value any
}

// visitCreateObjectLiteral lowers an object literal. The fast path
// analyzes the whole boilerplate first and only then emits code, so a
// half-lowered literal never escapes when a later field fails the
// analysis; any failure falls back to the runtime builtin.
func (b *GraphBuilder) visitCreateObjectLiteral() ReduceResult {
	it := &b.iterator
	c := b.fn.Bytecode.ConstantAt(it.IndexOperand(0))
	slot := it.IndexOperand(1)
	bp, ok := c.(*ObjectBoilerplate)
	if !ok {
		panic("maglev: CreateObjectLiteral constant is not a boilerplate")
	}

	if slots, ok := analyzeBoilerplate(bp); ok {
		obj := b.addNode(ir.OpAllocateObject, ir.ReprTagged,
			ir.AllocateData{Map: bp.Map, Slots: len(slots)})
		info := b.aspects.GetOrCreateInfo(obj)
		info.setPossibleMaps([]*broker.Map{bp.Map}, bp.Map.IsStable())
		b.aspects.SetType(obj, TypeJSReceiver)
		for _, s := range slots {
			b.addNode(ir.OpStoreField, ir.ReprNone,
				ir.FieldData{Name: s.field.Name, Field: s.field},
				obj, b.constantNode(s.value))
		}
		b.setAccumulator(obj)
		return Done()
	}

	literal := b.addNodeWithLazyDeopt(ir.OpCallBuiltin, ir.ReprTagged,
		ir.CallData{Builtin: "CreateObjectLiteral", Slot: slot},
		b.graph.HeapConstant(bp))
	b.setAccumulator(literal)
	return Done()
}

// analyzeBoilerplate checks every field resolves against the
// boilerplate's map with a representation a constant store can satisfy.
func analyzeBoilerplate(bp *ObjectBoilerplate) ([]boilerplateSlot, bool) {
	if bp.Map == nil {
		return nil, false
	}
	slots := make([]boilerplateSlot, 0, len(bp.Fields))
	for _, f := range bp.Fields {
		desc, ok := bp.Map.FindField(f.Name)
		if !ok {
			return nil, false
		}
		if !constantFitsField(f.Value, desc.Representation) {
			return nil, false
		}
		slots = append(slots, boilerplateSlot{field: desc, value: f.Value})
	}
	return slots, true
}

func constantFitsField(value any, repr broker.FieldRepresentation) bool {
	switch repr {
	case broker.FieldSmi:
		switch value.(type) {
		case int, int32:
			return true
		}
		return false
	case broker.FieldDouble:
		switch value.(type) {
		case int, int32, float64:
			return true
		}
		return false
	default:
		switch value.(type) {
		case int, int32, float64, string, bool, nil:
			return true
		}
		return false
	}
}
