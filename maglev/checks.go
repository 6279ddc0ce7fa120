package maglev

import (
	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/ir"
)

// maxPolymorphicMaps bounds how many maps a polymorphic dispatch node
// will carry before the access falls back to a generic lowering.
const maxPolymorphicMaps = 4

// BuildCheckMaps narrows obj's possible-map set to requiredMaps,
// emitting the cheapest sufficient guard:
//
//   - If the known set is already a subset of the required set, no check
//     is emitted; only the recorded type tightens.
//   - If the intersection is empty the path is provably unreachable and
//     an unconditional deopt replaces the check.
//   - If nothing is known, every stable required map becomes a stable-map
//     dependency and a full check is emitted.
//   - Deprecated maps in the required set need instance migration, so
//     the migration-capable check variant is used.
func (b *GraphBuilder) BuildCheckMaps(obj *ir.Node, requiredMaps []*broker.Map) ReduceResult {
	info := b.aspects.GetOrCreateInfo(obj)

	checkSet := requiredMaps
	if known, ok := info.PossibleMaps(); ok {
		intersection := intersectMaps(known, requiredMaps)
		if len(intersection) == 0 {
			return b.emitUnconditionalDeopt("map intersection empty")
		}
		if isSubsetOfMaps(known, requiredMaps) {
			b.tightenTypeFromMaps(obj, known)
			return Done()
		}
		checkSet = intersection
	} else {
		// Unknown map set: narrowing to stable maps stays valid only
		// while those maps stay stable.
		for _, m := range checkSet {
			if m.IsStable() {
				b.deps.DependOnStableMap(m)
			}
		}
	}

	op := ir.OpCheckMaps
	for _, m := range checkSet {
		if m.IsDeprecated() {
			op = ir.OpCheckMapsWithMigration
			break
		}
	}
	b.addNodeWithEagerDeopt(op, ir.ReprNone, ir.MapsData{Maps: checkSet}, obj)

	info.setPossibleMaps(checkSet, allMapsStable(checkSet))
	b.tightenTypeFromMaps(obj, checkSet)
	return Done()
}

func (b *GraphBuilder) tightenTypeFromMaps(obj *ir.Node, maps []*broker.Map) {
	allReceivers := true
	allStrings := true
	for _, m := range maps {
		if !m.IsJSReceiver() {
			allReceivers = false
		}
		if m.InstanceType() != broker.StringType {
			allStrings = false
		}
	}
	switch {
	case allReceivers:
		b.aspects.SetType(obj, TypeJSReceiver)
	case allStrings:
		b.aspects.SetType(obj, TypeString)
	default:
		b.aspects.SetType(obj, TypeAnyHeapObject)
	}
}

// TryBuildNamedAccess lowers a named property load using feedback.
// Monomorphic sites get a map check plus a direct field load; up to
// maxPolymorphicMaps surviving maps get a bounded polymorphic dispatch;
// megamorphic sites get the megamorphic builtin path. A Fail result
// sends the caller to the fully generic load.
func (b *GraphBuilder) TryBuildNamedAccess(obj *ir.Node, name string, slot int, feedback broker.PropertyFeedback) ReduceResult {
	if feedback.IsUninitialized() {
		return b.emitUnconditionalDeopt("insufficient feedback for named access")
	}
	if feedback.Megamorphic {
		load := b.addNodeWithLazyDeopt(ir.OpLoadMegamorphic, ir.ReprTagged,
			ir.NamedData{Name: name, Slot: slot}, b.GetTaggedValue(obj))
		return DoneWithValue(load)
	}

	maps := mapsWithField(feedback.Maps, name)
	if len(maps) == 0 || len(maps) > maxPolymorphicMaps {
		return Fail()
	}

	if res := b.BuildCheckMaps(obj, maps); res.IsDoneWithAbort() {
		return res
	}

	if known, ok := b.aspects.GetOrCreateInfo(obj).PossibleMaps(); ok {
		maps = mapsWithField(known, name)
		if len(maps) == 0 {
			return Fail()
		}
	}

	if len(maps) == 1 {
		field, _ := maps[0].FindField(name)
		load := b.addNode(ir.OpLoadField, fieldRepr(field),
			ir.FieldData{Name: name, Field: field}, b.GetTaggedValue(obj))
		return DoneWithValue(load)
	}

	cases := make([]ir.PolymorphicCase, 0, len(maps))
	for _, m := range maps {
		field, _ := m.FindField(name)
		cases = append(cases, ir.PolymorphicCase{Map: m, Field: field})
	}
	load := b.addNodeWithEagerDeopt(ir.OpPolymorphicLoad, ir.ReprTagged,
		ir.PolymorphicData{Name: name, Cases: cases}, b.GetTaggedValue(obj))
	return DoneWithValue(load)
}

// TryBuildNamedStore lowers a named property store. Only the monomorphic
// case has a fast path; everything else fails over to the generic store.
func (b *GraphBuilder) TryBuildNamedStore(obj *ir.Node, name string, value *ir.Node, feedback broker.PropertyFeedback) ReduceResult {
	if feedback.IsUninitialized() {
		return b.emitUnconditionalDeopt("insufficient feedback for named store")
	}
	if feedback.Megamorphic || len(feedback.Maps) != 1 {
		return Fail()
	}
	m := feedback.Maps[0]
	field, ok := m.FindField(name)
	if !ok {
		return Fail()
	}
	if field.Constness {
		// Storing to a field the runtime proved constant always
		// invalidates the speculation.
		return b.emitUnconditionalDeopt("store to constant field")
	}
	if res := b.BuildCheckMaps(obj, []*broker.Map{m}); res.IsDoneWithAbort() {
		return res
	}
	b.addNode(ir.OpStoreField, ir.ReprNone, ir.FieldData{Name: name, Field: field},
		b.GetTaggedValue(obj), b.GetTaggedValue(value))
	return Done()
}

// TryBuildElementAccess lowers a keyed element load when every feedback
// map agrees on the elements kind.
func (b *GraphBuilder) TryBuildElementAccess(obj, key *ir.Node, feedback broker.PropertyFeedback) ReduceResult {
	if feedback.IsUninitialized() {
		return b.emitUnconditionalDeopt("insufficient feedback for element access")
	}
	if feedback.Megamorphic || len(feedback.Maps) == 0 || len(feedback.Maps) > maxPolymorphicMaps {
		return Fail()
	}
	kind := feedback.Maps[0].ElementsKind()
	for _, m := range feedback.Maps {
		if m.ElementsKind() != kind || !m.IsJSReceiver() {
			return Fail()
		}
	}
	if res := b.BuildCheckMaps(obj, feedback.Maps); res.IsDoneWithAbort() {
		return res
	}
	index := b.GetInt32(key)
	repr := ir.ReprTagged
	switch kind {
	case broker.PackedDoubleElements:
		repr = ir.ReprFloat64
	case broker.HoleyDoubleElements:
		repr = ir.ReprHoleyFloat64
	}
	load := b.addNode(ir.OpLoadElement, repr, nil, b.GetTaggedValue(obj), index)
	return DoneWithValue(load)
}

// TryBuildElementStore lowers a keyed element store for uniform packed
// feedback.
func (b *GraphBuilder) TryBuildElementStore(obj, key, value *ir.Node, feedback broker.PropertyFeedback) ReduceResult {
	if feedback.IsUninitialized() {
		return b.emitUnconditionalDeopt("insufficient feedback for element store")
	}
	if feedback.Megamorphic || len(feedback.Maps) != 1 {
		return Fail()
	}
	m := feedback.Maps[0]
	if !m.IsJSReceiver() || m.ElementsKind().IsHoley() {
		return Fail()
	}
	if res := b.BuildCheckMaps(obj, []*broker.Map{m}); res.IsDoneWithAbort() {
		return res
	}
	index := b.GetInt32(key)
	b.addNode(ir.OpStoreElement, ir.ReprNone, nil,
		b.GetTaggedValue(obj), index, b.GetTaggedValue(value))
	return Done()
}

func fieldRepr(f broker.FieldDescriptor) ir.ValueRepresentation {
	if f.Representation == broker.FieldDouble {
		return ir.ReprFloat64
	}
	return ir.ReprTagged
}

func mapsWithField(maps []*broker.Map, name string) []*broker.Map {
	out := make([]*broker.Map, 0, len(maps))
	for _, m := range maps {
		if _, ok := m.FindField(name); ok {
			out = append(out, m)
		}
	}
	return out
}

func intersectMaps(a, bset []*broker.Map) []*broker.Map {
	out := make([]*broker.Map, 0, len(a))
	for _, m := range a {
		if containsMap(bset, m) {
			out = append(out, m)
		}
	}
	return out
}

func isSubsetOfMaps(a, bset []*broker.Map) bool {
	for _, m := range a {
		if !containsMap(bset, m) {
			return false
		}
	}
	return true
}

func allMapsStable(maps []*broker.Map) bool {
	for _, m := range maps {
		if !m.IsStable() {
			return false
		}
	}
	return true
}
