package maglev

import (
	"testing"

	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/ir"
)

func TestTypeLattice(t *testing.T) {
	if !TypeSmi.IsSubtypeOf(TypeNumber) {
		t.Errorf("Smi should be a subtype of Number")
	}
	if TypeNumber.IsSubtypeOf(TypeSmi) {
		t.Errorf("Number should not be a subtype of Smi")
	}
	if !TypeBoolean.IsSubtypeOf(TypeOddball) || !TypeBoolean.IsSubtypeOf(TypeAnyHeapObject) {
		t.Errorf("Boolean should be an oddball heap object")
	}
	if got := CombineType(TypeNumber, TypeAnyHeapObject); !got.IsSubtypeOf(TypeNumber) || !got.IsSubtypeOf(TypeAnyHeapObject) {
		t.Errorf("CombineType lost a constraint: %s", got)
	}
	if got := IntersectType(TypeSmi, TypeString); got != TypeUnknown {
		t.Errorf("IntersectType(Smi, String) = %s, want Unknown", got)
	}
	if got := IntersectType(TypeSmi, TypeNumber); got != TypeNumber {
		t.Errorf("IntersectType(Smi, Number) = %s, want Number", got)
	}
}

func TestStaticTypes(t *testing.T) {
	g := ir.NewGraph()
	if got := StaticType(g.SmiConstant(1)); got != TypeSmi {
		t.Errorf("SmiConstant static type = %s, want Smi", got)
	}
	if got := StaticType(g.RootConstant(ir.RootTrue)); got != TypeBoolean {
		t.Errorf("true static type = %s, want Boolean", got)
	}
	if got := StaticType(g.RootConstant(ir.RootUndefined)); got != TypeOddball {
		t.Errorf("undefined static type = %s, want Oddball", got)
	}
}

func TestAspectsMergeWidensTypes(t *testing.T) {
	g := ir.NewGraph()
	n := g.NewNode(ir.OpParameter, ir.ReprTagged, ir.ParameterData{Index: 1})

	a := NewKnownNodeAspects()
	a.SetType(n, TypeSmi)
	b := NewKnownNodeAspects()
	b.SetType(n, TypeString)

	a.Merge(b)
	if got := a.TypeOf(n); got != TypeUnknown {
		t.Errorf("merged type = %s, want Unknown for disagreeing arms", got)
	}
}

func TestAspectsMergeDropsOneSidedKnowledge(t *testing.T) {
	g := ir.NewGraph()
	n := g.NewNode(ir.OpParameter, ir.ReprTagged, ir.ParameterData{Index: 1})

	a := NewKnownNodeAspects()
	a.SetType(n, TypeSmi)
	b := NewKnownNodeAspects()

	a.Merge(b)
	if _, ok := a.TryGetInfo(n); ok {
		t.Errorf("knowledge recorded on one arm only survived the merge")
	}
}

func TestAspectsMergeUnionsMaps(t *testing.T) {
	g := ir.NewGraph()
	n := g.NewNode(ir.OpParameter, ir.ReprTagged, ir.ParameterData{Index: 1})
	m1 := objectMapWithField("x")
	m2 := objectMapWithField("y")

	a := NewKnownNodeAspects()
	a.GetOrCreateInfo(n).setPossibleMaps([]*broker.Map{m1}, true)
	b := NewKnownNodeAspects()
	b.GetOrCreateInfo(n).setPossibleMaps([]*broker.Map{m2}, true)

	a.Merge(b)
	info, ok := a.TryGetInfo(n)
	if !ok {
		t.Fatalf("map knowledge lost at merge")
	}
	maps, known := info.PossibleMaps()
	if !known || len(maps) != 2 {
		t.Fatalf("merged map set = %v (known=%v), want both maps", maps, known)
	}
	if !info.MapsAreStable() {
		t.Errorf("stability lost although both sides were stable")
	}
}

func TestAspectsMergeStabilityIsConjunctive(t *testing.T) {
	g := ir.NewGraph()
	n := g.NewNode(ir.OpParameter, ir.ReprTagged, ir.ParameterData{Index: 1})
	m1 := objectMapWithField("x")
	m2 := objectMapWithField("y")

	a := NewKnownNodeAspects()
	a.GetOrCreateInfo(n).setPossibleMaps([]*broker.Map{m1}, true)
	b := NewKnownNodeAspects()
	b.GetOrCreateInfo(n).setPossibleMaps([]*broker.Map{m2}, false)

	a.Merge(b)
	info, _ := a.TryGetInfo(n)
	if info.MapsAreStable() {
		t.Errorf("merge kept stability although one side was unstable")
	}
}

func TestClearUnstableMaps(t *testing.T) {
	g := ir.NewGraph()
	stable := g.NewNode(ir.OpParameter, ir.ReprTagged, ir.ParameterData{Index: 1})
	unstable := g.NewNode(ir.OpParameter, ir.ReprTagged, ir.ParameterData{Index: 2})
	m := objectMapWithField("x")

	a := NewKnownNodeAspects()
	a.GetOrCreateInfo(stable).setPossibleMaps([]*broker.Map{m}, true)
	a.GetOrCreateInfo(unstable).setPossibleMaps([]*broker.Map{m}, false)

	a.ClearUnstableMaps()
	if _, known := a.GetOrCreateInfo(stable).PossibleMaps(); !known {
		t.Errorf("stable-map knowledge dropped by a side effect")
	}
	if _, known := a.GetOrCreateInfo(unstable).PossibleMaps(); known {
		t.Errorf("unstable-map knowledge survived a side effect")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := ir.NewGraph()
	n := g.NewNode(ir.OpParameter, ir.ReprTagged, ir.ParameterData{Index: 1})

	a := NewKnownNodeAspects()
	a.SetType(n, TypeNumber)
	c := a.Clone()
	c.SetType(n, TypeSmi)

	if got := a.TypeOf(n); got != TypeNumber {
		t.Errorf("original type = %s after mutating the clone, want Number", got)
	}
	if got := c.TypeOf(n); got != TypeSmi {
		t.Errorf("clone type = %s, want Smi", got)
	}
}

func TestMergeAlternativesKeepsOnlyIdentical(t *testing.T) {
	g := ir.NewGraph()
	shared := g.Int32Constant(1)
	x := alternatives{int32Value: shared, tagged: g.SmiConstant(1)}
	y := alternatives{int32Value: shared, tagged: g.SmiConstant(2)}

	merged := mergeAlternatives(x, y)
	if merged.int32Value != shared {
		t.Errorf("identical cached conversion dropped at merge")
	}
	if merged.tagged != nil {
		t.Errorf("diverging cached conversion survived the merge")
	}
}
