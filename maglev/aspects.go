package maglev

import (
	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/ir"
)

// alternatives caches already-materialized representations of one logical
// value so repeated conversion requests reuse the same node.
type alternatives struct {
	tagged         *ir.Node
	int32Value     *ir.Node
	truncatedInt32 *ir.Node
	float64Value   *ir.Node
	checkedValue   *ir.Node // materialized boolean for ToBoolean users
}

// NodeInfo is the mutable knowledge recorded for one value node: its
// inferred type, the set of maps it may have, and its cached alternative
// representations.
type NodeInfo struct {
	Type NodeType

	// anyMapPossible means the possible-map set is the universal set;
	// possibleMaps is meaningful only when it is false.
	anyMapPossible bool
	possibleMaps   []*broker.Map
	mapsAreStable  bool

	alt alternatives
}

// PossibleMaps returns the known map set, or (nil, false) when any map is
// possible.
func (i *NodeInfo) PossibleMaps() ([]*broker.Map, bool) {
	if i.anyMapPossible {
		return nil, false
	}
	return i.possibleMaps, true
}

// MapsAreStable reports whether every known possible map is stable.
func (i *NodeInfo) MapsAreStable() bool {
	return !i.anyMapPossible && i.mapsAreStable
}

// setPossibleMaps narrows the known map set. The slice is owned by the
// info afterwards; callers pass freshly built slices.
func (i *NodeInfo) setPossibleMaps(maps []*broker.Map, stable bool) {
	i.anyMapPossible = false
	i.possibleMaps = maps
	i.mapsAreStable = stable
}

// KnownNodeAspects is the side table of per-node knowledge threaded
// through the build. It is cloned for branch copies and merged by
// intersection at joins; recorded knowledge is only ever weakened at a
// merge, never trusted from a single side.
type KnownNodeAspects struct {
	info map[*ir.Node]*NodeInfo
}

// NewKnownNodeAspects returns an empty side table.
func NewKnownNodeAspects() *KnownNodeAspects {
	return &KnownNodeAspects{info: make(map[*ir.Node]*NodeInfo)}
}

// GetOrCreateInfo returns the info for n, creating it from n's static
// type on first use.
func (a *KnownNodeAspects) GetOrCreateInfo(n *ir.Node) *NodeInfo {
	if info, ok := a.info[n]; ok {
		return info
	}
	info := &NodeInfo{Type: StaticType(n), anyMapPossible: true}
	a.info[n] = info
	return info
}

// TryGetInfo returns the recorded info for n, if any.
func (a *KnownNodeAspects) TryGetInfo(n *ir.Node) (*NodeInfo, bool) {
	info, ok := a.info[n]
	return info, ok
}

// TypeOf returns the best known type for n, combining recorded and
// static knowledge.
func (a *KnownNodeAspects) TypeOf(n *ir.Node) NodeType {
	static := StaticType(n)
	if info, ok := a.info[n]; ok {
		return CombineType(static, info.Type)
	}
	return static
}

// SetType records that n has type t in addition to what is already known.
func (a *KnownNodeAspects) SetType(n *ir.Node, t NodeType) {
	info := a.GetOrCreateInfo(n)
	info.Type = CombineType(info.Type, t)
}

// Clone returns an independent copy for a branch arm. Map slices are
// shared because narrowing always installs a fresh slice.
func (a *KnownNodeAspects) Clone() *KnownNodeAspects {
	c := &KnownNodeAspects{info: make(map[*ir.Node]*NodeInfo, len(a.info))}
	for n, info := range a.info {
		copied := *info
		c.info[n] = &copied
	}
	return c
}

// Merge intersects other into a at a control-flow join: only knowledge
// present on both sides survives, types are widened to their join, and
// map sets become the union of both sides' possibilities.
func (a *KnownNodeAspects) Merge(other *KnownNodeAspects) {
	for n, info := range a.info {
		oinfo, ok := other.info[n]
		if !ok {
			delete(a.info, n)
			continue
		}
		info.Type = IntersectType(info.Type, oinfo.Type)
		if info.anyMapPossible || oinfo.anyMapPossible {
			info.anyMapPossible = true
			info.possibleMaps = nil
			info.mapsAreStable = false
		} else {
			info.possibleMaps = unionMaps(info.possibleMaps, oinfo.possibleMaps)
			info.mapsAreStable = info.mapsAreStable && oinfo.mapsAreStable
		}
		info.alt = mergeAlternatives(info.alt, oinfo.alt)
	}
}

// ClearUnstableMaps drops map knowledge that a side-effecting node could
// have invalidated. Stable-map knowledge survives: the compilation holds
// a stability dependency, so any transition would discard the code.
func (a *KnownNodeAspects) ClearUnstableMaps() {
	for _, info := range a.info {
		if !info.anyMapPossible && !info.mapsAreStable {
			info.anyMapPossible = true
			info.possibleMaps = nil
		}
	}
}

func unionMaps(x, y []*broker.Map) []*broker.Map {
	out := make([]*broker.Map, 0, len(x)+len(y))
	out = append(out, x...)
	for _, m := range y {
		if !containsMap(out, m) {
			out = append(out, m)
		}
	}
	return out
}

func containsMap(maps []*broker.Map, m *broker.Map) bool {
	for _, have := range maps {
		if have == m {
			return true
		}
	}
	return false
}

func mergeAlternatives(x, y alternatives) alternatives {
	keep := func(a, b *ir.Node) *ir.Node {
		if a == b {
			return a
		}
		return nil
	}
	return alternatives{
		tagged:         keep(x.tagged, y.tagged),
		int32Value:     keep(x.int32Value, y.int32Value),
		truncatedInt32: keep(x.truncatedInt32, y.truncatedInt32),
		float64Value:   keep(x.float64Value, y.float64Value),
		checkedValue:   keep(x.checkedValue, y.checkedValue),
	}
}
