// Package broker provides the graph builder's read-only window onto the
// heap: object shapes (maps), runtime type feedback, and compilation
// dependency registration. The builder never mutates broker state.
package broker

// InstanceType classifies the kind of heap object a map describes.
type InstanceType uint8

const (
	JSObjectType InstanceType = iota
	JSArrayType
	JSFunctionType
	StringType
	SymbolType
	OddballType
	HeapNumberType
	BooleanType
)

// FieldRepresentation describes how a field is stored in an object.
type FieldRepresentation uint8

const (
	FieldTagged FieldRepresentation = iota
	FieldSmi
	FieldDouble
)

// FieldDescriptor describes one named in-object field.
type FieldDescriptor struct {
	Name           string
	Offset         int
	Representation FieldRepresentation
	Constness      bool // field value proven constant by the runtime
}

// ElementsKind describes the storage mode of indexed properties.
type ElementsKind uint8

const (
	PackedSmiElements ElementsKind = iota
	PackedDoubleElements
	PackedElements
	HoleySmiElements
	HoleyDoubleElements
	HoleyElements
)

// IsHoley reports whether the kind admits hole sentinels.
func (k ElementsKind) IsHoley() bool {
	return k >= HoleySmiElements
}

// Map is an object's layout descriptor. Maps are identity-compared:
// two objects share a Map pointer iff they have the same shape.
type Map struct {
	instanceType InstanceType
	elementsKind ElementsKind
	fields       []FieldDescriptor

	// stable means no object with this map has ever transitioned away
	// from it; a compilation may depend on stability and be invalidated
	// if the map later deprecates.
	stable bool

	// deprecated maps require instance migration before use; checks
	// against them must use the migration-capable variant.
	deprecated      bool
	migrationTarget *Map
}

// NewMap creates a stable map with the given layout.
func NewMap(t InstanceType, kind ElementsKind, fields ...FieldDescriptor) *Map {
	return &Map{instanceType: t, elementsKind: kind, fields: fields, stable: true}
}

// InstanceType returns the object kind this map describes.
func (m *Map) InstanceType() InstanceType { return m.instanceType }

// Fields returns the map's field descriptors in layout order.
func (m *Map) Fields() []FieldDescriptor { return m.fields }

// ElementsKind returns the indexed-property storage mode.
func (m *Map) ElementsKind() ElementsKind { return m.elementsKind }

// IsStable reports whether the map is still stable.
func (m *Map) IsStable() bool { return m.stable }

// IsDeprecated reports whether instances need migration off this map.
func (m *Map) IsDeprecated() bool { return m.deprecated }

// MigrationTarget returns the map instances migrate to, or nil.
func (m *Map) MigrationTarget() *Map { return m.migrationTarget }

// IsJSReceiver reports whether instances are JS receivers (objects,
// arrays, functions) rather than primitives.
func (m *Map) IsJSReceiver() bool {
	switch m.instanceType {
	case JSObjectType, JSArrayType, JSFunctionType:
		return true
	}
	return false
}

// FindField returns the descriptor for the named field.
func (m *Map) FindField(name string) (FieldDescriptor, bool) {
	for _, f := range m.fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Deprecate marks the map deprecated with the given migration target and
// drops stability. Test-only outside the runtime; the collector side of
// map transitions lives elsewhere.
func (m *Map) Deprecate(target *Map) {
	m.stable = false
	m.deprecated = true
	m.migrationTarget = target
}

// MarkUnstable drops the stability bit without deprecating.
func (m *Map) MarkUnstable() { m.stable = false }
