package broker

import "github.com/ketrewq/v8/bytecode"

// BinaryOpHint is the operand-type category observed at a binary or unary
// arithmetic site.
type BinaryOpHint uint8

const (
	BinaryOpNone BinaryOpHint = iota // site never executed
	BinaryOpSignedSmall
	BinaryOpNumber
	BinaryOpNumberOrOddball
	BinaryOpAny
)

// CompareOpHint is the operand-type category observed at a comparison.
type CompareOpHint uint8

const (
	CompareOpNone CompareOpHint = iota
	CompareOpSignedSmall
	CompareOpNumber
	CompareOpString
	CompareOpAny
)

// PropertyFeedback records the receiver maps observed at a property
// access site. An empty map list with Megamorphic set means the site saw
// too many shapes to track; empty without the bit means never executed.
type PropertyFeedback struct {
	Maps        []*Map
	Megamorphic bool
}

// IsUninitialized reports whether the site never executed.
func (f PropertyFeedback) IsUninitialized() bool {
	return len(f.Maps) == 0 && !f.Megamorphic
}

// CallFeedback records the observed call target and invocation count.
type CallFeedback struct {
	Target *FunctionInfo
	Count  uint32
}

// GlobalFeedback records a resolved global access.
type GlobalFeedback struct {
	Name     string
	CellKind GlobalCellKind
}

// GlobalCellKind describes mutability of a global property cell.
type GlobalCellKind uint8

const (
	GlobalCellMutable GlobalCellKind = iota
	GlobalCellConstant
)

// FeedbackVector holds the typed feedback slots for one function. Slots
// are indexed by the feedback-slot operands embedded in the bytecode.
type FeedbackVector struct {
	binaryOps  map[int]BinaryOpHint
	compareOps map[int]CompareOpHint
	properties map[int]PropertyFeedback
	calls      map[int]CallFeedback
	globals    map[int]GlobalFeedback

	// InvocationCount drives the inliner's call-frequency gate.
	InvocationCount uint32
}

// NewFeedbackVector returns an empty vector (all slots uninitialized).
func NewFeedbackVector() *FeedbackVector {
	return &FeedbackVector{
		binaryOps:  make(map[int]BinaryOpHint),
		compareOps: make(map[int]CompareOpHint),
		properties: make(map[int]PropertyFeedback),
		calls:      make(map[int]CallFeedback),
		globals:    make(map[int]GlobalFeedback),
	}
}

// BinaryOpFeedback returns the hint for slot, or BinaryOpNone.
func (v *FeedbackVector) BinaryOpFeedback(slot int) BinaryOpHint {
	return v.binaryOps[slot]
}

// CompareOpFeedback returns the hint for slot, or CompareOpNone.
func (v *FeedbackVector) CompareOpFeedback(slot int) CompareOpHint {
	return v.compareOps[slot]
}

// PropertyFeedbackFor returns the property feedback for slot.
func (v *FeedbackVector) PropertyFeedbackFor(slot int) PropertyFeedback {
	return v.properties[slot]
}

// CallFeedbackFor returns the call feedback for slot.
func (v *FeedbackVector) CallFeedbackFor(slot int) (CallFeedback, bool) {
	f, ok := v.calls[slot]
	return f, ok
}

// GlobalFeedbackFor returns the global feedback for slot.
func (v *FeedbackVector) GlobalFeedbackFor(slot int) (GlobalFeedback, bool) {
	f, ok := v.globals[slot]
	return f, ok
}

// SetBinaryOpFeedback records a hint. The interpreter side calls these;
// tests use them to stage scenarios.
func (v *FeedbackVector) SetBinaryOpFeedback(slot int, hint BinaryOpHint) {
	v.binaryOps[slot] = hint
}

// SetCompareOpFeedback records a comparison hint.
func (v *FeedbackVector) SetCompareOpFeedback(slot int, hint CompareOpHint) {
	v.compareOps[slot] = hint
}

// SetPropertyFeedback records observed receiver maps.
func (v *FeedbackVector) SetPropertyFeedback(slot int, f PropertyFeedback) {
	v.properties[slot] = f
}

// SetCallFeedback records an observed call target.
func (v *FeedbackVector) SetCallFeedback(slot int, f CallFeedback) {
	v.calls[slot] = f
}

// SetGlobalFeedback records a resolved global access.
func (v *FeedbackVector) SetGlobalFeedback(slot int, f GlobalFeedback) {
	v.globals[slot] = f
}

// FunctionInfo is the compile-time view of a callable: its bytecode, its
// feedback, and the metadata the inliner consults.
type FunctionInfo struct {
	Name     string
	Bytecode *bytecode.Array
	Feedback *FeedbackVector

	// Inlineability classification maintained by the runtime.
	Inlineable bool

	// UsesNewTarget marks functions reading the implicit new-target
	// (derived constructors); the inliner rejects them.
	UsesNewTarget bool

	// IsGenerator marks resumable functions; unsupported by the inliner.
	IsGenerator bool
}
