package ir

import (
	"fmt"

	"github.com/ketrewq/v8/broker"
)

// ValueRepresentation describes how a node's result is materialized.
type ValueRepresentation uint8

const (
	ReprTagged ValueRepresentation = iota
	ReprInt32
	ReprUint32
	ReprFloat64
	ReprHoleyFloat64 // float64 that may carry the hole sentinel
	ReprWord64
	ReprNone // control nodes and pure effects
)

func (r ValueRepresentation) String() string {
	switch r {
	case ReprTagged:
		return "Tagged"
	case ReprInt32:
		return "Int32"
	case ReprUint32:
		return "Uint32"
	case ReprFloat64:
		return "Float64"
	case ReprHoleyFloat64:
		return "HoleyFloat64"
	case ReprWord64:
		return "Word64"
	case ReprNone:
		return "None"
	}
	return "Repr(?)"
}

// RootIndex names the canonical singleton values.
type RootIndex uint8

const (
	RootUndefined RootIndex = iota
	RootNull
	RootTrue
	RootFalse
	RootTheHole
	RootNaN
)

func (r RootIndex) String() string {
	switch r {
	case RootUndefined:
		return "undefined"
	case RootNull:
		return "null"
	case RootTrue:
		return "true"
	case RootFalse:
		return "false"
	case RootTheHole:
		return "the-hole"
	case RootNaN:
		return "nan"
	}
	return "root(?)"
}

// Payload is implemented by the per-kind payload structs attached to
// nodes whose opcode alone does not describe them.
type Payload interface{ isNodePayload() }

// SmiData carries the value of a SmiConstant.
type SmiData struct{ Value int32 }

// Int32Data carries the value of an Int32Constant.
type Int32Data struct{ Value int32 }

// Float64Data carries the value of a Float64Constant.
type Float64Data struct{ Value float64 }

// RootData carries the root index of a RootConstant or the root compared
// against by BranchIfRootConstant.
type RootData struct{ Index RootIndex }

// HeapData carries an arbitrary heap constant (string, function info,
// literal boilerplate descriptor).
type HeapData struct{ Value any }

// MapsData carries the checked map set of CheckMaps and its migration
// variant.
type MapsData struct{ Maps []*broker.Map }

// FieldData describes a direct field access.
type FieldData struct {
	Name  string
	Field broker.FieldDescriptor
}

// NamedData describes a generic named access or global access.
type NamedData struct {
	Name string
	Slot int
}

// PolymorphicCase is one (map, field) pair of a bounded polymorphic
// dispatch.
type PolymorphicCase struct {
	Map   *broker.Map
	Field broker.FieldDescriptor
}

// PolymorphicData carries the cases of a PolymorphicLoad.
type PolymorphicData struct {
	Name  string
	Cases []PolymorphicCase
}

// ComparisonOp names the relation computed by a comparison node.
type ComparisonOp uint8

const (
	CompareEqual ComparisonOp = iota
	CompareStrictEqual
	CompareLessThan
	CompareLessThanOrEqual
	CompareGreaterThan
	CompareGreaterThanOrEqual
)

func (c ComparisonOp) String() string {
	switch c {
	case CompareEqual:
		return "=="
	case CompareStrictEqual:
		return "==="
	case CompareLessThan:
		return "<"
	case CompareLessThanOrEqual:
		return "<="
	case CompareGreaterThan:
		return ">"
	case CompareGreaterThanOrEqual:
		return ">="
	}
	return "cmp(?)"
}

// CompareData carries the relation of comparison and fused-branch nodes.
type CompareData struct{ Op ComparisonOp }

// CallData describes a call's shape.
type CallData struct {
	Target  *broker.FunctionInfo // nil for fully generic calls
	Builtin string               // builtin name for OpCallBuiltin
	Slot    int
}

// ParameterData names the incoming parameter a Parameter node carries.
// Index 0 is the receiver.
type ParameterData struct{ Index int }

// PhiData ties a phi to its merge offset and source register.
type PhiData struct {
	Offset   int
	Register int
}

// BranchData carries the true/false targets of any branch node, the
// relation of fused comparison branches, and the root singleton a
// BranchIfRootConstant compares against. Targets are refs because the
// blocks may not exist yet.
type BranchData struct {
	IfTrue  *BasicBlockRef
	IfFalse *BasicBlockRef
	Compare ComparisonOp
	Root    RootIndex
}

// JumpData carries the target of Jump and JumpLoop.
type JumpData struct{ Target *BasicBlockRef }

// SwitchData carries a dense jump table.
type SwitchData struct {
	Targets     []*BasicBlockRef
	Fallthrough *BasicBlockRef
}

// DeoptData names the reason for an unconditional deopt.
type DeoptData struct{ Reason string }

// AllocateData describes an object allocation from a literal boilerplate.
type AllocateData struct {
	Map   *broker.Map
	Slots int
}

func (SmiData) isNodePayload()         {}
func (Int32Data) isNodePayload()       {}
func (Float64Data) isNodePayload()     {}
func (RootData) isNodePayload()        {}
func (HeapData) isNodePayload()        {}
func (MapsData) isNodePayload()        {}
func (FieldData) isNodePayload()       {}
func (NamedData) isNodePayload()       {}
func (PolymorphicData) isNodePayload() {}
func (CompareData) isNodePayload()     {}
func (CallData) isNodePayload()        {}
func (ParameterData) isNodePayload()   {}
func (PhiData) isNodePayload()         {}
func (BranchData) isNodePayload()      {}
func (JumpData) isNodePayload()        {}
func (SwitchData) isNodePayload()      {}
func (DeoptData) isNodePayload()       {}
func (AllocateData) isNodePayload()    {}

// Node is one IR instruction. Nodes are owned by the graph's zone and
// immutable after creation except for input patching during peephole
// folds.
type Node struct {
	id      uint32
	opcode  Opcode
	repr    ValueRepresentation
	inputs  []*Node
	payload Payload

	eagerDeoptInfo *DeoptFrame
	lazyDeoptInfo  *DeoptFrame
}

// ID returns the node's graph-unique id.
func (n *Node) ID() uint32 { return n.id }

// Op returns the node kind.
func (n *Node) Op() Opcode { return n.opcode }

// Repr returns the node's value representation.
func (n *Node) Repr() ValueRepresentation { return n.repr }

// Inputs returns the node's input list. Callers must not append.
func (n *Node) Inputs() []*Node { return n.inputs }

// Input returns input i.
func (n *Node) Input(i int) *Node { return n.inputs[i] }

// SetInput patches input i in place. Only peephole folds and loop-phi
// back-edge resolution use this.
func (n *Node) SetInput(i int, input *Node) { n.inputs[i] = input }

// AddInput appends an input. Only phi construction at merge points grows
// a node's input list.
func (n *Node) AddInput(input *Node) { n.inputs = append(n.inputs, input) }

// Payload returns the raw payload; prefer TryCast.
func (n *Node) Payload() Payload { return n.payload }

// EagerDeoptInfo returns the frame to reconstruct if the node's guard
// fails before it takes effect.
func (n *Node) EagerDeoptInfo() *DeoptFrame { return n.eagerDeoptInfo }

// LazyDeoptInfo returns the frame to resume after the node completes.
func (n *Node) LazyDeoptInfo() *DeoptFrame { return n.lazyDeoptInfo }

// SetEagerDeoptInfo attaches an eager deopt frame. The opcode must admit
// eager deoptimization.
func (n *Node) SetEagerDeoptInfo(f *DeoptFrame) {
	if !n.opcode.CanEagerDeopt() {
		panic(fmt.Sprintf("ir: eager deopt info on %s", n.opcode))
	}
	n.eagerDeoptInfo = f
}

// SetLazyDeoptInfo attaches a lazy deopt frame.
func (n *Node) SetLazyDeoptInfo(f *DeoptFrame) {
	if !n.opcode.CanLazyDeopt() {
		panic(fmt.Sprintf("ir: lazy deopt info on %s", n.opcode))
	}
	n.lazyDeoptInfo = f
}

func (n *Node) String() string {
	return fmt.Sprintf("n%d:%s", n.id, n.opcode)
}

// TryCast returns the node's payload as P if it has that payload kind.
// It is the only sanctioned downcast on nodes.
func TryCast[P Payload](n *Node) (P, bool) {
	p, ok := n.payload.(P)
	return p, ok
}

// Cast is TryCast that panics on mismatch; for sites where the opcode
// has already been checked.
func Cast[P Payload](n *Node) P {
	p, ok := n.payload.(P)
	if !ok {
		panic(fmt.Sprintf("ir: %s has no %T payload", n, p))
	}
	return p
}
