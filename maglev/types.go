package maglev

import (
	"strings"

	"github.com/ketrewq/v8/ir"
)

// NodeType is a bitset over type constraints. More bits set means a more
// specific type: a is a subtype of b iff a carries every bit of b. The
// zero value is Unknown (no constraints).
type NodeType uint16

const (
	TypeUnknown NodeType = 0

	typeNumberOrOddballBit NodeType = 1 << 0
	typeNumberBit          NodeType = 1 << 1
	typeSmiBit             NodeType = 1 << 2
	typeAnyHeapObjectBit   NodeType = 1 << 3
	typeOddballBit         NodeType = 1 << 4
	typeBooleanBit         NodeType = 1 << 5
	typeStringBit          NodeType = 1 << 6
	typeSymbolBit          NodeType = 1 << 7
	typeJSReceiverBit      NodeType = 1 << 8
	typeCallableBit        NodeType = 1 << 9

	TypeNumberOrOddball NodeType = typeNumberOrOddballBit
	TypeNumber          NodeType = typeNumberBit | TypeNumberOrOddball
	TypeSmi             NodeType = typeSmiBit | TypeNumber
	TypeAnyHeapObject   NodeType = typeAnyHeapObjectBit
	TypeOddball         NodeType = typeOddballBit | TypeNumberOrOddball | TypeAnyHeapObject
	TypeBoolean         NodeType = typeBooleanBit | TypeOddball
	TypeString          NodeType = typeStringBit | TypeAnyHeapObject
	TypeSymbol          NodeType = typeSymbolBit | TypeAnyHeapObject
	TypeJSReceiver      NodeType = typeJSReceiverBit | TypeAnyHeapObject
	TypeCallable        NodeType = typeCallableBit | TypeJSReceiver
)

// CombineType intersects the sets of possible values: the result carries
// the constraints of both operands. Used when a check proves an
// additional constraint on a value.
func CombineType(a, b NodeType) NodeType { return a | b }

// IntersectType widens to the join of both types: only constraints common
// to both survive. Used at control-flow merges.
func IntersectType(a, b NodeType) NodeType { return a & b }

// IsSubtypeOf reports whether every value of type a also has type b.
func (a NodeType) IsSubtypeOf(b NodeType) bool { return a&b == b }

func (a NodeType) String() string {
	if a == TypeUnknown {
		return "Unknown"
	}
	named := []struct {
		t    NodeType
		name string
	}{
		{TypeSmi, "Smi"},
		{TypeNumber, "Number"},
		{TypeBoolean, "Boolean"},
		{TypeOddball, "Oddball"},
		{TypeNumberOrOddball, "NumberOrOddball"},
		{TypeCallable, "Callable"},
		{TypeString, "String"},
		{TypeSymbol, "Symbol"},
		{TypeJSReceiver, "JSReceiver"},
		{TypeAnyHeapObject, "AnyHeapObject"},
	}
	var parts []string
	rest := a
	for _, n := range named {
		if rest.IsSubtypeOf(n.t) {
			parts = append(parts, n.name)
			rest &^= n.t
		}
	}
	if len(parts) == 0 {
		return "NodeType(?)"
	}
	return strings.Join(parts, "&")
}

// StaticType derives the type statically implied by a node's opcode,
// independent of any feedback or checks. The recorded dynamic type of a
// node must always be a subtype of (or equal to) this.
func StaticType(n *ir.Node) NodeType {
	switch n.Op() {
	case ir.OpSmiConstant:
		return TypeSmi
	case ir.OpInt32Constant, ir.OpFloat64Constant:
		// Untagged constants; the logical value is a number.
		return TypeNumber
	case ir.OpRootConstant:
		data := ir.Cast[ir.RootData](n)
		switch data.Index {
		case ir.RootTrue, ir.RootFalse:
			return TypeBoolean
		case ir.RootUndefined, ir.RootNull, ir.RootTheHole:
			return TypeOddball
		case ir.RootNaN:
			return TypeNumber
		}
		return TypeUnknown
	case ir.OpSmiTag:
		return TypeSmi
	case ir.OpInt32ToNumber, ir.OpFloat64ToTagged, ir.OpHoleyFloat64ToTagged:
		return TypeNumber
	case ir.OpInt32Compare, ir.OpFloat64Compare, ir.OpTaggedEqual,
		ir.OpToBoolean, ir.OpLogicalNot, ir.OpTestUndetectable, ir.OpTestTypeOf:
		return TypeBoolean
	case ir.OpCreateClosure:
		return TypeCallable
	case ir.OpAllocateObject, ir.OpConstruct:
		return TypeJSReceiver
	}
	return TypeUnknown
}
