package maglev

import (
	"fmt"
	"math"

	"github.com/ketrewq/v8/ir"
)

// ToNumberHint tells a conversion how much coercion it may assume. The
// hint decides whether the emitted node deoptimizes on non-Smi input, on
// non-number input, or silently widens oddballs to NaN-bearing floats.
type ToNumberHint uint8

const (
	// AssumeSmi deoptimizes on anything but a small integer.
	AssumeSmi ToNumberHint = iota
	// DisallowToNumber requires the input to already be a number.
	DisallowToNumber
	// AssumeNumber deoptimizes on non-number input.
	AssumeNumber
	// AssumeNumberOrOddball widens null/undefined-like sentinels to NaN
	// instead of deoptimizing.
	AssumeNumberOrOddball
)

// GetTaggedValue returns n in tagged representation, memoized per logical
// value: the first request emits one conversion node, later requests
// reuse it.
func (b *GraphBuilder) GetTaggedValue(n *ir.Node) *ir.Node {
	if n == nil || n.Repr() == ir.ReprTagged {
		return n
	}
	info := b.aspects.GetOrCreateInfo(n)
	if info.alt.tagged != nil {
		return info.alt.tagged
	}

	var tagged *ir.Node
	switch n.Repr() {
	case ir.ReprInt32, ir.ReprUint32:
		if data, ok := ir.TryCast[ir.Int32Data](n); ok && n.Op() == ir.OpInt32Constant {
			tagged = b.graph.SmiConstant(data.Value)
		} else {
			tagged = b.addNode(ir.OpInt32ToNumber, ir.ReprTagged, nil, n)
		}
	case ir.ReprFloat64:
		if data, ok := ir.TryCast[ir.Float64Data](n); ok && n.Op() == ir.OpFloat64Constant {
			if smi, exact := float64ToSmi(data.Value); exact {
				tagged = b.graph.SmiConstant(smi)
			}
		}
		if tagged == nil {
			tagged = b.addNode(ir.OpFloat64ToTagged, ir.ReprTagged, nil, n)
		}
	case ir.ReprHoleyFloat64:
		tagged = b.addNode(ir.OpHoleyFloat64ToTagged, ir.ReprTagged, nil, n)
	default:
		panic(fmt.Sprintf("maglev: cannot tag %s value %s", n.Repr(), n))
	}

	info.alt.tagged = tagged
	return tagged
}

// GetInt32 returns n as a raw int32, choosing the cheapest safe
// conversion: known Smis untag without a check, unknown tagged values go
// through a deoptimizing untag, float values through a checked truncation.
func (b *GraphBuilder) GetInt32(n *ir.Node) *ir.Node {
	if n.Repr() == ir.ReprInt32 {
		return n
	}
	if folded, ok := b.foldToInt32(n); ok {
		return folded
	}
	info := b.aspects.GetOrCreateInfo(n)
	if info.alt.int32Value != nil {
		return info.alt.int32Value
	}

	var out *ir.Node
	switch n.Repr() {
	case ir.ReprTagged:
		if b.aspects.TypeOf(n).IsSubtypeOf(TypeSmi) {
			out = b.addNode(ir.OpUnsafeSmiUntag, ir.ReprInt32, nil, n)
		} else {
			out = b.addNodeWithEagerDeopt(ir.OpCheckedSmiUntag, ir.ReprInt32, nil, n)
			b.aspects.SetType(n, TypeSmi)
		}
	case ir.ReprFloat64, ir.ReprHoleyFloat64:
		out = b.addNodeWithEagerDeopt(ir.OpCheckedTruncateFloat64ToInt32, ir.ReprInt32, nil, n)
	default:
		panic(fmt.Sprintf("maglev: cannot convert %s value %s to int32", n.Repr(), n))
	}

	info.alt.int32Value = out
	return out
}

// GetFloat64 returns n as a raw float64 assuming plain number input.
func (b *GraphBuilder) GetFloat64(n *ir.Node) *ir.Node {
	return b.GetFloat64ForToNumber(n, AssumeNumber)
}

// GetFloat64ForToNumber returns n as a raw float64 under the given
// coercion hint.
func (b *GraphBuilder) GetFloat64ForToNumber(n *ir.Node, hint ToNumberHint) *ir.Node {
	if n.Repr() == ir.ReprFloat64 {
		return n
	}
	if folded, ok := b.foldToFloat64(n); ok {
		return folded
	}
	info := b.aspects.GetOrCreateInfo(n)
	if info.alt.float64Value != nil {
		return info.alt.float64Value
	}

	var out *ir.Node
	switch n.Repr() {
	case ir.ReprInt32, ir.ReprUint32:
		out = b.addNode(ir.OpChangeInt32ToFloat64, ir.ReprFloat64, nil, n)
	case ir.ReprHoleyFloat64:
		out = b.addNode(ir.OpHoleyFloat64ToFloat64OrNaN, ir.ReprFloat64, nil, n)
	case ir.ReprTagged:
		known := b.aspects.TypeOf(n)
		switch {
		case known.IsSubtypeOf(TypeSmi):
			untagged := b.addNode(ir.OpUnsafeSmiUntag, ir.ReprInt32, nil, n)
			out = b.addNode(ir.OpChangeInt32ToFloat64, ir.ReprFloat64, nil, untagged)
		case hint == AssumeSmi:
			untagged := b.GetInt32(n)
			out = b.addNode(ir.OpChangeInt32ToFloat64, ir.ReprFloat64, nil, untagged)
		case hint == AssumeNumberOrOddball && !known.IsSubtypeOf(TypeNumber):
			out = b.addNodeWithEagerDeopt(ir.OpCheckedNumberOrOddballToFloat64, ir.ReprFloat64, nil, n)
			b.aspects.SetType(n, TypeNumberOrOddball)
		default:
			out = b.addNodeWithEagerDeopt(ir.OpCheckedNumberToFloat64, ir.ReprFloat64, nil, n)
			b.aspects.SetType(n, TypeNumber)
		}
	default:
		panic(fmt.Sprintf("maglev: cannot convert %s value %s to float64", n.Repr(), n))
	}

	info.alt.float64Value = out
	return out
}

// GetTruncatedInt32ForToNumber returns n truncated to int32 under the
// given hint. Truncation tolerates fractional input, so a value already
// proven numeric converts without a guard.
func (b *GraphBuilder) GetTruncatedInt32ForToNumber(n *ir.Node, hint ToNumberHint) *ir.Node {
	if n.Repr() == ir.ReprInt32 {
		return n
	}
	if folded, ok := b.foldToTruncatedInt32(n); ok {
		return folded
	}
	info := b.aspects.GetOrCreateInfo(n)
	if info.alt.truncatedInt32 != nil {
		return info.alt.truncatedInt32
	}

	var out *ir.Node
	switch n.Repr() {
	case ir.ReprFloat64, ir.ReprHoleyFloat64:
		out = b.addNode(ir.OpTruncateNumberToInt32, ir.ReprInt32, nil, n)
	case ir.ReprTagged:
		known := b.aspects.TypeOf(n)
		switch {
		case known.IsSubtypeOf(TypeSmi):
			out = b.addNode(ir.OpUnsafeSmiUntag, ir.ReprInt32, nil, n)
		case hint == AssumeSmi:
			out = b.addNodeWithEagerDeopt(ir.OpCheckedSmiUntag, ir.ReprInt32, nil, n)
			b.aspects.SetType(n, TypeSmi)
		case known.IsSubtypeOf(TypeNumberOrOddball):
			out = b.addNode(ir.OpTruncateNumberToInt32, ir.ReprInt32, nil, n)
		case hint == AssumeNumberOrOddball:
			widened := b.addNodeWithEagerDeopt(ir.OpCheckedNumberOrOddballToFloat64, ir.ReprFloat64, nil, n)
			b.aspects.SetType(n, TypeNumberOrOddball)
			out = b.addNode(ir.OpTruncateNumberToInt32, ir.ReprInt32, nil, widened)
		default:
			b.addNodeWithEagerDeopt(ir.OpCheckNumber, ir.ReprNone, nil, n)
			b.aspects.SetType(n, TypeNumber)
			out = b.addNode(ir.OpTruncateNumberToInt32, ir.ReprInt32, nil, n)
		}
	default:
		panic(fmt.Sprintf("maglev: cannot truncate %s value %s to int32", n.Repr(), n))
	}

	info.alt.truncatedInt32 = out
	return out
}

// getBooleanValue materializes ToBoolean(n), memoized through the
// checked-value alternative slot. Values already known boolean pass
// through unconverted.
func (b *GraphBuilder) getBooleanValue(n *ir.Node) *ir.Node {
	if b.aspects.TypeOf(n).IsSubtypeOf(TypeBoolean) {
		return n
	}
	info := b.aspects.GetOrCreateInfo(n)
	if info.alt.checkedValue != nil {
		return info.alt.checkedValue
	}
	out := b.addNode(ir.OpToBoolean, ir.ReprTagged, nil, b.GetTaggedValue(n))
	b.aspects.SetType(out, TypeBoolean)
	info.alt.checkedValue = out
	return out
}

// Build-time constant folding. Folds never materialize a node; they
// return cached constants from the graph.

func (b *GraphBuilder) foldToInt32(n *ir.Node) (*ir.Node, bool) {
	switch n.Op() {
	case ir.OpSmiConstant:
		return b.graph.Int32Constant(ir.Cast[ir.SmiData](n).Value), true
	case ir.OpFloat64Constant:
		if i, exact := float64ToSmi(ir.Cast[ir.Float64Data](n).Value); exact {
			return b.graph.Int32Constant(i), true
		}
	}
	return nil, false
}

func (b *GraphBuilder) foldToFloat64(n *ir.Node) (*ir.Node, bool) {
	switch n.Op() {
	case ir.OpSmiConstant:
		return b.graph.Float64Constant(float64(ir.Cast[ir.SmiData](n).Value)), true
	case ir.OpInt32Constant:
		return b.graph.Float64Constant(float64(ir.Cast[ir.Int32Data](n).Value)), true
	}
	return nil, false
}

func (b *GraphBuilder) foldToTruncatedInt32(n *ir.Node) (*ir.Node, bool) {
	switch n.Op() {
	case ir.OpSmiConstant:
		return b.graph.Int32Constant(ir.Cast[ir.SmiData](n).Value), true
	case ir.OpFloat64Constant:
		return b.graph.Int32Constant(truncateFloat64(ir.Cast[ir.Float64Data](n).Value)), true
	}
	return nil, false
}

// truncateFloat64 applies modular ToInt32 truncation semantics.
func truncateFloat64(v float64) int32 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int32(uint32(uint64(int64(math.Trunc(v)))))
}

// float64ToSmi reports whether v is exactly representable as a Smi.
func float64ToSmi(v float64) (int32, bool) {
	i := int32(v)
	if float64(i) == v && !(v == 0 && math.Signbit(v)) {
		return i, true
	}
	return 0, false
}
