package maglev

import (
	"testing"

	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/bytecode"
	"github.com/ketrewq/v8/ir"
)

// addSelfCallee builds a callee computing a1 + a1 with Smi feedback.
// padding appends Nops to grow the bytecode past size gates.
func addSelfCallee(padding int) *broker.FunctionInfo {
	f := newFunction(2, 0)
	f.feedback.SetBinaryOpFeedback(0, broker.BinaryOpSignedSmall)
	f.Emit(bytecode.Ldar, param(1))
	f.Emit(bytecode.Add, param(1), 0)
	for i := 0; i < padding; i++ {
		f.Emit(bytecode.Nop)
	}
	f.Emit(bytecode.Return)
	return f.info()
}

// callerOf builds a caller invoking the staged call target with one
// argument (parameter 1) and returning the result.
func callerOf(cf broker.CallFeedback) *functionBuilder {
	f := newFunction(2, 3)
	f.feedback.SetCallFeedback(0, cf)
	f.Emit(bytecode.LdaUndefined)
	f.Emit(bytecode.Star, 0) // callee value
	f.Emit(bytecode.Ldar, param(0))
	f.Emit(bytecode.Star, 1) // receiver
	f.Emit(bytecode.Ldar, param(1))
	f.Emit(bytecode.Star, 2) // argument
	f.Emit(bytecode.CallProperty, 0, 1, 2, 0)
	f.Emit(bytecode.Return)
	return f
}

func TestInlinesHotMonomorphicCall(t *testing.T) {
	f := callerOf(broker.CallFeedback{Target: addSelfCallee(0), Count: 10})
	g := buildGraph(t, f)
	if n := countOps(g, ir.OpCallKnown); n != 0 {
		t.Errorf("CallKnown count = %d, want 0", n)
	}
	if n := countOps(g, ir.OpCall); n != 0 {
		t.Errorf("Call count = %d, want 0", n)
	}
	if n := countOps(g, ir.OpInt32Add); n != 1 {
		t.Errorf("Int32Add count = %d, want 1", n)
	}
}

func TestCallWithoutFeedbackStaysGeneric(t *testing.T) {
	f := newFunction(2, 3)
	f.Emit(bytecode.LdaUndefined)
	f.Emit(bytecode.Star, 0)
	f.Emit(bytecode.Ldar, param(0))
	f.Emit(bytecode.Star, 1)
	f.Emit(bytecode.Ldar, param(1))
	f.Emit(bytecode.Star, 2)
	f.Emit(bytecode.CallProperty, 0, 1, 2, 0)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	call := findOp(g, ir.OpCall)
	if call == nil {
		t.Fatalf("no generic call emitted without call feedback")
	}
	if call.LazyDeoptInfo() == nil {
		t.Errorf("call has no lazy deopt frame")
	}
	if countOps(g, ir.OpCallKnown) != 0 {
		t.Errorf("known-target call emitted without feedback")
	}
}

func TestNoInlineWhenNotInlineable(t *testing.T) {
	target := addSelfCallee(0)
	target.Inlineable = false
	f := callerOf(broker.CallFeedback{Target: target, Count: 10})
	g := buildGraph(t, f)
	if n := countOps(g, ir.OpCallKnown); n != 1 {
		t.Errorf("CallKnown count = %d, want 1", n)
	}
	if countOps(g, ir.OpInt32Add) != 0 {
		t.Errorf("callee body inlined despite the inlineability bit")
	}
}

func TestNoInlineOversizedCallee(t *testing.T) {
	f := callerOf(broker.CallFeedback{Target: addSelfCallee(0), Count: 10})
	opts := DefaultOptions()
	opts.MaxInlinedSize = 2
	g := buildGraphOpts(t, f, opts)
	if n := countOps(g, ir.OpCallKnown); n != 1 {
		t.Errorf("CallKnown count = %d, want 1", n)
	}
}

func TestNoInlineColdLargeCallee(t *testing.T) {
	// Padded past the small-function size; one observed call is below the
	// frequency gate.
	f := callerOf(broker.CallFeedback{Target: addSelfCallee(14), Count: 1})
	g := buildGraph(t, f)
	if n := countOps(g, ir.OpCallKnown); n != 1 {
		t.Errorf("CallKnown count = %d, want 1", n)
	}
}

func TestInlinesColdSmallCallee(t *testing.T) {
	// A tiny callee skips the frequency gate.
	f := callerOf(broker.CallFeedback{Target: addSelfCallee(0), Count: 1})
	g := buildGraph(t, f)
	if n := countOps(g, ir.OpCallKnown); n != 0 {
		t.Errorf("CallKnown count = %d, want 0", n)
	}
	if n := countOps(g, ir.OpInt32Add); n != 1 {
		t.Errorf("Int32Add count = %d, want 1", n)
	}
}

func TestInlineDepthBounded(t *testing.T) {
	// A self-recursive callee inlines until the depth gate trips, then
	// one known-target call remains.
	rec := newFunction(2, 3)
	rec.Emit(bytecode.LdaUndefined)
	rec.Emit(bytecode.Star, 0)
	rec.Emit(bytecode.Ldar, param(0))
	rec.Emit(bytecode.Star, 1)
	rec.Emit(bytecode.Ldar, param(1))
	rec.Emit(bytecode.Star, 2)
	rec.Emit(bytecode.CallProperty, 0, 1, 2, 0)
	rec.Emit(bytecode.Return)
	target := rec.info()
	rec.feedback.SetCallFeedback(0, broker.CallFeedback{Target: target, Count: 10})

	f := callerOf(broker.CallFeedback{Target: target, Count: 10})
	g := buildGraph(t, f)
	if n := countOps(g, ir.OpCallKnown); n != 1 {
		t.Errorf("CallKnown count = %d, want 1", n)
	}
}

func TestMultiReturnInlineMergesWithPhi(t *testing.T) {
	callee := newFunction(2, 0)
	callee.feedback.SetCompareOpFeedback(0, broker.CompareOpSignedSmall)
	other := &bytecode.Label{}
	callee.Emit(bytecode.LdaSmi, 10)
	callee.Emit(bytecode.TestLessThan, param(1), 0)
	callee.EmitJump(bytecode.JumpIfTrue, other)
	callee.Emit(bytecode.LdaSmi, 1)
	callee.Emit(bytecode.Return)
	callee.Bind(other)
	callee.Emit(bytecode.LdaSmi, 2)
	callee.Emit(bytecode.Return)

	f := callerOf(broker.CallFeedback{Target: callee.info(), Count: 10})
	g := buildGraph(t, f)
	if countOps(g, ir.OpCallKnown) != 0 {
		t.Fatalf("callee not inlined")
	}
	v := returnValue(t, g)
	if v.Op() != ir.OpPhi {
		t.Fatalf("return value = %s, want a phi over the callee returns", v)
	}
	if len(v.Inputs()) != 2 {
		t.Errorf("phi input count = %d, want 2", len(v.Inputs()))
	}
}

func TestCalleeReturnFusesIntoCallerBranch(t *testing.T) {
	callee := newFunction(2, 0)
	callee.feedback.SetCompareOpFeedback(0, broker.CompareOpSignedSmall)
	callee.Emit(bytecode.LdaSmi, 10)
	callee.Emit(bytecode.TestLessThan, param(1), 0)
	callee.Emit(bytecode.Return)

	f := newFunction(2, 3)
	f.feedback.SetCallFeedback(0, broker.CallFeedback{Target: callee.info(), Count: 10})
	exit := &bytecode.Label{}
	f.Emit(bytecode.LdaUndefined)
	f.Emit(bytecode.Star, 0)
	f.Emit(bytecode.Ldar, param(0))
	f.Emit(bytecode.Star, 1)
	f.Emit(bytecode.Ldar, param(1))
	f.Emit(bytecode.Star, 2)
	f.Emit(bytecode.CallProperty, 0, 1, 2, 0)
	f.EmitJump(bytecode.JumpIfTrue, exit)
	f.Emit(bytecode.LdaSmi, 1)
	f.Emit(bytecode.Return)
	f.Bind(exit)
	f.Emit(bytecode.LdaSmi, 2)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	// The callee's comparison feeds the caller's branch directly.
	if n := countOps(g, ir.OpBranchIfInt32Compare); n != 1 {
		t.Errorf("BranchIfInt32Compare count = %d, want 1", n)
	}
	if countOps(g, ir.OpCallKnown) != 0 {
		t.Errorf("call not inlined")
	}
	if countOps(g, ir.OpInt32Compare) != 0 {
		t.Errorf("comparison materialized despite cross-frame fusion")
	}
}

func TestFusionCrossesTwoInlinedReturns(t *testing.T) {
	// A calls B calls C; C returns a comparison that feeds A's branch.
	// Both of A's arms must survive, including the fall-through arm that
	// only exists on A's frame.
	inner := newFunction(2, 0)
	inner.feedback.SetCompareOpFeedback(0, broker.CompareOpSignedSmall)
	inner.Emit(bytecode.LdaSmi, 10)
	inner.Emit(bytecode.TestLessThan, param(1), 0)
	inner.Emit(bytecode.Return)

	middle := callerOf(broker.CallFeedback{Target: inner.info(), Count: 10})

	f := newFunction(2, 3)
	f.feedback.SetCallFeedback(0, broker.CallFeedback{Target: middle.info(), Count: 10})
	exit := &bytecode.Label{}
	f.Emit(bytecode.LdaUndefined)
	f.Emit(bytecode.Star, 0)
	f.Emit(bytecode.Ldar, param(0))
	f.Emit(bytecode.Star, 1)
	f.Emit(bytecode.Ldar, param(1))
	f.Emit(bytecode.Star, 2)
	f.Emit(bytecode.CallProperty, 0, 1, 2, 0)
	f.EmitJump(bytecode.JumpIfTrue, exit)
	f.Emit(bytecode.LdaSmi, 1)
	f.Emit(bytecode.Return)
	f.Bind(exit)
	f.Emit(bytecode.LdaSmi, 2)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	if n := countOps(g, ir.OpBranchIfInt32Compare); n != 1 {
		t.Errorf("BranchIfInt32Compare count = %d, want 1", n)
	}
	if countOps(g, ir.OpCallKnown) != 0 {
		t.Errorf("call chain not fully inlined")
	}
	if countOps(g, ir.OpInt32Compare) != 0 {
		t.Errorf("comparison materialized despite cross-frame fusion")
	}
	if n := countOps(g, ir.OpReturn); n != 2 {
		t.Errorf("Return count = %d, want 2 (both branch arms)", n)
	}
	for i, block := range g.Blocks() {
		if block.Control() == nil {
			t.Errorf("block %d left without a control node", i)
		}
	}
}

func TestMissingArgumentsPadWithUndefined(t *testing.T) {
	// Callee takes two arguments but the site passes none; both pad to
	// undefined and the add goes generic on the oddballs.
	callee := newFunction(3, 0)
	callee.feedback.SetBinaryOpFeedback(0, broker.BinaryOpAny)
	callee.Emit(bytecode.Ldar, param(2))
	callee.Emit(bytecode.Add, param(1), 0)
	callee.Emit(bytecode.Return)

	f := newFunction(1, 2)
	f.feedback.SetCallFeedback(0, broker.CallFeedback{Target: callee.info(), Count: 10})
	f.Emit(bytecode.LdaUndefined)
	f.Emit(bytecode.Star, 0)
	f.Emit(bytecode.Ldar, param(0))
	f.Emit(bytecode.Star, 1)
	f.Emit(bytecode.CallProperty, 0, 1, 1, 0)
	f.Emit(bytecode.Return)

	g := buildGraph(t, f)
	add := findOp(g, ir.OpGenericAdd)
	if add == nil {
		t.Fatalf("callee body not inlined")
	}
	for i, in := range add.Inputs() {
		if in.Op() != ir.OpRootConstant {
			t.Errorf("input %d = %s, want the undefined root", i, in)
		}
	}
}
