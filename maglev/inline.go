package maglev

import (
	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/ir"
)

// Speculative inlining: when call feedback names a single target, the
// callee's bytecode is built in place by a nested builder sharing the
// graph, the dependency set, and the known-node-aspects table. A
// CheckValue on the callee identity is not modeled here; the CallKnown
// fallback carries the same speculation through its feedback slot.

// shouldInline applies the inlining gates in order; the first failing
// gate rejects the site.
func (b *GraphBuilder) shouldInline(cf broker.CallFeedback) bool {
	target := cf.Target
	switch {
	case target == nil || target.Bytecode == nil || target.Feedback == nil:
		return false
	case !target.Inlineable:
		return false
	case target.IsGenerator:
		return false
	case target.UsesNewTarget:
		return false
	case target.Bytecode.HasHandlers():
		return false
	case b.inlineDepth >= b.opts.MaxInlineDepth:
		return false
	case target.Bytecode.Length() > b.opts.MaxInlinedSize:
		return false
	case *b.inlinedSize+target.Bytecode.Length() > b.opts.MaxTotalInlinedSize:
		return false
	case cf.Count < b.opts.MinInlineCallCount &&
		target.Bytecode.Length() > b.opts.SmallFunctionSize:
		return false
	}
	return true
}

// tryBuildInlinedCall builds the callee inline. Fail means the site was
// rejected and the caller should emit a call node instead. A value
// result is the callee's return value; an abort means no path out of the
// callee reaches the caller (every path deopts, throws, or was fused
// into a caller branch).
func (b *GraphBuilder) tryBuildInlinedCall(cf broker.CallFeedback, receiver *ir.Node, args []*ir.Node) ReduceResult {
	if !b.shouldInline(cf) {
		return Fail()
	}
	target := cf.Target
	*b.inlinedSize += target.Bytecode.Length()

	sub := newGraphBuilder(b.graph, b, target, b.deps, b.opts)
	sub.callerFrame = b.callerResumeFrame()
	sub.currentBlock = b.currentBlock
	b.currentBlock = nil

	// Parameter 0 is the receiver; missing arguments pad with undefined.
	params := make([]*ir.Node, target.Bytecode.ParameterCount())
	undef := b.graph.RootConstant(ir.RootUndefined)
	for i := range params {
		switch {
		case i == 0:
			params[i] = b.GetTaggedValue(receiver)
		case i-1 < len(args):
			params[i] = b.GetTaggedValue(args[i-1])
		default:
			params[i] = undef
		}
	}
	sub.frame = NewInterpreterFrameState(b.graph, target.Bytecode, params, sub.aspects)

	sub.buildBody()

	if sub.fusedIntoCaller {
		// The callee's return fed a caller branch; the branch result
		// already repositioned this builder.
		return sub.callerFuse
	}

	switch len(sub.returnBlocks) {
	case 0:
		// No reachable return; the call never produces a value.
		return DoneWithAbort()

	case 1:
		b.currentBlock = sub.returnBlocks[0]
		b.adoptAspects(sub.returnAspects[0])
		return DoneWithValue(sub.returnValues[0])

	default:
		// Multiple returns merge into one resume block with a phi over
		// the return values.
		merge := b.graph.NewBlock()
		ref := ir.NewBasicBlockRef()
		ref.Bind(merge)
		phi := b.graph.NewNode(ir.OpPhi, ir.ReprTagged,
			ir.PhiData{Offset: b.iterator.Offset(), Register: accumulatorRegister})
		for i, block := range sub.returnBlocks {
			jump := b.graph.NewNode(ir.OpJump, ir.ReprNone, ir.JumpData{Target: ref})
			block.SetControl(jump)
			merge.AddPredecessor(block)
			phi.AddInput(sub.returnValues[i])
		}
		merge.AddNode(phi)
		b.currentBlock = merge

		merged := sub.returnAspects[0]
		for _, a := range sub.returnAspects[1:] {
			merged.Merge(a)
		}
		b.adoptAspects(merged)
		return DoneWithValue(phi)
	}
}

// adoptAspects installs the aspects state the inlined callee ended with.
func (b *GraphBuilder) adoptAspects(a *KnownNodeAspects) {
	b.aspects = a
	b.frame.aspects = a
}
