package maglev

import (
	"github.com/ketrewq/v8/bytecode"
	"github.com/ketrewq/v8/ir"
)

// DeoptFrameScope is one entry of the builder's parent-pointer scope
// stack. A scope is pushed when entering a context whose deopt frames
// need a non-default resumption point (a builtin continuation or the
// construct-stub receiver) and must be exited in LIFO order.
type DeoptFrameScope struct {
	builder   *GraphBuilder
	parent    *DeoptFrameScope
	frameType ir.DeoptFrameType
	builtin   string
	receiver  *ir.Node
}

// EnterBuiltinContinuation pushes a builtin-continuation scope: deopt
// frames built while it is active resume inside the named builtin, which
// overwrites the accumulator on resumption.
func (b *GraphBuilder) EnterBuiltinContinuation(builtin string) *DeoptFrameScope {
	s := &DeoptFrameScope{
		builder:   b,
		parent:    b.deoptScope,
		frameType: ir.BuiltinContinuationFrame,
		builtin:   builtin,
	}
	b.deoptScope = s
	return s
}

// EnterConstructStub pushes a construct-stub scope carrying the implicit
// receiver to reconstruct during construction.
func (b *GraphBuilder) EnterConstructStub(receiver *ir.Node) *DeoptFrameScope {
	s := &DeoptFrameScope{
		builder:   b,
		parent:    b.deoptScope,
		frameType: ir.ConstructStubFrame,
		receiver:  receiver,
	}
	b.deoptScope = s
	return s
}

// Exit pops the scope. Scopes must exit in the reverse order they were
// entered.
func (s *DeoptFrameScope) Exit() {
	if s.builder.deoptScope != s {
		panic("maglev: deopt frame scopes exited out of order")
	}
	s.builder.deoptScope = s.parent
}

// interpretedFrame snapshots the current register file for resumption at
// offset. Dead registers are dropped per the liveness analysis so the
// frame never keeps dead values alive across the deopt boundary.
func (b *GraphBuilder) interpretedFrame(offset int, accumulatorDead bool) *ir.DeoptFrame {
	live := b.liveness.InStateAt(offset)
	regs := make([]*ir.Node, len(b.frame.registers))
	for i := range regs {
		if live == nil || live.RegisterIsLive(bytecode.Register(i)) {
			regs[i] = b.frame.registers[i]
		}
	}
	var acc *ir.Node
	if !accumulatorDead && (live == nil || live.AccumulatorIsLive()) {
		acc = b.frame.accumulator
	}
	return &ir.DeoptFrame{
		Type:           ir.InterpretedFrame,
		Parent:         b.callerFrame,
		BytecodeOffset: offset,
		Registers:      regs,
		Accumulator:    acc,
	}
}

// wrapWithScopes nests f under the active deopt frame scopes, innermost
// scope last. A builtin continuation overwrites the accumulator when it
// resumes, so the interpreted frame below it drops its accumulator;
// caller frames in the parent chain already have a dead accumulator by
// construction, since resumption after a call overwrites it.
func (b *GraphBuilder) wrapWithScopes(f *ir.DeoptFrame) *ir.DeoptFrame {
	var scopes []*DeoptFrameScope
	for s := b.deoptScope; s != nil; s = s.parent {
		scopes = append(scopes, s)
	}
	// Outermost first so the innermost scope ends up on top.
	for i := len(scopes) - 1; i >= 0; i-- {
		s := scopes[i]
		if s.frameType == ir.BuiltinContinuationFrame {
			f.MarkAccumulatorDead()
		}
		f = &ir.DeoptFrame{
			Type:     s.frameType,
			Parent:   f,
			Builtin:  s.builtin,
			Receiver: s.receiver,
		}
	}
	return f
}

// eagerDeoptFrame captures the state before the current instruction takes
// effect; a failing guard resumes interpretation at this very offset.
func (b *GraphBuilder) eagerDeoptFrame() *ir.DeoptFrame {
	return b.wrapWithScopes(b.interpretedFrame(b.iterator.Offset(), false))
}

// lazyDeoptFrame captures the state to resume after the current
// instruction completes. The accumulator is dead when the instruction
// overwrites it on resumption.
func (b *GraphBuilder) lazyDeoptFrame() *ir.DeoptFrame {
	accDead := b.iterator.Opcode().WritesAccumulator()
	return b.wrapWithScopes(b.interpretedFrame(b.iterator.NextOffset(), accDead))
}

// callerResumeFrame builds the frame an inlined callee's deopt chains
// hang below: the caller resuming right after the call, accumulator dead
// because the call result overwrites it.
func (b *GraphBuilder) callerResumeFrame() *ir.DeoptFrame {
	return b.wrapWithScopes(b.interpretedFrame(b.iterator.NextOffset(), true))
}
