package maglev

import (
	"fmt"

	"github.com/ketrewq/v8/bytecode"
	"github.com/ketrewq/v8/ir"
)

// MergePointState is an as-yet-unresolved confluence of control-flow
// edges at one bytecode offset. Forward merges are created lazily when
// the first predecessor arrives; loop merges are created eagerly before
// the loop body so registers assigned inside the loop are phis from the
// start.
//
// A merge point transitions empty -> partially merged -> resolved; a
// loop merge whose forward predecessors all turn out dead is discarded
// instead, making the loop header unreachable.
type MergePointState struct {
	offset int
	isLoop bool

	predecessorCount int // expected; decremented when an edge proves dead
	predecessorsSeen int
	predecessors     []*ir.BasicBlock

	liveness *bytecode.LivenessState

	parameters  []*ir.Node
	registers   []*ir.Node
	accumulator *ir.Node
	aspects     *KnownNodeAspects
	phis        []*ir.Node

	// loopBlock is the pre-created header block; loops only.
	loopBlock *ir.BasicBlock
}

// Offset returns the bytecode offset this merge resolves at.
func (ms *MergePointState) Offset() int { return ms.offset }

// IsLoop reports whether this is a loop-header merge.
func (ms *MergePointState) IsLoop() bool { return ms.isLoop }

// PredecessorCount returns the number of predecessors still expected.
func (ms *MergePointState) PredecessorCount() int { return ms.predecessorCount }

// Phis returns the phis materialized so far.
func (ms *MergePointState) Phis() []*ir.Node { return ms.phis }

func (b *GraphBuilder) newForwardMerge(offset int) *MergePointState {
	count := b.predecessorCounts[offset]
	if count <= 0 {
		panic(fmt.Sprintf("maglev: merge at %d with no expected predecessors", offset))
	}
	ms := &MergePointState{
		offset:           offset,
		predecessorCount: count,
		liveness:         b.liveness.InStateAt(offset),
	}
	b.mergeStates[offset] = ms
	return ms
}

func (ms *MergePointState) registerLive(i int) bool {
	return ms.liveness == nil || ms.liveness.RegisterIsLive(bytecode.Register(i))
}

func (ms *MergePointState) accumulatorLive() bool {
	return ms.liveness == nil || ms.liveness.AccumulatorIsLive()
}

// mergeFrameInto records the current frame and block as one predecessor
// of ms. Values are tagged here, while the predecessor block is still
// open, so conversion nodes land before the block's control node. The
// caller closes the block (with a jump or a branch) afterwards.
func (b *GraphBuilder) mergeFrameInto(ms *MergePointState) {
	frame := b.frame
	pred := b.currentBlock
	seen := ms.predecessorsSeen

	if seen == 0 {
		ms.parameters = make([]*ir.Node, len(frame.parameters))
		for i := range frame.parameters {
			if b.paramWrites[i] {
				ms.parameters[i] = b.GetTaggedValue(frame.parameters[i])
			} else {
				ms.parameters[i] = frame.parameters[i]
			}
		}
		ms.registers = make([]*ir.Node, len(frame.registers))
		for i := range frame.registers {
			if ms.registerLive(i) {
				ms.registers[i] = b.GetTaggedValue(frame.registers[i])
			}
		}
		if ms.accumulatorLive() {
			ms.accumulator = b.GetTaggedValue(frame.accumulator)
		}
		ms.aspects = frame.aspects.Clone()
	} else {
		for i := range frame.parameters {
			if !b.paramWrites[i] {
				continue
			}
			ms.parameters[i] = b.mergeValue(ms, ms.parameters[i], frame.parameters[i], int(bytecode.Parameter(i)), seen)
		}
		for i := range frame.registers {
			if !ms.registerLive(i) {
				continue
			}
			ms.registers[i] = b.mergeValue(ms, ms.registers[i], frame.registers[i], i, seen)
		}
		if ms.accumulatorLive() {
			ms.accumulator = b.mergeValue(ms, ms.accumulator, frame.accumulator, accumulatorRegister, seen)
		}
		ms.aspects.Merge(frame.aspects)
	}

	ms.predecessors = append(ms.predecessors, pred)
	ms.predecessorsSeen++
}

// mergeValue reconciles one register across predecessors: identical
// values pass through, diverging values become (or extend) a phi owned by
// this merge point.
func (b *GraphBuilder) mergeValue(ms *MergePointState, merged, incoming *ir.Node, reg, seen int) *ir.Node {
	value := b.GetTaggedValue(incoming)
	if merged == value {
		return merged
	}
	if merged != nil && merged.Op() == ir.OpPhi {
		if data, ok := ir.TryCast[ir.PhiData](merged); ok && data.Offset == ms.offset && data.Register == reg {
			merged.AddInput(value)
			return merged
		}
	}
	phi := b.graph.NewNode(ir.OpPhi, ir.ReprTagged, ir.PhiData{Offset: ms.offset, Register: reg})
	for i := 0; i < seen; i++ {
		phi.AddInput(merged)
	}
	phi.AddInput(value)
	ms.phis = append(ms.phis, phi)
	return phi
}

// resolveMerge materializes the merge's basic block once every expected
// predecessor has arrived, installs the merged frame, and resumes
// building there.
func (b *GraphBuilder) resolveMerge(ms *MergePointState) {
	if ms.predecessorsSeen != ms.predecessorCount {
		panic(fmt.Sprintf("maglev: merge at %d resolved with %d of %d predecessors",
			ms.offset, ms.predecessorsSeen, ms.predecessorCount))
	}
	block := b.graph.NewBlock()
	for _, pred := range ms.predecessors {
		block.AddPredecessor(pred)
	}
	for _, phi := range ms.phis {
		block.AddNode(phi)
	}
	if ref := b.jumpTargets[ms.offset]; ref != nil && !ref.IsBound() {
		ref.Bind(block)
	}

	b.frame.parameters = ms.parameters
	b.frame.registers = ms.registers
	b.frame.accumulator = ms.accumulator
	b.frame.aspects = ms.aspects
	b.aspects = ms.aspects
	b.currentBlock = block
	delete(b.mergeStates, ms.offset)
}

// buildLoopHeader eagerly creates the loop merge state and header block
// at a loop header offset. Every live register, and every parameter the
// bytecode writes, becomes a two-input phi:
// input 0 is the entry value, input 1 is filled by the back edge. Map
// knowledge that is not protected by a stability dependency is dropped,
// since the loop body may invalidate it before the next iteration.
func (b *GraphBuilder) buildLoopHeader(offset int) {
	frame := b.frame
	entry := b.currentBlock

	ms := &MergePointState{
		offset:           offset,
		isLoop:           true,
		predecessorCount: 2, // fallthrough entry + back edge
		liveness:         b.liveness.InStateAt(offset),
	}

	loopBlock := b.graph.NewLoopBlock()
	ms.loopBlock = loopBlock
	ms.parameters = make([]*ir.Node, len(frame.parameters))
	for i := range frame.parameters {
		if !b.paramWrites[i] {
			ms.parameters[i] = frame.parameters[i]
			continue
		}
		phi := b.graph.NewNode(ir.OpPhi, ir.ReprTagged, ir.PhiData{Offset: offset, Register: int(bytecode.Parameter(i))})
		phi.AddInput(b.GetTaggedValue(frame.parameters[i]))
		phi.AddInput(nil) // back edge, filled by MergeLoop
		ms.phis = append(ms.phis, phi)
		ms.parameters[i] = phi
		loopBlock.AddNode(phi)
	}
	ms.registers = make([]*ir.Node, len(frame.registers))
	for i := range frame.registers {
		if !ms.registerLive(i) {
			continue
		}
		phi := b.graph.NewNode(ir.OpPhi, ir.ReprTagged, ir.PhiData{Offset: offset, Register: i})
		phi.AddInput(b.GetTaggedValue(frame.registers[i]))
		phi.AddInput(nil) // back edge, filled by MergeLoop
		ms.phis = append(ms.phis, phi)
		ms.registers[i] = phi
		loopBlock.AddNode(phi)
	}
	if ms.accumulatorLive() {
		phi := b.graph.NewNode(ir.OpPhi, ir.ReprTagged, ir.PhiData{Offset: offset, Register: accumulatorRegister})
		phi.AddInput(b.GetTaggedValue(frame.accumulator))
		phi.AddInput(nil)
		ms.phis = append(ms.phis, phi)
		ms.accumulator = phi
		loopBlock.AddNode(phi)
	}

	ms.aspects = frame.aspects.Clone()
	ms.aspects.ClearUnstableMaps()

	ref := b.refFor(offset)
	ref.Bind(loopBlock)
	jump := b.graph.NewNode(ir.OpJump, ir.ReprNone, ir.JumpData{Target: ref})
	entry.SetControl(jump)
	loopBlock.AddPredecessor(entry)
	ms.predecessors = append(ms.predecessors, entry)
	ms.predecessorsSeen = 1

	b.frame.parameters = ms.parameters
	b.frame.registers = ms.registers
	b.frame.accumulator = ms.accumulator
	b.frame.aspects = ms.aspects
	b.aspects = ms.aspects
	b.currentBlock = loopBlock
	b.loopStates[offset] = ms
}

// MergeLoop resolves the back edge of a loop merge: each loop phi's
// second input becomes the value the body computed, and the header gains
// the back-edge predecessor.
func (b *GraphBuilder) mergeLoop(ms *MergePointState) {
	if !ms.isLoop {
		panic(fmt.Sprintf("maglev: back edge into non-loop merge at %d", ms.offset))
	}
	frame := b.frame
	for i, n := range ms.parameters {
		if n == nil || n.Op() != ir.OpPhi {
			continue
		}
		if data, ok := ir.TryCast[ir.PhiData](n); !ok || data.Offset != ms.offset {
			continue
		}
		n.SetInput(1, b.GetTaggedValue(frame.parameters[i]))
	}
	for i, n := range ms.registers {
		if n == nil || n.Op() != ir.OpPhi {
			continue
		}
		if data, ok := ir.TryCast[ir.PhiData](n); !ok || data.Offset != ms.offset {
			continue
		}
		n.SetInput(1, b.GetTaggedValue(frame.registers[i]))
	}
	if acc := ms.accumulator; acc != nil && acc.Op() == ir.OpPhi {
		if data, ok := ir.TryCast[ir.PhiData](acc); ok && data.Offset == ms.offset {
			acc.SetInput(1, b.GetTaggedValue(frame.accumulator))
		}
	}
	ms.loopBlock.AddPredecessor(b.currentBlock)
	ms.predecessors = append(ms.predecessors, b.currentBlock)
	ms.predecessorsSeen++

	jump := b.graph.NewNode(ir.OpJumpLoop, ir.ReprNone, ir.JumpData{Target: b.refFor(ms.offset)})
	b.currentBlock.SetControl(jump)
	delete(b.loopStates, ms.offset)
}

// killLoopBackEdge handles a loop whose back edge proved unreachable:
// the header degenerates to a straight-line block, so each loop phi's
// pending back-edge input collapses onto the entry value.
func (ms *MergePointState) killLoopBackEdge() {
	for _, phi := range ms.phis {
		if phi.Input(1) == nil {
			phi.SetInput(1, phi.Input(0))
		}
	}
}
