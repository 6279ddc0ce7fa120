package maglev

import (
	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/bytecode"
	"github.com/ketrewq/v8/ir"
)

// Branch fusion: a Test instruction whose boolean result only feeds a
// following conditional jump compiles to a single comparing branch node
// instead of a materialized boolean plus a generic branch. The lookahead
// scan is conservative; anything it cannot prove harmless bails out to
// the materializing path.

// fusedMove is one register move scanned between the test and the
// branch. Moves into registers that are dead afterwards carry the drop
// flag and are not replayed.
type fusedMove struct {
	src  bytecode.Register
	dst  bytecode.Register
	drop bool
}

// branchScan is the result of a successful lookahead: the conditional
// jump the test feeds, which builder's bytecode holds it, whether
// intervening logical-nots flipped the sense, and the moves to replay.
type branchScan struct {
	owner        *GraphBuilder
	jumpOffset   int
	jumpOp       bytecode.Opcode
	targetOffset int
	flip         bool
	moves        []fusedMove
}

// tryFindNextBranch scans forward from the current instruction for a
// fusable conditional jump. The scan bails on merge points, on register
// stores that stay live, on unsupported instructions, and on branches
// whose successors still read the accumulator. A Return in a sole-exit
// inlined callee continues the scan at the caller's call site.
func (b *GraphBuilder) tryFindNextBranch() (branchScan, bool) {
	scan := branchScan{owner: b}
	it := b.iterator
	for {
		it.Advance()
		if it.Done() {
			return scan, false
		}
		if b.predecessorCounts[it.Offset()] > 0 {
			// Another edge joins here; the boolean must materialize.
			return scan, false
		}
		switch op := it.Opcode(); {
		case op == bytecode.Star:
			dst := it.RegisterOperand(0)
			if !b.registerDeadAt(dst, it.NextOffset()) {
				return scan, false
			}
			scan.moves = append(scan.moves, fusedMove{dst: dst, drop: true})

		case op == bytecode.Mov:
			src := it.RegisterOperand(0)
			dst := it.RegisterOperand(1)
			drop := b.registerDeadAt(dst, it.NextOffset())
			scan.moves = append(scan.moves, fusedMove{src: src, dst: dst, drop: drop})

		case op == bytecode.LogicalNot || op == bytecode.ToBooleanLogicalNot:
			scan.flip = !scan.flip

		case op == bytecode.Return:
			if b.parent == nil || !b.soleExit || b.fn.UsesNewTarget {
				return scan, false
			}
			// Callee register traffic is invisible after the return.
			for _, mv := range scan.moves {
				if !mv.drop {
					return scan, false
				}
			}
			caller, ok := b.parent.tryFindNextBranch()
			if !ok {
				return scan, false
			}
			caller.flip = caller.flip != scan.flip
			return caller, true

		case op.IsConditionalJump():
			if op == bytecode.JumpIfNull || op == bytecode.JumpIfUndefined {
				// These test identity, not truthiness.
				return scan, false
			}
			target := it.JumpTarget()
			fall := it.NextOffset()
			if !b.accumulatorDeadAt(target) || !b.accumulatorDeadAt(fall) {
				return scan, false
			}
			scan.jumpOffset = it.Offset()
			scan.jumpOp = op
			scan.targetOffset = target
			return scan, true

		default:
			return scan, false
		}
	}
}

func (b *GraphBuilder) registerDeadAt(r bytecode.Register, offset int) bool {
	live := b.liveness.InStateAt(offset)
	return live != nil && !live.RegisterIsLive(r)
}

func (b *GraphBuilder) accumulatorDeadAt(offset int) bool {
	live := b.liveness.InStateAt(offset)
	return live != nil && !live.AccumulatorIsLive()
}

// buildFusedCompare lowers a comparison directly into the branch the
// scan found. Operand conversions are emitted here, in the test's block,
// which dominates both branch arms.
func (b *GraphBuilder) buildFusedCompare(cmpOp ir.ComparisonOp, hint broker.CompareOpHint, lhs, rhs *ir.Node, scan branchScan) ReduceResult {
	var (
		branchOp ir.Opcode
		root     ir.RootIndex
		inputs   []*ir.Node
	)
	switch {
	case hint == broker.CompareOpSignedSmall:
		branchOp = ir.OpBranchIfInt32Compare
		inputs = []*ir.Node{b.GetInt32(lhs), b.GetInt32(rhs)}
	case hint == broker.CompareOpNumber:
		branchOp = ir.OpBranchIfFloat64Compare
		inputs = []*ir.Node{b.GetFloat64(lhs), b.GetFloat64(rhs)}
	case cmpOp == ir.CompareStrictEqual && b.bothJSReceivers(lhs, rhs):
		branchOp = ir.OpBranchIfReferenceEqual
		inputs = []*ir.Node{b.GetTaggedValue(lhs), b.GetTaggedValue(rhs)}
	default:
		// Materialize the generic comparison, then branch on its result.
		cond := b.addNodeWithLazyDeopt(ir.OpGenericCompare, ir.ReprTagged,
			ir.CompareData{Op: cmpOp}, b.GetTaggedValue(lhs), b.GetTaggedValue(rhs))
		b.aspects.SetType(cond, TypeBoolean)
		branchOp, root = ir.OpBranchIfRootConstant, ir.RootTrue
		inputs = []*ir.Node{cond}
	}

	// The branch consumed the test result; the scan verified the
	// accumulator is dead on both arms.
	b.frame.SetAccumulator(nil)

	owner := scan.owner
	if owner != b {
		// Return-fused into an outer frame: the callee's open block and
		// aspects state become the owner's. Every builder between here
		// and the owner had its remaining bytecode consumed by the scan,
		// so each one reports the fused result instead of a return.
		owner.currentBlock = b.currentBlock
		owner.adoptAspects(b.aspects)
		res := owner.emitFusedBranch(branchOp, cmpOp, root, inputs, scan)
		for c := b; c != owner; c = c.parent {
			c.currentBlock = nil
			c.fusedIntoCaller = true
			c.callerFuse = res
		}
		return DoneWithAbort()
	}
	return b.emitFusedBranch(branchOp, cmpOp, root, inputs, scan)
}

// emitFusedBranch replays the scanned moves and emits the branch in
// place of the scanned conditional jump. The iterator is repositioned to
// the jump so building resumes after it.
func (b *GraphBuilder) emitFusedBranch(op ir.Opcode, cmp ir.ComparisonOp, root ir.RootIndex, inputs []*ir.Node, scan branchScan) ReduceResult {
	for _, mv := range scan.moves {
		if !mv.drop {
			b.frame.Set(mv.dst, b.frame.Get(mv.src))
		}
	}

	fall := scan.jumpOffset + scan.jumpOp.Size()
	flip := scan.flip
	if scan.jumpOp == bytecode.JumpIfFalse || scan.jumpOp == bytecode.JumpIfToBooleanFalse {
		flip = !flip
	}
	trueOffset, falseOffset := scan.targetOffset, fall
	if flip {
		trueOffset, falseOffset = falseOffset, trueOffset
	}

	b.iterator.SetOffset(scan.jumpOffset)
	return b.emitBranch(op, cmp, root, inputs, trueOffset, falseOffset, fall)
}
