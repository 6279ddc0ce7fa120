package maglev

import (
	"testing"

	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/bytecode"
	"github.com/ketrewq/v8/ir"
)

// countingLoop assembles
//
//	for (r0 = 0; r0 < 10; r0 = r0 + 1) {}
//	return r0
func countingLoop() *functionBuilder {
	f := newFunction(1, 1)
	f.feedback.SetCompareOpFeedback(0, broker.CompareOpSignedSmall)
	f.feedback.SetBinaryOpFeedback(1, broker.BinaryOpSignedSmall)
	header := &bytecode.Label{}
	exit := &bytecode.Label{}
	f.Emit(bytecode.LdaZero)
	f.Emit(bytecode.Star, 0)
	f.Bind(header)
	f.Emit(bytecode.LdaSmi, 10)
	f.Emit(bytecode.TestLessThan, 0, 0)
	f.EmitJump(bytecode.JumpIfFalse, exit)
	f.Emit(bytecode.LdaSmi, 1)
	f.Emit(bytecode.Add, 0, 1)
	f.Emit(bytecode.Star, 0)
	f.EmitJumpLoop(header, 1)
	f.Bind(exit)
	f.Emit(bytecode.Ldar, 0)
	f.Emit(bytecode.Return)
	return f
}

func loopBlocks(g *ir.Graph) []*ir.BasicBlock {
	var out []*ir.BasicBlock
	for _, block := range g.Blocks() {
		if block.IsLoop() {
			out = append(out, block)
		}
	}
	return out
}

func TestLoopPhis(t *testing.T) {
	opts := DefaultOptions()
	opts.LoopPeeling = false
	g := buildGraphOpts(t, countingLoop(), opts)

	loops := loopBlocks(g)
	if len(loops) != 1 {
		t.Fatalf("loop block count = %d, want 1", len(loops))
	}
	phis := loops[0].Phis()
	if len(phis) != 1 {
		t.Fatalf("loop phi count = %d, want 1 (only r0 is live across the back edge)", len(phis))
	}
	phi := phis[0]
	if len(phi.Inputs()) != 2 {
		t.Errorf("loop phi input count = %d, want 2", len(phi.Inputs()))
	}
	if phi.Input(1) == nil {
		t.Errorf("back edge input never filled in")
	}
	if n := countOps(g, ir.OpJumpLoop); n != 1 {
		t.Errorf("JumpLoop count = %d, want 1", n)
	}
	if n := countOps(g, ir.OpBranchIfInt32Compare); n != 1 {
		t.Errorf("BranchIfInt32Compare count = %d, want 1", n)
	}
}

func TestLoopPeeling(t *testing.T) {
	g := buildGraphOpts(t, countingLoop(), DefaultOptions())

	// The first iteration runs ahead of the loop, so its condition branch
	// appears twice and the exit joins the peeled path with the loop path.
	if n := countOps(g, ir.OpBranchIfInt32Compare); n != 2 {
		t.Errorf("BranchIfInt32Compare count = %d, want 2", n)
	}
	if n := countOps(g, ir.OpJumpLoop); n != 1 {
		t.Errorf("JumpLoop count = %d, want 1", n)
	}
	if n := countOps(g, ir.OpPhi); n != 2 {
		t.Errorf("Phi count = %d, want 2 (loop header and exit merge)", n)
	}

	ret := findOp(g, ir.OpReturn)
	for _, block := range g.Blocks() {
		if block.Control() == ret {
			if n := len(block.Predecessors()); n != 2 {
				t.Errorf("exit block predecessor count = %d, want 2", n)
			}
		}
	}

	if len(loopBlocks(g)) != 1 {
		t.Errorf("loop block count = %d, want 1", len(loopBlocks(g)))
	}
}

func TestLoopPeelingRebuildsDeadBodyEdges(t *testing.T) {
	// One arm of an in-loop branch always deopts, so the join inside the
	// body loses a predecessor in the peeled iteration. The loop-proper
	// pass must start from the statically counted edges again, not from
	// the counts the peeled copy consumed.
	f := newFunction(2, 1)
	f.feedback.SetCompareOpFeedback(0, broker.CompareOpSignedSmall)
	f.feedback.SetBinaryOpFeedback(1, broker.BinaryOpSignedSmall)
	header := &bytecode.Label{}
	exit := &bytecode.Label{}
	skip := &bytecode.Label{}
	f.Emit(bytecode.LdaZero)
	f.Emit(bytecode.Star, 0)
	f.Bind(header)
	f.Emit(bytecode.LdaSmi, 10)
	f.Emit(bytecode.TestLessThan, 0, 0)
	f.EmitJump(bytecode.JumpIfFalse, exit)
	f.Emit(bytecode.Ldar, param(1))
	f.EmitJump(bytecode.JumpIfToBooleanTrue, skip)
	f.Emit(bytecode.Add, 0, 9) // slot 9 has no feedback
	f.Bind(skip)
	f.Emit(bytecode.LdaSmi, 1)
	f.Emit(bytecode.Add, 0, 1)
	f.Emit(bytecode.Star, 0)
	f.EmitJumpLoop(header, 1)
	f.Bind(exit)
	f.Emit(bytecode.Ldar, 0)
	f.Emit(bytecode.Return)

	g := buildGraphOpts(t, f, DefaultOptions())

	// Both copies carry the branch and the deopting arm.
	if n := countOps(g, ir.OpBranchIfToBooleanTrue); n != 2 {
		t.Errorf("BranchIfToBooleanTrue count = %d, want 2", n)
	}
	if n := countOps(g, ir.OpDeopt); n != 2 {
		t.Errorf("Deopt count = %d, want 2", n)
	}
	if n := countOps(g, ir.OpJumpLoop); n != 1 {
		t.Errorf("JumpLoop count = %d, want 1", n)
	}
	if len(loopBlocks(g)) != 1 {
		t.Fatalf("loop block count = %d, want 1", len(loopBlocks(g)))
	}

	ret := findOp(g, ir.OpReturn)
	if ret == nil {
		t.Fatalf("no return emitted; loop exit lost")
	}
	for _, block := range g.Blocks() {
		if block.Control() == ret {
			if n := len(block.Predecessors()); n != 2 {
				t.Errorf("exit block predecessor count = %d, want 2", n)
			}
		}
	}
}

func TestLoopPeelingSkipsLargeBodies(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPeeledSize = 4
	g := buildGraphOpts(t, countingLoop(), opts)

	if n := countOps(g, ir.OpBranchIfInt32Compare); n != 1 {
		t.Errorf("BranchIfInt32Compare count = %d, want 1 for an unpeeled loop", n)
	}
	if n := countOps(g, ir.OpJumpLoop); n != 1 {
		t.Errorf("JumpLoop count = %d, want 1", n)
	}
}
