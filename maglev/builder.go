// Package maglev builds a typed, speculative IR graph from bytecode and
// runtime feedback. The builder walks the bytecode once, maintains an
// abstract interpreter frame per position, and lowers each instruction
// to the cheapest node the recorded feedback justifies; every
// speculation carries a deopt frame describing how to resume in the
// interpreter when it fails.
package maglev

import (
	"errors"
	"fmt"
	"math"

	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/bytecode"
	"github.com/ketrewq/v8/ir"
)

// Options tunes the builder's speculative heuristics.
type Options struct {
	// MaxInlineDepth bounds nesting of inlined calls.
	MaxInlineDepth int
	// MaxInlinedSize is the largest callee bytecode length considered.
	MaxInlinedSize int
	// SmallFunctionSize is the callee bytecode length below which the
	// call-count gate is skipped.
	SmallFunctionSize int
	// MaxTotalInlinedSize caps cumulative inlined bytecode per compilation.
	MaxTotalInlinedSize int
	// MinInlineCallCount is the call-site frequency gate.
	MinInlineCallCount uint32
	// LoopPeeling unrolls the first iteration of small loops so map
	// checks hoisted by the first iteration cover the loop body.
	LoopPeeling bool
	// MaxPeeledSize is the largest loop body (in bytecode bytes) peeled.
	MaxPeeledSize int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxInlineDepth:      4,
		MaxInlinedSize:      80,
		SmallFunctionSize:   16,
		MaxTotalInlinedSize: 400,
		MinInlineCallCount:  2,
		LoopPeeling:         true,
		MaxPeeledSize:       120,
	}
}

// GraphBuilder drives one function's translation. Inlined callees get a
// nested builder sharing the graph, the dependency set, and the
// known-node-aspects table.
type GraphBuilder struct {
	graph *ir.Graph
	fn    *broker.FunctionInfo
	deps  *broker.Dependencies
	opts  Options

	parent      *GraphBuilder
	inlineDepth int
	inlinedSize *int
	soleExit    bool

	iterator bytecode.Iterator
	liveness *bytecode.Liveness

	frame   *InterpreterFrameState
	aspects *KnownNodeAspects

	currentBlock *ir.BasicBlock

	predecessorCounts map[int]int
	fallsInto         map[int]bool
	paramWrites       []bool
	loopHeaders       map[int]bool
	loopEnds          map[int]int
	mergeStates       map[int]*MergePointState
	loopStates        map[int]*MergePointState
	jumpTargets       map[int]*ir.BasicBlockRef

	deoptScope  *DeoptFrameScope
	callerFrame *ir.DeoptFrame

	repositioned        bool
	consumedFallthrough bool

	// Loop-peeling state.
	peeling        bool
	peeledHeader   int
	peelLoopEnd    int
	peelDecrements map[int]int
	alreadyPeeled  map[int]bool

	// Inlined-callee bookkeeping.
	returnValues    []*ir.Node
	returnBlocks    []*ir.BasicBlock
	returnAspects   []*KnownNodeAspects
	fusedIntoCaller bool
	callerFuse      ReduceResult
}

// BuildGraph compiles fn into a fresh graph, registering every
// compilation dependency on deps. The caller commits deps before
// installing the code.
func BuildGraph(fn *broker.FunctionInfo, deps *broker.Dependencies, opts Options) (*ir.Graph, error) {
	if fn == nil || fn.Bytecode == nil {
		return nil, errors.New("maglev: function has no bytecode")
	}
	if fn.Feedback == nil {
		return nil, errors.New("maglev: function has no feedback vector")
	}
	g := ir.NewGraph()
	b := newGraphBuilder(g, nil, fn, deps, opts)
	b.inlinedSize = new(int)

	entry := g.NewBlock()
	b.currentBlock = entry
	params := make([]*ir.Node, fn.Bytecode.ParameterCount())
	for i := range params {
		p := g.NewNode(ir.OpParameter, ir.ReprTagged, ir.ParameterData{Index: i})
		entry.AddNode(p)
		params[i] = p
	}
	b.frame = NewInterpreterFrameState(g, fn.Bytecode, params, b.aspects)

	b.buildBody()
	return g, nil
}

func newGraphBuilder(g *ir.Graph, parent *GraphBuilder, fn *broker.FunctionInfo, deps *broker.Dependencies, opts Options) *GraphBuilder {
	b := &GraphBuilder{
		graph:       g,
		fn:          fn,
		deps:        deps,
		opts:        opts,
		parent:      parent,
		iterator:    bytecode.NewIterator(fn.Bytecode),
		liveness:    bytecode.ComputeLiveness(fn.Bytecode),
		mergeStates: make(map[int]*MergePointState),
		loopStates:  make(map[int]*MergePointState),
		jumpTargets: make(map[int]*ir.BasicBlockRef),
	}
	if parent != nil {
		b.inlineDepth = parent.inlineDepth + 1
		b.inlinedSize = parent.inlinedSize
		b.aspects = parent.aspects
	} else {
		b.aspects = NewKnownNodeAspects()
	}
	b.analyzeBytecode()
	return b
}

// analyzeBytecode is the pre-pass over the instruction stream: it counts
// the control-flow edges into every offset so merge points know how many
// predecessors to expect, and records loop extents.
func (b *GraphBuilder) analyzeBytecode() {
	array := b.fn.Bytecode
	b.predecessorCounts = make(map[int]int)
	b.fallsInto = make(map[int]bool)
	b.loopHeaders = make(map[int]bool)
	b.loopEnds = make(map[int]int)

	b.paramWrites = make([]bool, array.ParameterCount())

	jumpTarget := make(map[int]bool)
	soleReturn := 0
	for it := bytecode.NewIterator(array); !it.Done(); it.Advance() {
		op := it.Opcode()
		if op == bytecode.Star {
			if r := it.RegisterOperand(0); r.IsParameter() {
				b.paramWrites[r.ParameterIndex()] = true
			}
		}
		if op == bytecode.Mov {
			if r := it.RegisterOperand(1); r.IsParameter() {
				b.paramWrites[r.ParameterIndex()] = true
			}
		}
		if op.IsJump() {
			target := it.JumpTarget()
			b.predecessorCounts[target]++
			jumpTarget[target] = true
			if op == bytecode.JumpLoop {
				b.loopHeaders[target] = true
				b.loopEnds[target] = it.Offset()
			}
		}
		if op == bytecode.Throw {
			if h := array.HandlerFor(it.Offset()); h != nil {
				b.predecessorCounts[h.Handler]++
			}
		}
		if op == bytecode.Return {
			soleReturn++
		}
	}
	for it := bytecode.NewIterator(array); !it.Done(); it.Advance() {
		if !it.Opcode().IsTerminator() && jumpTarget[it.NextOffset()] {
			b.predecessorCounts[it.NextOffset()]++
			b.fallsInto[it.NextOffset()] = true
		}
	}
	b.soleExit = soleReturn == 1
}

// buildBody is the main visit loop: resolve merge points, skip dead
// ranges while keeping predecessor bookkeeping honest, and lower live
// instructions.
func (b *GraphBuilder) buildBody() {
	for !b.iterator.Done() {
		b.repositioned = false
		offset := b.iterator.Offset()
		consumed := b.consumedFallthrough
		b.consumedFallthrough = false

		if b.loopHeaders[offset] {
			b.handleLoopHeader(offset, consumed)
		} else if b.predecessorCounts[offset] > 0 {
			b.processMergePoint(offset, consumed)
		}

		if b.currentBlock == nil {
			b.skipDeadInstruction()
		} else {
			res := b.visitInstruction()
			if res.IsDoneWithAbort() {
				b.currentBlock = nil
			}
		}
		if !b.repositioned {
			b.iterator.Advance()
		}
	}
	// Loops whose back edge never materialized collapse to straight-line
	// code; their phis fold onto the entry value.
	for offset, ms := range b.loopStates {
		ms.killLoopBackEdge()
		delete(b.loopStates, offset)
	}
}

// processMergePoint handles a forward merge offset: a live fallthrough
// becomes one more predecessor, a dead fallthrough decrements the
// expected count, and a complete merge resumes building in its block.
func (b *GraphBuilder) processMergePoint(offset int, fallthroughConsumed bool) {
	if b.currentBlock != nil {
		ms := b.mergeStates[offset]
		if ms == nil {
			ms = b.newForwardMerge(offset)
		}
		b.mergeFrameInto(ms)
		jump := b.graph.NewNode(ir.OpJump, ir.ReprNone, ir.JumpData{Target: b.refFor(offset)})
		b.currentBlock.SetControl(jump)
		b.currentBlock = nil
	} else if !fallthroughConsumed && b.fallsInto[offset] {
		b.decrementPredecessor(offset)
	}
	if ms := b.mergeStates[offset]; ms != nil && ms.predecessorsSeen == ms.predecessorCount {
		b.resolveMerge(ms)
	}
}

func (b *GraphBuilder) handleLoopHeader(offset int, fallthroughConsumed bool) {
	if b.currentBlock == nil {
		// Dead loop entry: the whole loop is unreachable.
		if !fallthroughConsumed && b.fallsInto[offset] {
			b.decrementPredecessor(offset)
		}
		return
	}
	if b.shouldPeelLoop(offset) {
		b.startPeel(offset)
		return
	}
	b.buildLoopHeader(offset)
}

// decrementPredecessor records that one statically counted edge into
// offset proved dead. A merge expecting no more edges is discarded.
func (b *GraphBuilder) decrementPredecessor(offset int) {
	b.predecessorCounts[offset]--
	if b.peeling && offset > b.peeledHeader {
		b.peelDecrements[offset]++
	}
	if ms := b.mergeStates[offset]; ms != nil {
		ms.predecessorCount--
		if ms.predecessorCount == 0 {
			delete(b.mergeStates, offset)
		}
	}
}

// skipDeadInstruction walks over one unreachable instruction, keeping
// the predecessor counts of its would-be targets in sync.
func (b *GraphBuilder) skipDeadInstruction() {
	op := b.iterator.Opcode()
	switch {
	case op == bytecode.JumpLoop:
		target := b.iterator.JumpTarget()
		if b.peeling && target == b.peeledHeader {
			b.endPeel()
			return
		}
		if ms := b.loopStates[target]; ms != nil {
			ms.killLoopBackEdge()
			delete(b.loopStates, target)
		}
	case op.IsJump():
		b.decrementPredecessor(b.iterator.JumpTarget())
	case op == bytecode.Throw:
		if h := b.fn.Bytecode.HandlerFor(b.iterator.Offset()); h != nil {
			b.decrementPredecessor(h.Handler)
		}
	}
}

// refFor returns the (shared, possibly unbound) ref for the block at a
// bytecode offset.
func (b *GraphBuilder) refFor(offset int) *ir.BasicBlockRef {
	if ref, ok := b.jumpTargets[offset]; ok {
		return ref
	}
	ref := ir.NewBasicBlockRef()
	b.jumpTargets[offset] = ref
	return ref
}

// Node emission helpers. Side-effecting nodes drop map knowledge that is
// not protected by a stability dependency.

func (b *GraphBuilder) addNode(op ir.Opcode, repr ir.ValueRepresentation, payload ir.Payload, inputs ...*ir.Node) *ir.Node {
	n := b.graph.NewNode(op, repr, payload, inputs...)
	b.currentBlock.AddNode(n)
	if op.HasSideEffects() {
		b.aspects.ClearUnstableMaps()
	}
	return n
}

func (b *GraphBuilder) addNodeWithEagerDeopt(op ir.Opcode, repr ir.ValueRepresentation, payload ir.Payload, inputs ...*ir.Node) *ir.Node {
	n := b.graph.NewNode(op, repr, payload, inputs...)
	n.SetEagerDeoptInfo(b.eagerDeoptFrame())
	b.currentBlock.AddNode(n)
	if op.HasSideEffects() {
		b.aspects.ClearUnstableMaps()
	}
	return n
}

func (b *GraphBuilder) addNodeWithLazyDeopt(op ir.Opcode, repr ir.ValueRepresentation, payload ir.Payload, inputs ...*ir.Node) *ir.Node {
	n := b.graph.NewNode(op, repr, payload, inputs...)
	n.SetLazyDeoptInfo(b.lazyDeoptFrame())
	b.currentBlock.AddNode(n)
	if op.HasSideEffects() {
		b.aspects.ClearUnstableMaps()
	}
	return n
}

// emitUnconditionalDeopt replaces the rest of the current path with a
// deopt: the speculation cannot succeed, so reaching here at runtime
// always re-enters the interpreter.
func (b *GraphBuilder) emitUnconditionalDeopt(reason string) ReduceResult {
	n := b.graph.NewNode(ir.OpDeopt, ir.ReprNone, ir.DeoptData{Reason: reason})
	n.SetEagerDeoptInfo(b.eagerDeoptFrame())
	b.currentBlock.SetControl(n)
	b.currentBlock = nil
	return DoneWithAbort()
}

func (b *GraphBuilder) setAccumulator(n *ir.Node) {
	b.frame.SetAccumulator(n)
}

// visitInstruction lowers the instruction under the iterator.
func (b *GraphBuilder) visitInstruction() ReduceResult {
	it := &b.iterator
	switch op := it.Opcode(); op {
	case bytecode.Nop:
		return Done()

	case bytecode.LdaZero:
		b.setAccumulator(b.graph.SmiConstant(0))
	case bytecode.LdaSmi:
		b.setAccumulator(b.graph.SmiConstant(int32(it.ImmediateOperand(0))))
	case bytecode.LdaConstant:
		b.setAccumulator(b.constantNode(b.fn.Bytecode.ConstantAt(it.IndexOperand(0))))
	case bytecode.LdaUndefined:
		b.setAccumulator(b.graph.RootConstant(ir.RootUndefined))
	case bytecode.LdaNull:
		b.setAccumulator(b.graph.RootConstant(ir.RootNull))
	case bytecode.LdaTrue:
		b.setAccumulator(b.graph.RootConstant(ir.RootTrue))
	case bytecode.LdaFalse:
		b.setAccumulator(b.graph.RootConstant(ir.RootFalse))

	case bytecode.Ldar:
		b.setAccumulator(b.frame.Get(it.RegisterOperand(0)))
	case bytecode.Star:
		b.frame.Set(it.RegisterOperand(0), b.frame.Accumulator())
	case bytecode.Mov:
		b.frame.Set(it.RegisterOperand(1), b.frame.Get(it.RegisterOperand(0)))

	case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div, bytecode.Mod:
		lhs := b.frame.Get(it.RegisterOperand(0))
		return b.buildBinaryOp(op, lhs, b.frame.Accumulator(), it.IndexOperand(1))
	case bytecode.Inc:
		return b.buildBinaryOp(bytecode.Add, b.frame.Accumulator(), b.graph.SmiConstant(1), it.IndexOperand(0))
	case bytecode.Dec:
		return b.buildBinaryOp(bytecode.Sub, b.frame.Accumulator(), b.graph.SmiConstant(1), it.IndexOperand(0))
	case bytecode.Negate:
		return b.buildNegate(it.IndexOperand(0))

	case bytecode.LogicalNot, bytecode.ToBooleanLogicalNot:
		return b.buildLogicalNot()

	case bytecode.TestEqual:
		return b.visitCompare(ir.CompareEqual)
	case bytecode.TestEqualStrict:
		return b.visitCompare(ir.CompareStrictEqual)
	case bytecode.TestLessThan:
		return b.visitCompare(ir.CompareLessThan)
	case bytecode.TestLessThanOrEqual:
		return b.visitCompare(ir.CompareLessThanOrEqual)
	case bytecode.TestGreaterThan:
		return b.visitCompare(ir.CompareGreaterThan)
	case bytecode.TestGreaterThanOrEqual:
		return b.visitCompare(ir.CompareGreaterThanOrEqual)
	case bytecode.TestUndetectable:
		return b.buildTestUndetectable()
	case bytecode.TestTypeOf:
		return b.buildTestTypeOf(it.IndexOperand(0))

	case bytecode.GetNamedProperty:
		return b.visitGetNamedProperty()
	case bytecode.SetNamedProperty:
		return b.visitSetNamedProperty()
	case bytecode.GetKeyedProperty:
		return b.visitGetKeyedProperty()
	case bytecode.SetKeyedProperty:
		return b.visitSetKeyedProperty()
	case bytecode.LdaGlobal:
		name := b.constantName(it.IndexOperand(0))
		slot := it.IndexOperand(1)
		b.setAccumulator(b.addNodeWithLazyDeopt(ir.OpLoadGlobal, ir.ReprTagged,
			ir.NamedData{Name: name, Slot: slot}))
	case bytecode.StaGlobal:
		name := b.constantName(it.IndexOperand(0))
		slot := it.IndexOperand(1)
		b.addNodeWithLazyDeopt(ir.OpStoreGlobal, ir.ReprNone,
			ir.NamedData{Name: name, Slot: slot}, b.GetTaggedValue(b.frame.Accumulator()))

	case bytecode.CallProperty, bytecode.CallUndefinedReceiver:
		return b.visitCall(op)
	case bytecode.Construct:
		return b.visitConstruct()
	case bytecode.CreateClosure:
		return b.visitCreateClosure()
	case bytecode.CreateObjectLiteral:
		return b.visitCreateObjectLiteral()

	case bytecode.Jump:
		return b.visitJump()
	case bytecode.JumpIfTrue, bytecode.JumpIfFalse, bytecode.JumpIfNull,
		bytecode.JumpIfUndefined, bytecode.JumpIfToBooleanTrue, bytecode.JumpIfToBooleanFalse:
		return b.visitConditionalJump(op)
	case bytecode.JumpLoop:
		return b.visitJumpLoop()

	case bytecode.Return:
		return b.visitReturn()
	case bytecode.Throw:
		return b.visitThrow()

	default:
		panic(fmt.Sprintf("maglev: unhandled bytecode %s at %d", op, it.Offset()))
	}
	return Done()
}

// constantNode lowers a constant-pool entry to a constant node.
func (b *GraphBuilder) constantNode(c any) *ir.Node {
	switch v := c.(type) {
	case int:
		return b.graph.SmiConstant(int32(v))
	case int32:
		return b.graph.SmiConstant(v)
	case float64:
		return b.graph.Float64Constant(v)
	case bool:
		if v {
			return b.graph.RootConstant(ir.RootTrue)
		}
		return b.graph.RootConstant(ir.RootFalse)
	case nil:
		return b.graph.RootConstant(ir.RootNull)
	default:
		return b.graph.HeapConstant(c)
	}
}

func (b *GraphBuilder) constantName(index int) string {
	name, ok := b.fn.Bytecode.ConstantAt(index).(string)
	if !ok {
		panic(fmt.Sprintf("maglev: constant %d is not a name", index))
	}
	return name
}

// arithOps maps one bytecode arithmetic instruction onto its three
// speculation tiers.
type arithOps struct {
	int32Op   ir.Opcode
	float64Op ir.Opcode
	genericOp ir.Opcode
}

var binaryArith = map[bytecode.Opcode]arithOps{
	bytecode.Add: {ir.OpInt32Add, ir.OpFloat64Add, ir.OpGenericAdd},
	bytecode.Sub: {ir.OpInt32Subtract, ir.OpFloat64Subtract, ir.OpGenericSubtract},
	bytecode.Mul: {ir.OpInt32Multiply, ir.OpFloat64Multiply, ir.OpGenericMultiply},
	bytecode.Div: {ir.OpInt32Divide, ir.OpFloat64Divide, ir.OpGenericDivide},
	bytecode.Mod: {ir.OpInt32Modulus, ir.OpFloat64Modulus, ir.OpGenericModulus},
}

func (b *GraphBuilder) buildBinaryOp(op bytecode.Opcode, lhs, rhs *ir.Node, slot int) ReduceResult {
	ops := binaryArith[op]
	switch hint := b.fn.Feedback.BinaryOpFeedback(slot); hint {
	case broker.BinaryOpNone:
		return b.emitUnconditionalDeopt("insufficient type feedback for binary operation")

	case broker.BinaryOpSignedSmall:
		l := b.GetInt32(lhs)
		r := b.GetInt32(rhs)
		if lv, lok := int32ConstantOf(l); lok {
			if rv, rok := int32ConstantOf(r); rok {
				if v, ok := foldInt32Arith(op, lv, rv); ok {
					b.setAccumulator(b.graph.Int32Constant(v))
					return Done()
				}
			}
		}
		b.setAccumulator(b.addNode(ops.int32Op, ir.ReprInt32, nil, l, r))

	case broker.BinaryOpNumber, broker.BinaryOpNumberOrOddball:
		tn := AssumeNumber
		if hint == broker.BinaryOpNumberOrOddball {
			tn = AssumeNumberOrOddball
		}
		l := b.GetFloat64ForToNumber(lhs, tn)
		r := b.GetFloat64ForToNumber(rhs, tn)
		if lv, lok := float64ConstantOf(l); lok {
			if rv, rok := float64ConstantOf(r); rok {
				b.setAccumulator(b.graph.Float64Constant(foldFloat64Arith(op, lv, rv)))
				return Done()
			}
		}
		b.setAccumulator(b.addNode(ops.float64Op, ir.ReprFloat64, nil, l, r))

	default:
		b.setAccumulator(b.addNodeWithLazyDeopt(ops.genericOp, ir.ReprTagged, nil,
			b.GetTaggedValue(lhs), b.GetTaggedValue(rhs)))
	}
	return Done()
}

func (b *GraphBuilder) buildNegate(slot int) ReduceResult {
	acc := b.frame.Accumulator()
	switch hint := b.fn.Feedback.BinaryOpFeedback(slot); hint {
	case broker.BinaryOpNone:
		return b.emitUnconditionalDeopt("insufficient type feedback for unary operation")
	case broker.BinaryOpSignedSmall:
		v := b.GetInt32(acc)
		if c, ok := int32ConstantOf(v); ok && c != -c {
			b.setAccumulator(b.graph.Int32Constant(-c))
			return Done()
		}
		b.setAccumulator(b.addNode(ir.OpInt32Negate, ir.ReprInt32, nil, v))
	case broker.BinaryOpNumber, broker.BinaryOpNumberOrOddball:
		tn := AssumeNumber
		if hint == broker.BinaryOpNumberOrOddball {
			tn = AssumeNumberOrOddball
		}
		v := b.GetFloat64ForToNumber(acc, tn)
		if c, ok := float64ConstantOf(v); ok {
			b.setAccumulator(b.graph.Float64Constant(-c))
			return Done()
		}
		b.setAccumulator(b.addNode(ir.OpFloat64Negate, ir.ReprFloat64, nil, v))
	default:
		b.setAccumulator(b.addNodeWithLazyDeopt(ir.OpGenericNegate, ir.ReprTagged, nil,
			b.GetTaggedValue(acc)))
	}
	return Done()
}

func (b *GraphBuilder) buildLogicalNot() ReduceResult {
	value := b.getBooleanValue(b.frame.Accumulator())
	if data, ok := ir.TryCast[ir.RootData](value); ok && value.Op() == ir.OpRootConstant {
		switch data.Index {
		case ir.RootTrue:
			b.setAccumulator(b.graph.RootConstant(ir.RootFalse))
			return Done()
		case ir.RootFalse:
			b.setAccumulator(b.graph.RootConstant(ir.RootTrue))
			return Done()
		}
	}
	out := b.addNode(ir.OpLogicalNot, ir.ReprTagged, nil, value)
	b.aspects.SetType(out, TypeBoolean)
	b.setAccumulator(out)
	return Done()
}

func (b *GraphBuilder) buildTestUndetectable() ReduceResult {
	acc := b.GetTaggedValue(b.frame.Accumulator())
	out := b.addNode(ir.OpTestUndetectable, ir.ReprTagged, nil, acc)
	b.aspects.SetType(out, TypeBoolean)
	b.setAccumulator(out)
	return Done()
}

// typeofLiterals indexes the literal operand of TestTypeOf.
var typeofLiterals = [...]string{
	"number", "string", "symbol", "boolean", "undefined", "function", "object",
}

func (b *GraphBuilder) buildTestTypeOf(literal int) ReduceResult {
	if literal < 0 || literal >= len(typeofLiterals) {
		panic(fmt.Sprintf("maglev: bad typeof literal %d", literal))
	}
	name := typeofLiterals[literal]
	acc := b.frame.Accumulator()

	// Fold when the recorded type already decides the answer.
	known := b.aspects.TypeOf(acc)
	switch name {
	case "number":
		if known.IsSubtypeOf(TypeNumber) {
			b.setAccumulator(b.graph.RootConstant(ir.RootTrue))
			return Done()
		}
	case "string":
		if known.IsSubtypeOf(TypeString) {
			b.setAccumulator(b.graph.RootConstant(ir.RootTrue))
			return Done()
		}
	case "boolean":
		if known.IsSubtypeOf(TypeBoolean) {
			b.setAccumulator(b.graph.RootConstant(ir.RootTrue))
			return Done()
		}
	}

	out := b.addNode(ir.OpTestTypeOf, ir.ReprTagged, ir.NamedData{Name: name},
		b.GetTaggedValue(acc))
	b.aspects.SetType(out, TypeBoolean)
	b.setAccumulator(out)
	return Done()
}

func (b *GraphBuilder) visitCompare(cmpOp ir.ComparisonOp) ReduceResult {
	it := &b.iterator
	lhs := b.frame.Get(it.RegisterOperand(0))
	rhs := b.frame.Accumulator()
	slot := it.IndexOperand(1)
	hint := b.fn.Feedback.CompareOpFeedback(slot)
	if hint == broker.CompareOpNone {
		return b.emitUnconditionalDeopt("insufficient type feedback for comparison")
	}
	if scan, ok := b.tryFindNextBranch(); ok {
		return b.buildFusedCompare(cmpOp, hint, lhs, rhs, scan)
	}

	var out *ir.Node
	switch {
	case hint == broker.CompareOpSignedSmall:
		out = b.addNode(ir.OpInt32Compare, ir.ReprTagged, ir.CompareData{Op: cmpOp},
			b.GetInt32(lhs), b.GetInt32(rhs))
	case hint == broker.CompareOpNumber:
		out = b.addNode(ir.OpFloat64Compare, ir.ReprTagged, ir.CompareData{Op: cmpOp},
			b.GetFloat64(lhs), b.GetFloat64(rhs))
	case cmpOp == ir.CompareStrictEqual && b.bothJSReceivers(lhs, rhs):
		out = b.addNode(ir.OpTaggedEqual, ir.ReprTagged, nil,
			b.GetTaggedValue(lhs), b.GetTaggedValue(rhs))
	default:
		out = b.addNodeWithLazyDeopt(ir.OpGenericCompare, ir.ReprTagged, ir.CompareData{Op: cmpOp},
			b.GetTaggedValue(lhs), b.GetTaggedValue(rhs))
	}
	b.aspects.SetType(out, TypeBoolean)
	b.setAccumulator(out)
	return Done()
}

func (b *GraphBuilder) bothJSReceivers(lhs, rhs *ir.Node) bool {
	return b.aspects.TypeOf(lhs).IsSubtypeOf(TypeJSReceiver) &&
		b.aspects.TypeOf(rhs).IsSubtypeOf(TypeJSReceiver)
}

func (b *GraphBuilder) visitGetNamedProperty() ReduceResult {
	it := &b.iterator
	obj := b.frame.Get(it.RegisterOperand(0))
	name := b.constantName(it.IndexOperand(1))
	slot := it.IndexOperand(2)
	feedback := b.fn.Feedback.PropertyFeedbackFor(slot)

	res := b.TryBuildNamedAccess(obj, name, slot, feedback)
	switch {
	case res.IsDoneWithValue():
		b.setAccumulator(res.Value())
		return Done()
	case res.IsDoneWithAbort():
		return res
	}
	load := b.addNodeWithLazyDeopt(ir.OpLoadNamedGeneric, ir.ReprTagged,
		ir.NamedData{Name: name, Slot: slot}, b.GetTaggedValue(obj))
	b.setAccumulator(load)
	return Done()
}

func (b *GraphBuilder) visitSetNamedProperty() ReduceResult {
	it := &b.iterator
	obj := b.frame.Get(it.RegisterOperand(0))
	name := b.constantName(it.IndexOperand(1))
	slot := it.IndexOperand(2)
	value := b.frame.Accumulator()
	feedback := b.fn.Feedback.PropertyFeedbackFor(slot)

	res := b.TryBuildNamedStore(obj, name, value, feedback)
	if res.IsDone() || res.IsDoneWithAbort() {
		return res
	}
	b.addNodeWithLazyDeopt(ir.OpSetNamedGeneric, ir.ReprNone,
		ir.NamedData{Name: name, Slot: slot}, b.GetTaggedValue(obj), b.GetTaggedValue(value))
	return Done()
}

func (b *GraphBuilder) visitGetKeyedProperty() ReduceResult {
	it := &b.iterator
	obj := b.frame.Get(it.RegisterOperand(0))
	key := b.frame.Accumulator()
	slot := it.IndexOperand(1)
	feedback := b.fn.Feedback.PropertyFeedbackFor(slot)

	res := b.TryBuildElementAccess(obj, key, feedback)
	switch {
	case res.IsDoneWithValue():
		b.setAccumulator(res.Value())
		return Done()
	case res.IsDoneWithAbort():
		return res
	}
	load := b.addNodeWithLazyDeopt(ir.OpCallBuiltin, ir.ReprTagged,
		ir.CallData{Builtin: "GetProperty", Slot: slot},
		b.GetTaggedValue(obj), b.GetTaggedValue(key))
	b.setAccumulator(load)
	return Done()
}

func (b *GraphBuilder) visitSetKeyedProperty() ReduceResult {
	it := &b.iterator
	obj := b.frame.Get(it.RegisterOperand(0))
	key := b.frame.Get(it.RegisterOperand(1))
	slot := it.IndexOperand(2)
	value := b.frame.Accumulator()
	feedback := b.fn.Feedback.PropertyFeedbackFor(slot)

	res := b.TryBuildElementStore(obj, key, value, feedback)
	if res.IsDone() || res.IsDoneWithAbort() {
		return res
	}
	b.addNodeWithLazyDeopt(ir.OpCallBuiltin, ir.ReprNone,
		ir.CallData{Builtin: "SetProperty", Slot: slot},
		b.GetTaggedValue(obj), b.GetTaggedValue(key), b.GetTaggedValue(value))
	return Done()
}

func (b *GraphBuilder) visitCall(op bytecode.Opcode) ReduceResult {
	it := &b.iterator
	callee := b.frame.Get(it.RegisterOperand(0))
	first := it.RegisterOperand(1)
	count := it.IndexOperand(2)
	slot := it.IndexOperand(3)

	var receiver *ir.Node
	args := make([]*ir.Node, 0, count)
	if op == bytecode.CallUndefinedReceiver {
		receiver = b.graph.RootConstant(ir.RootUndefined)
		for i := 0; i < count; i++ {
			args = append(args, b.frame.Get(first+bytecode.Register(i)))
		}
	} else {
		// First register is the receiver.
		receiver = b.frame.Get(first)
		for i := 1; i < count; i++ {
			args = append(args, b.frame.Get(first+bytecode.Register(i)))
		}
	}

	if cf, ok := b.fn.Feedback.CallFeedbackFor(slot); ok && cf.Target != nil {
		res := b.tryBuildInlinedCall(cf, receiver, args)
		switch {
		case res.IsDoneWithValue():
			b.setAccumulator(res.Value())
			return Done()
		case res.IsDone(), res.IsDoneWithAbort():
			return res
		}
		call := b.buildCallNode(ir.OpCallKnown, cf.Target, slot, callee, receiver, args)
		b.setAccumulator(call)
		return Done()
	}
	call := b.buildCallNode(ir.OpCall, nil, slot, callee, receiver, args)
	b.setAccumulator(call)
	return Done()
}

func (b *GraphBuilder) buildCallNode(op ir.Opcode, target *broker.FunctionInfo, slot int, callee, receiver *ir.Node, args []*ir.Node) *ir.Node {
	inputs := make([]*ir.Node, 0, len(args)+2)
	inputs = append(inputs, b.GetTaggedValue(callee), b.GetTaggedValue(receiver))
	for _, a := range args {
		inputs = append(inputs, b.GetTaggedValue(a))
	}
	return b.addNodeWithLazyDeopt(op, ir.ReprTagged,
		ir.CallData{Target: target, Slot: slot}, inputs...)
}

func (b *GraphBuilder) visitConstruct() ReduceResult {
	it := &b.iterator
	callee := b.frame.Get(it.RegisterOperand(0))
	first := it.RegisterOperand(1)
	count := it.IndexOperand(2)
	slot := it.IndexOperand(3)

	inputs := make([]*ir.Node, 0, count+1)
	inputs = append(inputs, b.GetTaggedValue(callee))
	for i := 0; i < count; i++ {
		inputs = append(inputs, b.GetTaggedValue(b.frame.Get(first+bytecode.Register(i))))
	}

	var target *broker.FunctionInfo
	if cf, ok := b.fn.Feedback.CallFeedbackFor(slot); ok {
		target = cf.Target
	}
	scope := b.EnterConstructStub(b.graph.RootConstant(ir.RootTheHole))
	obj := b.addNodeWithLazyDeopt(ir.OpConstruct, ir.ReprTagged,
		ir.CallData{Target: target, Slot: slot}, inputs...)
	scope.Exit()

	b.aspects.SetType(obj, TypeJSReceiver)
	b.setAccumulator(obj)
	return Done()
}

func (b *GraphBuilder) visitCreateClosure() ReduceResult {
	it := &b.iterator
	c := b.fn.Bytecode.ConstantAt(it.IndexOperand(0))
	fi, ok := c.(*broker.FunctionInfo)
	if !ok {
		panic(fmt.Sprintf("maglev: CreateClosure constant is %T, not function info", c))
	}
	closure := b.addNode(ir.OpCreateClosure, ir.ReprTagged, ir.HeapData{Value: fi})
	b.setAccumulator(closure)
	return Done()
}

func (b *GraphBuilder) visitJump() ReduceResult {
	target := b.iterator.JumpTarget()
	ms := b.mergeStates[target]
	if ms == nil {
		ms = b.newForwardMerge(target)
	}
	b.mergeFrameInto(ms)
	jump := b.graph.NewNode(ir.OpJump, ir.ReprNone, ir.JumpData{Target: b.refFor(target)})
	b.currentBlock.SetControl(jump)
	b.currentBlock = nil
	return DoneWithAbort()
}

func (b *GraphBuilder) visitConditionalJump(op bytecode.Opcode) ReduceResult {
	it := &b.iterator
	acc := b.frame.Accumulator()
	target := it.JumpTarget()
	fall := it.NextOffset()

	var (
		branchOp ir.Opcode
		cmp      ir.ComparisonOp
		root     ir.RootIndex
		inputs   []*ir.Node
		flip     bool
	)
	switch op {
	case bytecode.JumpIfTrue:
		branchOp, root = ir.OpBranchIfRootConstant, ir.RootTrue
		inputs = []*ir.Node{b.GetTaggedValue(acc)}
	case bytecode.JumpIfFalse:
		branchOp, root = ir.OpBranchIfRootConstant, ir.RootFalse
		inputs = []*ir.Node{b.GetTaggedValue(acc)}
	case bytecode.JumpIfNull:
		branchOp, root = ir.OpBranchIfRootConstant, ir.RootNull
		inputs = []*ir.Node{b.GetTaggedValue(acc)}
	case bytecode.JumpIfUndefined:
		branchOp, root = ir.OpBranchIfRootConstant, ir.RootUndefined
		inputs = []*ir.Node{b.GetTaggedValue(acc)}
	case bytecode.JumpIfToBooleanTrue, bytecode.JumpIfToBooleanFalse:
		flip = op == bytecode.JumpIfToBooleanFalse
		known := b.aspects.TypeOf(acc)
		switch {
		case acc.Repr() == ir.ReprInt32 || known.IsSubtypeOf(TypeSmi):
			// ToBoolean on an int32 is a zero test.
			branchOp, cmp = ir.OpBranchIfInt32Compare, ir.CompareEqual
			inputs = []*ir.Node{b.GetInt32(acc), b.graph.Int32Constant(0)}
			flip = !flip // the zero test is the falsy side
		case known.IsSubtypeOf(TypeBoolean):
			branchOp, root = ir.OpBranchIfRootConstant, ir.RootTrue
			inputs = []*ir.Node{b.GetTaggedValue(acc)}
		default:
			branchOp = ir.OpBranchIfToBooleanTrue
			inputs = []*ir.Node{b.GetTaggedValue(acc)}
		}
	}

	trueOffset, falseOffset := target, fall
	if flip {
		trueOffset, falseOffset = falseOffset, trueOffset
	}
	return b.emitBranch(branchOp, cmp, root, inputs, trueOffset, falseOffset, fall)
}

// emitBranch closes the current block with a branch. Edges into merge
// offsets are merged here, while the block is still open, so value
// conversions land ahead of the branch; a fallthrough edge to plain code
// opens a fresh block and building continues there.
func (b *GraphBuilder) emitBranch(op ir.Opcode, cmp ir.ComparisonOp, root ir.RootIndex, inputs []*ir.Node, trueOffset, falseOffset, fallOffset int) ReduceResult {
	branching := b.currentBlock

	var fallBlock *ir.BasicBlock
	edgeRef := func(offset int) *ir.BasicBlockRef {
		if offset == fallOffset && b.predecessorCounts[offset] == 0 {
			fallBlock = b.graph.NewBlock()
			fallBlock.AddPredecessor(branching)
			ref := ir.NewBasicBlockRef()
			ref.Bind(fallBlock)
			return ref
		}
		ms := b.mergeStates[offset]
		if ms == nil {
			ms = b.newForwardMerge(offset)
		}
		b.mergeFrameInto(ms)
		if offset == fallOffset {
			b.consumedFallthrough = true
		}
		return b.refFor(offset)
	}

	trueRef := edgeRef(trueOffset)
	falseRef := edgeRef(falseOffset)

	branch := b.graph.NewNode(op, ir.ReprNone,
		ir.BranchData{IfTrue: trueRef, IfFalse: falseRef, Compare: cmp, Root: root}, inputs...)
	branching.SetControl(branch)

	if fallBlock != nil {
		b.currentBlock = fallBlock
		return Done()
	}
	b.currentBlock = nil
	return DoneWithAbort()
}

func (b *GraphBuilder) visitJumpLoop() ReduceResult {
	target := b.iterator.JumpTarget()
	if b.peeling && target == b.peeledHeader {
		// End of the peeled iteration: rewind and build the loop proper.
		// The open block becomes the loop entry edge.
		b.endPeel()
		return Done()
	}
	ms := b.loopStates[target]
	if ms == nil {
		panic(fmt.Sprintf("maglev: back edge to %d without a loop merge", target))
	}
	b.mergeLoop(ms)
	b.currentBlock = nil
	return DoneWithAbort()
}

func (b *GraphBuilder) visitReturn() ReduceResult {
	value := b.GetTaggedValue(b.frame.Accumulator())
	if b.parent != nil {
		// Inlined: leave the block open for the caller to resume in.
		b.returnValues = append(b.returnValues, value)
		b.returnBlocks = append(b.returnBlocks, b.currentBlock)
		b.returnAspects = append(b.returnAspects, b.aspects.Clone())
		b.currentBlock = nil
		return DoneWithAbort()
	}
	ret := b.graph.NewNode(ir.OpReturn, ir.ReprNone, nil, value)
	b.currentBlock.SetControl(ret)
	b.currentBlock = nil
	return DoneWithAbort()
}

func (b *GraphBuilder) visitThrow() ReduceResult {
	exception := b.GetTaggedValue(b.frame.Accumulator())
	if h := b.fn.Bytecode.HandlerFor(b.iterator.Offset()); h != nil {
		// The handler receives the exception in the accumulator.
		b.frame.SetAccumulator(exception)
		ms := b.mergeStates[h.Handler]
		if ms == nil {
			ms = b.newForwardMerge(h.Handler)
		}
		b.mergeFrameInto(ms)
		jump := b.graph.NewNode(ir.OpJump, ir.ReprNone, ir.JumpData{Target: b.refFor(h.Handler)})
		b.currentBlock.SetControl(jump)
		b.currentBlock = nil
		return DoneWithAbort()
	}
	throw := b.graph.NewNode(ir.OpThrow, ir.ReprNone, nil, exception)
	b.currentBlock.SetControl(throw)
	b.currentBlock = nil
	return DoneWithAbort()
}

// Constant helpers for arithmetic folding.

func int32ConstantOf(n *ir.Node) (int32, bool) {
	if n.Op() == ir.OpInt32Constant {
		return ir.Cast[ir.Int32Data](n).Value, true
	}
	return 0, false
}

func float64ConstantOf(n *ir.Node) (float64, bool) {
	if n.Op() == ir.OpFloat64Constant {
		return ir.Cast[ir.Float64Data](n).Value, true
	}
	return 0, false
}

// foldInt32Arith folds wrapping int32 arithmetic. Division and modulus
// are left to runtime so the zero-divisor cases keep JS semantics.
func foldInt32Arith(op bytecode.Opcode, l, r int32) (int32, bool) {
	switch op {
	case bytecode.Add:
		return l + r, true
	case bytecode.Sub:
		return l - r, true
	case bytecode.Mul:
		return l * r, true
	}
	return 0, false
}

func foldFloat64Arith(op bytecode.Opcode, l, r float64) float64 {
	switch op {
	case bytecode.Add:
		return l + r
	case bytecode.Sub:
		return l - r
	case bytecode.Mul:
		return l * r
	case bytecode.Div:
		return l / r
	case bytecode.Mod:
		return math.Mod(l, r)
	}
	panic(fmt.Sprintf("maglev: folding non-arithmetic %s", op))
}
