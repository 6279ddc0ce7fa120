package ir

// DeoptFrameType distinguishes the resumption contexts a deopt frame can
// describe.
type DeoptFrameType uint8

const (
	// InterpretedFrame resumes plain interpretation at a bytecode offset.
	InterpretedFrame DeoptFrameType = iota
	// BuiltinContinuationFrame resumes inside a builtin's continuation
	// stub; the accumulator is overwritten by the continuation.
	BuiltinContinuationFrame
	// ConstructStubFrame reconstructs the implicit receiver during
	// construction.
	ConstructStubFrame
)

// DeoptFrame is the snapshot needed to reconstruct interpreter state at a
// bailout point. Frames nest through Parent when inlined functions or
// builtin continuations are on the virtual stack; the outermost frame has
// a nil parent.
type DeoptFrame struct {
	Type   DeoptFrameType
	Parent *DeoptFrame

	// BytecodeOffset is the offset to resume at (interpreted frames).
	BytecodeOffset int

	// Registers holds one value per live local register; dead registers
	// are nil and are not materialized at deopt time.
	Registers []*Node

	// Accumulator is the accumulator value, or nil if dead at the
	// resumption point.
	Accumulator *Node

	// Builtin names the continuation for BuiltinContinuationFrame.
	Builtin string

	// Receiver is the implicit receiver for ConstructStubFrame.
	Receiver *Node
}

// MarkAccumulatorDead drops the accumulator from this frame.
func (f *DeoptFrame) MarkAccumulatorDead() { f.Accumulator = nil }

// Depth returns the number of frames in the parent chain, counting this
// one.
func (f *DeoptFrame) Depth() int {
	d := 0
	for cur := f; cur != nil; cur = cur.Parent {
		d++
	}
	return d
}
