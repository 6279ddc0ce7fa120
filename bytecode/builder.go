package bytecode

import "fmt"

// Label marks a jump target during assembly. Forward labels collect patch
// sites until Bind fixes their offset; backward jumps (JumpLoop) bind the
// label first and emit the delta directly.
type Label struct {
	offset  int
	bound   bool
	patches []int // offsets of i16 delta operands waiting for the bind
}

// Builder assembles a bytecode Array. It follows the usual two-step label
// discipline: EmitJump records a patch site for unbound labels, Bind
// resolves them.
type Builder struct {
	bytes          []byte
	constants      []any
	parameterCount int
	registerCount  int
	handlers       []HandlerEntry
}

// NewBuilder creates a builder for a function with the given frame shape.
// parameterCount includes the receiver.
func NewBuilder(parameterCount, registerCount int) *Builder {
	return &Builder{
		parameterCount: parameterCount,
		registerCount:  registerCount,
	}
}

// Offset returns the current write position.
func (b *Builder) Offset() int { return len(b.bytes) }

// AddConstant appends v to the constant pool and returns its index.
func (b *Builder) AddConstant(v any) int {
	b.constants = append(b.constants, v)
	return len(b.constants) - 1
}

// AddHandler records an exception handler range.
func (b *Builder) AddHandler(start, end, handler int) {
	b.handlers = append(b.handlers, HandlerEntry{Start: start, End: end, Handler: handler})
}

func (b *Builder) emitByte(v byte)  { b.bytes = append(b.bytes, v) }
func (b *Builder) emitInt8(v int8)  { b.bytes = append(b.bytes, byte(v)) }
func (b *Builder) emitInt16(v int16) {
	b.bytes = append(b.bytes, byte(v>>8), byte(v))
}
func (b *Builder) emitUint16(v uint16) {
	b.bytes = append(b.bytes, byte(v>>8), byte(v))
}

// Emit writes an instruction with raw integer operands matching the
// opcode's operand table.
func (b *Builder) Emit(op Opcode, operands ...int) {
	kinds := op.Operands()
	if len(operands) != len(kinds) {
		panic(fmt.Sprintf("bytecode: %s expects %d operands, got %d", op, len(kinds), len(operands)))
	}
	b.emitByte(byte(op))
	for i, kind := range kinds {
		switch kind {
		case OperandImm8, OperandReg:
			b.emitInt8(int8(operands[i]))
		case OperandIdx8:
			b.emitByte(byte(operands[i]))
		case OperandImm16:
			b.emitInt16(int16(operands[i]))
		case OperandIdx16:
			b.emitUint16(uint16(operands[i]))
		}
	}
}

// EmitReg is Emit for instructions whose first operand is a register.
func (b *Builder) EmitReg(op Opcode, r Register, rest ...int) {
	b.Emit(op, append([]int{int(r)}, rest...)...)
}

// EmitJump emits a jump to the given label. For an unbound label a zero
// delta placeholder is written and patched at Bind time.
func (b *Builder) EmitJump(op Opcode, label *Label) {
	if !op.IsJump() || op == JumpLoop {
		panic(fmt.Sprintf("bytecode: EmitJump with non-forward-jump opcode %s", op))
	}
	jumpOffset := len(b.bytes)
	b.emitByte(byte(op))
	if label.bound {
		b.emitInt16(int16(label.offset - jumpOffset))
	} else {
		label.patches = append(label.patches, len(b.bytes))
		b.emitInt16(0)
	}
}

// EmitJumpLoop emits the backward loop jump to an already-bound header
// label. depth is the loop nesting depth, used by tiering heuristics.
func (b *Builder) EmitJumpLoop(header *Label, depth int) {
	if !header.bound {
		panic("bytecode: JumpLoop target must be bound")
	}
	jumpOffset := len(b.bytes)
	b.emitByte(byte(JumpLoop))
	b.emitInt16(int16(header.offset - jumpOffset))
	b.emitByte(byte(depth))
}

// Bind fixes label at the current offset and patches all pending jumps.
func (b *Builder) Bind(label *Label) {
	if label.bound {
		panic("bytecode: label bound twice")
	}
	label.bound = true
	label.offset = len(b.bytes)
	for _, at := range label.patches {
		// The delta is relative to the jump's own offset (one byte back).
		delta := int16(label.offset - (at - 1))
		b.bytes[at] = byte(delta >> 8)
		b.bytes[at+1] = byte(delta)
	}
	label.patches = nil
}

// Build finalizes the array. The builder must not be reused afterwards.
func (b *Builder) Build() *Array {
	return &Array{
		bytes:          b.bytes,
		constants:      b.constants,
		parameterCount: b.parameterCount,
		registerCount:  b.registerCount,
		handlers:       b.handlers,
	}
}
