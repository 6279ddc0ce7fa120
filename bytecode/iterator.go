package bytecode

import "fmt"

// Iterator walks an Array one instruction at a time. It is a plain value:
// copying an iterator gives an independent cursor, which the branch-fusion
// lookahead relies on, and SetOffset supports the loop-peeling rewind.
type Iterator struct {
	array  *Array
	offset int
}

// NewIterator returns an iterator positioned at offset 0.
func NewIterator(array *Array) Iterator {
	return Iterator{array: array}
}

// Array returns the underlying bytecode array.
func (it *Iterator) Array() *Array { return it.array }

// Offset returns the offset of the current instruction.
func (it *Iterator) Offset() int { return it.offset }

// Done reports whether the iterator has run off the end of the stream.
func (it *Iterator) Done() bool { return it.offset >= len(it.array.bytes) }

// Opcode returns the opcode at the current offset.
func (it *Iterator) Opcode() Opcode {
	return Opcode(it.array.bytes[it.offset])
}

// Advance moves to the next instruction.
func (it *Iterator) Advance() {
	it.offset += it.Opcode().Size()
}

// NextOffset returns the offset of the instruction after the current one.
func (it *Iterator) NextOffset() int {
	return it.offset + it.Opcode().Size()
}

// SetOffset repositions the iterator; used by the loop-peeling rewind.
func (it *Iterator) SetOffset(offset int) { it.offset = offset }

// operandStart returns the byte position of operand i.
func (it *Iterator) operandStart(i int) int {
	kinds := it.Opcode().Operands()
	if i >= len(kinds) {
		panic(fmt.Sprintf("bytecode: %s has no operand %d", it.Opcode(), i))
	}
	pos := it.offset + 1
	for j := 0; j < i; j++ {
		pos += operandSizes[kinds[j]]
	}
	return pos
}

// RegisterOperand decodes operand i as a register.
func (it *Iterator) RegisterOperand(i int) Register {
	return Register(int8(it.array.bytes[it.operandStart(i)]))
}

// ImmediateOperand decodes operand i as a signed immediate (8 or 16 bit).
func (it *Iterator) ImmediateOperand(i int) int {
	kinds := it.Opcode().Operands()
	pos := it.operandStart(i)
	switch kinds[i] {
	case OperandImm8:
		return int(int8(it.array.bytes[pos]))
	case OperandImm16:
		return int(int16(uint16(it.array.bytes[pos])<<8 | uint16(it.array.bytes[pos+1])))
	default:
		panic(fmt.Sprintf("bytecode: operand %d of %s is not an immediate", i, it.Opcode()))
	}
}

// IndexOperand decodes operand i as an unsigned index.
func (it *Iterator) IndexOperand(i int) int {
	kinds := it.Opcode().Operands()
	pos := it.operandStart(i)
	switch kinds[i] {
	case OperandIdx8:
		return int(it.array.bytes[pos])
	case OperandIdx16:
		return int(uint16(it.array.bytes[pos])<<8 | uint16(it.array.bytes[pos+1]))
	default:
		panic(fmt.Sprintf("bytecode: operand %d of %s is not an index", i, it.Opcode()))
	}
}

// JumpTarget returns the absolute offset targeted by the current jump.
func (it *Iterator) JumpTarget() int {
	if !it.Opcode().IsJump() {
		panic(fmt.Sprintf("bytecode: JumpTarget on non-jump %s", it.Opcode()))
	}
	return it.offset + it.ImmediateOperand(0)
}
