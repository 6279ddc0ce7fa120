package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders the array as human-readable text, one instruction
// per line, with resolved jump targets.
func Disassemble(array *Array) string {
	var sb strings.Builder
	for it := NewIterator(array); !it.Done(); it.Advance() {
		sb.WriteString(DisassembleAt(&it))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DisassembleAt renders the single instruction under the iterator.
func DisassembleAt(it *Iterator) string {
	var sb strings.Builder
	op := it.Opcode()
	fmt.Fprintf(&sb, "%4d  %s", it.Offset(), op)
	for i, kind := range op.Operands() {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		switch kind {
		case OperandReg:
			sb.WriteString(it.RegisterOperand(i).String())
		case OperandImm8:
			fmt.Fprintf(&sb, "%d", it.ImmediateOperand(i))
		case OperandImm16:
			// Jump deltas read better as resolved targets.
			if op.IsJump() {
				fmt.Fprintf(&sb, "@%d", it.JumpTarget())
			} else {
				fmt.Fprintf(&sb, "%d", it.ImmediateOperand(i))
			}
		case OperandIdx8, OperandIdx16:
			fmt.Fprintf(&sb, "[%d]", it.IndexOperand(i))
		}
	}
	return sb.String()
}
