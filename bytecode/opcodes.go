package bytecode

import "fmt"

// Opcode represents a bytecode instruction for the register machine.
// The machine has an implicit accumulator plus numbered registers; most
// instructions read or write the accumulator. Opcodes are organized into
// ranges by category.
type Opcode byte

const (
	// ========================================================================
	// Misc (0x00-0x0F)
	// ========================================================================

	Nop Opcode = 0x00 // No operation

	// ========================================================================
	// Accumulator loads (0x10-0x1F)
	// ========================================================================

	LdaZero      Opcode = 0x10 // acc <- Smi 0
	LdaSmi       Opcode = 0x11 // acc <- Smi immediate: LdaSmi <imm:i8>
	LdaConstant  Opcode = 0x12 // acc <- constant pool entry: LdaConstant <idx:u16>
	LdaUndefined Opcode = 0x13 // acc <- undefined
	LdaNull      Opcode = 0x14 // acc <- null
	LdaTrue      Opcode = 0x15 // acc <- true
	LdaFalse     Opcode = 0x16 // acc <- false

	// ========================================================================
	// Register traffic (0x20-0x2F)
	// ========================================================================

	Ldar Opcode = 0x20 // acc <- register: Ldar <src:reg>
	Star Opcode = 0x21 // register <- acc: Star <dst:reg>
	Mov  Opcode = 0x22 // register <- register: Mov <src:reg> <dst:reg>

	// ========================================================================
	// Binary / unary arithmetic with feedback (0x30-0x3F)
	// ========================================================================

	Add    Opcode = 0x30 // acc <- reg + acc: Add <lhs:reg> <slot:u8>
	Sub    Opcode = 0x31 // acc <- reg - acc: Sub <lhs:reg> <slot:u8>
	Mul    Opcode = 0x32 // acc <- reg * acc: Mul <lhs:reg> <slot:u8>
	Div    Opcode = 0x33 // acc <- reg / acc: Div <lhs:reg> <slot:u8>
	Mod    Opcode = 0x34 // acc <- reg % acc: Mod <lhs:reg> <slot:u8>
	Inc    Opcode = 0x35 // acc <- acc + 1: Inc <slot:u8>
	Dec    Opcode = 0x36 // acc <- acc - 1: Dec <slot:u8>
	Negate Opcode = 0x37 // acc <- -acc: Negate <slot:u8>

	// ========================================================================
	// Boolean ops (0x40-0x4F)
	// ========================================================================

	LogicalNot          Opcode = 0x40 // acc <- !ToBoolean(acc)
	ToBooleanLogicalNot Opcode = 0x41 // same semantics, distinct feedback-free form

	// ========================================================================
	// Tests: leave a boolean in the accumulator (0x50-0x5F)
	// ========================================================================

	TestEqual              Opcode = 0x50 // acc <- reg == acc: TestEqual <lhs:reg> <slot:u8>
	TestEqualStrict        Opcode = 0x51
	TestLessThan           Opcode = 0x52
	TestLessThanOrEqual    Opcode = 0x53
	TestGreaterThan        Opcode = 0x54
	TestGreaterThanOrEqual Opcode = 0x55
	TestUndetectable       Opcode = 0x56 // acc <- acc is null/undefined
	TestTypeOf             Opcode = 0x57 // acc <- typeof acc matches literal: TestTypeOf <literal:u8>

	// ========================================================================
	// Property access with feedback (0x60-0x6F)
	// ========================================================================

	GetNamedProperty Opcode = 0x60 // acc <- reg[name]: GetNamedProperty <obj:reg> <name:u16> <slot:u8>
	SetNamedProperty Opcode = 0x61 // reg[name] <- acc: SetNamedProperty <obj:reg> <name:u16> <slot:u8>
	GetKeyedProperty Opcode = 0x62 // acc <- reg[acc]: GetKeyedProperty <obj:reg> <slot:u8>
	SetKeyedProperty Opcode = 0x63 // reg[key] <- acc: SetKeyedProperty <obj:reg> <key:reg> <slot:u8>
	LdaGlobal        Opcode = 0x64 // acc <- global[name]: LdaGlobal <name:u16> <slot:u8>
	StaGlobal        Opcode = 0x65 // global[name] <- acc: StaGlobal <name:u16> <slot:u8>

	// ========================================================================
	// Calls (0x70-0x7F)
	// ========================================================================

	CallProperty          Opcode = 0x70 // acc <- call reg(args): CallProperty <callee:reg> <first:reg> <count:u8> <slot:u8>
	CallUndefinedReceiver Opcode = 0x71 // like CallProperty with undefined receiver
	Construct             Opcode = 0x72 // acc <- new callee(args): Construct <callee:reg> <first:reg> <count:u8> <slot:u8>
	CreateClosure         Opcode = 0x73 // acc <- closure from pool: CreateClosure <idx:u16> <slot:u8>
	CreateObjectLiteral   Opcode = 0x74 // acc <- literal from boilerplate: CreateObjectLiteral <idx:u16> <slot:u8>

	// ========================================================================
	// Jumps (0x80-0x8F); offsets are signed deltas from the jump's own offset
	// ========================================================================

	Jump                 Opcode = 0x80 // Jump <delta:i16>
	JumpIfTrue           Opcode = 0x81 // branch if acc is true (no coercion)
	JumpIfFalse          Opcode = 0x82
	JumpIfNull           Opcode = 0x83
	JumpIfUndefined      Opcode = 0x84
	JumpIfToBooleanTrue  Opcode = 0x85 // branch if ToBoolean(acc)
	JumpIfToBooleanFalse Opcode = 0x86
	JumpLoop             Opcode = 0x87 // backward jump to loop header: JumpLoop <delta:i16> <depth:u8>

	// ========================================================================
	// Terminators (0x90-0x9F)
	// ========================================================================

	Return Opcode = 0x90 // return acc
	Throw  Opcode = 0x91 // throw acc
)

// OperandKind describes one fixed-width operand of an instruction.
type OperandKind byte

const (
	OperandImm8 OperandKind = iota // signed 8-bit immediate
	OperandImm16                   // signed 16-bit immediate (jump delta)
	OperandReg                     // register index (signed 8-bit; parameters negative)
	OperandIdx8                    // unsigned 8-bit index (feedback slot, count)
	OperandIdx16                   // unsigned 16-bit index (constant pool, name)
)

// operandSizes maps each kind to its encoded width in bytes.
var operandSizes = [...]int{
	OperandImm8:  1,
	OperandImm16: 2,
	OperandReg:   1,
	OperandIdx8:  1,
	OperandIdx16: 2,
}

type opcodeInfo struct {
	name     string
	operands []OperandKind
}

var opcodeTable = map[Opcode]opcodeInfo{
	Nop: {"Nop", nil},

	LdaZero:      {"LdaZero", nil},
	LdaSmi:       {"LdaSmi", []OperandKind{OperandImm8}},
	LdaConstant:  {"LdaConstant", []OperandKind{OperandIdx16}},
	LdaUndefined: {"LdaUndefined", nil},
	LdaNull:      {"LdaNull", nil},
	LdaTrue:      {"LdaTrue", nil},
	LdaFalse:     {"LdaFalse", nil},

	Ldar: {"Ldar", []OperandKind{OperandReg}},
	Star: {"Star", []OperandKind{OperandReg}},
	Mov:  {"Mov", []OperandKind{OperandReg, OperandReg}},

	Add:    {"Add", []OperandKind{OperandReg, OperandIdx8}},
	Sub:    {"Sub", []OperandKind{OperandReg, OperandIdx8}},
	Mul:    {"Mul", []OperandKind{OperandReg, OperandIdx8}},
	Div:    {"Div", []OperandKind{OperandReg, OperandIdx8}},
	Mod:    {"Mod", []OperandKind{OperandReg, OperandIdx8}},
	Inc:    {"Inc", []OperandKind{OperandIdx8}},
	Dec:    {"Dec", []OperandKind{OperandIdx8}},
	Negate: {"Negate", []OperandKind{OperandIdx8}},

	LogicalNot:          {"LogicalNot", nil},
	ToBooleanLogicalNot: {"ToBooleanLogicalNot", nil},

	TestEqual:              {"TestEqual", []OperandKind{OperandReg, OperandIdx8}},
	TestEqualStrict:        {"TestEqualStrict", []OperandKind{OperandReg, OperandIdx8}},
	TestLessThan:           {"TestLessThan", []OperandKind{OperandReg, OperandIdx8}},
	TestLessThanOrEqual:    {"TestLessThanOrEqual", []OperandKind{OperandReg, OperandIdx8}},
	TestGreaterThan:        {"TestGreaterThan", []OperandKind{OperandReg, OperandIdx8}},
	TestGreaterThanOrEqual: {"TestGreaterThanOrEqual", []OperandKind{OperandReg, OperandIdx8}},
	TestUndetectable:       {"TestUndetectable", nil},
	TestTypeOf:             {"TestTypeOf", []OperandKind{OperandIdx8}},

	GetNamedProperty: {"GetNamedProperty", []OperandKind{OperandReg, OperandIdx16, OperandIdx8}},
	SetNamedProperty: {"SetNamedProperty", []OperandKind{OperandReg, OperandIdx16, OperandIdx8}},
	GetKeyedProperty: {"GetKeyedProperty", []OperandKind{OperandReg, OperandIdx8}},
	SetKeyedProperty: {"SetKeyedProperty", []OperandKind{OperandReg, OperandReg, OperandIdx8}},
	LdaGlobal:        {"LdaGlobal", []OperandKind{OperandIdx16, OperandIdx8}},
	StaGlobal:        {"StaGlobal", []OperandKind{OperandIdx16, OperandIdx8}},

	CallProperty:          {"CallProperty", []OperandKind{OperandReg, OperandReg, OperandIdx8, OperandIdx8}},
	CallUndefinedReceiver: {"CallUndefinedReceiver", []OperandKind{OperandReg, OperandReg, OperandIdx8, OperandIdx8}},
	Construct:             {"Construct", []OperandKind{OperandReg, OperandReg, OperandIdx8, OperandIdx8}},
	CreateClosure:         {"CreateClosure", []OperandKind{OperandIdx16, OperandIdx8}},
	CreateObjectLiteral:   {"CreateObjectLiteral", []OperandKind{OperandIdx16, OperandIdx8}},

	Jump:                 {"Jump", []OperandKind{OperandImm16}},
	JumpIfTrue:           {"JumpIfTrue", []OperandKind{OperandImm16}},
	JumpIfFalse:          {"JumpIfFalse", []OperandKind{OperandImm16}},
	JumpIfNull:           {"JumpIfNull", []OperandKind{OperandImm16}},
	JumpIfUndefined:      {"JumpIfUndefined", []OperandKind{OperandImm16}},
	JumpIfToBooleanTrue:  {"JumpIfToBooleanTrue", []OperandKind{OperandImm16}},
	JumpIfToBooleanFalse: {"JumpIfToBooleanFalse", []OperandKind{OperandImm16}},
	JumpLoop:             {"JumpLoop", []OperandKind{OperandImm16, OperandIdx8}},

	Return: {"Return", nil},
	Throw:  {"Throw", nil},
}

// String returns the mnemonic for op.
func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("Opcode(0x%02x)", byte(op))
}

// Operands returns the operand kinds for op.
func (op Opcode) Operands() []OperandKind {
	return opcodeTable[op].operands
}

// Size returns the encoded size of the instruction in bytes, including
// the opcode byte.
func (op Opcode) Size() int {
	size := 1
	for _, kind := range opcodeTable[op].operands {
		size += operandSizes[kind]
	}
	return size
}

// IsJump reports whether op is any jump, conditional or not.
func (op Opcode) IsJump() bool {
	return op >= Jump && op <= JumpLoop
}

// IsConditionalJump reports whether op branches on the accumulator.
func (op Opcode) IsConditionalJump() bool {
	return op >= JumpIfTrue && op <= JumpIfToBooleanFalse
}

// IsTest reports whether op leaves a boolean test result in the accumulator.
func (op Opcode) IsTest() bool {
	return op >= TestEqual && op <= TestTypeOf
}

// IsTerminator reports whether op unconditionally ends control flow at
// this offset (returns, throws and unconditional jumps).
func (op Opcode) IsTerminator() bool {
	return op == Return || op == Throw || op == Jump || op == JumpLoop
}

// WritesAccumulator reports whether op stores a new value into the
// accumulator.
func (op Opcode) WritesAccumulator() bool {
	switch op {
	case Nop, Star, Mov, SetNamedProperty, SetKeyedProperty, StaGlobal,
		Jump, JumpIfTrue, JumpIfFalse, JumpIfNull, JumpIfUndefined,
		JumpIfToBooleanTrue, JumpIfToBooleanFalse, JumpLoop, Return, Throw:
		return false
	}
	return true
}

// ReadsAccumulator reports whether op consumes the accumulator value.
func (op Opcode) ReadsAccumulator() bool {
	switch op {
	case Nop, LdaZero, LdaSmi, LdaConstant, LdaUndefined, LdaNull, LdaTrue,
		LdaFalse, Ldar, Mov, LdaGlobal, CreateClosure, CreateObjectLiteral,
		Jump, JumpLoop, GetNamedProperty, CallProperty, CallUndefinedReceiver,
		Construct:
		return false
	}
	return true
}
