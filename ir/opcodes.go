// Package ir defines the typed intermediate representation the graph
// builder produces: arena-owned value and control nodes organized into
// basic blocks. Node kinds form a closed enum; downcasts to per-kind
// payloads go through TryCast, never through unchecked type assertions.
package ir

// Opcode enumerates every node kind. Switches over Opcode are expected to
// be exhaustive for the category they handle.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Constants
	OpSmiConstant
	OpInt32Constant
	OpFloat64Constant
	OpRootConstant
	OpConstant // heap constant (string, function info, boilerplate)

	// Representation conversions
	OpCheckedSmiUntag // tagged -> int32, deopts on non-Smi
	OpUnsafeSmiUntag  // tagged -> int32, statically known Smi
	OpSmiTag          // int32 -> tagged Smi, deopts on overflow
	OpInt32ToNumber   // int32 -> tagged (Smi or heap number)
	OpFloat64ToTagged
	OpHoleyFloat64ToTagged
	OpCheckedNumberToInt32 // tagged number -> int32, deopts if not exact
	OpTruncateNumberToInt32
	OpChangeInt32ToFloat64
	OpCheckedTruncateFloat64ToInt32
	OpCheckedNumberToFloat64        // tagged -> float64, deopts on non-number
	OpCheckedNumberOrOddballToFloat64 // widens oddballs to NaN-bearing floats
	OpHoleyFloat64ToFloat64OrNaN

	// Checks
	OpCheckMaps
	OpCheckMapsWithMigration
	OpCheckSmi
	OpCheckNumber
	OpCheckString
	OpCheckHeapObject

	// Property and global access
	OpLoadField
	OpStoreField
	OpLoadElement
	OpStoreElement
	OpLoadGlobal
	OpStoreGlobal
	OpLoadNamedGeneric
	OpSetNamedGeneric
	OpLoadMegamorphic
	OpPolymorphicLoad

	// Object allocation
	OpAllocateObject
	OpCreateClosure

	// Arithmetic
	OpInt32Add
	OpInt32Subtract
	OpInt32Multiply
	OpInt32Divide
	OpInt32Modulus
	OpInt32Negate
	OpFloat64Add
	OpFloat64Subtract
	OpFloat64Multiply
	OpFloat64Divide
	OpFloat64Modulus
	OpFloat64Negate
	OpGenericAdd
	OpGenericSubtract
	OpGenericMultiply
	OpGenericDivide
	OpGenericModulus
	OpGenericNegate

	// Comparisons and logic
	OpInt32Compare
	OpFloat64Compare
	OpTaggedEqual
	OpGenericCompare
	OpToBoolean
	OpLogicalNot
	OpTestUndetectable
	OpTestTypeOf

	// Calls
	OpCall        // generic call through the megamorphic path
	OpCallKnown   // speculative direct call to a known target
	OpCallBuiltin
	OpConstruct

	// Frame values
	OpParameter
	OpPhi

	// Control nodes
	OpJump
	OpJumpLoop
	OpBranch
	OpBranchIfInt32Compare
	OpBranchIfFloat64Compare
	OpBranchIfReferenceEqual
	OpBranchIfToBooleanTrue
	OpBranchIfRootConstant
	OpSwitch
	OpReturn
	OpThrow
	OpDeopt // unconditional deoptimization
	OpAbort

	opcodeCount
)

var opcodeNames = [...]string{
	OpInvalid: "Invalid",

	OpSmiConstant:     "SmiConstant",
	OpInt32Constant:   "Int32Constant",
	OpFloat64Constant: "Float64Constant",
	OpRootConstant:    "RootConstant",
	OpConstant:        "Constant",

	OpCheckedSmiUntag:                 "CheckedSmiUntag",
	OpUnsafeSmiUntag:                  "UnsafeSmiUntag",
	OpSmiTag:                          "SmiTag",
	OpInt32ToNumber:                   "Int32ToNumber",
	OpFloat64ToTagged:                 "Float64ToTagged",
	OpHoleyFloat64ToTagged:            "HoleyFloat64ToTagged",
	OpCheckedNumberToInt32:            "CheckedNumberToInt32",
	OpTruncateNumberToInt32:           "TruncateNumberToInt32",
	OpChangeInt32ToFloat64:            "ChangeInt32ToFloat64",
	OpCheckedTruncateFloat64ToInt32:   "CheckedTruncateFloat64ToInt32",
	OpCheckedNumberToFloat64:          "CheckedNumberToFloat64",
	OpCheckedNumberOrOddballToFloat64: "CheckedNumberOrOddballToFloat64",
	OpHoleyFloat64ToFloat64OrNaN:      "HoleyFloat64ToFloat64OrNaN",

	OpCheckMaps:              "CheckMaps",
	OpCheckMapsWithMigration: "CheckMapsWithMigration",
	OpCheckSmi:               "CheckSmi",
	OpCheckNumber:            "CheckNumber",
	OpCheckString:            "CheckString",
	OpCheckHeapObject:        "CheckHeapObject",

	OpLoadField:        "LoadField",
	OpStoreField:       "StoreField",
	OpLoadElement:      "LoadElement",
	OpStoreElement:     "StoreElement",
	OpLoadGlobal:       "LoadGlobal",
	OpStoreGlobal:      "StoreGlobal",
	OpLoadNamedGeneric: "LoadNamedGeneric",
	OpSetNamedGeneric:  "SetNamedGeneric",
	OpLoadMegamorphic:  "LoadMegamorphic",
	OpPolymorphicLoad:  "PolymorphicLoad",

	OpAllocateObject: "AllocateObject",
	OpCreateClosure:  "CreateClosure",

	OpInt32Add:        "Int32Add",
	OpInt32Subtract:   "Int32Subtract",
	OpInt32Multiply:   "Int32Multiply",
	OpInt32Divide:     "Int32Divide",
	OpInt32Modulus:    "Int32Modulus",
	OpInt32Negate:     "Int32Negate",
	OpFloat64Add:      "Float64Add",
	OpFloat64Subtract: "Float64Subtract",
	OpFloat64Multiply: "Float64Multiply",
	OpFloat64Divide:   "Float64Divide",
	OpFloat64Modulus:  "Float64Modulus",
	OpFloat64Negate:   "Float64Negate",
	OpGenericAdd:      "GenericAdd",
	OpGenericSubtract: "GenericSubtract",
	OpGenericMultiply: "GenericMultiply",
	OpGenericDivide:   "GenericDivide",
	OpGenericModulus:  "GenericModulus",
	OpGenericNegate:   "GenericNegate",

	OpInt32Compare:     "Int32Compare",
	OpFloat64Compare:   "Float64Compare",
	OpTaggedEqual:      "TaggedEqual",
	OpGenericCompare:   "GenericCompare",
	OpToBoolean:        "ToBoolean",
	OpLogicalNot:       "LogicalNot",
	OpTestUndetectable: "TestUndetectable",
	OpTestTypeOf:       "TestTypeOf",

	OpCall:        "Call",
	OpCallKnown:   "CallKnown",
	OpCallBuiltin: "CallBuiltin",
	OpConstruct:   "Construct",

	OpParameter: "Parameter",
	OpPhi:       "Phi",

	OpJump:                   "Jump",
	OpJumpLoop:               "JumpLoop",
	OpBranch:                 "Branch",
	OpBranchIfInt32Compare:   "BranchIfInt32Compare",
	OpBranchIfFloat64Compare: "BranchIfFloat64Compare",
	OpBranchIfReferenceEqual: "BranchIfReferenceEqual",
	OpBranchIfToBooleanTrue:  "BranchIfToBooleanTrue",
	OpBranchIfRootConstant:   "BranchIfRootConstant",
	OpSwitch:                 "Switch",
	OpReturn:                 "Return",
	OpThrow:                  "Throw",
	OpDeopt:                  "Deopt",
	OpAbort:                  "Abort",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "Opcode(?)"
}

// IsControl reports whether op terminates a basic block.
func (op Opcode) IsControl() bool {
	return op >= OpJump && op <= OpAbort
}

// IsConstant reports whether op is a build-time constant.
func (op Opcode) IsConstant() bool {
	return op >= OpSmiConstant && op <= OpConstant
}

// IsConversion reports whether op only changes representation of its
// single input.
func (op Opcode) IsConversion() bool {
	return op >= OpCheckedSmiUntag && op <= OpHoleyFloat64ToFloat64OrNaN
}

// CanEagerDeopt reports whether op carries a guard that may bail out
// before the operation takes effect.
func (op Opcode) CanEagerDeopt() bool {
	switch op {
	case OpCheckedSmiUntag, OpSmiTag, OpCheckedNumberToInt32,
		OpCheckedTruncateFloat64ToInt32, OpCheckedNumberToFloat64,
		OpCheckedNumberOrOddballToFloat64,
		OpCheckMaps, OpCheckMapsWithMigration, OpCheckSmi, OpCheckNumber,
		OpCheckString, OpCheckHeapObject, OpPolymorphicLoad, OpDeopt:
		return true
	}
	return false
}

// CanLazyDeopt reports whether op may need to resume in the interpreter
// after completing (calls and generic operations that can re-enter user
// code).
func (op Opcode) CanLazyDeopt() bool {
	switch op {
	case OpCall, OpCallKnown, OpCallBuiltin, OpConstruct,
		OpGenericAdd, OpGenericSubtract, OpGenericMultiply, OpGenericDivide,
		OpGenericModulus, OpGenericNegate, OpGenericCompare,
		OpLoadNamedGeneric, OpSetNamedGeneric, OpLoadGlobal, OpStoreGlobal,
		OpLoadMegamorphic:
		return true
	}
	return false
}

// HasSideEffects reports whether op may mutate heap state or call user
// code; known-node-aspects caches for unstable maps are dropped after
// such nodes.
func (op Opcode) HasSideEffects() bool {
	switch op {
	case OpStoreField, OpStoreElement, OpStoreGlobal, OpSetNamedGeneric,
		OpCall, OpCallKnown, OpCallBuiltin, OpConstruct,
		OpGenericAdd, OpGenericSubtract, OpGenericMultiply, OpGenericDivide,
		OpGenericModulus, OpGenericNegate, OpGenericCompare,
		OpLoadNamedGeneric, OpLoadGlobal, OpLoadMegamorphic:
		return true
	}
	return false
}
