package bytecode

import "fmt"

// Register identifies a virtual register. Locals are numbered from zero;
// parameters use negative indices so they can share the same register file
// without knowing the local count up front.
type Register int16

// Parameter returns the register holding the i-th parameter (0 = receiver).
func Parameter(i int) Register {
	return Register(-i - 1)
}

// IsParameter reports whether r names a parameter rather than a local.
func (r Register) IsParameter() bool { return r < 0 }

// ParameterIndex returns the parameter index for a parameter register.
func (r Register) ParameterIndex() int { return int(-r) - 1 }

func (r Register) String() string {
	if r.IsParameter() {
		return fmt.Sprintf("a%d", r.ParameterIndex())
	}
	return fmt.Sprintf("r%d", int(r))
}

// HandlerEntry describes one exception handler range. Offsets in
// [Start, End) are covered; Handler is the bytecode offset of the catch
// block.
type HandlerEntry struct {
	Start   int
	End     int
	Handler int
}

// Array is an immutable compiled bytecode array: the instruction stream
// plus its constant pool and frame shape. It is the graph builder's sole
// input for one function.
type Array struct {
	bytes          []byte
	constants      []any
	parameterCount int
	registerCount  int
	handlers       []HandlerEntry
}

// Bytes returns the raw instruction stream.
func (a *Array) Bytes() []byte { return a.bytes }

// Length returns the length of the instruction stream in bytes.
func (a *Array) Length() int { return len(a.bytes) }

// ParameterCount returns the number of parameters, including the receiver.
func (a *Array) ParameterCount() int { return a.parameterCount }

// RegisterCount returns the number of local registers in the frame.
func (a *Array) RegisterCount() int { return a.registerCount }

// ConstantAt returns the constant-pool entry at index i.
func (a *Array) ConstantAt(i int) any {
	if i < 0 || i >= len(a.constants) {
		panic(fmt.Sprintf("bytecode: constant index %d out of range (pool size %d)", i, len(a.constants)))
	}
	return a.constants[i]
}

// ConstantCount returns the size of the constant pool.
func (a *Array) ConstantCount() int { return len(a.constants) }

// Handlers returns the exception handler table, ordered by start offset.
func (a *Array) Handlers() []HandlerEntry { return a.handlers }

// HandlerFor returns the innermost handler covering offset, or nil.
func (a *Array) HandlerFor(offset int) *HandlerEntry {
	var best *HandlerEntry
	for i := range a.handlers {
		h := &a.handlers[i]
		if offset >= h.Start && offset < h.End {
			if best == nil || h.Start >= best.Start {
				best = h
			}
		}
	}
	return best
}

// HasHandlers reports whether the array has any exception handlers.
// Functions with handlers are rejected by the inliner.
func (a *Array) HasHandlers() bool { return len(a.handlers) > 0 }
