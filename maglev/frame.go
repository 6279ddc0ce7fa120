package maglev

import (
	"fmt"

	"github.com/ketrewq/v8/bytecode"
	"github.com/ketrewq/v8/ir"
)

// accumulatorRegister is the phi register index used for the accumulator.
// Real register indices fit in int16, so this can never collide.
const accumulatorRegister = 1 << 15

// InterpreterFrameState models the abstract register file at the current
// bytecode position: one value node per local and parameter, plus the
// accumulator, plus the known-node-aspects side table.
type InterpreterFrameState struct {
	parameters  []*ir.Node
	registers   []*ir.Node
	accumulator *ir.Node
	aspects     *KnownNodeAspects
}

// NewInterpreterFrameState creates a frame for array with the given
// parameter values. Missing parameters and all locals start as undefined.
func NewInterpreterFrameState(g *ir.Graph, array *bytecode.Array, params []*ir.Node, aspects *KnownNodeAspects) *InterpreterFrameState {
	f := &InterpreterFrameState{
		parameters: make([]*ir.Node, array.ParameterCount()),
		registers:  make([]*ir.Node, array.RegisterCount()),
		aspects:    aspects,
	}
	undef := g.RootConstant(ir.RootUndefined)
	for i := range f.parameters {
		if i < len(params) && params[i] != nil {
			f.parameters[i] = params[i]
		} else {
			f.parameters[i] = undef
		}
	}
	for i := range f.registers {
		f.registers[i] = undef
	}
	f.accumulator = undef
	return f
}

// Get returns the value of register r.
func (f *InterpreterFrameState) Get(r bytecode.Register) *ir.Node {
	if r.IsParameter() {
		return f.parameters[r.ParameterIndex()]
	}
	if int(r) >= len(f.registers) {
		panic(fmt.Sprintf("maglev: register %s out of frame (size %d)", r, len(f.registers)))
	}
	return f.registers[r]
}

// Set stores a value into register r.
func (f *InterpreterFrameState) Set(r bytecode.Register, n *ir.Node) {
	if r.IsParameter() {
		f.parameters[r.ParameterIndex()] = n
		return
	}
	if int(r) >= len(f.registers) {
		panic(fmt.Sprintf("maglev: register %s out of frame (size %d)", r, len(f.registers)))
	}
	f.registers[r] = n
}

// Accumulator returns the current accumulator value.
func (f *InterpreterFrameState) Accumulator() *ir.Node { return f.accumulator }

// SetAccumulator stores a new accumulator value.
func (f *InterpreterFrameState) SetAccumulator(n *ir.Node) { f.accumulator = n }

// Aspects returns the frame's known-node-aspects table.
func (f *InterpreterFrameState) Aspects() *KnownNodeAspects { return f.aspects }

// RegisterCount returns the number of locals in the frame.
func (f *InterpreterFrameState) RegisterCount() int { return len(f.registers) }
