package bytecode

// LivenessState is the set of live locals (plus the accumulator) at one
// bytecode offset. Parameters are not tracked; they are always considered
// live.
type LivenessState struct {
	regs        []uint64
	accumulator bool
}

func newLivenessState(registerCount int) *LivenessState {
	return &LivenessState{regs: make([]uint64, (registerCount+63)/64)}
}

// RegisterIsLive reports whether local register r is live.
func (s *LivenessState) RegisterIsLive(r Register) bool {
	if r.IsParameter() {
		return true
	}
	return s.regs[int(r)/64]&(1<<(uint(r)%64)) != 0
}

// AccumulatorIsLive reports whether the accumulator is live.
func (s *LivenessState) AccumulatorIsLive() bool { return s.accumulator }

func (s *LivenessState) markRegister(r Register) {
	if r.IsParameter() {
		return
	}
	s.regs[int(r)/64] |= 1 << (uint(r) % 64)
}

func (s *LivenessState) clearRegister(r Register) {
	if r.IsParameter() {
		return
	}
	s.regs[int(r)/64] &^= 1 << (uint(r) % 64)
}

// union merges other into s and reports whether s changed.
func (s *LivenessState) union(other *LivenessState) bool {
	changed := false
	for i, w := range other.regs {
		if s.regs[i]|w != s.regs[i] {
			s.regs[i] |= w
			changed = true
		}
	}
	if other.accumulator && !s.accumulator {
		s.accumulator = true
		changed = true
	}
	return changed
}

func (s *LivenessState) clone() *LivenessState {
	c := &LivenessState{regs: make([]uint64, len(s.regs)), accumulator: s.accumulator}
	copy(c.regs, s.regs)
	return c
}

// Liveness holds the in-state for every instruction offset of an array,
// computed by a backward dataflow fixpoint. Merge points consult it to
// avoid building Phis for dead registers, and deopt frames use it to drop
// dead values.
type Liveness struct {
	array *Array
	in    map[int]*LivenessState
}

// ComputeLiveness runs the backward pass over the array. The fixpoint
// iterates until loop back-edges converge.
func ComputeLiveness(array *Array) *Liveness {
	l := &Liveness{array: array, in: make(map[int]*LivenessState)}

	// Collect instruction start offsets in order.
	var offsets []int
	for it := NewIterator(array); !it.Done(); it.Advance() {
		offsets = append(offsets, it.Offset())
		l.in[it.Offset()] = newLivenessState(array.RegisterCount())
	}

	changed := true
	for changed {
		changed = false
		for i := len(offsets) - 1; i >= 0; i-- {
			it := NewIterator(array)
			it.SetOffset(offsets[i])
			out := newLivenessState(array.RegisterCount())
			op := it.Opcode()

			// Out-state: union of successor in-states.
			if !op.IsTerminator() {
				if next, ok := l.in[it.NextOffset()]; ok {
					out.union(next)
				}
			}
			if op.IsJump() {
				if target, ok := l.in[it.JumpTarget()]; ok {
					out.union(target)
				}
			}
			if h := array.HandlerFor(it.Offset()); h != nil {
				if handler, ok := l.in[h.Handler]; ok {
					out.union(handler)
				}
			}

			in := out.clone()
			applyTransfer(&it, in)
			if l.in[it.Offset()].union(in) {
				changed = true
			}
		}
	}
	return l
}

// applyTransfer turns the out-state into the in-state for one instruction:
// kill writes, then gen reads.
func applyTransfer(it *Iterator, s *LivenessState) {
	op := it.Opcode()

	if op.WritesAccumulator() {
		s.accumulator = false
	}
	switch op {
	case Star:
		s.clearRegister(it.RegisterOperand(0))
	case Mov:
		s.clearRegister(it.RegisterOperand(1))
	}

	if op.ReadsAccumulator() {
		s.accumulator = true
	}
	switch op {
	case Ldar, Add, Sub, Mul, Div, Mod,
		TestEqual, TestEqualStrict, TestLessThan, TestLessThanOrEqual,
		TestGreaterThan, TestGreaterThanOrEqual,
		GetNamedProperty, SetNamedProperty, GetKeyedProperty:
		s.markRegister(it.RegisterOperand(0))
	case Mov:
		s.markRegister(it.RegisterOperand(0))
	case SetKeyedProperty:
		s.markRegister(it.RegisterOperand(0))
		s.markRegister(it.RegisterOperand(1))
	case CallProperty, CallUndefinedReceiver, Construct:
		s.markRegister(it.RegisterOperand(0))
		first := it.RegisterOperand(1)
		count := it.IndexOperand(2)
		for i := 0; i < count; i++ {
			s.markRegister(first + Register(i))
		}
	}
}

// InStateAt returns the liveness in-state at the given instruction offset.
// Offsets that are not instruction starts return a conservative all-live
// answer via nil (callers treat nil as everything-live).
func (l *Liveness) InStateAt(offset int) *LivenessState {
	return l.in[offset]
}
