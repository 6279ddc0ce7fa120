package maglev

import "github.com/ketrewq/v8/bytecode"

// Loop peeling: the first iteration of a small loop is built as straight
// line code, then the builder rewinds to the header and builds the loop
// proper. Map checks and conversions the first iteration established
// stay valid entering the loop, so the loop body re-checks less.

func (b *GraphBuilder) shouldPeelLoop(header int) bool {
	if !b.opts.LoopPeeling || b.peeling || b.alreadyPeeled[header] {
		return false
	}
	end, ok := b.loopEnds[header]
	if !ok {
		return false
	}
	return end-header <= b.opts.MaxPeeledSize
}

// startPeel enters peeling mode at a loop header. Jumps that exit the
// loop will be emitted twice, once by the peeled iteration and once by
// the loop body, so their targets' expected predecessor counts grow
// before either copy is built.
func (b *GraphBuilder) startPeel(header int) {
	end := b.loopEnds[header]
	it := bytecode.NewIterator(b.fn.Bytecode)
	it.SetOffset(header)
	for !it.Done() && it.Offset() <= end {
		op := it.Opcode()
		if op.IsJump() && op != bytecode.JumpLoop {
			if target := it.JumpTarget(); target > end {
				b.bumpPredecessor(target)
			}
		}
		if op == bytecode.Throw {
			if h := b.fn.Bytecode.HandlerFor(it.Offset()); h != nil && h.Handler > end {
				b.bumpPredecessor(h.Handler)
			}
		}
		it.Advance()
	}

	b.peeling = true
	b.peeledHeader = header
	b.peelLoopEnd = end
	b.peelDecrements = make(map[int]int)
	if b.alreadyPeeled == nil {
		b.alreadyPeeled = make(map[int]bool)
	}
}

func (b *GraphBuilder) bumpPredecessor(offset int) {
	b.predecessorCounts[offset]++
	if ms := b.mergeStates[offset]; ms != nil {
		ms.predecessorCount++
	}
}

// endPeel leaves peeling mode at the back edge of the peeled iteration
// and rewinds to the header. Bookkeeping consumed inside the peeled
// range is restored so the loop pass sees the same counts the pre-pass
// computed; merge state and refs for in-loop offsets are dropped so the
// loop pass builds fresh ones.
func (b *GraphBuilder) endPeel() {
	header := b.peeledHeader
	end := b.peelLoopEnd

	for offset, n := range b.peelDecrements {
		if offset > header && offset <= end {
			b.predecessorCounts[offset] += n
		}
	}
	for offset := header + 1; offset <= end; offset++ {
		delete(b.mergeStates, offset)
		delete(b.loopStates, offset)
		delete(b.jumpTargets, offset)
	}

	b.peeling = false
	b.peelDecrements = nil
	b.alreadyPeeled[header] = true
	b.iterator.SetOffset(header)
	b.repositioned = true
}
