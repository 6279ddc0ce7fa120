package heap

// AllocationObserver is a sampling hook fired roughly every StepSize
// allocated bytes (sampling profilers, incremental-marking step
// triggers).
type AllocationObserver interface {
	// Step is called when the observer's step is reached. bytesAllocated
	// is the number of bytes since the observer's previous step;
	// soonObject/size describe the object about to be returned to the
	// caller, which is guaranteed to be covered by a filler so the heap
	// is iterable during the callback.
	Step(bytesAllocated int, soonObject Address, size int)

	// StepSize returns the observer's sampling interval in bytes.
	StepSize() int
}

type observerEntry struct {
	observer AllocationObserver
	// nextCounter is the absolute allocated-bytes value at which this
	// observer steps next.
	nextCounter uint64
	// prevCounter is the counter value at the observer's last step.
	prevCounter uint64
}

// AllocationCounter tracks bytes allocated in one space and decides when
// observers step. It is single-threaded per space (tied to the bump
// pointer fast path) and paused around GC-internal allocations so
// user-visible sampling hooks do not fire for them.
type AllocationCounter struct {
	observers []observerEntry
	current   uint64
	pauseDepth int
}

// IsActive reports whether any observer is attached and the counter is
// not paused.
func (c *AllocationCounter) IsActive() bool {
	return c.pauseDepth == 0 && len(c.observers) > 0
}

// IsPaused reports whether the counter is paused.
func (c *AllocationCounter) IsPaused() bool { return c.pauseDepth > 0 }

// AddAllocationObserver attaches an observer; its first step is one full
// step size away.
func (c *AllocationCounter) AddAllocationObserver(o AllocationObserver) {
	if c.IsPaused() {
		panic("heap: adding observer while paused")
	}
	c.observers = append(c.observers, observerEntry{
		observer:    o,
		nextCounter: c.current + uint64(o.StepSize()),
		prevCounter: c.current,
	})
}

// RemoveAllocationObserver detaches an observer.
func (c *AllocationCounter) RemoveAllocationObserver(o AllocationObserver) {
	if c.IsPaused() {
		panic("heap: removing observer while paused")
	}
	for i := range c.observers {
		if c.observers[i].observer == o {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
	panic("heap: removing unknown observer")
}

// Pause suspends observer stepping; nests.
func (c *AllocationCounter) Pause() { c.pauseDepth++ }

// Resume reverses one Pause.
func (c *AllocationCounter) Resume() {
	if c.pauseDepth == 0 {
		panic("heap: resume without pause")
	}
	c.pauseDepth--
}

// NextBytes returns the distance in bytes to the nearest observer step.
// Only meaningful while active.
func (c *AllocationCounter) NextBytes() uint64 {
	if !c.IsActive() {
		panic("heap: NextBytes on inactive counter")
	}
	next := c.observers[0].nextCounter
	for _, e := range c.observers[1:] {
		if e.nextCounter < next {
			next = e.nextCounter
		}
	}
	return next - c.current
}

// AdvanceAllocationObservers accounts allocated bytes without firing any
// step (the bytes are known not to have crossed a step boundary).
func (c *AllocationCounter) AdvanceAllocationObservers(bytes uint64) {
	c.current += bytes
}

// InvokeAllocationObservers accounts allocationSize bytes and fires every
// observer whose step was reached. Postcondition: the residual distance
// to the next step is strictly less than the smallest step size (no
// double-counting).
func (c *AllocationCounter) InvokeAllocationObservers(soonObject Address, objectSize int, allocationSize uint64) {
	if !c.IsActive() {
		return
	}
	c.current += allocationSize
	for i := range c.observers {
		e := &c.observers[i]
		if c.current >= e.nextCounter {
			e.observer.Step(int(c.current-e.prevCounter), soonObject, objectSize)
			e.prevCounter = c.current
			e.nextCounter = c.current + uint64(e.observer.StepSize())
		}
	}
}
