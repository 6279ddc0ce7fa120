package heap

import "testing"

type countingObserver struct {
	step    int
	fired   int
	lastLen int
}

func (o *countingObserver) Step(bytesAllocated int, soonObject Address, size int) {
	o.fired++
	o.lastLen = bytesAllocated
}

func (o *countingObserver) StepSize() int { return o.step }

func TestComputeLimitBounds(t *testing.T) {
	h := NewHeap()
	s := h.OldSpace().Space

	start := Address(0x10000)
	end := Address(0x20000)

	// No observers: the whole region is exposed.
	if got := s.ComputeLimit(start, end, 64); got != end {
		t.Fatalf("limit %#x, want end %#x", uintptr(got), uintptr(end))
	}

	// Inline allocation disabled: exactly min_size.
	h.SetInlineAllocationDisabled(true)
	if got := s.ComputeLimit(start, end, 64); got != start+64 {
		t.Fatalf("limit %#x, want start+64", uintptr(got))
	}
	h.SetInlineAllocationDisabled(false)

	// Observer active: limit stays within one step of start, and always
	// covers at least min_size.
	obs := &countingObserver{step: 512}
	s.Counter().AddAllocationObserver(obs)
	got := s.ComputeLimit(start, end, 64)
	if got < start+64 {
		t.Fatalf("limit %#x below start+min_size", uintptr(got))
	}
	if got > end {
		t.Fatalf("limit %#x beyond end", uintptr(got))
	}
	if uint64(got-start) > 512 {
		t.Fatalf("limit exposes %d bytes, more than one observer step", got-start)
	}

	// min_size larger than the step still fits the request.
	if got := s.ComputeLimit(start, end, 1024); got != start+1024 {
		t.Fatalf("limit %#x, want start+1024", uintptr(got))
	}
}

func TestAllocationObserverFires(t *testing.T) {
	h := NewHeap()
	s := h.OldSpace().Space
	obs := &countingObserver{step: 256}
	s.AddAllocationObserver(obs)

	// Allocate well past the step; the observer must fire at least once
	// and never be skipped over by bump allocation.
	for i := 0; i < 64; i++ {
		if _, err := s.AllocateRaw(16, OriginRuntime); err != nil {
			t.Fatal(err)
		}
	}
	if obs.fired == 0 {
		t.Fatal("observer never fired across 1024 allocated bytes")
	}
	if obs.lastLen <= 0 || obs.lastLen < obs.step {
		t.Fatalf("observer step length %d, want >= step size %d", obs.lastLen, obs.step)
	}
}

func TestAllocationObserverPauseResume(t *testing.T) {
	h := NewHeap()
	s := h.OldSpace().Space
	obs := &countingObserver{step: 128}
	s.AddAllocationObserver(obs)

	s.PauseAllocationObservers()
	for i := 0; i < 32; i++ {
		if _, err := s.AllocateRaw(32, OriginGC); err != nil {
			t.Fatal(err)
		}
	}
	if obs.fired != 0 {
		t.Fatalf("observer fired %d times while paused", obs.fired)
	}
	s.ResumeAllocationObservers()

	for i := 0; i < 32; i++ {
		if _, err := s.AllocateRaw(32, OriginRuntime); err != nil {
			t.Fatal(err)
		}
	}
	if obs.fired == 0 {
		t.Fatal("observer did not fire after resume")
	}
}

func TestAllocationAdvancesHighWaterMark(t *testing.T) {
	h := NewHeap()
	s := h.OldSpace().Space
	addr, err := s.AllocateRaw(64, OriginRuntime)
	if err != nil {
		t.Fatal(err)
	}
	p := h.Allocator().PageContaining(addr)
	if p == nil {
		t.Fatal("allocation outside any page")
	}
	if p.HighWaterMark() != addr+64 {
		t.Fatalf("high water mark %#x, want %#x", uintptr(p.HighWaterMark()), uintptr(addr+64))
	}
}

func TestAllocationOriginAccounting(t *testing.T) {
	h := NewHeap()
	s := h.OldSpace().Space
	for i := 0; i < 3; i++ {
		s.AllocateRaw(16, OriginRuntime)
	}
	s.AllocateRaw(16, OriginGC)
	if s.AllocationOriginCount(OriginRuntime) != 3 {
		t.Errorf("runtime origin count = %d, want 3", s.AllocationOriginCount(OriginRuntime))
	}
	if s.AllocationOriginCount(OriginGC) != 1 {
		t.Errorf("gc origin count = %d, want 1", s.AllocationOriginCount(OriginGC))
	}
	if s.AllocationOriginCount(OriginGeneratedCode) != 0 {
		t.Errorf("generated-code origin count = %d, want 0", s.AllocationOriginCount(OriginGeneratedCode))
	}
}

func TestCloseAndMakeIterableFillsGap(t *testing.T) {
	h := NewHeap()
	s := h.OldSpace().Space
	if _, err := s.AllocateRaw(64, OriginRuntime); err != nil {
		t.Fatal(err)
	}
	top := s.AllocationInfo().Top()
	limit := s.AllocationInfo().Limit()
	if top == limit {
		t.Skip("allocation area exactly consumed")
	}
	s.FreeLinearAllocationArea()
	size, ok := h.FillerAt(top)
	if !ok {
		t.Fatal("no filler at old top after closing the area")
	}
	if top+Address(size) != limit {
		t.Fatalf("filler covers [%#x,%#x), want up to %#x", uintptr(top), uintptr(top+Address(size)), uintptr(limit))
	}
}

func TestLinearAllocationAreaInvariant(t *testing.T) {
	lab := NewLinearAllocationArea(0x1000, 0x2000)
	if lab.Start() != 0x1000 || lab.Top() != 0x1000 || lab.Limit() != 0x2000 {
		t.Fatal("fresh area shape wrong")
	}
	addr, ok := lab.Advance(0x800)
	if !ok || addr != 0x1000 {
		t.Fatal("advance failed")
	}
	if _, ok := lab.Advance(0x900); ok {
		t.Fatal("advance past limit succeeded")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic constructing inverted area")
		}
	}()
	NewLinearAllocationArea(0x2000, 0x1000)
}
