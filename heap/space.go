package heap

import "errors"

// ErrOutOfMemory is returned when a space cannot grow further.
var ErrOutOfMemory = errors.New("heap: out of memory")

// AllocationOrigin tags who requested an allocation.
type AllocationOrigin int

const (
	OriginGeneratedCode AllocationOrigin = iota
	OriginRuntime
	OriginGC
	numAllocationOrigins
)

// maxPagesPerSpace bounds growth so runaway allocation fails instead of
// consuming the whole simulated address range.
const maxPagesPerSpace = 1024

// Space is an allocation space with a linear allocation area: a set of
// pages, a free list over them, a bump-pointer area and the allocation
// counter driving observer steps.
type Space struct {
	heap     *Heap
	id       SpaceID
	freeList *FreeList
	pages    []*Page

	allocationInfo LinearAllocationArea
	currentPage    *Page

	counter           AllocationCounter
	allocationOrigins [numAllocationOrigins]uint64
}

func newSpace(h *Heap, id SpaceID) *Space {
	s := &Space{heap: h, id: id}
	s.freeList = &FreeList{space: s}
	return s
}

// Heap returns the owning heap.
func (s *Space) Heap() *Heap { return s.heap }

// Identity returns the space's id.
func (s *Space) Identity() SpaceID { return s.id }

// FreeList returns the space's free list.
func (s *Space) FreeList() *FreeList { return s.freeList }

// Pages returns the pages currently owned by the space.
func (s *Space) Pages() []*Page { return s.pages }

// AllocationInfo exposes the linear allocation area, mainly to tests and
// the collector driver.
func (s *Space) AllocationInfo() *LinearAllocationArea { return &s.allocationInfo }

// Counter exposes the allocation counter.
func (s *Space) Counter() *AllocationCounter { return &s.counter }

// SupportsAllocationObserver reports whether the space participates in
// observer stepping. Both generations here do.
func (s *Space) SupportsAllocationObserver() bool { return true }

// AllocationOriginCount returns how many allocations the given origin
// performed.
func (s *Space) AllocationOriginCount(origin AllocationOrigin) uint64 {
	return s.allocationOrigins[origin]
}

// AddPage registers a page with the space.
func (s *Space) AddPage(p *Page) {
	s.pages = append(s.pages, p)
}

func (s *Space) removePage(p *Page) {
	for i, page := range s.pages {
		if page == p {
			s.pages = append(s.pages[:i], s.pages[i+1:]...)
			if s.currentPage == p {
				s.currentPage = nil
			}
			return
		}
	}
	panic("heap: removing page not owned by " + s.id.String())
}

// ---------------------------------------------------------------------------
// Allocation observers
// ---------------------------------------------------------------------------

// AddAllocationObserver attaches an observer and lowers the inline
// allocation limit so the observer's first step is not skipped.
func (s *Space) AddAllocationObserver(o AllocationObserver) {
	s.AdvanceAllocationObservers()
	s.counter.AddAllocationObserver(o)
	s.updateInlineAllocationLimit(0)
}

// RemoveAllocationObserver detaches an observer.
func (s *Space) RemoveAllocationObserver(o AllocationObserver) {
	s.AdvanceAllocationObservers()
	s.counter.RemoveAllocationObserver(o)
	s.updateInlineAllocationLimit(0)
}

// PauseAllocationObservers suspends stepping around GC-internal
// allocations.
func (s *Space) PauseAllocationObservers() {
	s.AdvanceAllocationObservers()
	s.counter.Pause()
}

// ResumeAllocationObservers re-enables stepping.
func (s *Space) ResumeAllocationObservers() {
	s.counter.Resume()
	s.allocationInfo.MoveStartToTop()
	s.updateInlineAllocationLimit(0)
}

// AdvanceAllocationObservers accounts the bytes allocated in the current
// area since the last sync point without firing steps.
func (s *Space) AdvanceAllocationObservers() {
	if s.allocationInfo.Top() != 0 {
		s.counter.AdvanceAllocationObservers(uint64(s.allocationInfo.Top() - s.allocationInfo.Start()))
		s.allocationInfo.MoveStartToTop()
	}
}

// ---------------------------------------------------------------------------
// Limit computation
// ---------------------------------------------------------------------------

func roundDownToTagged(v uint64) uint64 { return v &^ (TaggedSize - 1) }

// ComputeLimit decides how much of the free region [start, end) to
// expose as the bump-pointer limit, given the minimum required size.
func (s *Space) ComputeLimit(start, end Address, minSize int) Address {
	if int(end-start) < minSize {
		panic("heap: region smaller than requested size")
	}

	if s.heap.InlineAllocationDisabled() {
		// Fit the request exactly so every object goes through the slow
		// path and its observer check.
		return start + Address(minSize)
	}

	if s.SupportsAllocationObserver() && s.counter.IsActive() {
		if s.allocationInfo.IsValid() && s.allocationInfo.Start() != s.allocationInfo.Top() {
			panic("heap: unaccounted allocations before limit computation")
		}
		// Expose at most one observer step so a single large bump cannot
		// skip the sampling point.
		step := s.counter.NextBytes()
		if step == 0 {
			panic("heap: zero observer step")
		}
		roundedStep := roundDownToTagged(step - 1)
		stepEnd := uint64(start) + maxUint64(uint64(minSize), roundedStep)
		if stepEnd > uint64(end) {
			stepEnd = uint64(end)
		}
		return Address(stepEnd)
	}

	// The entire region can be used.
	return end
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// updateInlineAllocationLimit recomputes the current area's limit after
// observer changes, returning any cut-off tail to the free list.
func (s *Space) updateInlineAllocationLimit(minSize int) {
	if !s.allocationInfo.IsValid() {
		return
	}
	oldLimit := s.allocationInfo.Limit()
	newLimit := s.ComputeLimit(s.allocationInfo.Top(), oldLimit, minSize)
	if newLimit < oldLimit {
		s.allocationInfo.SetLimit(newLimit)
		s.freeList.Free(s.currentPage, newLimit, int(oldLimit-newLimit))
	}
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// AllocateRaw allocates size bytes (TaggedSize aligned) and returns the
// object address. The observer machinery fires when the allocation
// crosses a sampling step.
func (s *Space) AllocateRaw(size int, origin AllocationOrigin) (Address, error) {
	if size <= 0 || size%TaggedSize != 0 {
		panic("heap: allocation size must be positive and tagged-aligned")
	}

	addr, ok := s.allocationInfo.Advance(size)
	if !ok {
		if err := s.ensureAllocation(size); err != nil {
			return 0, err
		}
		addr, ok = s.allocationInfo.Advance(size)
		if !ok {
			panic("heap: fresh allocation area cannot fit request")
		}
	}

	s.currentPage.SetHighWaterMark(s.allocationInfo.Top())
	s.allocationOrigins[origin]++
	s.invokeAllocationObservers(addr, size, size, size)
	return addr, nil
}

// ensureAllocation replaces the allocation area with one that fits at
// least size bytes, from the current page's free list or a fresh page.
func (s *Space) ensureAllocation(size int) error {
	// Close the old area: account its bytes, fill the gap.
	s.AdvanceAllocationObservers()
	s.allocationInfo.CloseAndMakeIterable(s.heap)

	var page *Page
	var start, end Address

	if s.currentPage != nil {
		if node := s.freeList.Allocate(s.currentPage, size); node != nil {
			page = s.currentPage
			start = node.Address()
			end = start + Address(node.Size())
		}
	}
	if page == nil {
		if len(s.pages) >= maxPagesPerSpace {
			return ErrOutOfMemory
		}
		page = s.heap.allocator.AllocatePage(s)
		page.AllocateFreeListCategories()
		page.InitializeFreeListCategories()
		s.AddPage(page)
		start = page.AreaStart()
		end = page.AreaEnd()
	}

	limit := s.ComputeLimit(start, end, size)
	if end > limit {
		s.freeList.Free(page, limit, int(end-limit))
	}
	s.currentPage = page
	s.allocationInfo.Reset(start, limit)
	return nil
}

// invokeAllocationObservers fires observer steps when the consumed
// allocation reaches the counter's threshold. A filler is materialized
// at the soon-to-be-returned address first, because observer callbacks
// may walk the heap and expect it iterable.
//
// Exactly one of "object size equals aligned size" or "aligned size
// equals allocation size" must hold; padding on both sides is never
// valid.
func (s *Space) invokeAllocationObservers(soonObject Address, size, alignedSize, allocationSize int) {
	if size > alignedSize || alignedSize > allocationSize {
		panic("heap: inconsistent allocation sizes")
	}
	if size != alignedSize && alignedSize != allocationSize {
		panic("heap: allocation padded on both sides")
	}

	if !s.SupportsAllocationObserver() || !s.counter.IsActive() {
		return
	}

	if uint64(allocationSize) >= s.counter.NextBytes() {
		// Only the first object in a fresh area can reach the step.
		if soonObject != s.allocationInfo.Start()+Address(alignedSize-size) {
			panic("heap: observer step reached mid-area")
		}

		s.heap.CreateFillerObjectAt(soonObject, size)
		s.counter.InvokeAllocationObservers(soonObject, size, uint64(allocationSize))
		s.allocationInfo.MoveStartToTop()
	}

	if uint64(s.allocationInfo.Limit()-s.allocationInfo.Start()) >= s.counter.NextBytes() {
		panic("heap: allocation area spans an observer step")
	}
}

// FreeLinearAllocationArea closes the bump area, filling the unused tail
// so the heap is iterable for the collector.
func (s *Space) FreeLinearAllocationArea() {
	s.AdvanceAllocationObservers()
	s.allocationInfo.CloseAndMakeIterable(s.heap)
}

// ---------------------------------------------------------------------------
// Concrete spaces
// ---------------------------------------------------------------------------

// NewSpace is the young generation.
type NewSpace struct {
	*Space
}

func newNewSpace(h *Heap) *NewSpace {
	return &NewSpace{Space: newSpace(h, NewSpaceID)}
}

// PromotePage converts one of this space's pages to the old space.
func (ns *NewSpace) PromotePage(p *Page) *Page {
	return ConvertNewToOld(p)
}

// OldSpace is the old generation.
type OldSpace struct {
	*Space
}

func newOldSpace(h *Heap) *OldSpace {
	return &OldSpace{Space: newSpace(h, OldSpaceID)}
}

// initializePage prepares a page converted into this space: fresh
// free-list categories under the new owner.
func (os *OldSpace) initializePage(p *Page) {
	if p.categories != nil {
		p.ReleaseFreeListCategories()
	}
	p.AllocateFreeListCategories()
	p.InitializeFreeListCategories()
	p.SetFlag(PageInOldSpace)
}
