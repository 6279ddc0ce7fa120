// Package heap implements the paged object-allocation subsystem: pages
// with free-list categories, linear allocation areas with observer
// stepping, mark bitmaps with live-byte accounting, and remembered-set
// bookkeeping for the incremental collector.
//
// Addresses are offsets into a simulated address space handed out by the
// memory allocator; the package tracks accounting and invariants, not raw
// machine memory.
package heap

// Address is a byte address in the heap's address space.
type Address uintptr

const (
	// TaggedSize is the object-alignment granule. Mark bits and slot
	// offsets are tracked at this granularity.
	TaggedSize = 8

	// PageSize is the fixed size of a page, header included.
	PageSize = 256 * 1024

	// PageHeaderSize is reserved at the start of every page.
	PageHeaderSize = 2 * 1024

	// PageAreaSize is the usable object area of a page.
	PageAreaSize = PageSize - PageHeaderSize

	// CommitPageSize is the OS commit granularity used when shrinking
	// pages back to their high water mark.
	CommitPageSize = 4096
)

// SpaceID identifies the generation a space manages.
type SpaceID uint8

const (
	NewSpaceID SpaceID = iota
	OldSpaceID
)

func (id SpaceID) String() string {
	switch id {
	case NewSpaceID:
		return "new_space"
	case OldSpaceID:
		return "old_space"
	}
	return "space(?)"
}

// Heap owns the spaces and the incremental-marking state shared by the
// mutator and the collector driver.
type Heap struct {
	allocator *MemoryAllocator
	newSpace  *NewSpace
	oldSpace  *OldSpace

	markingState       MarkingState
	atomicMarkingState AtomicMarkingState

	blackAllocation bool

	// inlineAllocationDisabled forces every allocation through the slow
	// path so precise GC stepping observes each object.
	inlineAllocationDisabled bool
}

// NewHeap creates a heap with an empty new and old space.
func NewHeap() *Heap {
	h := &Heap{allocator: NewMemoryAllocator()}
	h.newSpace = newNewSpace(h)
	h.oldSpace = newOldSpace(h)
	return h
}

// Allocator returns the heap's page allocator.
func (h *Heap) Allocator() *MemoryAllocator { return h.allocator }

// NewSpace returns the young generation.
func (h *Heap) NewSpace() *NewSpace { return h.newSpace }

// OldSpace returns the old generation.
func (h *Heap) OldSpace() *OldSpace { return h.oldSpace }

// MarkingState returns the main-thread (non-atomic) marking state.
func (h *Heap) MarkingState() *MarkingState { return &h.markingState }

// AtomicMarkingState returns the marking state safe for the concurrent
// collector thread.
func (h *Heap) AtomicMarkingState() *AtomicMarkingState { return &h.atomicMarkingState }

// BlackAllocation reports whether new allocations are marked black
// (incremental marking active).
func (h *Heap) BlackAllocation() bool { return h.blackAllocation }

// SetBlackAllocation toggles black allocation; the collector driver flips
// this at incremental-marking start/finish.
func (h *Heap) SetBlackAllocation(enabled bool) { h.blackAllocation = enabled }

// InlineAllocationDisabled reports whether bump allocation is limited to
// one object at a time.
func (h *Heap) InlineAllocationDisabled() bool { return h.inlineAllocationDisabled }

// SetInlineAllocationDisabled toggles per-object allocation stepping.
func (h *Heap) SetInlineAllocationDisabled(disabled bool) {
	h.inlineAllocationDisabled = disabled
}

// CreateFillerObjectAt materializes a filler covering [addr, addr+size)
// so the heap stays iterable. Zero-size fillers are a no-op.
func (h *Heap) CreateFillerObjectAt(addr Address, size int) {
	if size == 0 {
		return
	}
	if size < 0 {
		panic("heap: negative filler size")
	}
	page := h.allocator.PageContaining(addr)
	if page == nil {
		panic("heap: filler outside any page")
	}
	page.setFiller(addr, size)
}

// FillerAt returns the size of the filler starting at addr, if any.
func (h *Heap) FillerAt(addr Address) (int, bool) {
	page := h.allocator.PageContaining(addr)
	if page == nil {
		return 0, false
	}
	return page.fillerAt(addr)
}
