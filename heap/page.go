package heap

import (
	"fmt"
	"sync/atomic"
)

// PageFlags is the page flag word; ConvertNewToOld clears it wholesale.
type PageFlags uint32

const (
	PageInNewSpace PageFlags = 1 << iota
	PageInOldSpace
	PageNeverEvacuate
	PageSweepingInProgress
)

// Page is one fixed-size allocation region owned by exactly one space.
type Page struct {
	allocator *MemoryAllocator
	base      Address
	size      int
	areaStart Address
	areaEnd   Address
	owner     *Space
	flags     PageFlags
	reserved  bool // has a real OS reservation (not pooled)

	highWaterMark Address

	categories []*FreeListCategory

	slotSets        [numRememberedSets]*SlotSet
	sweepingSlotSet *SlotSet

	markBitmap *MarkingBitmap
	liveBytes  int64 // updated via MarkingState/AtomicMarkingState

	localTracker *ArrayBufferTracker

	fillers map[Address]int
}

// Base returns the page's base address.
func (p *Page) Base() Address { return p.base }

// Size returns the page's committed size.
func (p *Page) Size() int { return p.size }

// AreaStart returns the start of the object area.
func (p *Page) AreaStart() Address { return p.areaStart }

// AreaEnd returns the end of the object area.
func (p *Page) AreaEnd() Address { return p.areaEnd }

// Owner returns the owning space.
func (p *Page) Owner() *Space { return p.owner }

// Flags returns the page's flag word.
func (p *Page) Flags() PageFlags { return p.flags }

// SetFlag sets a page flag.
func (p *Page) SetFlag(f PageFlags) { p.flags |= f }

// HasFlag reports whether f is set.
func (p *Page) HasFlag(f PageFlags) bool { return p.flags&f != 0 }

// HighWaterMark returns the end of the last allocated object.
func (p *Page) HighWaterMark() Address { return p.highWaterMark }

// LiveBytes returns the page's live-byte counter.
func (p *Page) LiveBytes() int64 { return atomic.LoadInt64(&p.liveBytes) }

// Contains reports whether addr lies in the page's object area.
func (p *Page) Contains(addr Address) bool {
	return addr >= p.areaStart && addr < p.areaEnd
}

// MarkbitIndex converts an address on this page to its mark-bit index.
func (p *Page) MarkbitIndex(addr Address) int {
	return int(addr-p.base) / TaggedSize
}

// ---------------------------------------------------------------------------
// Free-list categories
// ---------------------------------------------------------------------------

// AllocateFreeListCategories allocates the full category range
// [FirstCategory, LastCategory]. The page must have none.
func (p *Page) AllocateFreeListCategories() {
	if p.categories != nil {
		panic("heap: page already has free-list categories")
	}
	p.categories = make([]*FreeListCategory, p.owner.FreeList().NumberOfCategories())
	for i := FirstCategory; i <= p.owner.FreeList().LastCategory(); i++ {
		p.categories[i] = &FreeListCategory{}
	}
}

// InitializeFreeListCategories resets each category to its type.
func (p *Page) InitializeFreeListCategories() {
	for i := FirstCategory; i <= p.owner.FreeList().LastCategory(); i++ {
		p.categories[i].Initialize(i)
	}
}

// ReleaseFreeListCategories frees every category and the array itself.
// Afterwards the page is back in the all-null state; no partial state
// survives.
func (p *Page) ReleaseFreeListCategories() {
	if p.categories == nil {
		return
	}
	for i := FirstCategory; i <= p.owner.FreeList().LastCategory(); i++ {
		p.categories[i] = nil
	}
	p.categories = nil
}

// CategoryAt returns the category of the given type, or nil when the
// page has no categories.
func (p *Page) CategoryAt(t FreeListCategoryType) *FreeListCategory {
	if p.categories == nil {
		return nil
	}
	return p.categories[t]
}

// AvailableInFreeList sums the free bytes across all categories.
func (p *Page) AvailableInFreeList() int {
	sum := 0
	if p.categories == nil {
		return 0
	}
	for _, c := range p.categories {
		sum += c.Available()
	}
	return sum
}

// FreeListsLength returns the total number of free blocks on the page.
func (p *Page) FreeListsLength() int {
	length := 0
	if p.categories == nil {
		return 0
	}
	for i := FirstCategory; i <= p.owner.FreeList().LastCategory(); i++ {
		if p.categories[i] != nil {
			length += p.categories[i].Length()
		}
	}
	return length
}

// ---------------------------------------------------------------------------
// Remembered sets
// ---------------------------------------------------------------------------

// SlotSetFor returns the remembered set of the given type, or nil.
func (p *Page) SlotSetFor(t RememberedSetType) *SlotSet { return p.slotSets[t] }

// AllocateSlotSet returns the remembered set of the given type, creating
// it if needed.
func (p *Page) AllocateSlotSet(t RememberedSetType) *SlotSet {
	if p.slotSets[t] == nil {
		p.slotSets[t] = NewSlotSet()
	}
	return p.slotSets[t]
}

// ReleaseSlotSet drops the remembered set of the given type.
func (p *Page) ReleaseSlotSet(t RememberedSetType) { p.slotSets[t] = nil }

// SweepingSlotSet returns the detached old-to-new set the sweeper works
// on, or nil.
func (p *Page) SweepingSlotSet() *SlotSet { return p.sweepingSlotSet }

// MoveOldToNewRememberedSetForSweeping detaches the live old-to-new set
// into the sweeping staging slot. Mutator inserts during the sweep land
// in a fresh live set instead of racing with the sweeper's iteration.
func (p *Page) MoveOldToNewRememberedSetForSweeping() {
	if p.sweepingSlotSet != nil {
		panic("heap: sweeping slot set already present")
	}
	p.sweepingSlotSet = p.slotSets[OldToNew]
	p.slotSets[OldToNew] = nil
}

// MergeOldToNewRememberedSets folds the entries recorded during the sweep
// back into the sweeping-time set, which then becomes the live set again.
// Runs single-threaded after sweeping, so inserts are non-atomic. No
// entry recorded before or during the sweep is lost.
func (p *Page) MergeOldToNewRememberedSets() {
	if p.sweepingSlotSet == nil {
		return
	}

	if live := p.slotSets[OldToNew]; live != nil {
		live.Iterate(func(offset uintptr) SlotVerdict {
			p.sweepingSlotSet.Insert(offset)
			return KeepSlot
		}, KeepEmptyBuckets)
		p.ReleaseSlotSet(OldToNew)
	}

	if p.slotSets[OldToNew] != nil {
		panic("heap: live old-to-new set survived merge")
	}
	p.slotSets[OldToNew] = p.sweepingSlotSet
	p.sweepingSlotSet = nil
}

// ---------------------------------------------------------------------------
// Array-buffer tracker
// ---------------------------------------------------------------------------

// AllocateLocalTracker installs the page's array-buffer tracker. The
// page must not already have one.
func (p *Page) AllocateLocalTracker() {
	if p.localTracker != nil {
		panic("heap: page already has a local tracker")
	}
	p.localTracker = NewArrayBufferTracker(p)
}

// LocalTracker returns the tracker, or nil.
func (p *Page) LocalTracker() *ArrayBufferTracker { return p.localTracker }

// ContainsArrayBuffers reports whether any buffers are tracked here.
func (p *Page) ContainsArrayBuffers() bool {
	return p.localTracker != nil && !p.localTracker.IsEmpty()
}

// ---------------------------------------------------------------------------
// Promotion
// ---------------------------------------------------------------------------

// ConvertNewToOld reassigns a new-space page to the old space: flags are
// reset wholesale, the page is re-initialized under its new owner and
// registered with it. Caller assumptions about the page's old flags no
// longer hold afterwards.
func ConvertNewToOld(p *Page) *Page {
	if p == nil {
		panic("heap: converting nil page")
	}
	if p.owner.Identity() != NewSpaceID {
		panic("heap: ConvertNewToOld on non-new-space page")
	}
	oldSpace := p.owner.Heap().OldSpace()
	p.owner.removePage(p)
	p.owner = oldSpace.Space
	p.flags = 0
	oldSpace.initializePage(p)
	oldSpace.AddPage(p)
	return p
}

// ---------------------------------------------------------------------------
// Shrinking
// ---------------------------------------------------------------------------

// ShrinkToHighWaterMark releases trailing committed-but-unused memory
// back to the allocator, rounded down to the commit-page granularity.
// Returns the number of bytes reclaimed.
func (p *Page) ShrinkToHighWaterMark() int {
	// Pooled ranges share address space with other regions; only pages
	// with a real reservation can give memory back.
	if !p.reserved {
		return 0
	}

	// The high water mark points either at a filler or at area_end.
	if p.highWaterMark == p.areaEnd {
		return 0
	}
	if _, ok := p.fillerAt(p.highWaterMark); !ok {
		panic(fmt.Sprintf("heap: no filler at high water mark %#x", uintptr(p.highWaterMark)))
	}
	if p.skipFillers(p.highWaterMark) != p.areaEnd {
		panic("heap: objects allocated beyond the high water mark")
	}
	if p.AvailableInFreeList() != 0 {
		panic("heap: shrinking page with live free-list entries")
	}
	// Slot sets would reference the freed range.
	if p.slotSets[OldToNew] != nil || p.slotSets[OldToOld] != nil || p.sweepingSlotSet != nil {
		panic("heap: shrinking page with slot sets")
	}

	unused := int(p.areaEnd-p.highWaterMark) / CommitPageSize * CommitPageSize
	if unused > 0 {
		retained := int(p.areaEnd-p.highWaterMark) - unused
		delete(p.fillers, p.highWaterMark)
		if retained > 0 {
			p.setFiller(p.highWaterMark, retained)
		}
		p.allocator.PartialFreeMemory(p, unused)
		if retained > 0 {
			size, ok := p.fillerAt(p.highWaterMark)
			if !ok || p.highWaterMark+Address(size) != p.areaEnd {
				panic("heap: retained filler does not abut area end")
			}
		}
	}
	return unused
}

// skipFillers walks consecutive fillers from addr and returns the first
// non-filler address.
func (p *Page) skipFillers(addr Address) Address {
	for addr < p.areaEnd {
		size, ok := p.fillers[addr]
		if !ok {
			break
		}
		addr += Address(size)
	}
	return addr
}

func (p *Page) setFiller(addr Address, size int) {
	if addr < p.areaStart || addr+Address(size) > p.areaEnd {
		panic("heap: filler outside page area")
	}
	p.fillers[addr] = size
}

func (p *Page) fillerAt(addr Address) (int, bool) {
	size, ok := p.fillers[addr]
	return size, ok
}

// SetHighWaterMark records the end of the last allocated object;
// monotonically increasing.
func (p *Page) SetHighWaterMark(addr Address) {
	if addr > p.highWaterMark {
		p.highWaterMark = addr
	}
}

// ---------------------------------------------------------------------------
// Black areas
// ---------------------------------------------------------------------------

func (p *Page) checkBlackAreaBounds(start, end Address) {
	heap := p.owner.Heap()
	if !heap.BlackAllocation() {
		panic("heap: black area without black allocation enabled")
	}
	if start >= end {
		panic("heap: empty black area")
	}
	if !p.Contains(start) || !p.Contains(end-1) {
		panic("heap: black area outside page")
	}
}

// CreateBlackArea force-marks [start, end) and credits the live-byte
// counter. Main-thread variant.
func (p *Page) CreateBlackArea(start, end Address) {
	p.checkBlackAreaBounds(start, end)
	state := p.owner.Heap().MarkingState()
	state.SetRange(p, p.MarkbitIndex(start), p.MarkbitIndex(end))
	state.IncrementLiveBytes(p, int64(end-start))
}

// CreateBlackAreaBackground is CreateBlackArea for the concurrent
// collector thread: atomic marking and an atomic live-byte increment.
func (p *Page) CreateBlackAreaBackground(start, end Address) {
	p.checkBlackAreaBounds(start, end)
	state := p.owner.Heap().AtomicMarkingState()
	state.SetRange(p, p.MarkbitIndex(start), p.MarkbitIndex(end))
	state.IncrementLiveBytes(p, int64(end-start))
}

// DestroyBlackArea undoes CreateBlackArea.
func (p *Page) DestroyBlackArea(start, end Address) {
	p.checkBlackAreaBounds(start, end)
	state := p.owner.Heap().MarkingState()
	state.ClearRange(p, p.MarkbitIndex(start), p.MarkbitIndex(end))
	state.IncrementLiveBytes(p, -int64(end-start))
}

// DestroyBlackAreaBackground undoes CreateBlackAreaBackground.
func (p *Page) DestroyBlackAreaBackground(start, end Address) {
	p.checkBlackAreaBounds(start, end)
	state := p.owner.Heap().AtomicMarkingState()
	state.ClearRange(p, p.MarkbitIndex(start), p.MarkbitIndex(end))
	state.IncrementLiveBytes(p, -int64(end-start))
}
