package heap

// MemoryAllocator hands out page-sized address ranges and keeps the
// address -> page index used by filler and slot bookkeeping. Freed page
// ranges are returned to a small pool before new address space is
// claimed.
type MemoryAllocator struct {
	nextBase Address
	pages    map[Address]*Page // keyed by page base
	pool     []Address         // bases of returned-but-still-reserved ranges
}

// NewMemoryAllocator returns an allocator with an empty address space.
// Base zero is skipped so a zero Address always means "no address".
func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{
		nextBase: PageSize,
		pages:    make(map[Address]*Page),
	}
}

// AllocatePage creates a page owned by space. Pooled ranges are reused
// first; pooled pages are not individually reserved and therefore cannot
// be shrunk (see Page.ShrinkToHighWaterMark).
func (ma *MemoryAllocator) AllocatePage(owner *Space) *Page {
	var base Address
	reserved := true
	if n := len(ma.pool); n > 0 {
		base = ma.pool[n-1]
		ma.pool = ma.pool[:n-1]
		reserved = false
	} else {
		base = ma.nextBase
		ma.nextBase += PageSize
	}

	p := &Page{
		allocator: ma,
		base:      base,
		size:      PageSize,
		areaStart: base + PageHeaderSize,
		areaEnd:   base + PageSize,
		owner:     owner,
		reserved:  reserved,
		fillers:   make(map[Address]int),
	}
	p.highWaterMark = p.areaStart
	p.markBitmap = NewMarkingBitmap()
	ma.pages[base] = p
	return p
}

// FreePage returns a page's range to the pool. The page must already be
// detached from its owner.
func (ma *MemoryAllocator) FreePage(p *Page) {
	if p.owner != nil {
		panic("heap: freeing page still owned by " + p.owner.Identity().String())
	}
	delete(ma.pages, p.base)
	ma.pool = append(ma.pool, p.base)
}

// PartialFreeMemory releases the trailing `unused` bytes of a page back
// to the OS. Only fully reserved pages support this.
func (ma *MemoryAllocator) PartialFreeMemory(p *Page, unused int) {
	if !p.reserved {
		panic("heap: partial free of pooled page")
	}
	if unused%CommitPageSize != 0 {
		panic("heap: partial free not commit-page aligned")
	}
	p.size -= unused
	p.areaEnd -= Address(unused)
	// Drop fillers that referenced the released range.
	for addr := range p.fillers {
		if addr >= p.areaEnd {
			delete(p.fillers, addr)
		}
	}
}

// PageContaining returns the page covering addr, or nil.
func (ma *MemoryAllocator) PageContaining(addr Address) *Page {
	base := addr &^ (PageSize - 1)
	if p, ok := ma.pages[base]; ok && addr < p.base+Address(p.size) {
		return p
	}
	return nil
}

// PageCount returns the number of live pages.
func (ma *MemoryAllocator) PageCount() int { return len(ma.pages) }

// CommittedBytes returns the total committed size across live pages.
func (ma *MemoryAllocator) CommittedBytes() int {
	total := 0
	for _, p := range ma.pages {
		total += p.size
	}
	return total
}
