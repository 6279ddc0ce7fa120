package heap

import "sync/atomic"

// One mark bit per TaggedSize granule of the page.
const (
	markBitsPerPage  = PageSize / TaggedSize
	markCellsPerPage = markBitsPerPage / 32
)

// MarkingBitmap is a page's mark bitmap. The non-atomic methods are
// main-thread only; the Atomic variants may race with the concurrent
// marker.
type MarkingBitmap struct {
	cells [markCellsPerPage]uint32
}

// NewMarkingBitmap returns an all-clear bitmap.
func NewMarkingBitmap() *MarkingBitmap { return &MarkingBitmap{} }

func markIndex(index int) (cell int, mask uint32) {
	return index / 32, 1 << (uint(index) % 32)
}

// Get reports whether mark bit index is set.
func (m *MarkingBitmap) Get(index int) bool {
	c, mask := markIndex(index)
	return m.cells[c]&mask != 0
}

// Set sets mark bit index.
func (m *MarkingBitmap) Set(index int) {
	c, mask := markIndex(index)
	m.cells[c] |= mask
}

// SetRange sets bits [start, end).
func (m *MarkingBitmap) SetRange(start, end int) {
	for i := start; i < end; i++ {
		m.Set(i)
	}
}

// ClearRange clears bits [start, end).
func (m *MarkingBitmap) ClearRange(start, end int) {
	for i := start; i < end; i++ {
		c, mask := markIndex(i)
		m.cells[c] &^= mask
	}
}

// SetRangeAtomic sets bits [start, end) with atomic cell updates.
func (m *MarkingBitmap) SetRangeAtomic(start, end int) {
	for i := start; i < end; i++ {
		c, mask := markIndex(i)
		for {
			old := atomic.LoadUint32(&m.cells[c])
			if old&mask != 0 || atomic.CompareAndSwapUint32(&m.cells[c], old, old|mask) {
				break
			}
		}
	}
}

// ClearRangeAtomic clears bits [start, end) with atomic cell updates.
func (m *MarkingBitmap) ClearRangeAtomic(start, end int) {
	for i := start; i < end; i++ {
		c, mask := markIndex(i)
		for {
			old := atomic.LoadUint32(&m.cells[c])
			if old&mask == 0 || atomic.CompareAndSwapUint32(&m.cells[c], old, old&^mask) {
				break
			}
		}
	}
}

// IsClear reports whether no bit in [start, end) is set.
func (m *MarkingBitmap) IsClear(start, end int) bool {
	for i := start; i < end; i++ {
		if m.Get(i) {
			return false
		}
	}
	return true
}

// MarkingState is the main-thread marking interface: plain bitmap writes
// and a plain live-byte update. Valid only while no concurrent marker
// runs.
type MarkingState struct{}

// Bitmap returns the page's mark bitmap.
func (MarkingState) Bitmap(p *Page) *MarkingBitmap { return p.markBitmap }

// SetRange force-marks the granule range [start, end) on p.
func (MarkingState) SetRange(p *Page, start, end int) {
	p.markBitmap.SetRange(start, end)
}

// ClearRange unmarks the granule range [start, end) on p.
func (MarkingState) ClearRange(p *Page, start, end int) {
	p.markBitmap.ClearRange(start, end)
}

// IncrementLiveBytes adjusts the page's live-byte counter without
// synchronization.
func (MarkingState) IncrementLiveBytes(p *Page, delta int64) {
	p.liveBytes += delta
}

// AtomicMarkingState is the concurrent-marker interface: atomic bitmap
// writes and an atomic live-byte update.
type AtomicMarkingState struct{}

// Bitmap returns the page's mark bitmap.
func (AtomicMarkingState) Bitmap(p *Page) *MarkingBitmap { return p.markBitmap }

// SetRange force-marks the granule range [start, end) on p atomically.
func (AtomicMarkingState) SetRange(p *Page, start, end int) {
	p.markBitmap.SetRangeAtomic(start, end)
}

// ClearRange unmarks the granule range [start, end) on p atomically.
func (AtomicMarkingState) ClearRange(p *Page, start, end int) {
	p.markBitmap.ClearRangeAtomic(start, end)
}

// IncrementLiveBytes adjusts the page's live-byte counter atomically.
func (AtomicMarkingState) IncrementLiveBytes(p *Page, delta int64) {
	atomic.AddInt64(&p.liveBytes, delta)
}
