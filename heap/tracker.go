package heap

// ArrayBufferTracker is a page-local registry of external-buffer-backed
// objects. The collector consults it when evacuating or freeing the page
// so external backings are released with their owners.
type ArrayBufferTracker struct {
	page     *Page
	buffers  map[Address]int // object address -> backing length
	retained int
}

// NewArrayBufferTracker returns an empty tracker for p.
func NewArrayBufferTracker(p *Page) *ArrayBufferTracker {
	return &ArrayBufferTracker{page: p, buffers: make(map[Address]int)}
}

// Add registers a buffer-backed object.
func (t *ArrayBufferTracker) Add(addr Address, length int) {
	if _, ok := t.buffers[addr]; ok {
		panic("heap: array buffer tracked twice")
	}
	t.buffers[addr] = length
	t.retained += length
}

// Remove unregisters an object, returning the backing length.
func (t *ArrayBufferTracker) Remove(addr Address) int {
	length, ok := t.buffers[addr]
	if !ok {
		panic("heap: removing untracked array buffer")
	}
	delete(t.buffers, addr)
	t.retained -= length
	return length
}

// IsEmpty reports whether any buffers remain tracked.
func (t *ArrayBufferTracker) IsEmpty() bool { return len(t.buffers) == 0 }

// RetainedBytes returns the total external backing bytes held.
func (t *ArrayBufferTracker) RetainedBytes() int { return t.retained }
