package heap

import "fmt"

// LinearAllocationArea is the bump-pointer region objects are allocated
// from. Invariant: start <= top <= limit.
type LinearAllocationArea struct {
	start Address
	top   Address
	limit Address
}

// NewLinearAllocationArea returns the area [top, limit) with start at
// top.
func NewLinearAllocationArea(top, limit Address) LinearAllocationArea {
	if top > limit {
		panic(fmt.Sprintf("heap: LAB top %#x beyond limit %#x", uintptr(top), uintptr(limit)))
	}
	return LinearAllocationArea{start: top, top: top, limit: limit}
}

// Start returns the area's original start (the last observer sync point).
func (lab *LinearAllocationArea) Start() Address { return lab.start }

// Top returns the bump pointer.
func (lab *LinearAllocationArea) Top() Address { return lab.top }

// Limit returns the area's limit.
func (lab *LinearAllocationArea) Limit() Address { return lab.limit }

// IsValid reports whether the area is non-null.
func (lab *LinearAllocationArea) IsValid() bool { return lab.top != 0 }

// Reset replaces the area.
func (lab *LinearAllocationArea) Reset(top, limit Address) {
	if top > limit {
		panic("heap: LAB reset with top beyond limit")
	}
	lab.start = top
	lab.top = top
	lab.limit = limit
}

// MoveStartToTop re-synchronizes start with the bump pointer after the
// allocated span has been accounted to the observers.
func (lab *LinearAllocationArea) MoveStartToTop() { lab.start = lab.top }

// SetLimit lowers or raises the limit; top must stay within.
func (lab *LinearAllocationArea) SetLimit(limit Address) {
	if limit < lab.top {
		panic("heap: LAB limit below top")
	}
	lab.limit = limit
}

// Advance bumps the pointer by size and returns the object address, or
// false if the area cannot fit it.
func (lab *LinearAllocationArea) Advance(size int) (Address, bool) {
	if lab.top+Address(size) > lab.limit {
		return 0, false
	}
	addr := lab.top
	lab.top += Address(size)
	return addr, true
}

// CloseAndMakeIterable invalidates the area, filling the unused
// [top, limit) gap with a filler so the heap remains iterable, and
// returns the old area.
func (lab *LinearAllocationArea) CloseAndMakeIterable(h *Heap) LinearAllocationArea {
	if !lab.IsValid() {
		return LinearAllocationArea{}
	}
	h.CreateFillerObjectAt(lab.top, int(lab.limit-lab.top))
	old := *lab
	*lab = LinearAllocationArea{}
	return old
}
