package heap

import (
	"math/bits"
	"sync/atomic"
)

// Remembered-set slots are tracked per page at TaggedSize granularity,
// bucketed so sparse pages stay cheap and buckets can be released when
// they drain.

const (
	slotsPerBucket = 1024
	cellsPerBucket = slotsPerBucket / 32
	bucketsPerPage = PageSize / TaggedSize / slotsPerBucket
)

// RememberedSetType selects which remembered set of a page to use.
type RememberedSetType int

const (
	OldToNew RememberedSetType = iota
	OldToOld
	numRememberedSets
)

// SlotVerdict is returned by iteration callbacks.
type SlotVerdict int

const (
	KeepSlot SlotVerdict = iota
	RemoveSlot
)

// EmptyBucketMode controls whether Iterate frees drained buckets.
type EmptyBucketMode int

const (
	KeepEmptyBuckets EmptyBucketMode = iota
	FreeEmptyBuckets
)

type slotBucket struct {
	cells [cellsPerBucket]uint32
}

// SlotSet records slot offsets within a single page. Insert has atomic
// and non-atomic variants; iteration and removal are single-threaded.
type SlotSet struct {
	buckets [bucketsPerPage]atomic.Pointer[slotBucket]
}

// NewSlotSet returns an empty set.
func NewSlotSet() *SlotSet { return &SlotSet{} }

func slotIndex(offset uintptr) (bucket, cell int, mask uint32) {
	slot := offset / TaggedSize
	bucket = int(slot / slotsPerBucket)
	within := slot % slotsPerBucket
	cell = int(within / 32)
	mask = 1 << (within % 32)
	return
}

// bucket returns bucket b, installing it if missing. Installation uses
// compare-and-swap so concurrent inserters agree on one bucket.
func (s *SlotSet) bucket(b int) *slotBucket {
	for {
		if bucket := s.buckets[b].Load(); bucket != nil {
			return bucket
		}
		fresh := &slotBucket{}
		if s.buckets[b].CompareAndSwap(nil, fresh) {
			return fresh
		}
	}
}

// Insert records the slot at the given byte offset. Non-atomic; only the
// thread owning the set may call it.
func (s *SlotSet) Insert(offset uintptr) {
	b, c, m := slotIndex(offset)
	bucket := s.bucket(b)
	bucket.cells[c] |= m
}

// InsertAtomic records a slot, racing safely with other inserters.
func (s *SlotSet) InsertAtomic(offset uintptr) {
	b, c, m := slotIndex(offset)
	bucket := s.bucket(b)
	for {
		old := atomic.LoadUint32(&bucket.cells[c])
		if old&m != 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&bucket.cells[c], old, old|m) {
			return
		}
	}
}

// Contains reports whether the slot at offset is recorded.
func (s *SlotSet) Contains(offset uintptr) bool {
	b, c, m := slotIndex(offset)
	bucket := s.buckets[b].Load()
	return bucket != nil && bucket.cells[c]&m != 0
}

// Count returns the number of recorded slots.
func (s *SlotSet) Count() int {
	n := 0
	for b := range s.buckets {
		bucket := s.buckets[b].Load()
		if bucket == nil {
			continue
		}
		for _, cell := range bucket.cells {
			n += bits.OnesCount32(cell)
		}
	}
	return n
}

// Iterate visits every recorded slot in offset order. The callback's
// verdict decides whether the slot survives; with FreeEmptyBuckets,
// buckets drained by removals are released.
func (s *SlotSet) Iterate(cb func(offset uintptr) SlotVerdict, mode EmptyBucketMode) {
	for b := range s.buckets {
		bucket := s.buckets[b].Load()
		if bucket == nil {
			continue
		}
		remaining := 0
		for c := range bucket.cells {
			cell := bucket.cells[c]
			for cell != 0 {
				bit := cell & -cell
				cell &^= bit
				slot := uintptr(b)*slotsPerBucket + uintptr(c)*32 + uintptr(bits.TrailingZeros32(bit))
				offset := slot * TaggedSize
				if cb(offset) == RemoveSlot {
					bucket.cells[c] &^= bit
				}
			}
			remaining += bits.OnesCount32(bucket.cells[c])
		}
		if remaining == 0 && mode == FreeEmptyBuckets {
			s.buckets[b].Store(nil)
		}
	}
}
