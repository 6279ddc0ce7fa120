package heap

import "testing"

func newTestPage(t *testing.T, h *Heap, s *Space) *Page {
	t.Helper()
	p := h.Allocator().AllocatePage(s)
	s.AddPage(p)
	return p
}

func TestFreeListCategoryInvariant(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)

	if p.CategoryAt(TinyCategory) != nil {
		t.Fatal("fresh page should have no categories")
	}

	// Allocate+release twice; the page must return to the all-null state
	// each time with no partial state.
	for round := 0; round < 2; round++ {
		p.AllocateFreeListCategories()
		p.InitializeFreeListCategories()
		for i := FirstCategory; i <= LastCategory; i++ {
			if p.CategoryAt(i) == nil {
				t.Fatalf("round %d: category %d is nil after allocation", round, i)
			}
		}
		p.ReleaseFreeListCategories()
		if p.CategoryAt(TinyCategory) != nil {
			t.Fatalf("round %d: categories survived release", round)
		}
		if p.AvailableInFreeList() != 0 {
			t.Fatalf("round %d: free bytes survived release", round)
		}
	}
}

func TestAllocateFreeListCategoriesTwicePanics(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)
	p.AllocateFreeListCategories()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double allocation")
		}
	}()
	p.AllocateFreeListCategories()
}

func TestRememberedSetMergePreservesEntries(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)

	// Entries recorded before the sweep.
	preSweep := []uintptr{0x40, 0x88, 0x1000, 0x20000}
	live := p.AllocateSlotSet(OldToNew)
	for _, off := range preSweep {
		live.Insert(off)
	}

	p.MoveOldToNewRememberedSetForSweeping()
	if p.SlotSetFor(OldToNew) != nil {
		t.Fatal("live set should be detached for sweeping")
	}
	if p.SweepingSlotSet() == nil {
		t.Fatal("sweeping set missing after move")
	}

	// Mutator inserts during the concurrent sweep, including a duplicate
	// of a pre-sweep entry.
	duringSweep := []uintptr{0x88, 0x200, 0x7f8}
	fresh := p.AllocateSlotSet(OldToNew)
	for _, off := range duringSweep {
		fresh.InsertAtomic(off)
	}

	p.MergeOldToNewRememberedSets()
	if p.SweepingSlotSet() != nil {
		t.Fatal("sweeping set should be cleared after merge")
	}

	merged := p.SlotSetFor(OldToNew)
	want := map[uintptr]bool{}
	for _, off := range preSweep {
		want[off] = true
	}
	for _, off := range duringSweep {
		want[off] = true
	}
	for off := range want {
		if !merged.Contains(off) {
			t.Errorf("slot %#x lost in merge", off)
		}
	}
	if merged.Count() != len(want) {
		t.Errorf("merged set has %d slots, want %d (duplicates must not double)", merged.Count(), len(want))
	}
}

func TestMergeWithoutMoveIsNoop(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)
	p.AllocateSlotSet(OldToNew).Insert(0x40)
	p.MergeOldToNewRememberedSets()
	if !p.SlotSetFor(OldToNew).Contains(0x40) {
		t.Fatal("merge without staged set must leave live set intact")
	}
}

func TestMoveTwicePanics(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)
	p.AllocateSlotSet(OldToNew)
	p.MoveOldToNewRememberedSetForSweeping()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second move")
		}
	}()
	p.MoveOldToNewRememberedSetForSweeping()
}

func TestConvertNewToOld(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.NewSpace().Space)
	p.SetFlag(PageInNewSpace)
	p.AllocateFreeListCategories()
	p.InitializeFreeListCategories()

	converted := ConvertNewToOld(p)
	if converted.Owner() != h.OldSpace().Space {
		t.Fatal("converted page not owned by old space")
	}
	if converted.HasFlag(PageInNewSpace) {
		t.Fatal("flags must be reset wholesale on conversion")
	}
	if !converted.HasFlag(PageInOldSpace) {
		t.Fatal("page not re-initialized under new owner")
	}
	found := false
	for _, page := range h.OldSpace().Pages() {
		if page == converted {
			found = true
		}
	}
	if !found {
		t.Fatal("converted page not registered with old space")
	}
	for _, page := range h.NewSpace().Pages() {
		if page == converted {
			t.Fatal("converted page still registered with new space")
		}
	}
}

func TestConvertNonNewPagePanics(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic converting old-space page")
		}
	}()
	ConvertNewToOld(p)
}

func TestShrinkToHighWaterMark(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)

	// Simulate allocation up to an unaligned high water mark with a
	// trailing filler covering the rest of the area.
	used := 3 * CommitPageSize / 2 // 1.5 commit pages
	hwm := p.AreaStart() + Address(used)
	p.SetHighWaterMark(hwm)
	h.CreateFillerObjectAt(hwm, int(p.AreaEnd()-hwm))

	sizeBefore := p.Size()
	unusable := int(p.AreaEnd()-hwm) % CommitPageSize
	wantReclaimed := int(p.AreaEnd()-hwm) - unusable

	reclaimed := p.ShrinkToHighWaterMark()
	if reclaimed != wantReclaimed {
		t.Fatalf("reclaimed %d bytes, want %d", reclaimed, wantReclaimed)
	}
	if p.Size() != sizeBefore-reclaimed {
		t.Fatalf("page size %d, want %d", p.Size(), sizeBefore-reclaimed)
	}
	if unusable > 0 {
		size, ok := h.FillerAt(hwm)
		if !ok || hwm+Address(size) != p.AreaEnd() {
			t.Fatal("retained filler must exactly cover the unreclaimable tail")
		}
	}

	// A second shrink finds nothing further to reclaim.
	if again := p.ShrinkToHighWaterMark(); again != 0 {
		t.Fatalf("second shrink reclaimed %d bytes, want 0", again)
	}
}

func TestShrinkAtAreaEndReclaimsNothing(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)
	p.SetHighWaterMark(p.AreaEnd())
	if got := p.ShrinkToHighWaterMark(); got != 0 {
		t.Fatalf("reclaimed %d bytes from full page, want 0", got)
	}
}

func TestShrinkWithSlotSetPanics(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)
	hwm := p.AreaStart() + CommitPageSize
	p.SetHighWaterMark(hwm)
	h.CreateFillerObjectAt(hwm, int(p.AreaEnd()-hwm))
	p.AllocateSlotSet(OldToNew)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic shrinking page with slot set")
		}
	}()
	p.ShrinkToHighWaterMark()
}

func TestBlackAreaLiveByteAccounting(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)
	h.SetBlackAllocation(true)

	start := p.AreaStart()
	end := start + 256
	p.CreateBlackArea(start, end)
	if p.LiveBytes() != 256 {
		t.Fatalf("live bytes %d, want 256", p.LiveBytes())
	}
	bitmap := h.MarkingState().Bitmap(p)
	if !bitmap.Get(p.MarkbitIndex(start)) || !bitmap.Get(p.MarkbitIndex(end)-1) {
		t.Fatal("black area bits not set")
	}

	p.DestroyBlackArea(start, end)
	if p.LiveBytes() != 0 {
		t.Fatalf("live bytes %d after destroy, want 0", p.LiveBytes())
	}
	if !bitmap.IsClear(p.MarkbitIndex(start), p.MarkbitIndex(end)) {
		t.Fatal("black area bits survived destroy")
	}
}

func TestBlackAreaBackgroundVariant(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)
	h.SetBlackAllocation(true)

	start := p.AreaStart() + 512
	end := start + 128
	p.CreateBlackAreaBackground(start, end)
	if p.LiveBytes() != 128 {
		t.Fatalf("live bytes %d, want 128", p.LiveBytes())
	}
	p.DestroyBlackAreaBackground(start, end)
	if p.LiveBytes() != 0 {
		t.Fatalf("live bytes %d, want 0", p.LiveBytes())
	}
}

func TestBlackAreaRequiresBlackAllocation(t *testing.T) {
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic without black allocation")
		}
	}()
	p.CreateBlackArea(p.AreaStart(), p.AreaStart()+64)
}

func TestEndToEndPageLifecycle(t *testing.T) {
	// Scenario: page created, categories allocated and released twice,
	// no committed-memory growth and all-null category state at the end.
	h := NewHeap()
	p := newTestPage(t, h, h.OldSpace().Space)
	committed := h.Allocator().CommittedBytes()

	for i := 0; i < 2; i++ {
		p.AllocateFreeListCategories()
		p.InitializeFreeListCategories()
		p.CategoryAt(SmallCategory).Free(p.AreaStart(), 512)
		if p.AvailableInFreeList() != 512 {
			t.Fatalf("available %d, want 512", p.AvailableInFreeList())
		}
		p.ReleaseFreeListCategories()
	}

	if h.Allocator().CommittedBytes() != committed {
		t.Fatal("category churn changed committed memory")
	}
	if p.CategoryAt(TinyCategory) != nil {
		t.Fatal("categories not all-null after final release")
	}
}
