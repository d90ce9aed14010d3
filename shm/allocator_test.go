package shm

import "testing"

func TestAllocRelease_Invariant(t *testing.T) {
	a := NewTestAllocator()
	if err := a.NewPool("p", 64, 3); err != nil {
		t.Fatal(err)
	}
	free, total := a.outstandingAndFree("p")
	if free != 3 || total != 3 {
		t.Fatalf("want 3 free of 3 total, got %d/%d", free, total)
	}
	h0, _ := a.Alloc("p")
	free, _ = a.outstandingAndFree("p")
	if free != 2 {
		t.Fatalf("want 2 free after one alloc, got %d", free)
	}
	a.Release(h0)
	free, _ = a.outstandingAndFree("p")
	if free != 3 {
		t.Fatalf("want 3 free after release, got %d", free)
	}
}

// TestReallocReturnsSameSlot is scenario 6 from spec.md §8: allocate 3,
// release item[1], the next alloc must return the just-released slot.
func TestReallocReturnsSameSlot(t *testing.T) {
	a := NewTestAllocator()
	if err := a.NewPool("p", 64, 3); err != nil {
		t.Fatal(err)
	}
	h0, _ := a.Alloc("p")
	h1, _ := a.Alloc("p")
	h2, _ := a.Alloc("p")
	_ = h0
	_ = h2
	a.Release(h1)
	h3, err := a.Alloc("p")
	if err != nil {
		t.Fatal(err)
	}
	if h3.Key != h1.Key || h3.Offset != h1.Offset {
		t.Fatalf("expected realloc to reuse (%s,%d), got (%s,%d)", h1.Key, h1.Offset, h3.Key, h3.Offset)
	}
}

func TestDoubleReleaseIsFatal(t *testing.T) {
	a := NewTestAllocator()
	if err := a.NewPool("p", 64, 1); err != nil {
		t.Fatal(err)
	}
	h, _ := a.Alloc("p")
	a.Release(h)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double release")
		}
	}()
	a.Release(h)
}

func TestNewPoolDuplicatePrefixFails(t *testing.T) {
	a := NewTestAllocator()
	if err := a.NewPool("p", 64, 1); err != nil {
		t.Fatal(err)
	}
	if err := a.NewPool("p", 64, 1); err == nil {
		t.Fatal("expected error re-registering existing prefix")
	}
}

func TestAttachRangeCheck(t *testing.T) {
	m := newAttachManagerWithOpener(fakeOpener{})
	if _, err := m.Attach("k", 10, 8, 4); err == nil {
		t.Fatal("expected range-check failure for offset+size > bytesSize")
	}
	if _, err := m.Attach("k", 10, 4, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDetachRefcounted(t *testing.T) {
	m := newAttachManagerWithOpener(fakeOpener{})
	if _, err := m.Attach("k", 10, 0, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Attach("k", 10, 0, 4); err != nil {
		t.Fatal(err)
	}
	if err := m.Detach("k"); err != nil {
		t.Fatal(err)
	}
	// second attacher still holds it: the second detach unmaps, and a
	// third finds nothing attached.
	if err := m.Detach("k"); err != nil {
		t.Fatal(err)
	}
	if err := m.Detach("k"); err == nil {
		t.Fatal("expected error detaching already-fully-detached key")
	}
}
