package shm

// fakeOpener backs segments with plain heap buffers, letting allocator
// bookkeeping (free-set management, double-free detection, segment
// growth) be unit-tested without a real POSIX shm subsystem.
type fakeOpener struct{}

func (fakeOpener) Open(_ string, size uint64) (*mapping, error) {
	return &mapping{data: make([]byte, size)}, nil
}

func (fakeOpener) Close(*mapping) error { return nil }

// NewTestAllocator returns an Allocator backed by in-process memory,
// for use in unit tests that don't want a real shm_open dependency.
func NewTestAllocator() *Allocator {
	return newAllocatorWithOpener(fakeOpener{})
}
