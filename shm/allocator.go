// Package shm implements the fixed-slot POSIX shared-memory allocator
// described in spec.md §3/§4.A: a named group of items laid out across
// one or more backing segments, used to pass tensor payloads across
// process boundaries without copying.
package shm

import (
	"fmt"
	"sync"

	"github.com/aiserve/msserve/cmn/debug"
	"github.com/aiserve/msserve/mnerr"
)

// mapping is one mmap'd (or faked, in tests) shared-memory segment.
type mapping struct {
	fd   int
	data []byte
}

const alignment = 8

// alignUp rounds n up to the allocator's 8-byte item alignment
// (spec.md §3 "item size is 8-byte aligned").
func alignUp(n uint64) uint64 {
	return (n + alignment - 1) &^ (alignment - 1)
}

// segment is one backing shared-memory region: a unique key, a
// memory-mapped buffer, and the set of item offsets currently free.
type segment struct {
	key     string
	size    uint64
	backing *mapping // nil in the in-process test/fake backend
	free    map[uint64]struct{} // item offset -> free
}

// Handle identifies one allocated item: which segment, at what offset,
// how large (spec.md §3 "Shm item — identified by (segment_key, offset)").
type Handle struct {
	KeyPrefix string
	Key       string // segment key, "{prefix}_{segment_index}"
	Offset    uint64
	Size      uint64
}

// group is one named pool: a set of fixed-size items spread over
// possibly multiple segments.
type group struct {
	keyPrefix string
	itemSize  uint64
	initCount uint64
	segments  []*segment
}

// Allocator is a single-mutex-serialized pool manager (spec.md §4.A
// "Thread-safety: all allocator operations are serialized by a single
// mutex per allocator instance").
type Allocator struct {
	mu     sync.Mutex
	groups map[string]*group
	opener segmentOpener // pluggable for testing without real shm_open
}

// segmentOpener abstracts the OS-level shm_open+mmap+ftruncate calls so
// the allocator's bookkeeping logic can be unit-tested without a real
// POSIX shared-memory subsystem (e.g. inside a sandboxed CI runner).
type segmentOpener interface {
	Open(key string, size uint64) (*mapping, error)
	Close(m *mapping) error
}

// NewAllocator constructs an allocator backed by real POSIX shm (see
// posix_unix.go). Tests may build one directly with a fake opener.
func NewAllocator() *Allocator {
	return &Allocator{groups: make(map[string]*group), opener: posixOpener{}}
}

func newAllocatorWithOpener(o segmentOpener) *Allocator {
	return &Allocator{groups: make(map[string]*group), opener: o}
}

// NewPool creates the first segment for key_prefix. Fails if the prefix
// is already registered (spec.md §4.A).
func (a *Allocator) NewPool(keyPrefix string, itemSize, initItemCount uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.groups[keyPrefix]; exists {
		return mnerr.New(mnerr.InvalidInputs, "shm pool %q already registered", keyPrefix)
	}
	g := &group{keyPrefix: keyPrefix, itemSize: alignUp(itemSize), initCount: initItemCount}
	a.groups[keyPrefix] = g
	return a.addSegment(g)
}

// addSegment grows the group by one more backing segment of initCount
// items (spec.md §4.A: "doubling is not required; the source grows by
// the initial count per segment"). Caller holds a.mu.
func (a *Allocator) addSegment(g *group) error {
	idx := len(g.segments)
	key := fmt.Sprintf("%s_%d", g.keyPrefix, idx)
	size := g.itemSize * g.initCount
	const maxSegmentSize = 4 << 30 // spec.md §3: "segment size <= 4 GiB"
	if size > maxSegmentSize {
		return mnerr.New(mnerr.InvalidInputs, "segment size %d exceeds 4GiB cap", size)
	}
	m, err := a.opener.Open(key, size)
	if err != nil {
		return mnerr.Wrap(mnerr.SystemError, err, "open shm segment %s", key)
	}
	seg := &segment{key: key, size: size, backing: m, free: make(map[uint64]struct{}, g.initCount)}
	for i := uint64(0); i < g.initCount; i++ {
		seg.free[i*g.itemSize] = struct{}{}
	}
	g.segments = append(g.segments, seg)
	return nil
}

// Alloc returns a free item from the pool, growing it by one segment if
// none is free (spec.md §4.A).
func (a *Allocator) Alloc(keyPrefix string) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[keyPrefix]
	if !ok {
		return Handle{}, mnerr.New(mnerr.InvalidInputs, "shm pool %q not found", keyPrefix)
	}
	for _, seg := range g.segments {
		for off := range seg.free {
			delete(seg.free, off)
			return Handle{KeyPrefix: keyPrefix, Key: seg.key, Offset: off, Size: g.itemSize}, nil
		}
	}
	if err := a.addSegment(g); err != nil {
		return Handle{}, err
	}
	seg := g.segments[len(g.segments)-1]
	for off := range seg.free {
		delete(seg.free, off)
		return Handle{KeyPrefix: keyPrefix, Key: seg.key, Offset: off, Size: g.itemSize}, nil
	}
	return Handle{}, mnerr.New(mnerr.SystemError, "new segment has no free items")
}

// Release returns h's item to its segment's free set. Releasing an
// already-free item is fatal (spec.md §3, §8 "Allocator double-release
// -> fatal"): this is the one genuine panic path in the core per
// Design Notes §9.
func (a *Allocator) Release(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[h.KeyPrefix]
	if !ok {
		panic(fmt.Sprintf("shm: release of unknown pool %q", h.KeyPrefix))
	}
	for _, seg := range g.segments {
		if seg.key != h.Key {
			continue
		}
		if _, alreadyFree := seg.free[h.Offset]; alreadyFree {
			panic(fmt.Sprintf("shm: double-free of item %s@%d", h.Key, h.Offset))
		}
		seg.free[h.Offset] = struct{}{}
		return
	}
	panic(fmt.Sprintf("shm: release of unknown segment %q", h.Key))
}

// Bytes returns the writable slice backing h, for callers (ShmTensor)
// that need to read/write the item's payload directly.
func (a *Allocator) Bytes(h Handle) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	g := a.groups[h.KeyPrefix]
	debug.Assert(g != nil, "shm: Bytes on unknown pool", h.KeyPrefix)
	for _, seg := range g.segments {
		if seg.key == h.Key {
			return seg.backing.data[h.Offset : h.Offset+h.Size]
		}
	}
	panic(fmt.Sprintf("shm: Bytes on unknown segment %q", h.Key))
}

// outstandingAndFree is a test/invariant helper: for every segment in
// keyPrefix, returns the free-item count and the total item count
// (initCount * segment-count); total - free is the outstanding count
// (spec.md §8 invariant).
func (a *Allocator) outstandingAndFree(keyPrefix string) (free, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g := a.groups[keyPrefix]
	if g == nil {
		return 0, 0
	}
	for _, seg := range g.segments {
		free += len(seg.free)
		total += int(g.initCount)
	}
	return free, total
}
