package shm

import (
	"fmt"
	"sync"

	"github.com/aiserve/msserve/mnerr"
)

// attachment is one mapped segment on the read side, refcounted across
// multiple Attach calls against the same memory_key.
//
// spec.md §9 Open Question: "whether Detach should be refcounted against
// multiple Attach calls; the source refuses a second detach." Decision
// (recorded in DESIGN.md): msserve refcounts attaches, unlike the
// source, because a Go process may legitimately hold several concurrent
// AttachHandles into the same segment from different goroutines and a
// single shared unmap would race one of them; Detach only truly unmaps
// once every attacher has detached.
type attachment struct {
	m    *mapping
	refs int
}

// AttachHandle is the read-side view into a segment at one offset
// (spec.md §4.A "Attach contract").
type AttachHandle struct {
	MemoryKey string
	Offset    uint64
	Size      uint64
}

// AttachManager implements the Attach/Detach contract of spec.md §4.A,
// single-mutex-serialized like Allocator.
type AttachManager struct {
	mu      sync.Mutex
	attached map[string]*attachment
	opener  segmentOpener
}

func NewAttachManager() *AttachManager {
	return &AttachManager{attached: make(map[string]*attachment), opener: posixOpener{}}
}

func newAttachManagerWithOpener(o segmentOpener) *AttachManager {
	return &AttachManager{attached: make(map[string]*attachment), opener: o}
}

// Attach maps memoryKey on first use (refcounting subsequent calls) and
// returns a handle into [dataOffset, dataOffset+dataSize).
// Range check: data_offset + data_size <= bytes_size (spec.md §4.A).
func (m *AttachManager) Attach(memoryKey string, bytesSize, dataOffset, dataSize uint64) (AttachHandle, error) {
	if dataOffset+dataSize > bytesSize {
		return AttachHandle{}, mnerr.New(mnerr.Failed, "attach range [%d,%d) exceeds segment size %d", dataOffset, dataOffset+dataSize, bytesSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attached[memoryKey]
	if !ok {
		mp, err := m.opener.Open(memoryKey, bytesSize)
		if err != nil {
			return AttachHandle{}, mnerr.Wrap(mnerr.SystemError, err, "attach %s", memoryKey)
		}
		a = &attachment{m: mp}
		m.attached[memoryKey] = a
	}
	a.refs++
	return AttachHandle{MemoryKey: memoryKey, Offset: dataOffset, Size: dataSize}, nil
}

// Detach unmaps memoryKey once every Attach call against it has a
// matching Detach. Detaching a never-attached key fails (spec.md §4.A).
func (m *AttachManager) Detach(memoryKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attached[memoryKey]
	if !ok {
		return mnerr.New(mnerr.Failed, "detach of unattached key %q", memoryKey)
	}
	a.refs--
	if a.refs > 0 {
		return nil
	}
	delete(m.attached, memoryKey)
	if err := m.opener.Close(a.m); err != nil {
		return mnerr.Wrap(mnerr.SystemError, err, "detach %s", memoryKey)
	}
	return nil
}

// Bytes returns the read-only-intent slice for h. Callers must not hold
// a returned slice across a Detach call (spec.md §4.A).
func (m *AttachManager) Bytes(h AttachHandle) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attached[h.MemoryKey]
	if !ok {
		panic(fmt.Sprintf("shm: Bytes on unattached key %q", h.MemoryKey))
	}
	return a.m.data[h.Offset : h.Offset+h.Size]
}
