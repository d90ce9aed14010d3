package shm

import "github.com/aiserve/msserve/tensor"

// ShmTensor owns a Handle: on Release the underlying item returns to
// its segment's free set (spec.md §4.A "ShmTensor. Owns a ShmHandle; on
// destruction, the handle is released to the allocator").
//
// Go has no destructors, so unlike the source's RAII ~ShmTensor this is
// an explicit Release the owner must call — typically deferred right
// after the batcher hands outputs back to the pipeline.
type ShmTensor struct {
	*tensor.Tensor
	alloc  *Allocator
	handle Handle
}

// NewShmTensor allocates one item from pool and wraps it as a tensor of
// the given dtype/shape. The item's byte size must be >= the tensor's
// required size.
func NewShmTensor(alloc *Allocator, poolKeyPrefix string, dtype tensor.DType, shape tensor.Shape) (*ShmTensor, error) {
	h, err := alloc.Alloc(poolKeyPrefix)
	if err != nil {
		return nil, err
	}
	buf := alloc.Bytes(h)
	need := shape.NumElements() * dtype.ItemSize()
	t, err := tensor.Borrow(dtype, shape, buf[:need], false)
	if err != nil {
		alloc.Release(h)
		return nil, err
	}
	return &ShmTensor{Tensor: t, alloc: alloc, handle: h}, nil
}

// Handle exposes the underlying (segment_key, offset) pair, e.g. to
// encode it onto the wire in place of an inline tensor payload.
func (s *ShmTensor) Handle() Handle { return s.handle }

// Release returns the backing item to the allocator. Safe to call at
// most once; a second call hits the allocator's double-free panic.
func (s *ShmTensor) Release() { s.alloc.Release(s.handle) }

// AttachTensor is the read-side equivalent: it does not release the
// attachment on destruction (spec.md §4.A "ShmAttachTensor is the
// read-side equivalent and does not release").
type AttachTensor struct {
	*tensor.Tensor
}

// NewAttachTensor wraps an already-Attach'd region as a read-only tensor
// view. Callers are responsible for Detach'ing the manager separately.
func NewAttachTensor(mgr *AttachManager, h AttachHandle, dtype tensor.DType, shape tensor.Shape) (*AttachTensor, error) {
	buf := mgr.Bytes(h)
	t, err := tensor.Borrow(dtype, shape, buf, true)
	if err != nil {
		return nil, err
	}
	return &AttachTensor{Tensor: t}, nil
}
