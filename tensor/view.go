package tensor

import "sync/atomic"

// sharedBacking is the backing store for a batch of zero-copy output
// views: N tensors of shape [...] all alias slices of one [batch, ...]
// buffer, and the buffer is freed only once every view has been
// released (spec.md §4.E "Batching": "output tensors... unpacked into N
// result tensors... sharing the output buffer via reference-counted
// views").
type sharedBacking struct {
	buf  []byte
	refs int64
}

func (s *sharedBacking) Bytes() []byte { return s.buf }
func (*sharedBacking) ReadOnly() bool  { return false }

func (s *sharedBacking) retain() { atomic.AddInt64(&s.refs, 1) }

func (s *sharedBacking) release() int64 { return atomic.AddInt64(&s.refs, -1) }

// Unpack slices a [batch, ...] output buffer into n result tensors of
// shape elemShape, sharing the one backing buffer via a refcount rather
// than copying (spec.md §4.E).
func Unpack(dtype DType, elemShape Shape, batchBuf []byte, n int) ([]*Tensor, error) {
	elemSize := elemShape.NumElements() * dtype.ItemSize()
	backing := &sharedBacking{buf: batchBuf, refs: int64(n)}
	out := make([]*Tensor, n)
	for i := 0; i < n; i++ {
		lo, hi := int64(i)*elemSize, int64(i+1)*elemSize
		out[i] = &Tensor{
			DType: dtype,
			Shape: elemShape,
			buf:   &viewSlice{backing: backing, b: backing.buf[lo:hi]},
		}
	}
	return out, nil
}

// viewSlice is one reference-counted slice of a sharedBacking.
type viewSlice struct {
	backing *sharedBacking
	b       []byte
}

func (v *viewSlice) Bytes() []byte { return v.b }
func (*viewSlice) ReadOnly() bool  { return false }

// Release drops one reference to a view's shared backing. Once every
// view sharing a batch buffer has been released the caller (the
// Batcher) may recycle the underlying slab.
func Release(t *Tensor) (lastRef bool) {
	v, ok := t.buf.(*viewSlice)
	if !ok {
		return false
	}
	return v.backing.release() == 0
}
