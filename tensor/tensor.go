// Package tensor implements the typed multi-dimensional buffer view
// described in spec.md §3/§4.A: a Tensor wraps either an owned buffer,
// a borrowed buffer (lifetime guaranteed by the holder), or a
// shared-memory-backed buffer (see package shm), behind one API.
package tensor

import (
	"fmt"

	"github.com/aiserve/msserve/mnerr"
)

// Shape is an ordered sequence of non-negative dimensions. At most one
// dimension may be 0, meaning "empty" (spec.md §3).
type Shape []int64

// NumElements returns the product of all dims (1 for a scalar []Shape).
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) Validate() error {
	zeros := 0
	for _, d := range s {
		if d < 0 {
			return mnerr.New(mnerr.InvalidInputs, "shape dim %d is negative", d)
		}
		if d == 0 {
			zeros++
		}
	}
	if zeros > 1 {
		return mnerr.New(mnerr.InvalidInputs, "shape has %d empty dims, at most one allowed", zeros)
	}
	return nil
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Buffer is the minimal contract a backing store must satisfy: a
// contiguous byte view plus whether it may be written through.
type Buffer interface {
	Bytes() []byte
	ReadOnly() bool
}

// ownedBuffer is a plain heap-allocated, tensor-lifetime-scoped buffer.
type ownedBuffer struct{ b []byte }

func (o *ownedBuffer) Bytes() []byte { return o.b }
func (*ownedBuffer) ReadOnly() bool  { return false }

// borrowedBuffer wraps a slice whose lifetime the holder guarantees
// outlives the tensor (spec.md §3: "borrowing... enforced by the holder").
type borrowedBuffer struct {
	b        []byte
	readOnly bool
}

func (b *borrowedBuffer) Bytes() []byte { return b.b }
func (b *borrowedBuffer) ReadOnly() bool { return b.readOnly }

// Tensor is a typed view over a Buffer plus, for string/bytes dtypes, a
// single-element byte-string list (spec.md §3).
type Tensor struct {
	DType     DType
	Shape     Shape
	buf       Buffer
	bytesVal  [][]byte // populated only for String/Bytes
}

// New validates shape/dtype and wraps a fresh owned buffer of the exact
// required size (zero-filled).
func New(dtype DType, shape Shape) (*Tensor, error) {
	if dtype == Unknown {
		return nil, mnerr.New(mnerr.InvalidInputs, "tensor dtype cannot be unknown")
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if dtype.IsVariableLength() {
		if len(shape) > 1 || (len(shape) == 1 && shape[0] > 1) {
			return nil, mnerr.New(mnerr.InvalidInputs, "string/bytes tensor shape must be [] or [1], got %v", shape)
		}
		return &Tensor{DType: dtype, Shape: shape, bytesVal: [][]byte{nil}}, nil
	}
	size := shape.NumElements() * dtype.ItemSize()
	return &Tensor{DType: dtype, Shape: shape, buf: &ownedBuffer{b: make([]byte, size)}}, nil
}

// Borrow wraps an existing buffer the caller guarantees will outlive the
// returned Tensor. readOnly borrows fail Set/Bytes-for-write with
// mnerr.Failed ("ReadOnly") per spec.md §3.
func Borrow(dtype DType, shape Shape, buf []byte, readOnly bool) (*Tensor, error) {
	if dtype == Unknown {
		return nil, mnerr.New(mnerr.InvalidInputs, "tensor dtype cannot be unknown")
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	want := shape.NumElements() * dtype.ItemSize()
	if int64(len(buf)) != want {
		return nil, mnerr.New(mnerr.InvalidInputs, "buffer size %d does not match shape/dtype (want %d)", len(buf), want)
	}
	return &Tensor{DType: dtype, Shape: shape, buf: &borrowedBuffer{b: buf, readOnly: readOnly}}, nil
}

// NewBytesVal builds a string/bytes-flavored tensor from a single value.
func NewBytesVal(dtype DType, value []byte) (*Tensor, error) {
	if !dtype.IsVariableLength() {
		return nil, mnerr.New(mnerr.InvalidInputs, "NewBytesVal requires string or bytes dtype")
	}
	return &Tensor{DType: dtype, Shape: Shape{}, bytesVal: [][]byte{value}}, nil
}

// Bytes returns the contiguous numeric buffer itself, not a copy; the
// read-only check applies to SetBytes, not to this slice. Panics-free:
// for string/bytes tensors it returns nil; callers must use BytesVal.
func (t *Tensor) Bytes() []byte {
	if t.buf == nil {
		return nil
	}
	return t.buf.Bytes()
}

// BytesVal returns the single string/bytes payload, or an error if t is
// not a variable-length tensor or doesn't carry exactly one element.
func (t *Tensor) BytesVal() ([]byte, error) {
	if !t.DType.IsVariableLength() {
		return nil, mnerr.New(mnerr.InvalidInputs, "tensor dtype %s is not string/bytes", t.DType)
	}
	if len(t.bytesVal) != 1 {
		return nil, mnerr.New(mnerr.InvalidInputs, "bytes_val must have exactly 1 element, got %d", len(t.bytesVal))
	}
	return t.bytesVal[0], nil
}

// SetBytes overwrites the numeric buffer in place. Fails with
// mnerr.Failed if the tensor is backed by a read-only borrow.
func (t *Tensor) SetBytes(data []byte) error {
	if t.buf == nil {
		return mnerr.New(mnerr.Failed, "tensor has no numeric buffer (string/bytes dtype)")
	}
	if t.buf.ReadOnly() {
		return mnerr.New(mnerr.Failed, "ReadOnly")
	}
	if len(data) != len(t.buf.Bytes()) {
		return mnerr.New(mnerr.InvalidInputs, "SetBytes size mismatch: have %d want %d", len(data), len(t.buf.Bytes()))
	}
	copy(t.buf.Bytes(), data)
	return nil
}

// SetBytesVal overwrites the string/bytes payload. Fails only when t is
// not a string/bytes tensor; there is no read-only check here.
func (t *Tensor) SetBytesVal(v []byte) error {
	if !t.DType.IsVariableLength() {
		return mnerr.New(mnerr.Failed, "tensor dtype %s does not carry bytes_val", t.DType)
	}
	t.bytesVal = [][]byte{v}
	return nil
}

// Validate enforces the datatype/shape invariant from spec.md §3:
// dtype != unknown, and (shape is [] or [1]) for string/bytes.
func (t *Tensor) Validate() error {
	if t.DType == Unknown {
		return mnerr.New(mnerr.InvalidInputs, "dtype unknown")
	}
	if err := t.Shape.Validate(); err != nil {
		return err
	}
	if t.DType.IsVariableLength() {
		if len(t.Shape) > 1 || (len(t.Shape) == 1 && t.Shape[0] > 1) {
			return mnerr.New(mnerr.InvalidInputs, "string/bytes shape must be [] or [1]")
		}
	}
	return nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s, %v)", t.DType, t.Shape)
}
