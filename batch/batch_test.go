package batch

import (
	"context"
	"testing"

	"github.com/aiserve/msserve/tensor"
)

type echoBackend struct{}

func (echoBackend) Predict(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	out, _ := tensor.New(tensor.I32, inputs[0].Shape)
	_ = out.SetBytes(inputs[0].Bytes())
	return []*tensor.Tensor{out}, nil
}

// recordingBackend echoes like echoBackend and keeps a copy of the
// packed input buffer it was called with.
type recordingBackend struct{ packed []byte }

func (r *recordingBackend) Predict(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	r.packed = append([]byte(nil), inputs[0].Bytes()...)
	return echoBackend{}.Predict(ctx, inputs)
}

func newScalarI32(v int32) *tensor.Tensor {
	t, _ := tensor.New(tensor.I32, tensor.Shape{})
	b := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	_ = t.SetBytes(b)
	return t
}

func TestBatcherPadsTailByRepeatingInstanceZero(t *testing.T) {
	spec := ModelSpec{
		BatchSize: 4,
		Inputs:    []InputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
		Outputs:   []OutputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
	}
	rb := &recordingBackend{}
	b := NewBatcher(spec, rb)
	defer b.Close()

	inputs := [][]*tensor.Tensor{
		{newScalarI32(7)},
		{newScalarI32(9)},
	}
	outs, err := b.Predict(context.Background(), inputs)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 {
		t.Fatalf("expected 2 instance outputs, got %d", len(outs))
	}
	if string(outs[0][0].Bytes()) != string(newScalarI32(7).Bytes()) {
		t.Fatal("instance 0 output mismatch")
	}
	if string(outs[1][0].Bytes()) != string(newScalarI32(9).Bytes()) {
		t.Fatal("instance 1 output mismatch")
	}
	var want []byte
	for _, v := range []int32{7, 9, 7, 7} {
		want = append(want, newScalarI32(v).Bytes()...)
	}
	if string(rb.packed) != string(want) {
		t.Fatalf("packed batch %v, want 7, 9, then instance 0 repeated", rb.packed)
	}
}

func TestBatcherRejectsOversizeBatch(t *testing.T) {
	spec := ModelSpec{
		BatchSize: 1,
		Inputs:    []InputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
		Outputs:   []OutputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
	}
	b := NewBatcher(spec, echoBackend{})
	defer b.Close()

	inputs := [][]*tensor.Tensor{{newScalarI32(1)}, {newScalarI32(2)}}
	if _, err := b.Predict(context.Background(), inputs); err == nil {
		t.Fatal("expected error for batch exceeding model_batch_size")
	}
}

func TestCompressBytesValRoundTrip(t *testing.T) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	compressed, applied, err := CompressBytesVal(data, 16)
	if err != nil {
		t.Fatal(err)
	}
	if !applied {
		t.Fatal("expected compression to apply above threshold")
	}
	back, err := DecompressBytesVal(compressed)
	if err != nil {
		t.Fatal(err)
	}
	if string(back) != string(data) {
		t.Fatal("round trip mismatch")
	}
}

func TestCompressBytesValSkipsBelowThreshold(t *testing.T) {
	data := []byte("short")
	_, applied, err := CompressBytesVal(data, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Fatal("expected no compression below threshold")
	}
}
