package wire

import (
	"testing"

	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/tensor"
	"github.com/aiserve/msserve/wire/mspb"
)

func TestEncodeDecodeRoundTripNumeric(t *testing.T) {
	tt, err := tensor.New(tensor.I32, tensor.Shape{})
	if err != nil {
		t.Fatal(err)
	}
	if err := tt.SetBytes([]byte{5, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	wt, err := EncodeTensor(tt)
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeTensor(wt)
	if err != nil {
		t.Fatal(err)
	}
	if string(back.Bytes()) != string(tt.Bytes()) {
		t.Fatal("round trip mismatch")
	}
}

func TestEncodeDecodeRoundTripBytes(t *testing.T) {
	tt, err := tensor.NewBytesVal(tensor.Bytes, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	wt, err := EncodeTensor(tt)
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeTensor(wt)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := back.BytesVal()
	if string(v) != "hello" {
		t.Fatalf("want hello, got %q", v)
	}
}

func TestEncodeDecodeRoundTripBytesAboveCompressThreshold(t *testing.T) {
	prev := CompressThreshold
	CompressThreshold = 16
	t.Cleanup(func() { CompressThreshold = prev })

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	tt, err := tensor.NewBytesVal(tensor.Bytes, payload)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := EncodeTensor(tt)
	if err != nil {
		t.Fatal(err)
	}
	if !wt.Compressed {
		t.Fatal("expected a payload above CompressThreshold to be compressed")
	}
	back, err := DecodeTensor(wt)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := back.BytesVal()
	if string(v) != string(payload) {
		t.Fatal("round trip mismatch for compressed payload")
	}
}

func TestDecodeTensorRejectsBadBytesValCount(t *testing.T) {
	wt := &mspb.Tensor{DType: int32(tensor.Bytes), BytesVal: [][]byte{[]byte("a"), []byte("b")}}
	if _, err := DecodeTensor(wt); err == nil {
		t.Fatal("expected error for bytes_val.len != 1")
	}
}

func TestMergeErrorsAllSuccess(t *testing.T) {
	errs := []error{nil, nil}
	if got := MergeErrors(nil, errs); got != nil {
		t.Fatalf("expected nil error list, got %v", got)
	}
}

func TestMergeErrorsAllSameCollapsesToOne(t *testing.T) {
	e := mnerr.New(mnerr.Failed, "boom")
	got := MergeErrors(nil, []error{e, e})
	if len(got) != 1 {
		t.Fatalf("expected single merged error, got %d", len(got))
	}
}

func TestMergeErrorsMixedPerInstance(t *testing.T) {
	e1 := mnerr.New(mnerr.Failed, "boom1")
	e2 := mnerr.New(mnerr.InvalidInputs, "boom2")
	got := MergeErrors(nil, []error{e1, e2})
	if len(got) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(got))
	}
}

func TestSplitErrorsAppliesSingleToAll(t *testing.T) {
	reply := &mspb.PredictReply{Errors: []*mspb.ErrorMsg{{Code: int32(mnerr.Failed), Message: "x"}}}
	got := SplitErrors(reply, 3)
	if len(got) != 3 {
		t.Fatalf("want 3, got %d", len(got))
	}
	for _, e := range got {
		if e.Message != "x" {
			t.Fatal("expected single error applied to every instance")
		}
	}
}
