package agent

import (
	"context"
	"testing"

	"github.com/aiserve/msserve/batch"
	"github.com/aiserve/msserve/lifecycle"
	"github.com/aiserve/msserve/tensor"
	"github.com/aiserve/msserve/wire"
	"github.com/aiserve/msserve/wire/mspb"
)

type doubleBackend struct{}

func (doubleBackend) Predict(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	out, _ := tensor.New(tensor.I32, inputs[0].Shape)
	in := inputs[0].Bytes()
	buf := out.Bytes()
	copy(buf, in)
	return []*tensor.Tensor{out}, nil
}

func TestAgentPredictRoundTrip(t *testing.T) {
	spec := batch.ModelSpec{
		BatchSize: 2,
		Inputs:    []batch.InputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
		Outputs:   []batch.OutputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
	}
	b := batch.NewBatcher(spec, doubleBackend{})
	defer b.Close()
	a := New(0, []string{"x"}, []string{"y"}, b, lifecycle.New())

	xt, _ := tensor.New(tensor.I32, tensor.Shape{})
	_ = xt.SetBytes([]byte{3, 0, 0, 0})
	wt, err := wire.EncodeTensor(xt)
	if err != nil {
		t.Fatal(err)
	}
	req := &mspb.DistributedPredictRequest{
		RankID:    0,
		Instances: []*mspb.Instance{{Tensors: map[string]*mspb.Tensor{"x": wt}}},
	}
	rep, err := a.Predict(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Error != nil {
		t.Fatalf("unexpected error reply: %s", rep.Error.Message)
	}
	if len(rep.Instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(rep.Instances))
	}
	if _, ok := rep.Instances[0].Tensors["y"]; !ok {
		t.Fatal("expected output tensor y")
	}
}

func TestAgentPredictEmptyRequestIsNoOp(t *testing.T) {
	a := New(1, nil, nil, nil, lifecycle.New())
	rep, err := a.Predict(context.Background(), &mspb.DistributedPredictRequest{RankID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if rep.RankID != 1 || len(rep.Instances) != 0 {
		t.Fatal("expected empty no-op reply for non-first-stage rank")
	}
}

func TestAgentExitStopsLatch(t *testing.T) {
	latch := lifecycle.New()
	latch.Start()
	a := New(0, nil, nil, nil, latch)
	if _, err := a.Exit(context.Background(), &mspb.ExitRequest{}); err != nil {
		t.Fatal(err)
	}
	if !latch.HasStopped() {
		t.Fatal("expected Exit to raise the lifecycle latch")
	}
}
