package pipeline

import (
	"context"
	"testing"

	"github.com/aiserve/msserve/batch"
	"github.com/aiserve/msserve/instance"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/servable"
	"github.com/aiserve/msserve/tensor"
)

func scalarI32(v int32) *tensor.Tensor {
	t, _ := tensor.New(tensor.I32, tensor.Shape{})
	_ = t.SetBytes([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
	return t
}

type doubleBackend struct{}

func (doubleBackend) Predict(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	in := inputs[0].Bytes()
	out, _ := tensor.New(tensor.I32, inputs[0].Shape)
	buf := out.Bytes()
	for i := 0; i+4 <= len(in); i += 4 {
		v := int32(in[i]) | int32(in[i+1])<<8 | int32(in[i+2])<<16 | int32(in[i+3])<<24
		v *= 2
		buf[i], buf[i+1], buf[i+2], buf[i+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	return []*tensor.Tensor{out}, nil
}

func newTestExecutor(t *testing.T, batchSize int) *Executor {
	stages := NewStageRegistry()
	if err := stages.Register("addone", 1, func(ctx context.Context, inputs [][]*tensor.Tensor) ([][]*tensor.Tensor, error) {
		out := make([][]*tensor.Tensor, len(inputs))
		for i, in := range inputs {
			v := int32(in[0].Bytes()[0]) + 1
			out[i] = []*tensor.Tensor{scalarI32(v)}
		}
		return out, nil
	}); err != nil {
		t.Fatal(err)
	}

	spec := batch.ModelSpec{
		BatchSize: batchSize,
		Inputs:    []batch.InputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
		Outputs:   []batch.OutputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
	}
	b := batch.NewBatcher(spec, doubleBackend{})
	t.Cleanup(b.Close)

	lookup := func(servableName string, version int64) (*batch.Batcher, error) { return b, nil }
	return NewExecutor(stages, NewScheduler(2), lookup)
}

func TestExecutorFullPipeline(t *testing.T) {
	e := newTestExecutor(t, 4)
	method := servable.MethodSignature{
		Name:         "predict",
		Inputs:       []string{"x"},
		Outputs:      []string{"y"},
		Preprocess:   "addone",
		PreInputs:    []servable.SourceTag{{Phase: servable.PhaseInput, Index: 0}},
		PredictInputs: []servable.SourceTag{{Phase: servable.PhasePreprocess, Index: 0}},
		ReturnInputs: []servable.SourceTag{{Phase: servable.PhasePredict, Index: 0}},
	}
	batchInst := instance.Batch{
		instance.New(0, "u1", instance.MethodRef{ServableName: "m", MethodName: "predict"}, []*tensor.Tensor{scalarI32(1)}),
		instance.New(1, "u1", instance.MethodRef{ServableName: "m", MethodName: "predict"}, []*tensor.Tensor{scalarI32(2)}),
	}
	results, err := e.Execute(context.Background(), "m", 1, method, batchInst)
	if err != nil {
		t.Fatal(err)
	}
	// (1+1)*2 = 4, (2+1)*2 = 6
	if got := int32(results[0][0].Bytes()[0]); got != 4 {
		t.Fatalf("instance 0: want 4, got %d", got)
	}
	if got := int32(results[1][0].Bytes()[0]); got != 6 {
		t.Fatalf("instance 1: want 6, got %d", got)
	}
}

func TestExecutorWithdrawsFailedInstanceButSiblingsContinue(t *testing.T) {
	stages := NewStageRegistry()
	if err := stages.Register("maybefail", 1, func(ctx context.Context, inputs [][]*tensor.Tensor) ([][]*tensor.Tensor, error) {
		out := make([][]*tensor.Tensor, len(inputs))
		for i, in := range inputs {
			out[i] = []*tensor.Tensor{in[0]}
		}
		return out, nil
	}); err != nil {
		t.Fatal(err)
	}
	spec := batch.ModelSpec{
		BatchSize: 4,
		Inputs:    []batch.InputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
		Outputs:   []batch.OutputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
	}
	b := batch.NewBatcher(spec, doubleBackend{})
	t.Cleanup(b.Close)
	e := NewExecutor(stages, NewScheduler(2), func(string, int64) (*batch.Batcher, error) { return b, nil })

	method := servable.MethodSignature{
		Name:          "predict",
		Inputs:        []string{"x"},
		Outputs:       []string{"y"},
		Preprocess:    "maybefail",
		PreInputs:     []servable.SourceTag{{Phase: servable.PhaseInput, Index: 0}},
		PredictInputs: []servable.SourceTag{{Phase: servable.PhasePreprocess, Index: 0}},
		ReturnInputs:  []servable.SourceTag{{Phase: servable.PhasePredict, Index: 0}},
	}
	failed := instance.New(0, "u1", instance.MethodRef{ServableName: "m", MethodName: "predict"}, []*tensor.Tensor{scalarI32(1)})
	failed.Fail(mnerr.New(mnerr.InvalidInputs, "pre-existing failure"))
	ok := instance.New(1, "u1", instance.MethodRef{ServableName: "m", MethodName: "predict"}, []*tensor.Tensor{scalarI32(3)})
	batchInst := instance.Batch{failed, ok}

	results, err := e.Execute(context.Background(), "m", 1, method, batchInst)
	if err != nil {
		t.Fatal(err)
	}
	if results[0] != nil {
		t.Fatal("expected failed instance to produce no result")
	}
	if got := int32(results[1][0].Bytes()[0]); got != 6 {
		t.Fatalf("sibling instance: want 6, got %d", got)
	}
}
