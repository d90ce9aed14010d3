// Package batch implements the Predict Batcher of spec.md §4.F: it
// copy-packs N instance inputs into one model-shaped call, pads the
// tail by repeating instance 0, and unpacks the model's batch output
// into N zero-copy views.
package batch

import (
	"context"
	"sync"

	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/stats"
	"github.com/aiserve/msserve/tensor"
)

// InferenceBackend is the pluggable model-execution contract; actually
// loading and running a model is out of scope (spec.md §1 Non-goals).
// Inputs/outputs are always full [model_batch_size, ...] buffers.
type InferenceBackend interface {
	Predict(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// InputSpec declares one model input slot's per-instance shape/dtype
// and whether it is batch-packed (spec.md §4.E "No-batch-dim inputs").
type InputSpec struct {
	DType          tensor.DType
	ElemShape      tensor.Shape // shape of one instance's value (no leading batch dim)
	WithoutBatchDim bool
}

// OutputSpec declares one model output slot's per-instance shape/dtype.
type OutputSpec struct {
	DType     tensor.DType
	ElemShape tensor.Shape
}

// ModelSpec is the static shape contract a Batcher packs/unpacks
// against (spec.md §4.F "Wraps a loaded model with its declared
// input_infos[], output_infos[], and batch_size").
type ModelSpec struct {
	BatchSize int
	Inputs    []InputSpec
	Outputs   []OutputSpec
}

type job struct {
	ctx     context.Context
	inputs  [][]*tensor.Tensor // per-instance, ordered per ModelSpec.Inputs
	n       int
	resultC chan jobResult
}

type jobResult struct {
	outputs [][]*tensor.Tensor // per-instance, length n
	err     error
}

// Batcher drains one producer/consumer queue with a single goroutine,
// so exactly one predict call is in flight against the backend at a
// time per model (spec.md §4.E "Pre/Post concurrency": "The predict
// stage runs on a single dedicated thread per model").
type Batcher struct {
	spec    ModelSpec
	backend InferenceBackend
	queue   chan job

	closeOnce sync.Once
	done      chan struct{}
}

// NewBatcher starts the drain goroutine; call Close to stop it.
func NewBatcher(spec ModelSpec, backend InferenceBackend) *Batcher {
	b := &Batcher{
		spec:    spec,
		backend: backend,
		queue:   make(chan job, 64),
		done:    make(chan struct{}),
	}
	go b.drain()
	return b
}

func (b *Batcher) Close() {
	b.closeOnce.Do(func() { close(b.queue) })
}

func (b *Batcher) drain() {
	defer close(b.done)
	for j := range b.queue {
		outputs, err := b.run(j)
		j.resultC <- jobResult{outputs: outputs, err: err}
	}
}

// Predict submits n instances' already-resolved predict-stage inputs
// and blocks for the result (spec.md §4.F "Predict synchronous call").
func (b *Batcher) Predict(ctx context.Context, inputs [][]*tensor.Tensor) ([][]*tensor.Tensor, error) {
	n := len(inputs)
	if n == 0 {
		return nil, nil
	}
	if n > b.spec.BatchSize {
		return nil, mnerr.New(mnerr.InvalidInputs, "batch: %d instances exceeds model_batch_size %d", n, b.spec.BatchSize)
	}
	resultC := make(chan jobResult, 1)
	select {
	case b.queue <- job{ctx: ctx, inputs: inputs, n: n, resultC: resultC}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-resultC:
		return r.outputs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run performs the pack -> backend.Predict -> unpack sequence for one
// job (spec.md §4.E "Batching").
func (b *Batcher) run(j job) ([][]*tensor.Tensor, error) {
	batchInputs := make([]*tensor.Tensor, len(b.spec.Inputs))
	for slot, is := range b.spec.Inputs {
		if is.WithoutBatchDim {
			if len(j.inputs[0]) <= slot {
				return nil, mnerr.New(mnerr.SystemError, "batch: instance 0 missing input slot %d", slot)
			}
			batchInputs[slot] = j.inputs[0][slot]
			continue
		}
		packed, err := packBatch(is, j.inputs, j.n, b.spec.BatchSize, slot)
		if err != nil {
			return nil, err
		}
		batchInputs[slot] = packed
	}

	outs, err := b.backend.Predict(j.ctx, batchInputs)
	if err != nil {
		return nil, mnerr.Wrap(mnerr.Failed, err, "model predict")
	}
	if len(outs) != len(b.spec.Outputs) {
		return nil, mnerr.New(mnerr.SystemError, "batch: backend returned %d outputs, model declares %d", len(outs), len(b.spec.Outputs))
	}

	perInstance := make([][]*tensor.Tensor, j.n)
	for i := range perInstance {
		perInstance[i] = make([]*tensor.Tensor, len(outs))
	}
	for slot, os := range b.spec.Outputs {
		views, err := tensor.Unpack(os.DType, os.ElemShape, outs[slot].Bytes(), j.n)
		if err != nil {
			return nil, err
		}
		for i := range perInstance {
			perInstance[i][slot] = views[i]
		}
	}
	stats.ObserveBatchFill(j.n, b.spec.BatchSize)
	nlog.Infof("batch: predicted %d instances (model_batch_size %d)", j.n, b.spec.BatchSize)
	return perInstance, nil
}

// packBatch copy-packs n instance values into a fresh [batchSize, ...]
// tensor, padding the tail by repeating instance 0's value (spec.md
// §4.E "if N < batch, the tail is padded by repeating instance 0").
func packBatch(spec InputSpec, inputs [][]*tensor.Tensor, n, batchSize, slot int) (*tensor.Tensor, error) {
	elemSize := spec.ElemShape.NumElements() * spec.DType.ItemSize()
	full := tensor.Shape(append([]int64{int64(batchSize)}, spec.ElemShape...))
	packed, err := tensor.New(spec.DType, full)
	if err != nil {
		return nil, err
	}
	buf := packed.Bytes()
	for i := 0; i < batchSize; i++ {
		src := i
		if src >= n {
			src = 0
		}
		if len(inputs[src]) <= slot {
			return nil, mnerr.New(mnerr.SystemError, "batch: instance %d missing input slot %d", src, slot)
		}
		v := inputs[src][slot].Bytes()
		if int64(len(v)) != elemSize {
			return nil, mnerr.New(mnerr.InvalidInputs, "batch: instance %d input slot %d size %d != expected %d", src, slot, len(v), elemSize)
		}
		copy(buf[int64(i)*elemSize:int64(i+1)*elemSize], v)
	}
	return packed, nil
}
