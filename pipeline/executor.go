package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aiserve/msserve/batch"
	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/instance"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/servable"
	"github.com/aiserve/msserve/tensor"
)

// Scheduler bounds the number of concurrently active pre/post-process
// TaskGroups to a fixed pool (spec.md §4.E "Pre/Post concurrency": "a
// fixed pool of worker threads, default size 4 in the source").
type Scheduler struct {
	poolSize int
	slots    chan struct{}
}

func NewScheduler(poolSize int) *Scheduler {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Scheduler{poolSize: poolSize, slots: make(chan struct{}, poolSize)}
}

// run bounds concurrent invocations of fn across all callers: one call
// to run corresponds to one TaskGroup occupying one of the poolSize
// slots for its whole duration.
func (s *Scheduler) run(ctx context.Context, fn func() error) error {
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.slots }()
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.poolSize)
	g.Go(fn)
	return g.Wait()
}

// Executor drives one method's batch of instances through Preprocess?,
// Predict, Postprocess? (spec.md §4.E).
type Executor struct {
	stages    *StageRegistry
	scheduler *Scheduler
	batchers  BatcherLookup
}

// BatcherLookup resolves the predict-stage Batcher for a given
// servable name/version — one dedicated batcher (and its single
// drain goroutine) per loaded model (spec.md §4.E).
type BatcherLookup func(servableName string, version int64) (*batch.Batcher, error)

func NewExecutor(stages *StageRegistry, scheduler *Scheduler, batchers BatcherLookup) *Executor {
	return &Executor{stages: stages, scheduler: scheduler, batchers: batchers}
}

func slot(inst *instance.Instance, phase servable.Phase) []*tensor.Tensor {
	switch phase {
	case servable.PhaseInput:
		return inst.InputData
	case servable.PhasePreprocess:
		return inst.PreprocessData
	case servable.PhasePredict:
		return inst.PredictData
	case servable.PhasePostprocess:
		return inst.PostprocessData
	default:
		return nil
	}
}

func setSlot(inst *instance.Instance, phase servable.Phase, vals []*tensor.Tensor) {
	switch phase {
	case servable.PhasePreprocess:
		inst.PreprocessData = vals
	case servable.PhasePredict:
		inst.PredictData = vals
	case servable.PhasePostprocess:
		inst.PostprocessData = vals
	}
}

// resolve builds one instance's stage input list from its source tags
// (spec.md §4.E "A stage's k-th input is instance[phase][index] per
// the method's source tags").
func resolve(inst *instance.Instance, tags []servable.SourceTag) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(tags))
	for i, tg := range tags {
		src := slot(inst, tg.Phase)
		if tg.Index < 0 || tg.Index >= len(src) {
			return nil, mnerr.New(mnerr.SystemError, "instance %d: source tag (%s,%d) out of range (have %d)", inst.Context.InstanceIndex, tg.Phase, tg.Index, len(src))
		}
		out[i] = src[tg.Index]
	}
	return out, nil
}

// active returns the not-yet-failed instances of a batch, in order
// (spec.md §4.E "Failure semantics": a failed instance is withdrawn
// from later stages, siblings continue).
func active(group instance.Batch) []*instance.Instance {
	out := make([]*instance.Instance, 0, len(group))
	for _, inst := range group {
		if !inst.Failed() {
			out = append(out, inst)
		}
	}
	return out
}

// runStage invokes a named user stage function once for the whole
// active sub-group, wiring each active instance's inputs from tags and
// scattering the returned per-instance outputs back into phase.
func (e *Executor) runStage(ctx context.Context, group instance.Batch, stageName string, tags []servable.SourceTag, phase servable.Phase) error {
	act := active(group)
	if len(act) == 0 {
		return nil
	}
	fn, ok := e.stages.lookup(stageName)
	if !ok {
		return mnerr.New(mnerr.SystemError, "stage %q not registered", stageName)
	}
	inputs := make([][]*tensor.Tensor, len(act))
	for i, inst := range act {
		in, err := resolve(inst, tags)
		if err != nil {
			inst.Fail(err)
			continue
		}
		inputs[i] = in
	}
	return e.scheduler.run(ctx, func() error {
		outputs, err := fn(ctx, inputs)
		if err != nil {
			for _, inst := range act {
				inst.Fail(mnerr.Wrap(mnerr.Failed, err, "stage %q", stageName))
			}
			return nil
		}
		if len(outputs) != len(act) {
			err := mnerr.New(mnerr.SystemError, "stage %q returned %d outputs for %d instances", stageName, len(outputs), len(act))
			for _, inst := range act {
				inst.Fail(err)
			}
			return nil
		}
		for i, inst := range act {
			setSlot(inst, phase, outputs[i])
		}
		return nil
	})
}

// runPredict batches the active instances' predict-stage inputs
// through the model's dedicated Batcher (spec.md §4.E "Batching").
func (e *Executor) runPredict(ctx context.Context, group instance.Batch, servableName string, version int64, tags []servable.SourceTag) error {
	act := active(group)
	if len(act) == 0 {
		return nil
	}
	b, err := e.batchers(servableName, version)
	if err != nil {
		for _, inst := range act {
			inst.Fail(err)
		}
		return nil
	}
	inputs := make([][]*tensor.Tensor, len(act))
	for i, inst := range act {
		in, rerr := resolve(inst, tags)
		if rerr != nil {
			inst.Fail(rerr)
			continue
		}
		inputs[i] = in
	}
	outputs, perr := b.Predict(ctx, inputs)
	if perr != nil {
		for _, inst := range act {
			inst.Fail(mnerr.Wrap(mnerr.Failed, perr, "predict"))
		}
		return nil
	}
	for i, inst := range act {
		inst.PredictData = outputs[i]
	}
	return nil
}

// Execute runs group (all sharing one method) through the full
// pipeline and writes each instance's final output tensors, ordered
// per method.Outputs, via method.ReturnInputs (spec.md §4.E).
func (e *Executor) Execute(ctx context.Context, servableName string, version int64, method servable.MethodSignature, group instance.Batch) ([][]*tensor.Tensor, error) {
	if method.Preprocess != "" {
		if err := e.runStage(ctx, group, method.Preprocess, method.PreInputs, servable.PhasePreprocess); err != nil {
			return nil, err
		}
	}
	if err := e.runPredict(ctx, group, servableName, version, method.PredictInputs); err != nil {
		return nil, err
	}
	if method.Postprocess != "" {
		if err := e.runStage(ctx, group, method.Postprocess, method.PostInputs, servable.PhasePostprocess); err != nil {
			return nil, err
		}
	}

	results := make([][]*tensor.Tensor, len(group))
	for idx, inst := range group {
		if inst.Failed() {
			continue
		}
		out, err := resolve(inst, method.ReturnInputs)
		if err != nil {
			inst.Fail(err)
			continue
		}
		results[idx] = out
	}
	nlog.Infof("pipeline: executed %s method %s for %d instances", servableName, method.Name, len(group))
	return results, nil
}
