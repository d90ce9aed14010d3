// Package pipeline implements the Worker Pipeline Executor of
// spec.md §4.E: given a validated batch of instances sharing one
// method, it drives them through up to three stages — Preprocess?,
// Predict, Postprocess? — wiring each stage's inputs from the method's
// declared source tags, and assembles the final per-instance output.
package pipeline

import (
	"context"
	"sync"

	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/servable"
	"github.com/aiserve/msserve/tensor"
)

// StageFunc is one user pre/post-process stage function. It is invoked
// once per TaskGroup — all instances concurrently active in the same
// scheduler slot — not once per instance, matching the original's
// batching contract for stage functions recovered from
// original_source's work_executor.h/task_queue.h (SPEC_FULL.md §5
// supplement). inputs[i] holds instance i's resolved inputs for this
// stage; the returned slice must have the same length.
type StageFunc func(ctx context.Context, inputs [][]*tensor.Tensor) ([][]*tensor.Tensor, error)

// StageRegistry is the "separate registry of named stage functions"
// spec.md §4.B refers to for pre/post-process output arity, extended
// here to also hold the callable (servable.StageRegistry only tracks
// arity, since that package has no notion of executable code).
type StageRegistry struct {
	mu      sync.RWMutex
	fns     map[string]StageFunc
	outputN map[string]int
}

func NewStageRegistry() *StageRegistry {
	return &StageRegistry{fns: make(map[string]StageFunc), outputN: make(map[string]int)}
}

// Register declares a named stage function and its fixed output arity.
func (r *StageRegistry) Register(name string, outputCount int, fn StageFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fns[name]; exists {
		return mnerr.New(mnerr.InvalidInputs, "stage %q already registered", name)
	}
	r.fns[name] = fn
	r.outputN[name] = outputCount
	return nil
}

// OutputCount implements servable.StageOutputCounts.
func (r *StageRegistry) OutputCount(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.outputN[name]
	return n, ok
}

func (r *StageRegistry) lookup(name string) (StageFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

var _ servable.StageOutputCounts = (*StageRegistry)(nil)
