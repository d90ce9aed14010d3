// Package worker implements the Worker side of spec.md §4.E/§6: it
// terminates MSWorker.Predict/Exit, looks up the requested servable's
// signature, and either runs it through a pipeline.Executor (local) or
// fans it out through a distrib.Coordinator (distributed), translating
// between wire messages and the internal instance/tensor model via
// package wire.
package worker

import (
	"context"
	"sync"

	"github.com/aiserve/msserve/batch"
	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/distrib"
	"github.com/aiserve/msserve/instance"
	"github.com/aiserve/msserve/lifecycle"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/pipeline"
	"github.com/aiserve/msserve/servable"
	"github.com/aiserve/msserve/wire"
	"github.com/aiserve/msserve/wire/mspb"
)

// localModel is one loaded local servable's version -> Batcher table
// (spec.md §4.F "one dedicated Batcher per loaded model").
type localModel struct {
	mu       sync.RWMutex
	versions map[int64]*batch.Batcher
}

// Worker owns the registry, the pipeline executor, every loaded local
// model's batchers, and every distributed servable's coordinator.
type Worker struct {
	registry *servable.Registry
	executor *pipeline.Executor
	latch    *lifecycle.Handle

	mu      sync.RWMutex
	models  map[string]*localModel           // servable name -> loaded versions
	coords  map[string]*distrib.Coordinator  // servable name -> distributed coordinator
	stopped map[string]bool                  // servable name -> stopped after unrecoverable failure
}

func New(registry *servable.Registry, scheduler *pipeline.Scheduler, latch *lifecycle.Handle) *Worker {
	w := &Worker{
		registry: registry,
		latch:    latch,
		models:   make(map[string]*localModel),
		coords:   make(map[string]*distrib.Coordinator),
	}
	w.executor = pipeline.NewExecutor(nil, scheduler, w.lookupBatcher)
	return w
}

// WithStages binds the executable stage registry (separate construction
// order from NewExecutor's nil default, since the stage registry is
// usually populated after the worker is constructed but before any
// servable may serve).
func (w *Worker) WithStages(stages *pipeline.StageRegistry, scheduler *pipeline.Scheduler) {
	w.executor = pipeline.NewExecutor(stages, scheduler, w.lookupBatcher)
}

// LoadLocal wires a freshly loaded local model's Batcher into this
// worker at (servableName, version) (spec.md §4.F). The caller has
// already validated the servable via registry.CheckServable.
func (w *Worker) LoadLocal(servableName string, version int64, b *batch.Batcher) {
	w.mu.Lock()
	m, ok := w.models[servableName]
	if !ok {
		m = &localModel{versions: make(map[int64]*batch.Batcher)}
		w.models[servableName] = m
	}
	w.mu.Unlock()

	m.mu.Lock()
	m.versions[version] = b
	m.mu.Unlock()
	nlog.Infof("worker: loaded local model %s v%d", servableName, version)
}

// LoadDistributed registers a distributed servable's fan-out coordinator
// (spec.md §4.G), wiring the coordinator's failure handler back to
// StopServable so an unrecoverable rank failure (spec.md §4.G "Failure
// semantics", §8 scenario 4) stops this servable and raises the shared
// latch.
func (w *Worker) LoadDistributed(servableName string, c *distrib.Coordinator) {
	w.mu.Lock()
	w.coords[servableName] = c
	w.mu.Unlock()
	c.SetFailureHandler(func(error) { w.StopServable(servableName) })
	nlog.Infof("worker: loaded distributed servable %s", servableName)
}

// StopServable marks servableName unrecoverable and raises the shared
// lifecycle latch so the whole worker begins cooperative shutdown
// (spec.md §8 scenario 4: a coordinator failure "triggers
// Worker.StopServable(), and the latch is raised"). Idempotent — only
// the first call actually stops the latch.
func (w *Worker) StopServable(servableName string) {
	w.mu.Lock()
	if w.stopped == nil {
		w.stopped = make(map[string]bool)
	}
	already := w.stopped[servableName]
	w.stopped[servableName] = true
	w.mu.Unlock()
	if already {
		return
	}
	nlog.Warningf("worker: stopping servable %q after unrecoverable failure", servableName)
	w.latch.Stop()
}

func (w *Worker) isStopped(servableName string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped != nil && w.stopped[servableName]
}

func (w *Worker) lookupBatcher(servableName string, version int64) (*batch.Batcher, error) {
	w.mu.RLock()
	m, ok := w.models[servableName]
	w.mu.RUnlock()
	if !ok {
		return nil, mnerr.New(mnerr.ServableUnavailable, "worker: servable %q not loaded", servableName)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.versions[version]
	if !ok {
		return nil, mnerr.New(mnerr.ServableUnavailable, "worker: servable %q has no loaded version %d", servableName, version)
	}
	return b, nil
}

func (w *Worker) coordinator(servableName string) (*distrib.Coordinator, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.coords[servableName]
	return c, ok
}

// Predict implements MSWorkerServer.Predict (spec.md §4.E entry point):
// decode the request's instances per the method's declared input names,
// run them through the local pipeline or the distributed fan-out, and
// re-encode the result with the normative error-list merge rule.
func (w *Worker) Predict(ctx context.Context, req *mspb.PredictRequest) (*mspb.PredictReply, error) {
	sig, ok := w.registry.GetServableDef(req.Spec.Name)
	if !ok {
		return nil, mnerr.New(mnerr.ServableUnavailable, "worker: servable %q not registered", req.Spec.Name)
	}
	var method *servable.MethodSignature
	for i := range sig.Methods {
		if sig.Methods[i].Name == req.Spec.MethodName {
			method = &sig.Methods[i]
			break
		}
	}
	if method == nil {
		return nil, mnerr.New(mnerr.InvalidInputs, "worker: servable %q has no method %q", req.Spec.Name, req.Spec.MethodName)
	}

	if sig.Meta.Name == servable.TypeDistributed {
		return w.predictDistributed(ctx, req)
	}
	return w.predictLocal(ctx, req, sig, method)
}

func (w *Worker) predictLocal(ctx context.Context, req *mspb.PredictRequest, sig *servable.ServableSignature, method *servable.MethodSignature) (*mspb.PredictReply, error) {
	ref := instance.MethodRef{ServableName: sig.Name, MethodName: method.Name}
	group := make(instance.Batch, len(req.Instances))
	for i, wi := range req.Instances {
		inst, err := wire.DecodeInstance(wi, i, "", ref, method.Inputs)
		if err != nil {
			return nil, err
		}
		group[i] = inst
	}

	results, err := w.executor.Execute(ctx, sig.Name, req.Spec.VersionNumber, *method, group)
	if err != nil {
		return nil, err
	}

	wireInstances := make([]*mspb.Instance, len(group))
	errs := make([]error, len(group))
	for i, inst := range group {
		if inst.Failed() {
			errs[i] = inst.Context.Err
			continue
		}
		wi, encErr := wire.EncodeInstance(results[i], method.Outputs)
		if encErr != nil {
			errs[i] = encErr
			continue
		}
		wireInstances[i] = wi
	}
	rep := &mspb.PredictReply{Spec: req.Spec, Errors: wire.MergeErrors(wireInstances, errs)}
	// spec.md §4.D: a single merged error entry means every instance
	// failed identically, so the instance list stays empty; zero or
	// many entries both carry the full (possibly partial) instance list.
	if len(rep.Errors) != 1 {
		rep.Instances = wireInstances
	}
	return rep, nil
}

// predictDistributed fans the whole instance list out through this
// servable's Coordinator and adapts its single aggregated reply back
// into a PredictReply (spec.md §4.G step 5 "aggregation").
func (w *Worker) predictDistributed(ctx context.Context, req *mspb.PredictRequest) (*mspb.PredictReply, error) {
	if w.isStopped(req.Spec.Name) {
		// A prior fan-out already failed unrecoverably (spec.md §8
		// scenario 4): this servable is withdrawn until the worker
		// process is restarted, same code a dead/unreachable worker
		// would report.
		return nil, mnerr.New(mnerr.WorkerUnavailable, "worker: distributed servable %q stopped after rank failure", req.Spec.Name)
	}
	c, ok := w.coordinator(req.Spec.Name)
	if !ok {
		return nil, mnerr.New(mnerr.ServableUnavailable, "worker: distributed servable %q not loaded", req.Spec.Name)
	}
	drep, err := c.Predict(ctx, req.Instances)
	if err != nil {
		return nil, err
	}
	if drep.Error != nil && drep.Error.Code != int32(mnerr.Success) {
		return nil, mnerr.New(mnerr.Status(drep.Error.Code), "%s", drep.Error.Message)
	}
	return &mspb.PredictReply{Spec: req.Spec, Instances: drep.Instances}, nil
}

// Exit implements MSWorkerServer.Exit: raises the shared lifecycle
// latch so every blocking loop in the process observes shutdown.
func (w *Worker) Exit(ctx context.Context, _ *mspb.ExitRequest) (*mspb.ExitReply, error) {
	w.latch.Stop()
	return &mspb.ExitReply{}, nil
}

var _ mspb.MSWorkerServer = (*Worker)(nil)
