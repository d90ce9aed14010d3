// Package master implements the Master Dispatcher of spec.md §4.H: a
// live topology map from servable name to registered workers, routed
// by (servable, method, version) with an in-process short-circuit.
package master

import (
	"context"
	"sync"
	"time"

	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/stats"
	"github.com/aiserve/msserve/wire/mspb"
)

// WorkerContext is one registered worker's address, declared spec, and
// (for an in-process worker) a direct callable — no client stub needed
// (spec.md §4.H "WorkerContext = {spec, client_stub?, in_process_flag}").
type WorkerContext struct {
	Spec      mspb.WorkerSpec
	Client    mspb.MSWorkerClient // nil when InProcess
	InProcess mspb.MSWorkerServer // nil when remote
}

func (w *WorkerContext) key() string {
	return w.Spec.ServableName + "@" + w.Spec.WorkerAddress
}

// Dispatcher holds the live topology and routes predict requests
// (spec.md §4.H).
type Dispatcher struct {
	mu        sync.RWMutex
	workers   map[string][]*WorkerContext // servable_name -> workers (any version)
	exitDeadline time.Duration
}

func NewDispatcher(exitDeadline time.Duration) *Dispatcher {
	if exitDeadline <= 0 {
		exitDeadline = time.Second
	}
	return &Dispatcher{workers: make(map[string][]*WorkerContext), exitDeadline: exitDeadline}
}

// RegisterServable adds or replaces every (servable, version, address)
// triple named by req, routed through client for every entry (spec.md
// §3 "Worker registration": "re-registering replaces the old entry").
func (d *Dispatcher) RegisterServable(req *mspb.RegisterRequest, client mspb.MSWorkerClient) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ws := range req.WorkerSpecs {
		d.replaceLocked(ws, req.Address, client, nil)
	}
	return nil
}

// AddServable registers a single worker spec, for either a local
// (in-process) or remote worker (spec.md §4.H "AddServable variants").
func (d *Dispatcher) AddServable(ws mspb.WorkerSpec, client mspb.MSWorkerClient, inProcess mspb.MSWorkerServer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replaceLocked(ws, ws.WorkerAddress, client, inProcess)
}

func (d *Dispatcher) replaceLocked(ws mspb.WorkerSpec, address string, client mspb.MSWorkerClient, inProcess mspb.MSWorkerServer) {
	ws.WorkerAddress = address
	wc := &WorkerContext{Spec: ws, Client: client, InProcess: inProcess}
	list := d.workers[ws.ServableName]
	for i, existing := range list {
		if existing.Spec.VersionNumber == ws.VersionNumber && existing.Spec.WorkerAddress == address {
			list[i] = wc
			d.workers[ws.ServableName] = list
			nlog.Infof("master: replaced %s v%d @ %s", ws.ServableName, ws.VersionNumber, address)
			return
		}
	}
	d.workers[ws.ServableName] = append(list, wc)
	nlog.Infof("master: registered %s v%d @ %s", ws.ServableName, ws.VersionNumber, address)
}

// RemoveServable drops a single (servable, version, address) entry
// (spec.md §4.H "RemoveServable").
func (d *Dispatcher) RemoveServable(servableName string, version int64, address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.workers[servableName]
	out := list[:0]
	for _, wc := range list {
		if wc.Spec.VersionNumber == version && wc.Spec.WorkerAddress == address {
			continue
		}
		out = append(out, wc)
	}
	if len(out) == 0 {
		delete(d.workers, servableName)
	} else {
		d.workers[servableName] = out
	}
	nlog.Infof("master: removed %s v%d @ %s", servableName, version, address)
}

// UnregisterServable removes every entry at address, dropping any
// servable with zero remaining workers (spec.md §4.H).
func (d *Dispatcher) UnregisterServable(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, list := range d.workers {
		out := list[:0]
		for _, wc := range list {
			if wc.Spec.WorkerAddress != address {
				out = append(out, wc)
			}
		}
		if len(out) == 0 {
			delete(d.workers, name)
		} else {
			d.workers[name] = out
		}
	}
	nlog.Infof("master: unregistered all servables at %s", address)
}

// pick implements the version-pick law of spec.md §4.H step 2: an
// exact version match, or (version_number==0) the maximum declared
// version.
func pick(list []*WorkerContext, version int64) *WorkerContext {
	if version != 0 {
		for _, wc := range list {
			if wc.Spec.VersionNumber == version {
				return wc
			}
		}
		return nil
	}
	var best *WorkerContext
	for _, wc := range list {
		if best == nil || wc.Spec.VersionNumber > best.Spec.VersionNumber {
			best = wc
		}
	}
	return best
}

// Dispatch routes req per spec.md §4.H: validate the (servable, method)
// is registered, pick the version, and either invoke the in-process
// worker directly or issue a synchronous RPC to its address.
func (d *Dispatcher) Dispatch(ctx context.Context, req *mspb.PredictRequest) (rep *mspb.PredictReply, err error) {
	start := time.Now()
	defer func() { stats.ObserveDispatch(req.Spec.Name, start, err) }()

	d.mu.RLock()
	list, ok := d.workers[req.Spec.Name]
	if !ok || len(list) == 0 {
		d.mu.RUnlock()
		return nil, mnerr.New(mnerr.ServableUnavailable, "servable %q not registered", req.Spec.Name)
	}
	hasMethod := false
	for _, w := range list {
		for _, m := range w.Spec.Methods {
			if m.Name == req.Spec.MethodName {
				hasMethod = true
				break
			}
		}
	}
	if !hasMethod {
		d.mu.RUnlock()
		return nil, mnerr.New(mnerr.InvalidInputs, "servable %q has no method %q", req.Spec.Name, req.Spec.MethodName)
	}
	wc := pick(list, req.Spec.VersionNumber)
	d.mu.RUnlock()
	if wc == nil {
		if req.Spec.VersionNumber != 0 {
			// servable is known, just not at this exact version (spec.md §8
			// version-pick law: a nonzero miss against a registered servable
			// is a caller error, not an availability gap).
			return nil, mnerr.New(mnerr.InvalidInputs, "servable %q has no worker registered at version %d", req.Spec.Name, req.Spec.VersionNumber)
		}
		return nil, mnerr.New(mnerr.ServableUnavailable, "servable %q has no worker for version %d", req.Spec.Name, req.Spec.VersionNumber)
	}
	if wc.InProcess != nil {
		return wc.InProcess.Predict(ctx, req)
	}
	if wc.Client == nil {
		return nil, mnerr.New(mnerr.WorkerUnavailable, "servable %q worker %s has no client", req.Spec.Name, wc.Spec.WorkerAddress)
	}
	rep, err = wc.Client.Predict(ctx, req)
	if err != nil {
		return nil, mnerr.Wrap(mnerr.WorkerUnavailable, err, "dispatch to %s", wc.Spec.WorkerAddress)
	}
	return rep, nil
}

// Clear notifies every registered worker to exit (1s deadline per
// exit RPC, best-effort) and drops the topology map (spec.md §4.H).
func (d *Dispatcher) Clear(ctx context.Context) {
	d.mu.Lock()
	all := d.workers
	d.workers = make(map[string][]*WorkerContext)
	d.mu.Unlock()

	for _, list := range all {
		for _, wc := range list {
			if wc.Client == nil {
				continue
			}
			ectx, cancel := context.WithTimeout(ctx, d.exitDeadline)
			_, err := wc.Client.Exit(ectx, &mspb.ExitRequest{})
			cancel()
			if err != nil {
				nlog.Warningf("master: exit RPC to %s failed: %v", wc.Spec.WorkerAddress, err)
			}
		}
	}
	nlog.Infof("master: cleared topology")
}
