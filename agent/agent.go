// Package agent implements the Agent side of spec.md §4.G/§6: one
// device-slot rank that fetches the rank table, registers its
// WorkerAgentSpec, and serves MSAgent.Predict by unpacking a named-
// tensor request into model input order and driving it through its own
// dedicated batch.Batcher.
package agent

import (
	"context"
	"time"

	"github.com/aiserve/msserve/batch"
	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/distrib"
	"github.com/aiserve/msserve/lifecycle"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/tensor"
	"github.com/aiserve/msserve/wire"
	"github.com/aiserve/msserve/wire/mspb"
)

// Agent owns one device slot (spec.md §1 "one or more Agents each own
// a single device slot holding one shard of a model").
type Agent struct {
	rankID      uint32
	inputNames  []string
	outputNames []string
	batcher     *batch.Batcher
	latch       *lifecycle.Handle
}

func New(rankID uint32, inputNames, outputNames []string, batcher *batch.Batcher, latch *lifecycle.Handle) *Agent {
	return &Agent{rankID: rankID, inputNames: inputNames, outputNames: outputNames, batcher: batcher, latch: latch}
}

func errReply(rankID uint32, err error) *mspb.DistributedPredictReply {
	return &mspb.DistributedPredictReply{RankID: rankID, Error: &mspb.ErrorMsg{Code: int32(mnerr.Code(err)), Message: err.Error()}}
}

// Predict implements MSAgentServer.Predict: a request carrying no
// instances (a non-first-stage rank, spec.md §4.G step 2) replies
// immediately with no work done.
func (a *Agent) Predict(ctx context.Context, req *mspb.DistributedPredictRequest) (*mspb.DistributedPredictReply, error) {
	if len(req.Instances) == 0 {
		return &mspb.DistributedPredictReply{RankID: a.rankID}, nil
	}

	inputs := make([][]*tensor.Tensor, len(req.Instances))
	for i, wi := range req.Instances {
		ts := make([]*tensor.Tensor, len(a.inputNames))
		for j, name := range a.inputNames {
			wt, ok := wi.Tensors[name]
			if !ok {
				return errReply(a.rankID, mnerr.New(mnerr.InvalidInputs, "instance %d missing input %q", i, name)), nil
			}
			t, err := wire.DecodeTensor(wt)
			if err != nil {
				return errReply(a.rankID, err), nil
			}
			ts[j] = t
		}
		inputs[i] = ts
	}

	outs, err := a.batcher.Predict(ctx, inputs)
	if err != nil {
		return errReply(a.rankID, err), nil
	}
	wireInstances := make([]*mspb.Instance, len(outs))
	for i, out := range outs {
		wi, err := wire.EncodeInstance(out, a.outputNames)
		if err != nil {
			return errReply(a.rankID, err), nil
		}
		wireInstances[i] = wi
	}
	return &mspb.DistributedPredictReply{RankID: a.rankID, Instances: wireInstances}, nil
}

// Exit implements MSAgentServer.Exit: raises the lifecycle latch so
// every blocking loop in the process observes shutdown.
func (a *Agent) Exit(ctx context.Context, _ *mspb.ExitRequest) (*mspb.ExitReply, error) {
	a.latch.Stop()
	return &mspb.ExitReply{}, nil
}

// Ping implements MSAgentServer.Ping (spec.md §4.I watchdog).
func (a *Agent) Ping(ctx context.Context, req *mspb.PingRequest) (*mspb.PongReply, error) {
	return &mspb.PongReply{From: req.From}, nil
}

var _ mspb.MSAgentServer = (*Agent)(nil)

// Bootstrap fetches the rank table from the parent Worker via
// ConfigAcquire and registers this rank's WorkerAgentSpec (spec.md
// §4.G "Each Agent, on start-up, fetches the rank table via a
// ConfigAcquire RPC and then registers its own WorkerAgentSpec").
func Bootstrap(ctx context.Context, dw mspb.MSDistributedWorkerClient, spec mspb.WorkerAgentSpec, deadline time.Duration) (*distrib.RankTable, error) {
	cctx, cancel := context.WithTimeout(ctx, deadline)
	cr, err := dw.AgentConfigAcquire(cctx, &mspb.ConfigAcquireRequest{})
	cancel()
	if err != nil {
		return nil, mnerr.Wrap(mnerr.WorkerUnavailable, err, "agent bootstrap: config acquire")
	}
	rt, err := distrib.CheckRankConfig(cr.RankTableJSON)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, deadline)
	_, err = dw.AgentRegister(rctx, &mspb.AgentRegisterRequest{AgentSpecs: []mspb.WorkerAgentSpec{spec}, Address: spec.AgentAddress})
	cancel()
	if err != nil {
		return nil, mnerr.Wrap(mnerr.WorkerUnavailable, err, "agent bootstrap: register rank %d", spec.RankID)
	}
	nlog.Infof("agent: rank %d registered (rank_size=%d)", spec.RankID, rt.RankSize)
	return rt, nil
}
