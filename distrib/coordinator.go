package distrib

import (
	"context"
	"sync"
	"time"

	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/lifecycle"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/stats"
	"github.com/aiserve/msserve/wire/mspb"
)

// AgentContext is one registered rank's connection + declared shape
// info (spec.md §4.G). Design Notes §9: kept as a dense []AgentContext
// of size RankSize, not a std::map<uint32_t,...> — every index is
// populated before predict proceeds, so a slice is more honest than a
// sparse map.
type AgentContext struct {
	Spec   mspb.WorkerAgentSpec
	Client mspb.MSAgentClient
}

// Coordinator fans one predict call out to RankSize Agents and
// aggregates (spec.md §4.G).
type Coordinator struct {
	rt     *RankTable
	latch  *lifecycle.Handle
	cfg    FanoutConfig

	mu       sync.Mutex
	agents   []*AgentContext // len == rt.RankSize; nil entries = not yet registered
	count    int
	readyCh  chan struct{}
	readyOnce sync.Once

	failOnce  sync.Once
	onFailure func(error) // set by Worker.LoadDistributed; may be nil
}

// SetFailureHandler registers the callback Fail invokes the first time
// this coordinator's servable becomes unrecoverable (spec.md §4.G
// "Failure semantics": a missing or failed rank cannot be synthesized,
// so the whole distributed servable stops). Worker.LoadDistributed
// wires this to Worker.StopServable.
func (c *Coordinator) SetFailureHandler(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = f
}

// Fail marks this coordinator's servable unrecoverable and invokes the
// registered failure handler exactly once. Called both from Predict's
// own fan-out failure path and from Server.AgentExit/AgentFailed, which
// observe a rank withdrawing or reporting failure out of band.
func (c *Coordinator) Fail(err error) {
	c.failOnce.Do(func() {
		nlog.Warningf("distrib: servable unrecoverable, stopping: %v", err)
		c.mu.Lock()
		h := c.onFailure
		c.mu.Unlock()
		if h != nil {
			h(err)
		}
	})
}

// FanoutConfig carries the tunables spec.md §5/§4.G name.
type FanoutConfig struct {
	RankTimeout       time.Duration // 10s
	PollInterval      time.Duration // 100ms
	WaitAgentsTimeout time.Duration // caller-supplied
}

// NewCoordinator constructs a coordinator for an already-validated rank
// table; the registration promise resolves via Ready().
func NewCoordinator(rt *RankTable, latch *lifecycle.Handle, cfg FanoutConfig) *Coordinator {
	return &Coordinator{
		rt:      rt,
		latch:   latch,
		cfg:     cfg,
		agents:  make([]*AgentContext, rt.RankSize),
		readyCh: make(chan struct{}),
	}
}

// Register records one agent's spec, validating it against the
// cross-rank agreement invariants of spec.md §4.G. Once every rank has
// registered the Ready() channel closes.
func (c *Coordinator) Register(spec mspb.WorkerAgentSpec, client mspb.MSAgentClient) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int(spec.RankID) >= c.rt.RankSize {
		return mnerr.New(mnerr.InvalidInputs, "agent rank_id %d out of range [0,%d)", spec.RankID, c.rt.RankSize)
	}
	if c.agents[spec.RankID] != nil {
		return mnerr.New(mnerr.InvalidInputs, "duplicate registration for rank_id %d", spec.RankID)
	}

	parallel := c.rt.ParallelCount
	if int(spec.RankID) < parallel {
		if rank0 := c.agents[0]; rank0 != nil && !tensorInfosEqual(rank0.Spec.InputInfos, spec.InputInfos) {
			return mnerr.New(mnerr.InvalidInputs, "rank %d input_infos disagree with rank 0", spec.RankID)
		}
	} else if len(spec.InputInfos) != 0 {
		return mnerr.New(mnerr.InvalidInputs, "rank %d outside stage 0 must have empty input_infos", spec.RankID)
	}
	if k := int(spec.RankID) % parallel; int(spec.RankID) >= k {
		if peer := c.agents[int(spec.RankID)-k]; peer != nil && !tensorInfosEqual(peer.Spec.OutputInfos, spec.OutputInfos) {
			return mnerr.New(mnerr.InvalidInputs, "rank %d output_infos disagree with rank %d", spec.RankID, int(spec.RankID)-k)
		}
	}
	if rank0 := c.agents[0]; rank0 != nil && spec.BatchSize != 0 && rank0.Spec.BatchSize != 0 && spec.BatchSize != rank0.Spec.BatchSize {
		return mnerr.New(mnerr.InvalidInputs, "rank %d batch_size %d disagrees with rank 0's %d", spec.RankID, spec.BatchSize, rank0.Spec.BatchSize)
	}

	c.agents[spec.RankID] = &AgentContext{Spec: spec, Client: client}
	c.count++
	nlog.Infof("distrib: registered rank %d (%d/%d)", spec.RankID, c.count, c.rt.RankSize)
	if c.count == c.rt.RankSize {
		c.readyOnce.Do(func() { close(c.readyCh) })
	}
	return nil
}

func tensorInfosEqual(a, b []mspb.TensorInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Ready blocks until every rank has registered, wait_agents_time_in_seconds
// elapses, or the signal latch fires (spec.md §4.G registration phase).
func (c *Coordinator) Ready(ctx context.Context) bool {
	timeout := c.cfg.WaitAgentsTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	latchDone := make(chan struct{})
	go func() {
		c.latch.WorkerWait(tctx)
		close(latchDone)
	}()
	select {
	case <-c.readyCh:
		return true
	case <-tctx.Done():
		return c.registeredCount() == c.rt.RankSize
	case <-latchDone:
		return c.registeredCount() == c.rt.RankSize
	}
}

func (c *Coordinator) registeredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// perRankResult is the outcome of one rank's fan-out call.
type perRankResult struct {
	rankID int
	reply  *mspb.DistributedPredictReply
	err    error
}

// Predict fans out a predict call to every rank, waits with a bounded
// per-rank timeout, and aggregates from the last-stage leader rank
// (spec.md §4.G "Predict fan-out"). Any agent error, RPC failure,
// per-rank timeout, or shutdown signal aborts the whole request
// (spec.md §4.G "Failure semantics").
func (c *Coordinator) Predict(ctx context.Context, clientInstances []*mspb.Instance) (rep *mspb.DistributedPredictReply, err error) {
	start := time.Now()
	defer func() { stats.ObserveFanout(start, err) }()

	c.mu.Lock()
	if c.count != c.rt.RankSize {
		c.mu.Unlock()
		return nil, mnerr.New(mnerr.SystemError, "distributed predict: only %d/%d ranks registered", c.count, c.rt.RankSize)
	}
	agents := append([]*AgentContext(nil), c.agents...)
	c.mu.Unlock()

	results := make(chan perRankResult, c.rt.RankSize)
	for rankID, ag := range agents {
		rankID, ag := rankID, ag
		req := &mspb.DistributedPredictRequest{RankID: uint32(rankID)}
		if rankID < c.rt.ParallelCount {
			req.Instances = clientInstances
		}
		go c.callRank(ctx, rankID, ag, req, results)
	}

	leaderRank := c.rt.ParallelCount * (c.rt.StageSize - 1)
	var leaderReply *mspb.DistributedPredictReply
	var firstErr error
	for i := 0; i < c.rt.RankSize; i++ {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		if r.reply.Error != nil && r.reply.Error.Code != int32(mnerr.Success) {
			if firstErr == nil {
				firstErr = mnerr.New(mnerr.Failed, "rank %d: %s", r.rankID, r.reply.Error.Message)
			}
			continue
		}
		if r.rankID == leaderRank {
			leaderReply = r.reply
		}
	}
	if firstErr != nil {
		c.Fail(firstErr)
		return nil, firstErr
	}
	if leaderReply == nil {
		err := mnerr.New(mnerr.SystemError, "distributed predict: leader rank %d produced no reply", leaderRank)
		c.Fail(err)
		return nil, err
	}
	return leaderReply, nil
}

// callRank issues one rank's async Predict, polling at PollInterval up
// to RankTimeout, preemptible by the signal latch (spec.md §4.G step 4).
func (c *Coordinator) callRank(ctx context.Context, rankID int, ag *AgentContext, req *mspb.DistributedPredictRequest, results chan<- perRankResult) {
	timeout := c.cfg.RankTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan perRankResult, 1)
	go func() {
		rep, err := ag.Client.Predict(rctx, req)
		done <- perRankResult{rankID: rankID, reply: rep, err: err}
	}()

	poll := c.cfg.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case r := <-done:
			results <- r
			return
		case <-rctx.Done():
			results <- perRankResult{rankID: rankID, err: mnerr.New(mnerr.Failed, "rank %d: timeout after %s", rankID, timeout)}
			return
		case <-ticker.C:
			if c.latch.HasStopped() {
				results <- perRankResult{rankID: rankID, err: mnerr.New(mnerr.Failed, "rank %d: worker has stopped", rankID)}
				return
			}
		}
	}
}
