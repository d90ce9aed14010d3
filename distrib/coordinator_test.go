package distrib

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"

	"github.com/aiserve/msserve/lifecycle"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/wire/mspb"
)

func rankTableOf(rankSize, stageSize int) *RankTable {
	entries := make([]RankEntry, rankSize)
	for i := range entries {
		entries[i] = RankEntry{IP: "10.0.0.1", DeviceID: i % 8, RankID: i}
	}
	return &RankTable{RankSize: rankSize, StageSize: stageSize, ParallelCount: rankSize / stageSize, Entries: entries}
}

func TestCoordinatorRegisterRejectsOutOfRangeRank(t *testing.T) {
	rt := rankTableOf(2, 1)
	c := NewCoordinator(rt, lifecycle.New(), FanoutConfig{})
	err := c.Register(mspb.WorkerAgentSpec{RankID: 5}, nil)
	if err == nil {
		t.Fatal("expected out-of-range rank_id to be rejected")
	}
}

func TestCoordinatorRegisterRejectsDuplicateRank(t *testing.T) {
	rt := rankTableOf(2, 1)
	c := NewCoordinator(rt, lifecycle.New(), FanoutConfig{})
	if err := c.Register(mspb.WorkerAgentSpec{RankID: 0}, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(mspb.WorkerAgentSpec{RankID: 0}, nil); err == nil {
		t.Fatal("expected duplicate rank_id to be rejected")
	}
}

func TestCoordinatorReadyClosesWhenFullyRegistered(t *testing.T) {
	rt := rankTableOf(2, 1)
	latch := lifecycle.New()
	latch.Start()
	c := NewCoordinator(rt, latch, FanoutConfig{WaitAgentsTimeout: time.Second})
	if err := c.Register(mspb.WorkerAgentSpec{RankID: 0}, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(mspb.WorkerAgentSpec{RankID: 1}, nil); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !c.Ready(ctx) {
		t.Fatal("expected Ready to report true once every rank registered")
	}
}

// sleepyAgentClient never returns from Predict until its context is
// cancelled, simulating a rank that has hung past the fan-out deadline
// (spec.md §8 scenario 4).
type sleepyAgentClient struct{}

func (sleepyAgentClient) Predict(ctx context.Context, _ *mspb.DistributedPredictRequest, _ ...grpc.CallOption) (*mspb.DistributedPredictReply, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (sleepyAgentClient) Exit(ctx context.Context, _ *mspb.ExitRequest, _ ...grpc.CallOption) (*mspb.ExitReply, error) {
	return &mspb.ExitReply{}, nil
}
func (sleepyAgentClient) Ping(ctx context.Context, req *mspb.PingRequest, _ ...grpc.CallOption) (*mspb.PongReply, error) {
	return &mspb.PongReply{From: req.From}, nil
}

// TestCoordinatorFailInvokesHandlerOnceAfterRankTimeout reproduces the
// coordinator half of spec.md §8 scenario 4: one agent sleeps past the
// rank timeout, the fan-out call fails with FAILED and calls Fail, and
// the registered failure handler fires exactly once, even when Fail is
// called again.
func TestCoordinatorFailInvokesHandlerOnceAfterRankTimeout(t *testing.T) {
	rt := rankTableOf(1, 1)
	latch := lifecycle.New()
	latch.Start()
	c := NewCoordinator(rt, latch, FanoutConfig{RankTimeout: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	if err := c.Register(mspb.WorkerAgentSpec{RankID: 0}, sleepyAgentClient{}); err != nil {
		t.Fatal(err)
	}

	var calls int
	c.SetFailureHandler(func(error) { calls++ })

	_, err := c.Predict(context.Background(), nil)
	if mnerr.Code(err) != mnerr.Failed {
		t.Fatalf("expected FAILED on the first (timed-out) fan-out, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the failure handler to fire exactly once, got %d", calls)
	}

	// A second, unrelated failure must not fire the handler again.
	c.Fail(mnerr.New(mnerr.Failed, "a later unrelated failure"))
	if calls != 1 {
		t.Fatalf("expected Fail to be idempotent, handler fired %d times", calls)
	}
}

func TestCoordinatorReadyTimesOutWhenIncomplete(t *testing.T) {
	rt := rankTableOf(2, 1)
	latch := lifecycle.New()
	latch.Start()
	c := NewCoordinator(rt, latch, FanoutConfig{WaitAgentsTimeout: 50 * time.Millisecond})
	if err := c.Register(mspb.WorkerAgentSpec{RankID: 0}, nil); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if c.Ready(ctx) {
		t.Fatal("expected Ready to report false when only one of two ranks registered")
	}
}
