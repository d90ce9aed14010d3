// Package register implements the Registration Plane of spec.md §4.I:
// a Worker's fixed-interval retrying registration against the Master, a
// best-effort unregister/exit path, and a heartbeat watchdog.
package register

import (
	"context"
	"time"

	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/lifecycle"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/wire/mspb"
)

// Register retries MSMaster.Register up to retries times at interval,
// preemptible by the signal latch at <=100ms granularity (spec.md §4.I
// "60 attempts at 1s intervals, preemptible by the signal latch").
func Register(ctx context.Context, latch *lifecycle.Handle, client mspb.MSMasterClient, req *mspb.RegisterRequest, retries int, interval time.Duration) error {
	for attempt := 1; attempt <= retries; attempt++ {
		rctx, cancel := context.WithTimeout(ctx, interval)
		_, err := client.Register(rctx, req)
		cancel()
		if err == nil {
			nlog.Infof("register: succeeded on attempt %d/%d", attempt, retries)
			return nil
		}
		nlog.Warningf("register: attempt %d/%d failed: %v", attempt, retries, err)
		if attempt == retries {
			break
		}
		if sleepPreemptible(latch, interval, 100*time.Millisecond) {
			return mnerr.New(mnerr.Failed, "registration aborted by shutdown")
		}
	}
	return mnerr.New(mnerr.WorkerUnavailable, "registration: exhausted %d attempts", retries)
}

// sleepPreemptible blocks for up to total, checking the latch every
// granularity, and returns true the moment it observes Stop.
func sleepPreemptible(latch *lifecycle.Handle, total, granularity time.Duration) (stopped bool) {
	deadline := time.Now().Add(total)
	t := time.NewTicker(granularity)
	defer t.Stop()
	for time.Now().Before(deadline) {
		if latch.HasStopped() {
			return true
		}
		<-t.C
	}
	return latch.HasStopped()
}

// Unregister issues a best-effort RemoveWorker RPC with a bounded
// deadline; repeated calls are idempotent since the master's
// RemoveServable is itself a no-op on an already-absent entry
// (spec.md §4.I).
func Unregister(ctx context.Context, client mspb.MSMasterClient, servableName string, version int64, address string, deadline time.Duration) {
	rctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	if _, err := client.RemoveWorker(rctx, &mspb.RemoveWorkerRequest{ServableName: servableName, VersionNumber: version, Address: address}); err != nil {
		nlog.Warningf("unregister: best-effort RemoveWorker failed: %v", err)
	}
}

// Exit issues a best-effort Exit RPC with a bounded deadline
// (spec.md §4.I "issues a best-effort exit RPC with a 1s deadline").
func Exit(ctx context.Context, client mspb.MSMasterClient, address string, deadline time.Duration) {
	rctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	if _, err := client.Exit(rctx, &mspb.ExitRequest{Address: address}); err != nil {
		nlog.Warningf("exit: best-effort Exit RPC failed: %v", err)
	}
}
