package lifecycle

import (
	"context"
	"testing"
	"time"
)

func TestStopIdempotent(t *testing.T) {
	h := New()
	h.Start()
	h.Stop()
	h.Stop() // must not panic (close of closed channel)
	if !h.HasStopped() {
		t.Fatal("expected HasStopped after Stop")
	}
}

func TestWaitReturnsImmediatelyBeforeStart(t *testing.T) {
	h := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	h.MasterWait(ctx)
	if time.Since(start) > 20*time.Millisecond {
		t.Fatal("MasterWait on unstarted handle should return immediately")
	}
}

func TestStopFulfillsAllThreePromises(t *testing.T) {
	h := New()
	h.Start()
	done := make(chan struct{})
	go func() {
		h.AgentWait(context.Background())
		close(done)
	}()
	h.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AgentWait did not unblock after Stop")
	}
}
