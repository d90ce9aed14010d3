// Package lifecycle implements the process-wide shutdown latch of
// spec.md §4.C: three independent one-shot promises (master/worker/
// agent) any blocking wait can poll, so a signal or an explicit Stop
// preempts every long-running loop in the core within a bounded time.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handle is the three-promise lifecycle latch. The zero value is not
// usable; construct with New.
type Handle struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	masterCh chan struct{}
	workerCh chan struct{}
	agentCh  chan struct{}
	sigCh    chan os.Signal
	sigOnce  sync.Once
}

// New constructs an unstarted Handle.
func New() *Handle {
	return &Handle{}
}

// Start resets all three promises and installs SIGINT/SIGTERM handlers
// exactly once per Handle (spec.md §4.C).
func (h *Handle) Start() {
	h.mu.Lock()
	h.started = true
	h.stopped = false
	h.masterCh = make(chan struct{})
	h.workerCh = make(chan struct{})
	h.agentCh = make(chan struct{})
	h.mu.Unlock()

	h.sigOnce.Do(func() {
		h.sigCh = make(chan os.Signal, 1)
		signal.Notify(h.sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			for range h.sigCh {
				h.Stop()
			}
		}()
	})
}

// Stop fulfills all three promises atomically. Idempotent: a second and
// subsequent call (from a repeated signal or explicit Stop) is a no-op
// (spec.md §4.C, §8 "Idempotence: Stop(); Stop() equals Stop()").
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.masterCh != nil {
		close(h.masterCh)
		close(h.workerCh)
		close(h.agentCh)
	}
}

// HasStopped reports whether Stop has been called (or a signal raised)
// since the last Start.
func (h *Handle) HasStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// wait blocks on ch until it closes, ctx is cancelled, or ch is nil
// (handle never started / already exited — spec.md §4.C: "if the
// handle has never been started or has already exited, returns
// immediately").
func (h *Handle) wait(ctx context.Context, ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

func (h *Handle) channel(pick func(h *Handle) chan struct{}) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started || h.stopped {
		return nil
	}
	return pick(h)
}

// MasterWait blocks until Stop is called, ctx is done, or the handle was
// never started / already stopped (returns immediately in that case).
func (h *Handle) MasterWait(ctx context.Context) {
	h.wait(ctx, h.channel(func(h *Handle) chan struct{} { return h.masterCh }))
}

func (h *Handle) WorkerWait(ctx context.Context) {
	h.wait(ctx, h.channel(func(h *Handle) chan struct{} { return h.workerCh }))
}

func (h *Handle) AgentWait(ctx context.Context) {
	h.wait(ctx, h.channel(func(h *Handle) chan struct{} { return h.agentCh }))
}

// PollEvery returns a channel that is closed as soon as Stop fires or
// ctx is done, whichever comes first, checking at the given granularity. Long
// blocking loops in the core use this to poll the latch at <=100ms
// granularity per spec.md §5.
func (h *Handle) PollEvery(ctx context.Context, granularity time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(granularity)
		defer t.Stop()
		for {
			if h.HasStopped() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return done
}
