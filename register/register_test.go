package register

import (
	"context"
	"testing"
	"time"

	"github.com/aiserve/msserve/lifecycle"
)

func TestSleepPreemptibleReturnsImmediatelyWhenAlreadyStopped(t *testing.T) {
	latch := lifecycle.New()
	latch.Start()
	latch.Stop()
	if !sleepPreemptible(latch, time.Second, 10*time.Millisecond) {
		t.Fatal("expected sleepPreemptible to report stopped")
	}
}

func TestSleepPreemptibleWaitsOutDurationWhenNotStopped(t *testing.T) {
	latch := lifecycle.New()
	latch.Start()
	start := time.Now()
	if sleepPreemptible(latch, 30*time.Millisecond, 10*time.Millisecond) {
		t.Fatal("expected sleepPreemptible to report not-stopped")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("expected sleepPreemptible to actually wait")
	}
}

func TestWatchdogDetectsMissedHeartbeat(t *testing.T) {
	latch := lifecycle.New()
	latch.Start()
	w, err := NewWatchdog(10*time.Millisecond, 2, latch)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Heartbeat("worker-1"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if !latch.HasStopped() {
		t.Fatal("expected watchdog to raise the latch after missed heartbeats")
	}
}

func TestWatchdogStaysQuietWithRegularHeartbeats(t *testing.T) {
	latch := lifecycle.New()
	latch.Start()
	w, err := NewWatchdog(20*time.Millisecond, 5, latch)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(15 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				_ = w.Heartbeat("worker-1")
			}
		}
	}()
	w.Run(ctx)
	close(stop)

	if latch.HasStopped() {
		t.Fatal("expected watchdog not to raise the latch while heartbeats keep arriving")
	}
}
