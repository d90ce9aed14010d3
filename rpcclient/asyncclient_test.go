package rpcclient

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
)

type req struct{ N int }
type rep struct{ N int }

func TestAsyncClientCallSucceeds(t *testing.T) {
	c := NewAsyncClient[req, rep](func(ctx context.Context, r *req, opts ...grpc.CallOption) (*rep, error) {
		return &rep{N: r.N * 2}, nil
	})
	defer c.Close()

	p, err := c.Call(context.Background(), &req{N: 21})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := p.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.N != 42 {
		t.Fatalf("want 42, got %d", r.N)
	}
}

func TestAsyncClientRejectsCallAfterClose(t *testing.T) {
	c := NewAsyncClient[req, rep](func(ctx context.Context, r *req, opts ...grpc.CallOption) (*rep, error) {
		return &rep{}, nil
	})
	c.Close()
	if _, err := c.Call(context.Background(), &req{}); err == nil {
		t.Fatal("expected Call after Close to fail")
	}
}

func TestAsyncClientCloseDrainsInflight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := NewAsyncClient[req, rep](func(ctx context.Context, r *req, opts ...grpc.CallOption) (*rep, error) {
		close(started)
		<-release
		return &rep{}, nil
	})
	if _, err := c.Call(context.Background(), &req{}); err != nil {
		t.Fatal(err)
	}
	<-started
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("expected Close to block until inflight call completes")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-done
}
