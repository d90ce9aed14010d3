// Package rpcclient implements the Async RPC Client Pool of
// spec.md §4.J. The source's raw completion-queue thread is subsumed
// by Go's native concurrency: each outstanding call is just a goroutine
// racing grpc.ClientConn.Invoke against the caller's context, reporting
// back over a channel (SPEC_FULL.md §10).
package rpcclient

import (
	"context"
	"sync"

	"google.golang.org/grpc"

	"github.com/aiserve/msserve/mnerr"
)

// Pending is a future-like handle for one outstanding call.
type Pending[Rep any] struct {
	resultC chan result[Rep]
}

type result[Rep any] struct {
	rep *Rep
	err error
}

// Wait blocks for the call's outcome or ctx's cancellation, whichever
// comes first (spec.md §4.J "dispatch callback(SUCCESS)... otherwise
// callback(WORKER_UNAVAILABLE, grpc_message)").
func (p *Pending[Rep]) Wait(ctx context.Context) (*Rep, error) {
	select {
	case r := <-p.resultC:
		return r.rep, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// invokeFunc is a method-bound RPC call shape: given a context and
// request, perform the unary call and return the reply.
type invokeFunc[Req, Rep any] func(ctx context.Context, req *Req, opts ...grpc.CallOption) (*Rep, error)

// AsyncClient issues unary RPCs without blocking the caller's thread
// (spec.md §4.J), generic over request/reply types per Design Notes §9
// (replacing the source's template-specialized RPC client).
type AsyncClient[Req, Rep any] struct {
	invoke invokeFunc[Req, Rep]

	mu       sync.Mutex
	inflight int
	closed   bool
	wg       sync.WaitGroup
}

// NewAsyncClient wraps a bound RPC method (e.g. a generated client's
// Predict) so callers can fire it without waiting synchronously.
func NewAsyncClient[Req, Rep any](invoke invokeFunc[Req, Rep]) *AsyncClient[Req, Rep] {
	return &AsyncClient[Req, Rep]{invoke: invoke}
}

// Call dispatches req on its own goroutine (the "completion queue" of
// spec.md §4.J, one per outstanding call rather than a single shared
// thread — Go's scheduler multiplexes goroutines onto OS threads, so
// this preserves the "parallel OS threads" concurrency model of
// spec.md §5 without a hand-rolled queue).
func (c *AsyncClient[Req, Rep]) Call(ctx context.Context, req *Req, opts ...grpc.CallOption) (*Pending[Rep], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, mnerr.New(mnerr.SystemError, "async client: Call after Close")
	}
	c.inflight++
	c.wg.Add(1)
	c.mu.Unlock()

	p := &Pending[Rep]{resultC: make(chan result[Rep], 1)}
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.inflight--
			c.mu.Unlock()
		}()
		rep, err := c.invoke(ctx, req, opts...)
		if err != nil {
			err = mnerr.Wrap(mnerr.WorkerUnavailable, err, "async rpc")
		}
		p.resultC <- result[Rep]{rep: rep, err: err}
	}()
	return p, nil
}

// Close marks the client closed to new calls and drains every
// outstanding one before returning (spec.md §4.J "On shutdown, the
// queue is closed and the thread joined").
func (c *AsyncClient[Req, Rep]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}

// Inflight reports the number of calls currently outstanding (test/
// observability helper).
func (c *AsyncClient[Req, Rep]) Inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}
