package run

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quaycorner/swarmkernel/pkg/state"
	"github.com/quaycorner/swarmkernel/pkg/stream"
)

// ErrPoolDraining is returned by Pool.Run once Shutdown has been called.
var ErrPoolDraining = errors.New("run pool is draining")

// Pool bounds how many Run invocations may execute concurrently across
// threads, independent of each run's own per-group concurrency (C6).
// Grounded on tarsy's pkg/queue/pool.go worker pool, applied to whole
// runs rather than individual queued tasks.
type Pool struct {
	ctrl *Controller
	sem  chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	active   int
	draining bool
}

// NewPool wraps ctrl with a cap of maxConcurrentRuns simultaneous Run
// calls. A non-positive cap is treated as 1.
func NewPool(ctrl *Controller, maxConcurrentRuns int) *Pool {
	if maxConcurrentRuns < 1 {
		maxConcurrentRuns = 1
	}
	return &Pool{ctrl: ctrl, sem: make(chan struct{}, maxConcurrentRuns)}
}

// Run admits one run once a pool slot is free, then delegates to the
// wrapped Controller. Returns ErrPoolDraining if Shutdown was called.
func (p *Pool) Run(ctx context.Context, in Invoke, sink stream.Sink) (*state.RunState, error) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil, ErrPoolDraining
	}
	p.active++
	p.wg.Add(1)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		p.wg.Done()
	}()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	return p.ctrl.Run(ctx, in, sink)
}

// Active reports the number of runs currently admitted (queued on the
// semaphore or executing).
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Shutdown stops admitting new runs and waits for in-flight ones to
// finish, bounded by ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}
