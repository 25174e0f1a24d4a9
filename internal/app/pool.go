package app

import (
	"context"
	"errors"
	"sync"
)

// defaultPoolSize matches the historical bound on concurrent tenant
// operations: at most five stage bodies execute at once.
const defaultPoolSize = 5

// errPoolClosed is returned for work submitted after shutdown began.
var errPoolClosed = errors.New("worker pool closed")

// WorkerPool bounds the number of concurrently executing pipeline stage
// bodies. It does not bound the number of in-flight pipelines: a pipeline
// waiting between stages holds no slot, so an arbitrary number of tenants
// can be mid-onboarding while only Size stage bodies run.
type WorkerPool struct {
	slots chan struct{}
	quit  chan struct{}
	once  sync.Once
}

// NewWorkerPool creates a pool with the given number of slots. Zero or
// negative size selects the default of five.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = defaultPoolSize
	}
	return &WorkerPool{
		slots: make(chan struct{}, size),
		quit:  make(chan struct{}),
	}
}

// Size returns the concurrency bound.
func (p *WorkerPool) Size() int { return cap(p.slots) }

// Run executes fn once a slot is free and blocks the calling goroutine
// until it completes. Callers are pipeline goroutines, which are cheap to
// park; the bounded resource is the stage body itself. Returns
// errPoolClosed once shutdown has begun, or the context's error if it
// expires before a slot frees up.
func (p *WorkerPool) Run(ctx context.Context, fn func()) error {
	// Checked first on its own: once shutdown has begun, a submission must
	// not win a free slot over the closed quit channel in the select below.
	select {
	case <-p.quit:
		return errPoolClosed
	default:
	}

	select {
	case p.slots <- struct{}{}:
	case <-p.quit:
		return errPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	fn()
	return nil
}

// Shutdown rejects further submissions and waits for the stage bodies that
// are already executing to finish. Idempotent; concurrent calls beyond the
// first return immediately without waiting.
func (p *WorkerPool) Shutdown() {
	p.once.Do(func() {
		close(p.quit)
		// Claiming every slot proves no stage body is still running.
		for i := 0; i < cap(p.slots); i++ {
			p.slots <- struct{}{}
		}
	})
}
