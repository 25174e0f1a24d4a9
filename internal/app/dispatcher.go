package app

import (
	"context"
	"log/slog"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// Dispatcher is the single long-lived consumer of the onboarding queue. For
// each record it performs a staleness check against the registry and then
// launches an onboarding pipeline. The loop is process-wide: it survives
// individual launch failures and exits only when the queue closes.
type Dispatcher struct {
	queue    *OnboardQueue
	registry *Registry
	pending  *PendingSet
	launch   func(ctx context.Context, record domain.TenantRecord)
	log      *slog.Logger

	stopped chan struct{}
}

func newDispatcher(queue *OnboardQueue, registry *Registry, pending *PendingSet,
	launch func(ctx context.Context, record domain.TenantRecord), log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		registry: registry,
		pending:  pending,
		launch:   launch,
		log:      log,
		stopped:  make(chan struct{}),
	}
}

// Run drains the queue until it is closed. Called on a dedicated goroutine
// by the lifecycle controller.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.stopped)

	for {
		record, ok := d.queue.Take()
		if !ok {
			d.log.InfoContext(ctx, "dispatcher exiting, onboarding queue closed")
			return
		}

		if _, exists := d.registry.Get(record.ID); exists {
			// Stale duplicate: the tenant got registered after this record
			// was enqueued. Clearing the marker keeps the tenant eligible
			// for future onboarding should its engine ever be torn down.
			d.pending.Clear(record.ID)
			d.log.DebugContext(ctx, "discarding stale onboarding record", "tenant_id", record.ID)
			continue
		}

		d.dispatch(ctx, record)
	}
}

// dispatch launches the pipeline, containing any panic so a single bad
// launch never terminates the loop.
func (d *Dispatcher) dispatch(ctx context.Context, record domain.TenantRecord) {
	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "pipeline launch panicked", "tenant_id", record.ID, "panic", r)
			d.pending.Clear(record.ID)
		}
	}()
	d.launch(ctx, record)
}

// Stopped is closed once the loop has exited.
func (d *Dispatcher) Stopped() <-chan struct{} {
	return d.stopped
}
