package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// Options tune the orchestrator. Zero values select defaults.
type Options struct {
	// PoolSize bounds concurrently executing pipeline stage bodies.
	PoolSize int
	// QueueCapacity bounds the onboarding queue.
	QueueCapacity int
	// StageTimeout is the per-stage deadline; expiry is a stage failure.
	// Zero disables stage deadlines.
	StageTimeout time.Duration
	// Logger receives orchestrator logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Orchestrator owns the tenant-serving state of the process: the registry
// of running engines, the pending set, the onboarding queue, the worker
// pool, and the dispatcher that connects them. All state is instance-owned
// and injected into collaborating components; there are no process-wide
// registries.
type Orchestrator struct {
	registry   *Registry
	pending    *PendingSet
	queue      *OnboardQueue
	pool       *WorkerPool
	dispatcher *Dispatcher

	provider  domain.EngineProvider
	directory domain.TenantDirectory
	validator domain.TransitionValidator
	events    domain.EventPublisher

	log          *slog.Logger
	stageTimeout time.Duration

	mu     sync.Mutex
	states map[string]domain.EngineState

	dispatcherRunning atomic.Bool
	pipelines         sync.WaitGroup
}

// NewOrchestrator wires the orchestration core around the injected
// collaborators. The dispatcher loop is not running yet; the lifecycle
// controller starts it during Initialize.
func NewOrchestrator(provider domain.EngineProvider, directory domain.TenantDirectory,
	validator domain.TransitionValidator, events domain.EventPublisher, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	o := &Orchestrator{
		registry:     NewRegistry(),
		pending:      NewPendingSet(),
		queue:        NewOnboardQueue(opts.QueueCapacity),
		pool:         NewWorkerPool(opts.PoolSize),
		provider:     provider,
		directory:    directory,
		validator:    validator,
		events:       events,
		log:          log,
		stageTimeout: opts.StageTimeout,
		states:       make(map[string]domain.EngineState),
	}
	o.dispatcher = newDispatcher(o.queue, o.registry, o.pending, o.launchPipeline, log)
	return o
}

// Registry exposes the tenant registry to collaborating components.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Pending exposes the pending set to collaborating components.
func (o *Orchestrator) Pending() *PendingSet { return o.pending }

// RequestOnboarding accepts a tenant for onboarding unless it is already
// mid-onboarding. It resolves the tenant record through the directory
// (waiting for directory availability first — callers on latency-sensitive
// paths must invoke this off their own goroutine) and hands the record to
// the onboarding queue. An unknown tenant id is an error and releases the
// marker so a later event can retry.
func (o *Orchestrator) RequestOnboarding(ctx context.Context, tenantID string) error {
	if !o.pending.TryMark(tenantID, domain.TenantRecord{ID: tenantID}) {
		// Common, expected dedup hit.
		o.log.DebugContext(ctx, "skipping duplicate onboarding request", "tenant_id", tenantID)
		return nil
	}

	if err := o.directory.WaitForAvailable(ctx); err != nil {
		o.pending.Clear(tenantID)
		return fmt.Errorf("waiting for tenant directory: %w", err)
	}

	record, err := o.directory.GetTenantByID(ctx, tenantID)
	if err != nil {
		o.pending.Clear(tenantID)
		if errors.Is(err, domain.ErrTenantUnknown) {
			return fmt.Errorf("tenant %q: %w", tenantID, domain.ErrTenantUnknown)
		}
		return fmt.Errorf("resolving tenant %q: %w", tenantID, err)
	}
	o.pending.Update(tenantID, record)

	if err := o.queue.Offer(record); err != nil {
		o.pending.Clear(tenantID)
		o.log.ErrorContext(ctx, "onboarding request dropped", "tenant_id", tenantID, "error", err)
		return err
	}
	return nil
}

// launchPipeline starts a pipeline goroutine for the record. Stage bodies
// run on the worker pool; the goroutine itself only parks between stages.
func (o *Orchestrator) launchPipeline(ctx context.Context, record domain.TenantRecord) {
	p := &pipeline{
		record:       record,
		provider:     o.provider,
		validator:    o.validator,
		registry:     o.registry,
		pending:      o.pending,
		pool:         o.pool,
		events:       o.events,
		log:          o.log,
		stageTimeout: o.stageTimeout,
		state:        domain.StateUnregistered,
		onState:      o.setState,
	}

	o.pipelines.Add(1)
	go func() {
		defer o.pipelines.Done()
		p.run(ctx)
	}()
}

func (o *Orchestrator) setState(tenantID string, state domain.EngineState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[tenantID] = state
}

// EngineState reports the current state of a tenant's engine: StateRunning
// for registered tenants, the in-flight stage for pending ones, and
// StateUnregistered (or the last failure) otherwise.
func (o *Orchestrator) EngineState(tenantID string) domain.EngineState {
	if _, ok := o.registry.Get(tenantID); ok {
		return domain.StateRunning
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.states[tenantID]; ok {
		return state
	}
	return domain.StateUnregistered
}

// StartDispatcher runs the dispatcher loop on its own goroutine. Calling it
// more than once has no effect.
func (o *Orchestrator) StartDispatcher(ctx context.Context) {
	if o.dispatcherRunning.CompareAndSwap(false, true) {
		go o.dispatcher.Run(ctx)
	}
}

// StopEngines stops every registered engine and empties the registry.
// Per-engine stop failures are logged, never propagated: teardown of one
// tenant must not block the others.
func (o *Orchestrator) StopEngines(ctx context.Context) {
	for tenantID, handle := range o.registry.Snapshot() {
		if err := o.provider.Stop(ctx, handle); err != nil {
			o.log.ErrorContext(ctx, "stopping tenant engine", "tenant_id", tenantID, "error", err)
		}
		o.registry.Remove(tenantID)
		o.setState(tenantID, domain.StateUnregistered)
		if err := o.events.Publish(ctx, domain.EventStopped, handle.Tenant()); err != nil {
			o.log.ErrorContext(ctx, "publishing stopped event", "tenant_id", tenantID, "error", err)
		}
	}
}

// Shutdown tears the onboarding machinery down: the queue closes (waking
// the dispatcher), the dispatcher drains, the pool rejects new stage bodies
// and waits for running ones, and in-flight pipelines finish on their
// failure path. Registered tenant state is untouched.
func (o *Orchestrator) Shutdown() {
	o.queue.Close()
	if o.dispatcherRunning.Load() {
		<-o.dispatcher.Stopped()
	}
	o.pool.Shutdown()
	o.pipelines.Wait()
}
