package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// pipeline drives one tenant's onboarding attempt through its three stages:
// initialize → start → bootstrap. Each stage body executes on the worker
// pool and only runs if the previous stage succeeded. The pipeline owns the
// engine handle under construction until promotion hands it to the registry.
//
// Failures are isolated per tenant: every error path ends in the terminal
// handler, which logs the tenant id and cause, clears the pending marker so
// a later configuration event can retry, and installs nothing.
type pipeline struct {
	record    domain.TenantRecord
	provider  domain.EngineProvider
	validator domain.TransitionValidator
	registry  *Registry
	pending   *PendingSet
	pool      *WorkerPool
	events    domain.EventPublisher
	log       *slog.Logger

	stageTimeout time.Duration
	state        domain.EngineState
	onState      func(tenantID string, state domain.EngineState)
}

func (p *pipeline) run(ctx context.Context) {
	// Backstop for panics outside a stage body (validator, publisher,
	// promotion). The stage recover below already turns provider panics
	// into stage failures; this one only keeps a pathological collaborator
	// from killing the process or leaking the pending marker.
	defer func() {
		if r := recover(); r != nil {
			p.log.ErrorContext(ctx, "tenant onboarding panicked",
				"tenant_id", p.record.ID, "panic", r)
			p.pending.Clear(p.record.ID)
		}
	}()

	handle, err := p.execute(ctx)
	if err != nil {
		p.fail(ctx, err)
		return
	}

	// Promotion: the registry insert precedes the marker removal so no
	// moment exists where the tenant is neither pending nor registered.
	p.registry.Put(p.record.ID, handle)
	p.pending.Clear(p.record.ID)

	p.log.InfoContext(ctx, "tenant engine running", "tenant_id", p.record.ID)
	if err := p.events.Publish(ctx, domain.EventOnboarded, p.record); err != nil {
		p.log.ErrorContext(ctx, "publishing onboarded event", "tenant_id", p.record.ID, "error", err)
	}
}

// execute runs the three stages sequentially, returning the constructed
// handle or the first stage error.
func (p *pipeline) execute(ctx context.Context) (domain.EngineHandle, error) {
	var handle domain.EngineHandle

	err := p.stage(ctx, domain.StageInitialize, domain.EventInitialize, domain.EventInitializeComplete,
		func(ctx context.Context) error {
			h, err := p.provider.Initialize(ctx, p.record)
			if err != nil {
				return err
			}
			handle = h
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, domain.StageStart, domain.EventStart, domain.EventStartComplete,
		func(ctx context.Context) error {
			return p.provider.Start(ctx, handle)
		})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, domain.StageBootstrap, domain.EventBootstrap, domain.EventBootstrapComplete,
		func(ctx context.Context) error {
			return p.provider.Bootstrap(ctx, handle)
		})
	if err != nil {
		return nil, err
	}

	return handle, nil
}

// stage applies the begin transition, runs the stage body on the pool under
// the configured deadline, and applies the complete transition. Any error
// comes back as a StageError carrying the tenant id.
func (p *pipeline) stage(ctx context.Context, stage domain.Stage, begin, complete domain.Event, body func(context.Context) error) error {
	if err := p.transition(ctx, begin); err != nil {
		return &domain.StageError{Stage: stage, TenantID: p.record.ID, Err: err}
	}

	var bodyErr error
	runErr := p.pool.Run(ctx, func() {
		// A panicking provider fails this tenant's stage, nothing more.
		defer func() {
			if r := recover(); r != nil {
				bodyErr = fmt.Errorf("engine panic: %v", r)
			}
		}()
		stageCtx := ctx
		if p.stageTimeout > 0 {
			var cancel context.CancelFunc
			stageCtx, cancel = context.WithTimeout(ctx, p.stageTimeout)
			defer cancel()
		}
		bodyErr = body(stageCtx)
	})
	if runErr != nil {
		bodyErr = runErr
	}
	if bodyErr != nil {
		return &domain.StageError{Stage: stage, TenantID: p.record.ID, Err: bodyErr}
	}

	if err := p.transition(ctx, complete); err != nil {
		return &domain.StageError{Stage: stage, TenantID: p.record.ID, Err: err}
	}
	return nil
}

func (p *pipeline) transition(ctx context.Context, event domain.Event) error {
	next, err := p.validator.Apply(ctx, p.state, event)
	if err != nil {
		return err
	}
	p.state = next
	if p.onState != nil {
		p.onState(p.record.ID, next)
	}
	return nil
}

// fail is the terminal handler for every unsuccessful attempt: mark the
// state failed, log, clear the pending marker for liveness, publish the
// failure event. Nothing reaches the registry.
func (p *pipeline) fail(ctx context.Context, cause error) {
	if next, err := p.validator.Apply(ctx, p.state, domain.EventFail); err == nil {
		p.state = next
	} else {
		p.state = domain.StateFailed
	}
	if p.onState != nil {
		p.onState(p.record.ID, domain.StateFailed)
	}

	p.log.ErrorContext(ctx, "tenant onboarding failed",
		"tenant_id", p.record.ID,
		"state", string(p.state),
		"error", cause,
	)
	p.pending.Clear(p.record.ID)

	if err := p.events.Publish(ctx, domain.EventOnboardFailed, p.record); err != nil {
		p.log.ErrorContext(ctx, "publishing onboard_failed event", "tenant_id", p.record.ID, "error", err)
	}
}
