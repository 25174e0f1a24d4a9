package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// LifecycleState is the state of the whole microservice, as distinct from
// the per-tenant engine states.
type LifecycleState string

const (
	LifecycleCreated          LifecycleState = "created"
	LifecycleInitializing     LifecycleState = "initializing"
	LifecycleWaitingForConfig LifecycleState = "waiting_for_config"
	LifecycleRunning          LifecycleState = "running"
	LifecycleStopping         LifecycleState = "stopping"
	LifecycleTerminated       LifecycleState = "terminated"
)

// lifecycleStep is one named shared-dependency action. Steps execute in
// order during startup and their stop counterparts run in reverse order
// during shutdown.
type lifecycleStep struct {
	name string
	run  func(ctx context.Context) error
}

// Controller sequences global startup and shutdown around an orchestrator:
// shared-dependency initialization, the configuration-readiness barrier,
// tenant-engine population via the startup scan, and orderly teardown.
// Step failures during Initialize or Start are fatal and propagate to the
// caller; per-tenant onboarding failures never are.
type Controller struct {
	orch   *Orchestrator
	router *Router
	store  domain.ConfigStore

	directory          domain.TenantDirectory
	tenantsRoot        string
	configReadyTimeout time.Duration
	log                *slog.Logger

	mu          sync.Mutex
	state       LifecycleState
	unsubscribe func()
}

// NewController creates a lifecycle controller in the Created state.
// tenantsRoot is the configuration-store prefix under which tenant
// configuration lives (one child node per tenant id).
func NewController(orch *Orchestrator, router *Router, store domain.ConfigStore,
	directory domain.TenantDirectory, tenantsRoot string, configReadyTimeout time.Duration,
	log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		orch:               orch,
		router:             router,
		store:              store,
		directory:          directory,
		tenantsRoot:        tenantsRoot,
		configReadyTimeout: configReadyTimeout,
		log:                log,
		state:              LifecycleCreated,
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(state LifecycleState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) requireState(want LifecycleState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != want {
		return fmt.Errorf("lifecycle state is %q, want %q", c.state, want)
	}
	return nil
}

// runSteps executes named steps in order, aborting on the first failure.
func (c *Controller) runSteps(ctx context.Context, steps []lifecycleStep) error {
	for _, step := range steps {
		c.log.InfoContext(ctx, "lifecycle step", "step", step.name)
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

// Initialize brings shared dependencies up, starts the dispatcher loop, and
// blocks until the configuration store reports readiness. Any failure here
// aborts microservice startup.
func (c *Controller) Initialize(ctx context.Context) error {
	if err := c.requireState(LifecycleCreated); err != nil {
		return err
	}
	c.setState(LifecycleInitializing)

	steps := []lifecycleStep{
		{name: "initialize tenant directory", run: c.directory.WaitForAvailable},
		{name: "start dispatcher", run: func(ctx context.Context) error {
			c.orch.StartDispatcher(ctx)
			return nil
		}},
	}
	if err := c.runSteps(ctx, steps); err != nil {
		return err
	}

	c.setState(LifecycleWaitingForConfig)
	readyCtx := ctx
	if c.configReadyTimeout > 0 {
		var cancel context.CancelFunc
		readyCtx, cancel = context.WithTimeout(ctx, c.configReadyTimeout)
		defer cancel()
	}
	if err := c.store.WaitUntilReady(readyCtx); err != nil {
		return fmt.Errorf("waiting for configuration store: %w", err)
	}
	return nil
}

// Start subscribes the router to configuration changes, runs the startup
// scan to enqueue every configured tenant, and marks configuration events
// live. Scan listing failures are fatal; individual tenant failures are
// logged and skipped.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.requireState(LifecycleWaitingForConfig); err != nil {
		return err
	}

	unsubscribe := c.store.Subscribe(c.router)
	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	tenantIDs, err := c.store.List(ctx, c.tenantsRoot)
	if err != nil {
		return fmt.Errorf("listing configured tenants: %w", err)
	}
	if len(tenantIDs) == 0 {
		c.log.WarnContext(ctx, "no tenants currently configured")
	}
	for _, tenantID := range tenantIDs {
		if _, registered := c.orch.Registry().Get(tenantID); registered {
			continue
		}
		if err := c.orch.RequestOnboarding(ctx, tenantID); err != nil {
			c.log.ErrorContext(ctx, "unable to onboard tenant", "tenant_id", tenantID, "error", err)
		}
	}

	c.router.MarkReady(ctx)
	c.setState(LifecycleRunning)
	return nil
}

// Stop takes configuration events offline and stops every tenant engine.
// Shared dependencies stop in reverse of their start order. Stop is only
// meaningful after Initialize has run; calls from Created or Terminated are
// ignored.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.state == LifecycleCreated || c.state == LifecycleTerminated {
		state := c.state
		c.mu.Unlock()
		c.log.WarnContext(ctx, "ignoring stop", "state", string(state))
		return
	}
	c.state = LifecycleStopping
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.orch.StopEngines(ctx)
}

// Terminate shuts down the dispatcher and worker pool and releases the
// onboarding machinery. After Terminate the controller is done for good;
// further calls are no-ops.
func (c *Controller) Terminate(ctx context.Context) {
	c.mu.Lock()
	if c.state == LifecycleTerminated {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.orch.Shutdown()
	c.setState(LifecycleTerminated)
	c.log.InfoContext(ctx, "lifecycle terminated")
}
