package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neomorfeo/tenantgrid/internal/app"
	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// --- Mocks ---

type mockEngine struct {
	record domain.TenantRecord
}

func (e *mockEngine) Tenant() domain.TenantRecord { return e.record }

// mockProvider is a configurable engine collaborator that records every
// call in order, keyed by tenant.
type mockProvider struct {
	mu           sync.Mutex
	initialized  []string
	started      []string
	bootstrapped []string
	stopped      []string
	hooks        []string

	initErr  func(id string) error
	startErr func(id string) error
	bootErr  func(id string) error

	// initPanic, when non-nil and true for an id, makes Initialize panic.
	initPanic func(id string) bool

	// gate, when non-nil, blocks Initialize until released.
	gate chan struct{}
}

func (m *mockProvider) Initialize(ctx context.Context, record domain.TenantRecord) (domain.EngineHandle, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = append(m.initialized, record.ID)
	if m.initPanic != nil && m.initPanic(record.ID) {
		panic("corrupt engine descriptor: " + record.ID)
	}
	if m.initErr != nil {
		if err := m.initErr(record.ID); err != nil {
			return nil, err
		}
	}
	return &mockEngine{record: record}, nil
}

func (m *mockProvider) Start(_ context.Context, handle domain.EngineHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := handle.Tenant().ID
	m.started = append(m.started, id)
	if m.startErr != nil {
		return m.startErr(id)
	}
	return nil
}

func (m *mockProvider) Bootstrap(_ context.Context, handle domain.EngineHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := handle.Tenant().ID
	m.bootstrapped = append(m.bootstrapped, id)
	if m.bootErr != nil {
		return m.bootErr(id)
	}
	return nil
}

func (m *mockProvider) Stop(_ context.Context, handle domain.EngineHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, handle.Tenant().ID)
	return nil
}

func (m *mockProvider) ConfigurationAdded(_ context.Context, handle domain.EngineHandle, relativePath string, _ []byte) error {
	m.recordHook("added", handle.Tenant().ID, relativePath)
	return nil
}

func (m *mockProvider) ConfigurationUpdated(_ context.Context, handle domain.EngineHandle, relativePath string, _ []byte) error {
	m.recordHook("updated", handle.Tenant().ID, relativePath)
	return nil
}

func (m *mockProvider) ConfigurationDeleted(_ context.Context, handle domain.EngineHandle, relativePath string) error {
	m.recordHook("deleted", handle.Tenant().ID, relativePath)
	return nil
}

func (m *mockProvider) recordHook(op, id, relativePath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fmt.Sprintf("%s:%s:%s", op, id, relativePath))
}

func (m *mockProvider) initCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, got := range m.initialized {
		if got == id {
			n++
		}
	}
	return n
}

func (m *mockProvider) snapshot(field *[]string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), *field...)
}

type mockDirectory struct {
	mu      sync.Mutex
	records map[string]domain.TenantRecord
	waitErr error
	lookups int
}

func newMockDirectory(ids ...string) *mockDirectory {
	records := make(map[string]domain.TenantRecord, len(ids))
	for _, id := range ids {
		records[id] = domain.TenantRecord{ID: id, Name: "Tenant " + id}
	}
	return &mockDirectory{records: records}
}

func (m *mockDirectory) WaitForAvailable(_ context.Context) error {
	return m.waitErr
}

func (m *mockDirectory) GetTenantByID(_ context.Context, id string) (domain.TenantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	record, ok := m.records[id]
	if !ok {
		return domain.TenantRecord{}, domain.ErrTenantUnknown
	}
	return record, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []string
}

func (m *mockPublisher) Publish(_ context.Context, event domain.Event, record domain.TenantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, fmt.Sprintf("%s:%s", event, record.ID))
	return nil
}

// tableValidator walks domain.Transitions directly, mirroring the FSM
// adapter without pulling it into this package's tests.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, current domain.EngineState, event domain.Event) (domain.EngineState, error) {
	for _, tr := range domain.Transitions {
		if tr.Event == event && tr.Src == current {
			return tr.Dst, nil
		}
	}
	return "", &domain.TransitionError{Event: event, Current: current}
}

// --- Helpers ---

func newOrchestrator(t *testing.T, provider *mockProvider, directory *mockDirectory) (*app.Orchestrator, *mockPublisher) {
	t.Helper()
	pub := &mockPublisher{}
	orch := app.NewOrchestrator(provider, directory, tableValidator{}, pub, app.Options{})
	orch.StartDispatcher(context.Background())
	t.Cleanup(orch.Shutdown)
	return orch, pub
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- Tests ---

func TestRequestOnboarding_ReachesRunning(t *testing.T) {
	provider := &mockProvider{}
	orch, pub := newOrchestrator(t, provider, newMockDirectory("a"))

	if err := orch.RequestOnboarding(context.Background(), "a"); err != nil {
		t.Fatalf("RequestOnboarding failed: %v", err)
	}

	waitFor(t, "tenant a registered", func() bool {
		_, ok := orch.Registry().Get("a")
		return ok
	})

	if state := orch.EngineState("a"); state != domain.StateRunning {
		t.Errorf("EngineState = %q, want %q", state, domain.StateRunning)
	}
	if orch.Pending().IsPending("a") {
		t.Error("pending marker should be cleared after promotion")
	}

	waitFor(t, "onboarded event", func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.events) == 1
	})
	if pub.events[0] != "onboarded:a" {
		t.Errorf("event = %q, want %q", pub.events[0], "onboarded:a")
	}
}

func TestRequestOnboarding_NoDuplicateUnderConcurrency(t *testing.T) {
	provider := &mockProvider{}
	directory := newMockDirectory("t")
	orch, _ := newOrchestrator(t, provider, directory)

	const n = 25
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := orch.RequestOnboarding(context.Background(), "t"); err != nil {
				t.Errorf("RequestOnboarding: %v", err)
			}
		}()
	}
	wg.Wait()

	waitFor(t, "tenant t registered", func() bool {
		_, ok := orch.Registry().Get("t")
		return ok
	})

	if got := provider.initCount("t"); got != 1 {
		t.Errorf("Initialize invoked %d times, want exactly 1", got)
	}
}

func TestRequestOnboarding_UnknownTenant(t *testing.T) {
	provider := &mockProvider{}
	orch, _ := newOrchestrator(t, provider, newMockDirectory())

	err := orch.RequestOnboarding(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrTenantUnknown) {
		t.Fatalf("expected ErrTenantUnknown, got %v", err)
	}

	// The marker is released so a later event can retry.
	if orch.Pending().IsPending("ghost") {
		t.Error("pending marker should be cleared for unknown tenant")
	}
	if got := provider.initCount("ghost"); got != 0 {
		t.Errorf("Initialize invoked %d times, want 0", got)
	}
}

func TestRequestOnboarding_DuplicateWhilePendingIsNoop(t *testing.T) {
	provider := &mockProvider{gate: make(chan struct{})}
	directory := newMockDirectory("t")
	orch, _ := newOrchestrator(t, provider, directory)

	if err := orch.RequestOnboarding(context.Background(), "t"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	// Engine construction is blocked on the gate; the tenant is pending.
	waitFor(t, "tenant t pending", func() bool { return orch.Pending().IsPending("t") })

	lookupsBefore := func() int {
		directory.mu.Lock()
		defer directory.mu.Unlock()
		return directory.lookups
	}()

	if err := orch.RequestOnboarding(context.Background(), "t"); err != nil {
		t.Fatalf("duplicate request: %v", err)
	}
	if got := func() int {
		directory.mu.Lock()
		defer directory.mu.Unlock()
		return directory.lookups
	}(); got != lookupsBefore {
		t.Errorf("duplicate request hit the directory (%d lookups, want %d)", got, lookupsBefore)
	}

	close(provider.gate)
	waitFor(t, "tenant t registered", func() bool {
		_, ok := orch.Registry().Get("t")
		return ok
	})
	if got := provider.initCount("t"); got != 1 {
		t.Errorf("Initialize invoked %d times, want 1", got)
	}
}

func TestPipeline_FailureIsolation(t *testing.T) {
	provider := &mockProvider{
		startErr: func(id string) error {
			if id == "bad" {
				return errors.New("listener refused to bind")
			}
			return nil
		},
	}
	orch, pub := newOrchestrator(t, provider, newMockDirectory("bad", "good"))

	if err := orch.RequestOnboarding(context.Background(), "bad"); err != nil {
		t.Fatalf("onboarding bad: %v", err)
	}
	if err := orch.RequestOnboarding(context.Background(), "good"); err != nil {
		t.Fatalf("onboarding good: %v", err)
	}

	waitFor(t, "tenant good registered", func() bool {
		_, ok := orch.Registry().Get("good")
		return ok
	})
	waitFor(t, "tenant bad failed", func() bool {
		return orch.EngineState("bad") == domain.StateFailed
	})

	if _, ok := orch.Registry().Get("bad"); ok {
		t.Error("failed tenant must not reach the registry")
	}
	if orch.Pending().IsPending("bad") {
		t.Error("failed tenant's pending marker must be cleared")
	}

	// Bootstrap never ran for the failed tenant.
	for _, id := range provider.snapshot(&provider.bootstrapped) {
		if id == "bad" {
			t.Error("Bootstrap ran for a tenant whose Start failed")
		}
	}

	waitFor(t, "failure event", func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		for _, e := range pub.events {
			if e == "onboard_failed:bad" {
				return true
			}
		}
		return false
	})
}

func TestPipeline_PanicInStageIsIsolated(t *testing.T) {
	provider := &mockProvider{
		initPanic: func(id string) bool { return id == "bad" },
	}
	orch, pub := newOrchestrator(t, provider, newMockDirectory("bad", "good"))

	if err := orch.RequestOnboarding(context.Background(), "bad"); err != nil {
		t.Fatalf("onboarding bad: %v", err)
	}
	if err := orch.RequestOnboarding(context.Background(), "good"); err != nil {
		t.Fatalf("onboarding good: %v", err)
	}

	// The panicking tenant fails like any other stage error; the process
	// and the other tenant are untouched.
	waitFor(t, "tenant good registered", func() bool {
		_, ok := orch.Registry().Get("good")
		return ok
	})
	waitFor(t, "tenant bad failed", func() bool {
		return orch.EngineState("bad") == domain.StateFailed
	})

	if _, ok := orch.Registry().Get("bad"); ok {
		t.Error("panicked tenant must not reach the registry")
	}
	if orch.Pending().IsPending("bad") {
		t.Error("panicked tenant's pending marker must be cleared")
	}

	waitFor(t, "failure event", func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		for _, e := range pub.events {
			if e == "onboard_failed:bad" {
				return true
			}
		}
		return false
	})

	// The marker is free again, so a later event can retry the tenant.
	if err := orch.RequestOnboarding(context.Background(), "bad"); err != nil {
		t.Fatalf("re-onboarding bad: %v", err)
	}
	waitFor(t, "second initialize attempt", func() bool {
		return provider.initCount("bad") == 2
	})
}

func TestPipeline_StageOrdering(t *testing.T) {
	provider := &mockProvider{
		initErr: func(id string) error {
			if id == "broken" {
				return errors.New("no engine descriptor")
			}
			return nil
		},
	}
	orch, _ := newOrchestrator(t, provider, newMockDirectory("broken"))

	if err := orch.RequestOnboarding(context.Background(), "broken"); err != nil {
		t.Fatalf("onboarding: %v", err)
	}
	waitFor(t, "tenant broken failed", func() bool {
		return orch.EngineState("broken") == domain.StateFailed
	})

	if got := provider.snapshot(&provider.started); len(got) != 0 {
		t.Errorf("Start ran for tenants %v despite failed Initialize", got)
	}
	if got := provider.snapshot(&provider.bootstrapped); len(got) != 0 {
		t.Errorf("Bootstrap ran for tenants %v despite failed Initialize", got)
	}
}

func TestPipeline_RetryAfterFailure(t *testing.T) {
	var failFirst sync.Once
	provider := &mockProvider{}
	provider.bootErr = func(id string) error {
		var err error
		failFirst.Do(func() { err = errors.New("seed dataset unavailable") })
		return err
	}
	orch, _ := newOrchestrator(t, provider, newMockDirectory("t"))

	if err := orch.RequestOnboarding(context.Background(), "t"); err != nil {
		t.Fatalf("first onboarding: %v", err)
	}
	waitFor(t, "first attempt failed", func() bool {
		return orch.EngineState("t") == domain.StateFailed
	})

	// A later event re-enters the pending state and succeeds.
	if err := orch.RequestOnboarding(context.Background(), "t"); err != nil {
		t.Fatalf("retry onboarding: %v", err)
	}
	waitFor(t, "tenant t registered after retry", func() bool {
		_, ok := orch.Registry().Get("t")
		return ok
	})

	if got := provider.initCount("t"); got != 2 {
		t.Errorf("Initialize invoked %d times across both attempts, want 2", got)
	}
}

func TestDedupInvariant_NeverPendingAndRegistered(t *testing.T) {
	provider := &mockProvider{}
	orch, _ := newOrchestrator(t, provider, newMockDirectory("a", "b", "c"))

	for _, id := range []string{"a", "b", "c"} {
		if err := orch.RequestOnboarding(context.Background(), id); err != nil {
			t.Fatalf("onboarding %s: %v", id, err)
		}
	}
	waitFor(t, "all tenants registered", func() bool {
		return orch.Registry().Len() == 3
	})

	for _, id := range []string{"a", "b", "c"} {
		_, registered := orch.Registry().Get(id)
		pending := orch.Pending().IsPending(id)
		if registered && pending {
			t.Errorf("tenant %s is both pending and registered", id)
		}
		if !registered {
			t.Errorf("tenant %s should be registered", id)
		}
	}
	if orch.Pending().Len() != 0 {
		t.Errorf("pending set has %d entries at quiescence, want 0", orch.Pending().Len())
	}
}

func TestStopEngines_EmptiesRegistry(t *testing.T) {
	provider := &mockProvider{}
	orch, pub := newOrchestrator(t, provider, newMockDirectory("a", "b"))

	for _, id := range []string{"a", "b"} {
		if err := orch.RequestOnboarding(context.Background(), id); err != nil {
			t.Fatalf("onboarding %s: %v", id, err)
		}
	}
	waitFor(t, "both registered", func() bool { return orch.Registry().Len() == 2 })

	orch.StopEngines(context.Background())

	if orch.Registry().Len() != 0 {
		t.Errorf("registry has %d tenants after StopEngines, want 0", orch.Registry().Len())
	}
	stopped := provider.snapshot(&provider.stopped)
	if len(stopped) != 2 {
		t.Errorf("Stop invoked for %v, want both tenants", stopped)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	var stops int
	for _, e := range pub.events {
		if e == "stopped:a" || e == "stopped:b" {
			stops++
		}
	}
	if stops != 2 {
		t.Errorf("published %d stopped events, want 2", stops)
	}
}

func TestEngineState_Unregistered(t *testing.T) {
	provider := &mockProvider{}
	orch, _ := newOrchestrator(t, provider, newMockDirectory())

	if state := orch.EngineState("nobody"); state != domain.StateUnregistered {
		t.Errorf("EngineState = %q, want %q", state, domain.StateUnregistered)
	}
}
