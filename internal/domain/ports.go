package domain

import "context"

// EngineHandle is the opaque handle to one tenant's processing engine. The
// orchestrator never looks inside an engine; it only drives it through the
// EngineProvider contract and forwards configuration events to it.
type EngineHandle interface {
	// Tenant returns the record the engine was constructed from.
	Tenant() TenantRecord
}

// EngineProvider constructs and drives tenant engines. The composition of an
// engine is an external concern; the orchestrator only depends on this
// contract. All operations may block and accept a context for cancellation.
type EngineProvider interface {
	Initialize(ctx context.Context, record TenantRecord) (EngineHandle, error)
	Start(ctx context.Context, handle EngineHandle) error
	Bootstrap(ctx context.Context, handle EngineHandle) error
	Stop(ctx context.Context, handle EngineHandle) error

	// Configuration-event hooks, invoked synchronously on the router's
	// calling goroutine. Implementations must be fast or offload internally.
	ConfigurationAdded(ctx context.Context, handle EngineHandle, relativePath string, data []byte) error
	ConfigurationUpdated(ctx context.Context, handle EngineHandle, relativePath string, data []byte) error
	ConfigurationDeleted(ctx context.Context, handle EngineHandle, relativePath string) error
}

// TenantDirectory resolves tenant identifiers to tenant records.
type TenantDirectory interface {
	// WaitForAvailable blocks until the backing service is reachable. It
	// must be called before any lookup.
	WaitForAvailable(ctx context.Context) error

	// GetTenantByID returns the record for the given id, or ErrTenantUnknown.
	GetTenantByID(ctx context.Context, id string) (TenantRecord, error)
}

// ConfigListener receives configuration change notifications from a
// ConfigStore. Callbacks arrive on arbitrary goroutines, at least once.
type ConfigListener interface {
	OnConfigurationAdded(path string, data []byte)
	OnConfigurationUpdated(path string, data []byte)
	OnConfigurationDeleted(path string)
}

// ConfigStore is a hierarchical configuration service with watch semantics.
type ConfigStore interface {
	// List returns the ordered child names directly under pathPrefix.
	List(ctx context.Context, pathPrefix string) ([]string, error)

	// Subscribe registers a listener for change notifications and returns
	// a function that cancels the subscription.
	Subscribe(listener ConfigListener) (cancel func())

	// WaitUntilReady blocks until the store reports readiness or the
	// context expires.
	WaitUntilReady(ctx context.Context) error
}

// TransitionValidator checks engine state transitions against the domain
// transition table.
type TransitionValidator interface {
	Apply(ctx context.Context, current EngineState, event Event) (EngineState, error)
}

// EventPublisher defines the contract for emitting tenant lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, record TenantRecord) error
}
