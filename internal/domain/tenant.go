package domain

// TenantRecord describes a tenant as resolved from the tenant directory.
// Records are immutable once fetched; the orchestrator copies them by value
// into its queue and maps.
type TenantRecord struct {
	ID       string
	Name     string
	Metadata map[string]string
}

// EngineState represents the lifecycle state of a tenant's engine during a
// single onboarding attempt. Only engines that reach StateRunning become
// visible in the registry; StateFailed absorbs any in-flight failure.
type EngineState string

const (
	StateUnregistered  EngineState = "unregistered"
	StateInitializing  EngineState = "initializing"
	StateInitialized   EngineState = "initialized"
	StateStarting      EngineState = "starting"
	StateStarted       EngineState = "started"
	StateBootstrapping EngineState = "bootstrapping"
	StateRunning       EngineState = "running"
	StateFailed        EngineState = "failed"
)

// Event represents an action that triggers an engine state transition.
type Event string

const (
	EventInitialize         Event = "initialize"
	EventInitializeComplete Event = "initialize_complete"
	EventStart              Event = "start"
	EventStartComplete      Event = "start_complete"
	EventBootstrap          Event = "bootstrap"
	EventBootstrapComplete  Event = "bootstrap_complete"
	EventFail               Event = "fail"

	// Published lifecycle outcomes, consumed by the async event worker.
	EventOnboarded     Event = "onboarded"
	EventOnboardFailed Event = "onboard_failed"
	EventStopped       Event = "stopped"
)

// Transition defines a valid state change: an event moves an engine from Src to Dst.
type Transition struct {
	Event Event
	Src   EngineState
	Dst   EngineState
}

// Transitions defines all valid engine state changes during onboarding.
// This is domain knowledge consumed by the FSM adapter. StateFailed is
// reachable from every in-progress state; StateRunning and StateFailed are
// terminal for a given attempt.
var Transitions = []Transition{
	{Event: EventInitialize, Src: StateUnregistered, Dst: StateInitializing},
	{Event: EventInitializeComplete, Src: StateInitializing, Dst: StateInitialized},
	{Event: EventStart, Src: StateInitialized, Dst: StateStarting},
	{Event: EventStartComplete, Src: StateStarting, Dst: StateStarted},
	{Event: EventBootstrap, Src: StateStarted, Dst: StateBootstrapping},
	{Event: EventBootstrapComplete, Src: StateBootstrapping, Dst: StateRunning},
	{Event: EventFail, Src: StateInitializing, Dst: StateFailed},
	{Event: EventFail, Src: StateInitialized, Dst: StateFailed},
	{Event: EventFail, Src: StateStarting, Dst: StateFailed},
	{Event: EventFail, Src: StateStarted, Dst: StateFailed},
	{Event: EventFail, Src: StateBootstrapping, Dst: StateFailed},
}

// PathInfo is the tenant-scoped view of an absolute configuration-store
// path: which tenant it belongs to and the path relative to that tenant's
// configuration root. Stateless; recomputed per event.
type PathInfo struct {
	TenantID     string
	RelativePath string
}
