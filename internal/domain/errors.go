package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	// ErrTenantUnknown is returned when the tenant directory has no record
	// for a requested id.
	ErrTenantUnknown = errors.New("tenant unknown")

	// ErrQueueFull is returned when the onboarding queue rejects a record.
	// Producers drop the request rather than block on it.
	ErrQueueFull = errors.New("onboarding queue full")
)

// Stage identifies one phase of the onboarding pipeline.
type Stage string

const (
	StageInitialize Stage = "initialize"
	StageStart      Stage = "start"
	StageBootstrap  Stage = "bootstrap"
)

// StageError is returned when an onboarding pipeline stage fails for a
// tenant. It carries the tenant id and the failed stage so the terminal
// handler can log with full context.
type StageError struct {
	Stage    Stage
	TenantID string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for tenant %q: %v", e.Stage, e.TenantID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// TransitionError is returned when an engine state transition is not allowed.
type TransitionError struct {
	Event   Event
	Current EngineState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// PathError is returned when a configuration-store path cannot be resolved
// to a tenant. Routing errors are logged and dropped, never propagated.
type PathError struct {
	Path string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q is not under the tenant configuration root", e.Path)
}
