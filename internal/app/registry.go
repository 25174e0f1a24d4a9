package app

import (
	"sync"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// Registry is the source of truth for which tenants are currently served.
// Only engines that completed onboarding are visible here. Safe for
// concurrent use from worker goroutines and external callers; per-tenant
// operations are linearizable, no ordering is guaranteed across tenants.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]domain.EngineHandle
}

// NewRegistry creates an empty tenant registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]domain.EngineHandle)}
}

// Get returns the live engine handle for a tenant, if one is registered.
func (r *Registry) Get(tenantID string) (domain.EngineHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.engines[tenantID]
	return handle, ok
}

// Put installs an engine handle for a tenant. Last writer wins; in practice
// a tenant is only ever written once per registration because the pending
// set rejects concurrent onboarding attempts.
func (r *Registry) Put(tenantID string, handle domain.EngineHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[tenantID] = handle
}

// Remove deletes a tenant's handle, returning it so the caller can release
// engine resources. Used only by the shutdown path.
func (r *Registry) Remove(tenantID string) (domain.EngineHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.engines[tenantID]
	if ok {
		delete(r.engines, tenantID)
	}
	return handle, ok
}

// Snapshot returns a copy of the current tenant→handle mapping. Iteration
// for shutdown works on the copy so engine teardown never holds the lock.
func (r *Registry) Snapshot() map[string]domain.EngineHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.EngineHandle, len(r.engines))
	for id, handle := range r.engines {
		out[id] = handle
	}
	return out
}

// Len returns the number of registered tenants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
