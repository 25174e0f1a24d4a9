package app

import (
	"sync"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// PendingSet tracks tenants that are mid-onboarding. It exists purely for
// deduplication: a tenant is marked the instant it is accepted for
// onboarding and cleared exactly once by the pipeline's terminal handler
// (promotion or failure), or by the dispatcher when it discards a stale
// record. A tenant is never pending twice concurrently.
type PendingSet struct {
	mu      sync.Mutex
	records map[string]domain.TenantRecord
}

// NewPendingSet creates an empty pending set.
func NewPendingSet() *PendingSet {
	return &PendingSet{records: make(map[string]domain.TenantRecord)}
}

// TryMark atomically installs a pending marker for the tenant. It returns
// false without side effects if the tenant is already pending. The
// check-and-set holds a single lock so concurrent callers cannot both
// succeed.
func (p *PendingSet) TryMark(tenantID string, record domain.TenantRecord) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.records[tenantID]; exists {
		return false
	}
	p.records[tenantID] = record
	return true
}

// Update replaces the record stored for an already-pending tenant. Used
// after the directory lookup fills in the full record behind the marker.
func (p *PendingSet) Update(tenantID string, record domain.TenantRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.records[tenantID]; exists {
		p.records[tenantID] = record
	}
}

// Clear removes the pending marker. Idempotent.
func (p *PendingSet) Clear(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records, tenantID)
}

// IsPending reports whether a tenant is currently mid-onboarding.
func (p *PendingSet) IsPending(tenantID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, exists := p.records[tenantID]
	return exists
}

// Len returns the number of pending tenants.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}
