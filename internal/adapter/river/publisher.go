package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// LifecycleJobArgs carries the data needed to process a tenant lifecycle
// event asynchronously. River serializes this as JSON into its job queue
// table. It includes a snapshot of the tenant record at publish time, so
// the worker never needs to consult the directory.
type LifecycleJobArgs struct {
	Event    string            `json:"event"`
	TenantID string            `json:"tenant_id"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (LifecycleJobArgs) Kind() string { return "tenant.lifecycle" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
// Onboarding outcomes (onboarded, onboard_failed, stopped) become durable
// jobs processed off the orchestrator's goroutines.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a lifecycle event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, record domain.TenantRecord) error {
	_, err := p.client.Insert(ctx, LifecycleJobArgs{
		Event:    string(event),
		TenantID: record.ID,
		Name:     record.Name,
		Metadata: record.Metadata,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing lifecycle job: %w", err)
	}
	return nil
}
