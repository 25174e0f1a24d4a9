package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// LifecycleWorker processes tenant lifecycle jobs from the River queue.
// For now it logs the outcome; future versions will dispatch to webhooks,
// billing, or alerting for failed onboardings.
type LifecycleWorker struct {
	river.WorkerDefaults[LifecycleJobArgs]
}

// Work processes a single lifecycle job.
func (w *LifecycleWorker) Work(ctx context.Context, job *river.Job[LifecycleJobArgs]) error {
	slog.InfoContext(ctx, "processing lifecycle event",
		"event", job.Args.Event,
		"tenant_id", job.Args.TenantID,
		"tenant_name", job.Args.Name,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
