package app

import (
	"sync"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// defaultQueueCapacity bounds the onboarding queue. The queue only ever
// holds deduplicated records, so under normal load it never fills; the
// bound exists to keep a misbehaving producer from growing memory without
// limit.
const defaultQueueCapacity = 1024

// OnboardQueue is the FIFO hand-off point between onboarding producers
// (startup scan, configuration router) and the single dispatcher consumer.
// Offer never blocks the producer; Take blocks the consumer until a record
// arrives or the queue is closed.
type OnboardQueue struct {
	mu      sync.RWMutex
	closed  bool
	records chan domain.TenantRecord
}

// NewOnboardQueue creates a queue with the given capacity. Zero or negative
// capacity selects the default.
func NewOnboardQueue(capacity int) *OnboardQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &OnboardQueue{records: make(chan domain.TenantRecord, capacity)}
}

// Offer enqueues a record without blocking. On overflow (or after Close) it
// returns domain.ErrQueueFull and drops the record: producers include watch
// callbacks that must stay responsive, so they are never stalled here.
func (q *OnboardQueue) Offer(record domain.TenantRecord) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return domain.ErrQueueFull
	}
	select {
	case q.records <- record:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Take blocks until a record is available. It returns ok=false once the
// queue has been closed and drained, which is the dispatcher's signal to
// exit cleanly.
func (q *OnboardQueue) Take() (domain.TenantRecord, bool) {
	record, ok := <-q.records
	return record, ok
}

// Close shuts the queue down. Records already enqueued are still delivered
// to the consumer; later Offer calls are rejected. Idempotent.
func (q *OnboardQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.records)
	}
}

// Len returns the number of queued records.
func (q *OnboardQueue) Len() int {
	return len(q.records)
}
