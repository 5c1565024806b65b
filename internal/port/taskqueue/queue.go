// Package taskqueue defines the task queue port used for fire-and-forget
// view invalidation work.
package taskqueue

import "context"

// Handler processes a task received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to tasks.
type Queue interface {
	// Publish sends a task to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for tasks on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue immediately.
	Close() error
}

// Subjects for invalidation tasks. Payloads are JSON-encoded change
// records from the invalidation service.
const (
	SubjectEntityChanged  = "invalidation.entity"
	SubjectTypeChanged    = "invalidation.entitytype"
	SubjectOrgPermChanged = "invalidation.orgpermissions"
)
