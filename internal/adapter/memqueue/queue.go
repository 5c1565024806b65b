// Package memqueue implements the task queue port in process memory.
// Tasks are dispatched to subscribers on their own goroutines; used by
// tests and single-node deployments without NATS.
package memqueue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/canopyhq/canopy/internal/port/taskqueue"
)

type subscription struct {
	id      int
	handler taskqueue.Handler
}

// Queue is an in-process task queue.
type Queue struct {
	mu     sync.Mutex
	subs   map[string][]subscription
	nextID int
	wg     sync.WaitGroup
	closed bool
}

// New creates an empty in-process queue.
func New() *Queue {
	return &Queue{subs: make(map[string][]subscription)}
}

// Publish dispatches the task to every subscriber of subject. Handlers run
// asynchronously; their errors go to the log, matching the fire-and-forget
// contract of the production queue.
func (q *Queue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	subs := append([]subscription(nil), q.subs[subject]...)
	q.wg.Add(len(subs))
	q.mu.Unlock()

	for _, s := range subs {
		go func(h taskqueue.Handler) {
			defer q.wg.Done()
			if err := h(context.Background(), subject, data); err != nil {
				slog.Error("task handler failed", "subject", subject, "error", err)
			}
		}(s.handler)
	}
	return nil
}

// Subscribe registers a handler for subject. The returned function cancels
// the subscription.
func (q *Queue) Subscribe(_ context.Context, subject string, handler taskqueue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	id := q.nextID
	q.subs[subject] = append(q.subs[subject], subscription{id: id, handler: handler})

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		subs := q.subs[subject]
		for i, s := range subs {
			if s.id == id {
				q.subs[subject] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}, nil
}

// Drain waits for in-flight handlers to finish and stops accepting tasks.
func (q *Queue) Drain() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

// Close stops accepting tasks immediately.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
