package memqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	ctx := context.Background()
	q := New()

	var count atomic.Int64
	_, err := q.Subscribe(ctx, "invalidation.entity", func(_ context.Context, _ string, _ []byte) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := q.Publish(ctx, "invalidation.entity", []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Publish(ctx, "invalidation.entitytype", []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := count.Load(); got != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", got)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	q := New()

	var count atomic.Int64
	cancel, err := q.Subscribe(ctx, "s", func(_ context.Context, _ string, _ []byte) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	if err := q.Publish(ctx, "s", nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if count.Load() != 0 {
		t.Fatal("cancelled subscription still received tasks")
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	ctx := context.Background()
	q := New()

	var count atomic.Int64
	if _, err := q.Subscribe(ctx, "s", func(_ context.Context, _ string, _ []byte) error {
		count.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(ctx, "s", nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if count.Load() != 0 {
		t.Fatal("closed queue must drop tasks")
	}
}
