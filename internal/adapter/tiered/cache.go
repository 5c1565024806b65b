// Package tiered layers a process-local cache over a shared remote one.
// Canopy runs entity-type definitions and membership keys through it
// under the nats driver: ristretto answers hot reads, the JetStream KV
// level keeps replicas consistent after invalidations.
package tiered

import (
	"context"
	"time"

	"github.com/canopyhq/canopy/internal/port/cache"
)

// Cache reads through L1 then L2, backfilling L1 on an L2 hit. Writes
// and deletes touch both levels so a replica's invalidation reaches the
// shared tier.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New combines l1 and l2. l1Expire bounds the life of backfilled L1
// entries so replica-local copies age out even without an invalidation.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.l1Expire)
		return val, true, nil
	}
	return nil, false, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l2.Set(ctx, key, value, ttl)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.l2.Delete(ctx, key)
}

// Clear empties both levels.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.l1.Clear(ctx); err != nil {
		return err
	}
	return c.l2.Clear(ctx)
}
