// Package ristretto backs the cache port with dgraph-io/ristretto. It
// holds the hot in-process copies of entity-type definitions and
// membership keys in front of the shared tier.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache adapts a ristretto instance to the cache port. Cost is the
// byte length of each stored value.
type Cache struct {
	rc *ristretto.Cache[string, []byte]
}

// New sizes a ristretto cache to hold at most maxCostBytes of values.
func New(maxCostBytes int64) (*Cache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{rc: rc}, nil
}

func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.rc.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set admits value with ttl. Ristretto may reject the admission under
// cost pressure, which is fine for a read-through cache.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.rc.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.rc.Del(key)
	return nil
}

// Clear drops every cached value.
func (c *Cache) Clear(_ context.Context) error {
	c.rc.Clear()
	return nil
}
