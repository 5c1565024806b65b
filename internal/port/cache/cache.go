// Package cache defines the port interface for in-process caching of
// configuration-derived values (membership keys, entity type definitions).
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Clear drops every cached value. Used when configuration is
	// explicitly invalidated.
	Clear(ctx context.Context) error
}
