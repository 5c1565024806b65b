package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/canopyhq/canopy/internal/domain/membership"
	"github.com/canopyhq/canopy/internal/port/cache"
)

const membershipCacheKey = "membership:keys"

// KeyLoader supplies the configured membership keys. Injected so the
// configuration mechanism stays outside this package.
type KeyLoader func(ctx context.Context) ([]membership.Key, error)

// MembershipService is the process-scoped cache of the membership key
// lattice: an explicit object with Get and Invalidate, never module-level
// state.
type MembershipService struct {
	loader KeyLoader
	cache  cache.Cache

	mu     sync.Mutex
	loaded *membership.Keys
}

// NewMembershipService creates the cache around an injected loader. c may
// be nil; the in-struct copy then acts alone.
func NewMembershipService(loader KeyLoader, c cache.Cache) *MembershipService {
	return &MembershipService{loader: loader, cache: c}
}

// Get returns the key lattice, loading it on first use.
func (s *MembershipService) Get(ctx context.Context) (*membership.Keys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded != nil {
		return s.loaded, nil
	}

	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, membershipCacheKey); err == nil && ok {
			var configured []membership.Key
			if err := json.Unmarshal(data, &configured); err == nil {
				s.loaded = membership.NewKeys(configured)
				return s.loaded, nil
			}
		}
	}

	configured, err := s.loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("load membership keys: %w", err)
	}
	if s.cache != nil {
		if data, err := json.Marshal(configured); err == nil {
			_ = s.cache.Set(ctx, membershipCacheKey, data, time.Hour)
		}
	}
	s.loaded = membership.NewKeys(configured)
	return s.loaded, nil
}

// Invalidate drops the cached lattice; the next Get reloads through the
// injected loader.
func (s *MembershipService) Invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = nil
	if s.cache != nil {
		_ = s.cache.Delete(ctx, membershipCacheKey)
	}
}
