package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain"
)

// SlugIndexEntry is the uniqueness index record stored per
// (organization, type slug, entity slug) key.
type SlugIndexEntry struct {
	EntityID       uuid.UUID  `json:"entity_id"`
	Visibility     string     `json:"visibility"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	EntityTypeID   uuid.UUID  `json:"entity_type_id"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SlugIndex keeps slug uniqueness checks O(1) instead of scanning every
// entity of a type. Entries live under the internal stubs area; index
// writes are best-effort and ordered after the entity write they
// accompany, never atomically with it.
type SlugIndex struct {
	gate *Gate
}

// NewSlugIndex creates a slug index over the gate.
func NewSlugIndex(gate *Gate) *SlugIndex {
	return &SlugIndex{gate: gate}
}

// Upsert writes the index entry for the scope key.
func (s *SlugIndex) Upsert(ctx context.Context, orgID *uuid.UUID, typeSlug, entitySlug string, entry SlugIndexEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	path := slugIndexPath(orgID, typeSlug, entitySlug)
	if err := s.gate.WriteJSON(ctx, path, nil, entry, nil); err != nil {
		return fmt.Errorf("slug index upsert: %w", err)
	}
	return nil
}

// Read returns the index entry for the scope key.
func (s *SlugIndex) Read(ctx context.Context, orgID *uuid.UUID, typeSlug, entitySlug string) (*SlugIndexEntry, error) {
	var entry SlugIndexEntry
	path := slugIndexPath(orgID, typeSlug, entitySlug)
	if err := s.gate.ReadJSON(ctx, path, nil, &entry, nil); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete removes the index entry for the scope key. Missing entries are
// not an error.
func (s *SlugIndex) Delete(ctx context.Context, orgID *uuid.UUID, typeSlug, entitySlug string) error {
	path := slugIndexPath(orgID, typeSlug, entitySlug)
	if err := s.gate.DeleteFile(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("slug index delete: %w", err)
	}
	return nil
}

// Exists reports whether the scope key has a live entry.
func (s *SlugIndex) Exists(ctx context.Context, orgID *uuid.UUID, typeSlug, entitySlug string) (bool, error) {
	path := slugIndexPath(orgID, typeSlug, entitySlug)
	return s.gate.FileExists(ctx, path, nil, nil)
}

// CheckAvailable fails with ErrConflict when the slug is already taken in
// the scope by a different entity. Reassigning the same slug to the same
// entity is allowed.
func (s *SlugIndex) CheckAvailable(ctx context.Context, orgID *uuid.UUID, typeSlug, entitySlug string, entityID uuid.UUID) error {
	entry, err := s.Read(ctx, orgID, typeSlug, entitySlug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if entry.EntityID == entityID {
		return nil
	}
	return fmt.Errorf("slug %q already used in %s/%s: %w", entitySlug, slugScopeToken(orgID), typeSlug, domain.ErrConflict)
}
