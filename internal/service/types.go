package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/domain/entitytype"
	"github.com/canopyhq/canopy/internal/port/cache"
)

const typeCacheTTL = 5 * time.Minute

// TypeService reads and writes entity type definitions. Reads are cached:
// definitions change rarely and every entity write consults one.
type TypeService struct {
	gate  *Gate
	cache cache.Cache
}

// NewTypeService creates a TypeService. cache may be nil to disable
// caching (tests).
func NewTypeService(gate *Gate, c cache.Cache) *TypeService {
	return &TypeService{gate: gate, cache: c}
}

// Get returns the type definition, from cache when possible.
func (s *TypeService) Get(ctx context.Context, caps capability.Capability, typeID uuid.UUID) (*entitytype.EntityType, error) {
	key := "enttype:" + typeID.String()
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var t entitytype.EntityType
			if err := json.Unmarshal(data, &t); err == nil {
				return &t, nil
			}
		}
	}

	var t entitytype.EntityType
	if err := s.gate.ReadJSON(ctx, entityTypePath(typeID), caps, &t, nil); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(&t); err == nil {
			_ = s.cache.Set(ctx, key, data, typeCacheTTL)
		}
	}
	return &t, nil
}

// GetActive returns the type definition and fails with ErrNotFound when
// the type is inactive. Entity writes use this so retired types stop
// accepting content without their definitions disappearing.
func (s *TypeService) GetActive(ctx context.Context, caps capability.Capability, typeID uuid.UUID) (*entitytype.EntityType, error) {
	t, err := s.Get(ctx, caps, typeID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, fmt.Errorf("entity type %s is inactive: %w", typeID, domain.ErrNotFound)
	}
	return t, nil
}

// Save writes the type definition and drops the cached copy. The gate
// schedules manifest regeneration for the write.
func (s *TypeService) Save(ctx context.Context, caps capability.Capability, t *entitytype.EntityType) error {
	if t.ID == (uuid.UUID{}) {
		return fmt.Errorf("entity type id is required")
	}
	if verr := validateTypeDefinition(t); verr != nil {
		return verr
	}
	t.UpdatedAt = time.Now().UTC()
	if err := s.gate.WriteJSON(ctx, entityTypePath(t.ID), caps, t, nil); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "enttype:"+t.ID.String())
	}
	return nil
}

// List returns every stored type definition.
func (s *TypeService) List(ctx context.Context, caps capability.Capability) ([]entitytype.EntityType, error) {
	objects, err := s.gate.ListFiles(ctx, rootEntityTypes, caps, nil)
	if err != nil {
		return nil, err
	}
	out := make([]entitytype.EntityType, 0, len(objects))
	for _, o := range objects {
		var t entitytype.EntityType
		if err := s.gate.ReadJSON(ctx, o.Key, caps, &t, nil); err != nil {
			// a listed key may already be gone
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// validateTypeDefinition rejects structurally broken definitions before
// they can poison entity validation.
func validateTypeDefinition(t *entitytype.EntityType) error {
	verr := &domain.ValidationError{}
	if t.Name == "" {
		verr.Add("name", "required")
	}
	if t.Slug == "" {
		verr.Add("slug", "required")
	}
	seen := make(map[string]bool, len(t.Fields))
	for i, f := range t.Fields {
		if f.ID == "" {
			verr.Add(fmt.Sprintf("fields[%d].id", i), "required")
			continue
		}
		if seen[f.ID] {
			verr.Add(fmt.Sprintf("fields[%d].id", i), "duplicate field id "+f.ID)
		}
		seen[f.ID] = true
	}
	for fieldID := range t.FieldVisibility {
		if !seen[fieldID] {
			verr.Add("field_visibility."+fieldID, "references an unknown field")
		}
	}
	if verr.Empty() {
		return nil
	}
	return verr
}
