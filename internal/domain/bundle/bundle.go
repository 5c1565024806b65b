// Package bundle defines materialized views: audience-scoped bundles of
// projected entities and the per-scope manifests that catalog them.
// Bundles and manifests are disposable caches rebuilt from authoritative
// entity state, never sources of truth.
package bundle

import (
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain/entity"
)

// Entry is one entity's projection inside a bundle: identity, lifecycle
// metadata, and only the data fields visible to the bundle's audience.
type Entry struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID *uuid.UUID     `json:"organization_id,omitempty"`
	Version        int            `json:"version"`
	Status         entity.Status  `json:"status"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Data           map[string]any `json:"data"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Bundle is the materialized view for one (audience scope, entity type)
// pair. Version is a monotonic timestamp taken at generation time.
type Bundle struct {
	TypeID      uuid.UUID `json:"type_id"`
	TypeName    string    `json:"type_name"`
	GeneratedAt time.Time `json:"generated_at"`
	Version     int64     `json:"version"`
	EntityCount int       `json:"entity_count"`
	Entities    []Entry   `json:"entities"`
}

// New stamps a bundle around the given entries.
func New(typeID uuid.UUID, typeName string, entries []Entry, now time.Time) *Bundle {
	if entries == nil {
		entries = []Entry{}
	}
	return &Bundle{
		TypeID:      typeID,
		TypeName:    typeName,
		GeneratedAt: now,
		Version:     now.UnixMilli(),
		EntityCount: len(entries),
		Entities:    entries,
	}
}

// ManifestEntry summarizes one entity type's bundle inside a manifest.
type ManifestEntry struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	EntityCount   int       `json:"entity_count"`
	BundleVersion int64     `json:"bundle_version"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Manifest is the per-scope catalog of entity types. It summarizes bundle
// metadata and never duplicates entity content.
type Manifest struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Version     int64           `json:"version"`
	EntityTypes []ManifestEntry `json:"entity_types"`
}

// NewManifest stamps a manifest around the given entries.
func NewManifest(entries []ManifestEntry, now time.Time) *Manifest {
	if entries == nil {
		entries = []ManifestEntry{}
	}
	return &Manifest{
		GeneratedAt: now,
		Version:     now.UnixMilli(),
		EntityTypes: entries,
	}
}
