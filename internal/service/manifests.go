package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/adapter/otel"
	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/bundle"
	"github.com/canopyhq/canopy/internal/domain/entitytype"
)

// RegenerateGlobalManifests rebuilds the per-audience-key site manifests.
// A manifest catalogs the types its audience can see and summarizes each
// type's bundle; it never carries entity content itself.
func (m *Materializer) RegenerateGlobalManifests(ctx context.Context) error {
	ctx, span := otel.StartRegenerationSpan(ctx, "manifests", "global", "")
	defer span.End()

	keys, err := m.keys.Get(ctx)
	if err != nil {
		return fmt.Errorf("membership keys: %w", err)
	}
	types, err := m.types.List(ctx, systemCaps())
	if err != nil {
		return fmt.Errorf("list types: %w", err)
	}

	now := time.Now().UTC()
	for _, key := range keys.All() {
		var entries []bundle.ManifestEntry
		for i := range types {
			typ := &types[i]
			if !typ.IsActive || !typ.VisibleToKey(key.ID) {
				continue
			}
			entries = append(entries, m.manifestEntry(ctx, typ, globalBundlePath(key.ID, typ.ID)))
		}
		if err := m.writeManifest(ctx, globalManifestPath(key.ID), entries, now); err != nil {
			return fmt.Errorf("manifest for key %s: %w", key.ID, err)
		}
	}
	return nil
}

// RegenerateOrgManifests rebuilds one organization's member and admin site
// manifests from its type permission grants. The member manifest lists
// viewable types; the admin manifest additionally lists editable ones.
func (m *Materializer) RegenerateOrgManifests(ctx context.Context, orgID uuid.UUID) error {
	ctx, span := otel.StartRegenerationSpan(ctx, "manifests", "org/"+orgID.String(), "")
	defer span.End()

	perms, err := m.orgs.GetPermissions(ctx, systemCaps(), orgID)
	if err != nil {
		return fmt.Errorf("org permissions: %w", err)
	}

	adminTypeIDs := make([]uuid.UUID, 0, len(perms.Viewable)+len(perms.Editable))
	adminTypeIDs = append(adminTypeIDs, perms.Viewable...)
	for _, id := range perms.Editable {
		seen := false
		for _, v := range perms.Viewable {
			if v == id {
				seen = true
				break
			}
		}
		if !seen {
			adminTypeIDs = append(adminTypeIDs, id)
		}
	}

	now := time.Now().UTC()
	for area, typeIDs := range map[OrgArea][]uuid.UUID{
		AreaMember: perms.Viewable,
		AreaAdmin:  adminTypeIDs,
	} {
		var entries []bundle.ManifestEntry
		for _, typeID := range typeIDs {
			typ, err := m.types.GetActive(ctx, systemCaps(), typeID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("entity type %s: %w", typeID, err)
			}
			entries = append(entries, m.manifestEntry(ctx, typ, orgBundlePath(orgID, area, typeID)))
		}
		if err := m.writeManifest(ctx, orgManifestPath(orgID, area), entries, now); err != nil {
			return fmt.Errorf("%s manifest: %w", area, err)
		}
	}
	return nil
}

// manifestEntry summarizes one type's bundle. A missing bundle yields a
// zero-count entry; the bundle regeneration that follows an invalidation
// fills it in on the next manifest pass.
func (m *Materializer) manifestEntry(ctx context.Context, typ *entitytype.EntityType, bundlePath string) bundle.ManifestEntry {
	entry := bundle.ManifestEntry{
		ID:          typ.ID,
		Name:        typ.Name,
		Slug:        typ.Slug,
		LastUpdated: typ.UpdatedAt,
	}
	var b bundle.Bundle
	if err := m.gate.ReadJSON(ctx, bundlePath, systemCaps(), &b, nil); err == nil {
		entry.EntityCount = b.EntityCount
		entry.BundleVersion = b.Version
		entry.LastUpdated = b.GeneratedAt
	}
	return entry
}

func (m *Materializer) writeManifest(ctx context.Context, path string, entries []bundle.ManifestEntry, now time.Time) error {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Slug < entries[j].Slug })
	manifest := bundle.NewManifest(entries, now)
	if err := m.gate.WriteJSON(ctx, path, systemCaps(), manifest, nil); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.ManifestsRegenerated.Add(ctx, 1)
	}
	return nil
}
