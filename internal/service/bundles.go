package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/adapter/otel"
	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/bundle"
	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/domain/entity"
	"github.com/canopyhq/canopy/internal/domain/membership"
)

// systemCaps is the internal identity materializers and other trusted
// services act under. It is never derived from a request.
func systemCaps() *capability.Set {
	return capability.NewSet(capability.RoleAdmin, nil, "", "system")
}

// Materializer rebuilds bundles from authoritative entity state. Bundles
// are pure derived caches: a regeneration run always produces the full
// view for its scope, so a lost or stale bundle is repaired by the next
// run rather than patched incrementally.
type Materializer struct {
	gate     *Gate
	entities *EntityStore
	types    *TypeService
	orgs     *OrgService
	keys     *MembershipService
	metrics  *otel.Metrics
	log      *slog.Logger
}

// NewMaterializer creates a Materializer. metrics may be nil.
func NewMaterializer(gate *Gate, entities *EntityStore, types *TypeService, orgs *OrgService, keys *MembershipService, metrics *otel.Metrics, log *slog.Logger) *Materializer {
	if log == nil {
		log = slog.Default()
	}
	return &Materializer{
		gate:     gate,
		entities: entities,
		types:    types,
		orgs:     orgs,
		keys:     keys,
		metrics:  metrics,
		log:      log,
	}
}

// RegenerateGlobalBundles rebuilds the per-audience-key bundles for one
// entity type from public and platform scope content. Keys the type is
// invisible to get their bundle blob removed instead.
func (m *Materializer) RegenerateGlobalBundles(ctx context.Context, typeID uuid.UUID) error {
	ctx, span := otel.StartRegenerationSpan(ctx, "bundles", "global", typeID.String())
	defer span.End()

	keys, err := m.keys.Get(ctx)
	if err != nil {
		return fmt.Errorf("membership keys: %w", err)
	}

	typ, err := m.types.Get(ctx, systemCaps(), typeID)
	if errors.Is(err, domain.ErrNotFound) {
		return m.removeGlobalBundles(ctx, keys, typeID)
	}
	if err != nil {
		return fmt.Errorf("entity type %s: %w", typeID, err)
	}
	if !typ.IsActive {
		return m.removeGlobalBundles(ctx, keys, typeID)
	}

	entities, err := m.collectEntities(ctx, func(s *entity.Stub) bool {
		return s.EntityTypeID == typeID && (s.Scope == entity.ScopePublic || s.Scope == entity.ScopePlatform)
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, key := range keys.All() {
		if !typ.VisibleToKey(key.ID) {
			if err := m.deleteBundle(ctx, globalBundlePath(key.ID, typeID)); err != nil {
				return err
			}
			continue
		}
		entries := make([]bundle.Entry, 0, len(entities))
		for _, e := range entities {
			if e.Status != entity.StatusPublished {
				continue
			}
			if !keys.Admits(key.ID, visibilityKey(e)) {
				continue
			}
			entries = append(entries, bundle.EntryForKey(typ, e, key.ID))
		}
		sortEntries(entries)
		b := bundle.New(typeID, typ.Name, entries, now)
		if err := m.gate.WriteJSON(ctx, globalBundlePath(key.ID, typeID), systemCaps(), b, nil); err != nil {
			return fmt.Errorf("write bundle for key %s: %w", key.ID, err)
		}
		if m.metrics != nil {
			m.metrics.BundlesRegenerated.Add(ctx, 1)
		}
	}
	return nil
}

// RegenerateOrgBundles rebuilds one organization's member and admin
// bundles for one entity type. Organization bundles carry full field
// data: membership already scopes their audience. The member bundle holds
// published content only; the admin bundle holds every lifecycle status.
func (m *Materializer) RegenerateOrgBundles(ctx context.Context, orgID, typeID uuid.UUID) error {
	ctx, span := otel.StartRegenerationSpan(ctx, "bundles", "org/"+orgID.String(), typeID.String())
	defer span.End()

	typ, err := m.types.Get(ctx, systemCaps(), typeID)
	if errors.Is(err, domain.ErrNotFound) {
		return m.removeOrgBundles(ctx, orgID, typeID)
	}
	if err != nil {
		return fmt.Errorf("entity type %s: %w", typeID, err)
	}

	perms, err := m.orgs.GetPermissions(ctx, systemCaps(), orgID)
	if err != nil {
		return fmt.Errorf("org permissions: %w", err)
	}
	if !typ.IsActive || !perms.CanView(typeID) {
		return m.removeOrgBundles(ctx, orgID, typeID)
	}

	entities, err := m.collectEntities(ctx, func(s *entity.Stub) bool {
		return s.EntityTypeID == typeID && s.OrganizationID != nil && *s.OrganizationID == orgID
	})
	if err != nil {
		return err
	}

	var memberEntries, adminEntries []bundle.Entry
	for _, e := range entities {
		entry := bundle.EntryAllFields(e)
		adminEntries = append(adminEntries, entry)
		if e.Status == entity.StatusPublished {
			memberEntries = append(memberEntries, entry)
		}
	}
	sortEntries(memberEntries)
	sortEntries(adminEntries)

	now := time.Now().UTC()
	for area, entries := range map[OrgArea][]bundle.Entry{
		AreaMember: memberEntries,
		AreaAdmin:  adminEntries,
	} {
		b := bundle.New(typeID, typ.Name, entries, now)
		if err := m.gate.WriteJSON(ctx, orgBundlePath(orgID, area, typeID), systemCaps(), b, nil); err != nil {
			return fmt.Errorf("write %s bundle: %w", area, err)
		}
		if m.metrics != nil {
			m.metrics.BundlesRegenerated.Add(ctx, 1)
		}
	}
	return nil
}

// collectEntities scans every stub, keeps those the filter accepts, and
// resolves each to its latest version. Entities whose blobs are missing
// mid-scan are skipped: a partial write is repaired by the next run.
func (m *Materializer) collectEntities(ctx context.Context, keep func(*entity.Stub) bool) ([]*entity.Entity, error) {
	objects, err := m.gate.ListFiles(ctx, rootStubs, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list stubs: %w", err)
	}

	var out []*entity.Entity
	for _, o := range objects {
		if strings.HasPrefix(o.Key, rootSlugIndex) {
			continue
		}
		var stub entity.Stub
		if err := m.gate.ReadJSON(ctx, o.Key, nil, &stub, nil); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("read stub %s: %w", o.Key, err)
		}
		if !keep(&stub) {
			continue
		}
		e, err := m.entities.ReadLatest(ctx, systemCaps(), stub.EntityID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				m.log.Warn("stub without resolvable latest version skipped",
					"entity_id", stub.EntityID, "scope", string(stub.Scope))
				continue
			}
			return nil, fmt.Errorf("resolve entity %s: %w", stub.EntityID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Materializer) removeGlobalBundles(ctx context.Context, keys *membership.Keys, typeID uuid.UUID) error {
	for _, key := range keys.All() {
		if err := m.deleteBundle(ctx, globalBundlePath(key.ID, typeID)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) removeOrgBundles(ctx context.Context, orgID, typeID uuid.UUID) error {
	for _, area := range []OrgArea{AreaMember, AreaAdmin} {
		if err := m.deleteBundle(ctx, orgBundlePath(orgID, area, typeID)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) deleteBundle(ctx context.Context, path string) error {
	if err := m.gate.DeleteFile(ctx, path, systemCaps(), nil); err != nil {
		return fmt.Errorf("remove bundle %s: %w", path, err)
	}
	return nil
}

// visibilityKey maps an entity's visibility to the audience key its
// content requires.
func visibilityKey(e *entity.Entity) string {
	switch e.Visibility {
	case entity.VisibilityPublic:
		return membership.PublicKeyID
	default:
		return membership.PlatformKeyID
	}
}

func sortEntries(entries []bundle.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Slug != entries[j].Slug {
			return entries[i].Slug < entries[j].Slug
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
}
