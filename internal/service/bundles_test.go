package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/adapter/memblob"
	"github.com/canopyhq/canopy/internal/domain/bundle"
	"github.com/canopyhq/canopy/internal/domain/entity"
	"github.com/canopyhq/canopy/internal/domain/entitytype"
	"github.com/canopyhq/canopy/internal/domain/membership"
	"github.com/canopyhq/canopy/internal/domain/organization"
)

type materializerFixture struct {
	store    *memblob.Store
	gate     *Gate
	entities *EntityStore
	types    *TypeService
	orgs     *OrgService
	mat      *Materializer
	typ      *entitytype.EntityType
}

func testKeys(ctx context.Context) ([]membership.Key, error) {
	return []membership.Key{
		{ID: "public", Name: "Public", Order: 0},
		{ID: "platform", Name: "Platform", Order: 1},
		{ID: "basic", Name: "Basic", Order: 2},
		{ID: "premium", Name: "Premium", Order: 3},
	}, nil
}

func newMaterializerFixture(t *testing.T) *materializerFixture {
	t.Helper()
	store := memblob.New()
	gate := NewGate(store, &mockScheduler{}, slog.Default())
	types := NewTypeService(gate, nil)
	slugs := NewSlugIndex(gate)
	entities := NewEntityStore(gate, types, slugs, slog.Default())
	orgs := NewOrgService(gate)
	keys := NewMembershipService(testKeys, nil)
	mat := NewMaterializer(gate, entities, types, orgs, keys, nil, slog.Default())

	typ := &entitytype.EntityType{
		ID:         uuid.New(),
		Name:       "Guide",
		PluralName: "Guides",
		Slug:       "guides",
		Fields: []entitytype.Field{
			{ID: "summary", Name: "Summary", Type: entitytype.FieldString},
			{ID: "secret", Name: "Secret", Type: entitytype.FieldString},
		},
		DefaultVisibility: string(entity.VisibilityPublic),
		VisibleTo:         []string{"public", "basic"},
		FieldVisibility:   map[string][]string{"secret": {"premium"}},
		IsActive:          true,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	if err := types.Save(context.Background(), adminCaps(), typ); err != nil {
		t.Fatalf("seed type: %v", err)
	}
	return &materializerFixture{store: store, gate: gate, entities: entities, types: types, orgs: orgs, mat: mat, typ: typ}
}

// publish creates an entity and walks it to published.
func (f *materializerFixture) publish(t *testing.T, orgID *uuid.UUID, slug string, vis entity.Visibility, data map[string]any) *entity.Entity {
	t.Helper()
	ctx := context.Background()
	e, err := f.entities.Create(ctx, adminCaps(), entity.CreateRequest{
		EntityTypeID:   f.typ.ID,
		OrganizationID: orgID,
		Name:           slug,
		Slug:           slug,
		Visibility:     vis,
		Data:           data,
		CreatedBy:      "author@example.com",
	})
	if err != nil {
		t.Fatalf("create %s: %v", slug, err)
	}
	for _, action := range []entity.Action{entity.ActionSubmitForApproval, entity.ActionApprove} {
		if e, err = f.entities.Transition(ctx, adminCaps(), e.ID, entity.TransitionRequest{
			Action: action, ActedBy: "admin@example.com",
		}); err != nil {
			t.Fatalf("%s %s: %v", action, slug, err)
		}
	}
	return e
}

func (f *materializerFixture) readBundle(t *testing.T, path string) *bundle.Bundle {
	t.Helper()
	var b bundle.Bundle
	if err := f.gate.ReadJSON(context.Background(), path, adminCaps(), &b, nil); err != nil {
		t.Fatalf("read bundle %s: %v", path, err)
	}
	return &b
}

func TestGlobalBundlesRespectKeyLattice(t *testing.T) {
	ctx := context.Background()
	f := newMaterializerFixture(t)
	orgID := uuid.New()

	pub := f.publish(t, nil, "open-guide", entity.VisibilityPublic, map[string]any{"summary": "open", "secret": "s1"})
	plat := f.publish(t, nil, "platform-guide", entity.VisibilityPlatform, map[string]any{"summary": "internal"})
	f.publish(t, &orgID, "org-guide", entity.VisibilityMembers, map[string]any{"summary": "org only"})

	if err := f.mat.RegenerateGlobalBundles(ctx, f.typ.ID); err != nil {
		t.Fatalf("regenerate: %v", err)
	}

	pubBundle := f.readBundle(t, globalBundlePath("public", f.typ.ID))
	if pubBundle.EntityCount != 1 || pubBundle.Entities[0].ID != pub.ID {
		t.Fatalf("public bundle should hold only the public entity: %+v", pubBundle)
	}

	basicBundle := f.readBundle(t, globalBundlePath("basic", f.typ.ID))
	if basicBundle.EntityCount != 2 {
		t.Fatalf("basic key admits public and platform content, got %d entries", basicBundle.EntityCount)
	}
	for _, entry := range basicBundle.Entities {
		if entry.ID != pub.ID && entry.ID != plat.ID {
			t.Fatalf("unexpected entry %s in basic bundle", entry.ID)
		}
		if _, ok := entry.Data["secret"]; ok {
			t.Error("restricted field leaked into basic bundle")
		}
	}
}

func TestGlobalBundlesOmitKeysOutsideVisibleTo(t *testing.T) {
	ctx := context.Background()
	f := newMaterializerFixture(t)
	f.publish(t, nil, "open-guide", entity.VisibilityPublic, map[string]any{"summary": "open", "secret": "s1"})

	if err := f.mat.RegenerateGlobalBundles(ctx, f.typ.ID); err != nil {
		t.Fatalf("regenerate: %v", err)
	}

	// premium holds a field-level grant on "secret" but sits outside the
	// type's VisibleTo, so no bundle may exist for it
	if ok, _ := f.gate.FileExists(ctx, globalBundlePath("premium", f.typ.ID), adminCaps(), nil); ok {
		t.Error("bundle written for a key outside the type's visibility list")
	}
	if ok, _ := f.gate.FileExists(ctx, globalBundlePath("platform", f.typ.ID), adminCaps(), nil); ok {
		t.Error("bundle written for a key the type is invisible to")
	}

	// the field grant still shapes projection for keys inside VisibleTo
	b := f.readBundle(t, globalBundlePath("basic", f.typ.ID))
	if b.EntityCount != 1 {
		t.Fatalf("basic bundle entries: %d", b.EntityCount)
	}
	if _, ok := b.Entities[0].Data["secret"]; ok {
		t.Error("field restricted to premium leaked into basic bundle")
	}
}

func TestGlobalBundleRegenerationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newMaterializerFixture(t)
	f.publish(t, nil, "open-guide", entity.VisibilityPublic, map[string]any{"summary": "open"})
	f.publish(t, nil, "second-guide", entity.VisibilityPublic, map[string]any{"summary": "more"})

	if err := f.mat.RegenerateGlobalBundles(ctx, f.typ.ID); err != nil {
		t.Fatal(err)
	}
	first := f.readBundle(t, globalBundlePath("public", f.typ.ID))

	if err := f.mat.RegenerateGlobalBundles(ctx, f.typ.ID); err != nil {
		t.Fatal(err)
	}
	second := f.readBundle(t, globalBundlePath("public", f.typ.ID))

	if first.EntityCount != second.EntityCount {
		t.Fatalf("entity count drifted across runs: %d then %d", first.EntityCount, second.EntityCount)
	}
	for i := range first.Entities {
		if first.Entities[i].ID != second.Entities[i].ID {
			t.Fatalf("entry %d changed identity: %s then %s", i, first.Entities[i].ID, second.Entities[i].ID)
		}
	}
}

func TestInactiveTypeBundlesRemoved(t *testing.T) {
	ctx := context.Background()
	f := newMaterializerFixture(t)
	f.publish(t, nil, "open-guide", entity.VisibilityPublic, map[string]any{"summary": "open"})

	if err := f.mat.RegenerateGlobalBundles(ctx, f.typ.ID); err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.gate.FileExists(ctx, globalBundlePath("public", f.typ.ID), adminCaps(), nil); !ok {
		t.Fatal("bundle missing before deactivation")
	}

	f.typ.IsActive = false
	if err := f.types.Save(ctx, adminCaps(), f.typ); err != nil {
		t.Fatal(err)
	}
	if err := f.mat.RegenerateGlobalBundles(ctx, f.typ.ID); err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.gate.FileExists(ctx, globalBundlePath("public", f.typ.ID), adminCaps(), nil); ok {
		t.Error("inactive type's bundle survived regeneration")
	}
}

func TestOrgBundlesSplitByLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newMaterializerFixture(t)
	orgID := uuid.New()

	if err := f.orgs.SavePermissions(ctx, adminCaps(), &organization.TypePermissions{
		OrganizationID: orgID,
		Viewable:       []uuid.UUID{f.typ.ID},
	}); err != nil {
		t.Fatal(err)
	}

	published := f.publish(t, &orgID, "done-guide", entity.VisibilityMembers, map[string]any{"summary": "done", "secret": "s"})
	draft, err := f.entities.Create(ctx, adminCaps(), entity.CreateRequest{
		EntityTypeID:   f.typ.ID,
		OrganizationID: &orgID,
		Name:           "wip-guide",
		Slug:           "wip-guide",
		Visibility:     entity.VisibilityMembers,
		Data:           map[string]any{"summary": "wip"},
		CreatedBy:      "author@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.mat.RegenerateOrgBundles(ctx, orgID, f.typ.ID); err != nil {
		t.Fatalf("regenerate: %v", err)
	}

	member := f.readBundle(t, orgBundlePath(orgID, AreaMember, f.typ.ID))
	if member.EntityCount != 1 || member.Entities[0].ID != published.ID {
		t.Fatalf("member bundle should hold published content only: %+v", member)
	}
	if member.Entities[0].Data["secret"] != "s" {
		t.Error("org bundles carry full field data")
	}

	admin := f.readBundle(t, orgBundlePath(orgID, AreaAdmin, f.typ.ID))
	if admin.EntityCount != 2 {
		t.Fatalf("admin bundle entries: %d", admin.EntityCount)
	}
	seenDraft := false
	for _, entry := range admin.Entities {
		if entry.ID == draft.ID && entry.Status == entity.StatusDraft {
			seenDraft = true
		}
	}
	if !seenDraft {
		t.Error("draft missing from admin bundle")
	}
}

func TestOrgBundlesRemovedWithoutViewGrant(t *testing.T) {
	ctx := context.Background()
	f := newMaterializerFixture(t)
	orgID := uuid.New()

	if err := f.orgs.SavePermissions(ctx, adminCaps(), &organization.TypePermissions{
		OrganizationID: orgID,
		Viewable:       []uuid.UUID{f.typ.ID},
	}); err != nil {
		t.Fatal(err)
	}
	f.publish(t, &orgID, "done-guide", entity.VisibilityMembers, map[string]any{"summary": "done"})
	if err := f.mat.RegenerateOrgBundles(ctx, orgID, f.typ.ID); err != nil {
		t.Fatal(err)
	}

	if err := f.orgs.SavePermissions(ctx, adminCaps(), &organization.TypePermissions{
		OrganizationID: orgID,
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.mat.RegenerateOrgBundles(ctx, orgID, f.typ.ID); err != nil {
		t.Fatal(err)
	}

	for _, area := range []OrgArea{AreaMember, AreaAdmin} {
		if ok, _ := f.gate.FileExists(ctx, orgBundlePath(orgID, area, f.typ.ID), adminCaps(), nil); ok {
			t.Errorf("%s bundle survived permission revocation", area)
		}
	}
}
