package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/adapter/memblob"
	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/domain/entity"
	"github.com/canopyhq/canopy/internal/domain/entitytype"
)

func newTestEntityStore(t *testing.T) (*EntityStore, *memblob.Store, *mockScheduler, *entitytype.EntityType) {
	t.Helper()
	store := memblob.New()
	sched := &mockScheduler{}
	gate := NewGate(store, sched, slog.Default())
	types := NewTypeService(gate, nil)
	slugs := NewSlugIndex(gate)
	es := NewEntityStore(gate, types, slugs, slog.Default())

	typ := &entitytype.EntityType{
		ID:         uuid.New(),
		Name:       "Article",
		PluralName: "Articles",
		Slug:       "articles",
		Fields: []entitytype.Field{
			{ID: "title", Name: "Title", Type: entitytype.FieldString, Required: true},
			{ID: "rating", Name: "Rating", Type: entitytype.FieldNumber},
		},
		DefaultVisibility: string(entity.VisibilityMembers),
		VisibleTo:         []string{"public", "basic"},
		IsActive:          true,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	if err := types.Save(context.Background(), adminCaps(), typ); err != nil {
		t.Fatalf("seed type: %v", err)
	}
	sched.changes = nil
	return es, store, sched, typ
}

func createTestEntity(t *testing.T, es *EntityStore, typ *entitytype.EntityType, orgID *uuid.UUID) *entity.Entity {
	t.Helper()
	e, err := es.Create(context.Background(), adminCaps(), entity.CreateRequest{
		EntityTypeID:   typ.ID,
		OrganizationID: orgID,
		Name:           "First Article",
		Slug:           "first-article",
		Data:           map[string]any{"title": "First"},
		CreatedBy:      "author@example.com",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return e
}

func TestCreateWritesVersionStubLatestAndIndex(t *testing.T) {
	ctx := context.Background()
	es, store, sched, typ := newTestEntityStore(t)
	orgID := uuid.New()

	e := createTestEntity(t, es, typ, &orgID)

	if e.Version != 1 || e.Status != entity.StatusDraft {
		t.Fatalf("want draft v1, got %s v%d", e.Status, e.Version)
	}
	if e.Visibility != entity.VisibilityMembers {
		t.Fatalf("default visibility not applied: %s", e.Visibility)
	}

	for _, path := range []string{
		entityVersionPath(entity.ScopeOrg, &orgID, e.ID, 1),
		entityLatestPath(entity.ScopeOrg, &orgID, e.ID),
		stubPath(e.ID),
		slugIndexPath(&orgID, typ.Slug, "first-article"),
	} {
		if _, err := store.Get(ctx, path); err != nil {
			t.Errorf("missing %s: %v", path, err)
		}
	}

	var sawEntityChange bool
	for _, c := range sched.changes {
		if c.Kind == ChangeEntity && c.EntityID == e.ID.String() {
			sawEntityChange = true
		}
	}
	if !sawEntityChange {
		t.Error("latest pointer write did not schedule invalidation")
	}
}

func TestCreateRejectsDuplicateSlug(t *testing.T) {
	ctx := context.Background()
	es, _, _, typ := newTestEntityStore(t)
	orgID := uuid.New()
	createTestEntity(t, es, typ, &orgID)

	_, err := es.Create(ctx, adminCaps(), entity.CreateRequest{
		EntityTypeID:   typ.ID,
		OrganizationID: &orgID,
		Name:           "Second",
		Slug:           "first-article",
		Data:           map[string]any{"title": "Second"},
		CreatedBy:      "author@example.com",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestCreateValidatesAgainstType(t *testing.T) {
	ctx := context.Background()
	es, _, _, typ := newTestEntityStore(t)

	_, err := es.Create(ctx, adminCaps(), entity.CreateRequest{
		EntityTypeID: typ.ID,
		Name:         "Bad",
		Slug:         "bad",
		Data:         map[string]any{"rating": "not a number"},
		CreatedBy:    "author@example.com",
	})
	if !domain.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestUpdateCreatesNewVersion(t *testing.T) {
	ctx := context.Background()
	es, store, _, typ := newTestEntityStore(t)
	orgID := uuid.New()
	e := createTestEntity(t, es, typ, &orgID)

	updated, err := es.Update(ctx, adminCaps(), e.ID, entity.UpdateRequest{
		Data:      map[string]any{"title": "Revised"},
		UpdatedBy: "editor@example.com",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("want v2, got v%d", updated.Version)
	}
	if updated.Data["title"] != "Revised" {
		t.Fatalf("data not replaced: %v", updated.Data)
	}

	// v1 must still exist untouched
	if _, err := store.Get(ctx, entityVersionPath(entity.ScopeOrg, &orgID, e.ID, 1)); err != nil {
		t.Fatalf("v1 blob gone: %v", err)
	}

	got, err := es.ReadLatest(ctx, adminCaps(), e.ID)
	if err != nil {
		t.Fatalf("read latest: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("latest resolves to v%d", got.Version)
	}
}

func TestUpdateRejectsNonDraft(t *testing.T) {
	ctx := context.Background()
	es, _, _, typ := newTestEntityStore(t)
	orgID := uuid.New()
	e := createTestEntity(t, es, typ, &orgID)

	if _, err := es.Transition(ctx, adminCaps(), e.ID, entity.TransitionRequest{
		Action: entity.ActionSubmitForApproval, ActedBy: "author@example.com",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err := es.Update(ctx, adminCaps(), e.ID, entity.UpdateRequest{
		Data: map[string]any{"title": "Late edit"}, UpdatedBy: "author@example.com",
	})
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("want ErrInvalidStatus, got %v", err)
	}
}

func TestUpdateSlugChangeMovesIndexEntry(t *testing.T) {
	ctx := context.Background()
	es, store, _, typ := newTestEntityStore(t)
	orgID := uuid.New()
	e := createTestEntity(t, es, typ, &orgID)

	if _, err := es.Update(ctx, adminCaps(), e.ID, entity.UpdateRequest{
		Slug: "renamed-article", UpdatedBy: "editor@example.com",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := store.Get(ctx, slugIndexPath(&orgID, typ.Slug, "renamed-article")); err != nil {
		t.Errorf("new index entry missing: %v", err)
	}
	if _, err := store.Get(ctx, slugIndexPath(&orgID, typ.Slug, "first-article")); err == nil {
		t.Error("stale index entry not removed")
	}
}

func TestTransitionInvalidActionListsLegalOnes(t *testing.T) {
	ctx := context.Background()
	es, _, _, typ := newTestEntityStore(t)
	orgID := uuid.New()
	e := createTestEntity(t, es, typ, &orgID)

	_, err := es.Transition(ctx, adminCaps(), e.ID, entity.TransitionRequest{
		Action: entity.ActionApprove, ActedBy: "admin@example.com",
	})
	var terr *domain.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("want TransitionError, got %v", err)
	}
}

func TestApproveRequiresElevatedCapability(t *testing.T) {
	ctx := context.Background()
	es, _, _, typ := newTestEntityStore(t)
	orgID := uuid.New()
	e := createTestEntity(t, es, typ, &orgID)

	if _, err := es.Transition(ctx, adminCaps(), e.ID, entity.TransitionRequest{
		Action: entity.ActionSubmitForApproval, ActedBy: "author@example.com",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	member := capability.NewSet(capability.RoleMember, &orgID, "basic", "member-1")
	_, err := es.Transition(ctx, member, e.ID, entity.TransitionRequest{
		Action: entity.ActionApprove, ActedBy: "member-1",
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestApproveStampsFeedbackAndMovesScope(t *testing.T) {
	ctx := context.Background()
	es, store, _, typ := newTestEntityStore(t)
	orgID := uuid.New()

	e, err := es.Create(ctx, adminCaps(), entity.CreateRequest{
		EntityTypeID:   typ.ID,
		OrganizationID: &orgID,
		Name:           "Public Article",
		Slug:           "public-article",
		Visibility:     entity.VisibilityPublic,
		Data:           map[string]any{"title": "Public"},
		CreatedBy:      "author@example.com",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := es.Transition(ctx, adminCaps(), e.ID, entity.TransitionRequest{
		Action: entity.ActionSubmitForApproval, ActedBy: "author@example.com",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	approved, err := es.Transition(ctx, adminCaps(), e.ID, entity.TransitionRequest{
		Action: entity.ActionApprove, Feedback: "looks good", ActedBy: "admin@example.com",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != entity.StatusPublished {
		t.Fatalf("want published, got %s", approved.Status)
	}
	if approved.ApprovalFeedback != "looks good" || approved.ApprovalActionAt == nil {
		t.Error("approval fields not stamped")
	}

	// published public content lives under the public scope now
	if _, err := store.Get(ctx, entityLatestPath(entity.ScopePublic, &orgID, e.ID)); err != nil {
		t.Fatalf("public latest missing: %v", err)
	}
	if _, err := store.Get(ctx, entityLatestPath(entity.ScopeOrg, &orgID, e.ID)); err == nil {
		t.Error("org latest pointer not retired after scope move")
	}

	got, err := es.ReadLatest(ctx, nil, e.ID)
	if err != nil {
		t.Fatalf("anonymous read of published public entity: %v", err)
	}
	if got.Version != approved.Version {
		t.Fatalf("latest resolves to v%d, want v%d", got.Version, approved.Version)
	}
}

func TestReadVersionProbesHistoricalScopes(t *testing.T) {
	ctx := context.Background()
	es, _, _, typ := newTestEntityStore(t)
	orgID := uuid.New()

	e, err := es.Create(ctx, adminCaps(), entity.CreateRequest{
		EntityTypeID:   typ.ID,
		OrganizationID: &orgID,
		Name:           "Mover",
		Slug:           "mover",
		Visibility:     entity.VisibilityPublic,
		Data:           map[string]any{"title": "Mover"},
		CreatedBy:      "author@example.com",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := es.Transition(ctx, adminCaps(), e.ID, entity.TransitionRequest{
		Action: entity.ActionSubmitForApproval, ActedBy: "author@example.com",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := es.Transition(ctx, adminCaps(), e.ID, entity.TransitionRequest{
		Action: entity.ActionApprove, ActedBy: "admin@example.com",
	}); err != nil {
		t.Fatal(err)
	}

	// v1 and v2 were written under the org scope before the move
	v1, err := es.ReadVersion(ctx, adminCaps(), e.ID, 1)
	if err != nil {
		t.Fatalf("read v1: %v", err)
	}
	if v1.Status != entity.StatusDraft {
		t.Fatalf("v1 status %s", v1.Status)
	}
	v3, err := es.ReadVersion(ctx, adminCaps(), e.ID, 3)
	if err != nil {
		t.Fatalf("read v3: %v", err)
	}
	if v3.Status != entity.StatusPublished {
		t.Fatalf("v3 status %s", v3.Status)
	}
}

func TestSuperDeletePurgesEverythingAndSchedules(t *testing.T) {
	ctx := context.Background()
	es, store, sched, typ := newTestEntityStore(t)
	orgID := uuid.New()
	e := createTestEntity(t, es, typ, &orgID)
	sched.changes = nil

	if err := es.SuperDelete(ctx, adminCaps(), e.ID); err != nil {
		t.Fatalf("super delete: %v", err)
	}

	for _, path := range []string{
		entityVersionPath(entity.ScopeOrg, &orgID, e.ID, 1),
		entityLatestPath(entity.ScopeOrg, &orgID, e.ID),
		stubPath(e.ID),
		slugIndexPath(&orgID, typ.Slug, "first-article"),
	} {
		if _, err := store.Get(ctx, path); err == nil {
			t.Errorf("%s survived purge", path)
		}
	}

	if len(sched.changes) != 1 {
		t.Fatalf("want 1 scheduled change, got %d", len(sched.changes))
	}
	c := sched.changes[0]
	if c.Kind != ChangeEntity || c.EntityID != e.ID.String() || c.TypeID != typ.ID.String() {
		t.Fatalf("unexpected change %+v", c)
	}
}

func TestReadLatestUnknownEntity(t *testing.T) {
	es, _, _, _ := newTestEntityStore(t)
	_, err := es.ReadLatest(context.Background(), adminCaps(), uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
