package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/domain/entity"
)

// EntityStore is the versioned entity store: append-only version history
// per entity plus one mutable latest pointer, resolved through the stub.
//
// There is no locking. Concurrent writers race only on the latest pointer
// (last writer wins); version blobs are written under fresh version
// numbers and never overwritten, so no history is lost.
type EntityStore struct {
	gate  *Gate
	types *TypeService
	slugs *SlugIndex
	log   *slog.Logger
}

// NewEntityStore creates an EntityStore.
func NewEntityStore(gate *Gate, types *TypeService, slugs *SlugIndex, log *slog.Logger) *EntityStore {
	if log == nil {
		log = slog.Default()
	}
	return &EntityStore{gate: gate, types: types, slugs: slugs, log: log}
}

// Create validates and persists a new draft entity at version 1.
func (s *EntityStore) Create(ctx context.Context, caps capability.Capability, req entity.CreateRequest) (*entity.Entity, error) {
	typ, err := s.types.GetActive(ctx, caps, req.EntityTypeID)
	if err != nil {
		return nil, fmt.Errorf("entity type: %w", err)
	}
	if req.Name == "" || req.Slug == "" {
		verr := &domain.ValidationError{}
		if req.Name == "" {
			verr.Add("name", "required")
		}
		if req.Slug == "" {
			verr.Add("slug", "required")
		}
		return nil, verr
	}
	if err := typ.ValidateData(req.Data); err != nil {
		return nil, err
	}

	id := uuid.New()
	if err := s.slugs.CheckAvailable(ctx, req.OrganizationID, typ.Slug, req.Slug, id); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	visibility := req.Visibility
	if visibility == "" {
		visibility = entity.Visibility(typ.DefaultVisibility)
	}
	e := &entity.Entity{
		ID:             id,
		EntityTypeID:   req.EntityTypeID,
		OrganizationID: req.OrganizationID,
		Version:        1,
		Status:         entity.StatusDraft,
		Visibility:     visibility,
		Name:           req.Name,
		Slug:           req.Slug,
		Data:           req.Data,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      req.CreatedBy,
		UpdatedBy:      req.CreatedBy,
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}

	scope := e.CurrentScope()
	stub := entity.Stub{
		EntityID:       id,
		OrganizationID: req.OrganizationID,
		EntityTypeID:   req.EntityTypeID,
		Scope:          scope,
		CreatedAt:      now,
	}

	// order matters: version blob, stub, then the latest pointer whose
	// write triggers invalidation, then the best-effort slug index
	if err := s.gate.WriteJSON(ctx, entityVersionPath(scope, e.OrganizationID, id, 1), caps, e, nil); err != nil {
		return nil, err
	}
	if err := s.gate.WriteJSON(ctx, stubPath(id), nil, stub, nil); err != nil {
		return nil, err
	}
	if err := s.writeLatest(ctx, caps, scope, e); err != nil {
		return nil, err
	}
	if err := s.slugs.Upsert(ctx, req.OrganizationID, typ.Slug, req.Slug, SlugIndexEntry{
		EntityID:       id,
		Visibility:     string(visibility),
		OrganizationID: req.OrganizationID,
		EntityTypeID:   req.EntityTypeID,
	}); err != nil {
		s.log.Error("slug index write failed after entity create", "entity_id", id, "error", err)
	}
	return e, nil
}

// Update writes a new version of a draft entity. Editing any other status
// fails with ErrInvalidStatus.
func (s *EntityStore) Update(ctx context.Context, caps capability.Capability, entityID uuid.UUID, req entity.UpdateRequest) (*entity.Entity, error) {
	cur, stub, err := s.readLatestWithStub(ctx, caps, entityID)
	if err != nil {
		return nil, err
	}
	if cur.Status != entity.StatusDraft {
		return nil, fmt.Errorf("entity %s has status %s: %w", entityID, cur.Status, domain.ErrInvalidStatus)
	}

	typ, err := s.types.GetActive(ctx, caps, cur.EntityTypeID)
	if err != nil {
		return nil, fmt.Errorf("entity type: %w", err)
	}

	next := cur.NextVersion(req.UpdatedBy, time.Now().UTC())
	if req.Name != "" {
		next.Name = req.Name
	}
	if req.Visibility != "" {
		next.Visibility = req.Visibility
	}
	if req.Data != nil {
		next.Data = req.Data
	}
	oldSlug := cur.Slug
	if req.Slug != "" {
		next.Slug = req.Slug
	}

	if err := typ.ValidateData(next.Data); err != nil {
		return nil, err
	}
	if next.Slug != oldSlug {
		if err := s.slugs.CheckAvailable(ctx, next.OrganizationID, typ.Slug, next.Slug, entityID); err != nil {
			return nil, err
		}
	}

	scope := stub.Scope
	if err := s.gate.WriteJSON(ctx, entityVersionPath(scope, next.OrganizationID, entityID, next.Version), caps, next, nil); err != nil {
		return nil, err
	}
	if err := s.writeLatest(ctx, caps, scope, next); err != nil {
		return nil, err
	}

	if next.Slug != oldSlug {
		if err := s.slugs.Upsert(ctx, next.OrganizationID, typ.Slug, next.Slug, SlugIndexEntry{
			EntityID:       entityID,
			Visibility:     string(next.Visibility),
			OrganizationID: next.OrganizationID,
			EntityTypeID:   next.EntityTypeID,
		}); err != nil {
			s.log.Error("slug index write failed after entity update", "entity_id", entityID, "error", err)
		}
		if err := s.slugs.Delete(ctx, next.OrganizationID, typ.Slug, oldSlug); err != nil {
			s.log.Error("stale slug index entry not removed", "entity_id", entityID, "slug", oldSlug, "error", err)
		}
	}
	return next, nil
}

// ReadLatest resolves stub -> latest pointer -> version blob.
func (s *EntityStore) ReadLatest(ctx context.Context, caps capability.Capability, entityID uuid.UUID) (*entity.Entity, error) {
	e, _, err := s.readLatestWithStub(ctx, caps, entityID)
	return e, err
}

func (s *EntityStore) readLatestWithStub(ctx context.Context, caps capability.Capability, entityID uuid.UUID) (*entity.Entity, *entity.Stub, error) {
	stub, err := s.readStub(ctx, entityID)
	if err != nil {
		return nil, nil, err
	}

	var ptr entity.LatestPointer
	if err := s.gate.ReadJSON(ctx, entityLatestPath(stub.Scope, stub.OrganizationID, entityID), caps, &ptr, nil); err != nil {
		return nil, nil, err
	}

	var e entity.Entity
	if err := s.gate.ReadJSON(ctx, entityVersionPath(stub.Scope, stub.OrganizationID, entityID, ptr.Version), caps, &e, nil); err != nil {
		return nil, nil, err
	}
	return &e, stub, nil
}

// ReadVersion returns one specific version. The stub scope is tried
// first; historical versions written before a scope move are probed in
// the fixed public, platform, org order.
func (s *EntityStore) ReadVersion(ctx context.Context, caps capability.Capability, entityID uuid.UUID, version int) (*entity.Entity, error) {
	stub, err := s.readStub(ctx, entityID)
	if err != nil {
		return nil, err
	}

	var e entity.Entity
	err = s.gate.ReadJSON(ctx, entityVersionPath(stub.Scope, stub.OrganizationID, entityID, version), caps, &e, nil)
	if err == nil {
		return &e, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	for _, scope := range s.otherScopes(stub) {
		err = s.gate.ReadJSON(ctx, entityVersionPath(scope, stub.OrganizationID, entityID, version), caps, &e, nil)
		if err == nil {
			return &e, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("entity %s v%d: %w", entityID, version, domain.ErrNotFound)
}

// Transition applies a publication state-machine action, producing a new
// version with unchanged data. approve/reject demand the elevated approve
// capability and stamp the approval fields.
func (s *EntityStore) Transition(ctx context.Context, caps capability.Capability, entityID uuid.UUID, req entity.TransitionRequest) (*entity.Entity, error) {
	cur, stub, err := s.readLatestWithStub(ctx, caps, entityID)
	if err != nil {
		return nil, err
	}

	newStatus, err := entity.Transition(cur.Status, req.Action)
	if err != nil {
		return nil, err
	}
	if entity.RequiresApprovalCapability(req.Action) {
		if caps == nil || !caps.Can(capability.ActionApprove, capability.SubjectEntity) {
			return nil, fmt.Errorf("%s requires the approve capability: %w", req.Action, domain.ErrForbidden)
		}
	}

	now := time.Now().UTC()
	next := cur.NextVersion(req.ActedBy, now)
	next.Status = newStatus
	if entity.RequiresApprovalCapability(req.Action) {
		next.ApprovalFeedback = req.Feedback
		next.ApprovalActionAt = &now
		next.ApprovalActionBy = req.ActedBy
	}

	newScope := next.CurrentScope()
	if err := s.gate.WriteJSON(ctx, entityVersionPath(newScope, next.OrganizationID, entityID, next.Version), caps, next, nil); err != nil {
		return nil, err
	}
	if err := s.writeLatest(ctx, caps, newScope, next); err != nil {
		return nil, err
	}

	if newScope != stub.Scope {
		// move complete: retire the old pointer and record the new home
		if err := s.gate.DeleteFile(ctx, entityLatestPath(stub.Scope, stub.OrganizationID, entityID), caps, nil); err != nil {
			s.log.Error("stale latest pointer not removed", "entity_id", entityID, "scope", string(stub.Scope), "error", err)
		}
		stub.Scope = newScope
		if err := s.gate.WriteJSON(ctx, stubPath(entityID), nil, stub, nil); err != nil {
			return nil, fmt.Errorf("stub scope update: %w", err)
		}
	}
	return next, nil
}

// SuperDelete purges every version blob in every scope, the latest
// pointer, the stub, and the slug index entry, then triggers
// invalidation. This bypasses the state machine entirely.
func (s *EntityStore) SuperDelete(ctx context.Context, caps capability.Capability, entityID uuid.UUID) error {
	stub, err := s.readStub(ctx, entityID)
	if err != nil {
		return err
	}

	// capture what invalidation and index cleanup need before blobs go
	var typeSlug, entitySlug string
	if cur, _, err := s.readLatestWithStub(ctx, caps, entityID); err == nil {
		entitySlug = cur.Slug
		if typ, terr := s.types.Get(ctx, caps, cur.EntityTypeID); terr == nil {
			typeSlug = typ.Slug
		}
	}

	scopes := []entity.Scope{entity.ScopePublic, entity.ScopePlatform}
	if stub.OrganizationID != nil {
		scopes = append(scopes, entity.ScopeOrg)
	}
	for _, scope := range scopes {
		prefix := entityPrefix(scope, stub.OrganizationID, entityID)
		objects, err := s.gate.ListFiles(ctx, prefix, caps, nil)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, o := range objects {
			if err := s.gate.DeleteFile(ctx, o.Key, caps, nil); err != nil {
				return fmt.Errorf("purge %s: %w", o.Key, err)
			}
		}
	}

	if err := s.gate.DeleteFile(ctx, stubPath(entityID), nil, nil); err != nil {
		return fmt.Errorf("purge stub: %w", err)
	}
	if typeSlug != "" && entitySlug != "" {
		if err := s.slugs.Delete(ctx, stub.OrganizationID, typeSlug, entitySlug); err != nil {
			s.log.Error("slug index entry not removed on delete", "entity_id", entityID, "error", err)
		}
	}

	// deletes do not pass through the gate's write hook, so schedule
	// explicitly; the stub is gone, so the change carries the type id
	if s.gate.sched != nil {
		change := Change{Kind: ChangeEntity, EntityID: entityID.String(), TypeID: stub.EntityTypeID.String()}
		if stub.OrganizationID != nil {
			change.OrgID = stub.OrganizationID.String()
		}
		if err := s.gate.sched.Schedule(ctx, change); err != nil {
			s.log.Error("invalidation scheduling failed after delete", "entity_id", entityID, "error", err)
		}
	}
	return nil
}

func (s *EntityStore) writeLatest(ctx context.Context, caps capability.Capability, scope entity.Scope, e *entity.Entity) error {
	ptr := entity.LatestPointer{
		Version:    e.Version,
		Status:     e.Status,
		Visibility: e.Visibility,
		UpdatedAt:  e.UpdatedAt,
	}
	return s.gate.WriteJSON(ctx, entityLatestPath(scope, e.OrganizationID, e.ID), caps, ptr, nil)
}

func (s *EntityStore) readStub(ctx context.Context, entityID uuid.UUID) (*entity.Stub, error) {
	var stub entity.Stub
	if err := s.gate.ReadJSON(ctx, stubPath(entityID), nil, &stub, nil); err != nil {
		return nil, err
	}
	return &stub, nil
}

func (s *EntityStore) otherScopes(stub *entity.Stub) []entity.Scope {
	probe := []entity.Scope{entity.ScopePublic, entity.ScopePlatform}
	if stub.OrganizationID != nil {
		probe = append(probe, entity.ScopeOrg)
	}
	out := probe[:0]
	for _, sc := range probe {
		if sc != stub.Scope {
			out = append(out, sc)
		}
	}
	return out
}
