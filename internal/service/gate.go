package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/canopyhq/canopy/internal/adapter/otel"
	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/port/blobstore"
)

// Override replaces the path-derived (action, subject) pair for one gate
// call. Used by services whose semantics are narrower than the path shape
// implies, e.g. approval transitions.
type Override struct {
	Action  capability.Action
	Subject capability.Subject
}

// ChangeKind names what a content-affecting write touched.
type ChangeKind string

const (
	ChangeEntity   ChangeKind = "entity"
	ChangeType     ChangeKind = "entitytype"
	ChangeOrgPerms ChangeKind = "orgpermissions"
)

// Change describes a content-affecting write for invalidation purposes.
// EntityID is set for entity changes; TypeID for entity-type changes;
// OrgID for entity changes in org scope and for permission changes.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	EntityID string     `json:"entity_id,omitempty"`
	TypeID   string     `json:"type_id,omitempty"`
	OrgID    string     `json:"org_id,omitempty"`
}

// Scheduler queues invalidation work for a content change. Implementations
// must be fast and non-blocking; the gate never waits on regeneration.
type Scheduler interface {
	Schedule(ctx context.Context, change Change) error
}

// Gate is the capability-checked storage access layer. It is the only
// sanctioned path from application logic to the blob store: every read,
// write, delete, list and head funnels through the ordered path classifier
// before the store is touched.
type Gate struct {
	store   blobstore.Store
	sched   Scheduler
	metrics *otel.Metrics
	log     *slog.Logger
}

// NewGate creates a gate over the given store. sched may be nil, in which
// case content-affecting writes do not trigger invalidation (used by
// admin tooling that regenerates explicitly).
func NewGate(store blobstore.Store, sched Scheduler, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{store: store, sched: sched, log: log}
}

// SetScheduler wires the invalidation scheduler after construction. The
// gate and the invalidation service reference each other, so one side has
// to be attached late.
func (g *Gate) SetScheduler(sched Scheduler) { g.sched = sched }

// SetMetrics wires the denial counter. May stay unset in tests.
func (g *Gate) SetMetrics(m *otel.Metrics) { g.metrics = m }

// access classifies path+op and checks caps against the result. A nil
// error means the operation may proceed.
func (g *Gate) access(path string, op Operation, caps capability.Capability, override *Override) error {
	err := g.checkAccess(path, op, caps, override)
	if err != nil && g.metrics != nil {
		g.metrics.GateDenied.Add(context.Background(), 1)
	}
	return err
}

func (g *Gate) checkAccess(path string, op Operation, caps capability.Capability, override *Override) error {
	if override != nil {
		if caps == nil || !caps.Can(override.Action, override.Subject) {
			return fmt.Errorf("%s %s requires %s on %s: %w", op, path, override.Action, override.Subject, domain.ErrForbidden)
		}
		return nil
	}

	dec, rule := classify(path, op)
	switch dec.class {
	case classPublic, classAuthFlow:
		return nil
	case classSystem:
		// internal paths tolerate an absent capability set: trusted
		// services operate on stubs and indexes without one
		if caps == nil || caps.Can(capability.ActionManage, capability.SubjectSystem) {
			return nil
		}
		return fmt.Errorf("%s %s is internal: %w", op, path, domain.ErrForbidden)
	case classProtected:
		if caps == nil {
			return fmt.Errorf("%s %s requires a capability set: %w", op, path, domain.ErrForbidden)
		}
		if !caps.Can(dec.action, dec.subject) {
			return fmt.Errorf("%s %s requires %s on %s: %w", op, path, dec.action, dec.subject, domain.ErrForbidden)
		}
		return nil
	default:
		g.log.Warn("denied unrecognized storage path", "path", path, "op", string(op), "rule", rule)
		return fmt.Errorf("unrecognized path %s: %w", path, domain.ErrForbidden)
	}
}

// ReadJSON reads and decodes the blob at path into v.
func (g *Gate) ReadJSON(ctx context.Context, path string, caps capability.Capability, v any, override *Override) error {
	data, err := g.ReadFile(ctx, path, caps, override)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WriteJSON encodes v and writes it at path. Successful writes to
// content-affecting paths schedule asynchronous view invalidation; a
// scheduling failure is logged and never surfaced to the caller.
func (g *Gate) WriteJSON(ctx context.Context, path string, caps capability.Capability, v any, override *Override) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return g.WriteFile(ctx, path, caps, data, override)
}

// ReadFile returns the raw blob at path.
func (g *Gate) ReadFile(ctx context.Context, path string, caps capability.Capability, override *Override) ([]byte, error) {
	if err := g.access(path, OpRead, caps, override); err != nil {
		return nil, err
	}
	data, err := g.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, blobstore.ErrKeyNotFound) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile writes the raw blob at path.
func (g *Gate) WriteFile(ctx context.Context, path string, caps capability.Capability, data []byte, override *Override) error {
	if err := g.access(path, OpWrite, caps, override); err != nil {
		return err
	}
	if err := g.store.Put(ctx, path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if g.metrics != nil {
		if parsed, ok := parseEntityPath(path); ok && !parsed.Latest {
			g.metrics.EntitiesWritten.Add(ctx, 1)
		}
	}
	g.scheduleInvalidation(ctx, path)
	return nil
}

// DeleteFile removes the blob at path. Deleting an absent blob succeeds.
func (g *Gate) DeleteFile(ctx context.Context, path string, caps capability.Capability, override *Override) error {
	if err := g.access(path, OpDelete, caps, override); err != nil {
		return err
	}
	if err := g.store.Delete(ctx, path); err != nil && !errors.Is(err, blobstore.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// ListFiles returns metadata for every key under prefix. A listing may
// transiently include keys whose blobs are already gone; callers must
// treat a subsequent read miss as already-deleted.
func (g *Gate) ListFiles(ctx context.Context, prefix string, caps capability.Capability, override *Override) ([]blobstore.ObjectInfo, error) {
	if err := g.access(prefix, OpList, caps, override); err != nil {
		return nil, err
	}
	objects, err := g.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return objects, nil
}

// ListFilesPaginated returns one page of keys under prefix.
func (g *Gate) ListFilesPaginated(ctx context.Context, prefix string, caps capability.Capability, cursor string, limit int, override *Override) (blobstore.Page, error) {
	if err := g.access(prefix, OpList, caps, override); err != nil {
		return blobstore.Page{}, err
	}
	page, err := g.store.ListPage(ctx, prefix, cursor, limit)
	if err != nil {
		return blobstore.Page{}, fmt.Errorf("list %s: %w", prefix, err)
	}
	return page, nil
}

// HeadFile returns metadata for path without the body.
func (g *Gate) HeadFile(ctx context.Context, path string, caps capability.Capability, override *Override) (blobstore.ObjectInfo, error) {
	if err := g.access(path, OpHead, caps, override); err != nil {
		return blobstore.ObjectInfo{}, err
	}
	info, err := g.store.Head(ctx, path)
	if err != nil {
		if errors.Is(err, blobstore.ErrKeyNotFound) {
			return blobstore.ObjectInfo{}, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return blobstore.ObjectInfo{}, fmt.Errorf("head %s: %w", path, err)
	}
	return info, nil
}

// FileExists reports whether a blob exists at path.
func (g *Gate) FileExists(ctx context.Context, path string, caps capability.Capability, override *Override) (bool, error) {
	_, err := g.HeadFile(ctx, path, caps, override)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CheckETag reports whether the blob at path currently carries etag.
func (g *Gate) CheckETag(ctx context.Context, path string, caps capability.Capability, etag string, override *Override) (bool, error) {
	info, err := g.HeadFile(ctx, path, caps, override)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return info.ETag == etag, nil
}

// scheduleInvalidation inspects a just-written path and, when it matches a
// content-affecting pattern, queues regeneration of derived views. This is
// fire-and-forget: content correctness never waits on cache rebuilds.
func (g *Gate) scheduleInvalidation(ctx context.Context, path string) {
	if g.sched == nil {
		return
	}
	change, ok := contentChangeFor(path)
	if !ok {
		return
	}
	if err := g.sched.Schedule(ctx, change); err != nil {
		g.log.Error("invalidation scheduling failed", "path", path, "kind", string(change.Kind), "error", err)
	}
}

// contentChangeFor maps a written path to the change record it implies.
// Only latest-pointer writes count for entities: a version blob is always
// followed by its pointer update, and keying on the pointer avoids double
// regeneration.
func contentChangeFor(path string) (Change, bool) {
	if parsed, ok := parseEntityPath(path); ok {
		if !parsed.Latest {
			return Change{}, false
		}
		c := Change{Kind: ChangeEntity, EntityID: parsed.EntityID.String()}
		if parsed.OrgID != nil {
			c.OrgID = parsed.OrgID.String()
		}
		return c, true
	}
	if typeID, ok := parseEntityTypePath(path); ok {
		return Change{Kind: ChangeType, TypeID: typeID.String()}, true
	}
	if orgID, ok := parseOrgPolicyPath(path); ok {
		return Change{Kind: ChangeOrgPerms, OrgID: orgID.String()}, true
	}
	return Change{}, false
}
