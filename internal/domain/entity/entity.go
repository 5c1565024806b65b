// Package entity defines the versioned entity domain model: immutable
// version records, the mutable latest pointer, the location stub, and the
// publication state machine.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls which audience tiers may see a published entity.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"   // anyone, no capability set needed
	VisibilityPlatform Visibility = "platform" // any authenticated platform user
	VisibilityMembers  Visibility = "members"  // organization members at or above their tier
)

// Scope names the storage area an entity's current version and latest
// pointer live under. Recorded explicitly on the stub so reads never have
// to probe.
type Scope string

const (
	ScopePublic   Scope = "public"
	ScopePlatform Scope = "platform"
	ScopeOrg      Scope = "org"
)

// Entity is one immutable version of a content record. A mutation never
// changes a persisted version; it writes a full copy with Version+1.
type Entity struct {
	ID             uuid.UUID      `json:"id"`
	EntityTypeID   uuid.UUID      `json:"entity_type_id"`
	OrganizationID *uuid.UUID     `json:"organization_id,omitempty"` // nil means global
	Version        int            `json:"version"`
	Status         Status         `json:"status"`
	Visibility     Visibility     `json:"visibility"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Data           map[string]any `json:"data"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CreatedBy      string         `json:"created_by"`
	UpdatedBy      string         `json:"updated_by"`

	ApprovalFeedback string     `json:"approval_feedback,omitempty"`
	ApprovalActionAt *time.Time `json:"approval_action_at,omitempty"`
	ApprovalActionBy string     `json:"approval_action_by,omitempty"`
}

// IsGlobal reports whether the entity belongs to no organization.
func (e *Entity) IsGlobal() bool { return e.OrganizationID == nil }

// CurrentScope computes the storage scope for the entity's current
// status/visibility. Published public content is world-readable; published
// platform content sits behind authentication; everything else stays in
// the owning organization's private area (or the platform area for global
// entities, which have no private area).
func (e *Entity) CurrentScope() Scope {
	if e.Status == StatusPublished {
		switch e.Visibility {
		case VisibilityPublic:
			return ScopePublic
		case VisibilityPlatform:
			return ScopePlatform
		}
	}
	if e.IsGlobal() {
		return ScopePlatform
	}
	return ScopeOrg
}

// NextVersion returns a copy of e with Version+1 and refreshed update
// metadata. Callers mutate the copy's fields before persisting it; the
// receiver is never modified.
func (e *Entity) NextVersion(updatedBy string, now time.Time) *Entity {
	next := *e
	next.Data = copyData(e.Data)
	next.Version = e.Version + 1
	next.UpdatedAt = now
	next.UpdatedBy = updatedBy
	return &next
}

// LatestPointer is the single mutable record per entity. It is always
// overwritten in place and never versioned; the version it names must
// exist as a persisted version blob.
type LatestPointer struct {
	Version    int        `json:"version"`
	Status     Status     `json:"status"`
	Visibility Visibility `json:"visibility"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Stub is the lightweight lookup record written once at creation. Scope is
// the one field rewritten after creation, whenever a transition moves the
// entity between storage areas.
type Stub struct {
	EntityID       uuid.UUID  `json:"entity_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	EntityTypeID   uuid.UUID  `json:"entity_type_id"`
	Scope          Scope      `json:"scope"`
	CreatedAt      time.Time  `json:"created_at"`
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
