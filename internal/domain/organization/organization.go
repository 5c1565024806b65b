// Package organization defines organization profiles and their
// entity-type permission sets.
package organization

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant on the platform. TierKey names the membership
// key granted by the organization's assigned tier.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	TierKey   string    `json:"tier_key"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TypePermissions records which entity types an organization's members may
// view and manage. Stored per organization under the policies area.
type TypePermissions struct {
	OrganizationID uuid.UUID   `json:"organization_id"`
	Viewable       []uuid.UUID `json:"viewable"`
	Editable       []uuid.UUID `json:"editable"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// CanView reports whether typeID is in the viewable set.
func (p *TypePermissions) CanView(typeID uuid.UUID) bool {
	for _, id := range p.Viewable {
		if id == typeID {
			return true
		}
	}
	return false
}

// CanEdit reports whether typeID is in the editable set.
func (p *TypePermissions) CanEdit(typeID uuid.UUID) bool {
	for _, id := range p.Editable {
		if id == typeID {
			return true
		}
	}
	return false
}
