package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/domain/organization"
)

// OrgService reads and writes organization profiles and their entity-type
// permission sets.
type OrgService struct {
	gate *Gate
}

// NewOrgService creates an OrgService over the gate.
func NewOrgService(gate *Gate) *OrgService {
	return &OrgService{gate: gate}
}

// GetProfile returns the organization profile.
func (s *OrgService) GetProfile(ctx context.Context, caps capability.Capability, orgID uuid.UUID) (*organization.Organization, error) {
	var org organization.Organization
	if err := s.gate.ReadJSON(ctx, orgProfilePath(orgID), caps, &org, nil); err != nil {
		return nil, err
	}
	return &org, nil
}

// SaveProfile writes the organization profile.
func (s *OrgService) SaveProfile(ctx context.Context, caps capability.Capability, org *organization.Organization) error {
	org.UpdatedAt = time.Now().UTC()
	return s.gate.WriteJSON(ctx, orgProfilePath(org.ID), caps, org, nil)
}

// GetPermissions returns the organization's entity-type permission set. A
// missing record means no types are viewable yet.
func (s *OrgService) GetPermissions(ctx context.Context, caps capability.Capability, orgID uuid.UUID) (*organization.TypePermissions, error) {
	var perms organization.TypePermissions
	err := s.gate.ReadJSON(ctx, orgPermissionsPath(orgID), caps, &perms, nil)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &organization.TypePermissions{OrganizationID: orgID}, nil
		}
		return nil, err
	}
	return &perms, nil
}

// SavePermissions writes the permission set. The gate schedules manifest
// regeneration for the affected organization.
func (s *OrgService) SavePermissions(ctx context.Context, caps capability.Capability, perms *organization.TypePermissions) error {
	perms.UpdatedAt = time.Now().UTC()
	return s.gate.WriteJSON(ctx, orgPermissionsPath(perms.OrganizationID), caps, perms, nil)
}

// ListOrgIDs returns the id of every organization with a stored permission
// set. Used by the invalidation orchestrator to find manifests referencing
// a type.
func (s *OrgService) ListOrgIDs(ctx context.Context, caps capability.Capability) ([]uuid.UUID, error) {
	objects, err := s.gate.ListFiles(ctx, rootPolicies, caps, nil)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(objects))
	for _, o := range objects {
		raw := strings.TrimPrefix(o.Key, rootPolicies)
		idx := strings.IndexByte(raw, '/')
		if idx < 0 {
			continue
		}
		id, err := uuid.Parse(raw[:idx])
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
