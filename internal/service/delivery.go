package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain/capability"
)

// Delivery serves pre-materialized bundle and manifest blobs to readers.
// It never assembles content on demand; a missing blob means the audience
// has nothing to see and surfaces as not found.
type Delivery struct {
	gate *Gate
}

// NewDelivery creates a Delivery over the storage gate.
func NewDelivery(gate *Gate) *Delivery {
	return &Delivery{gate: gate}
}

// GlobalBundle returns the raw bundle blob for an audience key and type,
// with its ETag.
func (d *Delivery) GlobalBundle(ctx context.Context, caps capability.Capability, audienceKey string, typeID uuid.UUID) ([]byte, string, error) {
	return d.read(ctx, caps, globalBundlePath(audienceKey, typeID))
}

// OrgBundle returns an organization's member or admin bundle blob for a
// type, with its ETag.
func (d *Delivery) OrgBundle(ctx context.Context, caps capability.Capability, orgID uuid.UUID, area OrgArea, typeID uuid.UUID) ([]byte, string, error) {
	return d.read(ctx, caps, orgBundlePath(orgID, area, typeID))
}

// GlobalManifest returns the site manifest blob for an audience key, with
// its ETag.
func (d *Delivery) GlobalManifest(ctx context.Context, caps capability.Capability, audienceKey string) ([]byte, string, error) {
	return d.read(ctx, caps, globalManifestPath(audienceKey))
}

// OrgManifest returns an organization's member or admin manifest blob,
// with its ETag.
func (d *Delivery) OrgManifest(ctx context.Context, caps capability.Capability, orgID uuid.UUID, area OrgArea) ([]byte, string, error) {
	return d.read(ctx, caps, orgManifestPath(orgID, area))
}

// NotModified reports whether the blob for a global bundle still matches
// the given ETag. A false result includes missing blobs.
func (d *Delivery) NotModified(ctx context.Context, caps capability.Capability, audienceKey string, typeID uuid.UUID, etag string) (bool, error) {
	if etag == "" {
		return false, nil
	}
	return d.gate.CheckETag(ctx, globalBundlePath(audienceKey, typeID), caps, etag, nil)
}

func (d *Delivery) read(ctx context.Context, caps capability.Capability, path string) ([]byte, string, error) {
	data, err := d.gate.ReadFile(ctx, path, caps, nil)
	if err != nil {
		return nil, "", err
	}
	info, err := d.gate.HeadFile(ctx, path, caps, nil)
	if err != nil {
		return nil, "", fmt.Errorf("head %s: %w", path, err)
	}
	return data, info.ETag, nil
}

// ParseOrgArea validates an area path segment.
func ParseOrgArea(s string) (OrgArea, error) {
	switch OrgArea(s) {
	case AreaMember:
		return AreaMember, nil
	case AreaAdmin:
		return AreaAdmin, nil
	}
	return "", fmt.Errorf("unknown area %q", s)
}
