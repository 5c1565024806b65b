// Package service implements the content store's core subsystems: the
// capability gate over the blob store, the versioned entity store, the
// slug index, bundle/manifest materialization, and invalidation.
package service

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain/entity"
)

// The path taxonomy below is a compatibility surface shared with
// collaborating systems and must be preserved exactly. Every storage key
// in the codebase is built or parsed here; no other file concatenates
// path strings.

const (
	rootPublic       = "public/"
	rootPlatform     = "platform/"
	rootOrgs         = "orgs/"
	rootEntityTypes  = "entity-types/"
	rootStubs        = "stubs/"
	rootSlugIndex    = "stubs/slug-index/"
	rootBundles      = "bundles/"
	rootManifests    = "manifests/"
	rootPolicies     = "policies/organizations/"
	rootUsers        = "users/"
	rootAuth         = "auth/"
	rootSystem       = "system/"
	globalScopeToken = "global"
)

// OrgArea distinguishes an organization's member and admin views.
type OrgArea string

const (
	AreaMember OrgArea = "member"
	AreaAdmin  OrgArea = "admin"
)

// scopeRoot returns the storage root for an entity scope. Org scope
// requires the owning organization's id.
func scopeRoot(scope entity.Scope, orgID *uuid.UUID) string {
	switch scope {
	case entity.ScopePublic:
		return rootPublic
	case entity.ScopePlatform:
		return rootPlatform
	default:
		return rootOrgs + orgID.String() + "/"
	}
}

// entityTypePath returns entity-types/{typeId}/definition.json.
func entityTypePath(typeID uuid.UUID) string {
	return rootEntityTypes + typeID.String() + "/definition.json"
}

// entityVersionPath returns {scopeRoot}entities/{entityId}/v{n}.json.
func entityVersionPath(scope entity.Scope, orgID *uuid.UUID, entityID uuid.UUID, version int) string {
	return scopeRoot(scope, orgID) + "entities/" + entityID.String() + "/v" + strconv.Itoa(version) + ".json"
}

// entityLatestPath returns {scopeRoot}entities/{entityId}/latest.json.
func entityLatestPath(scope entity.Scope, orgID *uuid.UUID, entityID uuid.UUID) string {
	return scopeRoot(scope, orgID) + "entities/" + entityID.String() + "/latest.json"
}

// entityPrefix returns the listing prefix for one entity's files in a scope.
func entityPrefix(scope entity.Scope, orgID *uuid.UUID, entityID uuid.UUID) string {
	return scopeRoot(scope, orgID) + "entities/" + entityID.String() + "/"
}

// stubPath returns stubs/{entityId}.json.
func stubPath(entityID uuid.UUID) string {
	return rootStubs + entityID.String() + ".json"
}

// slugScopeToken renders the organization part of a slug index key.
func slugScopeToken(orgID *uuid.UUID) string {
	if orgID == nil {
		return globalScopeToken
	}
	return orgID.String()
}

// slugIndexPath returns stubs/slug-index/{orgId|"global"}-{typeSlug}-{entitySlug}.json.
func slugIndexPath(orgID *uuid.UUID, typeSlug, entitySlug string) string {
	return rootSlugIndex + slugScopeToken(orgID) + "-" + typeSlug + "-" + entitySlug + ".json"
}

// globalBundlePath returns bundles/{audienceKey}/{typeId}.json.
func globalBundlePath(audienceKey string, typeID uuid.UUID) string {
	return rootBundles + audienceKey + "/" + typeID.String() + ".json"
}

// orgBundlePath returns bundles/org/{orgId}/{member|admin}/{typeId}.json.
func orgBundlePath(orgID uuid.UUID, area OrgArea, typeID uuid.UUID) string {
	return rootBundles + "org/" + orgID.String() + "/" + string(area) + "/" + typeID.String() + ".json"
}

// globalManifestPath returns manifests/{audienceKey}/site.json.
func globalManifestPath(audienceKey string) string {
	return rootManifests + audienceKey + "/site.json"
}

// orgManifestPath returns manifests/org/{orgId}/{member|admin}/site.json.
func orgManifestPath(orgID uuid.UUID, area OrgArea) string {
	return rootManifests + "org/" + orgID.String() + "/" + string(area) + "/site.json"
}

// orgPermissionsPath returns policies/organizations/{orgId}/entity-type-permissions.json.
func orgPermissionsPath(orgID uuid.UUID) string {
	return rootPolicies + orgID.String() + "/entity-type-permissions.json"
}

// orgProfilePath returns orgs/{orgId}/profile.json.
func orgProfilePath(orgID uuid.UUID) string {
	return rootOrgs + orgID.String() + "/profile.json"
}

// userByEmailPath returns users/by-email/{email}.json.
func userByEmailPath(email string) string {
	return rootUsers + "by-email/" + email + ".json"
}

// pendingSignupPath returns auth/pending-signups/{email}.json.
func pendingSignupPath(email string) string {
	return rootAuth + "pending-signups/" + email + ".json"
}

// magicLinkPath returns auth/magic-links/{tokenID}.json.
func magicLinkPath(tokenID string) string {
	return rootAuth + "magic-links/" + tokenID + ".json"
}

// parsedEntityPath is the result of decomposing a scope-qualified entity
// file path.
type parsedEntityPath struct {
	Scope    entity.Scope
	OrgID    *uuid.UUID
	EntityID uuid.UUID
	Version  int  // 0 for latest.json
	Latest   bool // true when the path names the latest pointer
}

// parseEntityPath decomposes {scopeRoot}entities/{id}/(v{n}|latest).json.
func parseEntityPath(path string) (parsedEntityPath, bool) {
	var out parsedEntityPath
	rest := ""
	switch {
	case strings.HasPrefix(path, rootPublic+"entities/"):
		out.Scope = entity.ScopePublic
		rest = strings.TrimPrefix(path, rootPublic+"entities/")
	case strings.HasPrefix(path, rootPlatform+"entities/"):
		out.Scope = entity.ScopePlatform
		rest = strings.TrimPrefix(path, rootPlatform+"entities/")
	case strings.HasPrefix(path, rootOrgs):
		tail := strings.TrimPrefix(path, rootOrgs)
		idx := strings.Index(tail, "/entities/")
		if idx < 0 {
			return out, false
		}
		orgID, err := uuid.Parse(tail[:idx])
		if err != nil {
			return out, false
		}
		out.Scope = entity.ScopeOrg
		out.OrgID = &orgID
		rest = tail[idx+len("/entities/"):]
	default:
		return out, false
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return out, false
	}
	entityID, err := uuid.Parse(parts[0])
	if err != nil {
		return out, false
	}
	out.EntityID = entityID

	switch file := parts[1]; {
	case file == "latest.json":
		out.Latest = true
	case strings.HasPrefix(file, "v") && strings.HasSuffix(file, ".json"):
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file, "v"), ".json"))
		if err != nil || n < 1 {
			return out, false
		}
		out.Version = n
	default:
		return out, false
	}
	return out, true
}

// parseEntityTypePath extracts the type id from
// entity-types/{typeId}/definition.json.
func parseEntityTypePath(path string) (uuid.UUID, bool) {
	if !strings.HasPrefix(path, rootEntityTypes) || !strings.HasSuffix(path, "/definition.json") {
		return uuid.UUID{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(path, rootEntityTypes), "/definition.json")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// parseOrgPolicyPath extracts the org id from either the org profile path
// or the org entity-type-permissions path.
func parseOrgPolicyPath(path string) (uuid.UUID, bool) {
	switch {
	case strings.HasPrefix(path, rootPolicies) && strings.HasSuffix(path, "/entity-type-permissions.json"):
		raw := strings.TrimSuffix(strings.TrimPrefix(path, rootPolicies), "/entity-type-permissions.json")
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.UUID{}, false
		}
		return id, true
	case strings.HasPrefix(path, rootOrgs) && strings.HasSuffix(path, "/profile.json"):
		raw := strings.TrimSuffix(strings.TrimPrefix(path, rootOrgs), "/profile.json")
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.UUID{}, false
		}
		return id, true
	}
	return uuid.UUID{}, false
}

// isVersionFile separates version blobs from the latest pointer when
// listing an entity's files.
func isVersionFile(key string) bool {
	base := key[strings.LastIndex(key, "/")+1:]
	return strings.HasPrefix(base, "v") && strings.HasSuffix(base, ".json")
}
