package service

import (
	"strings"

	"github.com/canopyhq/canopy/internal/domain/capability"
)

// Operation is a storage-level operation the gate mediates.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
	OpHead   Operation = "head"
)

// gateClass is the access class a path+operation resolves to.
type gateClass int

const (
	classDeny gateClass = iota
	classPublic
	classSystem
	classAuthFlow
	classProtected
)

// decision is the outcome of classifying a path+operation. For
// classProtected, action/subject name the required capability.
type decision struct {
	class   gateClass
	action  capability.Action
	subject capability.Subject
}

func deny() decision     { return decision{class: classDeny} }
func public() decision   { return decision{class: classPublic} }
func system() decision   { return decision{class: classSystem} }
func authFlow() decision { return decision{class: classAuthFlow} }

func protected(a capability.Action, s capability.Subject) decision {
	return decision{class: classProtected, action: a, subject: s}
}

// accessRule classifies operations on paths it matches. Rules are
// evaluated in order, first match wins; a path matching no rule is denied.
// Precedence matters to collaborators: entity-type, stub, bundle and
// manifest patterns must be checked before the broader public-looking
// prefixes.
type accessRule struct {
	name     string
	match    func(path string) bool
	classify func(path string, op Operation) decision
}

// accessRules is the ordered classifier. The terminal behavior (no match)
// is deny-by-default; unknown path shapes are a security-relevant error
// and never fail open.
var accessRules = []accessRule{
	{
		name:  "entity-types",
		match: func(p string) bool { return strings.HasPrefix(p, rootEntityTypes) },
		classify: func(_ string, op Operation) decision {
			switch op {
			case OpRead, OpHead, OpList:
				return protected(capability.ActionRead, capability.SubjectEntityType)
			default:
				return protected(capability.ActionManage, capability.SubjectEntityType)
			}
		},
	},
	{
		// slug index before the general stub rule: both are internal, but
		// kept separate so the precedence stays explicit.
		name:     "slug-index",
		match:    func(p string) bool { return strings.HasPrefix(p, rootSlugIndex) },
		classify: func(string, Operation) decision { return system() },
	},
	{
		name:     "stubs",
		match:    func(p string) bool { return strings.HasPrefix(p, rootStubs) },
		classify: func(string, Operation) decision { return system() },
	},
	{
		name:  "bundles",
		match: func(p string) bool { return strings.HasPrefix(p, rootBundles) },
		classify: func(_ string, op Operation) decision {
			switch op {
			case OpRead, OpHead, OpList:
				return protected(capability.ActionRead, capability.SubjectBundle)
			default:
				// materialized views are written by the system, never by
				// a bundle consumer
				return protected(capability.ActionManage, capability.SubjectSystem)
			}
		},
	},
	{
		name:  "manifests",
		match: func(p string) bool { return strings.HasPrefix(p, rootManifests) },
		classify: func(_ string, op Operation) decision {
			switch op {
			case OpRead, OpHead, OpList:
				return protected(capability.ActionRead, capability.SubjectBundle)
			default:
				return protected(capability.ActionManage, capability.SubjectSystem)
			}
		},
	},
	{
		name:  "org-permissions",
		match: func(p string) bool { return strings.HasPrefix(p, rootPolicies) },
		classify: func(_ string, op Operation) decision {
			switch op {
			case OpRead, OpHead, OpList:
				return protected(capability.ActionRead, capability.SubjectOrganization)
			default:
				return protected(capability.ActionManage, capability.SubjectOrganization)
			}
		},
	},
	{
		// login-flow user lookup happens before a capability set exists
		name:  "user-by-email",
		match: func(p string) bool { return strings.HasPrefix(p, rootUsers+"by-email/") },
		classify: func(_ string, op Operation) decision {
			switch op {
			case OpRead, OpHead:
				return authFlow()
			default:
				return protected(capability.ActionManage, capability.SubjectUser)
			}
		},
	},
	{
		name:  "pending-signups",
		match: func(p string) bool { return strings.HasPrefix(p, rootAuth+"pending-signups/") },
		classify: func(_ string, op Operation) decision {
			if op == OpWrite {
				return authFlow()
			}
			return protected(capability.ActionManage, capability.SubjectUser)
		},
	},
	{
		name:  "magic-links",
		match: func(p string) bool { return strings.HasPrefix(p, rootAuth+"magic-links/") },
		classify: func(_ string, op Operation) decision {
			switch op {
			case OpRead, OpHead, OpDelete:
				return authFlow()
			default:
				return protected(capability.ActionManage, capability.SubjectUser)
			}
		},
	},
	{
		name:  "users",
		match: func(p string) bool { return strings.HasPrefix(p, rootUsers) },
		classify: func(_ string, op Operation) decision {
			switch op {
			case OpRead, OpHead:
				return protected(capability.ActionRead, capability.SubjectUser)
			case OpList:
				return protected(capability.ActionList, capability.SubjectUser)
			default:
				return protected(capability.ActionManage, capability.SubjectUser)
			}
		},
	},
	{
		name: "org-profile",
		match: func(p string) bool {
			_, ok := parseOrgPolicyPath(p)
			return ok && strings.HasPrefix(p, rootOrgs)
		},
		classify: func(_ string, op Operation) decision {
			switch op {
			case OpRead, OpHead, OpList:
				return protected(capability.ActionRead, capability.SubjectOrganization)
			case OpWrite:
				return protected(capability.ActionUpdate, capability.SubjectOrganization)
			default:
				return protected(capability.ActionManage, capability.SubjectOrganization)
			}
		},
	},
	{
		name: "entities",
		match: func(p string) bool {
			_, ok := parseEntityPath(p)
			if ok {
				return true
			}
			// listing prefixes like {root}entities/{id}/ end in a slash
			// and do not parse as a file path
			return strings.Contains(p, "entities/") &&
				(strings.HasPrefix(p, rootPublic) || strings.HasPrefix(p, rootPlatform) || strings.HasPrefix(p, rootOrgs))
		},
		classify: func(p string, op Operation) decision {
			publicScope := strings.HasPrefix(p, rootPublic)
			switch op {
			case OpRead, OpHead:
				if publicScope {
					return public()
				}
				return protected(capability.ActionRead, capability.SubjectEntity)
			case OpList:
				if publicScope {
					return public()
				}
				return protected(capability.ActionList, capability.SubjectEntity)
			case OpWrite:
				return protected(capability.ActionUpdate, capability.SubjectEntity)
			default:
				return protected(capability.ActionDelete, capability.SubjectEntity)
			}
		},
	},
	{
		// remaining world-readable content under public/. Bundle, manifest
		// and stub shapes never reach here (earlier rules own their roots),
		// and lookalike internal segments under public/ are refused.
		name: "public-content",
		match: func(p string) bool {
			if !strings.HasPrefix(p, rootPublic) {
				return false
			}
			rest := strings.TrimPrefix(p, rootPublic)
			return !strings.HasPrefix(rest, "bundles/") &&
				!strings.HasPrefix(rest, "manifests/") &&
				!strings.HasPrefix(rest, "stubs/")
		},
		classify: func(_ string, op Operation) decision {
			switch op {
			case OpRead, OpHead, OpList:
				return public()
			default:
				return protected(capability.ActionManage, capability.SubjectSystem)
			}
		},
	},
	{
		name:     "system",
		match:    func(p string) bool { return strings.HasPrefix(p, rootSystem) },
		classify: func(string, Operation) decision { return system() },
	},
}

// classify resolves path+op through the ordered rules. No match is a
// deny.
func classify(path string, op Operation) (decision, string) {
	for _, r := range accessRules {
		if r.match(path) {
			return r.classify(path, op), r.name
		}
	}
	return deny(), ""
}
