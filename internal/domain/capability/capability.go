// Package capability defines the action/subject capability model used by
// the storage gate. A capability set is constructed once per request from
// role, organization, and membership-tier context, then consulted through
// the Capability interface.
package capability

import "github.com/google/uuid"

// Action is something a caller wants to do to a subject.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionList    Action = "list"
	ActionApprove Action = "approve"
	ActionManage  Action = "manage" // implies every other action on the subject
)

// Subject is the kind of resource an action applies to.
type Subject string

const (
	SubjectEntity       Subject = "Entity"
	SubjectEntityType   Subject = "EntityType"
	SubjectOrganization Subject = "Organization"
	SubjectUser         Subject = "User"
	SubjectBundle       Subject = "Bundle"
	SubjectSystem       Subject = "System"
	SubjectAll          Subject = "all"
)

// Capability answers whether a caller may perform an action on a subject.
type Capability interface {
	Can(action Action, subject Subject) bool
}

// Role is a caller's coarse access role.
type Role string

const (
	RolePlatform Role = "platform" // authenticated platform user
	RoleMember   Role = "member"   // organization member
	RoleOrgAdmin Role = "orgAdmin" // organization administrator
	RoleAdmin    Role = "admin"    // system administrator
)

// grant is one (action, subject) pair a role holds.
type grant struct {
	action  Action
	subject Subject
}

// roleGrants is the static rule table. There is deliberately no runtime
// rule DSL: roles map to fixed grants, and manage/all act as wildcards.
var roleGrants = map[Role][]grant{
	RoleAdmin: {
		{ActionManage, SubjectAll},
	},
	RoleOrgAdmin: {
		{ActionManage, SubjectEntity},
		{ActionApprove, SubjectEntity},
		{ActionRead, SubjectEntityType},
		{ActionRead, SubjectOrganization},
		{ActionUpdate, SubjectOrganization},
		{ActionRead, SubjectBundle},
		{ActionRead, SubjectUser},
	},
	RoleMember: {
		{ActionRead, SubjectEntity},
		{ActionCreate, SubjectEntity},
		{ActionUpdate, SubjectEntity},
		{ActionList, SubjectEntity},
		{ActionRead, SubjectEntityType},
		{ActionRead, SubjectOrganization},
		{ActionRead, SubjectBundle},
	},
	RolePlatform: {
		{ActionRead, SubjectEntity},
		{ActionRead, SubjectEntityType},
		{ActionRead, SubjectBundle},
	},
}

// Set is the concrete per-request capability set.
type Set struct {
	Role           Role
	OrganizationID *uuid.UUID // nil for platform users and system admins
	TierKey        string     // membership key granted by the caller's organization tier
	UserID         string
}

// NewSet builds a capability set for a request.
func NewSet(role Role, orgID *uuid.UUID, tierKey, userID string) *Set {
	return &Set{Role: role, OrganizationID: orgID, TierKey: tierKey, UserID: userID}
}

// Can reports whether the set holds (action, subject), honoring the
// manage and all wildcards. A nil set can do nothing.
func (s *Set) Can(action Action, subject Subject) bool {
	if s == nil {
		return false
	}
	for _, g := range roleGrants[s.Role] {
		if g.subject != SubjectAll && g.subject != subject {
			continue
		}
		if g.action == ActionManage || g.action == action {
			return true
		}
	}
	return false
}
