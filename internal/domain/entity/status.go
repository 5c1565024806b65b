package entity

import "github.com/canopyhq/canopy/internal/domain"

// Status is an entity's position in the publication lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

// Action is a publication state-machine action.
type Action string

const (
	ActionSubmitForApproval Action = "submitForApproval"
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionArchive           Action = "archive"
	ActionRestore           Action = "restore"
	ActionDelete            Action = "delete"
)

// transition table: (current status, action) -> next status. Hard delete is
// deliberately absent; it bypasses the machine entirely.
var transitions = map[Status]map[Action]Status{
	StatusDraft: {
		ActionSubmitForApproval: StatusPending,
		ActionDelete:            StatusDeleted,
	},
	StatusPending: {
		ActionApprove: StatusPublished,
		ActionReject:  StatusDraft,
	},
	StatusPublished: {
		ActionArchive: StatusArchived,
	},
	StatusArchived: {
		ActionRestore: StatusDraft,
	},
}

// actionOrder fixes the enumeration order of legal actions so error
// messages are stable.
var actionOrder = []Action{
	ActionSubmitForApproval,
	ActionApprove,
	ActionReject,
	ActionArchive,
	ActionRestore,
	ActionDelete,
}

// IsValidTransition reports whether action is legal from status.
func IsValidTransition(status Status, action Action) bool {
	_, ok := transitions[status][action]
	return ok
}

// LegalActions returns the actions valid from status, in a fixed order.
func LegalActions(status Status) []Action {
	table := transitions[status]
	out := make([]Action, 0, len(table))
	for _, a := range actionOrder {
		if _, ok := table[a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Transition returns the status reached by applying action, or a
// TransitionError enumerating the legal alternatives.
func Transition(status Status, action Action) (Status, error) {
	next, ok := transitions[status][action]
	if !ok {
		legal := LegalActions(status)
		names := make([]string, len(legal))
		for i, a := range legal {
			names[i] = string(a)
		}
		return "", &domain.TransitionError{Status: string(status), Action: string(action), Legal: names}
	}
	return next, nil
}

// RequiresApprovalCapability reports whether the action needs the elevated
// approve capability rather than ordinary update rights.
func RequiresApprovalCapability(action Action) bool {
	return action == ActionApprove || action == ActionReject
}
