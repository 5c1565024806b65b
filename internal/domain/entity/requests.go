package entity

import (
	"github.com/google/uuid"
)

// CreateRequest holds the fields required to create a new draft entity.
type CreateRequest struct {
	EntityTypeID   uuid.UUID      `json:"entity_type_id"`
	OrganizationID *uuid.UUID     `json:"organization_id,omitempty"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Visibility     Visibility     `json:"visibility"`
	Data           map[string]any `json:"data"`
	CreatedBy      string         `json:"created_by"`
}

// UpdateRequest holds the fields an edit may change. Nil/empty fields keep
// their current values; Data replaces the dynamic data wholesale.
type UpdateRequest struct {
	Name       string         `json:"name,omitempty"`
	Slug       string         `json:"slug,omitempty"`
	Visibility Visibility     `json:"visibility,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	UpdatedBy  string         `json:"updated_by"`
}

// TransitionRequest carries the actor and optional reviewer feedback for a
// state-machine action.
type TransitionRequest struct {
	Action   Action `json:"action"`
	Feedback string `json:"feedback,omitempty"`
	ActedBy  string `json:"acted_by"`
}
