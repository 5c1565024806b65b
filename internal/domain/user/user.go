// Package user defines the user records and signup flow types behind
// authentication.
package user

import (
	"errors"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain/capability"
)

// User is a registered account. Records are keyed by lowercased email;
// OrganizationID is nil for platform-level accounts.
type User struct {
	ID             uuid.UUID       `json:"id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Role           capability.Role `json:"role"`
	OrganizationID *uuid.UUID      `json:"organization_id,omitempty"`
	TierKey        string          `json:"tier_key,omitempty"`
	Enabled        bool            `json:"enabled"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PendingSignup is a signup awaiting administrator approval. Written
// before any account exists, so it carries no identifiers beyond email.
type PendingSignup struct {
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	OrganizationID   *uuid.UUID `json:"organization_id,omitempty"`
	RequestedTierKey string     `json:"requested_tier_key,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Validate checks the signup has a plausible identity.
func (p *PendingSignup) Validate() error {
	if p.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return errors.New("invalid email format")
	}
	if p.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// MagicLink is a stored single-use login token. Only the bcrypt hash of
// the secret is persisted; the plain secret exists in the emailed URL and
// nowhere else.
type MagicLink struct {
	TokenID    string    `json:"token_id"`
	Email      string    `json:"email"`
	SecretHash string    `json:"secret_hash"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the link is past its expiry at the given time.
func (m *MagicLink) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// UpdateRequest is the input for an administrator updating an account.
type UpdateRequest struct {
	Name    string          `json:"name,omitempty"`
	Role    capability.Role `json:"role,omitempty"`
	TierKey string          `json:"tier_key,omitempty"`
	Enabled *bool           `json:"enabled,omitempty"`
}
