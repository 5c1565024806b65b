package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/domain/user"
	"github.com/canopyhq/canopy/internal/service"
)

// Signup handles POST /api/v1/auth/signup. Anyone may request an
// account; an administrator approves or rejects it later.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.PendingSignup](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	if err := h.Auth.RequestSignup(r.Context(), &req); err != nil {
		writeDomainError(w, err, "signup failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending approval"})
}

// RequestMagicLink handles POST /api/v1/auth/magic-link. The response is
// 202 whether or not the email has an account: the endpoint must not
// reveal which addresses are registered.
func (h *Handlers) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Email string `json:"email"`
	}](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, req.Email, "email") {
		return
	}

	if err := h.Auth.SendMagicLink(r.Context(), req.Email); err != nil && !errors.Is(err, service.ErrInvalidCredentials) {
		writeDomainError(w, err, "magic link failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "link sent if the account exists"})
}

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

// VerifyMagicLink handles POST /api/v1/auth/verify. A successful verify
// consumes the link and returns an access token.
func (h *Handlers) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		TokenID string `json:"token_id"`
		Secret  string `json:"secret"`
	}](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, req.TokenID, "token_id") || !requireField(w, req.Secret, "secret") {
		return
	}

	u, err := h.Auth.VerifyMagicLink(r.Context(), req.TokenID, req.Secret)
	if err != nil {
		writeDomainError(w, err, "verification failed")
		return
	}

	token, expires, err := h.Auth.IssueToken(u)
	if err != nil {
		writeDomainError(w, err, "token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expires, User: u})
}

// Me handles GET /api/v1/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}

	u, err := h.Auth.LookupUser(r.Context(), claims.Subject)
	if err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ListPendingSignups handles GET /api/v1/auth/pending-signups
func (h *Handlers) ListPendingSignups(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Auth.ListPendingSignups(r.Context(), capsFrom(r))
	if err != nil {
		writeDomainError(w, err, "pending signups not found")
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// ApproveSignup handles POST /api/v1/auth/pending-signups/{email}/approve
func (h *Handlers) ApproveSignup(w http.ResponseWriter, r *http.Request) {
	email := urlParam(r, "email")
	req, ok := readJSON[struct {
		Role string `json:"role"`
	}](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	role := capability.Role(req.Role)
	switch role {
	case capability.RolePlatform, capability.RoleMember, capability.RoleOrgAdmin, capability.RoleAdmin:
	default:
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	u, err := h.Auth.ApproveSignup(r.Context(), capsFrom(r), email, role)
	if err != nil {
		writeDomainError(w, err, "pending signup not found")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// RejectSignup handles DELETE /api/v1/auth/pending-signups/{email}
func (h *Handlers) RejectSignup(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.RejectSignup(r.Context(), capsFrom(r), urlParam(r, "email")); err != nil {
		writeDomainError(w, err, "pending signup not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateUser handles PATCH /api/v1/users/{email}
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.UpdateRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	u, err := h.Auth.UpdateUser(r.Context(), capsFrom(r), urlParam(r, "email"), req)
	if err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// DeleteUser handles DELETE /api/v1/users/{email}
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.DeleteUser(r.Context(), capsFrom(r), urlParam(r, "email")); err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
