package http

import (
	"net/http"

	"github.com/canopyhq/canopy/internal/domain/organization"
)

// GetOrgProfile handles GET /api/v1/organizations/{id}
func (h *Handlers) GetOrgProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	org, err := h.Orgs.GetProfile(r.Context(), capsFrom(r), id)
	if err != nil {
		writeDomainError(w, err, "organization not found")
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// SaveOrgProfile handles PUT /api/v1/organizations/{id}
func (h *Handlers) SaveOrgProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	org, ok := readJSON[organization.Organization](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	org.ID = id
	if !requireField(w, org.Name, "name") {
		return
	}

	if err := h.Orgs.SaveProfile(r.Context(), capsFrom(r), &org); err != nil {
		writeDomainError(w, err, "organization not found")
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// GetOrgPermissions handles GET /api/v1/organizations/{id}/permissions
func (h *Handlers) GetOrgPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	perms, err := h.Orgs.GetPermissions(r.Context(), capsFrom(r), id)
	if err != nil {
		writeDomainError(w, err, "organization permissions not found")
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

// SaveOrgPermissions handles PUT /api/v1/organizations/{id}/permissions.
// The write schedules regeneration of the organization's bundles and
// manifests.
func (h *Handlers) SaveOrgPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	perms, ok := readJSON[organization.TypePermissions](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	perms.OrganizationID = id

	if err := h.Orgs.SavePermissions(r.Context(), capsFrom(r), &perms); err != nil {
		writeDomainError(w, err, "organization not found")
		return
	}
	writeJSON(w, http.StatusOK, perms)
}
