package http

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain/entity"
)

// CreateEntity handles POST /api/v1/entities
func (h *Handlers) CreateEntity(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[entity.CreateRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if claims := claimsFrom(r); claims != nil && req.CreatedBy == "" {
		req.CreatedBy = claims.Subject
	}

	e, err := h.Entities.Create(r.Context(), capsFrom(r), req)
	if err != nil {
		writeDomainError(w, err, "entity type not found")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GetEntity handles GET /api/v1/entities/{id}
func (h *Handlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	e, err := h.Entities.ReadLatest(r.Context(), capsFrom(r), id)
	if err != nil {
		writeDomainError(w, err, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetEntityVersion handles GET /api/v1/entities/{id}/versions/{version}
func (h *Handlers) GetEntityVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	version, err := strconv.Atoi(urlParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "invalid version")
		return
	}

	e, err := h.Entities.ReadVersion(r.Context(), capsFrom(r), id, version)
	if err != nil {
		writeDomainError(w, err, "entity version not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// UpdateEntity handles PUT /api/v1/entities/{id}
func (h *Handlers) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	req, ok := readJSON[entity.UpdateRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if claims := claimsFrom(r); claims != nil && req.UpdatedBy == "" {
		req.UpdatedBy = claims.Subject
	}

	e, err := h.Entities.Update(r.Context(), capsFrom(r), id, req)
	if err != nil {
		writeDomainError(w, err, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// TransitionEntity handles POST /api/v1/entities/{id}/transition
func (h *Handlers) TransitionEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	req, ok := readJSON[entity.TransitionRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, string(req.Action), "action") {
		return
	}
	if claims := claimsFrom(r); claims != nil && req.ActedBy == "" {
		req.ActedBy = claims.Subject
	}

	e, err := h.Entities.Transition(r.Context(), capsFrom(r), id, req)
	if err != nil {
		writeDomainError(w, err, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteEntity handles DELETE /api/v1/entities/{id}. This is the
// unrecoverable purge of every version, not the reversible state-machine
// delete.
func (h *Handlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Entities.SuperDelete(r.Context(), capsFrom(r), id); err != nil {
		writeDomainError(w, err, "entity not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveSlug handles GET /api/v1/slugs/{typeSlug}/{entitySlug}. An
// optional org query parameter scopes the lookup to an organization's
// namespace.
func (h *Handlers) ResolveSlug(w http.ResponseWriter, r *http.Request) {
	typeSlug := urlParam(r, "typeSlug")
	entitySlug := urlParam(r, "entitySlug")

	var orgID *uuid.UUID
	if raw := r.URL.Query().Get("org"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid org")
			return
		}
		orgID = &id
	}

	entry, err := h.Slugs.Read(r.Context(), orgID, typeSlug, entitySlug)
	if err != nil {
		writeDomainError(w, err, "slug not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
