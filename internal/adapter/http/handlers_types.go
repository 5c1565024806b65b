package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain/entitytype"
)

// ListTypes handles GET /api/v1/types
func (h *Handlers) ListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Types.List(r.Context(), capsFrom(r))
	if err != nil {
		writeDomainError(w, err, "types not found")
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// GetType handles GET /api/v1/types/{id}
func (h *Handlers) GetType(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.Types.Get(r.Context(), capsFrom(r), id)
	if err != nil {
		writeDomainError(w, err, "type not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CreateType handles POST /api/v1/types
func (h *Handlers) CreateType(w http.ResponseWriter, r *http.Request) {
	t, ok := readJSON[entitytype.EntityType](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if t.ID == (uuid.UUID{}) {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	if err := h.Types.Save(r.Context(), capsFrom(r), &t); err != nil {
		writeDomainError(w, err, "type not found")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// SaveType handles PUT /api/v1/types/{id}. The path ID wins over any ID
// in the body.
func (h *Handlers) SaveType(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	t, ok := readJSON[entitytype.EntityType](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	t.ID = id

	if err := h.Types.Save(r.Context(), capsFrom(r), &t); err != nil {
		writeDomainError(w, err, "type not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}
