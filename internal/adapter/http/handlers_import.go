package http

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy/internal/domain/entity"
	"github.com/canopyhq/canopy/internal/service"
)

type importResponse struct {
	Created int      `json:"created"`
	Slugs   []string `json:"slugs"`
}

// ImportEntities handles POST /api/v1/types/{id}/import. The multipart
// "file" field carries a CSV or XLSX spreadsheet; the batch is
// all-or-nothing.
func (h *Handlers) ImportEntities(w http.ResponseWriter, r *http.Request) {
	typeID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	var orgID *uuid.UUID
	if raw := r.FormValue("organization_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid organization_id")
			return
		}
		orgID = &id
	}

	var rows []service.ImportRow
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv":
		rows, err = service.ParseCSV(file)
	case ".xlsx":
		rows, err = service.ParseXLSX(file)
	default:
		writeError(w, http.StatusUnsupportedMediaType, "file must be .csv or .xlsx")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not parse spreadsheet: "+err.Error())
		return
	}

	createdBy := ""
	if claims := claimsFrom(r); claims != nil {
		createdBy = claims.Subject
	}

	created, err := h.Importer.Import(r.Context(), capsFrom(r), typeID, orgID, rows, createdBy)
	if err != nil {
		// A mid-batch storage fault leaves earlier rows written; tell
		// the client what landed so the batch can be reconciled.
		if len(created) > 0 {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":         "import aborted mid-batch",
				"created_slugs": entitySlugs(created),
			})
			return
		}
		writeDomainError(w, err, "entity type not found")
		return
	}
	writeJSON(w, http.StatusCreated, importResponse{Created: len(created), Slugs: entitySlugs(created)})
}

func entitySlugs(entities []*entity.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Slug
	}
	return out
}
