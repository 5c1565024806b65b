package http

import (
	"net/http"

	"github.com/canopyhq/canopy/internal/domain/capability"
)

// RegenerateContent handles POST /api/v1/admin/regenerate. It rebuilds
// every bundle and manifest synchronously and reports the first failures
// encountered. Intended for recovery after manual storage surgery.
func (h *Handlers) RegenerateContent(w http.ResponseWriter, r *http.Request) {
	caps := capsFrom(r)
	if caps == nil || !caps.Can(capability.ActionManage, capability.SubjectSystem) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := h.Invalidator.RegenerateEverything(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "regeneration finished with failures",
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "regenerated"})
}
