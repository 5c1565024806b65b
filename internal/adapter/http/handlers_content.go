package http

import (
	"net/http"

	"github.com/canopyhq/canopy/internal/service"
)

// GetGlobalBundle handles GET /api/v1/content/{key}/bundles/{typeId}.
// Bundles are served as-is from storage; a conditional request with a
// matching ETag short-circuits to 304 without reading the body.
func (h *Handlers) GetGlobalBundle(w http.ResponseWriter, r *http.Request) {
	key := urlParam(r, "key")
	typeID, ok := urlUUID(w, r, "typeId")
	if !ok {
		return
	}
	caps := capsFrom(r)

	if etag := r.Header.Get("If-None-Match"); etag != "" {
		match, err := h.Delivery.NotModified(r.Context(), caps, key, typeID, etag)
		if err == nil && match {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	data, etag, err := h.Delivery.GlobalBundle(r.Context(), caps, key, typeID)
	if err != nil {
		writeDomainError(w, err, "bundle not found")
		return
	}
	writeBlob(w, data, etag)
}

// GetGlobalManifest handles GET /api/v1/content/{key}/manifest
func (h *Handlers) GetGlobalManifest(w http.ResponseWriter, r *http.Request) {
	data, etag, err := h.Delivery.GlobalManifest(r.Context(), capsFrom(r), urlParam(r, "key"))
	if err != nil {
		writeDomainError(w, err, "manifest not found")
		return
	}
	writeBlob(w, data, etag)
}

// GetOrgBundle handles GET /api/v1/organizations/{id}/content/{area}/bundles/{typeId}
func (h *Handlers) GetOrgBundle(w http.ResponseWriter, r *http.Request) {
	orgID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	typeID, ok := urlUUID(w, r, "typeId")
	if !ok {
		return
	}
	area, err := service.ParseOrgArea(urlParam(r, "area"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "area must be member or admin")
		return
	}

	data, etag, err := h.Delivery.OrgBundle(r.Context(), capsFrom(r), orgID, area, typeID)
	if err != nil {
		writeDomainError(w, err, "bundle not found")
		return
	}
	writeBlob(w, data, etag)
}

// GetOrgManifest handles GET /api/v1/organizations/{id}/content/{area}/manifest
func (h *Handlers) GetOrgManifest(w http.ResponseWriter, r *http.Request) {
	orgID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	area, err := service.ParseOrgArea(urlParam(r, "area"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "area must be member or admin")
		return
	}

	data, etag, err := h.Delivery.OrgManifest(r.Context(), capsFrom(r), orgID, area)
	if err != nil {
		writeDomainError(w, err, "manifest not found")
		return
	}
	writeBlob(w, data, etag)
}

// writeBlob serves a pre-serialized JSON blob with its storage ETag.
func writeBlob(w http.ResponseWriter, data []byte, etag string) {
	w.Header().Set("Content-Type", "application/json")
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
