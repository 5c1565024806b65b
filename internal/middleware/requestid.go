// Package middleware holds the HTTP middleware canopy mounts around its
// API: request-ID correlation, per-IP rate limiting, and idempotent
// retry replay.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/canopyhq/canopy/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID, or mints one, into the
// request context and the response header. The request logger and every
// slog line downstream carry it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = newRequestID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
