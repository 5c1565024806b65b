// Package http provides the HTTP surface over the content services:
// middleware, handlers, and route wiring.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/logger"
	"github.com/canopyhq/canopy/internal/service"
)

type capsCtxKey struct{}
type claimsCtxKey struct{}

// SecurityHeaders returns middleware that sets standard HTTP security headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-XSS-Protection", "0")
		next.ServeHTTP(w, r)
	})
}

// CORS returns middleware that sets CORS headers for development.
func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Logger returns middleware that logs HTTP requests using slog.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", logger.RequestID(r.Context()),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher, required for streaming responses.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Auth returns middleware that resolves a bearer token into the request's
// capability set. Requests without a token proceed anonymously: the
// storage gate decides per path whether that is enough, so public content
// needs no exemption list here.
func Auth(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				writeError(w, http.StatusUnauthorized, "authorization header must use the Bearer scheme")
				return
			}

			caps, claims, err := authSvc.ValidateToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), capsCtxKey{}, caps)
			ctx = context.WithValue(ctx, claimsCtxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// capsFrom returns the request's capability set, or nil for anonymous
// requests.
func capsFrom(r *http.Request) capability.Capability {
	caps, ok := r.Context().Value(capsCtxKey{}).(*capability.Set)
	if !ok {
		return nil
	}
	return caps
}

// claimsFrom returns the verified token claims, or nil.
func claimsFrom(r *http.Request) *service.Claims {
	claims, _ := r.Context().Value(claimsCtxKey{}).(*service.Claims)
	return claims
}

// requireAuth writes a 401 and returns nil when the request is anonymous.
func requireAuth(w http.ResponseWriter, r *http.Request) capability.Capability {
	caps := capsFrom(r)
	if caps == nil {
		writeError(w, http.StatusUnauthorized, "authorization required")
	}
	return caps
}
