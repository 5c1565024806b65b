package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		// Auth
		r.Post("/auth/signup", h.Signup)
		r.Post("/auth/magic-link", h.RequestMagicLink)
		r.Post("/auth/verify", h.VerifyMagicLink)
		r.Get("/auth/me", h.Me)
		r.Get("/auth/pending-signups", h.ListPendingSignups)
		r.Post("/auth/pending-signups/{email}/approve", h.ApproveSignup)
		r.Delete("/auth/pending-signups/{email}", h.RejectSignup)

		// User administration
		r.Patch("/users/{email}", h.UpdateUser)
		r.Delete("/users/{email}", h.DeleteUser)

		// Entity types
		r.Get("/types", h.ListTypes)
		r.Post("/types", h.CreateType)
		r.Get("/types/{id}", h.GetType)
		r.Put("/types/{id}", h.SaveType)
		r.Post("/types/{id}/import", h.ImportEntities)

		// Entities
		r.Post("/entities", h.CreateEntity)
		r.Get("/entities/{id}", h.GetEntity)
		r.Put("/entities/{id}", h.UpdateEntity)
		r.Delete("/entities/{id}", h.DeleteEntity)
		r.Get("/entities/{id}/versions/{version}", h.GetEntityVersion)
		r.Post("/entities/{id}/transition", h.TransitionEntity)

		// Slug resolution
		r.Get("/slugs/{typeSlug}/{entitySlug}", h.ResolveSlug)

		// Materialized content
		r.Get("/content/{key}/manifest", h.GetGlobalManifest)
		r.Get("/content/{key}/bundles/{typeId}", h.GetGlobalBundle)

		// Organizations
		r.Get("/organizations/{id}", h.GetOrgProfile)
		r.Put("/organizations/{id}", h.SaveOrgProfile)
		r.Get("/organizations/{id}/permissions", h.GetOrgPermissions)
		r.Put("/organizations/{id}/permissions", h.SaveOrgPermissions)
		r.Get("/organizations/{id}/content/{area}/manifest", h.GetOrgManifest)
		r.Get("/organizations/{id}/content/{area}/bundles/{typeId}", h.GetOrgBundle)

		// Administration
		r.Post("/admin/regenerate", h.RegenerateContent)
	})
}
