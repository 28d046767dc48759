package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/dagaz/internal/service"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *service.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Query surface.
	r.Post("/query", h.Query)
	r.Post("/query/export", h.Export)
	r.Get("/properties", h.Properties)

	// Sync control.
	r.Get("/status", h.Status)
	r.Post("/sync", h.Sync)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
