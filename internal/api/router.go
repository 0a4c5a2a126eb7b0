package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Query engine.
	r.Get("/semantic", h.Semantic)
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/connections/*", h.Connections)
	r.Get("/hidden", h.Hidden)

	// Vault contents.
	r.Get("/graph", h.Graph)
	r.Get("/notes", h.Notes)
	r.Get("/vaults", h.Vaults)
	r.Get("/health", h.Health)
	r.Post("/ingest", h.Ingest)

	// Model-backed flows.
	r.Post("/chat", h.Chat)
	r.Post("/agent", h.Agent)
	r.Post("/research", h.Research)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
