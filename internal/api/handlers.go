package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// slugParam extracts the note slug from the URL wildcard. Supports
// encoded slashes from OpenAPI clients (e.g. topics%2Fnote).
func slugParam(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrVaultUnknown):
		writeJSON(w, http.StatusNotFound, errorBody("unknown vault"))
	case errors.Is(err, apperr.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("feature not configured"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Semantic handles GET /api/semantic.
//
//	@Summary		Semantic search over note chunks
//	@Tags			query
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Maximum results"
//	@Param			vault	query		string	false	"Vault id"
//	@Success		200		{array}		index.SemanticHit
//	@Security		BearerAuth
//	@Router			/semantic [get]
func (h *Handler) Semantic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("q") == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	hits, err := h.svc.Semantic(r.Context(), q.Get("vault"), q.Get("q"), limit)
	if err != nil {
		h.fail(w, "semantic", err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		Incoming links for a note
//	@Tags			query
//	@Produce		json
//	@Param			slug	path		string	true	"Note slug"
//	@Param			vault	query		string	false	"Vault id"
//	@Success		200		{array}		index.Backlink
//	@Security		BearerAuth
//	@Router			/backlinks/{slug} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	slug := slugParam(r)
	if slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("slug is required"))
		return
	}
	backs, err := h.svc.Backlinks(r.Context(), r.URL.Query().Get("vault"), slug)
	if err != nil {
		h.fail(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, backs)
}

// Connections handles GET /api/connections/*.
//
//	@Summary		Notes within N hops of a note
//	@Tags			query
//	@Produce		json
//	@Param			slug	path		string	true	"Note slug"
//	@Param			hops	query		int		false	"Hop ceiling (1-6)"
//	@Param			vault	query		string	false	"Vault id"
//	@Success		200		{array}		query.Connection
//	@Security		BearerAuth
//	@Router			/connections/{slug} [get]
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	slug := slugParam(r)
	if slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("slug is required"))
		return
	}
	hops, _ := strconv.Atoi(r.URL.Query().Get("hops"))
	conns, err := h.svc.Connections(r.Context(), r.URL.Query().Get("vault"), slug, hops)
	if err != nil {
		h.fail(w, "connections", err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

// Hidden handles GET /api/hidden.
//
//	@Summary		Semantically related notes with no direct link to the seed
//	@Tags			query
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			seed	query		string	true	"Seed note slug"
//	@Param			limit	query		int		false	"Maximum results"
//	@Param			vault	query		string	false	"Vault id"
//	@Success		200		{array}		index.SemanticHit
//	@Security		BearerAuth
//	@Router			/hidden [get]
func (h *Handler) Hidden(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("q") == "" || q.Get("seed") == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q and seed are required"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	hits, err := h.svc.Hidden(r.Context(), q.Get("vault"), q.Get("q"), q.Get("seed"), limit)
	if err != nil {
		h.fail(w, "hidden", err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

// Graph handles GET /api/graph.
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, edges, err := h.svc.Graph(r.Context(), r.URL.Query().Get("vault"))
	if err != nil {
		h.fail(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"edges": edges,
	})
}

// Notes handles GET /api/notes.
func (h *Handler) Notes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.Notes(r.Context(), r.URL.Query().Get("vault"))
	if err != nil {
		h.fail(w, "notes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notes": notes,
		"total": len(notes),
	})
}

// Vaults handles GET /api/vaults.
func (h *Handler) Vaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Vaults())
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.svc.Health(r.URL.Query().Get("vault"))
	if err != nil {
		h.fail(w, "health", err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// Ingest handles POST /api/ingest.
//
//	@Summary		Reconcile a vault with its files
//	@Tags			ingest
//	@Produce		json
//	@Param			vault	query		string	false	"Vault id"
//	@Success		200		{object}	index.IngestStats
//	@Security		BearerAuth
//	@Router			/ingest [post]
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Reingest(r.Context(), r.URL.Query().Get("vault"))
	if err != nil {
		h.fail(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Chat handles POST /api/chat.
//
//	@Summary		Single-pass grounded Q&A over the notes
//	@Tags			agent
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	agent.ChatResult
//	@Security		BearerAuth
//	@Router			/chat [post]
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("message is required"))
		return
	}
	res, err := h.svc.Chat(r.Context(), req.Vault, req.Message)
	if err != nil {
		h.fail(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Agent handles POST /api/agent.
//
//	@Summary		Multi-step tool-calling agent run
//	@Tags			agent
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	agent.Result
//	@Security		BearerAuth
//	@Router			/agent [post]
func (h *Handler) Agent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Task == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("task is required"))
		return
	}
	res, err := h.svc.Agent(r.Context(), req.Vault, req.Task)
	if err != nil {
		h.fail(w, "agent", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Research handles POST /api/research: a web answer next to the vault
// notes closest to the question.
func (h *Handler) Research(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("question is required"))
		return
	}
	res, err := h.svc.Research(r.Context(), req.Vault, req.Question)
	if err != nil {
		h.fail(w, "research", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
