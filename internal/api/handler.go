package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/engine"
	"github.com/VerticalLabs-ai/recall/internal/knowledge"
)

// Handler exposes the consolidation engine over a thin REST surface.
type Handler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: eng, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Post("/sessions", h.initializeSession)
		r.Post("/sessions/{id}/updates", h.updateSession)
		r.Post("/sessions/{id}/finalize", h.finalizeSession)

		r.Post("/consolidate", h.consolidate)

		r.Get("/graph", h.buildGraph)
		r.Post("/graph/query", h.queryGraph)

		r.Get("/stats/patterns", h.patternStats)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "recall"})
}

func (h *Handler) initializeSession(w http.ResponseWriter, r *http.Request) {
	var req engine.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sc, err := h.engine.InitializeSessionContext(r.Context(), req)
	if err != nil {
		h.logger.Warn("session init failed", zap.String("agent", req.OwnerAgentID), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (h *Handler) updateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var update engine.SessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.engine.UpdateSessionContext(r.Context(), id, update); err != nil {
		h.logger.Error("session update failed", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "updated"})
}

func (h *Handler) finalizeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sc, err := h.engine.FinalizeSession(r.Context(), id)
	if err != nil {
		h.logger.Error("session finalize failed", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sc == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session"})
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

type consolidateRequest struct {
	Kind string `json:"kind"`
}

func (h *Handler) consolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // empty body means triggered
	}
	kind := engine.RunKind(req.Kind)
	switch kind {
	case engine.RunNightly, engine.RunWeekly, engine.RunTriggered:
	case "":
		kind = engine.RunTriggered
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown run kind: " + req.Kind})
		return
	}

	run, err := h.engine.PerformMemoryConsolidation(r.Context(), kind)
	if err != nil {
		h.logger.Error("consolidation failed", zap.String("kind", string(kind)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) buildGraph(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	g, err := h.engine.BuildKnowledgeGraph(r.Context(), domain)
	if err != nil {
		h.logger.Error("graph build failed", zap.String("domain", domain), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) queryGraph(w http.ResponseWriter, r *http.Request) {
	var q knowledge.GraphQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	nodes, err := h.engine.QueryKnowledgeGraph(r.Context(), q)
	if err != nil {
		h.logger.Error("graph query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if nodes == nil {
		nodes = []*knowledge.Node{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *Handler) patternStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.AggregatePatterns(r.Context())
	if err != nil {
		h.logger.Error("pattern aggregation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
