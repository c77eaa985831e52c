// Package api serves the postpack HTTP API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/postpack/internal/config"
	"github.com/dgallion1/postpack/internal/content"
	"github.com/dgallion1/postpack/internal/metrics"
	"github.com/dgallion1/postpack/internal/pipeline"
)

// Server is the HTTP API server for postpack.
type Server struct {
	router       chi.Router
	content      *content.Service
	orchestrator *pipeline.Orchestrator
	metrics      *metrics.Metrics
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(svc *content.Service, orch *pipeline.Orchestrator, m *metrics.Metrics, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		content:      svc,
		orchestrator: orch,
		metrics:      m,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(Instrument(s.metrics))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.PostpackAPIKey, s.log))

		r.Post("/api/content/compact", s.handleCompact)
		r.Post("/api/content/expand", s.handleExpand)
		r.Post("/api/content/stats", s.handleStats)
		r.Post("/api/content/stats/batch", s.handleBatchStats)

		r.Post("/api/posts", s.handleSavePost)
		r.Get("/api/posts", s.handleListPosts)
		r.Get("/api/posts/{postID}", s.handleGetPost)
		r.Delete("/api/posts/{postID}", s.handleDeletePost)

		r.Post("/api/import", s.handleImport)
		r.Post("/api/import/batch", s.handleBatchImport)
		r.Get("/api/import/{jobID}/status", s.handleImportStatus)

		r.Get("/api/stats/compaction", s.handleCompactionStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
