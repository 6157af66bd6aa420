package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/engine"
	"github.com/claude/freeflow/internal/storage"
)

// Store persists generated sequences and serves the run logs. *storage.DB
// satisfies it; a nil Store disables persistence.
type Store interface {
	InsertSequence(ctx context.Context, s storage.SavedSequence) (uuid.UUID, error)
	GetSequence(ctx context.Context, id uuid.UUID) (*storage.SavedSequence, error)
	InsertGenerationLog(ctx context.Context, log storage.GenerationLog) (int64, error)
	QueryGenerationLogs(ctx context.Context, limit int) ([]storage.GenerationLog, error)
	QueryImportLogs(ctx context.Context, limit int) ([]storage.ImportLog, error)
}

var _ Store = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	engine    *engine.Engine
	store     Store
	source    catalog.Source
	cacheSize int
	log       *slog.Logger
	apiKey    string
	router    chi.Router
}

// New creates a new Server with all routes configured.
func New(eng *engine.Engine, store Store, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		engine: eng,
		store:  store,
		log:    log,
		apiKey: apiKey,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/sequences/generate", s.handleGenerate)
		r.Post("/sequences/validate", s.handleValidate)
		r.Get("/sequences/{id}", s.handleGetSequence)
		r.Get("/movements", s.handleMovements)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/budget", s.handleBudget)
		r.Get("/generation-logs", s.handleGenerationLogs)
		r.Get("/import-logs", s.handleImportLogs)

		// Catalog administration (API key required)
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Post("/catalog/reload", s.handleCatalogReload)
		})
	})
}

// SetCatalogSource enables POST /api/v1/catalog/reload against src.
func (s *Server) SetCatalogSource(src catalog.Source, cacheSize int) {
	s.source = src
	s.cacheSize = cacheSize
}

// Mount attaches an extra handler, such as the MCP endpoint or /metrics.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Mount(pattern, h)
}
