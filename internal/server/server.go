package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/careledger/careledger/internal/config"
	"github.com/careledger/careledger/internal/engine"
	"github.com/careledger/careledger/internal/pipeline"
	"github.com/careledger/careledger/internal/store"
)

// Server is the careledger HTTP API server.
type Server struct {
	db       *store.DB
	engine   *engine.Engine
	pipeline *pipeline.Pipeline
	memory   config.MemoryConfig
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a new Server. The memory config supplies ranking defaults for
// query requests that leave limit/floor/time-weight unset.
func New(db *store.DB, eng *engine.Engine, pipe *pipeline.Pipeline, mem config.MemoryConfig, version string) *Server {
	s := &Server{
		db:       db,
		engine:   eng,
		pipeline: pipe,
		memory:   mem,
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/notices/consent", s.handleConsentNotice)
		r.Get("/notices/data-usage", s.handleDataUsagePolicy)

		r.Route("/owners/{ownerID}", func(r chi.Router) {
			r.Post("/records", s.handleIngest)
			r.Post("/records/batch", s.handleBatchIngest)
			r.Post("/query", s.handleQuery)
			r.Post("/maintain", s.handleMaintain)
			r.Delete("/", s.handlePurge)
			r.Get("/timeline", s.handleTimeline)
			r.Get("/progression", s.handleProgression)
			r.Get("/consolidate", s.handleConsolidate)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
