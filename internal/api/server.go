package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-gateway/internal/browser"
	"github.com/JakeFAU/scrape-gateway/internal/clock/system"
	"github.com/JakeFAU/scrape-gateway/internal/config"
	iduuid "github.com/JakeFAU/scrape-gateway/internal/id/uuid"
	"github.com/JakeFAU/scrape-gateway/internal/metrics"
	"github.com/JakeFAU/scrape-gateway/internal/runs"
	"github.com/JakeFAU/scrape-gateway/internal/scrape"
)

const indexMessage = "Scrape Gateway is running"

// Server wires HTTP handlers to the browser launcher and scrape routines.
type Server struct {
	router   chi.Router
	launcher browser.Launcher
	registry *scrape.Registry
	recorder *runs.Recorder
	idGen    runs.IDGenerator
	clock    runs.Clock
	cfg      config.Config
	logger   *zap.Logger
	routes   []string
}

// NewServer constructs a Server with middleware and routes. recorder may be nil;
// a nil idGen or clock falls back to UUIDv7 IDs and the wall clock.
func NewServer(
	launcher browser.Launcher,
	registry *scrape.Registry,
	recorder *runs.Recorder,
	idGen runs.IDGenerator,
	clock runs.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if idGen == nil {
		idGen = iduuid.New()
	}
	if clock == nil {
		clock = system.New()
	}
	s := &Server{
		launcher: launcher,
		registry: registry,
		recorder: recorder,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
	maxBody := cfg.Server.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(s.newRequestID))
	r.Use(metrics.Middleware(registry.Names()...))
	r.Use(bodyMiddleware(maxBody, clock.Now))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger, clock.Now))
	r.Use(middleware.GetHead)

	r.Get("/", s.index)
	r.Get("/health", s.health)
	s.routes = []string{"GET /", "GET /health"}
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
		s.routes = append(s.routes, "GET /metrics")
	}
	r.HandleFunc("/scrape/*", s.scrape)
	for _, name := range registry.Names() {
		s.routes = append(s.routes, "POST /scrape/"+name)
	}

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Routes lists the routes advertised in 404 responses.
func (s *Server) Routes() []string {
	out := make([]string, len(s.routes))
	copy(out, s.routes)
	return out
}

func (s *Server) newRequestID() string {
	if s.idGen != nil {
		if id, err := s.idGen.NewID(); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"message":   indexMessage,
		"timestamp": formatTimestamp(s.clock.Now()),
		"method":    r.Method,
		"path":      r.URL.Path,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"method":    r.Method,
		"path":      r.URL.Path,
		"timestamp": formatTimestamp(s.clock.Now()),
	})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"message": "Route not found",
		"requestDetails": map[string]any{
			"method":  r.Method,
			"path":    r.URL.Path,
			"body":    bodyValue(requestBody(r.Context())),
			"query":   queryValue(r),
			"headers": headerValue(r),
		},
		"availableRoutes": s.Routes(),
		"timestamp":       formatTimestamp(s.clock.Now()),
	})
}
