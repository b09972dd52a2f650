// Package api provides the REST control surface for statecraftd: compile
// and run a highstate for an agent, list past runs, and inspect the
// intermediate highstate/lowstate/top artifacts (§6 "Run invocation
// surface"). Adapted from the teacher's chi + go-chi/cors router
// (internal/api/router.go), same middleware stack, routes replaced.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mattferris/statecraft/internal/config"
	"github.com/mattferris/statecraft/internal/engine"
)

var version = "dev"

// SetVersion records the build version for the /version endpoint.
func SetVersion(v string) { version = v }

// Server represents the API server.
type Server struct {
	cfg    *config.Config
	router chi.Router
	eng    *engine.Engine
}

// NewServer creates a new API server bound to a single Engine (one agent
// environment's loader, doer registry, and run history).
func NewServer(cfg *config.Config, eng *engine.Engine) *Server {
	s := &Server{cfg: cfg, eng: eng}
	s.setupRouter()
	return s
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * 1000000000))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.cfg.API.APIKey != "" {
		r.Use(s.apiKeyAuth)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Get("/environments", s.handleListEnvironments)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Post("/", s.handleCreateRun)
		r.Get("/{id}", s.handleGetRun)
	})

	r.Route("/show", func(r chi.Router) {
		r.Get("/top", s.handleShowTop)
		r.Get("/highstate", s.handleShowHighstate)
		r.Get("/lowstate", s.handleShowLowstate)
	})

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// apiKeyAuth is middleware that validates API key.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/version" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey != s.cfg.API.APIKey {
			writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
