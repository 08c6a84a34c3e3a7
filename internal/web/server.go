package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"

	"github.com/kozaktomas/face-scan/internal/auth"
	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/routines"
	"github.com/kozaktomas/face-scan/internal/scan"
	"github.com/kozaktomas/face-scan/internal/web/middleware"
)

// Dependencies are the services the HTTP API is built on
type Dependencies struct {
	Auth     *auth.Service
	Sessions *middleware.SessionManager
	Registry *scan.Registry
	Routines *routines.Repository
	// Uploads serves locally stored photos under /uploads/. Nil when photos
	// live in remote object storage.
	Uploads http.Handler
	Log     logr.Logger
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Dependencies
	router     *chi.Mux
	httpServer *http.Server
	log        logr.Logger
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		deps:   deps,
		router: r,
		log:    deps.Log.WithName("web"),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.Origins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: event streams stay open for the whole session.
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and closes every scan controller
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down web server")

	err := s.httpServer.Shutdown(ctx)
	if s.deps.Registry != nil {
		s.deps.Registry.Stop()
	}
	if err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
