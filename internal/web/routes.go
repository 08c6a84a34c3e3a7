package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-scan/internal/web/handlers"
	"github.com/kozaktomas/face-scan/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	sessions := s.deps.Sessions

	authHandler := handlers.NewAuthHandler(s.deps.Auth, sessions, s.deps.Registry, s.log)
	configHandler := handlers.NewConfigHandler(s.config)
	scanHandler := handlers.NewScanHandler(s.log)
	routinesHandler := handlers.NewRoutinesHandler(s.deps.Routines, s.log)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	if s.deps.Uploads != nil {
		s.router.Handle("/uploads/*", http.StripPrefix("/uploads/", s.deps.Uploads))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sessions))

			r.Get("/config", configHandler.Get)

			// Routines
			r.Get("/routines", routinesHandler.List)
			r.Post("/routines", routinesHandler.Create)
			r.Get("/routines/events", routinesHandler.Events)
			r.Put("/routines/{id}", routinesHandler.Update)
			r.Delete("/routines/{id}", routinesHandler.Delete)

			// Scan session of the signed in user
			r.Route("/scan", func(r chi.Router) {
				r.Use(middleware.WithScanController(s.deps.Registry))

				r.Get("/", scanHandler.Get)
				r.Post("/start", scanHandler.Start)
				r.Post("/capture", scanHandler.Capture)
				r.Post("/fail", scanHandler.Fail)
				r.Post("/reset", scanHandler.Reset)
				r.Get("/events", scanHandler.Events)
				r.Get("/history", scanHandler.History)
				r.Post("/history/show", scanHandler.ShowHistory)
				r.Post("/history/{id}/select", scanHandler.Select)
			})
		})
	})
}
