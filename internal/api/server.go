package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lafabrique/excerpt-gateway/internal/config"
	"github.com/lafabrique/excerpt-gateway/internal/service/gateway"
)

// Server represents the gateway HTTP server.
type Server struct {
	config   config.Config
	handler  http.Handler
	handlers *Handlers
	server   *http.Server
	router   *chi.Mux
}

// NewServer creates the gateway server around a fully wired service.
func NewServer(cfg config.Config, svc *gateway.Service) *Server {
	handlers := NewHandlers(svc, cfg.Link.ConfirmURL)
	router := SetupRoutes(handlers, cfg.CORS.AllowedOrigins)

	return &Server{
		config:   cfg,
		handler:  router,
		handlers: handlers,
		router:   router,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// All endpoints serve small payloads (the excerpt PDF is the
		// largest at a few MB), so the timeouts are tight.
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
