package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the gateway's public routes. Every endpoint is
// unauthenticated; abuse control happens in the service layer (bot gate,
// rate limits, signatures).
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Excerpt flow
	r.Post("/subscribe-and-send", h.SubscribeAndSend)
	r.Get("/verify-excerpt", h.VerifyExcerpt)

	// Unsubscribe: GET serves the footer link in the mail body, POST the
	// RFC 8058 one-click variant. Both accept either shape.
	r.Get("/unsubscribe", h.Unsubscribe)
	r.Post("/unsubscribe", h.Unsubscribe)
	r.Get("/one-click-unsubscribe", h.OneClickUnsubscribe)
	r.Post("/one-click-unsubscribe", h.OneClickUnsubscribe)

	// Preorders
	r.Post("/preorder", h.Preorder)

	// Delivery events from SES via SNS
	r.Post("/events/ses", h.SESEvents)

	// CORS preflights for any path answer empty 200 so browser clients
	// never see a 404 on OPTIONS.
	r.MethodFunc(http.MethodOptions, "/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}
