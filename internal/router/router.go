// Package router sets up all HTTP routes and middleware chains for the
// tilery gateway. It organizes the named-map API into a public
// instantiation surface and an API-key-gated administration group.
package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tilery/internal/handlers"
	"tilery/internal/middleware"
)

// MapKeys looks up owner API keys for the admin gate.
type MapKeys interface {
	GetUserMapKey(ctx context.Context, owner string) (string, error)
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(templates *handlers.Templates, named *handlers.Named, keys MapKeys, limiter *middleware.RateLimiter, reg *prometheus.Registry) chi.Router {
	r := chi.NewRouter()

	// Global middleware — applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	// Health check — no auth.
	r.Get("/health", healthHandler)

	// Operational metrics.
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/u/{owner}/api/v1/map/named", func(r chi.Router) {
		// Instantiation — public; the template's own auth policy applies.
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/{template_id}", named.Instantiate)
		})

		// Template administration — requires the owner's API key.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(keys))
			r.Post("/", templates.Create)
			r.Get("/", templates.List)
			r.Get("/{template_id}", templates.Get)
			r.Put("/{template_id}", templates.Update)
			r.Delete("/{template_id}", templates.Delete)
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
