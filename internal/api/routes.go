package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gluk-w/claworc/llm-router/internal/proxy"
)

// NewRouter wires the public routes, the provider passthrough and the admin
// API.
func NewRouter(s *Server, p *proxy.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(proxy.RequestIDMiddleware)

	// Health (no auth)
	r.Get("/health", HealthCheck)

	r.Post("/v1/complete", s.Complete)
	r.Get("/v1/models", s.ListModels)
	r.Get("/v1/providers", ListProviders)

	// Native provider APIs, e.g. /v1/anthropic/v1/messages
	r.Handle("/v1/{provider}/*", p)

	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuth)

		r.Get("/profiles", s.ListProfiles)
		r.Post("/profiles", s.AddProfile)
		r.Delete("/profiles/{id}", s.RemoveProfile)
		r.Post("/profiles/{id}/reset", s.ResetProfile)

		r.Get("/usage", s.GetUsage)
		r.Get("/usage/stats", s.GetUsageStats)
		r.Get("/usage/line", s.GetUsageLine)

		r.Get("/requests", ListRequests)
		r.Get("/requests/{id}/attempts", ListRequestAttempts)
		r.Get("/failures", GetFailureCounts)

		r.Post("/models/refresh", s.RefreshModels)
	})

	return r
}
