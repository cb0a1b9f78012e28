package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	alertsapi "github.com/good-yellow-bee/opswatch/internal/api/alerts"
	billingapi "github.com/good-yellow-bee/opswatch/internal/api/billing"
	casesapi "github.com/good-yellow-bee/opswatch/internal/api/cases"
	ingestapi "github.com/good-yellow-bee/opswatch/internal/api/ingest"
	"github.com/good-yellow-bee/opswatch/internal/api/middleware"
	statusapi "github.com/good-yellow-bee/opswatch/internal/api/status"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Create rate limiters
	ipLimiter := middleware.NewRateLimiter(s.config.RateLimitPerIP)
	actorLimiter := middleware.NewRateLimiter(s.config.RateLimitPerActor)

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.ResolveActor)
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.Recoverer)

	statusHandler := statusapi.NewHandler(s.deps.Counts, s.deps.Thresholds, s.config.WindowMinutes)
	alertsHandler := alertsapi.NewHandler(
		s.deps.Engine,
		s.deps.Storage.AlertStates(),
		s.deps.Storage.AlertEvents(),
		s.deps.Storage.Deliveries(),
		s.deps.Storage.Audit(),
		s.deps.AckTokens,
	)
	billingHandler := billingapi.NewHandler(s.deps.BillingStatus)
	casesHandler := casesapi.NewHandler(s.deps.Cases, s.deps.Events, s.deps.Storage.AlertEvents())
	ingestHandler := ingestapi.NewHandler(s.deps.Events, s.deps.Storage.Ledger())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Status (dashboard read model, ops role)
		r.Route("/status", func(r chi.Router) {
			r.Use(middleware.RequireOps)
			r.Use(middleware.RateLimitByActor(actorLimiter))
			r.Get("/rag", statusHandler.GetRag)
		})

		// Alerts
		r.Route("/alerts", func(r chi.Router) {
			// Acknowledgement link: the signed token is the
			// authorization, so only IP rate limiting applies.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitByIP(ipLimiter))
				r.Post("/events/{id}/ack", alertsHandler.Ack)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireOps)
				r.Use(middleware.RateLimitByActor(actorLimiter))
				r.Get("/", alertsHandler.List)
				r.Post("/evaluate", alertsHandler.Evaluate)
				r.Post("/{key}/snooze", alertsHandler.Snooze)
			})
		})

		// Billing support tooling
		r.Route("/billing", func(r chi.Router) {
			r.Use(middleware.RequireOps)
			r.Use(middleware.RateLimitByActor(actorLimiter))
			r.Get("/webhook-status/{requestID}", billingHandler.WebhookStatus)
			r.Post("/ledger/{requestID}", ingestHandler.Ledger)
		})

		// Incident cases
		r.Route("/cases", func(r chi.Router) {
			r.Use(middleware.RequireOps)
			r.Use(middleware.RateLimitByActor(actorLimiter))
			r.Get("/", casesHandler.List)
			r.Post("/", casesHandler.Touch)
			r.Route("/{requestID}", func(r chi.Router) {
				r.Get("/", casesHandler.Get)
				r.Post("/claim", casesHandler.Claim)
				r.Post("/release", casesHandler.Release)
				r.Put("/status", casesHandler.SetStatus)
				r.Put("/priority", casesHandler.SetPriority)
			})
		})

		// Event ingestion from collaborators
		r.Route("/events", func(r chi.Router) {
			r.Use(middleware.RequireOps)
			r.Use(middleware.RateLimitByActor(actorLimiter))
			r.Post("/", ingestHandler.Events)
		})
	})

	// Health and metrics (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
