package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/embedgate/embedgate/internal/auth"
	"github.com/embedgate/embedgate/internal/metrics"
	"github.com/embedgate/embedgate/internal/ratelimit"
	"github.com/embedgate/embedgate/internal/token"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Gate      *token.Gate
	Tokens    TokenStore
	Agents    AgentStore
	Users     UserStore
	Auth      *auth.Service
	Limiter   *ratelimit.Limiter
	Retrieval QueryService
	Ingestor  Ingestor
	Collector EventRecorder
	Analytics AnalyticsReader
	Metrics   *metrics.Metrics

	// AllowedOrigins applies to the management API. The embed surface always
	// allows all origins; tokens carry their own origin policy.
	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(slogRequestLogger)

	// Handlers.
	embed := newEmbedHandler(deps.Gate, deps.Tokens, deps.Agents, deps.Retrieval, deps.Collector, deps.Metrics)
	agents := newAgentsHandler(deps.Agents, deps.Ingestor, deps.Retrieval, deps.Analytics)
	tokens := newTokensHandler(deps.Tokens, deps.Agents)
	accounts := newAuthHandler(deps.Users, deps.Auth, deps.Metrics)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Widget loader script.
	r.Get("/widget.js", WidgetHandler)

	// Public embed surface, hit by browsers from customer sites.
	r.Route("/v1/embed/{token}", func(er chi.Router) {
		er.Use(corsMiddleware([]string{"*"}))
		er.Use(metricsMiddleware(deps.Metrics, "embed"))

		er.Post("/query", embed.Query)
		er.Get("/info", embed.Info)
		er.Get("/config", embed.Config)
		er.Post("/feedback", embed.Feedback)
		er.Post("/analytics", embed.TrackLoad)
		er.Get("/conversation", embed.Conversation)
		er.Delete("/conversation", embed.ClearConversation)
	})

	// Management API.
	r.Route("/api/v1", func(ar chi.Router) {
		ar.Use(corsMiddleware(deps.AllowedOrigins))
		ar.Use(metricsMiddleware(deps.Metrics, "api"))

		// Account endpoints are the only unauthenticated ones.
		ar.Post("/auth/register", accounts.Register)
		ar.Post("/auth/login", accounts.Login)

		ar.Group(func(wr chi.Router) {
			wr.Use(auth.Middleware(deps.Auth))
			wr.Use(ratelimit.Middleware(deps.Limiter))

			wr.Get("/auth/me", accounts.Me)

			// Agent management.
			wr.Post("/agents", agents.Create)
			wr.Get("/agents", agents.List)
			wr.Get("/agents/{agentKey}", agents.Get)
			wr.Put("/agents/{agentKey}", agents.Update)
			wr.Delete("/agents/{agentKey}", agents.Delete)
			wr.Post("/agents/{agentKey}/ingest", agents.Ingest)
			wr.Post("/agents/{agentKey}/query", agents.Query)
			wr.Get("/agents/{agentKey}/analytics", agents.Analytics)

			// Embed token lifecycle.
			wr.Post("/tokens", tokens.Create)
			wr.Get("/tokens", tokens.List)
			wr.Get("/tokens/{publicToken}", tokens.Get)
			wr.Put("/tokens/{publicToken}", tokens.Update)
			wr.Delete("/tokens/{publicToken}", tokens.Delete)
			wr.Post("/tokens/{publicToken}/suspend", tokens.Suspend)
			wr.Post("/tokens/{publicToken}/revoke", tokens.Revoke)
			wr.Post("/tokens/{publicToken}/activate", tokens.Activate)
			wr.Get("/tokens/{publicToken}/usage", tokens.Usage)

			// Admin-only cross-workspace listings.
			wr.Route("/admin", func(adm chi.Router) {
				adm.Use(auth.AdminMiddleware(deps.Users))

				adm.Get("/agents", agents.AdminList)
				adm.Get("/tokens", tokens.AdminList)
			})
		})
	})

	// Operational endpoints.
	if deps.Metrics != nil {
		r.Get("/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP)
		r.Get("/metrics/summary", deps.Metrics.Handler())
	}

	return r
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}
