package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/campushub/calsync/internal/api"
	"github.com/campushub/calsync/internal/auth"
	"github.com/campushub/calsync/internal/config"
	"github.com/campushub/calsync/internal/http/csrf"
	"github.com/campushub/calsync/internal/http/ratelimit"
	"github.com/campushub/calsync/internal/metrics"
	"github.com/campushub/calsync/internal/store"
)

// NewRouter wires the calendar API, webhook ingress, and operational
// endpoints.
func NewRouter(cfg *config.Config, st *store.Store, sessions *auth.SessionManager, handler *api.Handler) http.Handler {
	r := chi.NewRouter()

	// OAuth endpoints: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	// Webhook ingress: 50 requests per second, burst of 100 (Google batches
	// notifications and retries aggressively)
	webhookRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(50), 100, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/api/calendar", func(r chi.Router) {
		// Push notifications carry no session; the per-channel token is the
		// authenticator.
		r.With(webhookRateLimiter.Middleware()).Post("/webhook", handler.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(sessions.RequireSession)
			r.Use(csrf.Middleware(cfg))

			r.With(authRateLimiter.Middleware()).Post("/connect", handler.Connect)
			r.With(authRateLimiter.Middleware()).Post("/callback", handler.Callback)

			r.Get("/status", handler.Status)
			r.Get("/events", handler.Events)
			r.Post("/sync", handler.Sync)
			r.Post("/watch", handler.Watch)
			r.Delete("/watch", handler.Unwatch)
			r.Post("/disconnect", handler.Disconnect)
		})
	})

	return r
}
