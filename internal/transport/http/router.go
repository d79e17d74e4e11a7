// Package httptransport assembles the public HTTP surface: middleware chain,
// payment routes, health and metrics endpoints.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payflow/internal/payment/handler"
	"payflow/internal/platform/metrics"
	"payflow/internal/platform/middleware"
	"payflow/pkg/platform/httputil"
)

// Config carries everything the router needs beyond the handlers themselves.
type Config struct {
	Payments       *handler.Handler
	Health         *HealthHandler
	TokenValidator middleware.TokenValidator
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Version        string
	RequestTimeout time.Duration
}

// NewRouter builds the full application router. Authenticated payment routes
// live under /api/v1/payments; health, metrics and the banner stay open.
func NewRouter(cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.ContentTypeJSON)
	if cfg.Metrics != nil {
		r.Use(middleware.LatencyMiddleware(cfg.Metrics))
	}

	r.Get("/", banner(cfg.Version))
	r.Get("/health", cfg.Health.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(cfg.TokenValidator, cfg.Logger))
		r.Route("/payments", cfg.Payments.Register)
	})

	return r
}

func banner(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"name":      "payflow",
			"version":   version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
