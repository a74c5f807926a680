package rest

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/attendance-analytics-engine/internal/metrics"
)

// Config holds router settings
type Config struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64

	// Limiter is applied to the analytics routes when set
	Limiter KeyedLimiter
	// ClientIP keys the limiter; nil trusts no forwarding headers
	ClientIP *ClientIPResolver

	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer    prometheus.Gatherer
	HTTPMetrics *HTTPMetrics
	Metrics     *metrics.Registry
}

// NewRouter builds the HTTP handler for the service
func NewRouter(cfg Config, h *Handlers, logger *zap.Logger) http.Handler {
	logger = logger.Named("http")
	mux := http.NewServeMux()

	api := NewMiddlewareChain(
		TracingMiddleware(telemetry.Tracer("attendance-analytics/http")),
		MetricsMiddleware(cfg.HTTPMetrics, cfg.Metrics),
		RateLimitMiddleware(cfg.Limiter, cfg.ClientIP, logger),
		BodyLimitMiddleware(cfg.MaxBodyBytes),
		TimeoutMiddleware(cfg.RequestTimeout),
	)
	mux.Handle("POST /v1/analytics/runs", api.Then(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /v1/analytics/runs", api.Then(http.HandlerFunc(h.QueryRun)))

	probe := NewMiddlewareChain(MetricsMiddleware(cfg.HTTPMetrics, nil))
	mux.Handle("GET /health", probe.Then(http.HandlerFunc(h.Health)))
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return NewMiddlewareChain(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		RequestLoggingMiddleware(logger, cfg.ClientIP),
	).Then(mux)
}
