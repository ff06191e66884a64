package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsServer serves Prometheus metrics on a separate port.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics HTTP server serving the Prometheus handler
// at the given path on the given port.
func NewMetricsServer(port int, path string, provider *Provider) *MetricsServer {
	mux := http.NewServeMux()

	if provider != nil && provider.promExporter != nil {
		mux.Handle(path, promhttp.Handler())
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

// Start begins serving metrics in a blocking call.
// Returns http.ErrServerClosed on graceful shutdown.
func (ms *MetricsServer) Start() error {
	slog.Info("Starting metrics server", "addr", ms.server.Addr)
	return ms.server.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// LoginMetrics counts login outcomes and counter store fallbacks.
type LoginMetrics struct {
	attempts  metric.Int64Counter
	fallbacks metric.Int64Counter
}

// NewLoginMetrics registers the login instruments on mp, or on the global
// meter provider when mp is nil.
func NewLoginMetrics(mp metric.MeterProvider) (*LoginMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("loginguard/login")

	attempts, err := meter.Int64Counter(
		"login.attempts",
		metric.WithDescription("Login attempts by outcome and rejection reason"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	fallbacks, err := meter.Int64Counter(
		"counter.fallbacks",
		metric.WithDescription("Counter store calls served by the local fallback"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	return &LoginMetrics{attempts: attempts, fallbacks: fallbacks}, nil
}

// RecordLogin counts one finished attempt. reason is empty unless the attempt
// was rejected by the throttle.
func (m *LoginMetrics) RecordLogin(ctx context.Context, outcome, reason string) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	))
}

// RecordFallback counts one store operation that fell back to local state.
// Its signature matches counter.FallbackHook.
func (m *LoginMetrics) RecordFallback(ctx context.Context, op string) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}
