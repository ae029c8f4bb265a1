// Package metrics provides Prometheus instrumentation for the share
// analytics engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RefreshTotal counts aggregate refresh cycles by mode and outcome.
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharescan_refresh_total",
		Help: "Total aggregate refresh cycles",
	}, []string{"mode", "outcome"})

	// RefreshDuration tracks refresh latency by mode.
	RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sharescan_refresh_duration_seconds",
		Help:    "Aggregate refresh duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	// TradesApplied counts trades folded into the aggregates.
	TradesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharescan_trades_applied_total",
		Help: "Trades folded into aggregate state",
	})

	// DuplicateTrades counts trades skipped because their transaction
	// hash was already applied.
	DuplicateTrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharescan_duplicate_trades_total",
		Help: "Trades skipped as already-applied duplicates",
	})

	// StaleJoinRetries counts composer retries due to diverged aggregate
	// version stamps.
	StaleJoinRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharescan_stale_join_retries_total",
		Help: "Snapshot composer retries due to version divergence",
	})

	// NegativeHoldings counts rejected batches that would drive a net
	// position below zero.
	NegativeHoldings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharescan_negative_holdings_total",
		Help: "Batches rejected by the non-negative-holdings check",
	})

	// SnapshotVersion exposes the currently served aggregate version.
	SnapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sharescan_snapshot_version",
		Help: "Version stamp of the currently served snapshot",
	})

	// TradesIngested counts trades accepted at the ingest boundary.
	TradesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharescan_trades_ingested_total",
		Help: "Trades durably recorded by the ingest endpoint",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sharescan_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharescan_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sharescan_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		// The pattern is only populated after routing, so read it after the
		// handler has run.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
