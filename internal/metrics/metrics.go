// Package metrics provides Prometheus instrumentation for the Revlens engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "revlens",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "revlens",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EvaluationsTotal counts risk evaluations by outcome (ok, degraded, error).
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "revlens",
			Name:      "evaluations_total",
			Help:      "Total risk evaluations by outcome.",
		},
		[]string{"outcome"},
	)

	// EvaluationDuration observes end-to-end evaluation latency.
	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "revlens",
			Name:      "evaluation_duration_seconds",
			Help:      "Risk evaluation duration in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// AIDetectionsTotal counts AI detector calls by result (ok, timeout, error, parse_fallback).
	AIDetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "revlens",
			Name:      "ai_detections_total",
			Help:      "Total AI-assisted detection calls by result.",
		},
		[]string{"result"},
	)

	// EarlyWarningSignalsTotal counts emitted early-warning signals by kind.
	EarlyWarningSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "revlens",
			Name:      "early_warning_signals_total",
			Help:      "Total early-warning signals emitted by kind.",
		},
		[]string{"kind"},
	)

	// SimulationsTotal counts simulation runs by result.
	SimulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "revlens",
			Name:      "simulations_total",
			Help:      "Total what-if simulations by result.",
		},
		[]string{"result"},
	)

	// RollupOpportunities observes how many opportunities each rollup covered.
	RollupOpportunities = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "revlens",
			Name:      "rollup_opportunities",
			Help:      "Opportunities covered per revenue-at-risk or quota rollup.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "revlens", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "revlens", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "revlens", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})

	// Goroutines tracks the current goroutine count.
	Goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "revlens", Name: "goroutines",
		Help: "Current number of goroutines.",
	})

	// ActiveWebSocketClients tracks connected warning-feed subscribers.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "revlens", Name: "websocket_clients",
		Help: "Connected live warning-feed WebSocket clients.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EvaluationsTotal,
		EvaluationDuration,
		AIDetectionsTotal,
		EarlyWarningSignalsTotal,
		SimulationsTotal,
		RollupOpportunities,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		Goroutines,
		ActiveWebSocketClients,
	)
}

// Handler returns the Prometheus scrape endpoint as a gin handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware instruments every request with count and duration metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := statusLabel(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// CollectDBStats samples connection-pool gauges from the database until ctx ends.
// No-op when db is nil (in-memory mode).
func CollectDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			Goroutines.Set(float64(runtime.NumGoroutine()))
		case <-ctx.Done():
			return
		}
	}
}

func statusLabel(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
