// Package metrics provides Prometheus instrumentation for the compliance engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "compliance",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "compliance",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RiskChecksTotal counts entity risk checks by outcome (passed/failed/fallback).
	RiskChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "compliance",
			Subsystem: "screening",
			Name:      "checks_total",
			Help:      "Total entity risk checks by outcome.",
		},
		[]string{"outcome"},
	)

	// CacheLookupsTotal counts risk cache lookups by result (hit/miss/coalesced).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "compliance",
			Subsystem: "screening",
			Name:      "cache_lookups_total",
			Help:      "Risk score cache lookups by result.",
		},
		[]string{"result"},
	)

	// FlushesTotal counts monitoring batch flushes by result (success/failure).
	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "compliance",
			Subsystem: "monitoring",
			Name:      "flushes_total",
			Help:      "Monitoring batch flush attempts by result.",
		},
		[]string{"result"},
	)

	// FlushBatchSize observes the number of entries per flush attempt.
	FlushBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "compliance",
			Subsystem: "monitoring",
			Name:      "flush_batch_size",
			Help:      "Entries per monitoring flush attempt.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// AlertsIngestedTotal counts alerts merged into the local cache by severity.
	AlertsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "compliance",
			Subsystem: "monitoring",
			Name:      "alerts_ingested_total",
			Help:      "Alerts merged into the local alert cache by severity.",
		},
		[]string{"severity"},
	)

	// RemoteCallDuration observes outbound compliance API latency by endpoint and status.
	RemoteCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "compliance",
			Name:      "remote_call_duration_seconds",
			Help:      "Outbound compliance API call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	// PendingEntries tracks the current depth of the monitoring buffer.
	PendingEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "compliance",
			Subsystem: "monitoring",
			Name:      "pending_entries",
			Help:      "Entries currently buffered for upload.",
		},
	)

	// FeedClients tracks connected alert feed subscribers.
	FeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "compliance",
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Currently connected alert feed clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RiskChecksTotal,
		CacheLookupsTotal,
		FlushesTotal,
		FlushBatchSize,
		AlertsIngestedTotal,
		RemoteCallDuration,
		PendingEntries,
		FeedClients,
	)
}

// Handler returns the Prometheus scrape handler for GET /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware instruments gin requests with request counts and latency.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).
			Observe(time.Since(start).Seconds())
	}
}

// ObserveRemoteCall records one outbound API call.
func ObserveRemoteCall(endpoint, status string, d time.Duration) {
	RemoteCallDuration.WithLabelValues(endpoint, status).Observe(d.Seconds())
}
