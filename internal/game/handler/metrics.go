package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scChallengesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "soundclue_challenges_created_total",
		Help: "Total challenges created.",
	})

	scRenderCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundclue_render_callbacks_total",
		Help: "Total render completion callbacks by provider status.",
	}, []string{"status"})

	scFinalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundclue_finalize_total",
		Help: "Total finalize attempts by outcome.",
	}, []string{"outcome"})

	scChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundclue_checks_total",
		Help: "Total judged player checks by kind and result.",
	}, []string{"check", "result"})

	scPendingBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "soundclue_pending_backlog",
		Help: "Challenges stuck in PENDING past the staleness threshold.",
	})

	scRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundclue_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	scRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "soundclue_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		scRequestsTotal.WithLabelValues(method, path, status).Inc()
		scRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordChallengeCreated increments the created-challenges counter.
func RecordChallengeCreated() {
	scChallengesCreatedTotal.Inc()
}

// RecordRenderCallback counts an inbound completion callback by status.
func RecordRenderCallback(status string) {
	scRenderCallbacksTotal.WithLabelValues(status).Inc()
}

// RecordFinalize counts a finalize attempt by outcome.
func RecordFinalize(outcome string) {
	scFinalizeTotal.WithLabelValues(outcome).Inc()
}

// RecordCheck counts a judged player check.
func RecordCheck(check string, success bool) {
	result := "miss"
	if success {
		result = "hit"
	}
	scChecksTotal.WithLabelValues(check, result).Inc()
}

// RecordPendingBacklog sets the stale-PENDING backlog gauge.
func RecordPendingBacklog(n float64) {
	scPendingBacklog.Set(n)
}
