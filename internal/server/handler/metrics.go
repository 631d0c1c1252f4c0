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
	livelinkRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livelink_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	livelinkRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livelink_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	livelinkEventsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livelink_events_ingested_total",
		Help: "Total bridge events ingested by event type.",
	}, []string{"type"})

	livelinkLinkAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livelink_link_attempts_total",
		Help: "Total link attempts by outcome.",
	}, []string{"outcome"})

	livelinkReclaimsConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livelink_reclaims_consumed_total",
		Help: "Total reclaim requests consumed by a live event.",
	})
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

		livelinkRequestsTotal.WithLabelValues(method, path, status).Inc()
		livelinkRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordEventIngested records one ingested bridge event.
func RecordEventIngested(eventType string) {
	livelinkEventsIngestedTotal.WithLabelValues(eventType).Inc()
}

// RecordLinkAttempt records a link attempt outcome ("linked", "conflict",
// "no_event", "error").
func RecordLinkAttempt(outcome string) {
	livelinkLinkAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordReclaimConsumed records a consumed reclaim request.
func RecordReclaimConsumed() {
	livelinkReclaimsConsumedTotal.Inc()
}
