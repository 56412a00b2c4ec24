// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicemail_http_requests_total",
			Help: "HTTP requests handled, by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicemail_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	webhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicemail_webhooks_total",
			Help: "Webhook deliveries by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	enrichmentStagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicemail_enrichment_stages_total",
			Help: "Enrichment pipeline stage results.",
		},
		[]string{"stage", "outcome"},
	)

	enrichmentQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicemail_enrichment_queue_depth",
		Help: "Enrichment jobs waiting for a worker.",
	})
)

// Webhook outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Middleware records request count and latency keyed by the matched gin
// route, so path parameters do not blow up label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func ObserveWebhook(kind, outcome string) {
	webhooksTotal.WithLabelValues(kind, outcome).Inc()
}

func ObserveEnrichmentStage(stage, outcome string) {
	enrichmentStagesTotal.WithLabelValues(stage, outcome).Inc()
}

func SetQueueDepth(n int) {
	enrichmentQueueDepth.Set(float64(n))
}
