// Package metrics provides Prometheus instrumentation for the guardian service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guardian"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RiskAssessmentsTotal counts served assessments by model and level.
	RiskAssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_assessments_total",
			Help:      "Risk assessments served, by computing model and risk level.",
		},
		[]string{"model", "level"},
	)

	// ProviderFallbacksTotal counts why the provider path was abandoned.
	ProviderFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Risk assessments served by the fallback heuristic, by reason.",
		},
		[]string{"reason"},
	)

	// ProviderCallDuration observes risk provider round trips.
	ProviderCallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_call_duration_seconds",
		Help:      "Risk provider call duration in seconds.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 12, 20},
	})

	// TTSRequestsTotal counts speech proxy outcomes.
	TTSRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_requests_total",
			Help:      "Text-to-speech requests by result (audio, fallback, rejected, not_configured).",
		},
		[]string{"result"},
	)

	// RateLimitRejectionsTotal counts requests refused by the rate governor.
	RateLimitRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_rejections_total",
		Help:      "Requests rejected by the rate governor.",
	})

	// MemoryWritesTotal counts memory record saves by result.
	MemoryWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_writes_total",
			Help:      "Memory record writes by result (ok, error).",
		},
		[]string{"result"},
	)

	// ProviderConfigured is 1 when the named provider has a usable credential.
	ProviderConfigured = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "provider_configured",
		Help:      "Whether a provider has a non-placeholder credential (1) or not (0).",
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RiskAssessmentsTotal,
		ProviderFallbacksTotal,
		ProviderCallDuration,
		TTSRequestsTotal,
		RateLimitRejectionsTotal,
		MemoryWritesTotal,
		ProviderConfigured,
	)
}

// SetProviderConfigured records whether provider has a usable credential.
func SetProviderConfigured(provider string, configured bool) {
	v := 0.0
	if configured {
		v = 1
	}
	ProviderConfigured.WithLabelValues(provider).Set(v)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath() // route pattern, not actual path
		if path == "" {
			path = "unmatched"
		}
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, path))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
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
