package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptforge_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptforge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptforge_generations_total",
			Help: "Total number of prompt generations, by outcome.",
		},
		[]string{"kind", "outcome"},
	)

	QuotaRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promptforge_quota_rejections_total",
			Help: "Total number of generations rejected by the daily quota.",
		},
	)

	GeminiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptforge_gemini_request_duration_seconds",
			Help:    "Gemini API call duration in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GenerationsTotal,
		QuotaRejectionsTotal,
		GeminiRequestDuration,
	)
}
