package metrics

import "github.com/prometheus/client_golang/prometheus"

// Generation Prometheus metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"model", "mode", "status"}, // mode: "blocking" / "stream"
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Name:      "generation_request_duration_seconds",
			Help:      "Generation request duration in seconds, stream setup only for streaming",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"model", "mode"},
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "generation_tokens_total",
			Help:      "Total generation tokens consumed",
		},
		[]string{"model", "type"},
	)
)

var genMetricsRegistered bool

// RegisterGenerationMetrics registers Prometheus generation metrics. Must be called once from main.
func RegisterGenerationMetrics() {
	if genMetricsRegistered {
		return
	}
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(GenerationTokensTotal)
	genMetricsRegistered = true
}
