package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval Prometheus metrics.
var (
	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval duration in seconds, embedding included",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	RetrievalCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Name:      "retrieval_candidates",
			Help:      "Number of candidates returned per retrieval",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers Prometheus retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(RetrievalCandidates)
	retrievalMetricsRegistered = true
}
