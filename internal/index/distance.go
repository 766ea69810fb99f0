package index

import (
	"fmt"
	"math"

	"github.com/skryne/ragd/internal/domain"
)

// Metric selects how distance between vectors is computed. Lower is always
// closer, for both metrics.
type Metric string

const (
	// MetricCosine is 1 - cosine similarity, in [0, 2].
	MetricCosine Metric = "cosine"
	// MetricL2 is squared euclidean distance. The square root is skipped;
	// it does not change the ordering.
	MetricL2 Metric = "l2"
)

// ParseMetric maps a config string to a Metric. Empty selects cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricL2:
		return Metric(s), nil
	case "":
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q: %w", s, domain.ErrInvalidConfig)
	}
}

// Distance computes the metric between two equal-length vectors. Length
// agreement is the caller's responsibility.
func (m Metric) Distance(a, b []float32) float64 {
	if m == MetricL2 {
		return squaredL2(a, b)
	}
	return cosineDistance(a, b)
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		// zero vector has no direction; treat it as orthogonal
		return 1
	}
	return 1 - dot/math.Sqrt(na*nb)
}
