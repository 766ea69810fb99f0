package redis

import (
	"github.com/redis/rueidis"

	"github.com/skryne/ragd/internal/index"
)

// NewForTest creates an Index with the provided rueidis client (test-only).
func NewForTest(c rueidis.Client, dim int, embedder string, metric index.Metric) *Index {
	return &Index{
		client: c,
		guard:  index.Guard{Dim: dim, Tag: embedder},
		metric: metric,
	}
}
