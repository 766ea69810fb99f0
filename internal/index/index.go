// Package index defines the vector index contract shared by all drivers.
package index

import (
	"context"

	"github.com/skryne/ragd/internal/domain"
)

// Hit is one scored search result. Distance is metric-dependent and only
// comparable within a single index.
type Hit struct {
	Chunk    domain.Chunk
	Distance float64
}

// Index stores chunk vectors produced by exactly one embedder and serves
// nearest-neighbor queries over them. Implementations must allow concurrent
// searches; writes may be exclusive, but only for their own duration.
type Index interface {
	// Insert adds one chunk with its vector. The vector length must match
	// Dimension exactly; nothing is truncated or padded.
	Insert(ctx context.Context, chunk domain.Chunk, vector []float32) error
	// Search returns up to k hits ordered by ascending distance. embedder
	// identifies the embedder that produced the query vector and must match
	// the index tag, otherwise no results are returned at all.
	Search(ctx context.Context, vector []float32, embedder string, k int) ([]Hit, error)
	// Count reports the number of stored chunks.
	Count(ctx context.Context) (int, error)
	// Reset drops every stored chunk, keeping the tag and dimension.
	Reset(ctx context.Context) error
	// Embedder returns the identifier the index is tagged with.
	Embedder() string
	// Dimension returns the vector length the index accepts.
	Dimension() int
	Close() error
}

// Guard carries the identity every driver validates vectors against before
// touching storage. A query embedded by anything other than the tagged
// embedder must be rejected, never answered with garbage distances.
type Guard struct {
	Dim int
	Tag string
}

// CheckVector rejects vectors of the wrong dimension.
func (g Guard) CheckVector(v []float32) error {
	if len(v) != g.Dim {
		return domain.NewDimensionMismatch(g.Dim, len(v))
	}
	return nil
}

// CheckEmbedder rejects vectors from a foreign embedder.
func (g Guard) CheckEmbedder(embedder string) error {
	if embedder != g.Tag {
		return domain.NewEmbedderMismatch(g.Tag, embedder)
	}
	return nil
}
