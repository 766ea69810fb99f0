// Package memory implements an in-process brute-force vector index. Every
// query scans all stored vectors, which is the right trade for corpora in the
// tens of thousands of chunks and keeps the driver dependency-free.
package memory

import (
	"container/heap"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/index"
)

type record struct {
	chunk  domain.Chunk
	vector []float32
}

// Index keeps chunks and vectors in a flat slice guarded by an RWMutex, so
// searches run concurrently and writes block them only while appending.
type Index struct {
	guard  index.Guard
	metric index.Metric

	mu      sync.RWMutex
	records []record
}

var _ index.Index = (*Index)(nil)

// New creates an empty index tagged with the given embedder identifier.
func New(dimension int, embedder string, metric index.Metric) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d: %w", dimension, domain.ErrInvalidConfig)
	}
	if embedder == "" {
		return nil, fmt.Errorf("embedder identifier is required: %w", domain.ErrInvalidConfig)
	}
	return &Index{
		guard:  index.Guard{Dim: dimension, Tag: embedder},
		metric: metric,
	}, nil
}

// Insert stores one chunk. The vector is copied; callers may reuse their slice.
func (i *Index) Insert(_ context.Context, chunk domain.Chunk, vector []float32) error {
	if err := i.guard.CheckVector(vector); err != nil {
		return fmt.Errorf("insert %s#%d: %w", chunk.Source, chunk.Seq, err)
	}
	i.mu.Lock()
	i.records = append(i.records, record{chunk: chunk, vector: slices.Clone(vector)})
	i.mu.Unlock()
	return nil
}

// Search scans every record and keeps the k closest in a bounded max-heap.
func (i *Index) Search(_ context.Context, vector []float32, embedder string, k int) ([]index.Hit, error) {
	if err := i.guard.CheckEmbedder(embedder); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if err := i.guard.CheckVector(vector); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if k < 1 {
		return nil, fmt.Errorf("search: k must be positive, got %d", k)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	top := &topK{}
	heap.Init(top)
	for _, rec := range i.records {
		d := i.metric.Distance(vector, rec.vector)
		switch {
		case top.Len() < k:
			heap.Push(top, index.Hit{Chunk: rec.chunk, Distance: d})
		case d < top.hits[0].Distance:
			top.hits[0] = index.Hit{Chunk: rec.chunk, Distance: d}
			heap.Fix(top, 0)
		}
	}

	// pop order is farthest-first; fill the result back to front
	hits := make([]index.Hit, top.Len())
	for n := top.Len() - 1; n >= 0; n-- {
		hits[n] = heap.Pop(top).(index.Hit)
	}
	return hits, nil
}

// Count reports the number of stored chunks.
func (i *Index) Count(_ context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.records), nil
}

// Reset drops all records, keeping the tag and dimension.
func (i *Index) Reset(_ context.Context) error {
	i.mu.Lock()
	i.records = nil
	i.mu.Unlock()
	return nil
}

// Embedder returns the identifier the index is tagged with.
func (i *Index) Embedder() string { return i.guard.Tag }

// Dimension returns the vector length the index accepts.
func (i *Index) Dimension() int { return i.guard.Dim }

// Close is a no-op; the index holds no external resources.
func (i *Index) Close() error { return nil }

// topK is a max-heap keyed on distance, so the worst of the kept hits sits
// at the root and is the one evicted by a closer record.
type topK struct {
	hits []index.Hit
}

func (h *topK) Len() int           { return len(h.hits) }
func (h *topK) Less(a, b int) bool { return h.hits[a].Distance > h.hits[b].Distance }
func (h *topK) Swap(a, b int)      { h.hits[a], h.hits[b] = h.hits[b], h.hits[a] }

func (h *topK) Push(x any) { h.hits = append(h.hits, x.(index.Hit)) }

func (h *topK) Pop() any {
	last := len(h.hits) - 1
	hit := h.hits[last]
	h.hits = h.hits[:last]
	return hit
}
