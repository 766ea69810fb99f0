// Package retriever turns a natural-language query into ranked chunk
// candidates: embed, search, rank.
package retriever

import (
	"context"
	"time"

	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/index"
	"github.com/skryne/ragd/internal/metrics"
)

// DefaultTopK is the candidate count used when the caller supplies none.
const DefaultTopK = 10

// Op constants label the retrieval step an error came from.
const (
	OpEmbed  = "embed"
	OpSearch = "search"
)

// Error wraps an underlying error with the retrieval step for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Option configures a Retriever.
type Option func(*Retriever)

// WithMaxDistance drops candidates farther than d. Zero keeps everything;
// recall beats noise for grounded generation, so the cutoff is opt-in.
func WithMaxDistance(d float64) Option {
	return func(r *Retriever) { r.maxDistance = d }
}

// Retriever embeds queries with one fixed embedder and searches one index.
type Retriever struct {
	idx         index.Index
	embedder    domain.Embedder
	maxDistance float64
}

// New creates a retriever over the given index and query embedder.
func New(idx index.Index, embedder domain.Embedder, opts ...Option) *Retriever {
	r := &Retriever{idx: idx, embedder: embedder}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the k closest chunks ranked 1..n by ascending distance.
// k below 1 is promoted to 1; an index holding fewer than k chunks yields
// fewer candidates. An empty index is an error, not an empty result, so the
// caller can tell "no knowledge loaded" apart from a thin match.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	if k < 1 {
		k = 1
	}

	start := time.Now()

	count, err := r.idx.Count(ctx)
	if err != nil {
		return nil, &Error{Op: OpSearch, Err: err}
	}
	if count == 0 {
		return nil, &Error{Op: OpSearch, Err: domain.ErrEmptyIndex}
	}

	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &Error{Op: OpEmbed, Err: err}
	}

	hits, err := r.idx.Search(ctx, emb.Vector, r.embedder.Identifier(), k)
	if err != nil {
		return nil, &Error{Op: OpSearch, Err: err}
	}

	candidates := make([]domain.Candidate, 0, len(hits))
	for i, h := range hits {
		if r.maxDistance > 0 && h.Distance > r.maxDistance {
			// hits ascend, everything after is farther still
			break
		}
		candidates = append(candidates, domain.Candidate{Chunk: h.Chunk, Distance: h.Distance, Rank: i + 1})
	}

	metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	metrics.RetrievalCandidates.Observe(float64(len(candidates)))

	return candidates, nil
}
