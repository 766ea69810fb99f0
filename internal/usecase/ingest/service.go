// Package ingest turns raw documents into indexed chunk vectors: split,
// embed, insert. Re-indexing is the only way chunks are ever destroyed.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/index"
)

// DefaultParallelism bounds concurrent embedding calls during ingestion.
const DefaultParallelism = 4

// Option configures the service.
type Option func(*Service)

// WithParallelism sets how many chunks embed concurrently.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithProgress installs a per-chunk progress callback.
func WithProgress(fn Progress) Option {
	return func(s *Service) { s.progress = fn }
}

// Service runs the ingestion pipeline against one index.
type Service struct {
	source      DocumentSource
	splitter    Splitter
	embedder    domain.Embedder
	idx         index.Index
	logger      *zap.Logger
	parallelism int
	progress    Progress
}

// New creates the ingestion service.
func New(
	source DocumentSource,
	splitter Splitter,
	embedder domain.Embedder,
	idx index.Index,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		source:      source,
		splitter:    splitter,
		embedder:    embedder,
		idx:         idx,
		logger:      logger,
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestDocuments chunks and indexes the given documents. Chunks embed with
// bounded parallelism but insert in deterministic order; a document yielding
// zero chunks is counted as skipped, not failed. Any embedding or insertion
// error aborts the run.
func (s *Service) IngestDocuments(ctx context.Context, docs []domain.Document) (Summary, error) {
	var summary Summary
	var chunks []domain.Chunk

	for _, doc := range docs {
		split, err := s.splitter.Split(doc.Text, doc.ID)
		if err != nil {
			return Summary{}, fmt.Errorf("split %s: %w", doc.ID, err)
		}
		if len(split) == 0 {
			summary.Skipped++
			continue
		}
		summary.Documents++
		chunks = append(chunks, split...)
	}

	if len(chunks) == 0 {
		return summary, nil
	}

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return Summary{}, err
	}

	for i, chunk := range chunks {
		if err := s.idx.Insert(ctx, chunk, vectors[i]); err != nil {
			return Summary{}, fmt.Errorf("insert %s#%d: %w", chunk.Source, chunk.Seq, err)
		}
	}
	summary.Chunks = len(chunks)

	s.logger.Info("ingested documents",
		zap.Int("documents", summary.Documents),
		zap.Int("chunks", summary.Chunks),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// Reindex rebuilds the index from the document source. Everything previously
// stored is dropped first; a corpus with nothing usable in it is an error so
// a misconfigured documents path cannot silently produce an empty index.
func (s *Service) Reindex(ctx context.Context) (Summary, error) {
	docs, err := s.source.Load()
	if err != nil {
		return Summary{}, fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return Summary{}, fmt.Errorf("no documents to process: %w", domain.ErrEmptyDocument)
	}

	if err := s.idx.Reset(ctx); err != nil {
		return Summary{}, fmt.Errorf("reset index: %w", err)
	}

	summary, err := s.IngestDocuments(ctx, docs)
	if err != nil {
		return Summary{}, err
	}
	if summary.Documents == 0 {
		return Summary{}, fmt.Errorf("no usable documents: %w", domain.ErrEmptyDocument)
	}
	return summary, nil
}

// embedChunks embeds all chunks with bounded parallelism, preserving order.
func (s *Service) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	var done int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			result, err := s.embedder.Embed(gctx, chunk.Text)
			if err != nil {
				return fmt.Errorf("embed %s#%d: %w", chunk.Source, chunk.Seq, err)
			}
			vectors[i] = result.Vector

			if s.progress != nil {
				mu.Lock()
				done++
				s.progress(done, len(chunks))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
