package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/index"
)

// --- Mocks ---

type mockIndex struct {
	hits      []index.Hit
	searchErr error
	count     int
	countErr  error

	searchCalled bool
	lastEmbedder string
	lastK        int
}

func (m *mockIndex) Insert(_ context.Context, _ domain.Chunk, _ []float32) error { return nil }

func (m *mockIndex) Search(_ context.Context, _ []float32, embedder string, k int) ([]index.Hit, error) {
	m.searchCalled = true
	m.lastEmbedder = embedder
	m.lastK = k
	return m.hits, m.searchErr
}

func (m *mockIndex) Count(_ context.Context) (int, error) { return m.count, m.countErr }
func (m *mockIndex) Reset(_ context.Context) error        { return nil }
func (m *mockIndex) Embedder() string                     { return "mock/embedder/3" }
func (m *mockIndex) Dimension() int                       { return 3 }
func (m *mockIndex) Close() error                         { return nil }

type mockEmbedder struct {
	vec    []float32
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.called = true
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Vector: m.vec}, nil
}

func (m *mockEmbedder) Identifier() string { return "mock/embedder/3" }

func hit(text string, d float64) index.Hit {
	return index.Hit{Chunk: domain.Chunk{Text: text, Source: "doc.txt"}, Distance: d}
}

// --- Tests ---

func TestRetrieve_RanksCandidates(t *testing.T) {
	idx := &mockIndex{
		count: 3,
		hits:  []index.Hit{hit("closest", 0.1), hit("middle", 0.4), hit("farthest", 0.9)},
	}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	r := New(idx, emb)

	cands, err := r.Retrieve(context.Background(), "what is this", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(cands))
	}
	for i, c := range cands {
		if c.Rank != i+1 {
			t.Errorf("candidate %d: expected rank %d, got %d", i, i+1, c.Rank)
		}
	}
	if cands[0].Chunk.Text != "closest" || cands[2].Chunk.Text != "farthest" {
		t.Errorf("unexpected ordering: %+v", cands)
	}
	if !emb.called {
		t.Error("expected the query to be embedded")
	}
	if idx.lastEmbedder != "mock/embedder/3" {
		t.Errorf("expected the embedder identifier to travel with the query, got %q", idx.lastEmbedder)
	}
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	idx := &mockIndex{count: 0}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	r := New(idx, emb)

	_, err := r.Retrieve(context.Background(), "anything", 5)
	if !errors.Is(err, domain.ErrEmptyIndex) {
		t.Fatalf("expected ErrEmptyIndex, got %v", err)
	}
	if emb.called {
		t.Error("empty index must be detected before spending an embedding call")
	}
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Op != OpSearch {
		t.Errorf("expected search-op error, got %v", err)
	}
}

func TestRetrieve_EmbedFailure(t *testing.T) {
	idx := &mockIndex{count: 5}
	emb := &mockEmbedder{err: domain.ErrEmbeddingUnavailable}
	r := New(idx, emb)

	_, err := r.Retrieve(context.Background(), "anything", 5)
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Op != OpEmbed {
		t.Errorf("expected embed-op error, got %v", err)
	}
	if idx.searchCalled {
		t.Error("search must not run after a failed embedding")
	}
}

func TestRetrieve_MismatchPassesThrough(t *testing.T) {
	idx := &mockIndex{count: 5, searchErr: domain.NewEmbedderMismatch("a/b/3", "mock/embedder/3")}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	r := New(idx, emb)

	_, err := r.Retrieve(context.Background(), "anything", 5)
	if !errors.Is(err, domain.ErrEmbedderMismatch) {
		t.Fatalf("expected ErrEmbedderMismatch through the op wrapper, got %v", err)
	}
}

func TestRetrieve_KClampedToOne(t *testing.T) {
	idx := &mockIndex{count: 5, hits: []index.Hit{hit("only", 0.2)}}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	r := New(idx, emb)

	cands, err := r.Retrieve(context.Background(), "anything", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.lastK != 1 {
		t.Errorf("expected k promoted to 1, got %d", idx.lastK)
	}
	if len(cands) != 1 {
		t.Errorf("expected 1 candidate, got %d", len(cands))
	}
}

func TestRetrieve_FewerThanK(t *testing.T) {
	idx := &mockIndex{count: 2, hits: []index.Hit{hit("a", 0.1), hit("b", 0.2)}}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	r := New(idx, emb)

	cands, err := r.Retrieve(context.Background(), "anything", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(cands))
	}
}

func TestRetrieve_MaxDistanceCutoff(t *testing.T) {
	idx := &mockIndex{
		count: 3,
		hits:  []index.Hit{hit("near", 0.1), hit("ok", 0.45), hit("far", 0.9)},
	}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	r := New(idx, emb, WithMaxDistance(0.5))

	cands, err := r.Retrieve(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected cutoff to keep 2 candidates, got %d", len(cands))
	}
	if cands[1].Rank != 2 {
		t.Errorf("ranks must stay contiguous after the cutoff, got %d", cands[1].Rank)
	}
}
