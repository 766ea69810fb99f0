package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/index"
)

const testEmbedder = "test/embedder/3"

func newIndex(t *testing.T, metric index.Metric) *Index {
	t.Helper()
	idx, err := New(3, testEmbedder, metric)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return idx
}

func chunkN(n int) domain.Chunk {
	return domain.Chunk{Text: fmt.Sprintf("chunk %d", n), Source: "doc.txt", Seq: n}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(0, testEmbedder, index.MetricCosine); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("zero dimension: expected ErrInvalidConfig, got %v", err)
	}
	if _, err := New(3, "", index.MetricCosine); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("empty embedder: expected ErrInvalidConfig, got %v", err)
	}
}

func TestInsert_DimensionMismatch(t *testing.T) {
	idx := newIndex(t, index.MetricCosine)

	err := idx.Insert(context.Background(), chunkN(0), []float32{1, 2})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	var dimErr *domain.DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatal("expected *DimensionMismatchError in chain")
	}
	if dimErr.Want != 3 || dimErr.Got != 2 {
		t.Errorf("expected want=3 got=2, have %+v", dimErr)
	}

	if n, _ := idx.Count(context.Background()); n != 0 {
		t.Errorf("rejected insert must not be stored, count=%d", n)
	}
}

func TestSearch_AscendingDistances(t *testing.T) {
	idx := newIndex(t, index.MetricCosine)
	ctx := context.Background()

	vectors := [][]float32{
		{0, 1, 0},     // orthogonal to the query
		{1, 0, 0},     // exact direction
		{1, 1, 0},     // in between
		{-1, 0, 0},    // opposite
		{0.9, 0.1, 0}, // near
	}
	for n, v := range vectors {
		if err := idx.Insert(ctx, chunkN(n), v); err != nil {
			t.Fatalf("insert %d: %v", n, err)
		}
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, testEmbedder, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 5 {
		t.Fatalf("expected 5 hits, got %d", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("distances not ascending at %d: %v then %v", i, hits[i-1].Distance, hits[i].Distance)
		}
	}
	if hits[0].Chunk.Seq != 1 {
		t.Errorf("expected exact-direction vector first, got seq %d", hits[0].Chunk.Seq)
	}
	if hits[len(hits)-1].Chunk.Seq != 3 {
		t.Errorf("expected opposite vector last, got seq %d", hits[len(hits)-1].Chunk.Seq)
	}
	if hits[0].Distance > 1e-6 {
		t.Errorf("identical direction should have ~0 distance, got %v", hits[0].Distance)
	}
}

func TestSearch_L2Ordering(t *testing.T) {
	idx := newIndex(t, index.MetricL2)
	ctx := context.Background()

	idx.Insert(ctx, chunkN(0), []float32{5, 0, 0})
	idx.Insert(ctx, chunkN(1), []float32{1, 0, 0})
	idx.Insert(ctx, chunkN(2), []float32{3, 0, 0})

	hits, err := idx.Search(ctx, []float32{0, 0, 0}, testEmbedder, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantSeq := []int{1, 2, 0}
	wantDist := []float64{1, 9, 25}
	for i, h := range hits {
		if h.Chunk.Seq != wantSeq[i] {
			t.Errorf("hit %d: expected seq %d, got %d", i, wantSeq[i], h.Chunk.Seq)
		}
		if h.Distance != wantDist[i] {
			t.Errorf("hit %d: expected squared distance %v, got %v", i, wantDist[i], h.Distance)
		}
	}
}

func TestSearch_KBounds(t *testing.T) {
	idx := newIndex(t, index.MetricCosine)
	ctx := context.Background()

	for n := 0; n < 4; n++ {
		idx.Insert(ctx, chunkN(n), []float32{float32(n + 1), 1, 0})
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, testEmbedder, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 4 {
		t.Errorf("k above count: expected 4 hits, got %d", len(hits))
	}

	hits, err = idx.Search(ctx, []float32{1, 0, 0}, testEmbedder, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected exactly 2 hits, got %d", len(hits))
	}

	if _, err = idx.Search(ctx, []float32{1, 0, 0}, testEmbedder, 0); err == nil {
		t.Error("expected error for k=0")
	}
}

func TestSearch_EmbedderMismatch(t *testing.T) {
	idx := newIndex(t, index.MetricCosine)
	ctx := context.Background()
	idx.Insert(ctx, chunkN(0), []float32{1, 0, 0})

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, "other/model/3", 1)
	if !errors.Is(err, domain.ErrEmbedderMismatch) {
		t.Fatalf("expected ErrEmbedderMismatch, got %v", err)
	}
	if hits != nil {
		t.Error("mismatch must never return hits")
	}
	var mismatch *domain.EmbedderMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatal("expected *EmbedderMismatchError in chain")
	}
	if mismatch.IndexEmbedder != testEmbedder || mismatch.QueryEmbedder != "other/model/3" {
		t.Errorf("unexpected identifiers: %+v", mismatch)
	}
}

func TestSearch_EmptyIndexReturnsNoHits(t *testing.T) {
	idx := newIndex(t, index.MetricCosine)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, testEmbedder, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestReset(t *testing.T) {
	idx := newIndex(t, index.MetricCosine)
	ctx := context.Background()

	idx.Insert(ctx, chunkN(0), []float32{1, 0, 0})
	idx.Insert(ctx, chunkN(1), []float32{0, 1, 0})
	if err := idx.Reset(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Errorf("expected empty index after reset, count=%d", n)
	}
	if idx.Embedder() != testEmbedder || idx.Dimension() != 3 {
		t.Error("reset must keep the tag and dimension")
	}
}

func TestConcurrentSearchAndInsert(t *testing.T) {
	idx := newIndex(t, index.MetricCosine)
	ctx := context.Background()

	for n := 0; n < 50; n++ {
		idx.Insert(ctx, chunkN(n), []float32{float32(n), 1, 0})
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				if g%2 == 0 {
					if _, err := idx.Search(ctx, []float32{1, 0, 0}, testEmbedder, 5); err != nil {
						t.Errorf("search: %v", err)
						return
					}
				} else {
					if err := idx.Insert(ctx, chunkN(1000+g*100+n), []float32{1, 2, 3}); err != nil {
						t.Errorf("insert: %v", err)
						return
					}
				}
			}
		}(g)
	}
	wg.Wait()
}
