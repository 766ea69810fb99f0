package openai

import (
	"context"
	"testing"
	"time"

	"github.com/skryne/ragd/internal/domain"
)

type stubEmbedder struct {
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	s.calls++
	return domain.EmbeddingResult{Vector: []float32{1, 0}}, nil
}

func (s *stubEmbedder) Identifier() string { return "stub/model/2" }

func TestRateLimitedEmbedder_Passthrough(t *testing.T) {
	inner := &stubEmbedder{}
	limited := NewRateLimitedEmbedder(inner, 1000)

	result, err := limited.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(result.Vector) != 2 || inner.calls != 1 {
		t.Errorf("expected delegation to inner embedder, calls=%d", inner.calls)
	}
	if limited.Identifier() != inner.Identifier() {
		t.Errorf("identifier must pass through, got %s", limited.Identifier())
	}
}

func TestRateLimitedEmbedder_CancelledContext(t *testing.T) {
	inner := &stubEmbedder{}
	// tiny rate so the second call has to wait, then gets cancelled
	limited := NewRateLimitedEmbedder(inner, 0.001)

	if _, err := limited.Embed(context.Background(), "first"); err != nil {
		t.Fatalf("first Embed failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := limited.Embed(ctx, "second"); err == nil {
		t.Error("expected error from cancelled wait")
	}
	if inner.calls != 1 {
		t.Errorf("inner must not be called after cancelled wait, calls=%d", inner.calls)
	}
}
