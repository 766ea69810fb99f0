package openai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/skryne/ragd/internal/domain"
)

// RateLimitedEmbedder throttles embedding calls against provider limits.
// Bulk ingestion fires one request per chunk and local providers fall over
// without a ceiling; queries share the same limiter so a running ingest
// cannot starve them of quota either.
type RateLimitedEmbedder struct {
	inner   domain.Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner with a requests-per-second cap.
// Bursts up to one second of quota are allowed.
func NewRateLimitedEmbedder(inner domain.Embedder, perSecond float64) *RateLimitedEmbedder {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Embed waits for a limiter token, then delegates.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return e.inner.Embed(ctx, text)
}

// Identifier delegates to the inner embedder; throttling does not change the
// vector space.
func (e *RateLimitedEmbedder) Identifier() string {
	return e.inner.Identifier()
}
