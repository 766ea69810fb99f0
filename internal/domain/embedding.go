package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
	// Identifier names the embedding function (provider, model, dimension).
	// Vectors carrying different identifiers never share an index.
	Identifier() string
}

// HealthChecker verifies model provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Vector       []float32
	PromptTokens int
	TotalTokens  int
}

// InstructionEmbedder is a domain decorator that prepends instruction text
// before embedding. Models like nomic-embed-text expect asymmetric prefixes
// ("search_query: " vs "search_document: "), so the query and ingestion paths
// each get their own decorated instance over one shared provider.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder creates a decorator that prepends instruction text.
// An empty instruction makes it a passthrough.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed prepends the instruction and delegates to the inner embedder.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	result, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return result, nil
}

// Identifier delegates to the inner embedder. Instruction prefixes do not
// change the vector space, so decorated instances stay index-compatible.
func (e *InstructionEmbedder) Identifier() string {
	return e.inner.Identifier()
}
