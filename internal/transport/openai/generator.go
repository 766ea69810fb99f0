package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/metrics"
)

// Generator produces answers via the chat completions API, blocking or
// streamed. The prompt arrives fully built; the adapter sends it as a single
// user message and never alters it.
type Generator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// GeneratorConfig holds the generation model settings.
type GeneratorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewGenerator creates an OpenAI-compatible generation provider.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Generator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

var _ domain.Generator = (*Generator)(nil)

// Generate implements blocking generation: one request, the complete answer.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, g.request(prompt, false))

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "blocking", "error").Inc()
		return "", parseGenerationError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "blocking", "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrGenerationUnavailable)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, "blocking", "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.model, "blocking").Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.GenerationTokensTotal.WithLabelValues(g.model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.GenerationTokensTotal.WithLabelValues(g.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream opens a completion stream and adapts it to a TokenStream.
// Only the stream setup can fail here; mid-stream errors surface from Recv.
func (g *Generator) GenerateStream(ctx context.Context, prompt string) (domain.TokenStream, error) {
	start := time.Now()

	stream, err := g.client.CreateChatCompletionStream(ctx, g.request(prompt, true))
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "stream", "error").Inc()
		return nil, parseGenerationError(err)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, "stream", "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.model, "stream").Observe(time.Since(start).Seconds())

	return &tokenStream{inner: stream, model: g.model}, nil
}

func (g *Generator) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: stream,
	}
}

// tokenStream adapts the go-openai stream to domain.TokenStream. Deltas with
// no content (role-only frames, keep-alives) are skipped so callers only see
// actual answer text.
type tokenStream struct {
	inner *openai.ChatCompletionStream
	model string
}

func (s *tokenStream) Recv() (string, error) {
	for {
		resp, err := s.inner.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", parseGenerationError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			metrics.GenerationTokensTotal.WithLabelValues(s.model, "completion").Inc()
			return delta, nil
		}
	}
}

func (s *tokenStream) Close() error {
	s.inner.Close()
	return nil
}

// parseGenerationError wraps API failures with domain.ErrGenerationUnavailable
// for correct 502 mapping. Context cancellation passes through untouched so
// callers can tell a cancelled stream apart from a dead provider.
func parseGenerationError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	wrap := domain.ErrGenerationUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("generation API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("generation API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("generation request failed: %w", wrap)
}
