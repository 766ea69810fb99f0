// Package ask orchestrates one question through the retrieval-augmented
// pipeline: retrieve context, assemble it with recent history, build the
// prompt, generate the answer, record the turn. Blocking and streaming mode
// share everything up to generation.
package ask

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/prompt"
	"github.com/skryne/ragd/internal/retriever"
)

// DefaultTopK is the retrieval breadth used when a request carries none.
const DefaultTopK = retriever.DefaultTopK

// Option configures the service.
type Option func(*Service)

// WithTopK overrides the default retrieval breadth.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// Service runs the query pipeline. Safe for concurrent use; per-session
// serialization lives inside the conversation store, everything here is
// stateless per request.
type Service struct {
	retriever Retriever
	assembler *prompt.Assembler
	generator domain.Generator
	history   History
	logger    *zap.Logger
	topK      int
}

// New creates the orchestrator.
func New(
	ret Retriever,
	assembler *prompt.Assembler,
	generator domain.Generator,
	history History,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		retriever: ret,
		assembler: assembler,
		generator: generator,
		history:   history,
		logger:    logger,
		topK:      DefaultTopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers one question in blocking mode. The returned Answer is complete:
// final text plus the citations matching the context the model actually saw.
// The turn is recorded only on success; a failed ask leaves history untouched.
func (s *Service) Ask(ctx context.Context, req Request) (Answer, error) {
	sessionID := s.sessionID(req)

	built, assembled, err := s.prepare(ctx, sessionID, req)
	if err != nil {
		return Answer{}, err
	}

	answer, err := s.generator.Generate(ctx, built)
	if err != nil {
		return Answer{}, &StageError{Stage: StageGenerating, Err: err}
	}

	s.history.Append(sessionID, domain.Turn{
		Question:  req.Question,
		Answer:    answer,
		Sources:   assembled.Citations,
		CreatedAt: time.Now(),
	})

	return Answer{
		SessionID: sessionID,
		Question:  req.Question,
		Answer:    answer,
		Sources:   assembled.Citations,
	}, nil
}

// prepare runs the shared front half of the pipeline: history snapshot,
// retrieval, assembly, prompt build. The history read is unsynchronized by
// design; only the append at the end of a turn needs serialization.
func (s *Service) prepare(ctx context.Context, sessionID string, req Request) (string, prompt.Context, error) {
	if req.Question == "" {
		return "", prompt.Context{}, &StageError{
			Stage: StageRetrieving,
			Err:   fmt.Errorf("question is required: %w", domain.ErrInvalidConfig),
		}
	}

	k := req.TopK
	if k < 1 {
		k = s.topK
	}

	turns := s.history.Recent(sessionID, s.assembler.HistoryWindow())

	candidates, err := s.retriever.Retrieve(ctx, req.Question, k)
	if err != nil {
		return "", prompt.Context{}, &StageError{Stage: retrievalStage(err), Err: err}
	}

	assembled := s.assembler.Assemble(candidates, turns)
	return prompt.Build(assembled, req.Question), assembled, nil
}

func (s *Service) sessionID(req Request) string {
	if req.SessionID != "" {
		return req.SessionID
	}
	return uuid.NewString()
}

// retrievalStage maps a retriever error to the pipeline stage it belongs to.
// The retriever labels its own steps; embedding failures happened before any
// index access and report as such.
func retrievalStage(err error) Stage {
	var rerr *retriever.Error
	if errors.As(err, &rerr) && rerr.Op == retriever.OpEmbed {
		return StageEmbedding
	}
	return StageRetrieving
}
