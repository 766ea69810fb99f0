package ask

import (
	"context"

	"github.com/skryne/ragd/internal/domain"
)

// Retriever produces ranked context candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.Candidate, error)
}

// History is the slice of the conversation store the orchestrator needs:
// recent turns going in, one completed turn coming out.
type History interface {
	Recent(sessionID string, n int) []domain.Turn
	Append(sessionID string, turn domain.Turn)
}

// Stage names the pipeline step a failure happened in. Every error leaving
// this package carries one, so callers always learn where the pipeline broke.
type Stage string

// Pipeline stages, in execution order.
const (
	StageEmbedding  Stage = "embedding"
	StageRetrieving Stage = "retrieving"
	StageAssembling Stage = "assembling"
	StageGenerating Stage = "generating"
)

// StageError wraps a pipeline failure with the stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Request is one question against the corpus. An empty SessionID starts a
// fresh session; TopK below 1 selects the service default.
type Request struct {
	SessionID string
	Question  string
	TopK      int
}

// Answer is the complete outcome of a blocking ask.
type Answer struct {
	SessionID string
	Question  string
	Answer    string
	Sources   []domain.Citation
}

// EventType discriminates streamed events.
type EventType int

const (
	// EventSources opens every stream: the citation list and session id,
	// known before the first token arrives.
	EventSources EventType = iota
	// EventToken carries one answer fragment.
	EventToken
	// EventDone terminates a successful stream.
	EventDone
	// EventError terminates a failed stream; no turn was recorded.
	EventError
)

// Event is one element of a streamed answer. Exactly one terminal event
// (EventDone or EventError) ends every stream, after which the channel
// closes.
type Event struct {
	Type      EventType
	SessionID string
	Sources   []domain.Citation
	Token     string
	Stage     Stage
	Err       error
}
