package ask

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skryne/ragd/internal/domain"
)

// AskStream answers one question in streaming mode. Errors before the first
// token (retrieval, assembly, stream setup) return synchronously with a nil
// channel. Otherwise the channel carries one EventSources, the answer
// fragments as the generator yields them, and exactly one terminal event,
// then closes.
//
// The full turn is appended to history only after the generator stream is
// exhausted. A mid-stream failure or caller cancellation records nothing: a
// stored turn always has a complete answer.
func (s *Service) AskStream(ctx context.Context, req Request) (<-chan Event, error) {
	sessionID := s.sessionID(req)

	built, assembled, err := s.prepare(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}

	stream, err := s.generator.GenerateStream(ctx, built)
	if err != nil {
		return nil, &StageError{Stage: StageGenerating, Err: err}
	}

	// unbuffered on purpose: the channel send is the backpressure point,
	// nothing is pulled from the generator faster than the caller reads
	events := make(chan Event)

	go func() {
		defer close(events)
		defer func() { _ = stream.Close() }()

		if !s.emit(ctx, events, Event{Type: EventSources, SessionID: sessionID, Sources: assembled.Citations}) {
			return
		}

		var full strings.Builder
		for {
			frag, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					// caller walked away; nobody is reading events
					return
				}
				s.logger.Warn("generation stream failed",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
				s.emit(ctx, events, Event{Type: EventError, Stage: StageGenerating, Err: err})
				return
			}

			full.WriteString(frag)
			if !s.emit(ctx, events, Event{Type: EventToken, Token: frag}) {
				return
			}
		}

		s.history.Append(sessionID, domain.Turn{
			Question:  req.Question,
			Answer:    full.String(),
			Sources:   assembled.Citations,
			CreatedAt: time.Now(),
		})
		s.emit(ctx, events, Event{Type: EventDone})
	}()

	return events, nil
}

// emit delivers one event unless the caller is gone. False means cancelled.
func (s *Service) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
