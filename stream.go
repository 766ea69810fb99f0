package ragd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StreamEvent is one frame of a streamed answer. The first frame carries the
// citation list; subsequent frames carry answer text; the terminal frame has
// Done set (and Err on failure).
type StreamEvent struct {
	Sources []Citation
	Token   string
	Done    bool
	Err     error
}

// Stream is an in-flight streamed answer. Recv returns frames until io.EOF;
// Close releases the connection and may be called at any time to abandon the
// answer.
type Stream struct {
	sessionID string
	body      io.ReadCloser
	scanner   *bufio.Scanner
	done      bool
}

// SessionID reports the session this answer belongs to, available before the
// first frame arrives.
func (s *Stream) SessionID() string { return s.sessionID }

// Close abandons the stream. The server records no turn for an abandoned
// answer.
func (s *Stream) Close() error { return s.body.Close() }

// Recv returns the next frame. After the terminal frame it returns io.EOF.
func (s *Stream) Recv() (StreamEvent, error) {
	if s.done {
		return StreamEvent{}, io.EOF
	}
	for s.scanner.Scan() {
		payload, ok := strings.CutPrefix(s.scanner.Text(), "data: ")
		if !ok {
			continue
		}

		var frame struct {
			Sources     []Citation `json:"sources"`
			AnswerChunk string     `json:"answer_chunk"`
			Error       string     `json:"error"`
			Stage       string     `json:"stage"`
			Done        bool       `json:"done"`
		}
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			return StreamEvent{}, fmt.Errorf("ragd: malformed stream frame: %w", err)
		}

		ev := StreamEvent{Sources: frame.Sources, Token: frame.AnswerChunk, Done: frame.Done}
		if frame.Error != "" {
			ev.Err = &APIError{Code: "stream_error", Message: frame.Error, Stage: frame.Stage}
		}
		if frame.Done {
			s.done = true
		}
		return ev, nil
	}
	if err := s.scanner.Err(); err != nil {
		return StreamEvent{}, fmt.Errorf("ragd: read stream: %w", err)
	}
	return StreamEvent{}, io.EOF
}

// AskStream sends a question and returns the answer as a stream of frames.
// The caller must Close the stream.
func (c *Client) AskStream(ctx context.Context, req AskRequest) (*Stream, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ragd: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/ask/stream", strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("ragd: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ragd: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	return &Stream{
		sessionID: resp.Header.Get("X-Session-ID"),
		body:      resp.Body,
		scanner:   bufio.NewScanner(resp.Body),
	}, nil
}
