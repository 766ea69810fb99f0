package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/usecase/ask"
)

const maxQuestionChars = 8192

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	TopK      int    `json:"top_k"`
}

type askResponse struct {
	SessionID string            `json:"session_id"`
	Question  string            `json:"question"`
	Answer    string            `json:"answer"`
	Sources   []domain.Citation `json:"sources"`
}

// streamFrame is one SSE data payload. Field presence depends on position:
// the opening frame carries session id and sources, middle frames carry
// answer chunks, the terminal frame carries done=true (and error details on
// failure).
type streamFrame struct {
	SessionID   string            `json:"session_id,omitempty"`
	Question    string            `json:"question,omitempty"`
	Sources     []domain.Citation `json:"sources,omitempty"`
	AnswerChunk string            `json:"answer_chunk,omitempty"`
	Error       string            `json:"error,omitempty"`
	Stage       string            `json:"stage,omitempty"`
	Done        bool              `json:"done"`
}

func decodeAskRequest(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return askRequest{}, false
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "question is required")
		return askRequest{}, false
	}
	if len(req.Question) > maxQuestionChars {
		writeError(w, http.StatusBadRequest, "validation_failed",
			fmt.Sprintf("question exceeds %d characters", maxQuestionChars))
		return askRequest{}, false
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "top_k must not be negative")
		return askRequest{}, false
	}
	return req, true
}

// handleAsk handles POST /api/v1/ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}

	answer, err := s.asker.Ask(r.Context(), ask.Request{
		SessionID: req.SessionID,
		Question:  req.Question,
		TopK:      req.TopK,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	sources := answer.Sources
	if sources == nil {
		sources = []domain.Citation{}
	}
	writeJSON(w, http.StatusOK, askResponse{
		SessionID: answer.SessionID,
		Question:  answer.Question,
		Answer:    answer.Answer,
		Sources:   sources,
	})
}

// handleAskStream handles POST /api/v1/ask/stream. The response is
// text/event-stream; each frame is a JSON object on a "data:" line. Setup
// failures (empty question, provider down, empty index) surface as plain
// JSON errors before any SSE byte is written; failures after that arrive as
// a terminal error frame inside the stream.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	// The session id goes out in a header, so it must exist before the
	// orchestrator runs.
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	events, err := s.asker.AskStream(r.Context(), ask.Request{
		SessionID: req.SessionID,
		Question:  req.Question,
		TopK:      req.TopK,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", req.SessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		var frame streamFrame
		switch ev.Type {
		case ask.EventSources:
			sources := ev.Sources
			if sources == nil {
				sources = []domain.Citation{}
			}
			frame = streamFrame{SessionID: ev.SessionID, Question: req.Question, Sources: sources}
		case ask.EventToken:
			frame = streamFrame{AnswerChunk: ev.Token}
		case ask.EventDone:
			frame = streamFrame{Done: true}
		case ask.EventError:
			frame = streamFrame{Error: safeDomainMessage(ev.Err), Stage: string(ev.Stage), Done: true}
		}
		if err := writeFrame(w, frame); err != nil {
			// client went away; the orchestrator notices via context
			s.logger.Debug("stream write failed", zap.Error(err))
			return
		}
		flusher.Flush()
	}
}

func writeFrame(w http.ResponseWriter, frame streamFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
