package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/skryne/ragd/internal/domain"
)

type reindexResponse struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Skipped   int `json:"skipped"`
}

type documentItem struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Modified  string `json:"modified"`
}

type documentListResponse struct {
	Documents []documentItem `json:"documents"`
	Count     int            `json:"count"`
}

type sessionItem struct {
	SessionID     string `json:"session_id"`
	Turns         int    `json:"turns"`
	FirstQuestion string `json:"first_question"`
	LastActivity  string `json:"last_activity"`
}

type sessionListResponse struct {
	Sessions []sessionItem `json:"sessions"`
	Count    int           `json:"count"`
}

type turnItem struct {
	Question  string            `json:"question"`
	Answer    string            `json:"answer"`
	Sources   []domain.Citation `json:"sources"`
	CreatedAt string            `json:"created_at"`
}

type conversationResponse struct {
	SessionID string     `json:"session_id"`
	Turns     []turnItem `json:"turns"`
}

// handleReindex handles POST /api/v1/reindex. The rebuild is synchronous;
// clients wait for the full split/embed/insert cycle.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ingester.Reindex(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	s.logger.Info("reindex complete",
		zap.Int("documents", summary.Documents),
		zap.Int("chunks", summary.Chunks),
		zap.Int("skipped", summary.Skipped),
	)
	writeJSON(w, http.StatusOK, reindexResponse{
		Documents: summary.Documents,
		Chunks:    summary.Chunks,
		Skipped:   summary.Skipped,
	})
}

// handleListDocuments handles GET /api/v1/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	files, err := s.documents.List()
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]documentItem, len(files))
	for i, f := range files {
		items[i] = documentItem{
			Name:      f.Name,
			SizeBytes: f.SizeBytes,
			Modified:  formatTime(f.Modified),
		}
	}
	writeJSON(w, http.StatusOK, documentListResponse{Documents: items, Count: len(items)})
}

// handleListConversations handles GET /api/v1/conversations.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	infos := s.conversations.Sessions()

	items := make([]sessionItem, len(infos))
	for i, info := range infos {
		items[i] = sessionItem{
			SessionID:     info.ID,
			Turns:         info.Turns,
			FirstQuestion: info.FirstQuestion,
			LastActivity:  formatTime(info.LastActivity),
		}
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: items, Count: len(items)})
}

// handleGetConversation handles GET /api/v1/conversations/{sessionID}.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	turns, err := s.conversations.Turns(sessionID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]turnItem, len(turns))
	for i, turn := range turns {
		sources := turn.Sources
		if sources == nil {
			sources = []domain.Citation{}
		}
		items[i] = turnItem{
			Question:  turn.Question,
			Answer:    turn.Answer,
			Sources:   sources,
			CreatedAt: formatTime(turn.CreatedAt),
		}
	}
	writeJSON(w, http.StatusOK, conversationResponse{SessionID: sessionID, Turns: items})
}

// handleDeleteConversation handles DELETE /api/v1/conversations/{sessionID}.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.conversations.Reset(sessionID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteAllConversations handles DELETE /api/v1/conversations.
func (s *Server) handleDeleteAllConversations(w http.ResponseWriter, r *http.Request) {
	cleared := s.conversations.ResetAll()
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// handleReset handles DELETE /api/v1/reset: drops every indexed chunk and
// every conversation. The corpus on disk is untouched.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.chunks.Reset(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	cleared := s.conversations.ResetAll()

	s.logger.Info("index and conversations reset", zap.Int("sessions_cleared", cleared))
	writeJSON(w, http.StatusOK, map[string]any{
		"index_reset":      true,
		"sessions_cleared": cleared,
	})
}
