// Package chi wires the HTTP API onto a chi router: the ask endpoints
// (blocking and SSE), corpus administration, and conversation management.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/skryne/ragd/internal/conversation"
	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/loader"
	"github.com/skryne/ragd/internal/usecase/ask"
	"github.com/skryne/ragd/internal/usecase/ingest"
	"github.com/skryne/ragd/internal/version"
)

// Asker answers questions, blocking or streamed.
type Asker interface {
	Ask(ctx context.Context, req ask.Request) (ask.Answer, error)
	AskStream(ctx context.Context, req ask.Request) (<-chan ask.Event, error)
}

// Reindexer rebuilds the index from the document source.
type Reindexer interface {
	Reindex(ctx context.Context) (ingest.Summary, error)
}

// DocumentLister enumerates the corpus on disk.
type DocumentLister interface {
	List() ([]loader.FileInfo, error)
}

// ChunkCounter reports how many chunks the index holds and supports a full
// wipe. The index satisfies it.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the question-answering pipeline over HTTP.
type Server struct {
	asker         Asker
	ingester      Reindexer
	conversations *conversation.Store
	documents     DocumentLister
	chunks        ChunkCounter
	embedder      domain.HealthChecker // nil skips the provider probe
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(
	asker Asker,
	ingester Reindexer,
	conversations *conversation.Store,
	documents DocumentLister,
	chunks ChunkCounter,
	embedder domain.HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		asker:         asker,
		ingester:      ingester,
		conversations: conversations,
		documents:     documents,
		chunks:        chunks,
		embedder:      embedder,
		logger:        logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyIndex, http.StatusConflict, "index_empty"),
		sentinelHandler(domain.ErrEmptyDocument, http.StatusConflict, "no_documents"),
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found"),
		sentinelHandler(domain.ErrInvalidConfig, http.StatusBadRequest, "invalid_request"),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, "embedding_unavailable"),
		sentinelHandler(domain.ErrGenerationUnavailable, http.StatusBadGateway, "generation_unavailable"),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusInternalServerError, "embedding_mismatch"),
		sentinelHandler(domain.ErrEmbedderMismatch, http.StatusInternalServerError, "embedding_mismatch"),
	}
	return s
}

// Mount registers all routes on the given router.
func (s *Server) Mount(r chi.Router) {
	r.Get("/healthz", s.healthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/ask/stream", s.handleAskStream)
		r.Post("/reindex", s.handleReindex)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{sessionID}", s.handleGetConversation)
		r.Delete("/conversations/{sessionID}", s.handleDeleteConversation)
		r.Delete("/conversations", s.handleDeleteAllConversations)
		r.Delete("/reset", s.handleReset)
	})
}

// healthz handles GET /healthz. Ready means the index holds at least one
// chunk, so a fresh deployment reports unready until its first reindex. An
// unreachable embedding provider degrades the status but keeps 200: the
// server itself is up and the admin endpoints still work.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   version.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	chunks, err := s.chunks.Count(r.Context())
	if err != nil {
		s.logger.Warn("health check: index unavailable", zap.Error(err))
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Chunks = chunks
	resp.Ready = chunks > 0

	if files, err := s.documents.List(); err == nil {
		resp.Documents = len(files)
	}

	if s.embedder != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.embedder.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check: embedding provider unreachable", zap.Error(err))
			resp.Status = "degraded"
		} else {
			resp.EmbedderReachable = true
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	Documents         int    `json:"documents"`
	Chunks            int    `json:"chunks"`
	Ready             bool   `json:"ready"`
	EmbedderReachable bool   `json:"embedder_reachable"`
	Timestamp         string `json:"timestamp"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// stageOf extracts the pipeline stage from an error, if it carries one.
func stageOf(err error) string {
	var se *ask.StageError
	if errors.As(err, &se) {
		return string(se.Stage)
	}
	return ""
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyIndex,
		domain.ErrEmptyDocument,
		domain.ErrSessionNotFound,
		domain.ErrInvalidConfig,
		domain.ErrEmbeddingUnavailable,
		domain.ErrGenerationUnavailable,
		domain.ErrDimensionMismatch,
		domain.ErrEmbedderMismatch,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeJSON(w, status, errorResponse{Code: code, Message: msg, Stage: stageOf(err)})
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Code:    "internal_error",
		Message: "internal error",
		Stage:   stageOf(err),
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
