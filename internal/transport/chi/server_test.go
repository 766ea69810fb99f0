package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/skryne/ragd/internal/conversation"
	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/loader"
	"github.com/skryne/ragd/internal/usecase/ask"
	"github.com/skryne/ragd/internal/usecase/ingest"
)

// --- Mocks ---

type mockAsker struct {
	answer ask.Answer
	events []ask.Event
	err    error

	lastReq ask.Request
}

func (m *mockAsker) Ask(_ context.Context, req ask.Request) (ask.Answer, error) {
	m.lastReq = req
	if m.err != nil {
		return ask.Answer{}, m.err
	}
	return m.answer, nil
}

func (m *mockAsker) AskStream(_ context.Context, req ask.Request) (<-chan ask.Event, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan ask.Event)
	go func() {
		defer close(ch)
		for _, ev := range m.events {
			ch <- ev
		}
	}()
	return ch, nil
}

type mockReindexer struct {
	summary ingest.Summary
	err     error
}

func (m *mockReindexer) Reindex(context.Context) (ingest.Summary, error) {
	return m.summary, m.err
}

type mockDocs struct {
	files []loader.FileInfo
	err   error
}

func (m *mockDocs) List() ([]loader.FileInfo, error) { return m.files, m.err }

type mockChunks struct {
	count    int
	countErr error
	resetErr error
	resets   int
}

func (m *mockChunks) Count(context.Context) (int, error) { return m.count, m.countErr }
func (m *mockChunks) Reset(context.Context) error {
	m.resets++
	return m.resetErr
}

type fixture struct {
	asker  *mockAsker
	ingest *mockReindexer
	convs  *conversation.Store
	docs   *mockDocs
	chunks *mockChunks
	router chirouter.Router
}

func newFixture() *fixture {
	f := &fixture{
		asker:  &mockAsker{},
		ingest: &mockReindexer{},
		convs:  conversation.NewStore(0),
		docs:   &mockDocs{},
		chunks: &mockChunks{},
	}
	srv := NewServer(f.asker, f.ingest, f.convs, f.docs, f.chunks, nil, zap.NewNop())
	f.router = chirouter.NewRouter()
	srv.Mount(f.router)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return v
}

// --- Ask ---

func TestAsk_Success(t *testing.T) {
	f := newFixture()
	f.asker.answer = ask.Answer{
		SessionID: "sess-1",
		Question:  "What does product B cost?",
		Answer:    "Product B costs $20.",
		Sources:   []domain.Citation{{Source: "pricing.txt", Rank: 1}},
	}

	rec := f.do(t, http.MethodPost, "/api/v1/ask", `{"question":"What does product B cost?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody[askResponse](t, rec)
	if resp.SessionID != "sess-1" || resp.Answer != "Product B costs $20." {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Source != "pricing.txt" {
		t.Errorf("unexpected sources: %+v", resp.Sources)
	}
}

func TestAsk_PassesSessionAndTopK(t *testing.T) {
	f := newFixture()
	f.do(t, http.MethodPost, "/api/v1/ask", `{"question":"q","session_id":"abc","top_k":3}`)

	if f.asker.lastReq.SessionID != "abc" || f.asker.lastReq.TopK != 3 {
		t.Errorf("request not forwarded: %+v", f.asker.lastReq)
	}
}

func TestAsk_Validation(t *testing.T) {
	f := newFixture()

	for name, body := range map[string]string{
		"malformed json":    `{`,
		"missing question":  `{}`,
		"blank question":    `{"question":"   "}`,
		"negative top_k":    `{"question":"q","top_k":-1}`,
		"oversize question": `{"question":"` + strings.Repeat("x", maxQuestionChars+1) + `"}`,
	} {
		rec := f.do(t, http.MethodPost, "/api/v1/ask", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestAsk_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty index", &ask.StageError{Stage: ask.StageRetrieving, Err: domain.ErrEmptyIndex},
			http.StatusConflict, "index_empty"},
		{"embedding down", &ask.StageError{Stage: ask.StageEmbedding, Err: domain.ErrEmbeddingUnavailable},
			http.StatusBadGateway, "embedding_unavailable"},
		{"generation down", &ask.StageError{Stage: ask.StageGenerating, Err: domain.ErrGenerationUnavailable},
			http.StatusBadGateway, "generation_unavailable"},
		{"embedder mismatch", domain.NewEmbedderMismatch("a/m/8", "b/m/8"),
			http.StatusInternalServerError, "embedding_mismatch"},
		{"dimension mismatch", domain.NewDimensionMismatch(768, 384),
			http.StatusInternalServerError, "embedding_mismatch"},
		{"unknown", context.DeadlineExceeded,
			http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.asker.err = tc.err

			rec := f.do(t, http.MethodPost, "/api/v1/ask", `{"question":"q"}`)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			resp := decodeBody[errorResponse](t, rec)
			if resp.Code != tc.code {
				t.Errorf("expected code %q, got %q", tc.code, resp.Code)
			}
		})
	}
}

func TestAsk_StageSurfacesInError(t *testing.T) {
	f := newFixture()
	f.asker.err = &ask.StageError{Stage: ask.StageGenerating, Err: domain.ErrGenerationUnavailable}

	rec := f.do(t, http.MethodPost, "/api/v1/ask", `{"question":"q"}`)
	resp := decodeBody[errorResponse](t, rec)
	if resp.Stage != "generating" {
		t.Errorf("expected stage generating, got %q", resp.Stage)
	}
}

// --- Admin ---

func TestReindex_Success(t *testing.T) {
	f := newFixture()
	f.ingest.summary = ingest.Summary{Documents: 3, Chunks: 42, Skipped: 1}

	rec := f.do(t, http.MethodPost, "/api/v1/reindex", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeBody[reindexResponse](t, rec)
	if resp.Documents != 3 || resp.Chunks != 42 || resp.Skipped != 1 {
		t.Errorf("unexpected summary: %+v", resp)
	}
}

func TestReindex_EmptyCorpus(t *testing.T) {
	f := newFixture()
	f.ingest.err = domain.ErrEmptyDocument

	rec := f.do(t, http.MethodPost, "/api/v1/reindex", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != "no_documents" {
		t.Errorf("expected code no_documents, got %q", resp.Code)
	}
}

func TestListDocuments(t *testing.T) {
	f := newFixture()
	f.docs.files = []loader.FileInfo{
		{Name: "a.txt", SizeBytes: 120, Modified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{Name: "sub/b.md", SizeBytes: 64},
	}

	rec := f.do(t, http.MethodGet, "/api/v1/documents", "")
	resp := decodeBody[documentListResponse](t, rec)
	if resp.Count != 2 || len(resp.Documents) != 2 {
		t.Fatalf("unexpected listing: %+v", resp)
	}
	if resp.Documents[0].Modified != "2024-05-01T12:00:00Z" {
		t.Errorf("unexpected modified time: %q", resp.Documents[0].Modified)
	}
	if resp.Documents[1].Modified != "" {
		t.Errorf("zero time must serialize empty, got %q", resp.Documents[1].Modified)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture()
	f.chunks.count = 7

	rec := f.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeBody[healthResponse](t, rec)
	if !resp.Ready || resp.Chunks != 7 || resp.Status != "ok" {
		t.Errorf("unexpected health: %+v", resp)
	}
}

func TestHealthz_EmptyIndexNotReady(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/healthz", "")
	resp := decodeBody[healthResponse](t, rec)
	if resp.Ready {
		t.Error("empty index must report not ready")
	}
}

func TestHealthz_IndexDown(t *testing.T) {
	f := newFixture()
	f.chunks.countErr = context.DeadlineExceeded

	rec := f.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

// --- Conversations ---

func TestConversations_ListAndGet(t *testing.T) {
	f := newFixture()
	f.convs.Append("sess-1", domain.Turn{Question: "q1", Answer: "a1"})
	f.convs.Append("sess-1", domain.Turn{Question: "q2", Answer: "a2",
		Sources: []domain.Citation{{Source: "x.txt", Rank: 1}}})

	rec := f.do(t, http.MethodGet, "/api/v1/conversations", "")
	list := decodeBody[sessionListResponse](t, rec)
	if list.Count != 1 || list.Sessions[0].Turns != 2 || list.Sessions[0].FirstQuestion != "q1" {
		t.Fatalf("unexpected listing: %+v", list)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/conversations/sess-1", "")
	conv := decodeBody[conversationResponse](t, rec)
	if len(conv.Turns) != 2 || conv.Turns[1].Question != "q2" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if len(conv.Turns[0].Sources) != 0 {
		t.Errorf("turn without sources must serialize an empty list, got %+v", conv.Turns[0].Sources)
	}
}

func TestConversations_UnknownSession(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/v1/conversations/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != "session_not_found" {
		t.Errorf("expected code session_not_found, got %q", resp.Code)
	}
}

func TestConversations_Delete(t *testing.T) {
	f := newFixture()
	f.convs.Append("sess-1", domain.Turn{Question: "q", Answer: "a"})

	rec := f.do(t, http.MethodDelete, "/api/v1/conversations/sess-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec = f.do(t, http.MethodGet, "/api/v1/conversations/sess-1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("deleted session must be gone, got %d", rec.Code)
	}
}

func TestConversations_DeleteAll(t *testing.T) {
	f := newFixture()
	f.convs.Append("a", domain.Turn{Question: "q", Answer: "a"})
	f.convs.Append("b", domain.Turn{Question: "q", Answer: "a"})

	rec := f.do(t, http.MethodDelete, "/api/v1/conversations", "")
	resp := decodeBody[map[string]int](t, rec)
	if resp["cleared"] != 2 {
		t.Errorf("expected 2 cleared, got %d", resp["cleared"])
	}
}

func TestReset_WipesIndexAndSessions(t *testing.T) {
	f := newFixture()
	f.convs.Append("a", domain.Turn{Question: "q", Answer: "a"})

	rec := f.do(t, http.MethodDelete, "/api/v1/reset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.chunks.resets != 1 {
		t.Errorf("index reset not called")
	}
	if len(f.convs.Sessions()) != 0 {
		t.Errorf("sessions must be cleared")
	}
}
