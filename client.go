// Package ragd is the Go client SDK for the ragd HTTP API: ask questions
// against an indexed corpus (blocking or streamed), manage the index, and
// inspect conversation history.
package ragd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one ragd server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ragd: invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Citation points an answer at a source file; Rank matches the document
// number the model saw in its context.
type Citation struct {
	Source string `json:"source"`
	Rank   int    `json:"rank"`
}

// AskRequest is one question. An empty SessionID starts a fresh session;
// TopK zero uses the server default.
type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

// Answer is a complete blocking response.
type Answer struct {
	SessionID string     `json:"session_id"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Sources   []Citation `json:"sources"`
}

// ReindexSummary reports one index rebuild.
type ReindexSummary struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Skipped   int `json:"skipped"`
}

// DocumentInfo describes one corpus file.
type DocumentInfo struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Modified  string `json:"modified"`
}

// SessionInfo summarizes one conversation.
type SessionInfo struct {
	SessionID     string `json:"session_id"`
	Turns         int    `json:"turns"`
	FirstQuestion string `json:"first_question"`
	LastActivity  string `json:"last_activity"`
}

// Turn is one recorded question/answer exchange.
type Turn struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Sources   []Citation `json:"sources"`
	CreatedAt string     `json:"created_at"`
}

// Conversation is one session's full history.
type Conversation struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}

// Health is the server health report.
type Health struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	Documents         int    `json:"documents"`
	Chunks            int    `json:"chunks"`
	Ready             bool   `json:"ready"`
	EmbedderReachable bool   `json:"embedder_reachable"`
	Timestamp         string `json:"timestamp"`
}

// APIError is a structured error response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Stage      string `json:"stage,omitempty"`
}

func (e *APIError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("ragd: %s (%s, stage %s)", e.Message, e.Code, e.Stage)
	}
	return fmt.Sprintf("ragd: %s (%s)", e.Message, e.Code)
}

// Ask sends a question and waits for the full answer.
func (c *Client) Ask(ctx context.Context, req AskRequest) (Answer, error) {
	var out Answer
	err := c.do(ctx, http.MethodPost, "/api/v1/ask", req, &out)
	return out, err
}

// Reindex rebuilds the server's vector index from its document corpus. The
// call blocks for the whole split/embed/insert cycle.
func (c *Client) Reindex(ctx context.Context) (ReindexSummary, error) {
	var out ReindexSummary
	err := c.do(ctx, http.MethodPost, "/api/v1/reindex", nil, &out)
	return out, err
}

// Documents lists the corpus files the server's next reindex would pick up.
func (c *Client) Documents(ctx context.Context) ([]DocumentInfo, error) {
	var out struct {
		Documents []DocumentInfo `json:"documents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/documents", nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Conversations lists sessions, most recently active first.
func (c *Client) Conversations(ctx context.Context) ([]SessionInfo, error) {
	var out struct {
		Sessions []SessionInfo `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Conversation fetches one session's full history.
func (c *Client) Conversation(ctx context.Context, sessionID string) (Conversation, error) {
	var out Conversation
	err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+url.PathEscape(sessionID), nil, &out)
	return out, err
}

// DeleteConversation removes one session.
func (c *Client) DeleteConversation(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/conversations/"+url.PathEscape(sessionID), nil, nil)
}

// ClearConversations removes every session and reports how many were dropped.
func (c *Client) ClearConversations(ctx context.Context) (int, error) {
	var out struct {
		Cleared int `json:"cleared"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/v1/conversations", nil, &out)
	return out.Cleared, err
}

// Reset wipes the index and all conversations. The corpus on disk survives.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/reset", nil, nil)
}

// Health fetches the server health report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ragd: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("ragd: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ragd: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ragd: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "http_error"
		apiErr.Message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return apiErr
}
