// Package conversation keeps per-session question/answer history in process
// memory. The store is lifecycle-scoped and injected; nothing survives a
// restart and nothing here is ambient global state.
package conversation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/skryne/ragd/internal/domain"
)

// DefaultMaxTurns bounds per-session retention; the oldest turn is evicted
// once the cap is reached.
const DefaultMaxTurns = 100

type session struct {
	mu    sync.Mutex
	turns []domain.Turn
}

// Store maps opaque session ids to ordered turn histories. Sessions are
// created on first append; an unknown id is an error only on the outward
// read boundary, never on the ask path.
//
// Two locks with distinct jobs: the store mutex guards the session map, each
// session's own mutex serializes the read-then-append on that session. Slow
// work (embedding, generation) never happens under either.
type Store struct {
	maxTurns int

	mu       sync.RWMutex
	sessions map[string]*session
}

// SessionInfo summarizes one session for listings.
type SessionInfo struct {
	ID            string
	Turns         int
	FirstQuestion string
	LastActivity  time.Time
}

// NewStore creates an empty store. maxTurns below 1 selects the default.
func NewStore(maxTurns int) *Store {
	if maxTurns < 1 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{maxTurns: maxTurns, sessions: make(map[string]*session)}
}

// Append records a completed turn, creating the session on first use. A zero
// CreatedAt is stamped with the current time.
func (s *Store) Append(sessionID string, turn domain.Turn) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{}
		s.sessions[sessionID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, turn)
	if len(sess.turns) > s.maxTurns {
		// shift instead of reslicing so the evicted head can be collected
		n := copy(sess.turns, sess.turns[len(sess.turns)-s.maxTurns:])
		sess.turns = sess.turns[:n]
	}
}

// Turns returns a copy of the session's full history. Unknown sessions are an
// error here: this is the outward query boundary and the caller asked for a
// session by name.
func (s *Store) Turns(sessionID string) ([]domain.Turn, error) {
	sess := s.lookup(sessionID)
	if sess == nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, domain.ErrSessionNotFound)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]domain.Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

// Recent returns up to n latest turns. Unknown sessions yield an empty
// history without error; the ask path treats them as brand new.
func (s *Store) Recent(sessionID string, n int) []domain.Turn {
	sess := s.lookup(sessionID)
	if sess == nil || n < 1 {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	turns := sess.turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}

// Reset removes one session and its history.
func (s *Store) Reset(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %q: %w", sessionID, domain.ErrSessionNotFound)
	}
	delete(s.sessions, sessionID)
	return nil
}

// ResetAll drops every session and reports how many were removed.
func (s *Store) ResetAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sessions)
	s.sessions = make(map[string]*session)
	return n
}

// Sessions lists all sessions, most recently active first.
func (s *Store) Sessions() []SessionInfo {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	sessions := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		ids = append(ids, id)
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(ids))
	for i, sess := range sessions {
		sess.mu.Lock()
		info := SessionInfo{ID: ids[i], Turns: len(sess.turns)}
		if len(sess.turns) > 0 {
			info.FirstQuestion = sess.turns[0].Question
			info.LastActivity = sess.turns[len(sess.turns)-1].CreatedAt
		}
		sess.mu.Unlock()
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].LastActivity.Equal(infos[j].LastActivity) {
			return infos[i].LastActivity.After(infos[j].LastActivity)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

func (s *Store) lookup(sessionID string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}
