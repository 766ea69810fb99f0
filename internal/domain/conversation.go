package domain

import "time"

// Turn is one completed question/answer exchange within a session.
// Turns are append-only; a turn exists only after its answer finished.
type Turn struct {
	Question  string
	Answer    string
	Sources   []Citation
	CreatedAt time.Time
}
