package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig signals a misconfigured component. Fatal at startup.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrEmptyDocument signals that ingestion found no usable document text.
	ErrEmptyDocument = errors.New("empty document")
	// ErrEmptyIndex signals a search against an index holding no chunks.
	ErrEmptyIndex = errors.New("empty index")
	// ErrDimensionMismatch signals a vector of the wrong dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmbedderMismatch signals a query vector produced by a different
	// embedder than the one the index was built with.
	ErrEmbedderMismatch = errors.New("embedder mismatch")
	// ErrEmbeddingUnavailable signals an unreachable or failing embedding provider.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrGenerationUnavailable signals an unreachable or failing generation model.
	ErrGenerationUnavailable = errors.New("generation model unavailable")
	// ErrSessionNotFound signals a missing conversation session.
	ErrSessionNotFound = errors.New("session not found")
)

// DimensionMismatchError wraps ErrDimensionMismatch with the expected and actual sizes.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrDimensionMismatch.Error(), e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(want, got int) error {
	return &DimensionMismatchError{Want: want, Got: got}
}

// EmbedderMismatchError wraps ErrEmbedderMismatch with both embedder identifiers.
// Mixing vector spaces silently is the one failure mode this system must never
// have, so the error names both sides explicitly.
type EmbedderMismatchError struct {
	IndexEmbedder string
	QueryEmbedder string
}

func (e *EmbedderMismatchError) Error() string {
	return fmt.Sprintf("%s: index built with %q, query embedded with %q",
		ErrEmbedderMismatch.Error(), e.IndexEmbedder, e.QueryEmbedder)
}

func (e *EmbedderMismatchError) Unwrap() error { return ErrEmbedderMismatch }

// NewEmbedderMismatch creates an embedder mismatch error.
func NewEmbedderMismatch(indexEmbedder, queryEmbedder string) error {
	return &EmbedderMismatchError{IndexEmbedder: indexEmbedder, QueryEmbedder: queryEmbedder}
}
