package ingest

import "github.com/skryne/ragd/internal/domain"

// DocumentSource yields the corpus to index. The fs loader implements it;
// tests substitute fixtures.
type DocumentSource interface {
	Load() ([]domain.Document, error)
}

// Splitter cuts document text into chunks.
type Splitter interface {
	Split(text, sourceID string) ([]domain.Chunk, error)
}

// Summary reports what one ingestion run did.
type Summary struct {
	Documents int // documents that produced at least one chunk
	Chunks    int // chunks embedded and inserted
	Skipped   int // documents that produced no chunks (empty or whitespace)
}

// Progress is called after each embedded chunk during ingestion; done counts
// up to total. Used by the CLI for its progress bar.
type Progress func(done, total int)
