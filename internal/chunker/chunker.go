// Package chunker splits documents into bounded, overlapping chunks along a
// separator hierarchy, preferring paragraph breaks over line breaks over
// sentence ends over word boundaries.
package chunker

import (
	"fmt"
	"strings"

	"github.com/skryne/ragd/internal/domain"
)

// DefaultSeparators is the cut-point hierarchy, coarsest first. The empty
// string is the hard-cut sentinel: split mid-word at the window end.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", ". ", " ", ""}
}

// Config holds splitter settings. All sizes are in runes, not bytes.
type Config struct {
	MaxChunkChars int      // hard upper bound per chunk, required
	OverlapChars  int      // trailing runes repeated at the next chunk start
	MinChunkChars int      // floor for non-final chunks; 0 disables the floor
	Separators    []string // coarse-to-fine; empty slice selects DefaultSeparators
}

// Splitter cuts document text into chunks. A Splitter is immutable and safe
// for concurrent use.
type Splitter struct {
	maxChars   int
	overlap    int
	minChars   int
	separators []string
}

// New validates the configuration eagerly and returns a ready splitter.
func New(cfg Config) (*Splitter, error) {
	if cfg.MaxChunkChars <= 0 {
		return nil, fmt.Errorf("max_chunk_chars must be positive, got %d: %w",
			cfg.MaxChunkChars, domain.ErrInvalidConfig)
	}
	if cfg.OverlapChars < 0 || cfg.OverlapChars >= cfg.MaxChunkChars {
		return nil, fmt.Errorf("overlap_chars must be in [0, %d), got %d: %w",
			cfg.MaxChunkChars, cfg.OverlapChars, domain.ErrInvalidConfig)
	}
	if cfg.MinChunkChars < 0 || cfg.MinChunkChars >= cfg.MaxChunkChars {
		return nil, fmt.Errorf("min_chunk_chars must be in [0, %d), got %d: %w",
			cfg.MaxChunkChars, cfg.MinChunkChars, domain.ErrInvalidConfig)
	}
	seps := cfg.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators()
	}
	return &Splitter{
		maxChars:   cfg.MaxChunkChars,
		overlap:    cfg.OverlapChars,
		minChars:   cfg.MinChunkChars,
		separators: seps,
	}, nil
}

// Split cuts text into chunks tagged with sourceID. The whole document is
// processed eagerly and the result is deterministic for identical input and
// settings. Blank text yields zero chunks and no error; the caller decides
// whether an empty document is worth reporting.
//
// Each chunk after the first starts OverlapChars runes before the previous
// cut, so consecutive chunks share context. Concatenating the chunks in Seq
// order minus those shared prefixes reproduces the document exactly.
func (s *Splitter) Split(text, sourceID string) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	runes := []rune(text)

	var chunks []domain.Chunk
	start := 0
	for seq := 0; start < len(runes); seq++ {
		if len(runes)-start <= s.maxChars {
			chunks = append(chunks, domain.Chunk{
				Text:   string(runes[start:]),
				Source: sourceID,
				Seq:    seq,
				Offset: start,
			})
			break
		}

		window := runes[start : start+s.maxChars]
		cut := s.cutPoint(window)
		chunks = append(chunks, domain.Chunk{
			Text:   string(window[:cut]),
			Source: sourceID,
			Seq:    seq,
			Offset: start,
		})

		next := start + cut - s.overlap
		if next <= start {
			// degenerate cut close to the window start: applying the
			// overlap would revisit ground already emitted, so skip it
			next = start + cut
		}
		start = next
	}
	return chunks, nil
}

// cutPoint returns how many runes of the window to keep. Separators are
// tried coarsest first; within one separator the rightmost occurrence wins,
// as long as it leaves at least minChars in the chunk. Without any usable
// separator the window is cut at its end.
func (s *Splitter) cutPoint(window []rune) int {
	for _, sep := range s.separators {
		if sep == "" {
			return len(window)
		}
		if cut := lastCut(window, []rune(sep), s.minChars); cut > 0 {
			return cut
		}
	}
	return len(window)
}

// lastCut finds the rightmost occurrence of sep fully inside the window and
// returns the rune position just past it. Zero means no occurrence cuts at
// or beyond min; occurrences further left only cut shorter, so the scan
// stops at the first (rightmost) match.
func lastCut(window, sep []rune, min int) int {
	if len(sep) > len(window) {
		return 0
	}
	for at := len(window) - len(sep); at >= 0; at-- {
		if !runesEqual(window[at:at+len(sep)], sep) {
			continue
		}
		if cut := at + len(sep); cut >= min {
			return cut
		}
		return 0
	}
	return 0
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
