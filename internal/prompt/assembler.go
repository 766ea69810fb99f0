// Package prompt renders retrieved chunks and conversation history into the
// text handed to the generation model. The assembler decides what fits the
// context budget; the builder wraps it in the fixed instruction template.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/skryne/ragd/internal/domain"
)

const (
	// DefaultHistoryWindow is how many past turns accompany a question.
	DefaultHistoryWindow = 3
	// DefaultMaxContextChars bounds the rendered document context.
	DefaultMaxContextChars = 8000
)

const historyHeader = "Previous conversation:"

// blockSeparator joins rendered document blocks and separates the history
// section from them.
const blockSeparator = "\n\n"

// AssemblerConfig bounds the two context sources independently: documents by
// characters, history by turn count. Turns are short, so a count cap is the
// simpler sufficient bound for them.
type AssemblerConfig struct {
	HistoryWindow   int // past turns included; 0 selects the default
	MaxContextChars int // rune budget for rendered document blocks; 0 selects the default
}

// Assembler merges candidates and recent turns into a bounded context.
type Assembler struct {
	historyWindow   int
	maxContextChars int
}

// NewAssembler creates an assembler, filling zero fields with defaults.
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.HistoryWindow < 0 {
		return nil, fmt.Errorf("history_window must not be negative, got %d: %w",
			cfg.HistoryWindow, domain.ErrInvalidConfig)
	}
	if cfg.MaxContextChars < 0 {
		return nil, fmt.Errorf("max_context_chars must not be negative, got %d: %w",
			cfg.MaxContextChars, domain.ErrInvalidConfig)
	}
	a := &Assembler{historyWindow: cfg.HistoryWindow, maxContextChars: cfg.MaxContextChars}
	if a.historyWindow == 0 {
		a.historyWindow = DefaultHistoryWindow
	}
	if a.maxContextChars == 0 {
		a.maxContextChars = DefaultMaxContextChars
	}
	return a, nil
}

// HistoryWindow reports how many past turns the assembler renders, so the
// caller can fetch exactly that many from the conversation store.
func (a *Assembler) HistoryWindow() int { return a.historyWindow }

// Context is the assembled payload plus the citations that match it. The
// citation list names exactly the candidates whose blocks made it into
// Documents, in rank order, so an answer never cites a dropped source.
type Context struct {
	History   string
	Documents string
	Citations []domain.Citation
}

// Text renders the full context, history first, then the document blocks.
func (c Context) Text() string {
	if c.History == "" {
		return c.Documents
	}
	return c.History + blockSeparator + c.Documents
}

// Assemble renders candidates in rank order until the character budget is
// reached; the first candidate that would overflow it is dropped along with
// everything ranked below it. turns is the session's full history; only the
// last HistoryWindow entries are rendered.
func (a *Assembler) Assemble(candidates []domain.Candidate, turns []domain.Turn) Context {
	var blocks strings.Builder
	citations := make([]domain.Citation, 0, len(candidates))

	used := 0
	for _, c := range candidates {
		block := fmt.Sprintf("[Document %d from %s]:\n%s", c.Rank, c.Chunk.Source, c.Chunk.Text)
		// the budget is in runes, like every other size in the pipeline
		cost := utf8.RuneCountInString(block)
		if used > 0 {
			cost += utf8.RuneCountInString(blockSeparator)
		}
		if used+cost > a.maxContextChars {
			break
		}
		if used > 0 {
			blocks.WriteString(blockSeparator)
		}
		blocks.WriteString(block)
		used += cost
		citations = append(citations, domain.Citation{Source: c.Chunk.Source, Rank: c.Rank})
	}

	return Context{
		History:   a.renderHistory(turns),
		Documents: blocks.String(),
		Citations: citations,
	}
}

func (a *Assembler) renderHistory(turns []domain.Turn) string {
	if len(turns) == 0 || a.historyWindow == 0 {
		return ""
	}
	if len(turns) > a.historyWindow {
		turns = turns[len(turns)-a.historyWindow:]
	}
	var b strings.Builder
	b.WriteString(historyHeader)
	for _, t := range turns {
		b.WriteString("\nUser: ")
		b.WriteString(t.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Answer)
	}
	return b.String()
}
