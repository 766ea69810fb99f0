package prompt

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/skryne/ragd/internal/domain"
)

func mustAssembler(t *testing.T, cfg AssemblerConfig) *Assembler {
	t.Helper()
	a, err := NewAssembler(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a
}

func candidate(rank int, source, text string) domain.Candidate {
	return domain.Candidate{
		Chunk:    domain.Chunk{Text: text, Source: source, Seq: rank - 1},
		Distance: float64(rank) * 0.1,
		Rank:     rank,
	}
}

func turn(q, a string) domain.Turn {
	return domain.Turn{Question: q, Answer: a}
}

func TestNewAssembler_RejectsNegativeValues(t *testing.T) {
	for _, cfg := range []AssemblerConfig{
		{HistoryWindow: -1},
		{MaxContextChars: -1},
	} {
		if _, err := NewAssembler(cfg); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Errorf("config %+v: expected ErrInvalidConfig, got %v", cfg, err)
		}
	}
}

func TestAssemble_RendersBlocksInRankOrder(t *testing.T) {
	a := mustAssembler(t, AssemblerConfig{})

	ctx := a.Assemble([]domain.Candidate{
		candidate(1, "a.txt", "alpha"),
		candidate(2, "b.txt", "bravo"),
	}, nil)

	want := "[Document 1 from a.txt]:\nalpha\n\n[Document 2 from b.txt]:\nbravo"
	if ctx.Documents != want {
		t.Errorf("documents mismatch:\ngot  %q\nwant %q", ctx.Documents, want)
	}
	if len(ctx.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(ctx.Citations))
	}
	if ctx.Citations[0] != (domain.Citation{Source: "a.txt", Rank: 1}) {
		t.Errorf("unexpected first citation: %+v", ctx.Citations[0])
	}
	if ctx.Citations[1] != (domain.Citation{Source: "b.txt", Rank: 2}) {
		t.Errorf("unexpected second citation: %+v", ctx.Citations[1])
	}
}

func TestAssemble_TruncationDropsLowestRanksFirst(t *testing.T) {
	first := candidate(1, "a.txt", "alpha")
	firstBlock := fmt.Sprintf("[Document 1 from %s]:\n%s", "a.txt", "alpha")

	// budget fits the first block exactly, so rank 2 and 3 must go
	a := mustAssembler(t, AssemblerConfig{MaxContextChars: len(firstBlock)})

	ctx := a.Assemble([]domain.Candidate{
		first,
		candidate(2, "b.txt", "bravo"),
		candidate(3, "c.txt", "charlie"),
	}, nil)

	if ctx.Documents != firstBlock {
		t.Errorf("documents mismatch:\ngot  %q\nwant %q", ctx.Documents, firstBlock)
	}
	if len(ctx.Citations) != 1 || ctx.Citations[0].Source != "a.txt" {
		t.Errorf("citations must name only the included candidate, got %+v", ctx.Citations)
	}
	for _, c := range ctx.Citations {
		if c.Source == "b.txt" || c.Source == "c.txt" {
			t.Errorf("citation references a dropped candidate: %+v", c)
		}
	}
}

func TestAssemble_BudgetCountsRunesNotBytes(t *testing.T) {
	// Cyrillic is two bytes per rune; a byte-counting budget would reject
	// a block that fits the rune budget exactly.
	text := strings.Repeat("д", 40)
	block := fmt.Sprintf("[Document 1 from %s]:\n%s", "ru.txt", text)

	a := mustAssembler(t, AssemblerConfig{MaxContextChars: utf8.RuneCountInString(block)})

	ctx := a.Assemble([]domain.Candidate{candidate(1, "ru.txt", text)}, nil)
	if ctx.Documents != block {
		t.Errorf("block within the rune budget was dropped:\ngot  %q\nwant %q", ctx.Documents, block)
	}
	if len(ctx.Citations) != 1 || ctx.Citations[0].Source != "ru.txt" {
		t.Errorf("unexpected citations: %+v", ctx.Citations)
	}
}

func TestAssemble_HistoryWindowKeepsLastTurns(t *testing.T) {
	a := mustAssembler(t, AssemblerConfig{HistoryWindow: 3})

	turns := []domain.Turn{
		turn("q1", "a1"),
		turn("q2", "a2"),
		turn("q3", "a3"),
		turn("q4", "a4"),
	}
	ctx := a.Assemble(nil, turns)

	if strings.Contains(ctx.History, "q1") {
		t.Errorf("turn outside the window leaked into history: %q", ctx.History)
	}
	for _, q := range []string{"q2", "q3", "q4"} {
		if !strings.Contains(ctx.History, q) {
			t.Errorf("history is missing turn %s: %q", q, ctx.History)
		}
	}
	if !strings.HasPrefix(ctx.History, historyHeader) {
		t.Errorf("history must start with the header, got %q", ctx.History)
	}
}

func TestAssemble_NoTurnsNoHistorySection(t *testing.T) {
	a := mustAssembler(t, AssemblerConfig{})

	ctx := a.Assemble([]domain.Candidate{candidate(1, "a.txt", "alpha")}, nil)
	if ctx.History != "" {
		t.Errorf("expected empty history, got %q", ctx.History)
	}
	if ctx.Text() != ctx.Documents {
		t.Errorf("Text without history must equal Documents")
	}
}

func TestContext_TextPutsHistoryFirst(t *testing.T) {
	a := mustAssembler(t, AssemblerConfig{})

	ctx := a.Assemble(
		[]domain.Candidate{candidate(1, "a.txt", "alpha")},
		[]domain.Turn{turn("earlier question", "earlier answer")},
	)

	text := ctx.Text()
	histAt := strings.Index(text, historyHeader)
	docAt := strings.Index(text, "[Document 1")
	if histAt == -1 || docAt == -1 || histAt > docAt {
		t.Errorf("history must precede document blocks:\n%s", text)
	}
}
