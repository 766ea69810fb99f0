package prompt

import "strings"

// The template states the grounding rules up front and repeats them in the
// closing instruction. A single statement was not enough to keep small local
// models from drifting into general knowledge; the repetition is load-bearing.
// Only the context and question payloads vary between calls, so document
// content can never rewrite the instructions themselves.
const (
	promptPreamble = `You are a helpful assistant answering questions based ONLY on the provided documents.

IMPORTANT INSTRUCTIONS:
1. Answer ONLY using information from the Context below
2. If the Context does not contain the answer, say "I don't have that information in the documents"
3. Do NOT make up information or use outside knowledge
4. Cite the labeled document you are drawing from when relevant
5. Be specific and accurate`

	promptContextHeader = "Context from documents:"
	promptClosing       = "Answer (based ONLY on the Context above):"
)

// Build renders the final prompt for one question. Deterministic: identical
// context and question always produce identical text.
func Build(ctx Context, question string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\n")
	if ctx.History != "" {
		b.WriteString(ctx.History)
		b.WriteString("\n\n")
	}
	b.WriteString(promptContextHeader)
	b.WriteString("\n")
	b.WriteString(ctx.Documents)
	b.WriteString("\n\nUser Question: ")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(promptClosing)
	return b.String()
}
