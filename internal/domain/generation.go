package domain

import "context"

// Generator produces model answers for fully built prompts.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string) (TokenStream, error)
}

// TokenStream is a finite lazy sequence of answer fragments. Recv returns
// io.EOF after the final fragment and the caller owns pacing: nothing is
// pulled from the model faster than Recv is called. Close releases the
// underlying stream and is safe mid-sequence, which is how cancellation
// stops generation without recording anything.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}
