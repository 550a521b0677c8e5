// Package ai defines the embedding and language-generation provider
// abstractions used by the indexing pipeline and the answer engine.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// Embedder turns text into fixed-length vectors. Implementations must be
// safe for concurrent use; crawler workers embed in parallel.
type Embedder interface {
	// EmbedText embeds a single string, typically a user query.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds a batch in input order. Batching amortizes the
	// provider round-trip during indexing.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the configured output vector length. Every namespace is
	// bound to exactly one embedding model, so stores use this to reject
	// mismatched vectors.
	Dimension() int
}

// Generator produces an answer from an assembled context and a question.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrProvider is the base error for embedding/generation failures that
// persisted through retries.
var ErrProvider = errors.New("ai provider error")

// ProviderError wraps a provider failure with the operation that failed.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("ai %s: %v", e.Op, e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrProvider) match any wrapped provider failure.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }
