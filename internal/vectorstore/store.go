// Package vectorstore abstracts vector persistence behind one interface with
// interchangeable backends: an embedded local index, Pinecone, and Chroma
// Cloud. Exactly one backend is bound at startup; callers never see which.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/schoolchat/knowledge-engine/internal/knowledge"
)

// Store is the backend capability set. Upsert is idempotent per chunk ID.
// Query returns results in non-increasing similarity order; ties preserve
// insertion order.
type Store interface {
	Upsert(ctx context.Context, namespace string, chunks []knowledge.Chunk) error
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]knowledge.ScoredChunk, error)
	DeleteNamespace(ctx context.Context, namespace string) error

	// DeleteSourceBefore removes every generation of chunks for sourceURL
	// older than generation. Indexers call it after a new generation is
	// fully written, so readers never observe a partial swap.
	DeleteSourceBefore(ctx context.Context, namespace, sourceURL string, generation int64) error

	Count(ctx context.Context, namespace string) (int, error)
	Close() error
}

// ErrUnavailable marks a backend that could not be reached. The router never
// fails over to a different backend at runtime; selection is a deployment
// decision.
var ErrUnavailable = errors.New("vector store unavailable")

// Unavailable wraps err so errors.Is(err, ErrUnavailable) holds.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Backend names accepted in configuration.
const (
	BackendLocal    = "local"
	BackendPinecone = "pinecone"
	BackendChroma   = "chroma"
)
