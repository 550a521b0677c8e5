package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/knowledge"
	"github.com/schoolchat/knowledge-engine/internal/metrics"
)

// Router fronts the bound backend. It validates namespaces and vector
// dimensionality so no backend ever mixes vectors from two embedding models
// within one namespace, and it is the single place query/upsert metrics are
// counted.
type Router struct {
	backend   Store
	dimension int
	logger    *zap.Logger

	mu   sync.Mutex
	dims map[string]int // namespace -> dimension seen first
}

// NewRouter wraps a backend. dimension is the embedder's configured output
// size; every vector crossing the router must match it.
func NewRouter(backend Store, dimension int, logger *zap.Logger) *Router {
	return &Router{
		backend:   backend,
		dimension: dimension,
		logger:    logger.Named("vectorstore"),
		dims:      make(map[string]int),
	}
}

// Upsert validates and forwards a chunk batch.
func (r *Router) Upsert(ctx context.Context, namespace string, chunks []knowledge.Chunk) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	for _, c := range chunks {
		if err := r.checkDimension(namespace, len(c.Embedding)); err != nil {
			return err
		}
	}
	if err := r.backend.Upsert(ctx, namespace, chunks); err != nil {
		return err
	}
	metrics.ObserveUpsert(len(chunks))
	return nil
}

// Query validates and forwards a similarity query.
func (r *Router) Query(ctx context.Context, namespace string, vector []float32, k int) ([]knowledge.ScoredChunk, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if err := r.checkDimension(namespace, len(vector)); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 5
	}
	results, err := r.backend.Query(ctx, namespace, vector, k)
	if err != nil {
		metrics.ObserveVectorQuery("error")
		return nil, err
	}
	metrics.ObserveVectorQuery("ok")
	return results, nil
}

// DeleteNamespace drops every chunk in a namespace.
func (r *Router) DeleteNamespace(ctx context.Context, namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	r.mu.Lock()
	delete(r.dims, namespace)
	r.mu.Unlock()
	return r.backend.DeleteNamespace(ctx, namespace)
}

// DeleteSourceBefore removes superseded generations for one source URL.
func (r *Router) DeleteSourceBefore(ctx context.Context, namespace, sourceURL string, generation int64) error {
	return r.backend.DeleteSourceBefore(ctx, namespace, sourceURL, generation)
}

// Count reports how many chunks a namespace holds.
func (r *Router) Count(ctx context.Context, namespace string) (int, error) {
	return r.backend.Count(ctx, namespace)
}

// Close releases backend resources.
func (r *Router) Close() error { return r.backend.Close() }

func (r *Router) checkDimension(namespace string, got int) error {
	if got != r.dimension {
		return fmt.Errorf("namespace %q: vector dimension %d does not match configured %d", namespace, got, r.dimension)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.dims[namespace]; ok && prev != got {
		return fmt.Errorf("namespace %q already holds %d-dimensional vectors", namespace, prev)
	}
	r.dims[namespace] = got
	return nil
}
