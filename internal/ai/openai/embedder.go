// Package openai implements the ai provider interfaces against any
// OpenAI-compatible endpoint via langchaingo.
package openai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/ai"
)

// Embedder implements ai.Embedder using an OpenAI-compatible embeddings API.
type Embedder struct {
	embedder  embeddings.Embedder
	dimension int
	batchSize int
	logger    *zap.Logger
}

// NewEmbedder builds an Embedder from config. The returned value is safe for
// concurrent use.
func NewEmbedder(cfg *ai.Config, logger *zap.Logger) (*Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(cfg.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("wrap embedder: %w", err)
	}

	return &Embedder{
		embedder:  embedder,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		logger:    logger.Named("embedder"),
	}, nil
}

// EmbedText embeds a single string, retrying transient provider failures.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, &ai.ProviderError{Op: "embed", Err: fmt.Errorf("provider returned no vectors")}
	}
	return vectors[0], nil
}

// EmbedTexts embeds a batch in input order. A failure after retries surfaces
// as ai.ErrProvider; an empty vector is never substituted.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var vectors [][]float32
	err := ai.Retry(ctx, func() error {
		var opErr error
		vectors, opErr = e.embedder.EmbedDocuments(ctx, texts)
		return opErr
	})
	if err != nil {
		e.logger.Error("embedding failed", zap.Int("count", len(texts)), zap.Error(err))
		return nil, &ai.ProviderError{Op: "embed", Err: err}
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, &ai.ProviderError{
				Op:  "embed",
				Err: fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), e.dimension),
			}
		}
	}
	e.logger.Debug("embedded batch", zap.Int("count", len(texts)))
	return vectors, nil
}

// Dimension returns the configured output vector length.
func (e *Embedder) Dimension() int { return e.dimension }
