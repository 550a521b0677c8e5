// Package index turns extracted page text into embedded chunks in the vector
// store. Both the crawler and direct document uploads go through it.
package index

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/ai"
	"github.com/schoolchat/knowledge-engine/internal/chunker"
	"github.com/schoolchat/knowledge-engine/internal/knowledge"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore"
)

// Indexer chunks text, embeds the chunks in batches, and writes them through
// the vector store router.
type Indexer struct {
	chunker   *chunker.Chunker
	embedder  ai.Embedder
	store     *vectorstore.Router
	batchSize int
	logger    *zap.Logger
}

// New wires an indexer. batchSize bounds how many chunks are embedded per
// provider call; values below one fall back to 32.
func New(ch *chunker.Chunker, embedder ai.Embedder, store *vectorstore.Router, batchSize int, logger *zap.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Indexer{
		chunker:   ch,
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
		logger:    logger.Named("indexer"),
	}
}

// NewGeneration returns a fresh generation stamp for a crawl or upload run.
func NewGeneration() int64 { return time.Now().UnixNano() }

// IndexPage chunks and embeds one page under the given generation, upserts
// the chunks, then drops every older generation for the same source. Readers
// querying mid-swap see either the old or the new set, never a mix missing
// both. Returns the number of chunks written.
func (ix *Indexer) IndexPage(ctx context.Context, namespace, sourceURL, title, text string, generation int64) (int, error) {
	pieces := ix.chunker.Split(text)
	if len(pieces) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	chunks := make([]knowledge.Chunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		vectors, err := ix.embedder.EmbedTexts(ctx, pieces[start:end])
		if err != nil {
			return 0, fmt.Errorf("embed %s: %w", sourceURL, err)
		}
		for i, vec := range vectors {
			pos := start + i
			chunks = append(chunks, knowledge.Chunk{
				ID:         knowledge.ChunkID(sourceURL, generation, pos),
				SourceURL:  sourceURL,
				Title:      title,
				Text:       pieces[pos],
				Position:   pos,
				Embedding:  vec,
				Namespace:  namespace,
				Generation: generation,
				CreatedAt:  now,
			})
		}
	}

	if err := ix.store.Upsert(ctx, namespace, chunks); err != nil {
		return 0, fmt.Errorf("upsert %s: %w", sourceURL, err)
	}
	if err := ix.store.DeleteSourceBefore(ctx, namespace, sourceURL, generation); err != nil {
		// The new generation is live; stale chunks linger until the next
		// successful swap for this source.
		ix.logger.Warn("failed to drop superseded chunks",
			zap.String("source_url", sourceURL),
			zap.Int64("generation", generation),
			zap.Error(err),
		)
	}

	ix.logger.Debug("indexed page",
		zap.String("namespace", namespace),
		zap.String("source_url", sourceURL),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}
