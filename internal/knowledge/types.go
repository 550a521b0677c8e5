// Package knowledge defines the core types shared by the ingestion and
// retrieval subsystems: indexed chunks and scored query results.
package knowledge

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Chunk is one embedded slice of a source document. Chunks are immutable once
// written; a re-crawl of the same source URL writes a new generation and the
// stale generation is deleted after the new one is fully visible.
type Chunk struct {
	ID         string    `json:"id"`
	SourceURL  string    `json:"source_url"`
	Title      string    `json:"title,omitempty"`
	Text       string    `json:"text"`
	Position   int       `json:"position"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Namespace  string    `json:"namespace"`
	Generation int64     `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredChunk pairs a chunk with its similarity to a query vector. The chunk
// is embedded so callers read match fields directly.
type ScoredChunk struct {
	Chunk `json:"chunk"`
	Score float64 `json:"score"`
}

// ChunkID builds the deterministic chunk identifier. The source hash keeps
// IDs stable across crawls of the same URL; the generation distinguishes
// crawl runs so a new generation never overwrites a live one mid-write.
func ChunkID(sourceURL string, generation int64, position int) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return fmt.Sprintf("%x:%d:%d", sum[:8], generation, position)
}

// SourceKey returns the stable per-URL prefix shared by every generation of
// chunks for that URL, used by backends to delete superseded generations.
func SourceKey(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return fmt.Sprintf("%x", sum[:8])
}
