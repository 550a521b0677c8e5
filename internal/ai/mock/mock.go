// Package mock provides deterministic in-process implementations of the ai
// interfaces for tests and offline deployments.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"sync/atomic"
)

// Embedder derives unit vectors from token hashes. Identical text always
// yields the identical vector, and texts sharing tokens land near each other,
// which is enough signal for similarity tests.
type Embedder struct {
	dimension int
	calls     atomic.Int64
}

// NewEmbedder builds a mock embedder with the given output dimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &Embedder{dimension: dimension}
}

// EmbedText embeds a single string.
func (e *Embedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return e.embed(text), nil
}

// EmbedTexts embeds a batch in input order.
func (e *Embedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

// Dimension returns the configured vector length.
func (e *Embedder) Dimension() int { return e.dimension }

// Calls reports how many provider round-trips would have happened.
func (e *Embedder) Calls() int64 { return e.calls.Load() }

func (e *Embedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		idx := binary.BigEndian.Uint32(sum[:4]) % uint32(e.dimension)
		sign := float32(1)
		if sum[4]%2 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	inv := float32(1 / math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// Generator returns a canned completion and records the prompts it saw.
type Generator struct {
	mu       sync.Mutex
	Response string
	Err      error
	Prompts  []string
}

// NewGenerator builds a mock generator with a fixed response.
func NewGenerator(response string) *Generator {
	return &Generator{Response: response}
}

// Generate records the user prompt and returns the canned response or error.
func (g *Generator) Generate(_ context.Context, _, userPrompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Prompts = append(g.Prompts, userPrompt)
	if g.Err != nil {
		return "", g.Err
	}
	return g.Response, nil
}

// CallCount returns how many generations were requested.
func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Prompts)
}
