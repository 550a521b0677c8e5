// Package pinecone implements the vector store interface over the Pinecone
// REST API. One Pinecone index holds all namespaces; the namespace field of
// each request scopes operations.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/knowledge"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore"
)

const (
	defaultTimeout = 30 * time.Second
	upsertBatch    = 100
)

// Config carries the connection settings for one Pinecone index.
type Config struct {
	// Host is the index endpoint, e.g. https://my-index-abc123.svc.pinecone.io.
	Host   string
	APIKey string
}

// Store talks to a single Pinecone index.
type Store struct {
	host   string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

// New builds a Pinecone-backed store. It does not contact the service;
// the first operation surfaces connectivity problems.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("pinecone host is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone api key is required")
	}
	return &Store{
		host:   cfg.Host,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger.Named("pinecone"),
	}, nil
}

type vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []vector `json:"vectors"`
	Namespace string   `json:"namespace"`
}

// Upsert writes chunks in batches. Chunk fields ride along as metadata so
// query matches can be rehydrated without a second lookup. Position and
// generation are stored as numbers; Pinecone range filters only match
// numeric metadata.
func (s *Store) Upsert(ctx context.Context, namespace string, chunks []knowledge.Chunk) error {
	for start := 0; start < len(chunks); start += upsertBatch {
		end := start + upsertBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		req := upsertRequest{Namespace: namespace, Vectors: make([]vector, 0, end-start)}
		for _, c := range chunks[start:end] {
			req.Vectors = append(req.Vectors, vector{
				ID:     c.ID,
				Values: c.Embedding,
				Metadata: map[string]any{
					"source_url": c.SourceURL,
					"title":      c.Title,
					"text":       c.Text,
					"position":   c.Position,
					"generation": c.Generation,
				},
			})
		}
		if err := s.post(ctx, "/vectors/upsert", req, nil); err != nil {
			return fmt.Errorf("pinecone upsert: %w", err)
		}
	}
	return nil
}

type queryRequest struct {
	Namespace       string    `json:"namespace"`
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

// Query runs a cosine similarity search and rebuilds chunks from metadata.
func (s *Store) Query(ctx context.Context, namespace string, vec []float32, k int) ([]knowledge.ScoredChunk, error) {
	var resp queryResponse
	err := s.post(ctx, "/query", queryRequest{
		Namespace:       namespace,
		Vector:          vec,
		TopK:            k,
		IncludeMetadata: true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("pinecone query: %w", err)
	}
	out := make([]knowledge.ScoredChunk, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		pos, _ := m.Metadata["position"].(float64)
		gen, _ := m.Metadata["generation"].(float64)
		out = append(out, knowledge.ScoredChunk{
			Chunk: knowledge.Chunk{
				ID:         m.ID,
				SourceURL:  metaString(m.Metadata, "source_url"),
				Title:      metaString(m.Metadata, "title"),
				Text:       metaString(m.Metadata, "text"),
				Position:   int(pos),
				Generation: int64(gen),
				Namespace:  namespace,
			},
			Score: m.Score,
		})
	}
	return out, nil
}

func metaString(md map[string]any, key string) string {
	s, _ := md[key].(string)
	return s
}

type deleteRequest struct {
	Namespace string            `json:"namespace"`
	DeleteAll bool              `json:"deleteAll,omitempty"`
	Filter    map[string]any    `json:"filter,omitempty"`
	IDs       []string          `json:"ids,omitempty"`
}

// DeleteNamespace removes every vector in the namespace.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	err := s.post(ctx, "/vectors/delete", deleteRequest{Namespace: namespace, DeleteAll: true}, nil)
	if err != nil {
		return fmt.Errorf("pinecone delete namespace: %w", err)
	}
	return nil
}

// DeleteSourceBefore removes superseded generations of one source via a
// metadata filter.
func (s *Store) DeleteSourceBefore(ctx context.Context, namespace, sourceURL string, generation int64) error {
	err := s.post(ctx, "/vectors/delete", deleteRequest{
		Namespace: namespace,
		Filter: map[string]any{
			"source_url": map[string]any{"$eq": sourceURL},
			"generation": map[string]any{"$lt": generation},
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("pinecone delete source: %w", err)
	}
	return nil
}

type statsResponse struct {
	Namespaces map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
}

// Count reads the per-namespace vector count from index stats.
func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	var resp statsResponse
	if err := s.post(ctx, "/describe_index_stats", struct{}{}, &resp); err != nil {
		return 0, fmt.Errorf("pinecone stats: %w", err)
	}
	return resp.Namespaces[namespace].VectorCount, nil
}

// Close is a no-op; the store holds no persistent connections.
func (s *Store) Close() error { return nil }

func (s *Store) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return vectorstore.Unavailable(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return vectorstore.Unavailable(err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return vectorstore.Unavailable(fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
