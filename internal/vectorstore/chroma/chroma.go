// Package chroma implements the vector store interface over the Chroma Cloud
// REST API. Each namespace maps to one Chroma collection; collections are
// created lazily on first write.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/knowledge"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore"
)

const defaultTimeout = 30 * time.Second

// Config carries the connection settings for one Chroma Cloud database.
type Config struct {
	// Host is the API endpoint, e.g. https://api.trychroma.com.
	Host     string
	APIKey   string
	Tenant   string
	Database string
}

// Store talks to one Chroma Cloud database, one collection per namespace.
type Store struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	collections map[string]string // namespace -> collection id
}

// New builds a Chroma-backed store. Connectivity is verified lazily.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("chroma host is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("chroma api key is required")
	}
	if cfg.Tenant == "" || cfg.Database == "" {
		return nil, fmt.Errorf("chroma tenant and database are required")
	}
	return &Store{
		cfg:         cfg,
		client:      &http.Client{Timeout: defaultTimeout},
		logger:      logger.Named("chroma"),
		collections: make(map[string]string),
	}, nil
}

func (s *Store) baseURL() string {
	return fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s", s.cfg.Host, s.cfg.Tenant, s.cfg.Database)
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// collection resolves the collection ID for a namespace, creating the
// collection if it does not exist yet.
func (s *Store) collection(ctx context.Context, namespace string) (string, error) {
	s.mu.Lock()
	if id, ok := s.collections[namespace]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	var resp collectionResponse
	err := s.do(ctx, http.MethodPost, s.baseURL()+"/collections", map[string]any{
		"name":          namespace,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("chroma get or create collection: %w", err)
	}

	s.mu.Lock()
	s.collections[namespace] = resp.ID
	s.mu.Unlock()
	return resp.ID, nil
}

type upsertRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Documents  []string         `json:"documents"`
	Metadatas  []map[string]any `json:"metadatas"`
}

// Upsert writes chunks into the namespace's collection.
func (s *Store) Upsert(ctx context.Context, namespace string, chunks []knowledge.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	collID, err := s.collection(ctx, namespace)
	if err != nil {
		return err
	}
	req := upsertRequest{
		IDs:        make([]string, 0, len(chunks)),
		Embeddings: make([][]float32, 0, len(chunks)),
		Documents:  make([]string, 0, len(chunks)),
		Metadatas:  make([]map[string]any, 0, len(chunks)),
	}
	for _, c := range chunks {
		req.IDs = append(req.IDs, c.ID)
		req.Embeddings = append(req.Embeddings, c.Embedding)
		req.Documents = append(req.Documents, c.Text)
		req.Metadatas = append(req.Metadatas, map[string]any{
			"source_url": c.SourceURL,
			"title":      c.Title,
			"position":   c.Position,
			"generation": c.Generation,
		})
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(collID)+"/upsert", req, nil); err != nil {
		return fmt.Errorf("chroma upsert: %w", err)
	}
	return nil
}

type queryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Query runs a similarity search. Chroma returns cosine distance, which is
// converted back to similarity so scores are comparable across backends.
func (s *Store) Query(ctx context.Context, namespace string, vec []float32, k int) ([]knowledge.ScoredChunk, error) {
	collID, err := s.collection(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var resp queryResponse
	err = s.do(ctx, http.MethodPost, s.collectionURL(collID)+"/query", queryRequest{
		QueryEmbeddings: [][]float32{vec},
		NResults:        k,
		Include:         []string{"documents", "metadatas", "distances"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("chroma query: %w", err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	ids := resp.IDs[0]
	out := make([]knowledge.ScoredChunk, 0, len(ids))
	for i, id := range ids {
		c := knowledge.Chunk{ID: id, Namespace: namespace}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			c.Text = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			md := resp.Metadatas[0][i]
			c.SourceURL, _ = md["source_url"].(string)
			c.Title, _ = md["title"].(string)
			if v, ok := md["position"].(float64); ok {
				c.Position = int(v)
			}
			if v, ok := md["generation"].(float64); ok {
				c.Generation = int64(v)
			}
		}
		score := 0.0
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			score = 1 - resp.Distances[0][i]
		}
		out = append(out, knowledge.ScoredChunk{Chunk: c, Score: score})
	}
	return out, nil
}

// DeleteNamespace removes the namespace's collection entirely.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	err := s.do(ctx, http.MethodDelete, s.baseURL()+"/collections/"+namespace, nil, nil)
	if err != nil {
		return fmt.Errorf("chroma delete collection: %w", err)
	}
	s.mu.Lock()
	delete(s.collections, namespace)
	s.mu.Unlock()
	return nil
}

// DeleteSourceBefore removes superseded generations of one source via a
// metadata where-filter.
func (s *Store) DeleteSourceBefore(ctx context.Context, namespace, sourceURL string, generation int64) error {
	collID, err := s.collection(ctx, namespace)
	if err != nil {
		return err
	}
	err = s.do(ctx, http.MethodPost, s.collectionURL(collID)+"/delete", map[string]any{
		"where": map[string]any{
			"$and": []map[string]any{
				{"source_url": map[string]any{"$eq": sourceURL}},
				{"generation": map[string]any{"$lt": generation}},
			},
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("chroma delete source: %w", err)
	}
	return nil
}

// Count reads the collection's record count.
func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	collID, err := s.collection(ctx, namespace)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.do(ctx, http.MethodGet, s.collectionURL(collID)+"/count", nil, &count); err != nil {
		return 0, fmt.Errorf("chroma count: %w", err)
	}
	return count, nil
}

// Close is a no-op; the store holds no persistent connections.
func (s *Store) Close() error { return nil }

func (s *Store) collectionURL(collID string) string {
	return s.baseURL() + "/collections/" + collID
}

func (s *Store) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Chroma-Token", s.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

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
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
