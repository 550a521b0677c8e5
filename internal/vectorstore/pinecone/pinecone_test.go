package pinecone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/knowledge"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore"
)

func newTestStore(t *testing.T, handler http.Handler) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := New(Config{Host: srv.URL, APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestUpsertSendsVectorsWithMetadata(t *testing.T) {
	var got upsertRequest
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/vectors/upsert", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))

	err := s.Upsert(context.Background(), "school", []knowledge.Chunk{{
		ID:         "c1",
		SourceURL:  "https://example.com/fees",
		Title:      "Fees",
		Text:       "Tuition details",
		Position:   3,
		Generation: 42,
		Embedding:  []float32{0.1, 0.2},
	}})
	require.NoError(t, err)

	require.Equal(t, "school", got.Namespace)
	require.Len(t, got.Vectors, 1)
	require.Equal(t, "c1", got.Vectors[0].ID)
	require.Equal(t, "https://example.com/fees", got.Vectors[0].Metadata["source_url"])
	// Numbers stay numbers on the wire; range filters depend on it.
	require.Equal(t, float64(3), got.Vectors[0].Metadata["position"])
	require.Equal(t, float64(42), got.Vectors[0].Metadata["generation"])
}

func TestQueryRebuildsChunksFromMetadata(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 2, req.TopK)
		require.True(t, req.IncludeMetadata)
		w.Write([]byte(`{"matches":[{"id":"c1","score":0.91,"metadata":{
			"source_url":"https://example.com/fees","title":"Fees",
			"text":"Tuition details","position":3,"generation":42}}]}`))
	}))

	results, err := s.Query(context.Background(), "school", []float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "c1", results[0].ID)
	require.Equal(t, 0.91, results[0].Score)
	require.Equal(t, "Tuition details", results[0].Text)
	require.Equal(t, 3, results[0].Position)
	require.Equal(t, int64(42), results[0].Generation)
	require.Equal(t, "school", results[0].Namespace)
}

func TestDeleteSourceBeforeUsesMetadataFilter(t *testing.T) {
	var got deleteRequest
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/vectors/delete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{}`))
	}))

	err := s.DeleteSourceBefore(context.Background(), "school", "https://example.com/fees", 42)
	require.NoError(t, err)
	require.Equal(t, "school", got.Namespace)
	require.Equal(t, map[string]any{"$eq": "https://example.com/fees"}, got.Filter["source_url"])
	// $lt only matches numeric metadata, so the bound must not be a string.
	require.Equal(t, map[string]any{"$lt": float64(42)}, got.Filter["generation"])
}

func TestServerErrorsMarkBackendUnavailable(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))

	_, err := s.Query(context.Background(), "school", []float32{0.1}, 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, vectorstore.ErrUnavailable))
}

func TestClientErrorsAreNotUnavailable(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	_, err := s.Query(context.Background(), "school", []float32{0.1}, 1)
	require.Error(t, err)
	require.False(t, errors.Is(err, vectorstore.ErrUnavailable))
}

func TestCountReadsNamespaceStats(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/describe_index_stats", r.URL.Path)
		w.Write([]byte(`{"namespaces":{"school":{"vectorCount":17}}}`))
	}))

	n, err := s.Count(context.Background(), "school")
	require.NoError(t, err)
	require.Equal(t, 17, n)
}
