package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/ai/mock"
	"github.com/schoolchat/knowledge-engine/internal/answer"
	"github.com/schoolchat/knowledge-engine/internal/chat"
	"github.com/schoolchat/knowledge-engine/internal/chunker"
	"github.com/schoolchat/knowledge-engine/internal/crawler"
	"github.com/schoolchat/knowledge-engine/internal/index"
	"github.com/schoolchat/knowledge-engine/internal/inquiry"
	"github.com/schoolchat/knowledge-engine/internal/session"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore/memory"
)

// nullFetcher fails every fetch; API tests never crawl real pages.
type nullFetcher struct{}

func (nullFetcher) Fetch(_ context.Context, url string) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{URL: url, StatusCode: http.StatusNotFound}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()

	backend, err := memory.Open("", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	embedder := mock.NewEmbedder(32)
	generator := mock.NewGenerator("Our school was founded in 1985.")
	router := vectorstore.NewRouter(backend, embedder.Dimension(), logger)
	ix := index.New(chunker.New(1000, 200), embedder, router, 32, logger)

	crawls, err := crawler.NewService(context.Background(), crawler.Config{RequestDelay: time.Millisecond}, nullFetcher{}, ix, crawler.NewJobStore(), logger)
	require.NoError(t, err)
	t.Cleanup(crawls.Close)

	secondary, err := session.NewBadgerStore("", time.Hour, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = secondary.Close() })
	sessions := session.NewTieredStore(nil, secondary, time.Hour, logger)

	engine := answer.New(embedder, generator, router, answer.Options{Namespace: "school", SimilarityFloor: 0.05}, logger)
	machine := chat.NewMachine(sessions, engine, inquiry.NewLogEmitter(logger), "school", logger)

	server := NewServer(crawls, ix, machine, "school", time.Minute, logger)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestCrawlSubmitStatusCancelFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/crawl", map[string]any{
		"seed_url": "https://school.example.com/",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	job := decode[crawler.Job](t, resp)
	require.NotEmpty(t, job.ID)
	require.Equal(t, "school", job.Namespace)

	resp, err := http.Get(srv.URL + "/v1/crawl/" + job.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[crawler.Job](t, resp)
	require.Equal(t, job.ID, got.ID)

	resp, err = http.Get(srv.URL + "/v1/crawl/does-not-exist")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCrawlSubmitValidation(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/crawl", map[string]any{"seed_url": "not a url"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDocumentUploadAndChatAnswer(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/documents", map[string]any{
		"source_url": "https://school.example.com/prospectus",
		"title":      "Prospectus",
		"text":       "Our school was founded in 1985 and has a long history of academic excellence.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	upload := decode[map[string]int](t, resp)
	require.Greater(t, upload["chunks_indexed"], 0)

	// Walk the lead flow into knowledge mode, then ask a question.
	messages := []string{"hi", "new parent", "day", "priya sharma", "9876543210", "yes"}
	for _, msg := range messages {
		resp = postJSON(t, srv.URL+"/v1/chat", map[string]any{"user_id": "u1", "message": msg})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp = postJSON(t, srv.URL+"/v1/chat", map[string]any{"user_id": "u1", "message": "When was the school founded?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turn := decode[chat.TurnResult](t, resp)
	require.Equal(t, "Our school was founded in 1985.", turn.Response)
}

func TestDocumentUploadValidation(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/documents", map[string]any{"text": "   "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/documents", map[string]any{"text": "content without a source"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestChatRequiresUserID(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/chat", map[string]any{"message": "hi"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestChatReset(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/chat", map[string]any{"user_id": "u1", "message": "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/chat/reset", map[string]any{"user_id": "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/chat", map[string]any{"user_id": "u1", "message": "hello"})
	turn := decode[chat.TurnResult](t, resp)
	require.Equal(t, "PARENT_TYPE", turn.State)
}
