package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  timeout_seconds: 30
logging:
  development: false
crawler:
  concurrency: 8
  max_pages_default: 100
  max_depth_default: 4
  budget_seconds: 120
  delay_seconds: 2
  user_agent: school-bot-test
ai:
  provider: mock
  dimension: 64
  batch_size: 16
vector_store:
  backend: local
  path: /tmp/vectors
retrieval:
  top_k: 8
  similarity_floor: 0.5
  max_context_chars: 2000
chat:
  namespace: greenfield
  session_ttl_minutes: 45
db:
  dsn: postgres://localhost/chatbot
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
	if cfg.Crawler.Concurrency != 8 || cfg.Crawler.UserAgent != "school-bot-test" {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.AI.Provider != "mock" || cfg.AI.Dimension != 64 {
		t.Fatalf("expected ai overrides to apply: %+v", cfg.AI)
	}
	if cfg.Retrieval.TopK != 8 || cfg.Retrieval.SimilarityFloor != 0.5 {
		t.Fatalf("expected retrieval overrides to apply: %+v", cfg.Retrieval)
	}
	if cfg.Chat.Namespace != "greenfield" {
		t.Fatalf("expected chat namespace override, got %q", cfg.Chat.Namespace)
	}
	if got := cfg.CrawlBudget(); got != 120*time.Second {
		t.Fatalf("expected crawl budget 120s, got %v", got)
	}
	if got := cfg.SessionTTL(); got != 45*time.Minute {
		t.Fatalf("expected session ttl 45m, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	// Only the AI provider is set; everything else comes from defaults.
	if err := os.WriteFile(path, []byte("ai:\n  provider: mock\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.MaxPagesDefault != 100 || cfg.Crawler.BudgetSeconds != 300 {
		t.Fatalf("expected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.SimilarityFloor != 0.3 {
		t.Fatalf("expected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.ChunkSize != 1000 || cfg.Retrieval.ChunkOverlap != 200 {
		t.Fatalf("expected chunking defaults: %+v", cfg.Retrieval)
	}
	if cfg.VectorStore.Backend != "local" {
		t.Fatalf("expected local backend default, got %q", cfg.VectorStore.Backend)
	}
	if cfg.Chat.SessionTTLMinutes != 30 {
		t.Fatalf("expected 30 minute session ttl, got %d", cfg.Chat.SessionTTLMinutes)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:      ServerConfig{Port: 8080},
		Crawler:     CrawlerConfig{Concurrency: 5},
		AI:          AIConfig{Provider: "mock", Dimension: 64},
		VectorStore: VectorStoreConfig{Backend: "local"},
		Retrieval:   RetrievalConfig{SimilarityFloor: 0.3, ChunkSize: 1000, ChunkOverlap: 200},
		Chat:        ChatConfig{Namespace: "school"},
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"unknown provider", func(c *Config) { c.AI.Provider = "llama" }, "ai.provider"},
		{"openai without token", func(c *Config) { c.AI.Provider = "openai" }, "ai.token"},
		{"bad dimension", func(c *Config) { c.AI.Dimension = 0 }, "ai.dimension"},
		{"unknown backend", func(c *Config) { c.VectorStore.Backend = "faiss" }, "vector_store.backend"},
		{"pinecone missing key", func(c *Config) { c.VectorStore.Backend = "pinecone" }, "pinecone"},
		{"chroma missing tenant", func(c *Config) { c.VectorStore.Backend = "chroma" }, "chroma"},
		{"floor out of range", func(c *Config) { c.Retrieval.SimilarityFloor = 1.5 }, "similarity_floor"},
		{"overlap too large", func(c *Config) { c.Retrieval.ChunkOverlap = 1000 }, "chunk_overlap"},
		{"missing namespace", func(c *Config) { c.Chat.Namespace = "" }, "chat.namespace"},
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.wantErr)
		}
	}
}
