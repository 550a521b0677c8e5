// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	AI          AIConfig          `mapstructure:"ai"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	Chat        ChatConfig        `mapstructure:"chat"`
	DB          DBConfig          `mapstructure:"db"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	Concurrency      int    `mapstructure:"concurrency"`
	MaxPagesDefault  int    `mapstructure:"max_pages_default"`
	MaxDepthDefault  int    `mapstructure:"max_depth_default"`
	BudgetSeconds    int    `mapstructure:"budget_seconds"`
	DelaySeconds     int    `mapstructure:"delay_seconds"`
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MinContentLength int    `mapstructure:"min_content_length"`
	MaxContentLength int    `mapstructure:"max_content_length"`
}

// AIConfig selects the embedding and generation provider.
type AIConfig struct {
	Provider        string  `mapstructure:"provider"` // openai or mock
	BaseURL         string  `mapstructure:"base_url"`
	Token           string  `mapstructure:"token"`
	EmbeddingModel  string  `mapstructure:"embedding_model"`
	Dimension       int     `mapstructure:"dimension"`
	BatchSize       int     `mapstructure:"batch_size"`
	GenerationModel string  `mapstructure:"generation_model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
}

// VectorStoreConfig binds exactly one backend at startup.
type VectorStoreConfig struct {
	Backend string `mapstructure:"backend"` // local, pinecone, or chroma
	Path    string `mapstructure:"path"`    // local persistence dir, empty = in-memory

	Pinecone PineconeConfig `mapstructure:"pinecone"`
	Chroma   ChromaConfig   `mapstructure:"chroma"`
}

// PineconeConfig holds Pinecone connection settings.
type PineconeConfig struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"api_key"`
}

// ChromaConfig holds Chroma Cloud connection settings.
type ChromaConfig struct {
	Host     string `mapstructure:"host"`
	APIKey   string `mapstructure:"api_key"`
	Tenant   string `mapstructure:"tenant"`
	Database string `mapstructure:"database"`
}

// RetrievalConfig tunes the answer engine.
type RetrievalConfig struct {
	TopK            int     `mapstructure:"top_k"`
	SimilarityFloor float64 `mapstructure:"similarity_floor"`
	MaxContextChars int     `mapstructure:"max_context_chars"`
	MaxSources      int     `mapstructure:"max_sources"`
	ChunkSize       int     `mapstructure:"chunk_size"`
	ChunkOverlap    int     `mapstructure:"chunk_overlap"`
}

// ChatConfig tunes the conversation layer.
type ChatConfig struct {
	Namespace         string `mapstructure:"namespace"`
	SessionTTLMinutes int    `mapstructure:"session_ttl_minutes"`
	SessionPath       string `mapstructure:"session_path"` // secondary store dir, empty = in-memory
}

// DBConfig controls access to the relational database. An empty DSN runs the
// engine without a primary session store or inquiry table.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MinConns     int    `mapstructure:"min_conns"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHATBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("server.shutdown_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("crawler.concurrency", 5)
	v.SetDefault("crawler.max_pages_default", 100)
	v.SetDefault("crawler.max_depth_default", 3)
	v.SetDefault("crawler.budget_seconds", 300)
	v.SetDefault("crawler.delay_seconds", 1)
	v.SetDefault("crawler.user_agent", "school-knowledge-bot/1.0")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.min_content_length", 200)
	v.SetDefault("crawler.max_content_length", 20000)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.embedding_model", "text-embedding-3-small")
	v.SetDefault("ai.dimension", 1536)
	v.SetDefault("ai.batch_size", 32)
	v.SetDefault("ai.generation_model", "gpt-3.5-turbo")
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.max_tokens", 1000)
	v.SetDefault("vector_store.backend", "local")
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.similarity_floor", 0.3)
	v.SetDefault("retrieval.max_context_chars", 4000)
	v.SetDefault("retrieval.max_sources", 3)
	v.SetDefault("retrieval.chunk_size", 1000)
	v.SetDefault("retrieval.chunk_overlap", 200)
	v.SetDefault("chat.namespace", "school")
	v.SetDefault("chat.session_ttl_minutes", 30)
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.min_conns", 1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	switch c.AI.Provider {
	case "openai", "mock":
	default:
		return fmt.Errorf("ai.provider must be openai or mock, got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.Token == "" {
		return fmt.Errorf("ai.token must be set when ai.provider is openai")
	}
	if c.AI.Dimension <= 0 {
		return fmt.Errorf("ai.dimension must be > 0")
	}
	switch c.VectorStore.Backend {
	case "local":
	case "pinecone":
		if c.VectorStore.Pinecone.Host == "" || c.VectorStore.Pinecone.APIKey == "" {
			return fmt.Errorf("vector_store.pinecone.host and api_key are required for the pinecone backend")
		}
	case "chroma":
		ch := c.VectorStore.Chroma
		if ch.Host == "" || ch.APIKey == "" || ch.Tenant == "" || ch.Database == "" {
			return fmt.Errorf("vector_store.chroma host, api_key, tenant, and database are required for the chroma backend")
		}
	default:
		return fmt.Errorf("vector_store.backend must be local, pinecone, or chroma, got %q", c.VectorStore.Backend)
	}
	if c.Retrieval.SimilarityFloor < 0 || c.Retrieval.SimilarityFloor > 1 {
		return fmt.Errorf("retrieval.similarity_floor must be within [0, 1]")
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be smaller than retrieval.chunk_size")
	}
	if c.Chat.Namespace == "" {
		return fmt.Errorf("chat.namespace is required")
	}
	return nil
}

// CrawlBudget returns the per-job wall-clock budget.
func (c Config) CrawlBudget() time.Duration {
	return time.Duration(c.Crawler.BudgetSeconds) * time.Second
}

// CrawlDelay returns the per-host politeness delay.
func (c Config) CrawlDelay() time.Duration {
	return time.Duration(c.Crawler.DelaySeconds) * time.Second
}

// SessionTTL returns how long idle sessions survive.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.Chat.SessionTTLMinutes) * time.Minute
}
