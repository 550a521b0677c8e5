// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/ai"
	aimock "github.com/schoolchat/knowledge-engine/internal/ai/mock"
	aiopenai "github.com/schoolchat/knowledge-engine/internal/ai/openai"
	"github.com/schoolchat/knowledge-engine/internal/answer"
	"github.com/schoolchat/knowledge-engine/internal/api"
	"github.com/schoolchat/knowledge-engine/internal/chat"
	"github.com/schoolchat/knowledge-engine/internal/chunker"
	"github.com/schoolchat/knowledge-engine/internal/config"
	"github.com/schoolchat/knowledge-engine/internal/crawler"
	"github.com/schoolchat/knowledge-engine/internal/extract"
	"github.com/schoolchat/knowledge-engine/internal/index"
	"github.com/schoolchat/knowledge-engine/internal/inquiry"
	"github.com/schoolchat/knowledge-engine/internal/session"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore/chroma"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore/memory"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore/pinecone"
)

// App holds the wired services for one engine process.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Server *api.Server

	crawls   *crawler.Service
	store    *vectorstore.Router
	sessions *session.TieredStore
	pool     *pgxpool.Pool
}

// New builds the service graph from configuration. It fails fast when any
// critical dependency cannot be constructed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	embedder, generator, err := buildAI(cfg.AI, logger)
	if err != nil {
		return nil, err
	}

	backend, err := buildBackend(cfg.VectorStore, logger)
	if err != nil {
		return nil, err
	}
	store := vectorstore.NewRouter(backend, cfg.AI.Dimension, logger)

	ch := chunker.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	indexer := index.New(ch, embedder, store, cfg.AI.BatchSize, logger)

	fetcher := crawler.NewCollyFetcher(crawler.FetcherConfig{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   time.Duration(cfg.Crawler.TimeoutSeconds) * time.Second,
	})
	crawls, err := crawler.NewService(ctx, crawler.Config{
		Concurrency:     cfg.Crawler.Concurrency,
		DefaultMaxPages: cfg.Crawler.MaxPagesDefault,
		DefaultMaxDepth: cfg.Crawler.MaxDepthDefault,
		Budget:          cfg.CrawlBudget(),
		RequestDelay:    cfg.CrawlDelay(),
		Quality: extract.QualityConfig{
			MinContentLength: cfg.Crawler.MinContentLength,
			MaxContentLength: cfg.Crawler.MaxContentLength,
		},
	}, fetcher, indexer, crawler.NewJobStore(), logger)
	if err != nil {
		return nil, err
	}

	var (
		pool    *pgxpool.Pool
		primary session.Store
		emitter inquiry.Emitter = inquiry.NewLogEmitter(logger)
	)
	if cfg.DB.DSN != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		if cfg.DB.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.DB.MaxOpenConns)
		}
		if cfg.DB.MinConns > 0 {
			poolCfg.MinConns = int32(cfg.DB.MinConns)
		}
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pgStore, err := session.NewPostgresStoreWithPool(pool)
		if err != nil {
			return nil, err
		}
		primary = pgStore
		emitter = inquiry.NewPostgresEmitter(pool, logger)
	} else {
		logger.Info("no database configured, sessions stay local and inquiries go to the log")
	}

	secondary, err := session.NewBadgerStore(cfg.Chat.SessionPath, cfg.SessionTTL(), logger)
	if err != nil {
		return nil, err
	}
	sessions := session.NewTieredStore(primary, secondary, cfg.SessionTTL(), logger)

	engine := answer.New(embedder, generator, store, answer.Options{
		Namespace:       cfg.Chat.Namespace,
		TopK:            cfg.Retrieval.TopK,
		SimilarityFloor: cfg.Retrieval.SimilarityFloor,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		MaxSources:      cfg.Retrieval.MaxSources,
	}, logger)
	machine := chat.NewMachine(sessions, engine, emitter, cfg.Chat.Namespace, logger)

	server := api.NewServer(crawls, indexer, machine, cfg.Chat.Namespace,
		time.Duration(cfg.Server.TimeoutSeconds)*time.Second, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Server:   server,
		crawls:   crawls,
		store:    store,
		sessions: sessions,
		pool:     pool,
	}, nil
}

// RunReconciler periodically replays session writes that missed the primary
// store. It returns when ctx ends.
func (a *App) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.sessions.Reconcile(ctx); err != nil {
				a.Logger.Warn("session reconcile failed", zap.Error(err))
			}
		}
	}
}

// Close shuts down all services.
func (a *App) Close() {
	a.crawls.Close()
	if err := a.sessions.Close(); err != nil {
		a.Logger.Warn("session store close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.Logger.Warn("vector store close failed", zap.Error(err))
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func buildAI(cfg config.AIConfig, logger *zap.Logger) (ai.Embedder, ai.Generator, error) {
	switch cfg.Provider {
	case "mock":
		return aimock.NewEmbedder(cfg.Dimension), aimock.NewGenerator("This is a development response."), nil
	case "openai":
		aiCfg := ai.Config{
			BaseURL:         cfg.BaseURL,
			Token:           cfg.Token,
			EmbeddingModel:  cfg.EmbeddingModel,
			Dimension:       cfg.Dimension,
			BatchSize:       cfg.BatchSize,
			GenerationModel: cfg.GenerationModel,
			Temperature:     cfg.Temperature,
			MaxTokens:       cfg.MaxTokens,
		}
		if err := aiCfg.Validate(); err != nil {
			return nil, nil, err
		}
		embedder, err := aiopenai.NewEmbedder(&aiCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		generator, err := aiopenai.NewGenerator(&aiCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return embedder, generator, nil
	default:
		return nil, nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

func buildBackend(cfg config.VectorStoreConfig, logger *zap.Logger) (vectorstore.Store, error) {
	switch cfg.Backend {
	case vectorstore.BackendLocal:
		return memory.Open(cfg.Path, logger)
	case vectorstore.BackendPinecone:
		return pinecone.New(pinecone.Config{
			Host:   cfg.Pinecone.Host,
			APIKey: cfg.Pinecone.APIKey,
		}, logger)
	case vectorstore.BackendChroma:
		return chroma.New(chroma.Config{
			Host:     cfg.Chroma.Host,
			APIKey:   cfg.Chroma.APIKey,
			Tenant:   cfg.Chroma.Tenant,
			Database: cfg.Chroma.Database,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}
