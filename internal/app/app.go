// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/contexta-ingest/internal/api/handlers"
	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/cache"
	db "github.com/markdave123-py/contexta-ingest/internal/core/database"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/core/llm"
	"github.com/markdave123-py/contexta-ingest/internal/core/localstore"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
)

type App struct {
	Store    core.ChunkStore
	Ingestor *ingestion_engine.DocumentIngestor
	Server   *Server

	closers []io.Closer
}

// NewApp wires the sink, embedder, optional cache and object storage, and the HTTP server.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := OpenStore(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store)

	embedder, closers, err := NewEmbedder(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closers...)

	ing, err := ingestion_engine.NewDocumentIngestor(store, embedder, IngestConfig(cfg))
	if err != nil {
		return nil, err
	}
	a.Ingestor = ing

	var pages handlers.PageSource
	if cfg.AwsAccessKey != "" && cfg.BucketName != "" {
		objClient, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		pages = objectclient.NewPageLoader(objClient, objClient.Bucket())
		log.Println("Object client initialized and ready.")
	}

	a.Server = NewServer(cfg, ing, pages)
	ok = true
	return a, nil
}

// OpenStore opens the configured chunk sink.
func OpenStore(ctx context.Context, cfg *config.Config) (core.ChunkStore, error) {
	switch cfg.Sink {
	case config.SinkBadger:
		store, err := localstore.Open(cfg.BadgerDir, false)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		log.Printf("Badger store ready at %s.", cfg.BadgerDir)
		return store, nil
	default:
		dbClient, err := db.NewDatabaseClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Println("Database initialized and ready.")
		return dbClient, nil
	}
}

// NewEmbedder builds the batched provider, fronted by the Redis cache when REDIS_URL is set.
func NewEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, []io.Closer, error) {
	batched, closer, err := llm.NewEmbedder(ctx, llm.ProviderConfig{
		Provider:    cfg.EmbedProvider,
		APIKey:      cfg.EmbedAPIKey(),
		Host:        cfg.EmbedHost,
		Model:       cfg.EmbedModel,
		Dimension:   cfg.EmbedDim,
		BatchSize:   cfg.EmbedBatchSize,
		Concurrency: cfg.EmbedConcurrency,
		MaxAttempts: cfg.EmbedMaxAttempts,
		RetryDelay:  cfg.EmbedRetryDelay,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	closers := []io.Closer{closer}

	if cfg.RedisURL == "" {
		return batched, closers, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	closers = append(closers, client)
	if err := client.Ping(ctx).Err(); err != nil {
		// the cache is an optimisation; run without it
		log.Printf("WARN: redis unavailable, embedding cache disabled: %v", err)
		return batched, closers, nil
	}

	cached, err := cache.NewRedisEmbeddingCache(client, batched, cfg.EmbedProvider+"/"+cfg.EmbedModel, cfg.EmbedCacheTTL)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, nil, err
	}
	log.Println("Embedding cache enabled.")
	return cached, closers, nil
}

// IngestConfig maps the environment settings onto the pipeline.
func IngestConfig(cfg *config.Config) *ingestion_engine.IngestConfig {
	return &ingestion_engine.IngestConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Timeout:      cfg.IngestTimeout,
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
}
