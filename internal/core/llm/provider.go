package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// Supported EMBED_PROVIDER values.
const (
	ProviderGemini      = providerGemini
	ProviderHuggingFace = providerHuggingFace
	ProviderOpenAI      = providerOpenAI
)

// ProviderConfig selects and configures the remote embedder.
type ProviderConfig struct {
	Provider    string
	APIKey      string
	Host        string
	Model       string
	Dimension   int
	BatchSize   int
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
}

// NewEmbedder builds the configured provider and wraps it in a BatchEmbedder. The returned
// closer releases the provider's client.
func NewEmbedder(ctx context.Context, cfg ProviderConfig) (*BatchEmbedder, io.Closer, error) {
	var (
		provider  core.EmbeddingProvider
		closer    io.Closer = nopCloser{}
		batchSize           = cfg.BatchSize
		name                = strings.ToLower(cfg.Provider)
	)
	if name == "" {
		name = ProviderGemini
	}

	switch name {
	case ProviderGemini:
		g, err := NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		provider, closer = g, g
		if batchSize <= 0 || batchSize > GeminiMaxBatch {
			batchSize = GeminiMaxBatch
		}
	case ProviderHuggingFace:
		hf, err := NewHuggingFaceEmbedder(cfg.APIKey, cfg.Model, cfg.Host)
		if err != nil {
			return nil, nil, err
		}
		provider, closer = hf, hf
	case ProviderOpenAI:
		oa, err := NewOpenAIEmbedder(cfg.Host, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		provider = oa
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	policy := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryDelay > 0 {
		policy.BaseDelay = cfg.RetryDelay
	}

	b, err := NewBatchEmbedder(provider,
		WithProviderName(name),
		WithBatchSize(batchSize),
		WithConcurrency(cfg.Concurrency),
		WithDimension(cfg.Dimension),
		WithRetryPolicy(policy),
	)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}

	slog.Info("embedding provider ready",
		"component", "llm",
		"provider", name,
		"batchSize", b.batchSize,
		"concurrency", b.concurrency,
		"maxAttempts", policy.MaxAttempts)
	return b, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
