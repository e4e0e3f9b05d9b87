package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 2
)

// ErrProviderRequired is returned when BatchEmbedder is built without a provider.
var ErrProviderRequired = errors.New("embedding provider required")

// BatchEmbedder splits a text sequence into provider-sized batches, retries retryable
// failures per batch and reassembles the vectors in input order.
//
// provider:     the remote embedder (Gemini/HuggingFace/OpenAI).
// batchSize:    max texts per remote call.
// concurrency:  max batches in flight.
// dim:          expected vector length (0 = take whatever the first vector has).
type BatchEmbedder struct {
	provider    core.EmbeddingProvider
	name        string
	batchSize   int
	concurrency int
	dim         int
	retry       RetryPolicy
	logger      *slog.Logger
}

// BatchOption configures a BatchEmbedder.
type BatchOption func(*BatchEmbedder)

func WithBatchSize(n int) BatchOption {
	return func(b *BatchEmbedder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

func WithConcurrency(n int) BatchOption {
	return func(b *BatchEmbedder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithDimension makes the embedder reject vectors of any other length.
func WithDimension(dim int) BatchOption {
	return func(b *BatchEmbedder) { b.dim = dim }
}

func WithRetryPolicy(p RetryPolicy) BatchOption {
	return func(b *BatchEmbedder) { b.retry = p }
}

// WithProviderName labels errors and logs produced by the batcher itself.
func WithProviderName(name string) BatchOption {
	return func(b *BatchEmbedder) { b.name = name }
}

// NewBatchEmbedder wraps provider.
func NewBatchEmbedder(provider core.EmbeddingProvider, opts ...BatchOption) (*BatchEmbedder, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}
	b := &BatchEmbedder{
		provider:    provider,
		name:        "embedding",
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		retry:       DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.retry.MaxAttempts <= 0 {
		return nil, ErrInvalidMaxAttempts
	}
	b.logger = slog.Default().With("component", "batch-embedder", "provider", b.name)
	return b, nil
}

// EmbedTexts returns one vector per text, in order, or an error. Partial results are never returned.
func (b *BatchEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		g.Go(func() error {
			batch := texts[start:end]
			var vecs [][]float32
			err := b.retry.Do(gctx, func() error {
				var err error
				vecs, err = b.provider.EmbedTexts(gctx, batch)
				return err
			})
			if err != nil {
				return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != len(batch) {
				return newError(b.name, KindModelUnavailable, 0,
					fmt.Errorf("batch %d-%d: got %d vectors for %d texts", start, end, len(vecs), len(batch)))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		b.logger.Error("embedding failed", "texts", len(texts), "err", err)
		return nil, err
	}

	if err := b.checkDimensions(out); err != nil {
		return nil, err
	}
	b.logger.Debug("embedded texts", "texts", len(texts), "batches", (len(texts)+b.batchSize-1)/b.batchSize)
	return out, nil
}

func (b *BatchEmbedder) checkDimensions(vecs [][]float32) error {
	want := b.dim
	if want == 0 {
		want = len(vecs[0])
	}
	for i, v := range vecs {
		if len(v) == 0 || len(v) != want {
			return newError(b.name, KindModelUnavailable, 0,
				fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), want))
		}
	}
	return nil
}

var _ core.EmbeddingProvider = (*BatchEmbedder)(nil)
