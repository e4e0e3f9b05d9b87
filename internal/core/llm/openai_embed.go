package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

const providerOpenAI = "openai"

// OpenAIEmbedder implements core.EmbeddingProvider using OpenAI-compatible embedding APIs
// (OpenAI, Ollama, vLLM, LocalAI) through langchaingo.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

// NewOpenAIEmbedder creates an embedder against baseURL. An empty token is sent as "none",
// which local OpenAI-compatible servers accept.
func NewOpenAIEmbedder(baseURL, token, model string) (*OpenAIEmbedder, error) {
	if model == "" {
		return nil, newError(providerOpenAI, KindModelUnavailable, 0, errors.New("embedding model is required"))
	}
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
		openai.WithHTTPClient(&statusDoer{client: &http.Client{Timeout: 60 * time.Second}}),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(normalizeOpenAIHost(baseURL)))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	// Batching is done by BatchEmbedder; keep langchaingo from re-batching.
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(GeminiMaxBatch*10))
	if err != nil {
		return nil, err
	}

	return &OpenAIEmbedder{
		embedder: embedder,
		model:    model,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	failure := &lastFailure{}
	vecs, err := e.embedder.EmbedDocuments(context.WithValue(ctx, failureKey{}, failure), texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		if _, ok := KindOf(err); ok {
			return nil, err
		}
		if failure.err != nil {
			return nil, fmt.Errorf("%w: %v", failure.err, err)
		}
		if ctx.Err() != nil {
			return nil, newError(providerOpenAI, KindTransientNetwork, 0, err)
		}
		return nil, newError(providerOpenAI, KindModelUnavailable, 0, err)
	}
	if len(vecs) != len(texts) {
		return nil, newError(providerOpenAI, KindModelUnavailable, 0,
			fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(texts)))
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) Model() string {
	return e.model
}

type failureKey struct{}

// lastFailure records the classified HTTP failure of the request issued under its context.
type lastFailure struct {
	err *EmbeddingError
}

// statusDoer classifies non-2xx responses before langchaingo turns them into plain errors.
type statusDoer struct {
	client *http.Client
}

func (d *statusDoer) Do(req *http.Request) (*http.Response, error) {
	failure, _ := req.Context().Value(failureKey{}).(*lastFailure)

	resp, err := d.client.Do(req)
	if err != nil {
		if failure != nil {
			failure.err = newError(providerOpenAI, KindTransientNetwork, 0, err)
		}
		return nil, err
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	classified := newError(providerOpenAI, kindForStatus(resp.StatusCode), resp.StatusCode,
		errors.New(strings.TrimSpace(string(body))))
	if failure != nil {
		failure.err = classified
	}
	return nil, classified
}

// normalizeOpenAIHost appends the /v1 suffix most OpenAI-compatible servers expect.
func normalizeOpenAIHost(host string) string {
	host = strings.TrimSuffix(host, "/")
	if !strings.HasSuffix(host, "/v1") {
		host += "/v1"
	}
	return host
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)
