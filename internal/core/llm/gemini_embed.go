package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

const providerGemini = "gemini"

// GeminiMaxBatch is the largest batch the Gemini batchEmbedContents endpoint accepts.
const GeminiMaxBatch = 100

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, newError(providerGemini, KindAuthentication, 0, errors.New("GEMINI_API_KEY is empty"))
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts sends all texts in one BatchEmbedContents request. Callers batch above GeminiMaxBatch.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	em.TaskType = genai.TaskTypeRetrievalDocument

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, newError(providerGemini, KindModelUnavailable, 0,
			fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(texts)))
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e == nil {
			return nil, newError(providerGemini, KindModelUnavailable, 0, errors.New("nil embedding in response"))
		}
		out = append(out, e.Values)
	}
	return out, nil
}

// classifyGeminiError maps the gRPC status carried by Gemini API errors onto an ErrorKind.
func classifyGeminiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(providerGemini, KindTransientNetwork, 0, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return newError(providerGemini, KindTransientNetwork, 0, err)
	}

	var kind ErrorKind
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		kind = KindAuthentication
	case codes.ResourceExhausted:
		kind = KindRateLimit
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal, codes.Unknown:
		kind = KindTransientNetwork
	default:
		kind = KindModelUnavailable
	}
	return newError(providerGemini, kind, 0, err)
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
