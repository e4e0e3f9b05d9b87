package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

const (
	providerHuggingFace = "huggingface"

	DefaultHuggingFaceModel   = "sentence-transformers/all-mpnet-base-v2"
	DefaultHuggingFaceBaseURL = "https://router.huggingface.co/hf-inference/models"
)

// Ensure HuggingFaceEmbedder implements EmbeddingProvider
var _ core.EmbeddingProvider = (*HuggingFaceEmbedder)(nil)

// HuggingFaceEmbedder calls the hf-inference feature-extraction pipeline.
type HuggingFaceEmbedder struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewHuggingFaceEmbedder creates a feature-extraction client. Empty model and baseURL fall
// back to all-mpnet-base-v2 on the public router.
func NewHuggingFaceEmbedder(apiKey, model, baseURL string) (*HuggingFaceEmbedder, error) {
	if apiKey == "" {
		return nil, newError(providerHuggingFace, KindAuthentication, 0, errors.New("HuggingFace API key is required"))
	}
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	if baseURL == "" {
		baseURL = DefaultHuggingFaceBaseURL
	}

	return &HuggingFaceEmbedder{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type featureExtractionRequest struct {
	Inputs  []string        `json:"inputs"`
	Options map[string]bool `json:"options,omitempty"`
}

type hfErrorResponse struct {
	Error string `json:"error"`
}

// EmbedTexts returns one pooled sentence embedding per text.
func (e *HuggingFaceEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(featureExtractionRequest{
		Inputs:  texts,
		Options: map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := e.baseURL + "/" + (&url.URL{Path: e.model}).EscapedPath() + "/pipeline/feature-extraction"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, newError(providerHuggingFace, KindTransientNetwork, 0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(providerHuggingFace, KindTransientNetwork, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr hfErrorResponse
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, newError(providerHuggingFace, kindForStatus(resp.StatusCode), resp.StatusCode, errors.New(msg))
	}

	var vectors [][]float32
	if err := json.Unmarshal(respBody, &vectors); err != nil {
		return nil, newError(providerHuggingFace, KindModelUnavailable, resp.StatusCode,
			fmt.Errorf("model %s did not return sentence embeddings: %w", e.model, err))
	}
	if len(vectors) != len(texts) {
		return nil, newError(providerHuggingFace, KindModelUnavailable, resp.StatusCode,
			fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(texts)))
	}
	return vectors, nil
}

// Model returns the model name being used
func (e *HuggingFaceEmbedder) Model() string {
	return e.model
}

// Close releases idle connections.
func (e *HuggingFaceEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
