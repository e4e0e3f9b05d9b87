package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIEmbedder_RequiresModel(t *testing.T) {
	_, err := NewOpenAIEmbedder("http://localhost:11434", "", "")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestNormalizeOpenAIHost(t *testing.T) {
	assert.Equal(t, "http://localhost:11434/v1", normalizeOpenAIHost("http://localhost:11434"))
	assert.Equal(t, "http://localhost:11434/v1", normalizeOpenAIHost("http://localhost:11434/"))
	assert.Equal(t, "https://api.openai.com/v1", normalizeOpenAIHost("https://api.openai.com/v1"))
}

func TestOpenAIEmbedder_EmbedTexts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]},
				{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]}
			],
			"model": "nomic-embed-text",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(server.URL, "", "nomic-embed-text")
	require.NoError(t, err)

	vecs, err := e.EmbedTexts(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}

func TestOpenAIEmbedder_ClassifiesStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadGateway, ErrTransientNetwork},
		{http.StatusNotFound, ErrModelUnavailable},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"no"}}`))
			}))
			defer server.Close()

			e, err := NewOpenAIEmbedder(server.URL, "sk-test", "text-embedding-3-small")
			require.NoError(t, err)

			_, err = e.EmbedTexts(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
