package core

import "context"

// EmbeddingProvider turns texts into vectors. The i-th vector belongs to the i-th text.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
