// Package mock provides a deterministic in-process embedder for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// DefaultDimension matches all-mpnet-base-v2.
const DefaultDimension = 768

// Embedder returns a unit vector derived from an FNV hash of each text, so equal texts
// always embed identically. EmbedTextsFunc overrides the default behaviour when set.
type Embedder struct {
	Dimension      int
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu    sync.Mutex
	calls int
	texts [][]string
}

func NewEmbedder() *Embedder {
	return &Embedder{Dimension: DefaultDimension}
}

func (m *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.texts = append(m.texts, append([]string(nil), texts...))
	fn := m.EmbedTextsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, m.Dimension)
	}
	return out, nil
}

// CallCount reports how many times EmbedTexts was called.
func (m *Embedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Calls returns the texts passed to each EmbedTexts call.
func (m *Embedder) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.texts...)
}

// Vector is the deterministic embedding of text.
func Vector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDimension
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, dim)
	var sumSquares float64
	for i := range v {
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v[i] = float32(seed%2000)/1000 - 1
		sumSquares += float64(v[i]) * float64(v[i])
	}
	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range v {
			v[i] *= norm
		}
	}
	return v
}
