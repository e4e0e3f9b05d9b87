package llm

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider embeds "n" as [n, 1, 0] and can fail a configurable number of calls.
type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	failures []error
	dim      int
	short    bool
	sizes    []int
}

func (f *fakeProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.sizes = append(f.sizes, len(texts))
	var err error
	if len(f.failures) > 0 {
		err, f.failures = f.failures[0], f.failures[1:]
	}
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	dim := f.dim
	if dim == 0 {
		dim = 3
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		n, _ := strconv.Atoi(t)
		v := make([]float32, dim)
		v[0] = float32(n)
		v[1] = 1
		out = append(out, v)
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func numbered(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestBatchEmbedder_PreservesOrderAcrossConcurrentBatches(t *testing.T) {
	p := &fakeProvider{}
	b, err := NewBatchEmbedder(p, WithBatchSize(4), WithConcurrency(3), WithRetryPolicy(fastPolicy(2)))
	require.NoError(t, err)

	vecs, err := b.EmbedTexts(context.Background(), numbered(10))
	require.NoError(t, err)
	require.Len(t, vecs, 10)
	for i, v := range vecs {
		assert.Equal(t, float32(i), v[0])
	}
	assert.ElementsMatch(t, []int{4, 4, 2}, p.sizes)
}

func TestBatchEmbedder_RetriesRateLimit(t *testing.T) {
	p := &fakeProvider{failures: []error{newError("fake", KindRateLimit, 429, errors.New("busy"))}}
	b, err := NewBatchEmbedder(p, WithBatchSize(10), WithRetryPolicy(fastPolicy(3)))
	require.NoError(t, err)

	vecs, err := b.EmbedTexts(context.Background(), numbered(5))
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, 2, p.calls)
}

func TestBatchEmbedder_AuthenticationIsNotRetried(t *testing.T) {
	p := &fakeProvider{failures: []error{newError("fake", KindAuthentication, 401, errors.New("bad key"))}}
	b, err := NewBatchEmbedder(p, WithBatchSize(10), WithRetryPolicy(fastPolicy(5)))
	require.NoError(t, err)

	vecs, err := b.EmbedTexts(context.Background(), numbered(5))
	assert.Nil(t, vecs)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, 1, p.calls)
}

func TestBatchEmbedder_GivesUpAfterMaxAttempts(t *testing.T) {
	transient := newError("fake", KindTransientNetwork, 503, errors.New("down"))
	p := &fakeProvider{failures: []error{transient, transient, transient, transient}}
	b, err := NewBatchEmbedder(p, WithBatchSize(10), WithRetryPolicy(fastPolicy(3)))
	require.NoError(t, err)

	_, err = b.EmbedTexts(context.Background(), numbered(2))
	assert.ErrorIs(t, err, ErrTransientNetwork)
	assert.Equal(t, 3, p.calls)
}

func TestBatchEmbedder_NoPartialResultsWhenOneBatchFails(t *testing.T) {
	var calls atomic.Int32
	p := providerFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 2 {
			return nil, newError("fake", KindModelUnavailable, 404, errors.New("gone"))
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 2}
		}
		return out, nil
	})
	b, err := NewBatchEmbedder(p, WithBatchSize(2), WithConcurrency(1), WithRetryPolicy(fastPolicy(2)))
	require.NoError(t, err)

	vecs, err := b.EmbedTexts(context.Background(), numbered(6))
	assert.Nil(t, vecs)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestBatchEmbedder_CountMismatch(t *testing.T) {
	b, err := NewBatchEmbedder(&fakeProvider{short: true}, WithRetryPolicy(fastPolicy(1)))
	require.NoError(t, err)

	_, err = b.EmbedTexts(context.Background(), numbered(3))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestBatchEmbedder_DimensionMismatch(t *testing.T) {
	b, err := NewBatchEmbedder(&fakeProvider{dim: 4}, WithDimension(768), WithRetryPolicy(fastPolicy(1)))
	require.NoError(t, err)

	_, err = b.EmbedTexts(context.Background(), numbered(3))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestBatchEmbedder_UnsetDimensionAcceptsAnyConsistentLength(t *testing.T) {
	b, err := NewBatchEmbedder(&fakeProvider{dim: 1536}, WithBatchSize(2), WithRetryPolicy(fastPolicy(1)))
	require.NoError(t, err)

	vecs, err := b.EmbedTexts(context.Background(), numbered(5))
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for _, v := range vecs {
		assert.Len(t, v, 1536)
	}
}

func TestBatchEmbedder_EmptyInput(t *testing.T) {
	p := &fakeProvider{}
	b, err := NewBatchEmbedder(p)
	require.NoError(t, err)

	vecs, err := b.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Zero(t, p.calls)
}

func TestNewBatchEmbedder_Validation(t *testing.T) {
	_, err := NewBatchEmbedder(nil)
	assert.ErrorIs(t, err, ErrProviderRequired)

	_, err = NewBatchEmbedder(&fakeProvider{}, WithRetryPolicy(RetryPolicy{}))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

type providerFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f providerFunc) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
