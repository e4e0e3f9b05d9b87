package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder returns [len(text), 1] and records every text it was asked to embed.
type countingEmbedder struct {
	mu    sync.Mutex
	seen  []string
	err   error
	calls int
}

func (e *countingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	e.seen = append(e.seen, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func setupTestCache(t *testing.T, next *countingEmbedder) (*RedisEmbeddingCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c, err := NewRedisEmbeddingCache(client, next, "test-model", time.Hour)
	require.NoError(t, err)
	return c, mr
}

func TestNewRedisEmbeddingCache_Validation(t *testing.T) {
	_, err := NewRedisEmbeddingCache(nil, &countingEmbedder{}, "m", 0)
	assert.ErrorIs(t, err, ErrClientRequired)

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()
	_, err = NewRedisEmbeddingCache(client, nil, "m", 0)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestRedisEmbeddingCache_EmbedsOnlyMisses(t *testing.T) {
	next := &countingEmbedder{}
	c, mr := setupTestCache(t, next)
	ctx := context.Background()

	first, err := c.EmbedTexts(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}}, first)

	second, err := c.EmbedTexts(ctx, []string{"ccc", "a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 1}, {1, 1}, {2, 1}}, second, "order is preserved across hits and misses")
	assert.Equal(t, []string{"a", "bb", "ccc"}, next.seen)

	assert.Len(t, mr.Keys(), 3)
	ttl := mr.TTL(c.key("a"))
	assert.Equal(t, time.Hour, ttl)
}

func TestRedisEmbeddingCache_AllHitsSkipEmbedder(t *testing.T) {
	next := &countingEmbedder{}
	c, _ := setupTestCache(t, next)
	ctx := context.Background()

	_, err := c.EmbedTexts(ctx, []string{"x", "y"})
	require.NoError(t, err)
	_, err = c.EmbedTexts(ctx, []string{"y", "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestRedisEmbeddingCache_RedisDownIsBypassed(t *testing.T) {
	next := &countingEmbedder{}
	c, mr := setupTestCache(t, next)
	mr.Close()

	vecs, err := c.EmbedTexts(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}}, vecs)
}

func TestRedisEmbeddingCache_CorruptEntryIsAMiss(t *testing.T) {
	next := &countingEmbedder{}
	c, mr := setupTestCache(t, next)
	require.NoError(t, mr.Set(c.key("a"), "xyz"))

	vecs, err := c.EmbedTexts(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}}, vecs)
	assert.Equal(t, []string{"a"}, next.seen)
}

func TestRedisEmbeddingCache_EmbedderErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	c, mr := setupTestCache(t, &countingEmbedder{err: boom})

	_, err := c.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mr.Keys(), "nothing is cached on failure")
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3e-7}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
