// Package cache memoizes chunk embeddings in Redis so re-ingesting a document skips the
// remote model for text it has already seen.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

const keyPrefix = "emb:"

var (
	ErrClientRequired   = errors.New("redis client required")
	ErrEmbedderRequired = errors.New("embedder required")
)

// Verify interface compliance
var _ core.EmbeddingProvider = (*RedisEmbeddingCache)(nil)

// RedisEmbeddingCache wraps an embedder. Cache failures are logged and bypassed; they never
// fail the caller.
type RedisEmbeddingCache struct {
	client *redis.Client
	next   core.EmbeddingProvider
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisEmbeddingCache creates a cache in front of next. model namespaces the keys so
// vectors from different models never mix; ttl <= 0 keeps entries forever.
func NewRedisEmbeddingCache(client *redis.Client, next core.EmbeddingProvider, model string, ttl time.Duration) (*RedisEmbeddingCache, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if next == nil {
		return nil, ErrEmbedderRequired
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisEmbeddingCache{
		client: client,
		next:   next,
		model:  model,
		ttl:    ttl,
		logger: slog.Default().With("component", "embedding-cache"),
	}, nil
}

func (c *RedisEmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + c.model + ":" + hex.EncodeToString(sum[:])
}

// EmbedTexts serves hits from Redis and embeds only the misses, preserving input order.
func (c *RedisEmbeddingCache) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	var missIdx []int

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("cache read failed, embedding all texts", "texts", len(texts), "err", err)
		vals = nil
	}
	for i := range texts {
		if vals != nil {
			if s, ok := vals[i].(string); ok {
				if v, err := decodeVector([]byte(s)); err == nil {
					out[i] = v
					continue
				}
			}
		}
		missIdx = append(missIdx, i)
	}

	if len(missIdx) == 0 {
		c.logger.Debug("all embeddings served from cache", "texts", len(texts))
		return out, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}
	vecs, err := c.next.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}

	pipe := c.client.Pipeline()
	for j, i := range missIdx {
		out[i] = vecs[j]
		pipe.Set(ctx, keys[i], encodeVector(vecs[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache write failed", "texts", len(missIdx), "err", err)
	}

	c.logger.Debug("embedded texts", "hits", len(texts)-len(missIdx), "misses", len(missIdx))
	return out, nil
}

// encodeVector stores a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector encoding of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
