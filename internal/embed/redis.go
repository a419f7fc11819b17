package embed

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/rueidis"

	"github.com/Aman-CERP/docrag/internal/telemetry"
)

const (
	redisKeyPrefix = "docrag:emb:"

	// DefaultRedisTTL expires shared cache entries nobody has read for a while.
	DefaultRedisTTL = 7 * 24 * time.Hour
)

// kvStore is the subset of a key-value store the shared cache needs.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close()
}

// RedisStore is a kvStore backed by rueidis.
type RedisStore struct {
	client rueidis.Client
}

// NewRedisStore connects to the Redis server at addr.
func NewRedisStore(addr string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Get returns the value at key; found is false when the key does not exist.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set stores value at key with a TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	return s.client.Do(ctx, cmd).Error()
}

// Close shuts down the client.
func (s *RedisStore) Close() { s.client.Close() }

// SharedCacheEmbedder caches embeddings in Redis so several processes
// (ingest runs, API replicas) reuse each other's provider calls. Cache
// failures are logged and fall through to the inner embedder.
type SharedCacheEmbedder struct {
	inner Embedder
	store kvStore
	ttl   time.Duration
}

var _ Embedder = (*SharedCacheEmbedder)(nil)

// NewSharedCacheEmbedder wraps inner with the shared cache in store.
func NewSharedCacheEmbedder(inner Embedder, store kvStore, ttl time.Duration) *SharedCacheEmbedder {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &SharedCacheEmbedder{inner: inner, store: store, ttl: ttl}
}

func (c *SharedCacheEmbedder) key(text string) string {
	return redisKeyPrefix + cacheKey(c.inner.ModelName(), text)
}

// Embed returns the shared cached embedding or computes and stores it.
func (c *SharedCacheEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.get(ctx, key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, vec)
	return vec, nil
}

// EmbedBatch looks up each text and embeds the misses in one inner call.
func (c *SharedCacheEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, text := range texts {
		if vec, ok := c.get(ctx, c.key(text)); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}
	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		results[idx] = vecs[j]
		c.put(ctx, c.key(texts[idx]), vecs[j])
	}
	return results, nil
}

func (c *SharedCacheEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("embedding_cache_get_failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !found {
		telemetry.EmbeddingCacheTotal.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	vec, err := decodeVector(data)
	if err != nil || len(vec) != c.inner.Dimensions() {
		slog.Warn("embedding_cache_entry_invalid", slog.String("key", key))
		return nil, false
	}
	telemetry.EmbeddingCacheTotal.WithLabelValues("redis", "hit").Inc()
	return vec, true
}

func (c *SharedCacheEmbedder) put(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, encodeVector(vec), c.ttl); err != nil {
		slog.Warn("embedding_cache_set_failed", slog.String("error", err.Error()))
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid cached embedding length %d", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

func (c *SharedCacheEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *SharedCacheEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *SharedCacheEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close closes the inner embedder and the store.
func (c *SharedCacheEmbedder) Close() error {
	c.store.Close()
	return c.inner.Close()
}
