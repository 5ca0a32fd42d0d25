// Package cache provides the verdict cache used by the phishing detector.
//
// The cache is an explicitly owned object injected into the detector, not
// module-level state. Keys are the exact raw input text with no normalization:
// near-duplicate inputs (case, whitespace) intentionally miss. Values are the
// serialized classification result; storing bytes keeps the memory and Redis
// backends interchangeable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Store is a TTL-bound key/value store for serialized verdicts.
// Implementations must be safe for concurrent use. Concurrent misses on the
// same key may both compute and both store; last write wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// hashKey folds arbitrary-length input text into a fixed-size key so that
// multi-kilobyte email bodies don't bloat the keyspace. Exact-text semantics
// are preserved: equal text hashes equal, different text (within SHA-256
// collision odds) hashes different.
func hashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "verdict:" + hex.EncodeToString(sum[:])
}

// MemoryStore is the default in-process backend with TTL eviction.
type MemoryStore struct {
	inner *gocache.Cache
}

// NewMemoryStore creates a memory store whose entries expire after ttl.
// Expired entries are purged every ttl/2 (minimum 1 minute).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	cleanup := ttl / 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &MemoryStore{inner: gocache.New(ttl, cleanup)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m.inner.Get(hashKey(key))
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) {
	m.inner.Set(hashKey(key), value, gocache.DefaultExpiration)
}

// RedisStore shares the verdict cache across processes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(addr string, ttl time.Duration) (*RedisStore, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.Get(ctx, hashKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("[CACHE] redis get failed: %v", err)
		return nil, false
	}
	return b, true
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) {
	if err := r.client.Set(ctx, hashKey(key), value, r.ttl).Err(); err != nil {
		log.Printf("[CACHE] redis set failed: %v", err)
	}
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
