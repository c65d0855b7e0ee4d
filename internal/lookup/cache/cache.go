// Package cache stores successful lookup results keyed by normalized
// identifier. Only results with Success=true are ever written.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"idlookup/internal/lookup"
	"idlookup/pkg/platform/sentinel"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"

	defaultKeyPrefix = "idlookup:result:"
)

// Recorder receives hit/miss counts; *metrics.Metrics satisfies it.
type Recorder interface {
	RecordCacheHit(backend string)
	RecordCacheMiss(backend string)
}

// MemoryCache is a process-local LRU bounded by size and TTL.
type MemoryCache struct {
	lru     *expirable.LRU[string, *lookup.Result]
	metrics Recorder
}

// NewMemoryCache creates an LRU holding up to maxEntries results for ttl.
func NewMemoryCache(maxEntries int, ttl time.Duration, metrics Recorder) *MemoryCache {
	return &MemoryCache{
		lru:     expirable.NewLRU[string, *lookup.Result](maxEntries, nil, ttl),
		metrics: metrics,
	}
}

// Find returns sentinel.ErrNotFound on a miss or after expiry.
func (c *MemoryCache) Find(_ context.Context, key string) (*lookup.Result, error) {
	res, ok := c.lru.Get(key)
	if !ok {
		c.miss(backendMemory)
		return nil, sentinel.ErrNotFound
	}
	c.hit(backendMemory)
	cp := *res
	return &cp, nil
}

// Save stores a copy of res. Unsuccessful or nil results are ignored.
func (c *MemoryCache) Save(_ context.Context, key string, res *lookup.Result) error {
	if res == nil || !res.Success {
		return nil
	}
	cp := *res
	c.lru.Add(key, &cp)
	return nil
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

func (c *MemoryCache) hit(backend string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(backend)
	}
}

func (c *MemoryCache) miss(backend string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(backend)
	}
}

// RedisCache shares results across instances as JSON values with a TTL.
// Keys are digests so identifiers never appear in the keyspace.
type RedisCache struct {
	client  redis.UniversalClient
	ttl     time.Duration
	prefix  string
	metrics Recorder
}

// NewRedisCache wraps client. An empty prefix uses "idlookup:result:".
func NewRedisCache(client redis.UniversalClient, ttl time.Duration, prefix string, metrics Recorder) *RedisCache {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix, metrics: metrics}
}

// Find returns sentinel.ErrNotFound on a miss. Undecodable entries are
// treated as misses so a schema change never poisons lookups.
func (c *RedisCache) Find(ctx context.Context, key string) (*lookup.Result, error) {
	raw, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordMiss()
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cached result: %w", err)
	}
	var res lookup.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		c.recordMiss()
		return nil, sentinel.ErrNotFound
	}
	c.recordHit()
	return &res, nil
}

// Save writes res with the configured TTL. Unsuccessful or nil results are ignored.
func (c *RedisCache) Save(ctx context.Context, key string, res *lookup.Result) error {
	if res == nil || !res.Success {
		return nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.client.Set(ctx, c.redisKey(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cached result: %w", err)
	}
	return nil
}

func (c *RedisCache) redisKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *RedisCache) recordHit() {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(backendRedis)
	}
}

func (c *RedisCache) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(backendRedis)
	}
}
