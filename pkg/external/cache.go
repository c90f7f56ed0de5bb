package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ddx-reasoning-core/internal/domain"
)

// CitationCache stores literature lookups in Redis.
type CitationCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCitationCache connects to Redis and verifies the connection.
func NewCitationCache(config domain.CacheConfig) (*CitationCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewCitationCacheWithClient(client, config.DefaultTTL), nil
}

// NewCitationCacheWithClient wraps an existing client.
func NewCitationCacheWithClient(client *redis.Client, defaultTTL time.Duration) *CitationCache {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &CitationCache{redis: client, defaultTTL: defaultTTL}
}

type cachedCitations struct {
	Citations []domain.Citation `json:"citations"`
	CachedAt  time.Time         `json:"cached_at"`
}

// Get returns cached citations. The boolean is false on a miss.
func (c *CitationCache) Get(ctx context.Context, diseaseID string, findings []string) ([]domain.Citation, bool, error) {
	key := citationKey(diseaseID, findings)

	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get citation cache: %w", err)
	}

	var cached cachedCitations
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// corrupted entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	if cached.Citations == nil {
		cached.Citations = []domain.Citation{}
	}
	return cached.Citations, true, nil
}

// Set caches citations; ttl <= 0 uses the default.
func (c *CitationCache) Set(ctx context.Context, diseaseID string, findings []string, citations []domain.Citation, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(cachedCitations{Citations: citations, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}
	return c.redis.Set(ctx, citationKey(diseaseID, findings), data, ttl).Err()
}

// InvalidateDisease removes every cached lookup for a disease.
func (c *CitationCache) InvalidateDisease(ctx context.Context, diseaseID string) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, fmt.Sprintf("citations:%s:*", diseaseID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan citation keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// Ping checks if Redis connection is alive
func (c *CitationCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CitationCache) Close() error {
	return c.redis.Close()
}

func citationKey(diseaseID string, findings []string) string {
	hash := sha256.Sum256([]byte(strings.Join(findings, "\x00")))
	return fmt.Sprintf("citations:%s:%x", diseaseID, hash[:8])
}
