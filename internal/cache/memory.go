// Package cache holds the in-process differential result cache used by the lite server.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ddx-reasoning-core/internal/domain"
)

// Config defines the memory cache bounds
type Config struct {
	MaxItems int
	TTL      time.Duration
}

// Stats tracks cache performance
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// MemoryCache stores finished differentials keyed by case content and the versions that
// produced them, so a republished snapshot or a new model never serves a stale result.
type MemoryCache struct {
	entries   *expirable.LRU[string, *domain.DifferentialDiagnosis]
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewMemoryCache creates a TTL-bounded LRU. Zero values fall back to 1000 items and one hour.
func NewMemoryCache(cfg Config) *MemoryCache {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 1000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	c := &MemoryCache{}
	c.entries = expirable.NewLRU[string, *domain.DifferentialDiagnosis](cfg.MaxItems, func(string, *domain.DifferentialDiagnosis) {
		c.evictions.Add(1)
	}, cfg.TTL)
	return c
}

// Key builds the cache key for a case diagnosed against a knowledge and model version.
// ReceivedAt is excluded so resubmitting the same case hits.
func Key(profile *domain.NormalizedCase, knowledgeVersion, modelVersion string) (string, error) {
	if profile == nil {
		return "", fmt.Errorf("case is nil")
	}
	canonical := *profile
	canonical.ReceivedAt = time.Time{}
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint case: %w", err)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s|%s|%s", knowledgeVersion, modelVersion, hex.EncodeToString(hash[:])), nil
}

// Get returns the cached differential for key
func (c *MemoryCache) Get(key string) (*domain.DifferentialDiagnosis, bool) {
	dd, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return dd, true
}

// Set stores a differential under key
func (c *MemoryCache) Set(key string, dd *domain.DifferentialDiagnosis) {
	if dd == nil {
		return
	}
	c.entries.Add(key, dd)
}

// Purge drops every entry, typically after a knowledge reload.
func (c *MemoryCache) Purge() {
	c.entries.Purge()
}

// Stats returns a snapshot of the cache counters
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.entries.Len(),
	}
}
