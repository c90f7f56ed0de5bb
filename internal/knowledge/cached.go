package knowledge

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ddx-reasoning-core/internal/domain"
)

// CachedSnapshot fronts a snapshot's Lookup with a bounded LRU. The cache lives and dies with the
// wrapped snapshot, so entries never cross knowledge versions.
type CachedSnapshot struct {
	domain.KnowledgeSnapshot
	lookups *lru.Cache[string, domain.AssociationSet]
	hits    atomic.Int64
	misses  atomic.Int64
}

// CacheStats represents lookup cache performance statistics
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// NewCachedSnapshot wraps inner with a lookup cache of the given size (default 4096 entries).
func NewCachedSnapshot(inner domain.KnowledgeSnapshot, size int) (*CachedSnapshot, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, domain.AssociationSet](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup cache: %w", err)
	}
	return &CachedSnapshot{KnowledgeSnapshot: inner, lookups: cache}, nil
}

// Lookup returns a copy of the cached association set or loads it from the wrapped snapshot.
// Errors are not cached.
func (c *CachedSnapshot) Lookup(findingCode string) (domain.AssociationSet, error) {
	if set, ok := c.lookups.Get(findingCode); ok {
		c.hits.Add(1)
		return cloneSet(set), nil
	}
	c.misses.Add(1)

	set, err := c.KnowledgeSnapshot.Lookup(findingCode)
	if err != nil {
		return domain.AssociationSet{}, err
	}
	c.lookups.Add(findingCode, cloneSet(set))
	return set, nil
}

func cloneSet(set domain.AssociationSet) domain.AssociationSet {
	out := make([]domain.Association, len(set.Associations))
	copy(out, set.Associations)
	return domain.AssociationSet{FindingCode: set.FindingCode, Associations: out}
}

// Stats returns cache counters.
func (c *CachedSnapshot) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.lookups.Len(),
	}
}
