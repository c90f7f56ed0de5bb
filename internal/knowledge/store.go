package knowledge

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/domain"
)

// ErrNoSnapshot is returned when no snapshot has been published yet.
var ErrNoSnapshot = errors.New("no knowledge snapshot published")

// Store holds the currently published snapshot. Requests pin the snapshot they start with by
// calling Current once; a concurrent Publish never changes what an in-flight request sees.
type Store struct {
	current   atomic.Pointer[snapshotRef]
	cacheSize int
	logger    *logrus.Logger
}

type snapshotRef struct {
	snapshot    domain.KnowledgeSnapshot
	publishedAt time.Time
}

// NewStore creates an empty store. cacheSize sizes the LRU placed in front of snapshots loaded
// through Reload; zero disables it.
func NewStore(cacheSize int, logger *logrus.Logger) *Store {
	return &Store{cacheSize: cacheSize, logger: logger}
}

// Publish atomically replaces the current snapshot.
func (s *Store) Publish(snapshot domain.KnowledgeSnapshot) {
	prev := s.current.Swap(&snapshotRef{snapshot: snapshot, publishedAt: time.Now()})

	fields := logrus.Fields{"knowledge_version": snapshot.Version()}
	if prev != nil {
		fields["previous_version"] = prev.snapshot.Version()
	}
	s.logger.WithFields(fields).Info("Published knowledge snapshot")
}

// Current returns the published snapshot, or a KnowledgeUnavailable error when there is none.
func (s *Store) Current() (domain.KnowledgeSnapshot, error) {
	ref := s.current.Load()
	if ref == nil {
		return nil, domain.NewKnowledgeUnavailableError(ErrNoSnapshot)
	}
	return ref.snapshot, nil
}

// PublishedAt returns when the current snapshot was published.
func (s *Store) PublishedAt() (time.Time, bool) {
	ref := s.current.Load()
	if ref == nil {
		return time.Time{}, false
	}
	return ref.publishedAt, true
}

// Reload loads path and publishes it. On failure the current snapshot stays in place.
func (s *Store) Reload(path string) error {
	mem, err := LoadFile(path)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Error("Failed to reload knowledge snapshot")
		return err
	}

	var snapshot domain.KnowledgeSnapshot = mem
	if s.cacheSize > 0 {
		cached, err := NewCachedSnapshot(mem, s.cacheSize)
		if err != nil {
			return err
		}
		snapshot = cached
	}
	s.Publish(snapshot)
	return nil
}

// WatchFile reloads path every interval until ctx is done. Reload failures are logged and the
// previous snapshot keeps serving.
func (s *Store) WatchFile(ctx context.Context, path string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Reload(path)
		}
	}
}

// Summary describes the published snapshot for operators.
type Summary struct {
	Stats
	PublishedAt time.Time   `json:"published_at"`
	LookupCache *CacheStats `json:"lookup_cache,omitempty"`
}

// Describe summarizes the current snapshot. Counts are only available for file-loaded
// snapshots; other implementations report their version alone.
func (s *Store) Describe(rareThreshold float64) (Summary, error) {
	ref := s.current.Load()
	if ref == nil {
		return Summary{}, domain.NewKnowledgeUnavailableError(ErrNoSnapshot)
	}

	summary := Summary{PublishedAt: ref.publishedAt}
	snapshot := ref.snapshot
	if cached, ok := snapshot.(*CachedSnapshot); ok {
		stats := cached.Stats()
		summary.LookupCache = &stats
		snapshot = cached.KnowledgeSnapshot
	}
	if mem, ok := snapshot.(*MemorySnapshot); ok {
		summary.Stats = mem.Stats(rareThreshold)
	} else {
		summary.Version = snapshot.Version()
	}
	return summary, nil
}
