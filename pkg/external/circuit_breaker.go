package external

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/ddx-reasoning-core/internal/domain"
)

// CitationStore is the cache consulted before hitting the upstream retriever.
type CitationStore interface {
	Get(ctx context.Context, diseaseID string, findings []string) ([]domain.Citation, bool, error)
	Set(ctx context.Context, diseaseID string, findings []string, citations []domain.Citation, ttl time.Duration) error
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultCircuitBreakerConfig trips after 60% failures over at least 3 requests.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  5,
		Interval:     30 * time.Second,
		Timeout:      60 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// CircuitBreakerConfigFrom applies the literature section's breaker overrides to the defaults.
func CircuitBreakerConfigFrom(name string, cfg domain.LiteratureConfig) CircuitBreakerConfig {
	cb := DefaultCircuitBreakerConfig(name)
	if cfg.BreakerMinRequests > 0 {
		cb.MinRequests = cfg.BreakerMinRequests
	}
	if cfg.BreakerFailureRatio > 0 && cfg.BreakerFailureRatio <= 1 {
		cb.FailureRatio = cfg.BreakerFailureRatio
	}
	if cfg.BreakerOpenTimeout > 0 {
		cb.Timeout = cfg.BreakerOpenTimeout
	}
	return cb
}

// ResilientLiteratureClient wraps a retriever with a cache and a circuit breaker.
type ResilientLiteratureClient struct {
	upstream domain.LiteratureRetriever
	cache    CitationStore
	cacheTTL time.Duration
	breaker  *gobreaker.CircuitBreaker
	logger   *logrus.Logger
}

// NewResilientLiteratureClient builds the wrapper. cache may be nil.
func NewResilientLiteratureClient(upstream domain.LiteratureRetriever, cache CitationStore, cacheTTL time.Duration, cbConfig CircuitBreakerConfig, logger *logrus.Logger) *ResilientLiteratureClient {
	r := &ResilientLiteratureClient{
		upstream: upstream,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cbConfig.Name,
		MaxRequests: cbConfig.MaxRequests,
		Interval:    cbConfig.Interval,
		Timeout:     cbConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cbConfig.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cbConfig.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Literature circuit breaker changed state")
		},
	})
	return r
}

// CitationsFor serves from cache when possible and otherwise calls upstream through the breaker.
func (r *ResilientLiteratureClient) CitationsFor(ctx context.Context, diseaseID string, topFindings []string) ([]domain.Citation, error) {
	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, diseaseID, topFindings)
		if err != nil {
			r.logger.WithError(err).Warn("Citation cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.upstream.CitationsFor(ctx, diseaseID, topFindings)
	})
	if err != nil {
		return nil, fmt.Errorf("literature lookup for %s: %w", diseaseID, err)
	}

	citations, _ := result.([]domain.Citation)
	if citations == nil {
		citations = []domain.Citation{}
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, diseaseID, topFindings, citations, r.cacheTTL); err != nil {
			r.logger.WithError(err).Warn("Citation cache write failed")
		}
	}
	return citations, nil
}

// State reports the breaker state.
func (r *ResilientLiteratureClient) State() gobreaker.State {
	return r.breaker.State()
}
