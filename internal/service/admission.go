package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/ddx-reasoning-core/internal/domain"
)

// ewmaAlpha weights the newest service-time observation.
const ewmaAlpha = 0.2

// AdmissionController bounds concurrent diagnoses. Up to MaxConcurrent requests run at once; up
// to MaxQueue more wait for a slot. Anything beyond that is refused with OVERLOAD.
type AdmissionController struct {
	sem           *semaphore.Weighted
	maxConcurrent int64
	maxQueue      int64

	inFlight atomic.Int64
	queued   atomic.Int64

	mu          sync.Mutex
	serviceTime time.Duration

	logger *logrus.Logger
}

// AdmissionStats is a point-in-time view of the controller.
type AdmissionStats struct {
	InFlight      int64         `json:"in_flight"`
	Queued        int64         `json:"queued"`
	MaxConcurrent int64         `json:"max_concurrent"`
	MaxQueue      int64         `json:"max_queue"`
	ServiceTime   time.Duration `json:"service_time_ewma"`
	EstimatedWait time.Duration `json:"estimated_wait"`
}

// NewAdmissionController creates an admission controller
func NewAdmissionController(cfg domain.AdmissionConfig, logger *logrus.Logger) *AdmissionController {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1024
	}
	if cfg.MaxQueue < 0 {
		cfg.MaxQueue = 0
	}
	if cfg.InitialEstimate <= 0 {
		cfg.InitialEstimate = 2 * time.Second
	}
	return &AdmissionController{
		sem:           semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		maxConcurrent: int64(cfg.MaxConcurrent),
		maxQueue:      int64(cfg.MaxQueue),
		serviceTime:   cfg.InitialEstimate,
		logger:        logger,
	}
}

// Acquire reserves a worker slot, waiting in the queue if all workers are busy. The returned
// release func must be called exactly once when the work is done.
func (a *AdmissionController) Acquire(ctx context.Context) (func(), error) {
	if !a.sem.TryAcquire(1) {
		position := a.queued.Add(1)
		if position > a.maxQueue {
			a.queued.Add(-1)
			retryAfter := a.waitFor(position)
			a.logger.WithFields(logrus.Fields{
				"queued":      position - 1,
				"retry_after": retryAfter,
			}).Warn("Admission queue full, rejecting diagnosis request")
			return nil, domain.NewOverloadError(retryAfter)
		}

		err := a.sem.Acquire(ctx, 1)
		a.queued.Add(-1)
		if err != nil {
			return nil, err
		}
	}

	a.inFlight.Add(1)
	start := time.Now()
	var once sync.Once
	return func() {
		once.Do(func() {
			a.observe(time.Since(start))
			a.inFlight.Add(-1)
			a.sem.Release(1)
		})
	}, nil
}

// EstimatedWait is how long a request arriving now would queue before starting.
func (a *AdmissionController) EstimatedWait() time.Duration {
	if a.inFlight.Load() < a.maxConcurrent {
		return 0
	}
	return a.waitFor(a.queued.Load() + 1)
}

// Stats returns the controller's current counters.
func (a *AdmissionController) Stats() AdmissionStats {
	a.mu.Lock()
	st := a.serviceTime
	a.mu.Unlock()
	return AdmissionStats{
		InFlight:      a.inFlight.Load(),
		Queued:        a.queued.Load(),
		MaxConcurrent: a.maxConcurrent,
		MaxQueue:      a.maxQueue,
		ServiceTime:   st,
		EstimatedWait: a.EstimatedWait(),
	}
}

// waitFor estimates the wait of the request at queue position.
func (a *AdmissionController) waitFor(position int64) time.Duration {
	a.mu.Lock()
	st := a.serviceTime
	a.mu.Unlock()

	rounds := (position + a.maxConcurrent - 1) / a.maxConcurrent
	wait := time.Duration(rounds) * st
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

func (a *AdmissionController) observe(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.serviceTime = time.Duration(ewmaAlpha*float64(d) + (1-ewmaAlpha)*float64(a.serviceTime))
}
