package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddx-reasoning-core/internal/domain"
)

func TestAdmissionAcquireRelease(t *testing.T) {
	a := NewAdmissionController(domain.AdmissionConfig{MaxConcurrent: 2, MaxQueue: 1}, testLogger())

	r1, err := a.Acquire(context.Background())
	require.NoError(t, err)
	r2, err := a.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.Stats().InFlight)
	assert.Greater(t, a.EstimatedWait(), time.Duration(0))

	r1()
	r1() // release is idempotent
	assert.Equal(t, int64(1), a.Stats().InFlight)
	assert.Equal(t, time.Duration(0), a.EstimatedWait())
	r2()
}

func TestAdmissionQueuesThenRejects(t *testing.T) {
	a := NewAdmissionController(domain.AdmissionConfig{MaxConcurrent: 1, MaxQueue: 1, InitialEstimate: 3 * time.Second}, testLogger())

	hold, err := a.Acquire(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	queuedDone := make(chan error, 1)
	go func() {
		defer wg.Done()
		release, err := a.Acquire(context.Background())
		if err == nil {
			release()
		}
		queuedDone <- err
	}()

	require.Eventually(t, func() bool { return a.Stats().Queued == 1 }, time.Second, 5*time.Millisecond)

	_, err = a.Acquire(context.Background())
	require.True(t, domain.IsCode(err, domain.ErrOverload))
	de, _ := domain.AsDiagnosticError(err)
	assert.Equal(t, 6*time.Second, de.RetryAfter)

	hold()
	wg.Wait()
	assert.NoError(t, <-queuedDone)
	assert.Equal(t, int64(0), a.Stats().Queued)
}

func TestAdmissionQueuedRequestHonoursContext(t *testing.T) {
	a := NewAdmissionController(domain.AdmissionConfig{MaxConcurrent: 1, MaxQueue: 4}, testLogger())
	hold, err := a.Acquire(context.Background())
	require.NoError(t, err)
	defer hold()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), a.Stats().Queued)
}

func TestAdmissionServiceTimeEWMA(t *testing.T) {
	a := NewAdmissionController(domain.AdmissionConfig{MaxConcurrent: 1, InitialEstimate: time.Second}, testLogger())

	release, err := a.Acquire(context.Background())
	require.NoError(t, err)
	release()

	// a near-instant request pulls the average down by the smoothing factor
	st := a.Stats().ServiceTime
	assert.Less(t, st, time.Second)
	assert.Greater(t, st, 700*time.Millisecond)
}
