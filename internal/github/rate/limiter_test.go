package rate_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robalyx/rolesync/internal/github/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()

	return ctx.Err()
}

func (r *recordingSleep) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]time.Duration(nil), r.waits...)
}

func TestLimiterSpacesRequests(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	limiter := rate.New(60, rate.WithSleep(rec.sleep))

	for range 3 {
		require.NoError(t, limiter.Wait(t.Context()))
	}

	waits := rec.recorded()
	require.Len(t, waits, 2)
	assert.InDelta(t, float64(time.Second), float64(waits[0]), float64(100*time.Millisecond))
	assert.InDelta(t, float64(2*time.Second), float64(waits[1]), float64(100*time.Millisecond))
}

func TestLimiterExhaustedQuotaBlocks(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	limiter := rate.New(0, rate.WithSleep(rec.sleep), rate.WithResetBuffer(5*time.Second))

	reset := time.Now().Add(10 * time.Second)
	limiter.Update(5000, 0, reset)

	require.NoError(t, limiter.Wait(t.Context()))

	waits := rec.recorded()
	require.Len(t, waits, 1)
	assert.InDelta(t, float64(15*time.Second), float64(waits[0]), float64(200*time.Millisecond))

	quota := limiter.Quota()
	assert.Equal(t, 5000, quota.Limit)
	assert.Equal(t, 0, quota.Remaining)
	assert.WithinDuration(t, reset.Add(5*time.Second), quota.BlockedUntil, time.Millisecond)
}

func TestLimiterRemainingQuotaDoesNotBlock(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	limiter := rate.New(0, rate.WithSleep(rec.sleep))

	limiter.Update(5000, 42, time.Now().Add(time.Hour))
	require.NoError(t, limiter.Wait(t.Context()))

	assert.Empty(t, rec.recorded())
	assert.True(t, limiter.Quota().BlockedUntil.IsZero())
}

func TestLimiterBlockFor(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	limiter := rate.New(0, rate.WithSleep(rec.sleep))

	limiter.BlockFor(30 * time.Second)
	limiter.BlockFor(time.Second)

	require.NoError(t, limiter.Wait(t.Context()))

	waits := rec.recorded()
	require.Len(t, waits, 1)
	assert.InDelta(t, float64(30*time.Second), float64(waits[0]), float64(200*time.Millisecond))
}

func TestLimiterCanceledContext(t *testing.T) {
	t.Parallel()

	limiter := rate.New(1)

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, limiter.Wait(ctx))

	cancel()
	require.ErrorIs(t, limiter.Wait(ctx), context.Canceled)
}
