package performance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolFunctionality(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Start()

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() {
			counter.Add(1)
		}))
	}
	pool.Stop()

	assert.Equal(t, int64(100), counter.Load())
	stats := pool.Stats()
	assert.Equal(t, uint64(100), stats.TasksTotal)
	assert.Equal(t, uint64(100), stats.TasksDone)
	assert.False(t, stats.Running)

	assert.ErrorIs(t, pool.Submit(context.Background(), func() {}), ErrPoolStopped)
	pool.Stop()
}

func TestSubmitHonorsContext(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() {
		close(started)
		<-release
	}))
	<-started
	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() {}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func() {})
	close(release)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMapPreservesOrder(t *testing.T) {
	items := []int{5, 3, 8, 1, 9, 2}
	got, err := Map(context.Background(), 3, items, func(_ context.Context, v int) int {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v * v
	})
	require.NoError(t, err)
	assert.Equal(t, []int{25, 9, 64, 1, 81, 4}, got)

	empty, err := Map(context.Background(), 3, []int(nil), func(_ context.Context, v int) int { return v })
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRateLimiterSpacing(t *testing.T) {
	limiter := NewRateLimiter(30 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRateLimiterAllow(t *testing.T) {
	limiter := NewRateLimiter(time.Hour)
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	unlimited := NewRateLimiter(0)
	assert.NoError(t, unlimited.Wait(context.Background()))
	assert.NoError(t, unlimited.Wait(context.Background()))
}

func TestRateLimiterCancelledWait(t *testing.T) {
	limiter := NewRateLimiter(time.Hour)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.Wait(ctx), context.DeadlineExceeded)
}
