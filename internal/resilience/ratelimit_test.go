package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketTryAcquireDrainsAndRefills(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	limiters := NewLimiters(map[string]BucketConfig{
		"reddit": {Capacity: 3, RefillPerSecond: 1},
	}, WithLimiterClock(clock.Now))

	for i := 0; i < 3; i++ {
		require.True(t, limiters.TryAcquire("reddit"), "token %d", i)
	}
	assert.False(t, limiters.TryAcquire("reddit"))

	clock.Advance(500 * time.Millisecond)
	assert.False(t, limiters.TryAcquire("reddit"))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, limiters.TryAcquire("reddit"))
}

func TestTokenBucketNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	limiters := NewLimiters(map[string]BucketConfig{
		"web": {Capacity: 2, RefillPerSecond: 10},
	}, WithLimiterClock(clock.Now))

	clock.Advance(time.Hour)
	assert.InDelta(t, 2.0, limiters.Bucket("web").Tokens(), 1e-9)
}

func TestTokenBucketWaitComputesDeterministicDelay(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var waits []time.Duration
	limiters := NewLimiters(map[string]BucketConfig{
		"llm": {Capacity: 1, RefillPerSecond: 4},
	}, WithLimiterClock(clock.Now), WithLimiterSleep(clock.Sleeper(&waits)))

	ctx := context.Background()
	require.NoError(t, limiters.Wait(ctx, "llm"))
	assert.Empty(t, waits, "first token is immediate")

	assert.Equal(t, 250*time.Millisecond, limiters.Bucket("llm").Delay())

	require.NoError(t, limiters.Wait(ctx, "llm"))
	require.Len(t, waits, 1)
	assert.Equal(t, 250*time.Millisecond, waits[0])
	assert.InDelta(t, 0.0, limiters.Bucket("llm").Tokens(), 1e-9)
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	t.Parallel()

	limiters := NewLimiters(map[string]BucketConfig{
		"slow": {Capacity: 1, RefillPerSecond: 0.001},
	})
	require.True(t, limiters.TryAcquire("slow"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, limiters.Wait(ctx, "slow"), context.Canceled)
}

func TestLimitersConfigureOverridesAtRuntime(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	limiters := NewLimiters(nil,
		WithLimiterClock(clock.Now),
		WithFallbackBucket(BucketConfig{Capacity: 1, RefillPerSecond: 1}),
	)

	require.True(t, limiters.TryAcquire("example.com"))
	require.False(t, limiters.TryAcquire("example.com"))

	limiters.Configure("example.com", BucketConfig{Capacity: 5, RefillPerSecond: 100})
	clock.Advance(100 * time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.True(t, limiters.TryAcquire("example.com"), "token %d", i)
	}
	assert.False(t, limiters.TryAcquire("example.com"))
}

func TestLimitersKeysAreIndependent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	limiters := NewLimiters(nil,
		WithLimiterClock(clock.Now),
		WithFallbackBucket(BucketConfig{Capacity: 1, RefillPerSecond: 1}),
	)

	assert.True(t, limiters.TryAcquire("a"))
	assert.True(t, limiters.TryAcquire("b"))
	assert.False(t, limiters.TryAcquire("a"))
}
