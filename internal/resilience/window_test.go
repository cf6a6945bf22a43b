package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckRateLimitPermitsExactlyMaxPerWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	w := NewSlidingWindow(clock.Now)
	window := time.Second

	for i := 0; i < 3; i++ {
		assert.True(t, w.CheckRateLimit("p", 3, window), "call %d", i)
		clock.Advance(100 * time.Millisecond)
	}
	assert.False(t, w.CheckRateLimit("p", 3, window))

	// oldest permitted call was at t=0; at t=999ms it is still inside the window
	clock.Advance(699 * time.Millisecond)
	assert.False(t, w.CheckRateLimit("p", 3, window))

	// at t=1000ms the oldest falls outside
	clock.Advance(time.Millisecond)
	assert.True(t, w.CheckRateLimit("p", 3, window))
	assert.False(t, w.CheckRateLimit("p", 3, window))
}

func TestCheckRateLimitSeparatesKeys(t *testing.T) {
	t.Parallel()

	w := NewSlidingWindow(newFakeClock().Now)
	assert.True(t, w.CheckRateLimit("a", 1, time.Minute))
	assert.True(t, w.CheckRateLimit("b", 1, time.Minute))
	assert.False(t, w.CheckRateLimit("a", 1, time.Minute))
}

func TestCheckRateLimitRejectsNonPositiveMax(t *testing.T) {
	t.Parallel()

	w := NewSlidingWindow(nil)
	assert.False(t, w.CheckRateLimit("a", 0, time.Minute))
}

func TestCheckRateLimitForgetsIdleKeys(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	w := NewSlidingWindow(clock.Now)
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		assert.True(t, w.CheckRateLimit(ip, 5, time.Minute))
	}
	assert.Equal(t, 3, w.Keys())

	clock.Advance(2 * time.Minute)
	assert.True(t, w.CheckRateLimit("10.0.0.4", 5, time.Minute))
	assert.Equal(t, 1, w.Keys(), "idle clients are dropped")

	assert.True(t, w.CheckRateLimit("10.0.0.4", 5, time.Minute))
	assert.Equal(t, 1, w.Keys())
}
