package resilience

import (
	"sync"
	"time"
)

type breakerState struct {
	failures    int
	lastFailure time.Time
}

// Breakers tracks consecutive failures per source. A source is disabled once
// its count reaches the threshold and re-enabled automatically once the reset
// window has passed since its last recorded failure.
// Thread-safe: all state transitions use a mutex.
type Breakers struct {
	mu        sync.Mutex
	states    map[string]*breakerState
	threshold int
	window    time.Duration
	now       func() time.Time
}

// BreakerOption configures Breakers.
type BreakerOption func(*Breakers)

// WithBreakerThreshold sets the failure count that disables a source.
func WithBreakerThreshold(n int) BreakerOption {
	return func(b *Breakers) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithBreakerWindow sets the reset window measured from the last failure.
func WithBreakerWindow(d time.Duration) BreakerOption {
	return func(b *Breakers) {
		if d > 0 {
			b.window = d
		}
	}
}

// WithBreakerClock sets a custom clock function (for testing).
func WithBreakerClock(fn func() time.Time) BreakerOption {
	return func(b *Breakers) { b.now = fn }
}

// NewBreakers creates a registry with defaults: 5 failures, 5 minute window.
func NewBreakers(opts ...BreakerOption) *Breakers {
	b := &Breakers{
		states:    make(map[string]*breakerState),
		threshold: 5,
		window:    5 * time.Minute,
		now:       time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// RecordFailure increments the failure count of source, restarting at 1 when
// the window has elapsed since the previous failure.
func (b *Breakers) RecordFailure(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	st, ok := b.states[source]
	if !ok {
		st = &breakerState{}
		b.states[source] = st
	}
	if st.failures > 0 && now.Sub(st.lastFailure) >= b.window {
		st.failures = 1
	} else {
		st.failures++
	}
	st.lastFailure = now
}

// RecordSuccess clears the failure count of source.
func (b *Breakers) RecordSuccess(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, source)
}

// IsDisabled reports whether calls to source must be skipped.
func (b *Breakers) IsDisabled(source string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[source]
	if !ok || st.failures < b.threshold {
		return false
	}
	if b.now().Sub(st.lastFailure) >= b.window {
		delete(b.states, source)
		return false
	}
	return true
}

// Failures returns the current failure count of source.
func (b *Breakers) Failures(source string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[source]; ok {
		return st.failures
	}
	return 0
}
