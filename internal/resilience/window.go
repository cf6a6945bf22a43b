package resilience

import (
	"sync"
	"time"
)

// SlidingWindow admits at most max calls per key within any window-long interval.
type SlidingWindow struct {
	mu    sync.Mutex
	hits  map[string][]time.Time
	now   func() time.Time
	swept time.Time
}

// NewSlidingWindow builds a limiter; a nil clock means time.Now.
func NewSlidingWindow(now func() time.Time) *SlidingWindow {
	if now == nil {
		now = time.Now
	}
	return &SlidingWindow{hits: make(map[string][]time.Time), now: now}
}

// CheckRateLimit records and admits the call when fewer than max calls for key
// happened during the last window.
func (w *SlidingWindow) CheckRateLimit(key string, max int, window time.Duration) bool {
	if max <= 0 {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	hits := w.hits[key]
	keep := 0
	for keep < len(hits) && now.Sub(hits[keep]) >= window {
		keep++
	}
	hits = hits[keep:]

	if len(hits) >= max {
		w.hits[key] = hits
		return false
	}

	w.hits[key] = append(hits, now)
	if now.Sub(w.swept) >= window {
		w.prune(now, window)
		w.swept = now
	}
	return true
}

// prune drops idle keys; must be called with mu held.
func (w *SlidingWindow) prune(now time.Time, window time.Duration) {
	for key, hits := range w.hits {
		if len(hits) == 0 || now.Sub(hits[len(hits)-1]) >= window {
			delete(w.hits, key)
		}
	}
}

// Keys reports how many keys are tracked.
func (w *SlidingWindow) Keys() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hits)
}
