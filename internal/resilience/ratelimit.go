package resilience

import (
	"context"
	"sync"
	"time"
)

// BucketConfig sizes a token bucket: Capacity tokens, refilled at RefillPerSecond.
type BucketConfig struct {
	Capacity        int     `yaml:"capacity"`
	RefillPerSecond float64 `yaml:"refillPerSecond"`
}

func (c BucketConfig) normalized() BucketConfig {
	if c.Capacity <= 0 {
		c.Capacity = 1
	}
	if c.RefillPerSecond <= 0 {
		c.RefillPerSecond = 1
	}
	return c
}

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// TokenBucket is a lazily refilled token bucket.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64
	tokens   float64
	last     time.Time
	now      func() time.Time
	sleep    SleepFunc
}

func newTokenBucket(cfg BucketConfig, now func() time.Time, sleep SleepFunc) *TokenBucket {
	cfg = cfg.normalized()
	return &TokenBucket{
		capacity: float64(cfg.Capacity),
		rate:     cfg.RefillPerSecond,
		tokens:   float64(cfg.Capacity),
		last:     now(),
		now:      now,
		sleep:    sleep,
	}
}

// refill must be called with mu held.
func (b *TokenBucket) refill() {
	now := b.now()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	}
	b.last = now
}

// TryAcquire takes a token if one is available and never blocks.
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Delay is the minimum wait before a token becomes available; zero when one is ready.
func (b *TokenBucket) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.delayLocked()
}

func (b *TokenBucket) delayLocked() time.Duration {
	if b.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

// Wait takes a token, sleeping (1 - tokens) / rate seconds first when the bucket is empty.
func (b *TokenBucket) Wait(ctx context.Context) error {
	b.mu.Lock()
	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		b.mu.Unlock()
		return nil
	}
	wait := b.delayLocked()
	b.mu.Unlock()

	if err := b.sleep(ctx, wait); err != nil {
		return err
	}

	b.mu.Lock()
	b.refill()
	b.tokens--
	b.mu.Unlock()
	return nil
}

// Tokens reports the current (refilled) token count.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

func (b *TokenBucket) reconfigure(cfg BucketConfig) {
	cfg = cfg.normalized()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	b.capacity = float64(cfg.Capacity)
	b.rate = cfg.RefillPerSecond
	b.tokens = min(b.tokens, b.capacity)
}

// Limiters is a registry of token buckets keyed by service or domain name.
type Limiters struct {
	mu       sync.Mutex
	buckets  map[string]*TokenBucket
	configs  map[string]BucketConfig
	fallback BucketConfig
	now      func() time.Time
	sleep    SleepFunc
}

// LimiterOption configures Limiters.
type LimiterOption func(*Limiters)

// WithLimiterClock sets a custom clock (for testing).
func WithLimiterClock(fn func() time.Time) LimiterOption {
	return func(l *Limiters) { l.now = fn }
}

// WithLimiterSleep replaces the sleep used on the wait path (for testing).
func WithLimiterSleep(fn SleepFunc) LimiterOption {
	return func(l *Limiters) { l.sleep = fn }
}

// WithFallbackBucket sizes buckets for names without an explicit config.
func WithFallbackBucket(cfg BucketConfig) LimiterOption {
	return func(l *Limiters) { l.fallback = cfg }
}

// NewLimiters builds a registry; configs holds per-name overrides of the fallback.
func NewLimiters(configs map[string]BucketConfig, opts ...LimiterOption) *Limiters {
	l := &Limiters{
		buckets:  make(map[string]*TokenBucket),
		configs:  make(map[string]BucketConfig, len(configs)),
		fallback: BucketConfig{Capacity: 10, RefillPerSecond: 2},
		now:      time.Now,
		sleep:    SleepContext,
	}
	for name, cfg := range configs {
		l.configs[name] = cfg
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Configure overrides the bucket size of name at runtime.
func (l *Limiters) Configure(name string, cfg BucketConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[name] = cfg
	if b, ok := l.buckets[name]; ok {
		b.reconfigure(cfg)
	}
}

// Bucket returns the bucket for name, creating it on first use.
func (l *Limiters) Bucket(name string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[name]; ok {
		return b
	}
	cfg, ok := l.configs[name]
	if !ok {
		cfg = l.fallback
	}
	b := newTokenBucket(cfg, l.now, l.sleep)
	l.buckets[name] = b
	return b
}

// TryAcquire is a non-blocking acquire on the bucket for name.
func (l *Limiters) TryAcquire(name string) bool {
	return l.Bucket(name).TryAcquire()
}

// Wait blocks until the bucket for name yields a token.
func (l *Limiters) Wait(ctx context.Context, name string) error {
	return l.Bucket(name).Wait(ctx)
}

// SleepContext sleeps for d unless ctx is done first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
