package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Store with per-entry expiry.
type Memory struct {
	cache *gocache.Cache
}

var _ Store = (*Memory)(nil)

// NewMemory creates a cache whose entries default to ttl and which purges
// expired items every cleanup interval.
func NewMemory(ttl, cleanup time.Duration) *Memory {
	return &Memory{cache: gocache.New(ttl, cleanup)}
}

// Get returns a copy of the stored value or ErrMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	if x, found := m.cache.Get(key); found {
		value := x.([]byte)
		out := make([]byte, len(value))
		copy(out, value)
		return out, nil
	}
	return nil, ErrMiss
}

// Set stores a copy of value for ttl (the cache default when ttl is zero).
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.cache.Set(key, stored, ttl)
	return nil
}
