// Package cache provides the key/value backends used to memoize LLM completions.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss indicates a cache miss.
var ErrMiss = errors.New("cache miss")

// Store is the minimal byte cache contract.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
