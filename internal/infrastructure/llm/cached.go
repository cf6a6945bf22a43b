package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"ProductScout/internal/infrastructure/cache"
	"ProductScout/internal/ports"
)

// CachedClient memoizes completions by prompt hash in front of another LLM.
type CachedClient struct {
	next   ports.LLM
	store  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.LLM = (*CachedClient)(nil)

// NewCachedClient wraps next; cache failures are logged and bypassed.
func NewCachedClient(next ports.LLM, store cache.Store, ttl time.Duration, log *slog.Logger) *CachedClient {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedClient{next: next, store: store, ttl: ttl, logger: log}
}

// GenerateJSON serves from cache when possible, otherwise calls through and stores the raw document.
func (c *CachedClient) GenerateJSON(ctx context.Context, prompt string, out any) error {
	key := cacheKey(prompt)

	if raw, err := c.store.Get(ctx, key); err == nil {
		if err := json.Unmarshal(raw, out); err == nil {
			return nil
		}
		c.debug("discarding undecodable cache entry", "key", key)
	} else if !errors.Is(err, cache.ErrMiss) {
		c.warn("llm cache get failed", "error", err)
	}

	var raw json.RawMessage
	if err := c.next.GenerateJSON(ctx, prompt, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Join(ErrMalformedResponse, err)
	}

	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.warn("llm cache set failed", "error", err)
	}
	return nil
}

func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "llm:" + hex.EncodeToString(sum[:])
}

func (c *CachedClient) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *CachedClient) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
