package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ProductScout/internal/domain"
	"ProductScout/internal/resilience"
)

// ErrSourceDisabled is returned when a source's circuit breaker is open.
var ErrSourceDisabled = errors.New("source disabled by circuit breaker")

// Guard puts the shared limiter and breaker registries in front of adapter calls.
type Guard struct {
	limiters *resilience.Limiters
	breakers *resilience.Breakers
	logger   *slog.Logger
}

// NewGuard wires process-wide resilience registries; nil registries disable that protection.
func NewGuard(limiters *resilience.Limiters, breakers *resilience.Breakers, log *slog.Logger) *Guard {
	return &Guard{limiters: limiters, breakers: breakers, logger: log}
}

// Retrieve calls the adapter unless its breaker is open, waiting on its token bucket first.
// Failures and successes are fed back into the breaker keyed by adapter name.
func (g *Guard) Retrieve(ctx context.Context, adapter Adapter, terms []string, opts Options) ([]domain.Mention, error) {
	name := adapter.Name()

	if g.breakers != nil && g.breakers.IsDisabled(name) {
		g.warn("source skipped, circuit open", "source", name)
		return nil, fmt.Errorf("%s: %w", name, ErrSourceDisabled)
	}

	if g.limiters != nil {
		if err := g.limiters.Wait(ctx, name); err != nil {
			return nil, fmt.Errorf("%s: wait for token: %w", name, err)
		}
	}

	mentions, err := adapter.Retrieve(ctx, terms, opts)
	if err != nil {
		if g.breakers != nil {
			g.breakers.RecordFailure(name)
		}
		return nil, fmt.Errorf("%s: retrieve: %w", name, err)
	}

	if g.breakers != nil {
		g.breakers.RecordSuccess(name)
	}
	return mentions, nil
}

func (g *Guard) warn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
