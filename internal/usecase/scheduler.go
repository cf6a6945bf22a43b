package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// Runner executes one query.
type Runner interface {
	Run(ctx context.Context, queryID string) domain.PipelineResult
}

// Scheduler wires the ticker driver with the pipeline: every tick it picks up
// pending queries and runs them with bounded concurrency.
type Scheduler struct {
	driver        ports.Scheduler
	store         ports.QueryStore
	runner        Runner
	maxConcurrent int
	logger        *slog.Logger
}

// NewScheduler returns a helper to start/stop the pending-query poller.
func NewScheduler(driver ports.Scheduler, store ports.QueryStore, runner Runner, maxConcurrent int, log *slog.Logger) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Scheduler{driver: driver, store: store, runner: runner, maxConcurrent: maxConcurrent, logger: log}
}

// Start registers the poll job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.runner == nil || s.store == nil {
		return nil
	}

	job := func(time.Time) {
		s.RunPending(ctx)
	}

	return s.driver.Start(ctx, job)
}

// RunPending runs up to maxConcurrent pending queries and waits for them.
// It returns the number of runs started.
func (s *Scheduler) RunPending(ctx context.Context) int {
	pending, err := s.store.ListPending(ctx, s.maxConcurrent)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("list pending queries failed", "error", err)
		}
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)
	for _, q := range pending {
		g.Go(func() error {
			res := s.runner.Run(ctx, q.ID)
			if !res.Success && s.logger != nil {
				s.logger.Debug("scheduled run failed", "query_id", q.ID, "error", res.Error)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(pending)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
