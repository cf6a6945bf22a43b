package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ProductScout/internal/candidate"
	"ProductScout/internal/config"
	"ProductScout/internal/domain"
	"ProductScout/internal/evidence"
	"ProductScout/internal/httpapi"
	"ProductScout/internal/infrastructure/cache"
	"ProductScout/internal/infrastructure/events"
	"ProductScout/internal/infrastructure/llm"
	"ProductScout/internal/infrastructure/scheduler"
	"ProductScout/internal/infrastructure/sources"
	"ProductScout/internal/infrastructure/storage"
	"ProductScout/internal/infrastructure/telegram"
	"ProductScout/internal/intent"
	"ProductScout/internal/ports"
	"ProductScout/internal/ranking"
	"ProductScout/internal/resilience"
	"ProductScout/internal/resolver"
	"ProductScout/internal/source"
	"ProductScout/internal/usecase"
)

const (
	llmCachePrefix  = "productscout:llm:"
	cacheCleanup    = 10 * time.Minute
	sourceTimeout   = 20 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.QueryStore
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	api       *httpapi.Server
	closers   []func() error
}

// RunOutcome is the result of a synchronous one-shot run.
type RunOutcome struct {
	Query   domain.Query
	Result  domain.PipelineResult
	Ranking *domain.RankingRecord
}

// New builds the application graph. Dependencies that hold connections are
// released by Close.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = slog.Default()
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	store, err := a.buildStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	limiters := resilience.NewLimiters(cfg.Resilience.Limits, resilience.WithFallbackBucket(cfg.Resilience.DefaultLimit))
	breakers := resilience.NewBreakers(
		resilience.WithBreakerThreshold(cfg.Resilience.BreakerThreshold),
		resilience.WithBreakerWindow(cfg.Resilience.BreakerWindow),
	)
	retry := cfg.Resilience.Retry

	model, err := a.buildLLM(ctx, limiters)
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := a.buildRegistry(limiters)
	guard := source.NewGuard(limiters, breakers, baseLogger.With("component", "source.guard"))

	notifiers, err := a.buildNotifiers()
	if err != nil {
		a.Close()
		return nil, err
	}

	p := cfg.Pipeline
	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Store:  store,
		Intent: intent.NewParser(model, retry, baseLogger.With("component", "intent"), nil),
		Generator: candidate.NewGenerator(registry, guard, model, retry, candidate.Config{
			SeedTermCap: p.SeedTermCap,
			BatchSize:   p.MentionBatchSize,
			Workers:     p.Workers,
		}, baseLogger.With("component", "candidate")),
		Resolver: resolver.NewResolver(model, retry, resolver.Config{
			Threshold: p.ResolveThreshold,
			Window:    p.ResolveWindow,
		}, baseLogger.With("component", "resolver")),
		Extractor: evidence.NewExtractor(model, retry, evidence.Config{
			MaxCandidates: p.EvidenceCandidates,
			MaxMentions:   p.EvidenceMentionCap,
			Workers:       p.Workers,
		}, baseLogger.With("component", "evidence")),
		Ranker:    ranking.NewRanker(model, retry, baseLogger.With("component", "ranking"), nil),
		Notifiers: notifiers,
		Logger:    baseLogger.With("component", "pipeline"),
	})

	a.scheduler = usecase.NewScheduler(
		scheduler.NewTickerScheduler(p.PollInterval),
		store,
		a.pipeline,
		p.MaxConcurrentRuns,
		baseLogger.With("component", "scheduler"),
	)
	a.api = httpapi.NewServer(store, resilience.NewSlidingWindow(nil), httpapi.Limits{
		PerIP:  p.SubmissionsPerIP,
		Window: p.SubmissionWindow,
	}, baseLogger.With("component", "httpapi"))

	return a, nil
}

func (a *Application) buildStore(ctx context.Context) (ports.QueryStore, error) {
	switch a.cfg.Database.Driver {
	case "", "memory":
		return storage.NewMemoryStore(), nil
	case storage.DriverSQLite, storage.DriverPostgres:
		store, err := storage.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", a.cfg.Database.Driver)
	}
}

func (a *Application) buildLLM(ctx context.Context, limiters *resilience.Limiters) (ports.LLM, error) {
	if a.cfg.LLM.APIKey == "" {
		a.logger.Warn("llm api key not set; stages will fall back to heuristics")
	}
	client := llm.NewClient(a.cfg.LLM, limiters)

	cc := a.cfg.Cache
	var backend cache.Store
	switch cc.Driver {
	case "", "none":
		return client, nil
	case "memory":
		backend = cache.NewMemory(cc.TTL, cacheCleanup)
	case "redis":
		redis, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cc.Redis.Addr,
			Password: cc.Redis.Password,
			DB:       cc.Redis.DB,
			PoolSize: cc.Redis.PoolSize,
			Prefix:   llmCachePrefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redis.Close)
		backend = redis
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cc.Driver)
	}
	return llm.NewCachedClient(client, backend, cc.TTL, a.logger.With("component", "llm.cache")), nil
}

func (a *Application) buildRegistry(limiters *resilience.Limiters) *source.Registry {
	registry := source.NewRegistry()
	client := &http.Client{Timeout: sourceTimeout}
	for _, sc := range a.cfg.Sources {
		if !sc.Enabled {
			continue
		}
		log := a.logger.With("component", "source."+sc.Name)
		switch sc.Name {
		case "reddit":
			registry.Register(sources.NewReddit(client, limiters, sc.Endpoint, sc.Limit, log))
		case "websearch":
			registry.Register(sources.NewWebSearch(client, limiters, sc.Endpoint, sc.Limit, log))
		default:
			a.logger.Warn("unknown source skipped", "source", sc.Name)
		}
	}
	return registry
}

func (a *Application) buildNotifiers() ([]ports.Notifier, error) {
	var out []ports.Notifier
	nc := a.cfg.Notifications
	if nc.Telegram.BotToken != "" && nc.Telegram.ChatID != "" {
		out = append(out, telegram.NewNotifier(nc.Telegram.BotToken, nc.Telegram.ChatID))
	}
	if nc.NATS.URL != "" {
		n, err := events.Connect(nc.NATS.URL, nc.NATS.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			n.Close()
			return nil
		})
		out = append(out, n)
	}
	return out, nil
}

// RunQuery stores text as a new query and runs it synchronously.
func (a *Application) RunQuery(ctx context.Context, text string) (RunOutcome, error) {
	q, err := a.store.CreateQuery(ctx, text)
	if err != nil {
		return RunOutcome{}, fmt.Errorf("create query: %w", err)
	}

	out := RunOutcome{Result: a.pipeline.Run(ctx, q.ID)}
	if out.Query, err = a.store.GetQuery(ctx, q.ID); err != nil {
		return out, fmt.Errorf("reload query: %w", err)
	}
	rec, err := a.store.GetRankingResult(ctx, q.ID)
	switch {
	case err == nil:
		out.Ranking = &rec
	case !errors.Is(err, domain.ErrNotFound):
		return out, fmt.Errorf("load ranking: %w", err)
	}
	return out, nil
}

// Serve runs the HTTP API and the pending-query poller until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http api listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop failed", "error", err)
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
