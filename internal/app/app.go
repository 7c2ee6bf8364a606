// Package app wires the pipeline together: storage, providers, oracle,
// stage runners, and the scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tickwatch/tickwatch/internal/core/domain"
	"github.com/tickwatch/tickwatch/internal/ingest"
	"github.com/tickwatch/tickwatch/internal/oracle"
	"github.com/tickwatch/tickwatch/internal/platform/config"
	"github.com/tickwatch/tickwatch/internal/platform/observability"
	"github.com/tickwatch/tickwatch/internal/platform/worker"
	"github.com/tickwatch/tickwatch/internal/process/classify"
	"github.com/tickwatch/tickwatch/internal/process/fetch"
	"github.com/tickwatch/tickwatch/internal/process/personalize"
	"github.com/tickwatch/tickwatch/internal/process/rank"
	"github.com/tickwatch/tickwatch/internal/process/triage"
	"github.com/tickwatch/tickwatch/internal/scheduler"
	"github.com/tickwatch/tickwatch/internal/storage"
)

type App struct {
	cfg       *config.Config
	db        *storage.DB
	logger    *zerolog.Logger
	scheduler *scheduler.Scheduler
	expCache  *rank.ExplanationCache
}

func New(cfg *config.Config, db *storage.DB, logger *zerolog.Logger) *App {
	registry := ingest.NewRegistry()
	registry.Register(ingest.NewGoogleNewsProvider(cfg.ProviderRPS, cfg.ResolveTimeout))

	feeds := make([]ingest.Provider, 0, len(cfg.FeedURLs))
	for _, u := range cfg.FeedURLs {
		feeds = append(feeds, ingest.NewFeedProvider(u, cfg.ProviderRPS, cfg.ResolveTimeout))
	}

	oracleClient := newOracleClient(cfg, logger)
	expCache := rank.NewExplanationCache(cfg.ExplanationTTL, cfg.ExplanationCacheCapacity)

	sched := scheduler.New(
		cfg,
		ingest.New(cfg, db, registry, feeds, logger),
		triage.New(cfg, db, logger),
		fetch.New(cfg, db, logger),
		classify.New(cfg, db, oracleClient, logger),
		personalize.New(cfg, db, logger),
		rank.New(cfg, db, oracleClient, expCache, logger),
		db,
		logger,
	)

	return &App{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		scheduler: sched,
		expCache:  expCache,
	}
}

func newOracleClient(cfg *config.Config, logger *zerolog.Logger) oracle.Client {
	if cfg.OracleAPIKey == "" {
		logger.Warn().Msg("no oracle API key configured, using deterministic fallback oracle")

		return oracle.NewFallback()
	}

	return oracle.NewOpenAI(cfg, logger)
}

// StartHealthServer serves the health and metrics endpoints until the
// context is cancelled.
func (a *App) StartHealthServer(ctx context.Context) error {
	return observability.NewServer(a.db, a.cfg.HealthPort, a.logger).Start(ctx)
}

// RunPipeline runs all jobs on their cadences until cancellation.
func (a *App) RunPipeline(ctx context.Context) error {
	a.expCache.StartSweeping(ctx)

	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name:   "pipeline",
		Tasks:  a.scheduler.Tasks(),
		Logger: a.logger,
	})
}

// RunAllOnce runs one full pipeline pass: ingest, then the processing
// stages, then ranking.
func (a *App) RunAllOnce(ctx context.Context) error {
	for _, job := range []string{scheduler.JobIngest, scheduler.JobProcess, scheduler.JobRank} {
		if err := a.RunOnce(ctx, job); err != nil {
			return err
		}
	}

	return nil
}

// RunOnce executes a single pass of one job and returns.
func (a *App) RunOnce(ctx context.Context, job string) error {
	var count int

	start := time.Now()

	switch job {
	case scheduler.JobIngest:
		count = a.scheduler.RunIngest(ctx)
	case scheduler.JobProcess:
		count = a.scheduler.RunProcess(ctx)
	case scheduler.JobRank:
		count = a.scheduler.RunRank(ctx)
		a.logRecentGroups(ctx, start)
	default:
		return fmt.Errorf("unknown job %q", job)
	}

	a.logger.Info().Str("job", job).Int("count", count).Msg("single run complete")

	return nil
}

const recentGroupsLimit = 50

// logRecentGroups reports the story groups touched by the latest rank
// pass, so a single-shot run shows its output without a manual query.
func (a *App) logRecentGroups(ctx context.Context, since time.Time) {
	groups, err := a.db.GroupsUpdatedSince(ctx, since, recentGroupsLimit)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to list updated story groups")
		return
	}

	for _, g := range groups {
		a.logger.Info().
			Str("group", g.ID).
			Str("scope", string(g.Scope)).
			Str("ticker", g.PrimaryTicker).
			Str("impact", string(g.ImpactLevel)).
			Float64("confidence", g.Confidence).
			Str("title", g.Title).
			Msg("story group updated")
	}
}

// AddHolding validates and stores one tracked holding.
func (a *App) AddHolding(ctx context.Context, ticker, label string) error {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return errors.New("holding ticker is required")
	}

	return a.db.UpsertHolding(ctx, domain.Holding{Ticker: ticker, Label: strings.TrimSpace(label)})
}

// RemoveHolding deletes one tracked holding.
func (a *App) RemoveHolding(ctx context.Context, ticker string) error {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return errors.New("holding ticker is required")
	}

	return a.db.DeleteHolding(ctx, ticker)
}

// ListHoldings returns the tracked watchlist ordered by ticker.
func (a *App) ListHoldings(ctx context.Context) ([]domain.Holding, error) {
	return a.db.ListHoldings(ctx)
}
