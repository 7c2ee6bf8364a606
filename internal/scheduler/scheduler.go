// Package scheduler drives the pipeline jobs on their cadences with
// single-flight protection: each job type runs at most once at a time,
// and overlapping invocations are dropped with a zero count.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tickwatch/tickwatch/internal/core/domain"
	"github.com/tickwatch/tickwatch/internal/platform/config"
	"github.com/tickwatch/tickwatch/internal/platform/observability"
	"github.com/tickwatch/tickwatch/internal/platform/worker"
	"github.com/tickwatch/tickwatch/internal/storage"
)

const (
	JobIngest  = "ingest"
	JobProcess = "process"
	JobRank    = "rank"

	outcomeRan     = "ran"
	outcomeSkipped = "skipped"
	outcomeError   = "error"

	dropStatsLimit = 20
)

// Job is one runnable pipeline step returning how many rows it moved.
type Job interface {
	Run(ctx context.Context) (int, error)
}

// BacklogCounter feeds the per-status backlog gauges and the periodic
// discard summary.
type BacklogCounter interface {
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
	GetDropReasonStats(ctx context.Context, since time.Time, limit int) ([]storage.DropReasonStat, error)
}

// Scheduler owns the job locks and the error boundary: no job error or
// panic ever propagates past a Run method.
type Scheduler struct {
	cfg    *config.Config
	locks  *JobLocks
	logger *zerolog.Logger

	ingest      Job
	triage      Job
	fetch       Job
	classify    Job
	personalize Job
	rank        Job

	backlog BacklogCounter
}

func New(cfg *config.Config, ingest, triage, fetch, classify, personalize, rank Job, backlog BacklogCounter, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		locks:       NewJobLocks(),
		logger:      logger,
		ingest:      ingest,
		triage:      triage,
		fetch:       fetch,
		classify:    classify,
		personalize: personalize,
		rank:        rank,
		backlog:     backlog,
	}
}

// RunIngest executes one ingestion pass. Returns 0 immediately when a
// previous pass is still running.
func (s *Scheduler) RunIngest(ctx context.Context) int {
	return s.runJob(ctx, JobIngest, s.ingest.Run)
}

// RunProcess advances the middle stages in pipeline order: triage,
// fetch, classify, personalize. The count is the total of rows moved
// across all four; a failing stage contributes zero and the rest still
// run, since each stage selects its own input independently.
func (s *Scheduler) RunProcess(ctx context.Context) int {
	return s.runJob(ctx, JobProcess, func(ctx context.Context) (int, error) {
		total := 0

		for _, stage := range []Job{s.triage, s.fetch, s.classify, s.personalize} {
			n, err := stage.Run(ctx)
			if err != nil {
				s.logger.Error().Err(err).Str("job", JobProcess).Msg("stage failed, continuing with remaining stages")
				continue
			}

			total += n
		}

		s.logDropStats(ctx)

		return total, nil
	})
}

// RunRank executes one ranking/clustering pass.
func (s *Scheduler) RunRank(ctx context.Context) int {
	return s.runJob(ctx, JobRank, s.rank.Run)
}

// runJob is the single-flight and error boundary shared by all jobs:
// try-acquire the lock, swallow any error or panic into a zero-count
// logged outcome, always release.
func (s *Scheduler) runJob(ctx context.Context, job string, run func(ctx context.Context) (int, error)) (count int) {
	if !s.locks.TryAcquire(job) {
		observability.JobRuns.WithLabelValues(job, outcomeSkipped).Inc()
		s.logger.Warn().Str("job", job).Msg("previous run still in progress, skipping")

		return 0
	}

	defer s.locks.Release(job)

	start := time.Now()

	defer func() {
		observability.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())

		if r := recover(); r != nil {
			observability.JobRuns.WithLabelValues(job, outcomeError).Inc()
			s.logger.Error().Str("job", job).Interface("panic", r).Msg("job panicked")

			count = 0
		}
	}()

	n, err := run(ctx)
	if err != nil {
		observability.JobRuns.WithLabelValues(job, outcomeError).Inc()
		s.logger.Error().Err(err).Str("job", job).Msg("job failed")

		return 0
	}

	observability.JobRuns.WithLabelValues(job, outcomeRan).Inc()
	s.logger.Info().Str("job", job).Int("count", n).Dur("took", time.Since(start)).Msg("job complete")

	s.refreshBacklog(ctx)

	return n
}

// logDropStats summarizes the last day of discards after a process run
// so operators can spot a misbehaving filter without querying the audit
// table by hand.
func (s *Scheduler) logDropStats(ctx context.Context) {
	if s.backlog == nil {
		return
	}

	stats, err := s.backlog.GetDropReasonStats(ctx, time.Now().Add(-24*time.Hour), dropStatsLimit)
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to query drop reason stats")
		return
	}

	for _, st := range stats {
		s.logger.Info().
			Str("stage", st.Stage).
			Str("reason", st.Reason).
			Int("count", st.Count).
			Msg("discards in the last day")
	}
}

func (s *Scheduler) refreshBacklog(ctx context.Context) {
	if s.backlog == nil {
		return
	}

	counts, err := s.backlog.CountByStatus(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to refresh backlog gauges")
		return
	}

	for status, n := range counts {
		observability.PipelineBacklog.WithLabelValues(string(status)).Set(float64(n))
	}
}

// Tasks returns the ticker tasks for the worker loop, with staggered
// initial delays so the jobs do not all fire at startup. Empty when the
// scheduler is disabled by configuration.
func (s *Scheduler) Tasks() []worker.TickerTask {
	if s.cfg.SchedulerDisabled {
		s.logger.Info().Msg("scheduler disabled by configuration")
		return nil
	}

	return []worker.TickerTask{
		{
			Name:         JobIngest,
			Interval:     s.cfg.IngestInterval,
			InitialDelay: s.cfg.InitialDelay,
			Run:          func(ctx context.Context) { s.RunIngest(ctx) },
		},
		{
			Name:         JobProcess,
			Interval:     s.cfg.ProcessInterval,
			InitialDelay: s.cfg.InitialDelay * 2,
			Run:          func(ctx context.Context) { s.RunProcess(ctx) },
		},
		{
			Name:         JobRank,
			Interval:     s.cfg.RankInterval,
			InitialDelay: s.cfg.InitialDelay * 3,
			Run:          func(ctx context.Context) { s.RunRank(ctx) },
		},
	}
}
