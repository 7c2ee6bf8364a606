package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/tickwatch/tickwatch/internal/core/domain"
	"github.com/tickwatch/tickwatch/internal/platform/config"
	"github.com/tickwatch/tickwatch/internal/platform/observability"
	"github.com/tickwatch/tickwatch/internal/storage"
)

const (
	logKeySource = "source"
	logKeyURL    = "url"

	bucketHoldings = "holdings"
	bucketMacro    = "macro"
	bucketFeeds    = "feeds"

	macroTagPrefix = "macro:"

	serialFetchDelay = 500 * time.Millisecond
)

// Repository is the slice of the store the ingestor needs.
type Repository interface {
	ListHoldings(ctx context.Context) ([]domain.Holding, error)
	UpsertArticle(ctx context.Context, a *domain.Article) error
	GetSourceBackoff(ctx context.Context, source string) (*storage.SourceBackoff, error)
	RecordSourceFailure(ctx context.Context, source string, base, maxDelay time.Duration) error
	ClearSourceBackoff(ctx context.Context, source string) error
}

// urlResolver resolves a raw URL to its post-redirect form.
type urlResolver interface {
	Resolve(ctx context.Context, rawURL string) string
}

// Ingestor merges the three source buckets (holdings-targeted queries,
// macro/event queries, direct feeds), deduplicates by canonical
// identity within the run, and upserts the survivors as pending rows.
type Ingestor struct {
	cfg      *config.Config
	db       Repository
	registry *Registry
	feeds    []Provider
	resolver urlResolver
	filter   *DomainFilter
	logger   *zerolog.Logger
}

func New(cfg *config.Config, db Repository, registry *Registry, feeds []Provider, logger *zerolog.Logger) *Ingestor {
	return &Ingestor{
		cfg:      cfg,
		db:       db,
		registry: registry,
		feeds:    feeds,
		resolver: NewResolver(cfg.ResolveTimeout, logger),
		filter:   NewDomainFilter(cfg.DomainAllowlist, cfg.DomainBlocklist, cfg.StrictDomainMode),
		logger:   logger,
	}
}

// sourceJob is one provider call within a run. Jobs keep their index so
// results can be merged in source-iteration order regardless of whether
// the calls ran in parallel.
type sourceJob struct {
	provider Provider
	query    string
	tag      string
	bucket   string
}

// Run executes one ingestion pass and returns the number of rows
// upserted. Per-row persistence errors are logged and skipped; the run
// itself fails only when no source can be queried at all.
func (in *Ingestor) Run(ctx context.Context) (int, error) {
	in.registry.ResetRun()

	jobs, err := in.buildJobs(ctx)
	if err != nil {
		return 0, err
	}

	results := in.fetchAll(ctx, jobs)
	merged, order := in.mergeResults(jobs, results)
	kept := in.applyMacroCap(merged, order)

	count := 0

	for _, key := range kept {
		a := merged[key]
		if err := in.db.UpsertArticle(ctx, &a); err != nil {
			in.logger.Error().Err(err).Str(logKeyURL, a.URL).Msg("failed to upsert article, skipping row")

			continue
		}

		count++
	}

	in.logger.Info().Int("upserted", count).Int("fetched", len(order)).Msg("ingestion run complete")

	return count, nil
}

// buildJobs expands the configured buckets into provider calls:
// one targeted query per holding per search provider, one call per
// macro query, one call per direct feed.
func (in *Ingestor) buildJobs(ctx context.Context) ([]sourceJob, error) {
	providers := in.registry.Available()
	if len(providers) == 0 && len(in.feeds) == 0 {
		return nil, ErrNoProvidersAvailable
	}

	holdings, err := in.db.ListHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}

	jobs := make([]sourceJob, 0)

	for _, h := range holdings {
		query := h.Ticker
		if h.Label != "" {
			query = h.Ticker + " " + h.Label
		}

		for _, p := range providers {
			jobs = append(jobs, sourceJob{provider: p, query: query, tag: h.Ticker, bucket: bucketHoldings})
		}
	}

	for _, q := range in.cfg.MacroQueries {
		for _, p := range providers {
			jobs = append(jobs, sourceJob{provider: p, query: q, tag: macroTagPrefix + q, bucket: bucketMacro})
		}
	}

	for _, f := range in.feeds {
		jobs = append(jobs, sourceJob{provider: f, query: "", tag: f.Name(), bucket: bucketFeeds})
	}

	return jobs, nil
}

// fetchAll runs every job and returns results indexed by job position.
// Parallel mode fans out and joins; serial mode spaces calls with a
// fixed delay for rate-limited upstreams. Either way the result order
// is the job order.
func (in *Ingestor) fetchAll(ctx context.Context, jobs []sourceJob) [][]RawArticle {
	results := make([][]RawArticle, len(jobs))

	if in.cfg.ParallelProviders {
		var wg sync.WaitGroup

		for i, job := range jobs {
			wg.Add(1)

			go func(i int, job sourceJob) {
				defer wg.Done()

				results[i] = in.fetchOne(ctx, job)
			}(i, job)
		}

		wg.Wait()

		return results
	}

	for i, job := range jobs {
		results[i] = in.fetchOne(ctx, job)

		if i < len(jobs)-1 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(serialFetchDelay):
			}
		}
	}

	return results
}

// fetchOne guards a single provider call with the persisted backoff
// gate, the per-run rate-limit disable, and in-run retries for
// transient failures.
func (in *Ingestor) fetchOne(ctx context.Context, job sourceJob) []RawArticle {
	name := job.provider.Name()

	if in.isRunDisabled(name) {
		return nil
	}

	if in.inBackoff(ctx, name) {
		return nil
	}

	start := time.Now()
	raw, err := in.fetchWithRetry(ctx, job)

	observability.ProviderRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		in.handleFetchError(ctx, name, err)

		return nil
	}

	observability.ProviderRequests.WithLabelValues(name, "success").Inc()
	in.registry.RecordResult(name, nil)

	if err := in.db.ClearSourceBackoff(ctx, name); err != nil {
		in.logger.Warn().Err(err).Str(logKeySource, name).Msg("failed to clear source backoff")
	}

	return raw
}

func (in *Ingestor) isRunDisabled(name string) bool {
	for _, p := range in.registry.Available() {
		if p.Name() == name {
			return false
		}
	}

	// Feed providers are not in the registry; only registry sources can
	// be run-disabled.
	for _, f := range in.feeds {
		if f.Name() == name {
			return false
		}
	}

	return true
}

func (in *Ingestor) inBackoff(ctx context.Context, name string) bool {
	backoff, err := in.db.GetSourceBackoff(ctx, name)
	if err != nil {
		in.logger.Warn().Err(err).Str(logKeySource, name).Msg("backoff lookup failed")

		return false
	}

	if backoff != nil && time.Now().Before(backoff.NextAttemptAt) {
		in.logger.Debug().
			Str(logKeySource, name).
			Time("next_attempt_at", backoff.NextAttemptAt).
			Msg("source in backoff, skipping")

		return true
	}

	return false
}

// fetchWithRetry retries transient failures with capped exponential
// backoff inside the run. A rate-limit signal is never retried here; it
// disables the source for the rest of the run.
func (in *Ingestor) fetchWithRetry(ctx context.Context, job sourceJob) ([]RawArticle, error) {
	attempts := uint64(in.cfg.ProviderAttempts)
	if attempts == 0 {
		attempts = 1
	}

	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(time.Second))

	var raw []RawArticle

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error

		raw, err = job.provider.Fetch(ctx, job.query, in.cfg.PerSourceLimit)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				return err
			}

			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return raw, nil
}

func (in *Ingestor) handleFetchError(ctx context.Context, name string, err error) {
	in.registry.RecordResult(name, err)

	if errors.Is(err, ErrRateLimited) {
		observability.ProviderRequests.WithLabelValues(name, "rate_limited").Inc()
		in.registry.DisableForRun(name)
		in.logger.Warn().Str(logKeySource, name).Msg("source rate limited, disabled for remainder of run")

		return
	}

	observability.ProviderRequests.WithLabelValues(name, "error").Inc()
	in.logger.Error().Err(err).Str(logKeySource, name).Msg("provider fetch failed")

	if err := in.db.RecordSourceFailure(ctx, name, in.cfg.BackoffBase, in.cfg.BackoffCap); err != nil {
		in.logger.Warn().Err(err).Str(logKeySource, name).Msg("failed to record source failure")
	}
}

// mergeResults normalizes, resolves, and deduplicates fetched records
// in source-iteration order. Dedup keys on the canonical URL, so two
// mirror URLs resolving to the same publisher page collapse into one
// entry keeping the first-seen URL. The returned order slice preserves
// first appearance, which the macro cap uses for its tie-break.
func (in *Ingestor) mergeResults(jobs []sourceJob, results [][]RawArticle) (map[string]domain.Article, []string) {
	merged := make(map[string]domain.Article)
	order := make([]string, 0)

	for i, raws := range results {
		job := jobs[i]

		for _, raw := range raws {
			a, ok := Normalize(raw, job.tag)
			if !ok {
				continue
			}

			a, ok = in.canonicalize(a)
			if !ok {
				continue
			}

			key := a.CanonicalURL
			if key == "" {
				key = a.URL
			}

			if existing, seen := merged[key]; seen {
				merged[key] = Merge(existing, a)
				continue
			}

			merged[key] = a
			order = append(order, key)

			observability.ArticlesIngested.WithLabelValues(job.bucket).Inc()
		}
	}

	return merged, order
}

// canonicalize resolves the article URL and applies the domain gate.
// Blocked resolved domains fall back to the original URL; strict mode
// rejects non-allowlisted domains outright.
func (in *Ingestor) canonicalize(a domain.Article) (domain.Article, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), in.cfg.ResolveTimeout)
	defer cancel()

	resolved := in.resolver.Resolve(ctx, a.URL)

	switch in.filter.Check(resolved) {
	case VerdictAllow:
		a.CanonicalURL = resolved
	case VerdictUseOriginal:
		a.CanonicalURL = a.URL
	case VerdictWarn:
		in.logger.Warn().Str(logKeyURL, resolved).Msg("domain not allowlisted, passing through (permissive mode)")

		a.CanonicalURL = resolved
	case VerdictReject:
		in.logger.Debug().Str(logKeyURL, resolved).Msg("domain not allowlisted, rejected (strict mode)")

		return a, false
	}

	return a, true
}

// applyMacroCap enforces the hard cap on the macro bucket after the
// merge and before persistence. Articles also found by a holdings query
// or a feed are exempt; ties break by source-iteration order, not
// recency.
func (in *Ingestor) applyMacroCap(merged map[string]domain.Article, order []string) []string {
	if in.cfg.MacroCap <= 0 {
		return order
	}

	kept := make([]string, 0, len(order))
	macroKept := 0

	for _, url := range order {
		a := merged[url]

		if !macroOnly(a) {
			kept = append(kept, url)
			continue
		}

		if macroKept < in.cfg.MacroCap {
			kept = append(kept, url)
			macroKept++

			continue
		}

		in.logger.Debug().Str(logKeyURL, url).Msg("macro cap reached, dropping article")
	}

	return kept
}

func macroOnly(a domain.Article) bool {
	for _, tag := range a.SearchedBy {
		if len(tag) < len(macroTagPrefix) || tag[:len(macroTagPrefix)] != macroTagPrefix {
			return false
		}
	}

	return len(a.SearchedBy) > 0
}
