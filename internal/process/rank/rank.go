// Package rank blends classified impact with the profile-adjusted
// score into a final ranking, clusters ranked articles into story
// groups, and attaches generated explanations to each group.
package rank

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tickwatch/tickwatch/internal/core/domain"
	"github.com/tickwatch/tickwatch/internal/oracle"
	"github.com/tickwatch/tickwatch/internal/platform/config"
	"github.com/tickwatch/tickwatch/internal/platform/observability"
	"github.com/tickwatch/tickwatch/internal/storage"
)

const (
	adjustedWeight = 0.7
	impactWeight   = 0.3

	outcomeAccepted = "accepted"
	outcomeSkipped  = "skipped"
	outcomeError    = "error"
)

type Repository interface {
	SelectForRank(ctx context.Context, limit int) ([]domain.Article, error)
	ListHoldings(ctx context.Context) ([]domain.Holding, error)
	ApplyRank(ctx context.Context, url string, finalScore float64, clusterID string) error
	UpsertStoryGroup(ctx context.Context, g *domain.StoryGroup) (string, error)
	UpsertExplanation(ctx context.Context, e *domain.Explanation) error
	AddGroupArticle(ctx context.Context, m domain.StoryGroupMember) error
	AddRelatedTicker(ctx context.Context, groupID, ticker string) error
}

type Runner struct {
	cfg    *config.Config
	db     Repository
	oracle oracle.Client
	cache  *ExplanationCache
	logger *zerolog.Logger
}

func New(cfg *config.Config, db Repository, client oracle.Client, cache *ExplanationCache, logger *zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, db: db, oracle: client, cache: cache, logger: logger}
}

// Run ranks one batch. Input order is profile-adjusted score
// descending, which also fixes the clustering order: the
// highest-scoring article of an event becomes its cluster seed.
func (r *Runner) Run(ctx context.Context) (int, error) {
	articles, err := r.db.SelectForRank(ctx, r.cfg.RankBatchSize)
	if err != nil {
		return 0, err
	}

	if len(articles) == 0 {
		return 0, nil
	}

	ptrs := make([]*domain.Article, len(articles))
	for i := range articles {
		ptrs[i] = &articles[i]
	}

	clusters := BuildClusters(ptrs, r.cfg.SimilarityThreshold)
	observability.ClustersFormed.Add(float64(len(clusters)))

	ranked := 0
	groupIDs := make([]string, len(clusters))

	for ci, c := range clusters {
		id, err := r.persistGroup(ctx, c)
		if err != nil {
			r.logger.Error().Err(err).Str("title", c.Seed.Title).Msg("failed to persist story group, ranking without group")
		}

		groupIDs[ci] = id

		for _, m := range c.Members {
			if r.rankOne(ctx, m.Article, id) {
				ranked++
			}
		}
	}

	r.explainGroups(ctx, clusters, groupIDs)

	r.logger.Info().Int("batch", len(articles)).Int("ranked", ranked).Int("clusters", len(clusters)).Msg("rank batch complete")

	return ranked, nil
}

func (r *Runner) rankOne(ctx context.Context, a *domain.Article, clusterID string) bool {
	final := FinalScore(a)

	if err := r.db.ApplyRank(ctx, a.URL, final, clusterID); err != nil {
		if errors.Is(err, storage.ErrStaleStatus) {
			observability.StageProcessed.WithLabelValues(string(domain.StageRank), outcomeSkipped).Inc()
			return false
		}

		observability.StageProcessed.WithLabelValues(string(domain.StageRank), outcomeError).Inc()
		r.logger.Error().Err(err).Str("url", a.URL).Msg("rank update failed, skipping row")

		return false
	}

	observability.StageProcessed.WithLabelValues(string(domain.StageRank), outcomeAccepted).Inc()

	return true
}

// FinalScore blends the profile-adjusted score with raw impact so a
// market-wide story keeps some weight even under a holdings-heavy
// profile.
func FinalScore(a *domain.Article) float64 {
	adjusted := 0.0
	if a.ProfileAdjustedScore != nil {
		adjusted = *a.ProfileAdjustedScore
	}

	impact := 0.0
	if a.ImpactScore != nil {
		impact = *a.ImpactScore
	}

	return adjustedWeight*adjusted + impactWeight*impact
}

// explainGroups generates explanations for all groups in one oracle
// batch, serving repeat events from the TTL cache. Explanation failures
// never fail the run; the oracle client degrades to fallbacks on its
// own.
func (r *Runner) explainGroups(ctx context.Context, clusters []Cluster, groupIDs []string) {
	holdings, err := r.db.ListHoldings(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to list holdings for explanations")
		holdings = nil
	}

	tickers := make([]string, 0, len(holdings))
	for _, h := range holdings {
		tickers = append(tickers, h.Ticker)
	}

	type pending struct {
		clusterIdx int
		key        string
	}

	events := make([]oracle.Event, 0, len(clusters))
	missing := make([]pending, 0, len(clusters))

	for ci, c := range clusters {
		if groupIDs[ci] == "" {
			continue
		}

		key := Key(groupIDs[ci], tickers)

		if cached, ok := r.cache.Get(key); ok {
			r.saveExplanation(ctx, groupIDs[ci], cached)
			continue
		}

		events = append(events, oracle.Event{
			ID:      groupIDs[ci],
			Title:   c.Seed.Title,
			Summary: c.Seed.Description,
			Tickers: relatedTickers(c),
		})
		missing = append(missing, pending{clusterIdx: ci, key: key})
	}

	if len(events) == 0 {
		return
	}

	results, err := r.oracle.ExplainBatch(ctx, events, tickers)
	if err != nil || len(results) != len(events) {
		r.logger.Warn().Err(err).Msg("explanation batch failed")
		return
	}

	for i, res := range results {
		gid := groupIDs[missing[i].clusterIdx]

		r.cache.Set(missing[i].key, res)
		r.saveExplanation(ctx, gid, res)
	}
}

func (r *Runner) saveExplanation(ctx context.Context, groupID string, res oracle.ExplanationResult) {
	err := r.db.UpsertExplanation(ctx, &domain.Explanation{
		GroupID:  groupID,
		Headline: res.Headline,
		Body:     res.Body,
		Fallback: res.Fallback,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("group_id", groupID).Msg("failed to save explanation")
	}
}
