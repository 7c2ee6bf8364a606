// Package personalize turns classified impact into a profile-adjusted
// score against the user's holdings, with a cost gate that downgrades
// low-impact articles to a cheap deterministic path.
package personalize

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tickwatch/tickwatch/internal/core/domain"
	"github.com/tickwatch/tickwatch/internal/platform/config"
	"github.com/tickwatch/tickwatch/internal/platform/observability"
	"github.com/tickwatch/tickwatch/internal/storage"
)

const (
	reasonBelowMinScore = "below_min_score"

	outcomeAccepted  = "accepted"
	outcomeDiscarded = "discarded"
	outcomeSkipped   = "skipped"
	outcomeError     = "error"

	relevanceBase   = 25.0
	perMatchBoost   = 25.0
	maxMatchBoost   = 75.0
	maxHoldingScore = 100.0
	searchedByBoost = 10.0
)

type Repository interface {
	SelectForPersonalize(ctx context.Context, profile string, limit int) ([]domain.Article, error)
	ListHoldings(ctx context.Context) ([]domain.Holding, error)
	ApplyPersonalize(ctx context.Context, url string, holdingRelevance, adjusted float64, profile string) error
	DiscardFromPersonalize(ctx context.Context, url, reason string, adjusted float64) error
	SaveDecision(ctx context.Context, articleURL, stage string, accepted bool, reason string, scores map[string]float64) error
}

type Runner struct {
	cfg    *config.Config
	db     Repository
	logger *zerolog.Logger
}

func New(cfg *config.Config, db Repository, logger *zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, db: db, logger: logger}
}

// Run personalizes one batch for the active profile. Selection already
// excludes rows cached for this profile; rows cached under a different
// profile are selected again and recomputed in place.
func (r *Runner) Run(ctx context.Context) (int, error) {
	profile := r.cfg.ProfileType

	articles, err := r.db.SelectForPersonalize(ctx, profile, r.cfg.PersonalizeBatchSize)
	if err != nil {
		return 0, err
	}

	if len(articles) == 0 {
		return 0, nil
	}

	holdings, err := r.db.ListHoldings(ctx)
	if err != nil {
		return 0, err
	}

	advanced := 0

	for i := range articles {
		if r.personalizeOne(ctx, &articles[i], holdings, profile) {
			advanced++
		}
	}

	r.logger.Info().Int("batch", len(articles)).Int("advanced", advanced).Str("profile", profile).Msg("personalize batch complete")

	return advanced, nil
}

func (r *Runner) personalizeOne(ctx context.Context, a *domain.Article, holdings []domain.Holding, profile string) bool {
	impact := 0.0
	if a.ImpactScore != nil {
		impact = *a.ImpactScore
	}

	var (
		holdingRelevance float64
		adjusted         float64
		skipped          bool
	)

	if impact < r.cfg.ImpactOracleThreshold {
		// Cost gate: not worth the full computation. Derive a reduced
		// score and keep the article moving.
		adjusted = impact * r.cfg.SkipMultiplier
		skipped = true
	} else {
		holdingRelevance = HoldingRelevance(a, holdings)
		weights := domain.WeightsFor(domain.ProfileType(profile))
		adjusted = weights.Holdings*holdingRelevance + weights.Impact*impact
	}

	accepted := adjusted >= r.cfg.MinAdjustedScore

	var err error
	if accepted {
		err = r.db.ApplyPersonalize(ctx, a.URL, holdingRelevance, adjusted, profile)
	} else {
		err = r.db.DiscardFromPersonalize(ctx, a.URL, reasonBelowMinScore, adjusted)
	}

	if err != nil {
		if errors.Is(err, storage.ErrStaleStatus) {
			observability.StageProcessed.WithLabelValues(string(domain.StagePersonalize), outcomeSkipped).Inc()
			return false
		}

		observability.StageProcessed.WithLabelValues(string(domain.StagePersonalize), outcomeError).Inc()
		r.logger.Error().Err(err).Str("url", a.URL).Msg("personalize update failed, skipping row")

		return false
	}

	reason := ""
	if !accepted {
		reason = reasonBelowMinScore
	}

	scores := map[string]float64{
		"impact_score":           impact,
		"holding_relevance":      holdingRelevance,
		"profile_adjusted_score": adjusted,
	}
	if skipped {
		scores["cost_gate_skipped"] = 1
	}

	if err := r.db.SaveDecision(ctx, a.URL, string(domain.StagePersonalize), accepted, reason, scores); err != nil {
		r.logger.Warn().Err(err).Str("url", a.URL).Msg("failed to save personalize decision")
	}

	if accepted {
		observability.StageProcessed.WithLabelValues(string(domain.StagePersonalize), outcomeAccepted).Inc()
		return true
	}

	observability.StageProcessed.WithLabelValues(string(domain.StagePersonalize), outcomeDiscarded).Inc()
	observability.DropsTotal.WithLabelValues(reasonBelowMinScore).Inc()

	return false
}

// HoldingRelevance scores an article against the tracked positions on a
// 0-100 scale: a base score, a capped per-match boost for each held
// ticker the classifier matched, and a small boost when the article was
// found by a holding's targeted query.
func HoldingRelevance(a *domain.Article, holdings []domain.Holding) float64 {
	if len(holdings) == 0 {
		return 0
	}

	held := make(map[string]bool, len(holdings))
	for _, h := range holdings {
		held[strings.ToUpper(h.Ticker)] = true
	}

	boost := 0.0

	for _, t := range a.MatchedTickers {
		if held[strings.ToUpper(t)] {
			boost += perMatchBoost
		}
	}

	if boost > maxMatchBoost {
		boost = maxMatchBoost
	}

	score := relevanceBase + boost

	for _, tag := range a.SearchedBy {
		if held[strings.ToUpper(tag)] {
			score += searchedByBoost
			break
		}
	}

	if score > maxHoldingScore {
		score = maxHoldingScore
	}

	return score
}
