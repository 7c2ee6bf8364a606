// Package triage is the cheap pre-filter in front of the expensive
// stages: a local title-relevance heuristic decides which pending
// articles are worth fetching and classifying at all.
package triage

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
	reasonTitleNotRelevant = "title_not_relevant"

	outcomeAccepted  = "accepted"
	outcomeDiscarded = "discarded"
	outcomeSkipped   = "skipped"
	outcomeError     = "error"

	tickerMatchScore  = 0.6
	labelMatchScore   = 0.4
	macroKeywordScore = 0.15
	holdingsTagScore  = 0.2
	maxRelevance      = 1.0
)

type Repository interface {
	SelectForStage(ctx context.Context, gate domain.StageGate, limit int) ([]domain.Article, error)
	ListHoldings(ctx context.Context) ([]domain.Holding, error)
	ApplyTriage(ctx context.Context, url string, relevance float64, accepted bool, reason string) error
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

// Run scores one batch of pending articles and advances or discards
// each. Returns the number of rows that advanced.
func (r *Runner) Run(ctx context.Context) (int, error) {
	gate := domain.StageGates[domain.StageTriage]

	articles, err := r.db.SelectForStage(ctx, gate, r.cfg.TriageBatchSize)
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
		a := &articles[i]
		relevance := Relevance(a, holdings, r.cfg.MacroQueries)
		accepted := relevance >= r.cfg.TitleRelevanceThreshold

		reason := ""
		if !accepted {
			reason = reasonTitleNotRelevant
		}

		if err := r.db.ApplyTriage(ctx, a.URL, relevance, accepted, reason); err != nil {
			if errors.Is(err, storage.ErrStaleStatus) {
				observability.StageProcessed.WithLabelValues(string(domain.StageTriage), outcomeSkipped).Inc()
				continue
			}

			observability.StageProcessed.WithLabelValues(string(domain.StageTriage), outcomeError).Inc()
			r.logger.Error().Err(err).Str("url", a.URL).Msg("triage update failed, skipping row")

			continue
		}

		scores := map[string]float64{"title_relevance": relevance}
		if err := r.db.SaveDecision(ctx, a.URL, string(domain.StageTriage), accepted, reason, scores); err != nil {
			r.logger.Warn().Err(err).Str("url", a.URL).Msg("failed to save triage decision")
		}

		if accepted {
			observability.StageProcessed.WithLabelValues(string(domain.StageTriage), outcomeAccepted).Inc()

			advanced++
		} else {
			observability.StageProcessed.WithLabelValues(string(domain.StageTriage), outcomeDiscarded).Inc()
			observability.DropsTotal.WithLabelValues(reasonTitleNotRelevant).Inc()
		}
	}

	r.logger.Info().Int("batch", len(articles)).Int("advanced", advanced).Msg("triage batch complete")

	return advanced, nil
}

// Relevance scores a title against the tracked holdings and configured
// macro themes. The score is additive and capped at 1.0: direct ticker
// or label mentions dominate, macro keywords and the originating search
// tag contribute smaller amounts.
func Relevance(a *domain.Article, holdings []domain.Holding, macroQueries []string) float64 {
	text := strings.ToLower(a.Title + " " + a.Description)
	tags := make(map[string]bool, len(a.SearchedBy))

	for _, t := range a.SearchedBy {
		tags[strings.ToUpper(t)] = true
	}

	score := 0.0

	for _, h := range holdings {
		if h.Ticker != "" && containsWord(text, strings.ToLower(h.Ticker)) {
			score += tickerMatchScore
		} else if h.Label != "" && strings.Contains(text, strings.ToLower(h.Label)) {
			score += labelMatchScore
		} else if tags[strings.ToUpper(h.Ticker)] {
			// Found by this holding's targeted query but the title does
			// not name it; weak signal, still above noise.
			score += holdingsTagScore
		}
	}

	for _, q := range macroQueries {
		for _, kw := range strings.Fields(strings.ToLower(q)) {
			if len(kw) >= 4 && strings.Contains(text, kw) {
				score += macroKeywordScore
				break
			}
		}
	}

	if score > maxRelevance {
		score = maxRelevance
	}

	return score
}

// containsWord matches a token on word boundaries so short tickers do
// not match inside unrelated words.
func containsWord(text, word string) bool {
	idx := 0

	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}

		start := idx + i
		end := start + len(word)

		beforeOK := start == 0 || !isAlnum(text[start-1])
		afterOK := end == len(text) || !isAlnum(text[end])

		if beforeOK && afterOK {
			return true
		}

		idx = end
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
