// Package classify sends content-fetched articles to the oracle in
// batches and stores impact, sentiment, and ticker matches.
package classify

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
	outcomeAccepted = "accepted"
	outcomeSkipped  = "skipped"
	outcomeError    = "error"
)

type Repository interface {
	SelectForStage(ctx context.Context, gate domain.StageGate, limit int) ([]domain.Article, error)
	ListHoldings(ctx context.Context) ([]domain.Holding, error)
	ApplyClassify(ctx context.Context, url string, impact, sentiment float64, matched []string) error
	SaveDecision(ctx context.Context, articleURL, stage string, accepted bool, reason string, scores map[string]float64) error
}

type Runner struct {
	cfg    *config.Config
	db     Repository
	oracle oracle.Client
	logger *zerolog.Logger
}

func New(cfg *config.Config, db Repository, client oracle.Client, logger *zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, db: db, oracle: client, logger: logger}
}

// Run classifies one batch in a single oracle request. The oracle
// client guarantees an aligned result slice, substituting fallbacks for
// malformed entries, so every selected row gets a verdict.
func (r *Runner) Run(ctx context.Context) (int, error) {
	gate := domain.StageGates[domain.StageClassify]

	articles, err := r.db.SelectForStage(ctx, gate, r.cfg.ClassifyBatchSize)
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

	tickers := make([]string, 0, len(holdings))
	for _, h := range holdings {
		tickers = append(tickers, h.Ticker)
	}

	inputs := make([]oracle.ClassifyInput, 0, len(articles))
	for i := range articles {
		inputs = append(inputs, oracle.ClassifyInput{
			Index:   i,
			Title:   articles[i].Title,
			Content: articles[i].Content,
		})
	}

	results, err := r.oracle.ClassifyBatch(ctx, inputs, tickers)
	if err != nil {
		return 0, err
	}

	advanced := 0

	for i, res := range results {
		a := &articles[i]

		if err := r.db.ApplyClassify(ctx, a.URL, res.ImpactScore, res.Sentiment, res.MatchedTickers); err != nil {
			if errors.Is(err, storage.ErrStaleStatus) {
				observability.StageProcessed.WithLabelValues(string(domain.StageClassify), outcomeSkipped).Inc()
				continue
			}

			observability.StageProcessed.WithLabelValues(string(domain.StageClassify), outcomeError).Inc()
			r.logger.Error().Err(err).Str("url", a.URL).Msg("classify update failed, skipping row")

			continue
		}

		scores := map[string]float64{
			"impact_score": res.ImpactScore,
			"sentiment":    res.Sentiment,
		}
		if err := r.db.SaveDecision(ctx, a.URL, string(domain.StageClassify), true, "", scores); err != nil {
			r.logger.Warn().Err(err).Str("url", a.URL).Msg("failed to save classify decision")
		}

		observability.StageProcessed.WithLabelValues(string(domain.StageClassify), outcomeAccepted).Inc()

		advanced++
	}

	r.logger.Info().Int("batch", len(articles)).Int("advanced", advanced).Msg("classify batch complete")

	return advanced, nil
}
