// Package fetch downloads title-filtered articles and extracts readable
// body text for classification.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"

	"github.com/tickwatch/tickwatch/internal/core/domain"
	"github.com/tickwatch/tickwatch/internal/platform/config"
	"github.com/tickwatch/tickwatch/internal/platform/observability"
	"github.com/tickwatch/tickwatch/internal/storage"
)

const (
	maxBodyBytes    = 2 << 20
	maxContentRunes = 20000
	maxFetchTries   = 3

	reasonFetchFailed = "content_unavailable"

	outcomeAccepted  = "accepted"
	outcomeDiscarded = "discarded"
	outcomeRetried   = "retried"
	outcomeSkipped   = "skipped"
	outcomeError     = "error"
)

type Repository interface {
	SelectForStage(ctx context.Context, gate domain.StageGate, limit int) ([]domain.Article, error)
	ApplyFetch(ctx context.Context, url, content string) error
	DiscardFromFetch(ctx context.Context, url, reason string) error
	RecordStageFailure(ctx context.Context, url string) error
	SaveDecision(ctx context.Context, articleURL, stage string, accepted bool, reason string, scores map[string]float64) error
}

type Runner struct {
	cfg    *config.Config
	db     Repository
	client *http.Client
	logger *zerolog.Logger
}

func New(cfg *config.Config, db Repository, logger *zerolog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		db:     db,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		logger: logger,
	}
}

// Run fetches one batch. Transient download failures leave the row in
// place to retry on the next cadence; the attempt budget turns repeat
// failures into a discard.
func (r *Runner) Run(ctx context.Context) (int, error) {
	gate := domain.StageGates[domain.StageFetch]

	articles, err := r.db.SelectForStage(ctx, gate, r.cfg.FetchBatchSize)
	if err != nil {
		return 0, err
	}

	advanced := 0

	for i := range articles {
		a := &articles[i]

		content, err := r.extract(ctx, a)
		if err != nil {
			r.handleFailure(ctx, a, err)
			continue
		}

		if err := r.db.ApplyFetch(ctx, a.URL, content); err != nil {
			if errors.Is(err, storage.ErrStaleStatus) {
				observability.StageProcessed.WithLabelValues(string(domain.StageFetch), outcomeSkipped).Inc()
				continue
			}

			observability.StageProcessed.WithLabelValues(string(domain.StageFetch), outcomeError).Inc()
			r.logger.Error().Err(err).Str("url", a.URL).Msg("fetch update failed, skipping row")

			continue
		}

		observability.StageProcessed.WithLabelValues(string(domain.StageFetch), outcomeAccepted).Inc()

		advanced++
	}

	if len(articles) > 0 {
		r.logger.Info().Int("batch", len(articles)).Int("advanced", advanced).Msg("fetch batch complete")
	}

	return advanced, nil
}

// extract downloads the article page and pulls readable body text.
// When extraction yields nothing usable the stored description serves
// as the body, keeping the pipeline moving on a cheaper path.
func (r *Runner) extract(ctx context.Context, a *domain.Article) (string, error) {
	target := a.CanonicalURL
	if target == "" {
		target = a.URL
	}

	body, err := r.download(ctx, target)
	if err != nil {
		if a.Description != "" {
			return clampRunes(a.Description, maxContentRunes), nil
		}

		return "", err
	}

	parsed, _ := url.Parse(target)

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		if a.Description != "" {
			return clampRunes(a.Description, maxContentRunes), nil
		}

		if err != nil {
			return "", fmt.Errorf("readability extraction: %w", err)
		}

		return "", errors.New("no readable content")
	}

	return clampRunes(strings.TrimSpace(article.TextContent), maxContentRunes), nil
}

func (r *Runner) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

func (r *Runner) handleFailure(ctx context.Context, a *domain.Article, cause error) {
	if a.Attempts+1 < maxFetchTries {
		observability.StageProcessed.WithLabelValues(string(domain.StageFetch), outcomeRetried).Inc()
		r.logger.Warn().Err(cause).Str("url", a.URL).Int("attempts", a.Attempts+1).Msg("fetch failed, will retry next run")

		if err := r.db.RecordStageFailure(ctx, a.URL); err != nil {
			r.logger.Warn().Err(err).Str("url", a.URL).Msg("failed to record fetch attempt")
		}

		return
	}

	observability.StageProcessed.WithLabelValues(string(domain.StageFetch), outcomeDiscarded).Inc()
	observability.DropsTotal.WithLabelValues(reasonFetchFailed).Inc()
	r.logger.Warn().Err(cause).Str("url", a.URL).Msg("fetch attempt budget exhausted, discarding")

	if err := r.db.DiscardFromFetch(ctx, a.URL, reasonFetchFailed); err != nil && !errors.Is(err, storage.ErrStaleStatus) {
		r.logger.Error().Err(err).Str("url", a.URL).Msg("failed to discard article")
		return
	}

	if err := r.db.SaveDecision(ctx, a.URL, string(domain.StageFetch), false, reasonFetchFailed, nil); err != nil {
		r.logger.Warn().Err(err).Str("url", a.URL).Msg("failed to save fetch decision")
	}
}

func clampRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)

	return string(runes[:limit])
}
