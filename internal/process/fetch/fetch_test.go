package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickwatch/tickwatch/internal/core/domain"
	"github.com/tickwatch/tickwatch/internal/platform/config"
)

type fakeRepo struct {
	articles []domain.Article

	applied   map[string]string
	failures  []string
	discarded []string
	decisions int
}

func newFakeRepo(articles ...domain.Article) *fakeRepo {
	return &fakeRepo{articles: articles, applied: make(map[string]string)}
}

func (f *fakeRepo) SelectForStage(_ context.Context, _ domain.StageGate, _ int) ([]domain.Article, error) {
	return f.articles, nil
}

func (f *fakeRepo) ApplyFetch(_ context.Context, url, content string) error {
	f.applied[url] = content
	return nil
}

func (f *fakeRepo) DiscardFromFetch(_ context.Context, url, _ string) error {
	f.discarded = append(f.discarded, url)
	return nil
}

func (f *fakeRepo) RecordStageFailure(_ context.Context, url string) error {
	f.failures = append(f.failures, url)
	return nil
}

func (f *fakeRepo) SaveDecision(_ context.Context, _, _ string, _ bool, _ string, _ map[string]float64) error {
	f.decisions++
	return nil
}

func newTestRunner(repo *fakeRepo) *Runner {
	nop := zerolog.Nop()

	return New(&config.Config{FetchBatchSize: 10, FetchTimeout: time.Second}, repo, &nop)
}

func TestHandleFailureBudget(t *testing.T) {
	// The counter only moves on failures, so a row arrives here with
	// Attempts equal to its prior download failures. The stage gets
	// three tries before discarding.
	tests := []struct {
		name        string
		attempts    int
		wantRetry   bool
		wantDiscard bool
	}{
		{name: "first failure retries", attempts: 0, wantRetry: true},
		{name: "second failure retries", attempts: 1, wantRetry: true},
		{name: "third failure discards", attempts: 2, wantDiscard: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			r := newTestRunner(repo)

			a := &domain.Article{URL: "u1", Attempts: tt.attempts}
			r.handleFailure(context.Background(), a, errors.New("connection reset"))

			if tt.wantRetry {
				assert.Equal(t, []string{"u1"}, repo.failures)
				assert.Empty(t, repo.discarded)
				assert.Zero(t, repo.decisions, "retries are not audited as decisions")
			}

			if tt.wantDiscard {
				assert.Empty(t, repo.failures)
				assert.Equal(t, []string{"u1"}, repo.discarded)
				assert.Equal(t, 1, repo.decisions)
			}
		})
	}
}

func TestRunFallsBackToDescription(t *testing.T) {
	// Unreachable page with a stored description: the description
	// serves as the body and the row advances.
	repo := newFakeRepo(domain.Article{
		URL:         "http://127.0.0.1:1/article",
		Description: "Fed holds rates steady at the June meeting.",
	})

	n, err := newTestRunner(repo).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, "Fed holds rates steady at the June meeting.", repo.applied["http://127.0.0.1:1/article"])
	assert.Empty(t, repo.failures)
}

func TestRunUnreachableWithoutDescription(t *testing.T) {
	// No body, no description: the failure counts against the budget
	// and the row stays in place for the next run.
	repo := newFakeRepo(domain.Article{URL: "http://127.0.0.1:1/article"})

	n, err := newTestRunner(repo).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Equal(t, []string{"http://127.0.0.1:1/article"}, repo.failures)
	assert.Empty(t, repo.discarded)
}

func TestClampRunes(t *testing.T) {
	assert.Equal(t, "short", clampRunes("short", 100))

	long := strings.Repeat("é", 50)
	clamped := clampRunes(long, 10)
	assert.Equal(t, strings.Repeat("é", 10), clamped)
}
