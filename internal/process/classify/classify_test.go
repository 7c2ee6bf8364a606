package classify

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickwatch/tickwatch/internal/core/domain"
	"github.com/tickwatch/tickwatch/internal/oracle"
	"github.com/tickwatch/tickwatch/internal/platform/config"
	"github.com/tickwatch/tickwatch/internal/storage"
)

type classifiedRow struct {
	url       string
	impact    float64
	sentiment float64
	matched   []string
}

type fakeRepo struct {
	articles []domain.Article
	holdings []domain.Holding
	stale    map[string]bool

	applied []classifiedRow
}

func (f *fakeRepo) SelectForStage(_ context.Context, _ domain.StageGate, _ int) ([]domain.Article, error) {
	return f.articles, nil
}

func (f *fakeRepo) ListHoldings(_ context.Context) ([]domain.Holding, error) {
	return f.holdings, nil
}

func (f *fakeRepo) ApplyClassify(_ context.Context, url string, impact, sentiment float64, matched []string) error {
	if f.stale[url] {
		return storage.ErrStaleStatus
	}

	f.applied = append(f.applied, classifiedRow{url: url, impact: impact, sentiment: sentiment, matched: matched})

	return nil
}

func (f *fakeRepo) SaveDecision(_ context.Context, _, _ string, _ bool, _ string, _ map[string]float64) error {
	return nil
}

type fakeOracle struct {
	inputs  []oracle.ClassifyInput
	tickers []string
	results []oracle.ClassifyResult
}

func (f *fakeOracle) ClassifyBatch(_ context.Context, inputs []oracle.ClassifyInput, tickers []string) ([]oracle.ClassifyResult, error) {
	f.inputs = inputs
	f.tickers = tickers

	return f.results, nil
}

func (f *fakeOracle) ExplainBatch(_ context.Context, _ []oracle.Event, _ []string) ([]oracle.ExplanationResult, error) {
	return nil, nil
}

func TestRunClassifiesBatchInOrder(t *testing.T) {
	repo := &fakeRepo{
		articles: []domain.Article{
			{URL: "u1", Title: "first", Content: "body one"},
			{URL: "u2", Title: "second", Content: "body two"},
		},
		holdings: []domain.Holding{{Ticker: "AAPL"}},
	}

	client := &fakeOracle{
		results: []oracle.ClassifyResult{
			{Index: 0, ImpactScore: 70, Sentiment: 0.5, MatchedTickers: []string{"AAPL"}},
			{Index: 1, ImpactScore: 20, Sentiment: -0.25},
		},
	}

	nop := zerolog.Nop()
	r := New(&config.Config{ClassifyBatchSize: 20}, repo, client, &nop)

	n, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	require.Len(t, client.inputs, 2)
	assert.Equal(t, 0, client.inputs[0].Index)
	assert.Equal(t, "first", client.inputs[0].Title)
	assert.Equal(t, []string{"AAPL"}, client.tickers)

	require.Len(t, repo.applied, 2)
	assert.Equal(t, "u1", repo.applied[0].url)
	assert.InDelta(t, 70.0, repo.applied[0].impact, 1e-9)
	assert.Equal(t, []string{"AAPL"}, repo.applied[0].matched)
	assert.Equal(t, "u2", repo.applied[1].url)
}

func TestRunSkipsStaleRows(t *testing.T) {
	repo := &fakeRepo{
		articles: []domain.Article{
			{URL: "u1", Title: "first"},
			{URL: "u2", Title: "second"},
		},
		stale: map[string]bool{"u1": true},
	}

	client := &fakeOracle{
		results: []oracle.ClassifyResult{
			{Index: 0, ImpactScore: 50},
			{Index: 1, ImpactScore: 60},
		},
	}

	nop := zerolog.Nop()
	r := New(&config.Config{ClassifyBatchSize: 20}, repo, client, &nop)

	n, err := r.Run(context.Background())
	require.NoError(t, err)

	// The stale row is a benign race with another job, not an error.
	assert.Equal(t, 1, n)
	require.Len(t, repo.applied, 1)
	assert.Equal(t, "u2", repo.applied[0].url)
}

func TestRunEmptyBatch(t *testing.T) {
	nop := zerolog.Nop()
	r := New(&config.Config{ClassifyBatchSize: 20}, &fakeRepo{}, &fakeOracle{}, &nop)

	n, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
