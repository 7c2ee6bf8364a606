package rank

import (
	"testing"
	"time"

	"github.com/tickwatch/tickwatch/internal/core/domain"
)

func scored(url string, adjusted, impact float64) *domain.Article {
	return &domain.Article{URL: url, ProfileAdjustedScore: &adjusted, ImpactScore: &impact}
}

func TestFinalScore(t *testing.T) {
	tests := []struct {
		name    string
		article *domain.Article
		want    float64
	}{
		{name: "blend of both scores", article: scored("u", 50, 80), want: 0.7*50 + 0.3*80},
		{name: "missing scores count as zero", article: &domain.Article{URL: "u"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FinalScore(tt.article); got != tt.want {
				t.Errorf("FinalScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGroupFromCluster(t *testing.T) {
	published := time.Date(2025, 11, 3, 17, 45, 0, 0, time.UTC)
	impact := 70.0

	seed := &domain.Article{
		URL:            "https://example.com/a",
		Title:          "Apple beats earnings estimates",
		PublishedAt:    published,
		ImpactScore:    &impact,
		MatchedTickers: []string{"aapl", "MSFT"},
	}

	c := Cluster{
		Seed: seed,
		Members: []Member{
			{Article: seed, Similarity: 1.0},
			{Article: &domain.Article{URL: "https://example.com/b", MatchedTickers: []string{"AAPL"}}, Similarity: 0.9},
		},
	}

	g := groupFromCluster(c)

	if g.Scope != domain.ScopeTicker {
		t.Errorf("scope = %s, want %s", g.Scope, domain.ScopeTicker)
	}

	if g.PrimaryTicker != "AAPL" {
		t.Errorf("primary ticker = %q, want AAPL", g.PrimaryTicker)
	}

	wantBucket := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	if !g.DateBucket.Equal(wantBucket) {
		t.Errorf("date bucket = %v, want %v", g.DateBucket, wantBucket)
	}

	if g.ImpactLevel != domain.ImpactHigh {
		t.Errorf("impact level = %s, want %s", g.ImpactLevel, domain.ImpactHigh)
	}

	if got, want := g.Confidence, 0.95; got != want {
		t.Errorf("confidence = %v, want %v", got, want)
	}
}

func TestGroupFromClusterGlobalScope(t *testing.T) {
	seed := &domain.Article{Title: "Fed raises rates", CreatedAt: time.Now()}
	c := Cluster{Seed: seed, Members: []Member{{Article: seed, Similarity: 1.0}}}

	g := groupFromCluster(c)

	if g.Scope != domain.ScopeGlobal {
		t.Errorf("scope = %s, want %s", g.Scope, domain.ScopeGlobal)
	}

	if g.PrimaryTicker != "" {
		t.Errorf("primary ticker = %q, want empty", g.PrimaryTicker)
	}

	if g.DateBucket.IsZero() {
		t.Error("date bucket should fall back to created_at")
	}
}

func TestRelatedTickers(t *testing.T) {
	c := Cluster{
		Members: []Member{
			{Article: &domain.Article{MatchedTickers: []string{"aapl", "MSFT"}}},
			{Article: &domain.Article{MatchedTickers: []string{"AAPL", "NVDA", ""}}},
		},
	}

	got := relatedTickers(c)
	want := []string{"AAPL", "MSFT", "NVDA"}

	if len(got) != len(want) {
		t.Fatalf("relatedTickers() = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("relatedTickers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
