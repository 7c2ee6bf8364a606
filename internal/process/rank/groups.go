package rank

import (
	"context"
	"strings"
	"time"

	"github.com/tickwatch/tickwatch/internal/core/domain"
)

// groupFromCluster derives the story group identity from the cluster
// seed: per-ticker scope when the classifier matched one, global
// otherwise, bucketed by the seed's publication day.
func groupFromCluster(c Cluster) domain.StoryGroup {
	scope := domain.ScopeGlobal
	primary := ""

	if len(c.Seed.MatchedTickers) > 0 {
		scope = domain.ScopeTicker
		primary = strings.ToUpper(c.Seed.MatchedTickers[0])
	}

	bucket := c.Seed.PublishedAt
	if bucket.IsZero() {
		bucket = c.Seed.CreatedAt
	}

	impact := 0.0
	if c.Seed.ImpactScore != nil {
		impact = *c.Seed.ImpactScore
	}

	return domain.StoryGroup{
		Scope:         scope,
		PrimaryTicker: primary,
		DateBucket:    bucket.UTC().Truncate(24 * time.Hour),
		Title:         c.Seed.Title,
		ImpactLevel:   domain.ImpactLevelFor(impact),
		Confidence:    meanSimilarity(c),
	}
}

func meanSimilarity(c Cluster) float64 {
	if len(c.Members) == 0 {
		return 0
	}

	sum := 0.0
	for _, m := range c.Members {
		sum += m.Similarity
	}

	return sum / float64(len(c.Members))
}

// relatedTickers collects every matched ticker across the cluster,
// deduplicated, seed first.
func relatedTickers(c Cluster) []string {
	seen := make(map[string]bool)
	tickers := make([]string, 0)

	for _, m := range c.Members {
		for _, t := range m.Article.MatchedTickers {
			t = strings.ToUpper(t)
			if t == "" || seen[t] {
				continue
			}

			seen[t] = true
			tickers = append(tickers, t)
		}
	}

	return tickers
}

// persistGroup upserts the group row and its append-only membership and
// ticker links, returning the stable group id.
func (r *Runner) persistGroup(ctx context.Context, c Cluster) (string, error) {
	g := groupFromCluster(c)

	id, err := r.db.UpsertStoryGroup(ctx, &g)
	if err != nil {
		return "", err
	}

	for _, m := range c.Members {
		if err := r.db.AddGroupArticle(ctx, domain.StoryGroupMember{
			GroupID:    id,
			ArticleURL: m.Article.URL,
			Similarity: m.Similarity,
		}); err != nil {
			r.logger.Warn().Err(err).Str("group_id", id).Str("url", m.Article.URL).Msg("failed to link group article")
		}
	}

	for _, t := range relatedTickers(c) {
		if err := r.db.AddRelatedTicker(ctx, id, t); err != nil {
			r.logger.Warn().Err(err).Str("group_id", id).Str("ticker", t).Msg("failed to link related ticker")
		}
	}

	return id, nil
}
