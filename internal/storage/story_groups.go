package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tickwatch/tickwatch/internal/core/domain"
)

// UpsertStoryGroup creates a story group or touches an existing one,
// idempotently keyed by (scope, primary ticker, date bucket, title).
// Impact level and confidence are refreshed on conflict.
func (db *DB) UpsertStoryGroup(ctx context.Context, g *domain.StoryGroup) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	var id string

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO story_groups (id, scope, primary_ticker, date_bucket, title, impact_level, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (scope, primary_ticker, date_bucket, title) DO UPDATE SET
			impact_level = EXCLUDED.impact_level,
			confidence = EXCLUDED.confidence,
			updated_at = now()
		RETURNING id
	`, g.ID, string(g.Scope), g.PrimaryTicker, g.DateBucket, g.Title, string(g.ImpactLevel), g.Confidence).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert story group: %w", err)
	}

	g.ID = id

	return id, nil
}

// UpsertExplanation stores the generated explanation for a group,
// replacing any previous payload.
func (db *DB) UpsertExplanation(ctx context.Context, e *domain.Explanation) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO story_group_explanations (group_id, headline, body, is_fallback)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id) DO UPDATE SET
			headline = EXCLUDED.headline,
			body = EXCLUDED.body,
			is_fallback = EXCLUDED.is_fallback,
			created_at = now()
	`, e.GroupID, e.Headline, e.Body, e.Fallback)
	if err != nil {
		return fmt.Errorf("upsert explanation: %w", err)
	}

	return nil
}

// AddGroupArticle links an article into a group. Existing links are
// left untouched; membership is append-only.
func (db *DB) AddGroupArticle(ctx context.Context, m domain.StoryGroupMember) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO story_group_articles (group_id, article_url, similarity)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, article_url) DO NOTHING
	`, m.GroupID, m.ArticleURL, m.Similarity)
	if err != nil {
		return fmt.Errorf("add group article: %w", err)
	}

	return nil
}

// AddRelatedTicker records a ticker related to a group, insert-if-absent.
func (db *DB) AddRelatedTicker(ctx context.Context, groupID, ticker string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO story_group_related_tickers (group_id, ticker)
		VALUES ($1, $2)
		ON CONFLICT (group_id, ticker) DO NOTHING
	`, groupID, ticker)
	if err != nil {
		return fmt.Errorf("add related ticker: %w", err)
	}

	return nil
}

// GroupsUpdatedSince returns groups touched after the given time,
// newest first.
func (db *DB) GroupsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]domain.StoryGroup, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, scope, primary_ticker, date_bucket, title, impact_level, confidence, created_at, updated_at
		FROM story_groups
		WHERE updated_at >= $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query story groups: %w", err)
	}
	defer rows.Close()

	groups := make([]domain.StoryGroup, 0)

	for rows.Next() {
		var (
			g                  domain.StoryGroup
			scope, impactLevel string
		)

		if err := rows.Scan(&g.ID, &scope, &g.PrimaryTicker, &g.DateBucket, &g.Title,
			&impactLevel, &g.Confidence, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan story group row: %w", err)
		}

		g.Scope = domain.GroupScope(scope)
		g.ImpactLevel = domain.ImpactLevel(impactLevel)
		groups = append(groups, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story group rows: %w", err)
	}

	return groups, nil
}
