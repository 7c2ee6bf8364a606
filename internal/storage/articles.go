package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tickwatch/tickwatch/internal/core/domain"
)

// ErrStaleStatus is returned when a stage transition finds the row no
// longer in the expected prior status. Callers treat it as a benign
// race with a concurrent job and skip the row.
var ErrStaleStatus = errors.New("article status changed since selection")

const articleColumns = `
	url, canonical_url, title, description, source, author, published_at,
	searched_by, content, status, attempts, discard_reason,
	title_relevance, impact_score, sentiment, matched_tickers,
	holding_relevance_score, profile_type, profile_adjusted_score,
	final_rank_score, cluster_id, created_at,
	title_filtered_at, content_fetched_at, llm_processed_at,
	personalized_at, ranked_at`

// UpsertArticle inserts a new article or, when its canonical identity
// is already known, merges searched_by as a set union without touching
// any derived score or status the row already carries. The canonical
// probe catches mirror URLs ingested in earlier runs that resolved to
// the same publisher page.
func (db *DB) UpsertArticle(ctx context.Context, a *domain.Article) error {
	if a.CanonicalURL != "" {
		tag, err := db.Pool.Exec(ctx, `
			UPDATE articles
			SET searched_by = ARRAY(
				SELECT DISTINCT t
				FROM unnest(articles.searched_by || $2) AS t
				ORDER BY t
			)
			WHERE canonical_url = $1
		`, a.CanonicalURL, a.SearchedBy)
		if err != nil {
			return fmt.Errorf("merge article by canonical url: %w", err)
		}

		if tag.RowsAffected() > 0 {
			return nil
		}
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO articles (
			url, canonical_url, title, description, source, author,
			published_at, searched_by, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (url) DO UPDATE SET
			searched_by = ARRAY(
				SELECT DISTINCT tag
				FROM unnest(articles.searched_by || EXCLUDED.searched_by) AS tag
				ORDER BY tag
			)
	`, a.URL, toText(a.CanonicalURL), a.Title, toText(a.Description), toText(a.Source),
		toText(a.Author), toTimestamptz(a.PublishedAt), a.SearchedBy, string(domain.StatusPending))
	if err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}

	return nil
}

// SelectForStage returns rows eligible for a stage: required prior
// status, stage output column still null, discarded rows excluded by
// the status predicate itself. Most recent publications first, bounded
// by limit to cap external-call cost per run.
func (db *DB) SelectForStage(ctx context.Context, gate domain.StageGate, limit int) ([]domain.Article, error) {
	// OutputColumn comes from the closed StageGates table, never from input.
	query := fmt.Sprintf(`
		SELECT %s FROM articles
		WHERE status = $1 AND %s IS NULL
		ORDER BY published_at DESC
		LIMIT $2
	`, articleColumns, gate.OutputColumn)

	rows, err := db.Pool.Query(ctx, query, string(gate.FromStatus), limit)
	if err != nil {
		return nil, fmt.Errorf("select for stage %s: %w", gate.Stage, err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

// SelectForPersonalize is the personalize-stage selection with cache
// invalidation: a cached score computed for a different profile counts
// as missing.
func (db *DB) SelectForPersonalize(ctx context.Context, profile string, limit int) ([]domain.Article, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE status = $1
		  AND (profile_adjusted_score IS NULL OR profile_type IS DISTINCT FROM $2)
		ORDER BY published_at DESC
		LIMIT $3
	`, string(domain.StatusLLMProcessed), profile, limit)
	if err != nil {
		return nil, fmt.Errorf("select for personalize: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

// SelectForRank returns personalized rows without a final rank score,
// highest profile-adjusted score first.
func (db *DB) SelectForRank(ctx context.Context, limit int) ([]domain.Article, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE status = $1 AND final_rank_score IS NULL
		ORDER BY profile_adjusted_score DESC
		LIMIT $2
	`, string(domain.StatusPersonalized), limit)
	if err != nil {
		return nil, fmt.Errorf("select for rank: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

// ApplyTriage writes the triage output and advances or discards in one
// statement. The status guard in the WHERE clause keeps the transition
// atomic and forward-only.
func (db *DB) ApplyTriage(ctx context.Context, url string, relevance float64, accepted bool, reason string) error {
	gate := domain.StageGates[domain.StageTriage]

	if accepted {
		return db.advance(ctx, gate, `
			UPDATE articles
			SET title_relevance = $2, status = $3, title_filtered_at = now()
			WHERE url = $1 AND status = $4
		`, url, relevance, gate.ToStatus, gate.FromStatus)
	}

	return db.discard(ctx, url, gate.FromStatus, reason, "title_relevance = $2", relevance)
}

// ApplyFetch stores extracted content and advances, or discards when
// the body could not be fetched after the attempt budget.
func (db *DB) ApplyFetch(ctx context.Context, url, content string) error {
	gate := domain.StageGates[domain.StageFetch]

	return db.advance(ctx, gate, `
		UPDATE articles
		SET content = $2, status = $3, content_fetched_at = now()
		WHERE url = $1 AND status = $4
	`, url, content, gate.ToStatus, gate.FromStatus)
}

// DiscardFromFetch marks a fetch-stage row as discarded.
func (db *DB) DiscardFromFetch(ctx context.Context, url, reason string) error {
	return db.discard(ctx, url, domain.StageGates[domain.StageFetch].FromStatus, reason, "")
}

// ApplyClassify writes classification outputs and advances.
func (db *DB) ApplyClassify(ctx context.Context, url string, impact, sentiment float64, matched []string) error {
	gate := domain.StageGates[domain.StageClassify]

	return db.advance(ctx, gate, `
		UPDATE articles
		SET impact_score = $2, sentiment = $3, matched_tickers = $4,
		    status = $5, llm_processed_at = now()
		WHERE url = $1 AND status = $6
	`, url, impact, sentiment, matched, gate.ToStatus, gate.FromStatus)
}

// ApplyPersonalize caches the personalization outputs for the active
// profile and advances. Rows re-personalized after a profile switch are
// updated in place without regressing status, so the guard accepts both
// sides of the gate.
func (db *DB) ApplyPersonalize(ctx context.Context, url string, holdingRelevance, adjusted float64, profile string) error {
	gate := domain.StageGates[domain.StagePersonalize]

	tag, err := db.Pool.Exec(ctx, `
		UPDATE articles
		SET holding_relevance_score = $2, profile_adjusted_score = $3, profile_type = $4,
		    status = $5, personalized_at = now()
		WHERE url = $1 AND status = ANY($6)
	`, url, holdingRelevance, adjusted, profile, string(gate.ToStatus),
		[]string{string(gate.FromStatus), string(gate.ToStatus)})
	if err != nil {
		return fmt.Errorf("apply personalize: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}

	return nil
}

// DiscardFromPersonalize marks a personalize-stage row as discarded.
func (db *DB) DiscardFromPersonalize(ctx context.Context, url, reason string, adjusted float64) error {
	return db.discard(ctx, url, domain.StageGates[domain.StagePersonalize].FromStatus, reason, "profile_adjusted_score = $2", adjusted)
}

// ApplyRank writes the final rank score and cluster assignment.
func (db *DB) ApplyRank(ctx context.Context, url string, finalScore float64, clusterID string) error {
	gate := domain.StageGates[domain.StageRank]

	return db.advance(ctx, gate, `
		UPDATE articles
		SET final_rank_score = $2, cluster_id = $3, status = $4, ranked_at = now()
		WHERE url = $1 AND status = $5
	`, url, finalScore, toText(clusterID), gate.ToStatus, gate.FromStatus)
}

// RecordStageFailure bumps the attempt counter without moving the row,
// so a stage can budget retries across runs for transient failures.
// Only failures touch the counter; successful advances leave it alone.
func (db *DB) RecordStageFailure(ctx context.Context, url string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE articles SET attempts = attempts + 1 WHERE url = $1`, url)
	if err != nil {
		return fmt.Errorf("record stage failure: %w", err)
	}

	return nil
}

// CountByStatus returns row counts per status for the backlog gauges.
func (db *DB) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := db.Pool.Query(ctx, `SELECT status, COUNT(*)::int FROM articles GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)

	for rows.Next() {
		var (
			status string
			count  int
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}

		counts[domain.Status(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}

func (db *DB) advance(ctx context.Context, gate domain.StageGate, query string, args ...any) error {
	if !domain.CanAdvance(gate.FromStatus, gate.ToStatus) {
		return fmt.Errorf("illegal transition %s -> %s", gate.FromStatus, gate.ToStatus)
	}

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("advance article stage: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}

	return nil
}

func (db *DB) discard(ctx context.Context, url string, from domain.Status, reason, extraSet string, extraArgs ...any) error {
	if !domain.CanAdvance(from, domain.StatusDiscarded) {
		return fmt.Errorf("illegal transition %s -> %s", from, domain.StatusDiscarded)
	}

	set := "status = '" + string(domain.StatusDiscarded) + "', discard_reason = $" + fmt.Sprint(len(extraArgs)+2)
	if extraSet != "" {
		set = extraSet + ", " + set
	}

	args := append([]any{url}, extraArgs...)
	args = append(args, reason)

	query := fmt.Sprintf(`UPDATE articles SET %s WHERE url = $1 AND status = '%s'`, set, from)

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("discard article: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}

	return nil
}

func collectArticles(rows pgx.Rows) ([]domain.Article, error) {
	articles := make([]domain.Article, 0)

	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}

		articles = append(articles, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article rows: %w", err)
	}

	return articles, nil
}

func scanArticle(row pgx.Row) (*domain.Article, error) {
	var (
		a            domain.Article
		canonicalURL, description, source, author, discardReason, content, profileType, clusterID pgtype.Text
		publishedAt, createdAt pgtype.Timestamptz
		titleFilteredAt, contentFetchedAt, llmProcessedAt, personalizedAt, rankedAt pgtype.Timestamptz
		titleRelevance, impactScore, sentiment, holdingRelevance, adjusted, finalScore pgtype.Float8
		status string
	)

	err := row.Scan(
		&a.URL, &canonicalURL, &a.Title, &description, &source, &author, &publishedAt,
		&a.SearchedBy, &content, &status, &a.Attempts, &discardReason,
		&titleRelevance, &impactScore, &sentiment, &a.MatchedTickers,
		&holdingRelevance, &profileType, &adjusted,
		&finalScore, &clusterID, &createdAt,
		&titleFilteredAt, &contentFetchedAt, &llmProcessedAt,
		&personalizedAt, &rankedAt,
	)
	if err != nil {
		return nil, err
	}

	a.CanonicalURL = fromText(canonicalURL)
	a.Description = fromText(description)
	a.Source = fromText(source)
	a.Author = fromText(author)
	a.DiscardReason = fromText(discardReason)
	a.Content = fromText(content)
	a.ProfileType = fromText(profileType)
	a.ClusterID = fromText(clusterID)
	a.Status = domain.Status(status)
	a.PublishedAt = fromTimestamptz(publishedAt)
	a.CreatedAt = fromTimestamptz(createdAt)
	a.TitleFilteredAt = fromTimestamptzPtr(titleFilteredAt)
	a.ContentFetchedAt = fromTimestamptzPtr(contentFetchedAt)
	a.LLMProcessedAt = fromTimestamptzPtr(llmProcessedAt)
	a.PersonalizedAt = fromTimestamptzPtr(personalizedAt)
	a.RankedAt = fromTimestamptzPtr(rankedAt)
	a.TitleRelevance = fromFloat8Ptr(titleRelevance)
	a.ImpactScore = fromFloat8Ptr(impactScore)
	a.Sentiment = fromFloat8Ptr(sentiment)
	a.HoldingRelevance = fromFloat8Ptr(holdingRelevance)
	a.ProfileAdjustedScore = fromFloat8Ptr(adjusted)
	a.FinalRankScore = fromFloat8Ptr(finalScore)

	if a.SearchedBy == nil {
		a.SearchedBy = []string{}
	}

	return &a, nil
}
