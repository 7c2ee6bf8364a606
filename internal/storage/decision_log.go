package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DropReasonStat is one aggregated row of the discard audit.
type DropReasonStat struct {
	Stage  string
	Reason string
	Count  int
}

// SaveDecision appends one row to the decision audit log. Scores may be
// nil when a stage decided before computing any.
func (db *DB) SaveDecision(ctx context.Context, articleURL, stage string, accepted bool, reason string, scores map[string]float64) error {
	var scoresJSON []byte

	if len(scores) > 0 {
		var err error

		scoresJSON, err = json.Marshal(scores)
		if err != nil {
			return fmt.Errorf("marshal decision scores: %w", err)
		}
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO decision_log (article_url, stage, accepted, reason, scores)
		VALUES ($1, $2, $3, $4, $5)
	`, articleURL, stage, accepted, toText(reason), scoresJSON)
	if err != nil {
		return fmt.Errorf("save decision: %w", err)
	}

	return nil
}

// GetDropReasonStats aggregates rejected decisions by stage and reason
// since the given time.
func (db *DB) GetDropReasonStats(ctx context.Context, since time.Time, limit int) ([]DropReasonStat, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT stage, COALESCE(reason, ''), COUNT(*)::int
		FROM decision_log
		WHERE NOT accepted AND created_at >= $1
		GROUP BY stage, reason
		ORDER BY COUNT(*) DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query drop reason stats: %w", err)
	}
	defer rows.Close()

	stats := make([]DropReasonStat, 0, limit)

	for rows.Next() {
		var entry DropReasonStat

		if err := rows.Scan(&entry.Stage, &entry.Reason, &entry.Count); err != nil {
			return nil, fmt.Errorf("scan drop reason stat row: %w", err)
		}

		stats = append(stats, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drop reason stats rows: %w", err)
	}

	return stats, nil
}
