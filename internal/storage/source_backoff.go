package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SourceBackoff is the persisted retry state for one provider source.
// Transient failures push next_attempt_at out exponentially, capped;
// the source is retried on the first scheduled run past that time.
type SourceBackoff struct {
	Source        string
	Failures      int
	NextAttemptAt time.Time
}

// GetSourceBackoff returns the backoff row for a source, or nil when
// the source has no recorded failures.
func (db *DB) GetSourceBackoff(ctx context.Context, source string) (*SourceBackoff, error) {
	var b SourceBackoff

	err := db.Pool.QueryRow(ctx, `
		SELECT source, failures, next_attempt_at FROM source_backoff WHERE source = $1
	`, source).Scan(&b.Source, &b.Failures, &b.NextAttemptAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("get source backoff: %w", err)
	}

	return &b, nil
}

// RecordSourceFailure increments the failure count and schedules the
// next attempt at base * 2^failures, capped.
func (db *DB) RecordSourceFailure(ctx context.Context, source string, base, maxDelay time.Duration) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO source_backoff (source, failures, next_attempt_at)
		VALUES ($1, 1, now() + $2::interval)
		ON CONFLICT (source) DO UPDATE SET
			failures = source_backoff.failures + 1,
			next_attempt_at = now() + LEAST(
				$2::interval * POWER(2, source_backoff.failures),
				$3::interval
			),
			updated_at = now()
	`, source, base, maxDelay)
	if err != nil {
		return fmt.Errorf("record source failure: %w", err)
	}

	return nil
}

// ClearSourceBackoff resets the retry state after a successful fetch.
func (db *DB) ClearSourceBackoff(ctx context.Context, source string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM source_backoff WHERE source = $1`, source)
	if err != nil {
		return fmt.Errorf("clear source backoff: %w", err)
	}

	return nil
}
