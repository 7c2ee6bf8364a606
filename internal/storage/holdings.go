package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tickwatch/tickwatch/internal/core/domain"
)

// ListHoldings returns all tracked holdings ordered by ticker.
func (db *DB) ListHoldings(ctx context.Context) ([]domain.Holding, error) {
	rows, err := db.Pool.Query(ctx, `SELECT ticker, label, notes FROM holdings ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	holdings := make([]domain.Holding, 0)

	for rows.Next() {
		var (
			h     domain.Holding
			notes pgtype.Text
		)

		if err := rows.Scan(&h.Ticker, &h.Label, &notes); err != nil {
			return nil, fmt.Errorf("scan holding row: %w", err)
		}

		h.Notes = fromText(notes)
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holding rows: %w", err)
	}

	return holdings, nil
}

// UpsertHolding inserts or updates one tracked holding.
func (db *DB) UpsertHolding(ctx context.Context, h domain.Holding) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO holdings (ticker, label, notes)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticker) DO UPDATE SET
			label = EXCLUDED.label,
			notes = EXCLUDED.notes
	`, h.Ticker, h.Label, toText(h.Notes))
	if err != nil {
		return fmt.Errorf("upsert holding: %w", err)
	}

	return nil
}

// DeleteHolding removes one tracked holding.
func (db *DB) DeleteHolding(ctx context.Context, ticker string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM holdings WHERE ticker = $1`, ticker)
	if err != nil {
		return fmt.Errorf("delete holding: %w", err)
	}

	return nil
}
