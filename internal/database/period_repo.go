package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

// PeriodRepo stores vectorized periods. The non-overlap invariant is owned by
// the period tracker; this repo only provides ordered reads and the atomic
// replace primitive the tracker's merge-on-insert needs.
type PeriodRepo struct {
	db *DB
}

func NewPeriodRepo(db *DB) *PeriodRepo {
	return &PeriodRepo{db: db}
}

// ListForSource returns all periods of a source ordered by start time.
func (r *PeriodRepo) ListForSource(ctx context.Context, sourceID string) ([]*models.VectorizedPeriod, error) {
	query := `SELECT id, source_id, start_at, end_at FROM vectorized_periods
		WHERE source_id = $1 ORDER BY start_at`

	rows, err := r.db.conn.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectorized periods: %w", err)
	}
	defer rows.Close()

	var periods []*models.VectorizedPeriod
	for rows.Next() {
		p := &models.VectorizedPeriod{}
		if err := rows.Scan(&p.ID, &p.SourceID, &p.StartAt, &p.EndAt); err != nil {
			return nil, fmt.Errorf("failed to scan vectorized period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// ReplaceMerged atomically deletes the absorbed periods and inserts their
// union. Running it in one transaction keeps the period set overlap-free even
// when observed mid-write.
func (r *PeriodRepo) ReplaceMerged(ctx context.Context, merged *models.VectorizedPeriod, absorbedIDs []string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range absorbedIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM vectorized_periods WHERE id = $1`, id); err != nil {
				return fmt.Errorf("failed to delete absorbed period: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO vectorized_periods (id, source_id, start_at, end_at) VALUES ($1, $2, $3, $4)`,
			merged.ID, merged.SourceID, merged.StartAt, merged.EndAt)
		if err != nil {
			return fmt.Errorf("failed to insert merged period: %w", err)
		}
		return nil
	})
}
