package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

type VectorizationJobRepo struct {
	db *DB
}

func NewVectorizationJobRepo(db *DB) *VectorizationJobRepo {
	return &VectorizationJobRepo{db: db}
}

func (r *VectorizationJobRepo) Create(ctx context.Context, job *models.VectorizationJob) error {
	ranges, err := json.Marshal(job.Ranges)
	if err != nil {
		return fmt.Errorf("failed to marshal job ranges: %w", err)
	}

	query := `INSERT INTO vectorization_jobs (id, source_id, ranges, status, progress, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.conn.ExecContext(ctx, query,
		job.ID, job.SourceID, string(ranges), string(job.Status), job.Progress, job.Error,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert vectorization job: %w", err)
	}
	return nil
}

func (r *VectorizationJobRepo) GetByID(ctx context.Context, id string) (*models.VectorizationJob, error) {
	query := `SELECT id, source_id, ranges, status, progress, error, created_at, updated_at
		FROM vectorization_jobs WHERE id = $1`

	job, err := scanVectorizationJob(r.db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vectorization job: %w", err)
	}
	return job, nil
}

func (r *VectorizationJobRepo) List(ctx context.Context) ([]*models.VectorizationJob, error) {
	query := `SELECT id, source_id, ranges, status, progress, error, created_at, updated_at
		FROM vectorization_jobs ORDER BY created_at DESC`

	rows, err := r.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list vectorization jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.VectorizationJob
	for rows.Next() {
		job, err := scanVectorizationJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vectorization job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateStatus moves a job to the given status. Terminal statuses are sticky:
// a row already in COMPLETED/FAILED/CANCELLED is never modified, and the
// method reports whether the transition took effect.
func (r *VectorizationJobRepo) UpdateStatus(ctx context.Context, id string, status models.JobStatus, errMsg *string) (bool, error) {
	query := `UPDATE vectorization_jobs SET status = $1, error = $2, updated_at = $3
		WHERE id = $4 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')`

	res, err := r.db.conn.ExecContext(ctx, query, string(status), errMsg, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to update vectorization job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateProgress persists progress, guarded to be monotonically non-decreasing.
func (r *VectorizationJobRepo) UpdateProgress(ctx context.Context, id string, progress float64) error {
	query := `UPDATE vectorization_jobs SET progress = $1, updated_at = $2
		WHERE id = $3 AND progress <= $1`

	if _, err := r.db.conn.ExecContext(ctx, query, progress, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update vectorization job progress: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVectorizationJob(row rowScanner) (*models.VectorizationJob, error) {
	job := &models.VectorizationJob{}
	var ranges string
	var status string
	err := row.Scan(&job.ID, &job.SourceID, &ranges, &status, &job.Progress, &job.Error,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	if err := json.Unmarshal([]byte(ranges), &job.Ranges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job ranges: %w", err)
	}
	return job, nil
}
