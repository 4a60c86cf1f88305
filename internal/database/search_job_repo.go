package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

type SearchJobRepo struct {
	db *DB
}

func NewSearchJobRepo(db *DB) *SearchJobRepo {
	return &SearchJobRepo{db: db}
}

func (r *SearchJobRepo) Create(ctx context.Context, job *models.SearchJob) error {
	query := `INSERT INTO search_jobs (id, title, text_query, source_id, start_at, end_at, status, progress, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.conn.ExecContext(ctx, query,
		job.ID, job.Title, job.TextQuery, job.SourceID, job.StartAt, job.EndAt,
		string(job.Status), job.Progress, job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert search job: %w", err)
	}
	return nil
}

func (r *SearchJobRepo) GetByID(ctx context.Context, id string) (*models.SearchJob, error) {
	query := `SELECT id, title, text_query, source_id, start_at, end_at, status, progress, error, created_at, updated_at
		FROM search_jobs WHERE id = $1`

	job, err := scanSearchJob(r.db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query search job: %w", err)
	}
	return job, nil
}

func scanSearchJob(row rowScanner) (*models.SearchJob, error) {
	job := &models.SearchJob{}
	var status string
	err := row.Scan(&job.ID, &job.Title, &job.TextQuery, &job.SourceID, &job.StartAt, &job.EndAt,
		&status, &job.Progress, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	return job, nil
}

func (r *SearchJobRepo) List(ctx context.Context) ([]*models.SearchJob, error) {
	query := `SELECT id, title, text_query, source_id, start_at, end_at, status, progress, error, created_at, updated_at
		FROM search_jobs ORDER BY created_at DESC`

	rows, err := r.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list search jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SearchJob
	for rows.Next() {
		job, err := scanSearchJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateStatus has the same terminal-is-sticky contract as the vectorization
// job repo.
func (r *SearchJobRepo) UpdateStatus(ctx context.Context, id string, status models.JobStatus, errMsg *string) (bool, error) {
	query := `UPDATE search_jobs SET status = $1, error = $2, updated_at = $3
		WHERE id = $4 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')`

	res, err := r.db.conn.ExecContext(ctx, query, string(status), errMsg, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to update search job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SearchJobRepo) UpdateProgress(ctx context.Context, id string, progress float64) error {
	query := `UPDATE search_jobs SET progress = $1, updated_at = $2
		WHERE id = $3 AND progress <= $1`

	if _, err := r.db.conn.ExecContext(ctx, query, progress, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update search job progress: %w", err)
	}
	return nil
}

// ReplaceResults swaps the job's result set in one transaction so pollers
// never observe a half-written ranking.
func (r *SearchJobRepo) ReplaceResults(ctx context.Context, jobID string, results []*models.SearchJobResult) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_job_results WHERE job_id = $1`, jobID); err != nil {
			return fmt.Errorf("failed to clear search job results: %w", err)
		}
		for _, res := range results {
			if res.ID == "" {
				res.ID = uuid.New().String()
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO search_job_results (id, job_id, frame_id, object_id, rank, final_score, clip_score, color_score, plate_score)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				res.ID, res.JobID, res.FrameID, res.ObjectID, res.Rank,
				res.FinalScore, res.ClipScore, res.ColorScore, res.PlateScore)
			if err != nil {
				return fmt.Errorf("failed to insert search job result: %w", err)
			}
		}
		return nil
	})
}

func (r *SearchJobRepo) ListResults(ctx context.Context, jobID string) ([]*models.SearchJobResult, error) {
	query := `SELECT id, job_id, frame_id, object_id, rank, final_score, clip_score, color_score, plate_score
		FROM search_job_results WHERE job_id = $1 ORDER BY rank`

	rows, err := r.db.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list search job results: %w", err)
	}
	defer rows.Close()

	var results []*models.SearchJobResult
	for rows.Next() {
		res := &models.SearchJobResult{}
		err := rows.Scan(&res.ID, &res.JobID, &res.FrameID, &res.ObjectID, &res.Rank,
			&res.FinalScore, &res.ClipScore, &res.ColorScore, &res.PlateScore)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search job result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// UpsertEventMax records the running best score for one track (or one
// untracked object). The stored score only ever increases.
func (r *SearchJobRepo) UpsertEventMax(ctx context.Context, event *models.SearchJobEvent) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var query string
		var args []any
		if event.TrackID != nil {
			query = `UPDATE search_job_events SET score = $1, object_id = $2
				WHERE job_id = $3 AND track_id = $4 AND score < $1`
			args = []any{event.Score, event.ObjectID, event.JobID, *event.TrackID}
		} else {
			query = `UPDATE search_job_events SET score = $1
				WHERE job_id = $2 AND track_id IS NULL AND object_id = $3 AND score < $1`
			args = []any{event.Score, event.JobID, event.ObjectID}
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update search job event: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n > 0 {
			return nil
		}

		// No row was raised; insert unless an equal-or-better one exists.
		var exists int
		var checkQuery string
		var checkArgs []any
		if event.TrackID != nil {
			checkQuery = `SELECT COUNT(*) FROM search_job_events WHERE job_id = $1 AND track_id = $2`
			checkArgs = []any{event.JobID, *event.TrackID}
		} else {
			checkQuery = `SELECT COUNT(*) FROM search_job_events WHERE job_id = $1 AND track_id IS NULL AND object_id = $2`
			checkArgs = []any{event.JobID, event.ObjectID}
		}
		if err := tx.QueryRowContext(ctx, checkQuery, checkArgs...).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check search job event: %w", err)
		}
		if exists > 0 {
			return nil
		}

		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO search_job_events (id, job_id, track_id, object_id, score) VALUES ($1, $2, $3, $4, $5)`,
			event.ID, event.JobID, event.TrackID, event.ObjectID, event.Score)
		if err != nil {
			return fmt.Errorf("failed to insert search job event: %w", err)
		}
		return nil
	})
}

func (r *SearchJobRepo) ListEvents(ctx context.Context, jobID string) ([]*models.SearchJobEvent, error) {
	query := `SELECT id, job_id, track_id, object_id, score
		FROM search_job_events WHERE job_id = $1 ORDER BY score DESC`

	rows, err := r.db.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list search job events: %w", err)
	}
	defer rows.Close()

	var events []*models.SearchJobEvent
	for rows.Next() {
		ev := &models.SearchJobEvent{}
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.TrackID, &ev.ObjectID, &ev.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search job event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
