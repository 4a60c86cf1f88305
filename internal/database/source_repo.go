package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

type SourceRepo struct {
	db *DB
}

func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) Create(ctx context.Context, source *models.Source) error {
	query := `INSERT INTO sources (id, source_id) VALUES ($1, $2)`
	if _, err := r.db.conn.ExecContext(ctx, query, source.ID, source.SourceID); err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}
	return nil
}

func (r *SourceRepo) GetBySourceID(ctx context.Context, sourceID string) (*models.Source, error) {
	query := `SELECT id, source_id FROM sources WHERE source_id = $1`

	source := &models.Source{}
	err := r.db.conn.QueryRowContext(ctx, query, sourceID).Scan(&source.ID, &source.SourceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	return source, nil
}

func (r *SourceRepo) List(ctx context.Context) ([]*models.Source, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT id, source_id FROM sources ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.Source
	for rows.Next() {
		source := &models.Source{}
		if err := rows.Scan(&source.ID, &source.SourceID); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

type TaskRepo struct {
	db *DB
}

func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

func (r *TaskRepo) Create(ctx context.Context, task *models.Task) error {
	query := `INSERT INTO tasks (id, name, source_id, start_at, end_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.conn.ExecContext(ctx, query, task.ID, task.Name, task.SourceID, task.StartAt, task.EndAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// List returns tasks, optionally filtered by source, ordered by start time.
func (r *TaskRepo) List(ctx context.Context, sourceID string) ([]*models.Task, error) {
	query := `SELECT id, name, source_id, start_at, end_at FROM tasks`
	var args []any
	if sourceID != "" {
		query += ` WHERE source_id = $1`
		args = append(args, sourceID)
	}
	query += ` ORDER BY start_at`

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task := &models.Task{}
		if err := rows.Scan(&task.ID, &task.Name, &task.SourceID, &task.StartAt, &task.EndAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
