package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn   *sql.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func NewDB(config Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		conn, err = sql.Open("sqlite3", config.SQLitePath+"?_foreign_keys=on")
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, dbType: config.Type}

	// Only create tables for SQLite; Postgres uses the migration runner.
	if config.Type == "sqlite" {
		if err := db.createTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source_id TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_source ON tasks (source_id, start_at, end_at);

	CREATE TABLE IF NOT EXISTS frames (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		at TEXT NOT NULL,
		timestamp_sec REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_frames_source_at ON frames (source_id, at);

	CREATE TABLE IF NOT EXISTS objects (
		id TEXT PRIMARY KEY,
		frame_id TEXT NOT NULL REFERENCES frames(id) ON DELETE CASCADE,
		type TEXT NOT NULL CHECK (type IN ('PERSON', 'TRANSPORT')),
		track_id INTEGER,
		bbox_x INTEGER NOT NULL DEFAULT 0,
		bbox_y INTEGER NOT NULL DEFAULT 0,
		bbox_w INTEGER NOT NULL DEFAULT 0,
		bbox_h INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_objects_frame ON objects (frame_id);

	CREATE TABLE IF NOT EXISTS transport_attrs (
		id TEXT PRIMARY KEY,
		object_id TEXT NOT NULL UNIQUE REFERENCES objects(id) ON DELETE CASCADE,
		color_hsv TEXT NOT NULL,
		license_plate TEXT
	);

	CREATE TABLE IF NOT EXISTS person_attrs (
		id TEXT PRIMARY KEY,
		object_id TEXT NOT NULL UNIQUE REFERENCES objects(id) ON DELETE CASCADE,
		upper_color_hsv TEXT,
		lower_color_hsv TEXT
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL CHECK (entity_type IN ('FRAME', 'OBJECT')),
		frame_id TEXT REFERENCES frames(id) ON DELETE CASCADE,
		object_id TEXT REFERENCES objects(id) ON DELETE CASCADE,
		vector TEXT NOT NULL,
		CHECK (
			(entity_type = 'FRAME' AND frame_id IS NOT NULL AND object_id IS NULL) OR
			(entity_type = 'OBJECT' AND object_id IS NOT NULL AND frame_id IS NULL)
		)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_frame ON embeddings (frame_id);
	CREATE INDEX IF NOT EXISTS idx_embeddings_object ON embeddings (object_id);

	CREATE TABLE IF NOT EXISTS vectorized_periods (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		UNIQUE (source_id, start_at, end_at)
	);
	CREATE INDEX IF NOT EXISTS idx_periods_source ON vectorized_periods (source_id, start_at);

	CREATE TABLE IF NOT EXISTS vectorization_jobs (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		ranges TEXT NOT NULL,
		status TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS search_jobs (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		text_query TEXT NOT NULL,
		source_id TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		status TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS search_job_results (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES search_jobs(id) ON DELETE CASCADE,
		frame_id TEXT NOT NULL REFERENCES frames(id) ON DELETE CASCADE,
		object_id TEXT REFERENCES objects(id) ON DELETE CASCADE,
		rank INTEGER NOT NULL,
		final_score REAL NOT NULL,
		clip_score REAL NOT NULL,
		color_score REAL NOT NULL,
		plate_score REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_job ON search_job_results (job_id, rank);

	CREATE TABLE IF NOT EXISTS search_job_events (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES search_jobs(id) ON DELETE CASCADE,
		track_id INTEGER,
		object_id TEXT,
		score REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_job ON search_job_events (job_id);
	`

	_, err := db.conn.Exec(query)
	return err
}

// WithTx runs fn inside a transaction, rolling back on any error exit path.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}
