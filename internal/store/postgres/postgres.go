// Package postgres implements store.Store on PostgreSQL. Embedding blobs
// are stored verbatim; a parallel pgvector column carries the decoded
// vector for similarity queries and stays NULL for blobs that do not
// decode.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Config holds the PostgreSQL connection settings.
type Config struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and applies migrations.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("PostgreSQL URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS faces (
		id            TEXT PRIMARY KEY,
		folder        TEXT NOT NULL,
		image_path    TEXT NOT NULL,
		bbox          JSONB NOT NULL,
		embedding     BYTEA NOT NULL,
		embedding_vec vector,
		ctx_embedding BYTEA,
		ctx_bbox      JSONB,
		confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
		pixel_size    INTEGER NOT NULL DEFAULT 0,
		sharpness     DOUBLE PRECISION NOT NULL DEFAULT 0,
		quality       DOUBLE PRECISION NOT NULL DEFAULT 0,
		mode          TEXT NOT NULL DEFAULT 'face',
		group_id      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_faces_folder ON faces (folder)`,
	`CREATE TABLE IF NOT EXISTS face_groups (
		id                TEXT PRIMARY KEY,
		folder            TEXT NOT NULL,
		name              TEXT NOT NULL DEFAULT '',
		representative_id TEXT NOT NULL,
		face_ids          JSONB NOT NULL,
		position          INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_face_groups_folder ON face_groups (folder)`,
	`CREATE TABLE IF NOT EXISTS scanned_files (
		folder     TEXT NOT NULL,
		path       TEXT NOT NULL,
		face_count INTEGER NOT NULL DEFAULT 0,
		scanned_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (folder, path)
	)`,
	`CREATE TABLE IF NOT EXISTS people (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		role              TEXT NOT NULL DEFAULT '',
		notes             TEXT NOT NULL DEFAULT '',
		representative_id TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS person_embeddings (
		id          TEXT PRIMARY KEY,
		person_id   TEXT NOT NULL REFERENCES people (id) ON DELETE CASCADE,
		embedding   BYTEA NOT NULL,
		source      TEXT NOT NULL DEFAULT '',
		captured_at TIMESTAMPTZ NOT NULL,
		mode        TEXT NOT NULL DEFAULT 'face',
		position    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_person_embeddings_person ON person_embeddings (person_id)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
