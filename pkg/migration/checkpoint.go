package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Checkpoint records how far a collection's migration has progressed.
type Checkpoint struct {
	Collection string
	NextOffset int
	Total      int
	Success    int
	UpdatedAt  time.Time
}

// CheckpointStore persists migration progress in a local SQLite file so
// an interrupted run can resume from its last completed page. The store
// is an explicit cursor: it removes the need to rely purely on
// upsert-by-id idempotency when re-running large migrations.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore opens (and initializes) the checkpoint database.
func NewCheckpointStore(path string) (*CheckpointStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS migration_checkpoints (
			collection  TEXT PRIMARY KEY,
			next_offset INTEGER NOT NULL,
			total       INTEGER NOT NULL,
			success     INTEGER NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

// Get returns the checkpoint for a collection, or nil when none exists.
func (s *CheckpointStore) Get(ctx context.Context, collection string) (*Checkpoint, error) {
	query := `
		SELECT collection, next_offset, total, success, updated_at
		FROM migration_checkpoints WHERE collection = ?
	`
	var cp Checkpoint
	err := s.db.QueryRowContext(ctx, query, collection).Scan(
		&cp.Collection, &cp.NextOffset, &cp.Total, &cp.Success, &cp.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint for %s: %w", collection, err)
	}
	return &cp, nil
}

// Put upserts a collection's checkpoint.
func (s *CheckpointStore) Put(ctx context.Context, cp *Checkpoint) error {
	query := `
		INSERT INTO migration_checkpoints (collection, next_offset, total, success, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection) DO UPDATE SET
			next_offset = excluded.next_offset,
			total = excluded.total,
			success = excluded.success,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		cp.Collection, cp.NextOffset, cp.Total, cp.Success, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write checkpoint for %s: %w", cp.Collection, err)
	}
	return nil
}

// Reset removes a collection's checkpoint so the next run starts over.
func (s *CheckpointStore) Reset(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM migration_checkpoints WHERE collection = ?`, collection)
	if err != nil {
		return fmt.Errorf("failed to reset checkpoint for %s: %w", collection, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}
