package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/radiancehq/radiance/pkg/storage"
)

// JournalEntry is one write that failed against the dual-write
// secondary and awaits replay.
type JournalEntry struct {
	ID         int64
	Op         string
	Collection string
	DocID      string
	Payload    storage.Document
	RecordedAt time.Time
}

// JournalStore persists dual-write secondary failures in a local SQLite
// file. It implements storage.Journal on the write side; the Reconciler
// consumes pending entries and marks them replayed.
type JournalStore struct {
	db *sql.DB
}

var _ storage.Journal = (*JournalStore)(nil)

// NewJournalStore opens (and initializes) the journal database.
func NewJournalStore(path string) (*JournalStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS dual_write_journal (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			op          TEXT NOT NULL,
			collection  TEXT NOT NULL,
			doc_id      TEXT NOT NULL,
			payload     TEXT,
			recorded_at TIMESTAMP NOT NULL,
			replayed_at TIMESTAMP
		)
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return &JournalStore{db: db}, nil
}

// Record implements storage.Journal.
func (s *JournalStore) Record(ctx context.Context, op, collection, id string, data storage.Document) error {
	var payload []byte
	if data != nil {
		var err error
		payload, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal journal payload: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dual_write_journal (op, collection, doc_id, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, op, collection, id, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// Pending returns up to limit entries that have not been replayed,
// oldest first.
func (s *JournalStore) Pending(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op, collection, doc_id, payload, recorded_at
		FROM dual_write_journal
		WHERE replayed_at IS NULL
		ORDER BY id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending journal entries: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.Op, &e.Collection, &e.DocID, &payload, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal journal payload for entry %d: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list pending journal entries: %w", err)
	}
	return entries, nil
}

// MarkReplayed stamps an entry as successfully replayed.
func (s *JournalStore) MarkReplayed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dual_write_journal SET replayed_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark journal entry %d replayed: %w", id, err)
	}
	return nil
}

// PendingCount returns the number of entries awaiting replay.
func (s *JournalStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dual_write_journal WHERE replayed_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending journal entries: %w", err)
	}
	return n, nil
}

// Prune deletes replayed entries older than the given age.
func (s *JournalStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM dual_write_journal
		WHERE replayed_at IS NOT NULL AND replayed_at < ?
	`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the underlying database handle.
func (s *JournalStore) Close() error {
	return s.db.Close()
}
