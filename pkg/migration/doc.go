// Package migration moves documents between storage backends and keeps
// the bookkeeping that makes an online migration safe to re-run.
//
// The Migrator batch-copies a collection from a source adapter to a
// target adapter, preserving document ids so references stay stable.
// Saves are upserts, which makes a re-run after partial failure
// harmless: already-migrated documents are overwritten with identical
// content and only previously-failed ones change outcome. A dry run
// performs just the counting step and never touches the target.
//
// The CheckpointStore records per-collection progress in a local SQLite
// file so an interrupted run can resume from its last page instead of
// relying on upsert idempotency alone.
//
// The JournalStore persists dual-write secondary failures; the
// Reconciler replays that delta against the secondary backend, reading
// the current document state from the primary. It can run once from the
// CLI or on a cron schedule.
package migration
