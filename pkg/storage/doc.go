// Package storage provides the pluggable persistence layer for Radiance.
//
// Every backend implements the Adapter interface: a document-oriented
// CRUD contract over named collections. Two concrete backends exist:
//
//   - JSONAdapter persists each collection as a single JSON file under a
//     base directory. Writes are read-modify-write over the whole file,
//     serialized by a per-collection mutex. It is intended for local
//     development and small single-process deployments; concurrent
//     writers in separate processes are not supported.
//
//   - SupabaseAdapter persists documents in a Supabase-hosted Postgres
//     database. First-class collections (affirmations, instagram_posts,
//     analytics_events) map onto typed tables that promote the system
//     fields to columns; everything else rides a generic envelope table
//     keyed by (storage_type, storage_key).
//
// Decorators compose over any base adapter:
//
//   - ScopedAdapter enforces tenant isolation. It stamps tenant fields
//     into writes, injects tenant filters into reads, and degrades any
//     cross-tenant access to ErrNotFound so that one tenant can never
//     learn of another tenant's documents, not even through error types.
//
//   - DualWriteAdapter fans writes out to a primary and a secondary
//     backend and serves reads from a configurable side. The secondary
//     write is best-effort: it runs under a short timeout, its failures
//     are logged and optionally journaled for offline reconciliation,
//     and they never fail the caller. This is the mechanism for online
//     migration between backends.
//
//   - CachedAdapter adds a read-through document cache (in-process LRU
//     in front of Redis).
//
// The Factory builds the configured adapter stack once at startup and
// hands it to the application; it also exposes Swap for controlled
// migration windows. There is no hidden package-level singleton; the
// handle is injected through the dependency graph.
//
// ERROR CONTRACT:
//
// Missing documents yield ErrNotFound. Connectivity and credential
// failures yield errors matching ErrUnavailable. Callers must not
// conflate the two: ErrNotFound is a normal outcome, ErrUnavailable
// means the backend itself is unhealthy. Adapters never retry
// internally; retry policy belongs to callers or to the offline
// reconciliation tooling in pkg/migration.
package storage
