package storage

import "context"

// DefaultListLimit is applied when ListOptions.Limit is zero.
const DefaultListLimit = 100

// ListOptions controls filtering, pagination and ordering for List.
// Filters are exact-match field→value pairs combined with AND semantics.
// Ordering is by a single field; OrderDesc reverses it.
type ListOptions struct {
	Filters   map[string]any
	Limit     int
	Offset    int
	OrderBy   string
	OrderDesc bool
}

// Adapter is the uniform CRUD contract every backend implements.
//
// Documents are schema-flexible field→value maps identified by an opaque
// string id within a named collection. Collections are created
// implicitly on first write.
//
// Save with an existing id is an upsert; with an empty id a new id is
// generated and returned. Update is a top-level field merge that reports
// false (not an error) when the document does not exist. Load returns
// ErrNotFound for missing documents and an error matching ErrUnavailable
// when the backend cannot be reached.
//
// Search is best-effort text search; backends without native search fall
// back to naive substring matching over string-valued fields.
type Adapter interface {
	Save(ctx context.Context, collection string, data Document, id string) (string, error)
	Load(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string, opts ListOptions) ([]Document, error)
	Update(ctx context.Context, collection, id string, partial Document) (bool, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
	Count(ctx context.Context, collection string, filters map[string]any) (int, error)
	Exists(ctx context.Context, collection, id string) (bool, error)
	Clear(ctx context.Context, collection string) (bool, error)
	Search(ctx context.Context, collection, query string, filters map[string]any, limit int) ([]Document, error)

	// Name identifies the backend kind ("json", "supabase", ...).
	Name() string

	// HealthCheck verifies backend connectivity.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Journal receives write operations that could not be applied to the
// secondary backend during dual-write, so an offline reconciliation job
// can replay the delta later.
type Journal interface {
	Record(ctx context.Context, op, collection, id string, data Document) error
}
