package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// JSONAdapter implements Adapter on top of local JSON files, one file
// per collection. Every write is a read-entire-file, mutate, write-back
// cycle guarded by a per-collection mutex, so the adapter is safe for
// concurrent use within a single process but must not be shared between
// processes. Missing files are treated as empty collections.
//
// Filtering, ordering and pagination happen in memory after loading the
// whole file, which is fine for the hundreds-to-low-thousands of
// documents per collection this backend targets.
type JSONAdapter struct {
	baseDir string

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex
}

// NewJSONAdapter creates a file-backed adapter rooted at baseDir.
func NewJSONAdapter(baseDir string) (*JSONAdapter, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &JSONAdapter{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Name implements Adapter.Name.
func (a *JSONAdapter) Name() string { return AdapterJSON }

func (a *JSONAdapter) collectionLock(collection string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		a.locks[collection] = l
	}
	return l
}

func (a *JSONAdapter) collectionPath(collection string) string {
	return filepath.Join(a.baseDir, collection+".json")
}

// readCollection loads the whole collection file. A missing file is an
// empty collection, not an error.
func (a *JSONAdapter) readCollection(collection string) (map[string]Document, error) {
	data, err := os.ReadFile(a.collectionPath(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Document{}, nil
		}
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}

	docs := map[string]Document{}
	if len(data) == 0 {
		return docs, nil
	}
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collection %s: %w", collection, err)
	}
	return docs, nil
}

func (a *JSONAdapter) writeCollection(collection string, docs map[string]Document) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal collection %s: %w", collection, err)
	}
	if err := os.WriteFile(a.collectionPath(collection), data, 0644); err != nil {
		return fmt.Errorf("failed to write collection %s: %w", collection, err)
	}
	return nil
}

// Save implements Adapter.Save.
func (a *JSONAdapter) Save(ctx context.Context, collection string, data Document, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateDocument(collection, data); err != nil {
		return "", err
	}

	lock := a.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	docs, err := a.readCollection(collection)
	if err != nil {
		return "", err
	}

	if id == "" {
		id = data.StringField(FieldID)
	}
	if id == "" {
		id = uuid.NewString()
	}

	doc := data.Clone()
	doc[FieldID] = id
	// Upsert at an existing id keeps the original audit fields, same as
	// the typed-table ON CONFLICT clause on the Postgres backend.
	if existing, ok := docs[id]; ok {
		for _, field := range []string{FieldCreatedAt, FieldCreatedBy} {
			if v, ok := existing[field]; ok {
				doc[field] = v
			}
		}
	}
	docs[id] = doc

	if err := a.writeCollection(collection, docs); err != nil {
		return "", err
	}
	return id, nil
}

// Load implements Adapter.Load.
func (a *JSONAdapter) Load(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := a.readCollection(collection)
	if err != nil {
		return nil, err
	}
	doc, ok := docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return doc.Clone(), nil
}

// List implements Adapter.List.
func (a *JSONAdapter) List(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := a.readCollection(collection)
	if err != nil {
		return nil, err
	}

	all := make([]Document, 0, len(docs))
	for _, doc := range docs {
		all = append(all, doc.Clone())
	}
	// Stable base order so pagination is deterministic between calls.
	if opts.OrderBy == "" {
		opts.OrderBy = FieldID
	}
	return applyListOptions(all, opts), nil
}

// Update implements Adapter.Update. The partial is merged at top level;
// a missing document yields (false, nil).
func (a *JSONAdapter) Update(ctx context.Context, collection, id string, partial Document) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	lock := a.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	docs, err := a.readCollection(collection)
	if err != nil {
		return false, err
	}
	doc, ok := docs[id]
	if !ok {
		return false, nil
	}

	for k, v := range partial {
		switch k {
		case FieldID, FieldCreatedAt, FieldCreatedBy:
			// Immutable once set.
			continue
		}
		doc[k] = v
	}
	docs[id] = doc

	if err := a.writeCollection(collection, docs); err != nil {
		return false, err
	}
	return true, nil
}

// Delete implements Adapter.Delete.
func (a *JSONAdapter) Delete(ctx context.Context, collection, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	lock := a.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	docs, err := a.readCollection(collection)
	if err != nil {
		return false, err
	}
	if _, ok := docs[id]; !ok {
		return false, nil
	}
	delete(docs, id)

	if err := a.writeCollection(collection, docs); err != nil {
		return false, err
	}
	return true, nil
}

// Count implements Adapter.Count.
func (a *JSONAdapter) Count(ctx context.Context, collection string, filters map[string]any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	docs, err := a.readCollection(collection)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range docs {
		if matchesFilters(doc, filters) {
			n++
		}
	}
	return n, nil
}

// Exists implements Adapter.Exists.
func (a *JSONAdapter) Exists(ctx context.Context, collection, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	docs, err := a.readCollection(collection)
	if err != nil {
		return false, err
	}
	_, ok := docs[id]
	return ok, nil
}

// Clear implements Adapter.Clear by truncating the collection file.
func (a *JSONAdapter) Clear(ctx context.Context, collection string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	lock := a.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	if err := a.writeCollection(collection, map[string]Document{}); err != nil {
		return false, err
	}
	return true, nil
}

// Search implements Adapter.Search with naive substring matching over
// string-valued fields.
func (a *JSONAdapter) Search(ctx context.Context, collection, query string, filters map[string]any, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := a.readCollection(collection)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var out []Document
	for _, doc := range docs {
		if !matchesFilters(doc, filters) {
			continue
		}
		if query == "" || matchesQuery(doc, query) {
			out = append(out, doc.Clone())
		}
	}
	out = applyListOptions(out, ListOptions{Limit: limit, OrderBy: FieldID})
	return out, nil
}

// HealthCheck implements Adapter.HealthCheck.
func (a *JSONAdapter) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(a.baseDir); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close implements Adapter.Close. The JSON backend holds no resources.
func (a *JSONAdapter) Close() error { return nil }
