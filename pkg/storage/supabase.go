package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var supabaseTracer = otel.Tracer("radiance/storage/supabase")

// envelopeTable holds documents of ad hoc collections as
// (storage_key, storage_type, data) rows: storage_key is the document
// id, storage_type the collection name, data the full JSON payload.
// First-class collections use their own typed tables instead.
const envelopeTable = "generic_storage"

// typed table column set shared by all first-class collections.
var typedColumns = map[string]string{
	FieldID:             "id",
	FieldOrganizationID: "organization_id",
	FieldProjectID:      "project_id",
	FieldCreatedBy:      "created_by",
	FieldUpdatedBy:      "updated_by",
	FieldCreatedAt:      "created_at",
	FieldUpdatedAt:      "updated_at",
}

// SupabaseAdapter implements Adapter against a Supabase-hosted Postgres
// database. Tables and columns are assumed pre-provisioned.
type SupabaseAdapter struct {
	db  *sql.DB
	cfg Config
}

// NewSupabaseAdapter connects to the configured Supabase database and
// verifies connectivity. Credential or connectivity problems surface
// here as ErrUnavailable so misconfiguration fails at startup.
func NewSupabaseAdapter(cfg Config) (*SupabaseAdapter, error) {
	dsn, err := cfg.SupabaseDSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open supabase connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.SupabaseMaxConns)
	db.SetMaxIdleConns(cfg.SupabaseMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	timeout := cfg.SupabaseTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping supabase: %v", ErrUnavailable, err)
	}

	return &SupabaseAdapter{db: db, cfg: cfg}, nil
}

// NewSupabaseAdapterFromDB wraps an existing database handle. Used by
// tests and by callers that manage the connection pool themselves.
func NewSupabaseAdapterFromDB(db *sql.DB) *SupabaseAdapter {
	return &SupabaseAdapter{db: db}
}

// Name implements Adapter.Name.
func (a *SupabaseAdapter) Name() string { return AdapterSupabase }

// classifyErr maps driver errors onto the adapter error taxonomy: a
// missing row is ErrNotFound, connection-level failures are
// ErrUnavailable, anything else passes through wrapped by the caller.
func classifyErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, driver.ErrBadConn):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (a *SupabaseAdapter) startSpan(ctx context.Context, op, collection string) (context.Context, trace.Span) {
	return supabaseTracer.Start(ctx, "Supabase."+op,
		trace.WithAttributes(attribute.String("storage.collection", collection)))
}

func finishSpan(span trace.Span, err error) {
	if err != nil && !IsNotFound(err) {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// splitSystemFields separates the typed-table column values from the
// free-form payload stored in the data column.
func splitSystemFields(doc Document) (sys map[string]string, data Document) {
	sys = make(map[string]string, len(typedColumns))
	data = make(Document, len(doc))
	for k, v := range doc {
		if _, ok := typedColumns[k]; ok {
			sys[k] = stringifyField(v)
			continue
		}
		data[k] = v
	}
	return sys, data
}

func stringifyField(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return stringify(v)
}

// Save implements Adapter.Save with upsert semantics. On conflict the
// created_at/created_by columns keep their original values.
func (a *SupabaseAdapter) Save(ctx context.Context, collection string, data Document, id string) (string, error) {
	ctx, span := a.startSpan(ctx, "Save", collection)
	var err error
	defer func() { finishSpan(span, err) }()

	if err = ValidateDocument(collection, data); err != nil {
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

	if schema, ok := SchemaFor(collection); ok {
		err = a.saveTyped(ctx, schema.Table, doc)
	} else {
		err = a.saveEnvelope(ctx, collection, id, doc)
	}
	if err != nil {
		err = fmt.Errorf("failed to save %s/%s: %w", collection, id, classifyErr(err))
		return "", err
	}
	return id, nil
}

func (a *SupabaseAdapter) saveTyped(ctx context.Context, table string, doc Document) error {
	sys, rest := splitSystemFields(doc)
	payload, err := json.Marshal(rest)
	if err != nil {
		return fmt.Errorf("failed to marshal document payload: %w", err)
	}

	now := time.Now().UTC()
	createdAt := parseTimestamp(sys[FieldCreatedAt], now)
	updatedAt := parseTimestamp(sys[FieldUpdatedAt], now)

	query := fmt.Sprintf(`
		INSERT INTO %s (id, organization_id, project_id, created_by, updated_by, created_at, updated_at, data)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			project_id = EXCLUDED.project_id,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at,
			data = EXCLUDED.data
	`, table)

	_, err = a.db.ExecContext(ctx, query,
		sys[FieldID],
		sys[FieldOrganizationID],
		sys[FieldProjectID],
		sys[FieldCreatedBy],
		sys[FieldUpdatedBy],
		createdAt,
		updatedAt,
		payload,
	)
	return err
}

func (a *SupabaseAdapter) saveEnvelope(ctx context.Context, collection, id string, doc Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document payload: %w", err)
	}

	// On conflict the incoming payload wins except for the audit fields,
	// which keep the stored document's values.
	query := fmt.Sprintf(`
		INSERT INTO %s (storage_key, storage_type, data, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (storage_type, storage_key) DO UPDATE SET
			data = EXCLUDED.data || jsonb_strip_nulls(jsonb_build_object(
				'created_at', %s.data->'created_at',
				'created_by', %s.data->'created_by')),
			updated_at = NOW()
	`, envelopeTable, envelopeTable, envelopeTable)

	_, err = a.db.ExecContext(ctx, query, id, collection, payload)
	return err
}

func parseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return fallback
}

// Load implements Adapter.Load.
func (a *SupabaseAdapter) Load(ctx context.Context, collection, id string) (Document, error) {
	ctx, span := a.startSpan(ctx, "Load", collection)
	var err error
	defer func() { finishSpan(span, err) }()

	var doc Document
	if schema, ok := SchemaFor(collection); ok {
		doc, err = a.loadTyped(ctx, schema.Table, id)
	} else {
		doc, err = a.loadEnvelope(ctx, collection, id)
	}
	if err != nil {
		err = classifyErr(err)
		if IsNotFound(err) {
			err = fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
			return nil, err
		}
		err = fmt.Errorf("failed to load %s/%s: %w", collection, id, err)
		return nil, err
	}
	return doc, nil
}

func (a *SupabaseAdapter) loadTyped(ctx context.Context, table, id string) (Document, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, project_id, created_by, updated_by, created_at, updated_at, data
		FROM %s WHERE id = $1
	`, table)
	return scanTypedRow(a.db.QueryRowContext(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTypedRow(row rowScanner) (Document, error) {
	var (
		id, orgID            string
		projectID            sql.NullString
		createdBy, updatedBy sql.NullString
		createdAt, updatedAt time.Time
		payload              []byte
	)
	if err := row.Scan(&id, &orgID, &projectID, &createdBy, &updatedBy, &createdAt, &updatedAt, &payload); err != nil {
		return nil, err
	}

	doc := Document{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document payload: %w", err)
		}
	}
	doc[FieldID] = id
	doc[FieldOrganizationID] = orgID
	if projectID.Valid {
		doc[FieldProjectID] = projectID.String
	}
	if createdBy.Valid {
		doc[FieldCreatedBy] = createdBy.String
	}
	if updatedBy.Valid {
		doc[FieldUpdatedBy] = updatedBy.String
	}
	doc[FieldCreatedAt] = createdAt.UTC().Format(time.RFC3339Nano)
	doc[FieldUpdatedAt] = updatedAt.UTC().Format(time.RFC3339Nano)
	return doc, nil
}

func (a *SupabaseAdapter) loadEnvelope(ctx context.Context, collection, id string) (Document, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE storage_type = $1 AND storage_key = $2`, envelopeTable)

	var payload []byte
	if err := a.db.QueryRowContext(ctx, query, collection, id).Scan(&payload); err != nil {
		return nil, err
	}
	doc := Document{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document payload: %w", err)
	}
	return doc, nil
}

// buildWhere renders exact-match filters into a WHERE clause. System
// fields hit typed columns when the collection is typed; everything else
// matches against the jsonb payload. Filter keys are sorted so the
// generated SQL is deterministic.
func buildWhere(filters map[string]any, typed bool, startArg int, conds []string, args []any) ([]string, []any) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := startArg
	for _, k := range keys {
		v := filters[k]
		if col, ok := typedColumns[k]; ok && typed {
			conds = append(conds, fmt.Sprintf("%s = $%d", col, n))
			args = append(args, stringifyField(v))
			n++
			continue
		}
		conds = append(conds, fmt.Sprintf("data->>$%d = $%d", n, n+1))
		args = append(args, k, stringifyField(v))
		n += 2
	}
	return conds, args
}

// List implements Adapter.List.
func (a *SupabaseAdapter) List(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	ctx, span := a.startSpan(ctx, "List", collection)
	var err error
	defer func() { finishSpan(span, err) }()

	schema, typed := SchemaFor(collection)

	var conds []string
	var args []any
	table := envelopeTable
	selectCols := "data"
	if typed {
		table = schema.Table
		selectCols = "id, organization_id, project_id, created_by, updated_by, created_at, updated_at, data"
	} else {
		conds = append(conds, "storage_type = $1")
		args = append(args, collection)
	}
	conds, args = buildWhere(opts.Filters, typed, len(args)+1, conds, args)

	query := fmt.Sprintf("SELECT %s FROM %s", selectCols, table)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	if opts.OrderBy != "" {
		dir := "ASC"
		if opts.OrderDesc {
			dir = "DESC"
		}
		if col, ok := typedColumns[opts.OrderBy]; ok && typed {
			query += fmt.Sprintf(" ORDER BY %s %s", col, dir)
		} else {
			query += fmt.Sprintf(" ORDER BY data->>$%d %s", len(args)+1, dir)
			args = append(args, opts.OrderBy)
		}
	} else if typed {
		query += " ORDER BY id ASC"
	} else {
		query += " ORDER BY storage_key ASC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, opts.Offset)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		err = fmt.Errorf("failed to list %s: %w", collection, classifyErr(err))
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if typed {
			doc, err = scanTypedRow(rows)
		} else {
			var payload []byte
			if err = rows.Scan(&payload); err == nil {
				doc = Document{}
				err = json.Unmarshal(payload, &doc)
			}
		}
		if err != nil {
			err = fmt.Errorf("failed to scan document in %s: %w", collection, err)
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("failed to list %s: %w", collection, classifyErr(err))
		return nil, err
	}
	return docs, nil
}

// Update implements Adapter.Update as load-merge-upsert. The storage
// contract is last-write-wins; no optimistic concurrency token exists.
func (a *SupabaseAdapter) Update(ctx context.Context, collection, id string, partial Document) (bool, error) {
	existing, err := a.Load(ctx, collection, id)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	for k, v := range partial {
		switch k {
		case FieldID, FieldCreatedAt, FieldCreatedBy:
			// Immutable once set.
			continue
		}
		existing[k] = v
	}

	if _, err := a.Save(ctx, collection, existing, id); err != nil {
		return false, err
	}
	return true, nil
}

// Delete implements Adapter.Delete.
func (a *SupabaseAdapter) Delete(ctx context.Context, collection, id string) (bool, error) {
	ctx, span := a.startSpan(ctx, "Delete", collection)
	var err error
	defer func() { finishSpan(span, err) }()

	var res sql.Result
	if schema, ok := SchemaFor(collection); ok {
		res, err = a.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", schema.Table), id)
	} else {
		res, err = a.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE storage_type = $1 AND storage_key = $2", envelopeTable),
			collection, id)
	}
	if err != nil {
		err = fmt.Errorf("failed to delete %s/%s: %w", collection, id, classifyErr(err))
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Count implements Adapter.Count.
func (a *SupabaseAdapter) Count(ctx context.Context, collection string, filters map[string]any) (int, error) {
	ctx, span := a.startSpan(ctx, "Count", collection)
	var err error
	defer func() { finishSpan(span, err) }()

	schema, typed := SchemaFor(collection)

	var conds []string
	var args []any
	table := envelopeTable
	if typed {
		table = schema.Table
	} else {
		conds = append(conds, "storage_type = $1")
		args = append(args, collection)
	}
	conds, args = buildWhere(filters, typed, len(args)+1, conds, args)

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var n int
	if err = a.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		err = fmt.Errorf("failed to count %s: %w", collection, classifyErr(err))
		return 0, err
	}
	return n, nil
}

// Exists implements Adapter.Exists.
func (a *SupabaseAdapter) Exists(ctx context.Context, collection, id string) (bool, error) {
	ctx, span := a.startSpan(ctx, "Exists", collection)
	var err error
	defer func() { finishSpan(span, err) }()

	var query string
	var args []any
	if schema, ok := SchemaFor(collection); ok {
		query = fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", schema.Table)
		args = []any{id}
	} else {
		query = fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE storage_type = $1 AND storage_key = $2)", envelopeTable)
		args = []any{collection, id}
	}

	var exists bool
	if err = a.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		err = fmt.Errorf("failed to check %s/%s: %w", collection, id, classifyErr(err))
		return false, err
	}
	return exists, nil
}

// Clear implements Adapter.Clear. For typed collections this truncates
// the whole table; the envelope table only drops the collection's slice.
func (a *SupabaseAdapter) Clear(ctx context.Context, collection string) (bool, error) {
	ctx, span := a.startSpan(ctx, "Clear", collection)
	var err error
	defer func() { finishSpan(span, err) }()

	if schema, ok := SchemaFor(collection); ok {
		_, err = a.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", schema.Table))
	} else {
		_, err = a.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE storage_type = $1", envelopeTable), collection)
	}
	if err != nil {
		err = fmt.Errorf("failed to clear %s: %w", collection, classifyErr(err))
		return false, err
	}
	return true, nil
}

// Search implements Adapter.Search with a case-insensitive substring
// match over the serialized payload.
func (a *SupabaseAdapter) Search(ctx context.Context, collection, query string, filters map[string]any, limit int) ([]Document, error) {
	ctx, span := a.startSpan(ctx, "Search", collection)
	var err error
	defer func() { finishSpan(span, err) }()

	schema, typed := SchemaFor(collection)

	var conds []string
	var args []any
	table := envelopeTable
	selectCols := "data"
	if typed {
		table = schema.Table
		selectCols = "id, organization_id, project_id, created_by, updated_by, created_at, updated_at, data"
	} else {
		conds = append(conds, "storage_type = $1")
		args = append(args, collection)
	}
	conds, args = buildWhere(filters, typed, len(args)+1, conds, args)

	if query != "" {
		conds = append(conds, fmt.Sprintf("data::text ILIKE '%%' || $%d || '%%'", len(args)+1))
		args = append(args, query)
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}

	sqlQuery := fmt.Sprintf("SELECT %s FROM %s", selectCols, table)
	if len(conds) > 0 {
		sqlQuery += " WHERE " + strings.Join(conds, " AND ")
	}
	sqlQuery += fmt.Sprintf(" LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		err = fmt.Errorf("failed to search %s: %w", collection, classifyErr(err))
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if typed {
			doc, err = scanTypedRow(rows)
		} else {
			var payload []byte
			if err = rows.Scan(&payload); err == nil {
				doc = Document{}
				err = json.Unmarshal(payload, &doc)
			}
		}
		if err != nil {
			err = fmt.Errorf("failed to scan document in %s: %w", collection, err)
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("failed to search %s: %w", collection, classifyErr(err))
		return nil, err
	}
	return docs, nil
}

// HealthCheck implements Adapter.HealthCheck.
func (a *SupabaseAdapter) HealthCheck(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close implements Adapter.Close.
func (a *SupabaseAdapter) Close() error {
	return a.db.Close()
}
