package storage

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Document is a single schema-flexible record within a collection.
type Document map[string]any

// System field names. These carry meaning for the storage layer itself;
// everything else in a document is opaque application data.
const (
	FieldID             = "id"
	FieldOrganizationID = "organization_id"
	FieldProjectID      = "project_id"
	FieldCreatedAt      = "created_at"
	FieldUpdatedAt      = "updated_at"
	FieldCreatedBy      = "created_by"
	FieldUpdatedBy      = "updated_by"
)

var systemFields = map[string]bool{
	FieldID:             true,
	FieldOrganizationID: true,
	FieldProjectID:      true,
	FieldCreatedAt:      true,
	FieldUpdatedAt:      true,
	FieldCreatedBy:      true,
	FieldUpdatedBy:      true,
}

// IsSystemField reports whether name is reserved by the storage layer.
func IsSystemField(name string) bool {
	return systemFields[name]
}

// Clone returns a shallow copy of the document. Nested values are shared;
// adapters only ever mutate top-level fields.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// StringField returns the named field as a string, or "" when absent or
// not a string.
func (d Document) StringField(name string) string {
	if v, ok := d[name].(string); ok {
		return v
	}
	return ""
}

// ID returns the document's id field.
func (d Document) ID() string {
	return d.StringField(FieldID)
}

// nowTimestamp returns the canonical timestamp representation used for
// created_at/updated_at. Stored as a string so documents round-trip
// identically through JSON files and jsonb columns.
func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// equalValues compares two field values for exact-match filtering.
// Numeric values are compared as floats because JSON decoding turns all
// numbers into float64 while callers often filter with ints.
func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return stringify(a) == stringify(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return ""
}

// matchesFilters applies exact-match AND semantics.
func matchesFilters(doc Document, filters map[string]any) bool {
	for field, want := range filters {
		got, ok := doc[field]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

// matchesQuery performs naive case-insensitive substring matching over
// string-valued fields, the fallback for backends without native search.
func matchesQuery(doc Document, query string) bool {
	q := strings.ToLower(query)
	for _, v := range doc {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// compareValues orders two field values for sorting. Numbers sort
// numerically, everything else by string representation. Missing values
// sort first.
func compareValues(a, b any) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(stringify(a), stringify(b))
}

// applyListOptions filters, orders and paginates an in-memory result set.
// Shared by the JSON backend and scoped clear paging.
func applyListOptions(docs []Document, opts ListOptions) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if matchesFilters(doc, opts.Filters) {
			out = append(out, doc)
		}
	}

	if opts.OrderBy != "" {
		field := opts.OrderBy
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i][field], out[j][field])
			if opts.OrderDesc {
				return c > 0
			}
			return c < 0
		})
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if opts.Offset >= len(out) {
		return []Document{}
	}
	out = out[opts.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
