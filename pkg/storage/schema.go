package storage

import "fmt"

// CollectionSchema describes validation for a first-class collection.
// Documents in collections without a registered schema are accepted as-is
// (generic key-value fallback); known collections are validated on save
// so malformed payloads are rejected at the boundary instead of
// surfacing as broken reads later.
type CollectionSchema struct {
	// Table is the typed Postgres table backing the collection. Empty
	// means the collection rides the generic envelope table.
	Table string

	// Required lists non-system fields that must be present and
	// non-empty on save.
	Required []string
}

// knownCollections are the first-class collections of the Radiance
// application. Everything else is treated as an ad hoc collection.
var knownCollections = map[string]CollectionSchema{
	"affirmations": {
		Table:    "affirmations",
		Required: []string{"text"},
	},
	"instagram_posts": {
		Table:    "instagram_posts",
		Required: []string{"caption"},
	},
	"analytics_events": {
		Table:    "analytics_events",
		Required: []string{"event_type"},
	},
}

// SchemaFor returns the schema registered for a collection, if any.
func SchemaFor(collection string) (CollectionSchema, bool) {
	s, ok := knownCollections[collection]
	return s, ok
}

// KnownCollections returns the names of all first-class collections.
func KnownCollections() []string {
	names := make([]string, 0, len(knownCollections))
	for name := range knownCollections {
		names = append(names, name)
	}
	return names
}

// ValidateDocument checks a document against the collection's schema.
// Collections without a schema accept any document.
func ValidateDocument(collection string, doc Document) error {
	schema, ok := knownCollections[collection]
	if !ok {
		return nil
	}
	for _, field := range schema.Required {
		v, present := doc[field]
		if !present {
			return fmt.Errorf("%w: collection %q requires field %q", ErrInvalidDocument, collection, field)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return fmt.Errorf("%w: collection %q requires non-empty field %q", ErrInvalidDocument, collection, field)
		}
	}
	return nil
}
