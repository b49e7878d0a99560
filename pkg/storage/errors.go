package storage

import "errors"

var (
	// ErrNotFound indicates the requested document does not exist in the
	// caller's visible scope. Cross-tenant lookups intentionally surface
	// as ErrNotFound rather than a distinct "forbidden" error.
	ErrNotFound = errors.New("document not found")

	// ErrUnavailable indicates the backend could not be reached or
	// rejected the configured credentials.
	ErrUnavailable = errors.New("storage backend unavailable")

	// ErrMissingOrganization indicates a scoped adapter was constructed
	// without an organization in the tenant context.
	ErrMissingOrganization = errors.New("tenant context requires an organization_id")

	// ErrInvalidDocument indicates a document failed collection schema
	// validation on save.
	ErrInvalidDocument = errors.New("invalid document")
)

// IsNotFound reports whether err represents a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err represents a backend outage.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
