package storage

import (
	"context"
	"fmt"

	"github.com/radiancehq/radiance/pkg/tenant"
)

// clearPageSize bounds the paging loop used by ScopedAdapter.Clear.
const clearPageSize = 1000

// ScopedAdapter decorates a base adapter with tenant isolation. Writes
// are stamped with the tenant's identifiers, reads are filtered by them,
// and any document that fails ownership validation is reported as
// ErrNotFound, never as a distinct "forbidden" error, so the existence
// of another tenant's data cannot leak through error types.
type ScopedAdapter struct {
	base Adapter
	tc   *tenant.Context
}

// NewScopedAdapter wraps base with the given tenant context. The context
// must carry an organization id.
func NewScopedAdapter(base Adapter, tc *tenant.Context) (*ScopedAdapter, error) {
	if tc == nil || tc.OrganizationID == "" {
		return nil, ErrMissingOrganization
	}
	return &ScopedAdapter{base: base, tc: tc}, nil
}

// Name implements Adapter.Name.
func (s *ScopedAdapter) Name() string { return s.base.Name() }

// Tenant returns the context this adapter is scoped to.
func (s *ScopedAdapter) Tenant() *tenant.Context { return s.tc }

// scopeFilters injects the tenant identifiers into a filter map. The
// injection happens before delegation so filtering is enforced by the
// backend itself and cannot be bypassed by omission.
func (s *ScopedAdapter) scopeFilters(filters map[string]any) map[string]any {
	scoped := make(map[string]any, len(filters)+2)
	for k, v := range filters {
		scoped[k] = v
	}
	scoped[FieldOrganizationID] = s.tc.OrganizationID
	if s.tc.ProjectID != "" {
		scoped[FieldProjectID] = s.tc.ProjectID
	}
	return scoped
}

// owns validates a loaded document against the tenant context. The
// project check applies only when both the context and the document
// carry a project id.
func (s *ScopedAdapter) owns(doc Document) bool {
	if doc.StringField(FieldOrganizationID) != s.tc.OrganizationID {
		return false
	}
	docProject := doc.StringField(FieldProjectID)
	if s.tc.ProjectID != "" && docProject != "" && docProject != s.tc.ProjectID {
		return false
	}
	return true
}

// Save implements Adapter.Save. Tenant fields and timestamps are merged
// into the payload before delegation; created_by defaults to the
// context's user but an explicit caller value is kept.
func (s *ScopedAdapter) Save(ctx context.Context, collection string, data Document, id string) (string, error) {
	doc := data.Clone()
	doc[FieldOrganizationID] = s.tc.OrganizationID
	if s.tc.ProjectID != "" {
		doc[FieldProjectID] = s.tc.ProjectID
	}
	if doc.StringField(FieldCreatedBy) == "" && s.tc.UserID != "" {
		doc[FieldCreatedBy] = s.tc.UserID
	}
	if doc.StringField(FieldCreatedAt) == "" {
		doc[FieldCreatedAt] = nowTimestamp()
	}
	doc[FieldUpdatedAt] = nowTimestamp()

	return s.base.Save(ctx, collection, doc, id)
}

// Load implements Adapter.Load with ownership validation.
func (s *ScopedAdapter) Load(ctx context.Context, collection, id string) (Document, error) {
	doc, err := s.base.Load(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if !s.owns(doc) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return doc, nil
}

// List implements Adapter.List within the tenant scope.
func (s *ScopedAdapter) List(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	opts.Filters = s.scopeFilters(opts.Filters)
	return s.base.List(ctx, collection, opts)
}

// Update implements Adapter.Update. Ownership is confirmed with a scoped
// load first; the tenant fields are then re-stamped so the caller cannot
// move a document to another tenant, and created_at/created_by are
// stripped from the partial so they stay immutable.
func (s *ScopedAdapter) Update(ctx context.Context, collection, id string, partial Document) (bool, error) {
	if _, err := s.Load(ctx, collection, id); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	merged := make(Document, len(partial)+3)
	for k, v := range partial {
		switch k {
		case FieldID, FieldCreatedAt, FieldCreatedBy, FieldOrganizationID, FieldProjectID:
			continue
		}
		merged[k] = v
	}
	merged[FieldOrganizationID] = s.tc.OrganizationID
	if s.tc.ProjectID != "" {
		merged[FieldProjectID] = s.tc.ProjectID
	}
	merged[FieldUpdatedAt] = nowTimestamp()
	if s.tc.UserID != "" {
		merged[FieldUpdatedBy] = s.tc.UserID
	}

	return s.base.Update(ctx, collection, id, merged)
}

// Delete implements Adapter.Delete after confirming ownership.
func (s *ScopedAdapter) Delete(ctx context.Context, collection, id string) (bool, error) {
	if _, err := s.Load(ctx, collection, id); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return s.base.Delete(ctx, collection, id)
}

// Count implements Adapter.Count within the tenant scope.
func (s *ScopedAdapter) Count(ctx context.Context, collection string, filters map[string]any) (int, error) {
	return s.base.Count(ctx, collection, s.scopeFilters(filters))
}

// Exists implements Adapter.Exists within the tenant scope.
func (s *ScopedAdapter) Exists(ctx context.Context, collection, id string) (bool, error) {
	_, err := s.Load(ctx, collection, id)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Clear implements Adapter.Clear by listing the tenant's documents page
// by page and deleting them one at a time. Deliberately expensive and
// never a table-level truncate, so another tenant's data cannot be
// caught in the blast radius. Intended for test teardown and explicit
// data-removal requests, not hot paths.
func (s *ScopedAdapter) Clear(ctx context.Context, collection string) (bool, error) {
	for {
		docs, err := s.List(ctx, collection, ListOptions{Limit: clearPageSize})
		if err != nil {
			return false, err
		}
		if len(docs) == 0 {
			return true, nil
		}
		for _, doc := range docs {
			id := doc.ID()
			if id == "" {
				continue
			}
			if _, err := s.base.Delete(ctx, collection, id); err != nil {
				return false, err
			}
		}
		if len(docs) < clearPageSize {
			return true, nil
		}
	}
}

// Search implements Adapter.Search within the tenant scope.
func (s *ScopedAdapter) Search(ctx context.Context, collection, query string, filters map[string]any, limit int) ([]Document, error) {
	return s.base.Search(ctx, collection, query, s.scopeFilters(filters), limit)
}

// HealthCheck implements Adapter.HealthCheck.
func (s *ScopedAdapter) HealthCheck(ctx context.Context) error {
	return s.base.HealthCheck(ctx)
}

// Close implements Adapter.Close. Scoped adapters are per-request
// wrappers; closing the shared base is the owner's job.
func (s *ScopedAdapter) Close() error { return nil }
