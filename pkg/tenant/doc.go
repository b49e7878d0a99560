// Package tenant defines the tenant context that scopes every storage
// operation in Radiance.
//
// A tenant is an organization, optionally narrowed to a single project.
// The context carries the identifiers the authentication layer resolved
// for the current request; storage code uses them to stamp writes and
// filter reads. The context is never persisted by the storage layer
// itself.
//
// USAGE PATTERN:
//
//	tc := &tenant.Context{
//	    UserID:         claims.Subject,
//	    OrganizationID: claims.OrgID,
//	    ProjectID:      claims.ProjectID,
//	}
//	scoped, err := storage.NewScopedAdapter(base, tc)
//
// Request plumbing attaches the context with tenant.NewContext and
// retrieves it with tenant.FromContext.
package tenant
