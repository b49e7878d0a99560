// Package middleware provides HTTP middleware shared by Radiance
// services: tenant context extraction and request logging.
package middleware

import (
	"net/http"

	"github.com/radiancehq/radiance/pkg/tenant"
)

// Header names carrying the tenant identity, set by the edge gateway
// after token validation.
const (
	HeaderUserID         = "X-Radiance-User"
	HeaderOrganizationID = "X-Radiance-Org"
	HeaderProjectID      = "X-Radiance-Project"
)

// TenantContext extracts the tenant identity headers into a
// tenant.Context on the request context. Requests without an
// organization header pass through unscoped; handlers that need a
// tenant reject those themselves.
func TenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get(HeaderOrganizationID)
		if orgID == "" {
			next.ServeHTTP(w, r)
			return
		}

		tc := &tenant.Context{
			UserID:         r.Header.Get(HeaderUserID),
			OrganizationID: orgID,
			ProjectID:      r.Header.Get(HeaderProjectID),
		}
		next.ServeHTTP(w, r.WithContext(tenant.NewContext(r.Context(), tc)))
	})
}

// RequireTenant rejects requests that did not resolve a tenant context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := tenant.FromContext(r.Context())
		if !ok || tc.Validate() != nil {
			http.Error(w, "organization context is required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
