package tenant

import (
	"context"
	"fmt"
)

// Context identifies the tenant on whose behalf a request executes.
// OrganizationID is mandatory; ProjectID optionally narrows the scope
// further. Role and Permissions are carried for upstream authorization
// checks and are not interpreted by the storage layer.
type Context struct {
	UserID         string   `json:"user_id"`
	OrganizationID string   `json:"organization_id"`
	ProjectID      string   `json:"project_id,omitempty"`
	Role           string   `json:"role,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
}

// Validate checks that the context can be used for scoping.
func (c *Context) Validate() error {
	if c == nil {
		return fmt.Errorf("tenant context is required")
	}
	if c.OrganizationID == "" {
		return fmt.Errorf("tenant context requires an organization_id")
	}
	return nil
}

// HasPermission reports whether the context carries the named permission.
func (c *Context) HasPermission(name string) bool {
	for _, p := range c.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// contextKey is the type for context keys to prevent collisions.
type contextKey string

// tenantKey contains *tenant.Context.
// Set by: auth middleware after token validation.
// Required by: scoped storage construction, audit logging.
const tenantKey contextKey = "tenant_context"

// NewContext returns a copy of parent carrying the tenant context.
func NewContext(parent context.Context, tc *Context) context.Context {
	return context.WithValue(parent, tenantKey, tc)
}

// FromContext retrieves the tenant context, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(tenantKey).(*Context)
	return tc, ok
}
