package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tc := &Context{UserID: "u1", OrganizationID: "org-a"}
		assert.NoError(t, tc.Validate())
	})

	t.Run("missing organization", func(t *testing.T) {
		tc := &Context{UserID: "u1"}
		assert.Error(t, tc.Validate())
	})

	t.Run("nil context", func(t *testing.T) {
		var tc *Context
		assert.Error(t, tc.Validate())
	})
}

func TestContext_HasPermission(t *testing.T) {
	tc := &Context{Permissions: []string{"storage:read", "storage:write"}}

	assert.True(t, tc.HasPermission("storage:write"))
	assert.False(t, tc.HasPermission("storage:admin"))
	assert.False(t, (&Context{}).HasPermission("anything"))
}

func TestContextRoundTrip(t *testing.T) {
	tc := &Context{UserID: "u1", OrganizationID: "org-a", ProjectID: "p1"}

	ctx := NewContext(context.Background(), tc)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, tc, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
