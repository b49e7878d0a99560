package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAdapter counts backend loads so cache hits are observable.
type countingAdapter struct {
	*JSONAdapter
	loads int
}

func (c *countingAdapter) Load(ctx context.Context, collection, id string) (Document, error) {
	c.loads++
	return c.JSONAdapter.Load(ctx, collection, id)
}

func newTestCachedAdapter(t *testing.T) (*CachedAdapter, *countingAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	base := &countingAdapter{JSONAdapter: newTestJSONAdapter(t)}

	cfg := DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	cached, err := NewCachedAdapter(base, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { cached.Close() })
	return cached, base
}

func TestNewCachedAdapter(t *testing.T) {
	t.Run("rejects malformed redis URL", func(t *testing.T) {
		_, err := NewCachedAdapter(newTestJSONAdapter(t), Config{RedisURL: "::bad::"})
		assert.Error(t, err)
	})

	t.Run("unreachable redis is ErrUnavailable", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RedisURL = "redis://127.0.0.1:1"
		_, err := NewCachedAdapter(newTestJSONAdapter(t), cfg)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestCachedAdapter_ReadThrough(t *testing.T) {
	ctx := context.Background()
	cached, base := newTestCachedAdapter(t)

	id, err := cached.Save(ctx, "notes", Document{"title": "cache me"}, "")
	require.NoError(t, err)

	doc, err := cached.Load(ctx, "notes", id)
	require.NoError(t, err)
	assert.Equal(t, "cache me", doc["title"])
	assert.Equal(t, 1, base.loads)

	// Second load is served from cache.
	doc, err = cached.Load(ctx, "notes", id)
	require.NoError(t, err)
	assert.Equal(t, "cache me", doc["title"])
	assert.Equal(t, 1, base.loads)
}

func TestCachedAdapter_WriteInvalidation(t *testing.T) {
	ctx := context.Background()
	cached, base := newTestCachedAdapter(t)

	id, err := cached.Save(ctx, "notes", Document{"title": "v1"}, "")
	require.NoError(t, err)

	_, err = cached.Load(ctx, "notes", id)
	require.NoError(t, err)
	require.Equal(t, 1, base.loads)

	t.Run("save invalidates", func(t *testing.T) {
		_, err := cached.Save(ctx, "notes", Document{"title": "v2"}, id)
		require.NoError(t, err)

		doc, err := cached.Load(ctx, "notes", id)
		require.NoError(t, err)
		assert.Equal(t, "v2", doc["title"])
		assert.Equal(t, 2, base.loads, "stale entry was dropped")
	})

	t.Run("update invalidates", func(t *testing.T) {
		ok, err := cached.Update(ctx, "notes", id, Document{"title": "v3"})
		require.NoError(t, err)
		require.True(t, ok)

		doc, err := cached.Load(ctx, "notes", id)
		require.NoError(t, err)
		assert.Equal(t, "v3", doc["title"])
	})

	t.Run("delete invalidates", func(t *testing.T) {
		ok, err := cached.Delete(ctx, "notes", id)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = cached.Load(ctx, "notes", id)
		assert.True(t, IsNotFound(err), "deleted document must not be served from cache")
	})
}

func TestCachedAdapter_ExistsUsesCache(t *testing.T) {
	ctx := context.Background()
	cached, _ := newTestCachedAdapter(t)

	id, err := cached.Save(ctx, "notes", Document{"title": "x"}, "")
	require.NoError(t, err)
	_, err = cached.Load(ctx, "notes", id)
	require.NoError(t, err)

	ok, err := cached.Exists(ctx, "notes", id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cached.Exists(ctx, "notes", "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachedAdapter_ClearPurges(t *testing.T) {
	ctx := context.Background()
	cached, base := newTestCachedAdapter(t)

	id, err := cached.Save(ctx, "notes", Document{"title": "x"}, "")
	require.NoError(t, err)
	_, err = cached.Load(ctx, "notes", id)
	require.NoError(t, err)
	require.Equal(t, 1, base.loads)

	ok, err := cached.Clear(ctx, "notes")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = cached.Load(ctx, "notes", id)
	assert.True(t, IsNotFound(err))
}

func TestCachedAdapter_Unwrap(t *testing.T) {
	cached, base := newTestCachedAdapter(t)
	assert.Same(t, Adapter(base), cached.Unwrap())
	assert.Equal(t, AdapterJSON, cached.Name())
}
