package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_Clone(t *testing.T) {
	doc := Document{"a": 1, "b": "two"}
	clone := doc.Clone()
	clone["a"] = 99

	assert.Equal(t, 1, doc["a"], "clone does not alias the original")
	assert.Equal(t, "two", clone["b"])

	var nilDoc Document
	assert.NotNil(t, nilDoc.Clone())
}

func TestDocument_Fields(t *testing.T) {
	doc := Document{"id": "d1", "n": 5}
	assert.Equal(t, "d1", doc.ID())
	assert.Equal(t, "", doc.StringField("n"), "non-string fields read as empty")
	assert.Equal(t, "", doc.StringField("missing"))
}

func TestIsSystemField(t *testing.T) {
	assert.True(t, IsSystemField("id"))
	assert.True(t, IsSystemField("organization_id"))
	assert.True(t, IsSystemField("updated_by"))
	assert.False(t, IsSystemField("title"))
}

func TestEqualValues(t *testing.T) {
	// JSON decoding turns numbers into float64; filters often carry ints.
	assert.True(t, equalValues(float64(5), 5))
	assert.True(t, equalValues(5, int64(5)))
	assert.False(t, equalValues(float64(5), 6))
	assert.False(t, equalValues(float64(5), "5"))

	assert.True(t, equalValues("x", "x"))
	assert.False(t, equalValues("x", "y"))
	assert.True(t, equalValues(true, true))
	assert.False(t, equalValues(true, false))
	assert.True(t, equalValues(nil, nil))
	assert.False(t, equalValues(nil, "x"))
}

func TestMatchesFilters(t *testing.T) {
	doc := Document{"status": "draft", "rank": float64(3)}

	assert.True(t, matchesFilters(doc, nil))
	assert.True(t, matchesFilters(doc, map[string]any{"status": "draft"}))
	assert.True(t, matchesFilters(doc, map[string]any{"status": "draft", "rank": 3}))
	assert.False(t, matchesFilters(doc, map[string]any{"status": "published"}))
	assert.False(t, matchesFilters(doc, map[string]any{"missing": "x"}))
}

func TestMatchesQuery(t *testing.T) {
	doc := Document{"caption": "Morning Gratitude", "rank": 3}

	assert.True(t, matchesQuery(doc, "gratitude"))
	assert.True(t, matchesQuery(doc, "MORNING"))
	assert.False(t, matchesQuery(doc, "evening"))
	assert.False(t, matchesQuery(doc, "3"), "non-string fields are not searched")
}

func TestApplyListOptions(t *testing.T) {
	docs := []Document{
		{"id": "c", "rank": 3},
		{"id": "a", "rank": 1},
		{"id": "b", "rank": 2},
	}

	t.Run("orders ascending", func(t *testing.T) {
		out := applyListOptions(docs, ListOptions{OrderBy: "rank"})
		assert.Equal(t, "a", out[0].ID())
		assert.Equal(t, "c", out[2].ID())
	})

	t.Run("orders descending", func(t *testing.T) {
		out := applyListOptions(docs, ListOptions{OrderBy: "rank", OrderDesc: true})
		assert.Equal(t, "c", out[0].ID())
	})

	t.Run("paginates", func(t *testing.T) {
		out := applyListOptions(docs, ListOptions{OrderBy: "id", Limit: 1, Offset: 1})
		assert.Len(t, out, 1)
		assert.Equal(t, "b", out[0].ID())
	})

	t.Run("offset past end", func(t *testing.T) {
		out := applyListOptions(docs, ListOptions{Offset: 10})
		assert.Empty(t, out)
	})

	t.Run("filters before paginating", func(t *testing.T) {
		out := applyListOptions(docs, ListOptions{
			Filters: map[string]any{"rank": 2},
		})
		assert.Len(t, out, 1)
		assert.Equal(t, "b", out[0].ID())
	})
}
