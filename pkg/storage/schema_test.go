package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaFor(t *testing.T) {
	s, ok := SchemaFor("affirmations")
	require.True(t, ok)
	assert.Equal(t, "affirmations", s.Table)
	assert.Contains(t, s.Required, "text")

	_, ok = SchemaFor("scratch")
	assert.False(t, ok)
}

func TestKnownCollections(t *testing.T) {
	names := KnownCollections()
	assert.ElementsMatch(t, []string{"affirmations", "instagram_posts", "analytics_events"}, names)
}

func TestValidateDocument(t *testing.T) {
	t.Run("unknown collection accepts anything", func(t *testing.T) {
		assert.NoError(t, ValidateDocument("scratch", Document{}))
	})

	t.Run("missing required field", func(t *testing.T) {
		err := ValidateDocument("instagram_posts", Document{"hashtags": []string{"#x"}})
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})

	t.Run("empty required field", func(t *testing.T) {
		err := ValidateDocument("analytics_events", Document{"event_type": ""})
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})

	t.Run("valid document", func(t *testing.T) {
		assert.NoError(t, ValidateDocument("instagram_posts", Document{"caption": "hello"}))
	})

	t.Run("non-string required field counts as present", func(t *testing.T) {
		assert.NoError(t, ValidateDocument("analytics_events", Document{"event_type": 3}))
	})
}
