package storage

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockAdapter(t *testing.T) (*SupabaseAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSupabaseAdapterFromDB(db), mock
}

func typedRows(id, org string) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "organization_id", "project_id", "created_by", "updated_by", "created_at", "updated_at", "data",
	}).AddRow(id, org, "proj-1", "user-1", nil, now, now, []byte(`{"text":"you are enough"}`))
}

func TestSupabaseAdapter_LoadTyped(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectQuery("SELECT id, organization_id, project_id, created_by, updated_by, created_at, updated_at, data").
			WithArgs("a1").
			WillReturnRows(typedRows("a1", "org-a"))

		doc, err := a.Load(context.Background(), "affirmations", "a1")
		require.NoError(t, err)
		assert.Equal(t, "a1", doc.ID())
		assert.Equal(t, "org-a", doc["organization_id"])
		assert.Equal(t, "proj-1", doc["project_id"])
		assert.Equal(t, "user-1", doc["created_by"])
		assert.NotContains(t, doc, "updated_by", "NULL columns stay absent")
		assert.Equal(t, "you are enough", doc["text"], "payload fields are merged back in")
		assert.Equal(t, "2026-03-01T12:00:00Z", doc["created_at"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row is ErrNotFound", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectQuery("SELECT id, organization_id").
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		_, err := a.Load(context.Background(), "affirmations", "nope")
		assert.True(t, IsNotFound(err))
	})

	t.Run("network failure is ErrUnavailable", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectQuery("SELECT id, organization_id").
			WithArgs("a1").
			WillReturnError(&net.OpError{Op: "dial", Err: errors.New("connection refused")})

		_, err := a.Load(context.Background(), "affirmations", "a1")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestSupabaseAdapter_LoadEnvelope(t *testing.T) {
	a, mock := setupMockAdapter(t)
	mock.ExpectQuery("SELECT data FROM generic_storage").
		WithArgs("scratch", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"id":"s1","note":"hi"}`)))

	doc, err := a.Load(context.Background(), "scratch", "s1")
	require.NoError(t, err)
	assert.Equal(t, "hi", doc["note"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSupabaseAdapter_SaveTyped(t *testing.T) {
	t.Run("upserts into the typed table", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectExec("INSERT INTO affirmations").
			WithArgs("a1", "org-a", "proj-1", "user-1", "",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		id, err := a.Save(context.Background(), "affirmations", Document{
			"text":            "you are enough",
			"organization_id": "org-a",
			"project_id":      "proj-1",
			"created_by":      "user-1",
		}, "a1")
		require.NoError(t, err)
		assert.Equal(t, "a1", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("generates an id when none provided", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectExec("INSERT INTO affirmations").
			WillReturnResult(sqlmock.NewResult(0, 1))

		id, err := a.Save(context.Background(), "affirmations", Document{
			"text":            "generated",
			"organization_id": "org-a",
		}, "")
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	})

	t.Run("validation failures never reach the database", func(t *testing.T) {
		a, mock := setupMockAdapter(t)

		_, err := a.Save(context.Background(), "affirmations", Document{"mood": "calm"}, "")
		assert.ErrorIs(t, err, ErrInvalidDocument)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSupabaseAdapter_SaveEnvelope(t *testing.T) {
	t.Run("writes envelope row", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectExec("INSERT INTO generic_storage").
			WithArgs("s1", "scratch", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		id, err := a.Save(context.Background(), "scratch", Document{"note": "hi"}, "s1")
		require.NoError(t, err)
		assert.Equal(t, "s1", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict clause keeps stored audit fields", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectExec("jsonb_build_object").
			WithArgs("s1", "scratch", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		_, err := a.Save(context.Background(), "scratch", Document{
			"note":       "hi again",
			"created_at": "2026-08-21T10:00:00Z",
		}, "s1")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSupabaseAdapter_Update(t *testing.T) {
	t.Run("load-merge-upsert", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectQuery("SELECT id, organization_id").
			WithArgs("a1").
			WillReturnRows(typedRows("a1", "org-a"))
		mock.ExpectExec("INSERT INTO affirmations").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := a.Update(context.Background(), "affirmations", "a1", Document{"text": "revised"})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing document yields false without error", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectQuery("SELECT id, organization_id").
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		ok, err := a.Update(context.Background(), "affirmations", "nope", Document{"text": "x"})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSupabaseAdapter_Delete(t *testing.T) {
	t.Run("reports rows removed", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectExec("DELETE FROM affirmations WHERE id").
			WithArgs("a1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := a.Delete(context.Background(), "affirmations", "a1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing row reports false", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectExec("DELETE FROM affirmations WHERE id").
			WithArgs("nope").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := a.Delete(context.Background(), "affirmations", "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("envelope delete scopes by collection", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectExec("DELETE FROM generic_storage WHERE storage_type").
			WithArgs("scratch", "s1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := a.Delete(context.Background(), "scratch", "s1")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestSupabaseAdapter_Count(t *testing.T) {
	t.Run("system fields hit typed columns, others the payload", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		// Filter keys are sorted, so the arg order is deterministic.
		mock.ExpectQuery("SELECT COUNT").
			WithArgs("org-a", "status", "draft").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		n, err := a.Count(context.Background(), "affirmations", map[string]any{
			"status":          "draft",
			"organization_id": "org-a",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("envelope count scopes by collection", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectQuery("SELECT COUNT").
			WithArgs("scratch").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

		n, err := a.Count(context.Background(), "scratch", nil)
		require.NoError(t, err)
		assert.Equal(t, 7, n)
	})
}

func TestSupabaseAdapter_List(t *testing.T) {
	a, mock := setupMockAdapter(t)
	mock.ExpectQuery("SELECT id, organization_id").
		WithArgs("org-a", 100, 0).
		WillReturnRows(typedRows("a1", "org-a"))

	docs, err := a.List(context.Background(), "affirmations", ListOptions{
		Filters: map[string]any{"organization_id": "org-a"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a1", docs[0].ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSupabaseAdapter_Exists(t *testing.T) {
	a, mock := setupMockAdapter(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := a.Exists(context.Background(), "affirmations", "a1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSupabaseAdapter_Clear(t *testing.T) {
	t.Run("typed table", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectExec("DELETE FROM affirmations").
			WillReturnResult(sqlmock.NewResult(0, 10))

		ok, err := a.Clear(context.Background(), "affirmations")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("envelope only drops the collection slice", func(t *testing.T) {
		a, mock := setupMockAdapter(t)
		mock.ExpectExec("DELETE FROM generic_storage WHERE storage_type").
			WithArgs("scratch").
			WillReturnResult(sqlmock.NewResult(0, 3))

		ok, err := a.Clear(context.Background(), "scratch")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestSupabaseAdapter_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	a := NewSupabaseAdapterFromDB(db)

	mock.ExpectPing()
	assert.NoError(t, a.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	assert.ErrorIs(t, a.HealthCheck(context.Background()), ErrUnavailable)
}
