package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiancehq/radiance/pkg/migration"
	"github.com/radiancehq/radiance/pkg/storage"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.JSONPath = t.TempDir()
	cfg.MetricsEnabled = false

	factory, err := storage.NewFactory(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { factory.Close() })

	return NewServer(factory, opts...)
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	rec, payload := doJSON(t, s, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", payload["status"])
}

func TestServer_StorageStatus(t *testing.T) {
	s := newTestServer(t)

	rec, payload := doJSON(t, s, "GET", "/admin/storage/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "json", payload["adapter"])
	assert.NotContains(t, payload, "read_from_primary", "dual-write fields only appear in dual mode")
}

func TestServer_StorageSwap(t *testing.T) {
	s := newTestServer(t)

	t.Run("swaps to a valid kind", func(t *testing.T) {
		rec, payload := doJSON(t, s, "POST", "/admin/storage/swap", `{"adapter":"json"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "json", payload["previous"])
	})

	t.Run("rejects missing adapter", func(t *testing.T) {
		rec, _ := doJSON(t, s, "POST", "/admin/storage/swap", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unknown adapter", func(t *testing.T) {
		rec, payload := doJSON(t, s, "POST", "/admin/storage/swap", `{"adapter":"mongo"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, payload["error"], "invalid storage adapter")
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		rec, _ := doJSON(t, s, "POST", "/admin/storage/swap", `{broken`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_ReadCutover(t *testing.T) {
	s := newTestServer(t)

	// The json factory has no dual-write adapter to cut over.
	rec, payload := doJSON(t, s, "POST", "/admin/storage/read-cutover", `{"read_from_primary":false}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, payload["error"], "not in dual-write mode")
}

func TestServer_RunMigration(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t)
		rec, _ := doJSON(t, s, "POST", "/admin/migrations", `{"collection":"affirmations"}`)
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("requires a collection", func(t *testing.T) {
		s := newTestServer(t, WithMigrate(func(*http.Request, string, migration.RunOptions) (*migration.Report, error) {
			t.Fatal("migrate must not be called")
			return nil, nil
		}))
		rec, _ := doJSON(t, s, "POST", "/admin/migrations", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("runs and reports", func(t *testing.T) {
		var gotCollection string
		var gotOpts migration.RunOptions
		s := newTestServer(t, WithMigrate(func(_ *http.Request, collection string, opts migration.RunOptions) (*migration.Report, error) {
			gotCollection = collection
			gotOpts = opts
			return &migration.Report{Collection: collection, Total: 3, Success: 3, DryRun: opts.DryRun}, nil
		}))

		rec, payload := doJSON(t, s, "POST", "/admin/migrations",
			`{"collection":"affirmations","dry_run":true}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "affirmations", gotCollection)
		assert.True(t, gotOpts.DryRun)
		assert.Equal(t, float64(3), payload["total"])
	})
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
