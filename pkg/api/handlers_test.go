package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiancehq/radiance/pkg/middleware"
	"github.com/radiancehq/radiance/pkg/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.JSONPath = t.TempDir()
	cfg.MetricsEnabled = false

	factory, err := storage.NewFactory(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { factory.Close() })

	return NewServer(factory, nil)
}

func doRequest(t *testing.T, s *Server, method, path, body, org string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if org != "" {
		req.Header.Set(middleware.HeaderOrganizationID, org)
		req.Header.Set(middleware.HeaderUserID, "user-1")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestServer_RequiresTenant(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/collections/notes", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_CreateAndGet(t *testing.T) {
	s := newTestServer(t)

	rec, created := doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"hello"}`, "org-a")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "hello", created["title"])
	assert.Equal(t, "org-a", created["organization_id"])
	assert.Equal(t, "user-1", created["created_by"])
	id := created["id"].(string)
	require.NotEmpty(t, id)

	rec, doc := doRequest(t, s, "GET", "/v1/collections/notes/"+id, "", "org-a")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", doc["title"])
}

func TestServer_ValidationErrors(t *testing.T) {
	s := newTestServer(t)

	t.Run("schema violation", func(t *testing.T) {
		rec, payload := doRequest(t, s, "POST", "/v1/collections/affirmations", `{"mood":"calm"}`, "org-a")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, payload["error"], "requires field")
	})

	t.Run("malformed body", func(t *testing.T) {
		rec, _ := doRequest(t, s, "POST", "/v1/collections/notes", `{broken`, "org-a")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_TenantIsolation(t *testing.T) {
	s := newTestServer(t)

	_, created := doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"secret"}`, "org-a")
	id := created["id"].(string)

	rec, _ := doRequest(t, s, "GET", "/v1/collections/notes/"+id, "", "org-b")
	assert.Equal(t, http.StatusNotFound, rec.Code, "foreign documents look absent")

	rec, _ = doRequest(t, s, "DELETE", "/v1/collections/notes/"+id, "", "org-b")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doRequest(t, s, "GET", "/v1/collections/notes/"+id, "", "org-a")
	assert.Equal(t, http.StatusOK, rec.Code, "owner still sees the document")
}

func TestServer_ListAndCount(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 3; i++ {
		status := "draft"
		if i == 2 {
			status = "published"
		}
		body := fmt.Sprintf(`{"title":"n%d","status":%q}`, i, status)
		rec, _ := doRequest(t, s, "POST", "/v1/collections/notes", body, "org-a")
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"other"}`, "org-b")

	t.Run("list is tenant-scoped", func(t *testing.T) {
		rec, payload := doRequest(t, s, "GET", "/v1/collections/notes", "", "org-a")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(3), payload["count"])
	})

	t.Run("query parameters filter", func(t *testing.T) {
		rec, payload := doRequest(t, s, "GET", "/v1/collections/notes?status=draft", "", "org-a")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(2), payload["count"])
	})

	t.Run("pagination", func(t *testing.T) {
		rec, payload := doRequest(t, s, "GET", "/v1/collections/notes?limit=2", "", "org-a")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(2), payload["count"])
	})

	t.Run("count endpoint", func(t *testing.T) {
		rec, payload := doRequest(t, s, "GET", "/v1/collections/notes/count?status=published", "", "org-a")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), payload["count"])
	})
}

func TestServer_UpdateDocument(t *testing.T) {
	s := newTestServer(t)

	_, created := doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"v1"}`, "org-a")
	id := created["id"].(string)

	rec, doc := doRequest(t, s, "PATCH", "/v1/collections/notes/"+id, `{"title":"v2"}`, "org-a")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v2", doc["title"])
	assert.Equal(t, created["created_at"], doc["created_at"])

	rec, _ = doRequest(t, s, "PATCH", "/v1/collections/notes/absent", `{"title":"x"}`, "org-a")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DeleteAndClear(t *testing.T) {
	s := newTestServer(t)

	_, created := doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"doomed"}`, "org-a")
	id := created["id"].(string)

	rec, _ := doRequest(t, s, "DELETE", "/v1/collections/notes/"+id, "", "org-a")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = doRequest(t, s, "DELETE", "/v1/collections/notes/"+id, "", "org-a")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"a"}`, "org-a")
	doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"b"}`, "org-b")

	rec, _ = doRequest(t, s, "DELETE", "/v1/collections/notes", "", "org-a")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, payload := doRequest(t, s, "GET", "/v1/collections/notes", "", "org-a")
	assert.Equal(t, float64(0), payload["count"])

	_, payload = doRequest(t, s, "GET", "/v1/collections/notes", "", "org-b")
	assert.Equal(t, float64(1), payload["count"], "clear does not cross tenants")
}

func TestServer_Search(t *testing.T) {
	s := newTestServer(t)

	doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"morning gratitude"}`, "org-a")
	doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"evening reflection"}`, "org-a")
	doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"morning gratitude"}`, "org-b")

	rec, payload := doRequest(t, s, "POST", "/v1/collections/notes/search",
		`{"query":"gratitude","limit":10}`, "org-a")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), payload["count"], "search stays within the tenant")
}

func TestServer_ReplaceDocument(t *testing.T) {
	s := newTestServer(t)

	_, created := doRequest(t, s, "POST", "/v1/collections/notes", `{"title":"v1","mood":"calm"}`, "org-a")
	id := created["id"].(string)

	rec, doc := doRequest(t, s, "PUT", "/v1/collections/notes/"+id, `{"title":"v2"}`, "org-a")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v2", doc["title"])
	assert.NotContains(t, doc, "mood", "PUT replaces the whole document")
}
