package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/radiancehq/radiance/pkg/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeStorageError maps the storage error taxonomy onto HTTP statuses.
func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case storage.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
	case errors.Is(err, storage.ErrInvalidDocument):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrMissingOrganization):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization context is required"})
	case storage.IsUnavailable(err):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage backend unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func decodeDocument(r *http.Request) (storage.Document, error) {
	var doc storage.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// createDocument handles POST /v1/collections/{collection}.
func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	scoped, err := s.scoped(r)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	doc, err := decodeDocument(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	collection := mux.Vars(r)["collection"]
	id, err := scoped.Save(r.Context(), collection, doc, "")
	if err != nil {
		writeStorageError(w, err)
		return
	}

	created, err := scoped.Load(r.Context(), collection, id)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// getDocument handles GET /v1/collections/{collection}/{id}.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	scoped, err := s.scoped(r)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	vars := mux.Vars(r)
	doc, err := scoped.Load(r.Context(), vars["collection"], vars["id"])
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// listDocuments handles GET /v1/collections/{collection}. Pagination and
// ordering come from query parameters; every other parameter becomes an
// exact-match filter.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	scoped, err := s.scoped(r)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	opts := storage.ListOptions{Filters: map[string]any{}}
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		switch key {
		case "limit":
			opts.Limit, _ = strconv.Atoi(value)
		case "offset":
			opts.Offset, _ = strconv.Atoi(value)
		case "order_by":
			opts.OrderBy = value
		case "order":
			opts.OrderDesc = value == "desc"
		default:
			opts.Filters[key] = value
		}
	}

	docs, err := scoped.List(r.Context(), mux.Vars(r)["collection"], opts)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if docs == nil {
		docs = []storage.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

// countDocuments handles GET /v1/collections/{collection}/count.
func (s *Server) countDocuments(w http.ResponseWriter, r *http.Request) {
	scoped, err := s.scoped(r)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	filters := map[string]any{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			filters[key] = values[0]
		}
	}

	n, err := scoped.Count(r.Context(), mux.Vars(r)["collection"], filters)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// updateDocument handles PATCH /v1/collections/{collection}/{id} with
// partial top-level merge semantics.
func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	scoped, err := s.scoped(r)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	partial, err := decodeDocument(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	vars := mux.Vars(r)
	ok, err := scoped.Update(r.Context(), vars["collection"], vars["id"], partial)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
		return
	}

	doc, err := scoped.Load(r.Context(), vars["collection"], vars["id"])
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// replaceDocument handles PUT /v1/collections/{collection}/{id}: a full
// overwrite at a known id.
func (s *Server) replaceDocument(w http.ResponseWriter, r *http.Request) {
	scoped, err := s.scoped(r)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	doc, err := decodeDocument(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	vars := mux.Vars(r)
	if _, err := scoped.Save(r.Context(), vars["collection"], doc, vars["id"]); err != nil {
		writeStorageError(w, err)
		return
	}

	saved, err := scoped.Load(r.Context(), vars["collection"], vars["id"])
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// deleteDocument handles DELETE /v1/collections/{collection}/{id}.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	scoped, err := s.scoped(r)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	vars := mux.Vars(r)
	ok, err := scoped.Delete(r.Context(), vars["collection"], vars["id"])
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearCollection handles DELETE /v1/collections/{collection}: removes
// every document the tenant owns in the collection.
func (s *Server) clearCollection(w http.ResponseWriter, r *http.Request) {
	scoped, err := s.scoped(r)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	if _, err := scoped.Clear(r.Context(), mux.Vars(r)["collection"]); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchDocuments handles POST /v1/collections/{collection}/search.
func (s *Server) searchDocuments(w http.ResponseWriter, r *http.Request) {
	scoped, err := s.scoped(r)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	var req struct {
		Query   string         `json:"query"`
		Filters map[string]any `json:"filters"`
		Limit   int            `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	docs, err := scoped.Search(r.Context(), mux.Vars(r)["collection"], req.Query, req.Filters, req.Limit)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if docs == nil {
		docs = []storage.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}
