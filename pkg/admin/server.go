// Package admin exposes the operational HTTP surface of the storage
// layer: health, metrics, adapter status, and the explicitly-gated
// migration controls (adapter swap, read cutover, migration runs).
//
// This is deliberately the only way to change storage routing at
// runtime. Application code receives the adapter handle by injection
// and has no way to reconfigure it.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/radiancehq/radiance/pkg/middleware"
	"github.com/radiancehq/radiance/pkg/migration"
	"github.com/radiancehq/radiance/pkg/storage"
)

// MigrateFunc runs a migration for one collection. Wired in by the
// process entrypoint, which knows the source/target pairing for the
// current migration window.
type MigrateFunc func(r *http.Request, collection string, opts migration.RunOptions) (*migration.Report, error)

// Server is the admin HTTP API.
type Server struct {
	factory *storage.Factory
	router  *mux.Router
	migrate MigrateFunc
	log     *logrus.Entry
}

// Option customizes the admin server.
type Option func(*Server)

// WithMigrate enables the POST /admin/migrations endpoint.
func WithMigrate(fn MigrateFunc) Option {
	return func(s *Server) { s.migrate = fn }
}

// WithLogger overrides the default logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Server) { s.log = log.WithField("component", "admin") }
}

// NewServer creates the admin API server.
func NewServer(factory *storage.Factory, opts ...Option) *Server {
	s := &Server{
		factory: factory,
		router:  mux.NewRouter(),
		log:     logrus.StandardLogger().WithField("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestLogging(s.log.Logger))

	s.router.HandleFunc("/healthz", s.health).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.router.HandleFunc("/admin/storage/status", s.storageStatus).Methods("GET")
	s.router.HandleFunc("/admin/storage/swap", s.storageSwap).Methods("POST")
	s.router.HandleFunc("/admin/storage/read-cutover", s.readCutover).Methods("POST")
	s.router.HandleFunc("/admin/migrations", s.runMigration).Methods("POST")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// health handles GET /healthz.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.factory.Adapter().HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// storageStatus handles GET /admin/storage/status.
func (s *Server) storageStatus(w http.ResponseWriter, r *http.Request) {
	adapter := s.factory.Adapter()
	status := map[string]any{
		"adapter": adapter.Name(),
	}
	if dual, ok := storage.AsDualWrite(adapter); ok {
		status["primary"] = dual.Primary().Name()
		status["secondary"] = dual.Secondary().Name()
		status["read_from_primary"] = dual.ReadFromPrimary()
	}
	writeJSON(w, http.StatusOK, status)
}

// storageSwap handles POST /admin/storage/swap. This is the controlled
// entry point for changing backends during a migration window.
func (s *Server) storageSwap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Adapter string `json:"adapter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Adapter == "" {
		writeError(w, http.StatusBadRequest, "adapter is required")
		return
	}

	previous, err := s.factory.Swap(req.Adapter)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.log.WithFields(logrus.Fields{
		"from": previous.Name(),
		"to":   req.Adapter,
	}).Warn("storage adapter swapped via admin API")

	writeJSON(w, http.StatusOK, map[string]string{
		"previous": previous.Name(),
		"adapter":  req.Adapter,
	})
}

// readCutover handles POST /admin/storage/read-cutover: flips which
// side of a dual-write composition serves reads.
func (s *Server) readCutover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReadFromPrimary bool `json:"read_from_primary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dual, ok := storage.AsDualWrite(s.factory.Adapter())
	if !ok {
		writeError(w, http.StatusConflict, "active adapter is not in dual-write mode")
		return
	}
	dual.SetReadFromPrimary(req.ReadFromPrimary)

	writeJSON(w, http.StatusOK, map[string]any{
		"read_from_primary": req.ReadFromPrimary,
	})
}

// runMigration handles POST /admin/migrations.
func (s *Server) runMigration(w http.ResponseWriter, r *http.Request) {
	if s.migrate == nil {
		writeError(w, http.StatusNotImplemented, "migration is not configured on this instance")
		return
	}

	var req struct {
		Collection string `json:"collection"`
		DryRun     bool   `json:"dry_run"`
		Resume     bool   `json:"resume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Collection == "" {
		writeError(w, http.StatusBadRequest, "collection is required")
		return
	}

	report, err := s.migrate(r, req.Collection, migration.RunOptions{
		DryRun: req.DryRun,
		Resume: req.Resume,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
