// Package api exposes the tenant-facing document API. Every data route
// runs behind the tenant middleware and operates through a scoped
// adapter, so handlers cannot reach another organization's documents
// even by mistake.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/radiancehq/radiance/pkg/middleware"
	"github.com/radiancehq/radiance/pkg/storage"
	"github.com/radiancehq/radiance/pkg/tenant"
)

// Server represents the document API server.
type Server struct {
	factory *storage.Factory
	router  *mux.Router
	log     *logrus.Logger
}

// NewServer creates a new document API server.
func NewServer(factory *storage.Factory, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		factory: factory,
		router:  mux.NewRouter(),
		log:     log,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.TenantContext)
	s.router.Use(middleware.RequestLogging(s.log))

	v1 := s.router.PathPrefix("/v1/collections").Subrouter()
	v1.Use(middleware.RequireTenant)

	v1.HandleFunc("/{collection}", s.createDocument).Methods("POST")
	v1.HandleFunc("/{collection}", s.listDocuments).Methods("GET")
	v1.HandleFunc("/{collection}", s.clearCollection).Methods("DELETE")
	v1.HandleFunc("/{collection}/count", s.countDocuments).Methods("GET")
	v1.HandleFunc("/{collection}/search", s.searchDocuments).Methods("POST")
	v1.HandleFunc("/{collection}/{id}", s.getDocument).Methods("GET")
	v1.HandleFunc("/{collection}/{id}", s.updateDocument).Methods("PATCH")
	v1.HandleFunc("/{collection}/{id}", s.replaceDocument).Methods("PUT")
	v1.HandleFunc("/{collection}/{id}", s.deleteDocument).Methods("DELETE")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// scoped builds the tenant-scoped adapter for a request.
func (s *Server) scoped(r *http.Request) (*storage.ScopedAdapter, error) {
	tc, _ := tenant.FromContext(r.Context())
	return storage.NewScopedAdapter(s.factory.Adapter(), tc)
}
