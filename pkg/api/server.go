package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/orgscope/pkg/authz"
	"github.com/platinummonkey/orgscope/pkg/contextkeys"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/httputil"
	"github.com/sirupsen/logrus"
)

// UserIDHeader carries the authenticated caller's user ID. Authentication
// happens upstream; the gateway sets this header.
const UserIDHeader = "X-User-ID"

// maxBodyBytes limits request bodies
const maxBodyBytes = 1 << 20

// Server represents our API server
type Server struct {
	engine *authz.Engine
	router *mux.Router
	v1     *mux.Router
	log    *logrus.Logger
}

// NewServer creates a new API server
func NewServer(engine *authz.Engine, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}

	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		log:    log,
	}

	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.RecoveryMiddleware(log))
	s.router.Use(httputil.LoggingMiddleware(log))

	s.v1 = s.router.PathPrefix("/v1").Subrouter()
	s.v1.Use(httputil.ContentTypeMiddleware)
	s.v1.Use(httputil.MaxBytesMiddleware(maxBodyBytes))
	s.v1.Use(s.identityMiddleware)

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Caller context and scope
	s.v1.HandleFunc("/me/context", s.getMyContext).Methods(http.MethodGet)
	s.v1.HandleFunc("/scope/{resource}", s.getScope).Methods(http.MethodGet)

	// Scoped reads
	s.v1.HandleFunc("/units", s.listUnits).Methods(http.MethodGet)
	s.v1.HandleFunc("/users", s.listUsers).Methods(http.MethodGet)

	// Permission checks without side effects
	s.v1.HandleFunc("/authorize/users/{id}", s.authorizeUser).Methods(http.MethodPost)
	s.v1.HandleFunc("/authorize/units/{id}", s.authorizeUnit).Methods(http.MethodPost)
	s.v1.HandleFunc("/authorize/organizations", s.authorizeCreateOrganization).Methods(http.MethodPost)

	// User mutations
	s.v1.HandleFunc("/users/{id}", s.updateUser).Methods(http.MethodPatch)
	s.v1.HandleFunc("/users/{id}", s.deleteUser).Methods(http.MethodDelete)
	s.v1.HandleFunc("/users/{id}/positions/{position_id}/activate", s.activatePosition).Methods(http.MethodPost)

	// Unit mutations
	s.v1.HandleFunc("/units/{id}", s.deleteUnit).Methods(http.MethodDelete)
	s.v1.HandleFunc("/units/{id}/move", s.moveUnit).Methods(http.MethodPost)
	s.v1.HandleFunc("/units/{id}/manager", s.assignManager).Methods(http.MethodPut)

	// Operations
	s.v1.HandleFunc("/cache/stats", s.cacheStats).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Use adds middleware that runs on every route
func (s *Server) Use(mw ...mux.MiddlewareFunc) {
	s.router.Use(mw...)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers unauthenticated routes such as health checks
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// Handle registers an unauthenticated handler outside /v1
func (s *Server) Handle(path string, handler http.Handler) {
	s.router.Handle(path, handler)
}

// identityMiddleware resolves the caller's context from UserIDHeader. Callers
// without an active position are rejected before any handler runs.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" {
			httputil.WriteUnauthorized(w, "missing "+UserIDHeader+" header")
			return
		}

		ctx := contextkeys.WithUserID(r.Context(), userID)
		uctx, err := s.engine.Context(ctx, userID)
		if err != nil {
			if hierarchy.IsNotFound(err) {
				httputil.WriteUnauthorized(w, "unknown user")
				return
			}
			s.writeError(w, r.WithContext(ctx), err)
			return
		}

		ctx = contextkeys.WithUserContext(ctx, uctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// caller returns the context resolved by identityMiddleware
func caller(r *http.Request) hierarchy.UserContext {
	uctx, _ := contextkeys.GetUserContext(r.Context())
	return uctx
}
