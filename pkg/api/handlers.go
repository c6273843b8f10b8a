package api

import (
	"net/http"

	"github.com/platinummonkey/orgscope/pkg/authz"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/httputil"
	"github.com/platinummonkey/orgscope/pkg/permission"
	"github.com/platinummonkey/orgscope/pkg/scopedcache"
)

// getMyContext handles GET /v1/me/context
func (s *Server) getMyContext(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, caller(r))
}

// getScope handles GET /v1/scope/{resource}
func (s *Server) getScope(w http.ResponseWriter, r *http.Request) {
	resource, err := httputil.ParsePathString(r, "resource")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	kind := hierarchy.ResourceKind(resource)
	if !kind.Valid() {
		httputil.WriteBadRequest(w, "unknown resource: "+resource)
		return
	}

	view, err := s.engine.Scope(r.Context(), caller(r), kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

// parseQuery reads pagination, sorting and the given filters
func parseQuery(r *http.Request, resource hierarchy.ResourceKind, filters ...string) (authz.Query, error) {
	page, err := httputil.ParseQueryInt(r, "page", 1)
	if err != nil {
		return authz.Query{}, err
	}
	perPage, err := httputil.ParseQueryInt(r, "per_page", 0)
	if err != nil {
		return authz.Query{}, err
	}
	return authz.Query{
		Resource: resource,
		Filters:  httputil.QueryFilters(r, filters...),
		Page:     page,
		PerPage:  perPage,
		Sort:     r.URL.Query().Get("sort"),
	}, nil
}

// listUnits handles GET /v1/units?resource=stores
func (s *Server) listUnits(w http.ResponseWriter, r *http.Request) {
	kind := hierarchy.ResourceUnits
	if resource := r.URL.Query().Get("resource"); resource != "" {
		kind = hierarchy.ResourceKind(resource)
	}
	if !authz.IsUnitResource(kind) {
		httputil.WriteBadRequest(w, "not a unit resource: "+string(kind))
		return
	}

	q, err := parseQuery(r, kind, scopedcache.FilterOrganization, scopedcache.FilterUnit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	units, err := s.engine.ListUnits(r.Context(), caller(r), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if units == nil {
		units = []hierarchy.OrgUnit{}
	}
	httputil.WriteSuccess(w, units)
}

// listUsers handles GET /v1/users
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r, hierarchy.ResourceUsers,
		scopedcache.FilterOrganization, scopedcache.FilterUnit, scopedcache.FilterRole)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	users, err := s.engine.ListUsers(r.Context(), caller(r), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if users == nil {
		users = []authz.UserRow{}
	}
	httputil.WriteSuccess(w, users)
}

var userOps = map[permission.UserOp]struct{}{
	permission.OpCreate:             {},
	permission.OpUpdate:             {},
	permission.OpDelete:             {},
	permission.OpAssign:             {},
	permission.OpChangeRole:         {},
	permission.OpChangeStatus:       {},
	permission.OpChangeOrganization: {},
}

var unitOps = map[permission.UnitOp]struct{}{
	permission.UnitCreate:        {},
	permission.UnitUpdate:        {},
	permission.UnitDelete:        {},
	permission.UnitAssignManager: {},
}

// authorizeUserRequest names either an operation or the fields of an update
type authorizeUserRequest struct {
	Operation permission.UserOp `json:"operation,omitempty"`
	Fields    []string          `json:"fields,omitempty"`
}

// authorizeUser handles POST /v1/authorize/users/{id}
func (s *Server) authorizeUser(w http.ResponseWriter, r *http.Request) {
	targetID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var req authorizeUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if _, ok := userOps[req.Operation]; !ok && len(req.Fields) == 0 {
		httputil.WriteBadRequest(w, "operation or fields required")
		return
	}

	target, err := s.engine.TargetContext(r.Context(), targetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var d permission.Decision
	if len(req.Fields) > 0 {
		d = s.engine.AuthorizeFields(r.Context(), caller(r), target, req.Fields)
	} else {
		d = s.engine.AuthorizeUser(r.Context(), caller(r), target, req.Operation)
	}
	httputil.WriteSuccess(w, d)
}

type authorizeUnitRequest struct {
	Operation permission.UnitOp `json:"operation"`
}

// authorizeUnit handles POST /v1/authorize/units/{id}
func (s *Server) authorizeUnit(w http.ResponseWriter, r *http.Request) {
	unitID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var req authorizeUnitRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if _, ok := unitOps[req.Operation]; !ok {
		httputil.WriteBadRequest(w, "unknown unit operation: "+string(req.Operation))
		return
	}

	d, err := s.engine.AuthorizeUnit(r.Context(), caller(r), unitID, req.Operation)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

// authorizeCreateOrganization handles POST /v1/authorize/organizations
func (s *Server) authorizeCreateOrganization(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.engine.AuthorizeCreateOrganization(r.Context(), caller(r)))
}

// cacheStats handles GET /v1/cache/stats
func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	if caller(r).Role != hierarchy.RoleMaster {
		httputil.WriteForbidden(w, "cache statistics require master")
		return
	}
	httputil.WriteSuccess(w, s.engine.Cache().Stats())
}
