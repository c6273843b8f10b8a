package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/authz"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/httputil"
	"github.com/platinummonkey/orgscope/pkg/orgtree"
	"github.com/platinummonkey/orgscope/pkg/permission"
	"github.com/platinummonkey/orgscope/pkg/scopedcache"
	"github.com/platinummonkey/orgscope/pkg/usercontext"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore serves users and positions from maps
type memoryStore struct {
	users     map[string]hierarchy.User
	positions map[string]hierarchy.Position
}

func (s *memoryStore) GetUser(ctx context.Context, userID string) (*hierarchy.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, hierarchy.ErrUserNotFound
	}
	return &u, nil
}

func (s *memoryStore) ActivePositions(ctx context.Context, userID string) ([]hierarchy.Position, error) {
	if p, ok := s.positions[userID]; ok {
		return []hierarchy.Position{p}, nil
	}
	return nil, nil
}

func (s *memoryStore) Departments(ctx context.Context, positionID string) ([]string, error) {
	return nil, nil
}

func (s *memoryStore) Position(ctx context.Context, positionID string) (*hierarchy.Position, error) {
	for _, p := range s.positions {
		if p.ID == positionID {
			return &p, nil
		}
	}
	return nil, hierarchy.NotFound("position", positionID)
}

type noDependents struct{}

func (noDependents) CountDependents(ctx context.Context, kind permission.EntityKind, id string) (permission.Dependents, error) {
	return permission.Dependents{}, nil
}

type testServer struct {
	server *Server
	mock   sqlmock.Sqlmock
}

func newTestServer(t *testing.T) *testServer {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log, _ := test.NewNullLogger()
	cache, err := scopedcache.New(scopedcache.NewMemoryBackend(100, time.Hour, 24*time.Hour), scopedcache.DefaultTTLPolicy(), log, nil)
	require.NoError(t, err)

	tree := orgtree.NewIndex(orgtree.NewMemorySource(
		hierarchy.OrgUnit{ID: "C1", OrganizationID: "org-1", Type: hierarchy.UnitCompany, Active: true},
		hierarchy.OrgUnit{ID: "R1", OrganizationID: "org-1", ParentID: "C1", Type: hierarchy.UnitRegional, Active: true},
		hierarchy.OrgUnit{ID: "S1", OrganizationID: "org-1", ParentID: "R1", Type: hierarchy.UnitStore, Active: true},
		hierarchy.OrgUnit{ID: "S2", OrganizationID: "org-1", ParentID: "R1", Type: hierarchy.UnitStore, Active: true},
		hierarchy.OrgUnit{ID: "C2", OrganizationID: "org-2", Type: hierarchy.UnitCompany, Active: true},
	), log)

	store := &memoryStore{
		users: map[string]hierarchy.User{
			"root": {ID: "root", IsMaster: true},
			"go1":  {ID: "go1", OrganizationID: "org-1"},
			"gr1":  {ID: "gr1", OrganizationID: "org-1"},
			"sm1":  {ID: "sm1", OrganizationID: "org-1"},
			"idle": {ID: "idle", OrganizationID: "org-1"},
		},
		positions: map[string]hierarchy.Position{
			"go1": {ID: "p-go1", UserID: "go1", UnitID: "C1", Level: 3, Active: true},
			"gr1": {ID: "p-gr1", UserID: "gr1", UnitID: "R1", Level: 2, Active: true},
			"sm1": {ID: "p-sm1", UserID: "sm1", UnitID: "S1", Level: 1, Active: true},
		},
	}

	engine, err := authz.NewEngine(authz.Deps{
		DB:         db,
		Tree:       tree,
		Contexts:   usercontext.NewProvider(store, tree, log, usercontext.WithCache(cache)),
		Cache:      cache,
		Dependents: noDependents{},
		Audit:      audit.NoOp(),
		Log:        log,
	})
	require.NoError(t, err)

	return &testServer{server: NewServer(engine, log), mock: mock}
}

func (ts *testServer) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestIdentityMiddleware(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing header", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/me/context", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))
	})

	t.Run("unknown user", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/me/context", "ghost", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("no active position", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/me/context", "idle", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "no active position", decodeError(t, w).Reason)
	})

	t.Run("resolved context", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/me/context", "gr1", "")
		require.Equal(t, http.StatusOK, w.Code)

		var uctx hierarchy.UserContext
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uctx))
		assert.Equal(t, hierarchy.RoleGR, uctx.Role)
		assert.Equal(t, "R1", uctx.UnitID)
		assert.Equal(t, "org-1", uctx.OrganizationID)
	})
}

func TestGetScope(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/scope/stores", "gr1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var view authz.ScopeView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "unit=R1+", view.Key)
	assert.True(t, view.Constrained)
	assert.ElementsMatch(t, []string{"R1", "S1", "S2"}, view.Units)

	w = ts.do(t, http.MethodGet, "/v1/scope/widgets", "gr1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListUnits(t *testing.T) {
	ts := newTestServer(t)

	ts.mock.ExpectQuery(`SELECT id, organization_id, parent_id, type, active FROM org_units`).
		WithArgs(sqlmock.AnyArg(), "store", 2, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "parent_id", "type", "active"}).
			AddRow("S1", "org-1", "R1", "store", true).
			AddRow("S2", "org-1", "R1", "store", true))

	w := ts.do(t, http.MethodGet, "/v1/units?resource=stores&per_page=2", "gr1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var units []hierarchy.OrgUnit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &units))
	require.Len(t, units, 2)
	assert.Equal(t, "S1", units[0].ID)
	assert.NoError(t, ts.mock.ExpectationsWereMet())

	t.Run("rejects non-unit resource", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/units?resource=users", "gr1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects bad page", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/units?page=two", "gr1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWrites_Denied(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		reason string
	}{
		{
			name:   "store manager cannot delete units",
			method: http.MethodDelete,
			path:   "/v1/units/S1",
			user:   "sm1",
			reason: "store managers cannot modify units",
		},
		{
			name:   "regional manager cannot move units",
			method: http.MethodPost,
			path:   "/v1/units/S1/move",
			user:   "gr1",
			body:   `{"parent_id":"R1"}`,
			reason: "regional managers may only assign managers",
		},
		{
			name:   "store manager cannot update a superior",
			method: http.MethodPatch,
			path:   "/v1/users/go1",
			user:   "sm1",
			body:   `{"status":"inactive"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, http.StatusForbidden, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, "forbidden", resp.Error)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, resp.Reason)
			}
		})
	}

	// Denials never reach the database.
	assert.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestMoveUnit_InvalidPlacement(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/units/S1/move", "root", `{"parent_id":"S2"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decodeError(t, w).Error, "parent must be")
}

func TestMoveUnit_BadRequest(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/units/S1/move", "root", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/units/S1/move", "root", `{"parent":"R1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteUnit_NotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodDelete, "/v1/units/missing", "root", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not found", decodeError(t, w).Error)
}

func TestDeleteUnit_MissingAndForeignLookAlike(t *testing.T) {
	ts := newTestServer(t)

	missing := ts.do(t, http.MethodDelete, "/v1/units/missing", "go1", "")
	foreign := ts.do(t, http.MethodDelete, "/v1/units/C2", "go1", "")

	assert.Equal(t, http.StatusForbidden, missing.Code)
	assert.Equal(t, foreign.Code, missing.Code)
	body := decodeError(t, missing)
	assert.Equal(t, decodeError(t, foreign), body)
	assert.NotContains(t, body.Reason, "missing")
}

func TestActivatePosition_UnknownPositionBody(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/users/sm1/positions/p-secret-42/activate", "go1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not found", decodeError(t, w).Error)
}

func TestUpdateUser_NoFields(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPatch, "/v1/users/sm1", "go1", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizeEndpoints(t *testing.T) {
	ts := newTestServer(t)

	decode := func(t *testing.T, w *httptest.ResponseRecorder) permission.Decision {
		require.Equal(t, http.StatusOK, w.Code)
		var d permission.Decision
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
		return d
	}

	t.Run("user operation", func(t *testing.T) {
		d := decode(t, ts.do(t, http.MethodPost, "/v1/authorize/users/sm1", "go1", `{"operation":"update"}`))
		assert.True(t, d.Allowed)

		d = decode(t, ts.do(t, http.MethodPost, "/v1/authorize/users/go1", "sm1", `{"operation":"update"}`))
		assert.False(t, d.Allowed)
	})

	t.Run("self targeting", func(t *testing.T) {
		d := decode(t, ts.do(t, http.MethodPost, "/v1/authorize/users/go1", "go1", `{"operation":"delete"}`))
		assert.False(t, d.Allowed)
		assert.Equal(t, permission.RuleSelf, d.Rule)
	})

	t.Run("unit operation", func(t *testing.T) {
		d := decode(t, ts.do(t, http.MethodPost, "/v1/authorize/units/S1", "gr1", `{"operation":"assign_manager"}`))
		assert.True(t, d.Allowed)
	})

	t.Run("unknown unit operation", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/authorize/units/S1", "gr1", `{"operation":"rename"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("create organization", func(t *testing.T) {
		d := decode(t, ts.do(t, http.MethodPost, "/v1/authorize/organizations", "go1", ""))
		assert.False(t, d.Allowed)

		d = decode(t, ts.do(t, http.MethodPost, "/v1/authorize/organizations", "root", ""))
		assert.True(t, d.Allowed)
	})
}

func TestCacheStats(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/cache/stats", "go1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/cache/stats", "root", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats scopedcache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
}

func TestWriteError_InvalidationFailed(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/v1/users/sm1", nil)
	ts.server.writeError(w, r, fmt.Errorf("%w: redis down", authz.ErrInvalidationFailed))

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp committedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "committed", resp.Status)
}

func TestWriteError_Internal(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	ts.server.writeError(w, r, fmt.Errorf("connection reset"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}
