package authz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/scope"
	"github.com/platinummonkey/orgscope/pkg/scopedcache"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// Query describes a scoped list read
type Query struct {
	Resource hierarchy.ResourceKind
	Filters  map[string]string
	Page     int
	PerPage  int
	Sort     string
}

func (q Query) normalized() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = defaultPerPage
	}
	if q.PerPage > maxPerPage {
		q.PerPage = maxPerPage
	}
	q.Filters = scopedcache.NormalizeFilters(q.Filters)
	q.Sort = normalizeSort(q.Resource, q.Sort)
	return q
}

// Sortable columns per listing. Keys are the names accepted in Query.Sort.
var (
	unitSortColumns = map[string]string{
		"id":              "id",
		"type":            "type",
		"organization_id": "organization_id",
	}
	userSortColumns = map[string]string{
		"id":              "u.id",
		"status":          "u.status",
		"organization_id": "u.organization_id",
		"level":           "p.level",
	}
)

func sortColumns(kind hierarchy.ResourceKind) map[string]string {
	if kind == hierarchy.ResourceUsers {
		return userSortColumns
	}
	return unitSortColumns
}

// normalizeSort reduces sort to "field" or "-field" for a sortable column.
// Unknown fields and the default ascending id order normalize to "".
func normalizeSort(kind hierarchy.ResourceKind, sort string) string {
	sort = strings.ToLower(strings.TrimSpace(sort))
	field := strings.TrimPrefix(sort, "-")
	if _, ok := sortColumns(kind)[field]; !ok {
		return ""
	}
	if sort == "id" {
		return ""
	}
	return sort
}

// orderBy renders a normalized sort, breaking ties on id
func orderBy(kind hierarchy.ResourceKind, sort string) string {
	cols := sortColumns(kind)
	if sort == "" {
		return cols["id"]
	}
	dir := "ASC"
	if strings.HasPrefix(sort, "-") {
		dir = "DESC"
	}
	field := strings.TrimPrefix(sort, "-")
	if field == "id" {
		return cols["id"] + " " + dir
	}
	return fmt.Sprintf("%s %s, %s", cols[field], dir, cols["id"])
}

func (q Query) offset() int {
	return (q.Page - 1) * q.PerPage
}

// Loader computes a read restricted to the filter
type Loader[T any] func(ctx context.Context, f scope.ScopeFilter, q Query) (T, error)

// ScopedRead resolves uctx's scope for the query's resource and returns the
// cached result, calling load on a miss. Users with the same role and scope
// share entries.
func ScopedRead[T any](ctx context.Context, e *Engine, uctx hierarchy.UserContext, q Query, load Loader[T]) (T, error) {
	var zero T
	if !q.Resource.Valid() {
		return zero, fmt.Errorf("unknown resource %q", q.Resource)
	}
	q = q.normalized()

	f := e.resolver.ResolveScope(uctx, q.Resource)
	key := scopedcache.KeySpec{
		Resource: q.Resource,
		Role:     uctx.Role,
		Scope:    f.Key(),
		Filters:  q.Filters,
		Page:     q.Page,
		PerPage:  q.PerPage,
		Sort:     q.Sort,
	}.String()
	tags := scopedcache.ReadTags(q.Resource, f, q.Filters)

	return scopedcache.Remember(ctx, e.cache, key, q.Resource, tags, func(ctx context.Context) (T, error) {
		return load(ctx, f, q)
	})
}

// ScopeView is the resolved scope of a user for one resource
type ScopeView struct {
	Resource    hierarchy.ResourceKind `json:"resource"`
	Filter      scope.ScopeFilter      `json:"filter"`
	Key         string                 `json:"key"`
	Constrained bool                   `json:"constrained"`
	Units       []string               `json:"units,omitempty"`
}

// Scope resolves uctx's filter for kind together with the visible units
func (e *Engine) Scope(ctx context.Context, uctx hierarchy.UserContext, kind hierarchy.ResourceKind) (ScopeView, error) {
	if !kind.Valid() {
		return ScopeView{}, fmt.Errorf("unknown resource %q", kind)
	}
	f := e.resolver.ResolveScope(uctx, kind)
	units, constrained, err := e.resolver.VisibleUnits(ctx, f)
	if err != nil {
		return ScopeView{}, err
	}
	return ScopeView{
		Resource:    kind,
		Filter:      f,
		Key:         f.Key(),
		Constrained: constrained,
		Units:       units,
	}, nil
}

// unitColumns scope org_units rows by their own id
var unitColumns = scope.Columns{Organization: "organization_id", Unit: "id"}

// unitKinds maps unit resources to the unit type they list
var unitKinds = map[hierarchy.ResourceKind]hierarchy.UnitType{
	hierarchy.ResourceOrganizations: hierarchy.UnitCompany,
	hierarchy.ResourceRegions:       hierarchy.UnitRegional,
	hierarchy.ResourceStores:        hierarchy.UnitStore,
	hierarchy.ResourceUnits:         "",
}

// IsUnitResource reports whether ListUnits serves kind
func IsUnitResource(kind hierarchy.ResourceKind) bool {
	_, ok := unitKinds[kind]
	return ok
}

// ListUnits returns the org units of kind visible to uctx
func (e *Engine) ListUnits(ctx context.Context, uctx hierarchy.UserContext, q Query) ([]hierarchy.OrgUnit, error) {
	if !IsUnitResource(q.Resource) {
		return nil, fmt.Errorf("%s is not a unit resource", q.Resource)
	}
	return ScopedRead(ctx, e, uctx, q, e.loadUnits)
}

func (e *Engine) loadUnits(ctx context.Context, f scope.ScopeFilter, q Query) ([]hierarchy.OrgUnit, error) {
	clause, args, err := e.resolver.Clause(ctx, f, unitColumns, 1)
	if err != nil {
		return nil, err
	}

	conds := []string{clause}
	if t := unitKinds[q.Resource]; t != "" {
		args = append(args, string(t))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if org := q.Filters[scopedcache.FilterOrganization]; org != "" {
		args = append(args, org)
		conds = append(conds, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if unit := q.Filters[scopedcache.FilterUnit]; unit != "" {
		args = append(args, unit)
		conds = append(conds, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	args = append(args, q.PerPage, q.offset())

	query := fmt.Sprintf(`
		SELECT id, organization_id, parent_id, type, active
		FROM org_units
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, strings.Join(conds, " AND "), orderBy(q.Resource, q.Sort), len(args)-1, len(args))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	units := []hierarchy.OrgUnit{}
	for rows.Next() {
		var u hierarchy.OrgUnit
		var parentID sql.NullString
		if err := rows.Scan(&u.ID, &u.OrganizationID, &parentID, &u.Type, &u.Active); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		u.ParentID = parentID.String
		units = append(units, u)
	}
	return units, rows.Err()
}

// UserRow is a user as seen through a scoped list
type UserRow struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Status         string         `json:"status"`
	UnitID         string         `json:"unit_id,omitempty"`
	Role           hierarchy.Role `json:"role,omitempty"`
}

// userColumns scope users by their organization and active position's unit
var userColumns = scope.Columns{Organization: "u.organization_id", Unit: "p.unit_id"}

// ListUsers returns the users visible to uctx
func (e *Engine) ListUsers(ctx context.Context, uctx hierarchy.UserContext, q Query) ([]UserRow, error) {
	q.Resource = hierarchy.ResourceUsers
	return ScopedRead(ctx, e, uctx, q, e.loadUsers)
}

func (e *Engine) loadUsers(ctx context.Context, f scope.ScopeFilter, q Query) ([]UserRow, error) {
	clause, args, err := e.resolver.Clause(ctx, f, userColumns, 1)
	if err != nil {
		return nil, err
	}

	conds := []string{clause}
	if org := q.Filters[scopedcache.FilterOrganization]; org != "" {
		args = append(args, org)
		conds = append(conds, fmt.Sprintf("u.organization_id = $%d", len(args)))
	}
	if unit := q.Filters[scopedcache.FilterUnit]; unit != "" {
		args = append(args, unit)
		conds = append(conds, fmt.Sprintf("p.unit_id = $%d", len(args)))
	}
	if role := hierarchy.ParseRole(q.Filters[scopedcache.FilterRole]); role != hierarchy.RoleNone {
		args = append(args, role.Level())
		conds = append(conds, fmt.Sprintf("p.level = $%d", len(args)))
	}
	args = append(args, q.PerPage, q.offset())

	query := fmt.Sprintf(`
		SELECT u.id, u.organization_id, u.status, p.unit_id, p.level
		FROM users u
		LEFT JOIN positions p ON p.user_id = u.id AND p.active = TRUE
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, strings.Join(conds, " AND "), orderBy(hierarchy.ResourceUsers, q.Sort), len(args)-1, len(args))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []UserRow{}
	for rows.Next() {
		var (
			u      UserRow
			orgID  sql.NullString
			unitID sql.NullString
			level  sql.NullInt64
		)
		if err := rows.Scan(&u.ID, &orgID, &u.Status, &unitID, &level); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.OrganizationID = orgID.String
		u.UnitID = unitID.String
		if level.Valid {
			u.Role = hierarchy.RoleForLevel(int(level.Int64))
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
