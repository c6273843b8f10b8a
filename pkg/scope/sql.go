package scope

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Columns names the columns a query exposes for each scope dimension
type Columns struct {
	Organization string
	Unit         string
	Department   string
}

// DefaultColumns returns the conventional column names
func DefaultColumns() Columns {
	return Columns{
		Organization: "organization_id",
		Unit:         "unit_id",
		Department:   "department_code",
	}
}

// SQLClause renders the filter as a PostgreSQL boolean expression with
// positional arguments starting at $firstArg. units must come from
// VisibleUnits. A present dimension without a column is an error rather than
// a silently dropped constraint.
func SQLClause(f ScopeFilter, units []string, cols Columns, firstArg int) (string, []interface{}, error) {
	if f.MatchNone {
		return "1 = 0", nil, nil
	}

	var (
		conds []string
		args  []interface{}
	)
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", firstArg+len(args)-1)
	}

	if f.HasOrganization() {
		if cols.Organization == "" {
			return "", nil, fmt.Errorf("scope requires an organization column")
		}
		conds = append(conds, cols.Organization+" = "+next(f.OrganizationID))
	}
	if f.HasUnit() {
		if cols.Unit == "" {
			return "", nil, fmt.Errorf("scope requires a unit column")
		}
		if len(units) == 0 {
			return "1 = 0", nil, nil
		}
		conds = append(conds, cols.Unit+" = ANY("+next(pq.Array(units))+")")
	}
	if f.HasDepartments() {
		if cols.Department == "" {
			return "", nil, fmt.Errorf("scope requires a department column")
		}
		conds = append(conds, cols.Department+" = ANY("+next(pq.Array(f.DepartmentCodes))+")")
	}

	if len(conds) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

// Clause resolves visible units for f and renders SQLClause
func (r *Resolver) Clause(ctx context.Context, f ScopeFilter, cols Columns, firstArg int) (string, []interface{}, error) {
	units, _, err := r.VisibleUnits(ctx, f)
	if err != nil {
		return "", nil, err
	}
	return SQLClause(f, units, cols, firstArg)
}
