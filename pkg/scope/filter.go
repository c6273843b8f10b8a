package scope

import (
	"sort"
	"strings"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

// ScopeFilter restricts a query to the records a user may see. A dimension is
// either present and must match, or absent and unconstrained.
type ScopeFilter struct {
	OrganizationID     string   `json:"organization_id,omitempty"`
	UnitID             string   `json:"unit_id,omitempty"`
	IncludeDescendants bool     `json:"include_descendants"`
	DepartmentCodes    []string `json:"department_codes,omitempty"`

	// MatchNone marks the impossible filter used when scope cannot be
	// established. It matches zero records.
	MatchNone bool `json:"match_none,omitempty"`
}

// None returns the impossible filter
func None() ScopeFilter {
	return ScopeFilter{MatchNone: true}
}

// HasOrganization reports whether the organization dimension is present
func (f ScopeFilter) HasOrganization() bool {
	return f.OrganizationID != "" && f.OrganizationID != hierarchy.Wildcard
}

// HasUnit reports whether the unit dimension is present
func (f ScopeFilter) HasUnit() bool {
	return f.UnitID != ""
}

// HasDepartments reports whether the department dimension is present
func (f ScopeFilter) HasDepartments() bool {
	if len(f.DepartmentCodes) == 0 {
		return false
	}
	for _, d := range f.DepartmentCodes {
		if d == hierarchy.Wildcard {
			return false
		}
	}
	return true
}

// IsUnconstrained reports whether the filter matches everything
func (f ScopeFilter) IsUnconstrained() bool {
	return !f.MatchNone && !f.HasOrganization() && !f.HasUnit() && !f.HasDepartments()
}

// Key returns a stable string identifying the scope, used in cache keys
func (f ScopeFilter) Key() string {
	if f.MatchNone {
		return "none"
	}

	var parts []string
	if f.HasOrganization() {
		parts = append(parts, "org="+f.OrganizationID)
	}
	if f.HasUnit() {
		unit := "unit=" + f.UnitID
		if f.IncludeDescendants {
			unit += "+"
		}
		parts = append(parts, unit)
	}
	if f.HasDepartments() {
		depts := append([]string(nil), f.DepartmentCodes...)
		sort.Strings(depts)
		parts = append(parts, "dept="+strings.Join(depts, ","))
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, ";")
}

// String implements fmt.Stringer
func (f ScopeFilter) String() string {
	return f.Key()
}
