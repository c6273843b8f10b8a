package scope

// Record is the scoping projection of a data row
type Record struct {
	OrganizationID string
	UnitID         string
	DepartmentCode string
}

// Matcher evaluates a ScopeFilter against records in memory
type Matcher struct {
	filter      ScopeFilter
	units       map[string]struct{}
	constrained bool
	departments map[string]struct{}
}

func newMatcher(f ScopeFilter, units []string, constrained bool) *Matcher {
	m := &Matcher{filter: f, constrained: constrained}
	if constrained {
		m.units = make(map[string]struct{}, len(units))
		for _, u := range units {
			m.units[u] = struct{}{}
		}
	}
	if f.HasDepartments() {
		m.departments = make(map[string]struct{}, len(f.DepartmentCodes))
		for _, d := range f.DepartmentCodes {
			m.departments[d] = struct{}{}
		}
	}
	return m
}

// Matches reports whether rec lies inside the scope
func (m *Matcher) Matches(rec Record) bool {
	if m.filter.MatchNone {
		return false
	}
	if m.filter.HasOrganization() && rec.OrganizationID != m.filter.OrganizationID {
		return false
	}
	if m.constrained {
		if _, ok := m.units[rec.UnitID]; !ok {
			return false
		}
	}
	if m.departments != nil {
		if _, ok := m.departments[rec.DepartmentCode]; !ok {
			return false
		}
	}
	return true
}

// FilterRecords returns the items whose projection matches
func FilterRecords[T any](m *Matcher, items []T, project func(T) Record) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if m.Matches(project(item)) {
			out = append(out, item)
		}
	}
	return out
}
