package scope

import (
	"context"
	"sort"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

// Tree is the subset of the org tree index the resolver needs
type Tree interface {
	Subtree(ctx context.Context, unitID string) ([]string, error)
}

// rule builds the base filter for one role
type rule func(uctx hierarchy.UserContext) ScopeFilter

// roleRules is the per-role scope table
var roleRules = map[hierarchy.Role]rule{
	hierarchy.RoleMaster: func(hierarchy.UserContext) ScopeFilter {
		return ScopeFilter{}
	},
	hierarchy.RoleGO: func(uctx hierarchy.UserContext) ScopeFilter {
		if uctx.OrganizationID == "" || uctx.OrganizationID == hierarchy.Wildcard {
			return None()
		}
		return ScopeFilter{OrganizationID: uctx.OrganizationID}
	},
	hierarchy.RoleGR: func(uctx hierarchy.UserContext) ScopeFilter {
		if uctx.UnitID == "" {
			return None()
		}
		return ScopeFilter{UnitID: uctx.UnitID, IncludeDescendants: true}
	},
	hierarchy.RoleStoreManager: func(uctx hierarchy.UserContext) ScopeFilter {
		if uctx.UnitID == "" {
			return None()
		}
		return ScopeFilter{UnitID: uctx.UnitID}
	},
}

// Resolver turns user contexts into scope filters
type Resolver struct {
	tree Tree
}

// NewResolver creates a new scope resolver
func NewResolver(tree Tree) *Resolver {
	return &Resolver{tree: tree}
}

// ResolveScope computes the filter for reads of kind by uctx. It is a pure
// function of its inputs. Unknown roles resolve to the impossible filter.
func (r *Resolver) ResolveScope(uctx hierarchy.UserContext, kind hierarchy.ResourceKind) ScopeFilter {
	build, ok := roleRules[uctx.Role]
	if !ok {
		return None()
	}

	f := build(uctx)
	if f.MatchNone || !kind.DepartmentScoped() {
		return f
	}

	if uctx.IsMaster() {
		f.DepartmentCodes = []string{hierarchy.Wildcard}
		return f
	}
	if len(uctx.DepartmentCodes) == 0 {
		return None()
	}
	f.DepartmentCodes = normalizeCodes(uctx.DepartmentCodes)
	return f
}

// VisibleUnits returns the unit ids admitted by the filter's unit dimension.
// constrained is false when the filter places no restriction on units.
func (r *Resolver) VisibleUnits(ctx context.Context, f ScopeFilter) (units []string, constrained bool, err error) {
	if f.MatchNone {
		return []string{}, true, nil
	}
	if !f.HasUnit() {
		return nil, false, nil
	}
	if !f.IncludeDescendants {
		return []string{f.UnitID}, true, nil
	}
	units, err = r.tree.Subtree(ctx, f.UnitID)
	if err != nil {
		return nil, true, err
	}
	return units, true, nil
}

// Matcher resolves the filter's visible units and returns an in-memory matcher
func (r *Resolver) Matcher(ctx context.Context, f ScopeFilter) (*Matcher, error) {
	units, constrained, err := r.VisibleUnits(ctx, f)
	if err != nil {
		return nil, err
	}
	return newMatcher(f, units, constrained), nil
}

func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
