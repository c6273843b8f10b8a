// Package scope computes the data scope of a user.
//
// # Overview
//
// ResolveScope is table-driven with one rule per role:
//
//	MASTER         unconstrained
//	GO             organization_id = ctx.organization_id
//	GR             unit_id = ctx.unit_id, include_descendants
//	STORE_MANAGER  unit_id = ctx.unit_id
//
// Department-scoped resources (tasks, departments) are further restricted to
// the user's department codes; MASTER carries the "*" wildcard.
//
// Scope resolution fails closed: a GR or STORE_MANAGER without a unit, a GO
// without an organization, or a department-scoped read by a user with no
// departments all produce the impossible filter (MatchNone), never an
// unconstrained one.
//
// # Usage Example
//
//	f := resolver.ResolveScope(uctx, hierarchy.ResourceStores)
//	where, args, err := resolver.Clause(ctx, f, scope.DefaultColumns(), 1)
//	rows, err := db.QueryContext(ctx, "SELECT ... FROM stores WHERE "+where, args...)
//
// For data already in memory, Matcher applies the same filter:
//
//	m, err := resolver.Matcher(ctx, f)
//	visible := scope.FilterRecords(m, stores, func(s Store) scope.Record {
//		return scope.Record{OrganizationID: s.OrgID, UnitID: s.ID}
//	})
package scope
