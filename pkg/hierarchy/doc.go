// Package hierarchy defines the shared vocabulary of the organizational
// authorization engine: roles and their rank table, organizational units,
// positions, the derived per-user context, and the error taxonomy.
//
// # Overview
//
// Organizations form a three-level forest of units:
//
//	company (root)
//	└── regional
//	    └── store
//
// Users are bound to a unit through a Position carrying a role level. The
// four roles are totally ordered by authority:
//
//	MASTER(4) > GO(3) > GR(2) > STORE_MANAGER(1)
//
// Roles are data, not types. Comparing two roles is a single integer
// comparison through the rank table:
//
//	if hierarchy.RoleGO.Outranks(hierarchy.RoleGR) {
//		// GO may act on GR targets
//	}
//
// # Errors
//
// All errors produced by the engine are typed. Callers discriminate with
// errors.Is against the sentinels, or use the helpers:
//
//	ctx, err := provider.GetContext(ctx, userID)
//	switch {
//	case errors.Is(err, hierarchy.ErrNoActivePosition):
//		// authorization failure, not a server error
//	case hierarchy.IsNotFound(err):
//		// 404
//	}
//
// DeniedError carries a human readable reason suitable for audit logs. The
// reason never contains identifiers of entities the actor cannot see.
//
// # Related Packages
//
//   - pkg/orgtree: ancestor and descendant queries over OrgUnit rows
//   - pkg/scope: turns a UserContext into a ScopeFilter
//   - pkg/permission: allow/deny decisions for mutations
//   - pkg/usercontext: builds and caches UserContext values
package hierarchy
