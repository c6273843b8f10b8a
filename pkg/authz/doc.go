// Package authz ties the org tree, scope resolver, permission evaluator,
// context provider and scoped cache into the read and write paths used by
// request handlers.
//
// Reads resolve the caller's scope filter, derive a cache key from the
// caller's role and scope, and compute the result with the filter rendered
// as SQL on a miss:
//
//	uctx, err := engine.Context(ctx, userID)
//	stores, err := engine.ListUnits(ctx, uctx, authz.Query{Resource: hierarchy.ResourceStores})
//
// Writes authorize first, then apply the mutation in a transaction, then
// invalidate every cache tag a read could have attached to the record
// before or after the write:
//
//	err := engine.MoveUnit(ctx, uctx, "S1", "R2")
//
// Nothing is invalidated when a transaction rolls back. A failed
// invalidation after commit returns ErrInvalidationFailed.
package authz
