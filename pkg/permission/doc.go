// Package permission decides whether an actor may perform a mutation.
//
// # User mutations
//
// EvaluateUser applies these rules in order, first match wins:
//
//  1. Acting on one's own account is denied (self-service edits go through
//     EvaluateFields and are limited to name, phone and password).
//  2. MASTER is allowed.
//  3. An actor whose level is at or below the target's level is denied.
//  4. GO is allowed within its own organization.
//  5. GR is allowed within its own organization on STORE_MANAGER targets.
//  6. STORE_MANAGER is denied.
//
// # Unit mutations
//
// EvaluateUnit allows MASTER, GO inside its own organization, and GR only
// for manager assignment on its own region or a store below it.
// STORE_MANAGER never has unit rights.
//
// # Deletes
//
// CheckDeletable verifies that an entity has no active dependents (managed
// stores, non-terminal tasks, child units, active positions or users). It is
// a precondition check, not a lock: a dependent created between the check
// and the delete is not detected. Callers needing strict enforcement must run
// both inside a serializable transaction.
//
// Every decision carries a Rule and an audit-safe Reason. Require turns a
// denial into a *hierarchy.DeniedError.
package permission
