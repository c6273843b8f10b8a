// Package usercontext derives and caches the organizational context of a
// user: role, organization, unit, ancestor chain and department codes.
//
// MASTER users get a wildcard sentinel without any position lookup. Every
// other user needs exactly one active position; when several are active the
// newest wins and a warning is logged. ActivatePositionTx restores the single
// active position inside the caller's write transaction.
//
// Contexts are cached for an hour under "usercontext:<id>". Call
// InvalidateUser after any position, department or role change and
// InvalidateAll after bulk restructuring.
package usercontext
