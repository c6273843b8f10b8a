// Package api exposes the authorization engine over HTTP.
//
// Every /v1 route requires the X-User-ID header. The identity middleware
// resolves the caller's organizational context once per request; handlers
// read it with contextkeys.GetUserContext and pass it to the engine, which
// scopes reads and authorizes writes.
//
// Error mapping:
//
//	denied (including no active position)  403 with the denial reason
//	not found                              404
//	invalid placement or cycle             422
//	committed, invalidation failed         202 with a warning
//	anything else                          500
//
// Health and metrics endpoints are registered outside /v1 and need no
// identity.
package api
