// Package audit records authorization decisions and data mutations.
//
// Every denial produced by the engine is logged with the actor, the
// operation, the rule that decided it and an audit-safe reason. Allowed
// mutations are logged once they commit.
//
// Destinations:
//
//   - LogrusLogger writes structured log lines through the service logger
//   - FileLogger appends JSON lines and rotates numbered generations by size
//   - DBLogger inserts into the audit_events table
//   - MultiLogger fans out to several of the above, inline or through a queue
//
// The engine receives its logger at construction:
//
//	engine, err := authz.NewEngine(authz.Deps{Audit: audit.NewMultiLogger(logrusLogger, dbLogger), ...})
package audit
