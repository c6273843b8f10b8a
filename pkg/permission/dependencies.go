package permission

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// EntityKind identifies an entity that can be deleted
type EntityKind string

const (
	EntityUser         EntityKind = "user"
	EntityOrganization EntityKind = "organization"
	EntityRegion       EntityKind = "region"
	EntityStore        EntityKind = "store"
)

// Dependents counts the active records that block a delete
type Dependents struct {
	ManagedStores   int `json:"managed_stores"`
	OpenTasks       int `json:"open_tasks"`
	ChildUnits      int `json:"child_units"`
	ActivePositions int `json:"active_positions"`
	ActiveUsers     int `json:"active_users"`
}

// Total returns the number of blocking dependents
func (d Dependents) Total() int {
	return d.ManagedStores + d.OpenTasks + d.ChildUnits + d.ActivePositions + d.ActiveUsers
}

// Reason describes the blocking dependents without naming them
func (d Dependents) Reason() string {
	var parts []string
	add := func(n int, what string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, what))
		}
	}
	add(d.ManagedStores, "managed stores")
	add(d.OpenTasks, "non-terminal tasks")
	add(d.ChildUnits, "active child units")
	add(d.ActivePositions, "active positions")
	add(d.ActiveUsers, "active users")
	return strings.Join(parts, ", ")
}

// DependencyCounter counts blocking dependents of an entity
type DependencyCounter interface {
	CountDependents(ctx context.Context, kind EntityKind, id string) (Dependents, error)
}

// CheckDeletable returns a denial when the entity has active dependents.
// The check is a precondition only; nothing is locked between the check and
// the delete.
func CheckDeletable(ctx context.Context, counter DependencyCounter, kind EntityKind, id string) error {
	deps, err := counter.CountDependents(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("failed to count dependents: %w", err)
	}
	if deps.Total() > 0 {
		return Require(deny(RuleDependents, fmt.Sprintf("%s has active dependents: %s", kind, deps.Reason())))
	}
	return nil
}

// Terminal task statuses
const terminalStatuses = "('done', 'cancelled')"

// SQLDependencyCounter counts dependents with plain SQL
type SQLDependencyCounter struct {
	db *sql.DB
}

// NewSQLDependencyCounter creates a new SQL dependency counter
func NewSQLDependencyCounter(db *sql.DB) *SQLDependencyCounter {
	return &SQLDependencyCounter{db: db}
}

// CountDependents implements DependencyCounter
func (c *SQLDependencyCounter) CountDependents(ctx context.Context, kind EntityKind, id string) (Dependents, error) {
	var (
		d   Dependents
		err error
	)

	switch kind {
	case EntityUser:
		if d.ManagedStores, err = c.count(ctx,
			`SELECT COUNT(*) FROM org_units WHERE manager_user_id = $1 AND type = 'store' AND active = TRUE`, id); err != nil {
			return d, err
		}
		d.OpenTasks, err = c.count(ctx,
			`SELECT COUNT(*) FROM tasks WHERE assignee_id = $1 AND status NOT IN `+terminalStatuses, id)

	case EntityStore:
		if d.OpenTasks, err = c.count(ctx,
			`SELECT COUNT(*) FROM tasks WHERE unit_id = $1 AND status NOT IN `+terminalStatuses, id); err != nil {
			return d, err
		}
		d.ActivePositions, err = c.count(ctx,
			`SELECT COUNT(*) FROM positions WHERE unit_id = $1 AND active = TRUE`, id)

	case EntityRegion:
		if d.ChildUnits, err = c.count(ctx,
			`SELECT COUNT(*) FROM org_units WHERE parent_id = $1 AND active = TRUE`, id); err != nil {
			return d, err
		}
		d.ActivePositions, err = c.count(ctx,
			`SELECT COUNT(*) FROM positions WHERE unit_id = $1 AND active = TRUE`, id)

	case EntityOrganization:
		if d.ChildUnits, err = c.count(ctx,
			`SELECT COUNT(*) FROM org_units WHERE organization_id = $1 AND parent_id IS NOT NULL AND active = TRUE`, id); err != nil {
			return d, err
		}
		d.ActiveUsers, err = c.count(ctx,
			`SELECT COUNT(*) FROM users WHERE organization_id = $1 AND status = 'active'`, id)

	default:
		return d, fmt.Errorf("unknown entity kind: %s", kind)
	}

	return d, err
}

func (c *SQLDependencyCounter) count(ctx context.Context, query, id string) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dependents: %w", err)
	}
	return n, nil
}
