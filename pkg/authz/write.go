package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/permission"
	"github.com/platinummonkey/orgscope/pkg/scopedcache"
	"github.com/platinummonkey/orgscope/pkg/usercontext"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidationFailed is returned when a write committed but the cache
// could not be invalidated. The write is durable; stale reads are bounded by
// the entry TTLs.
var ErrInvalidationFailed = errors.New("authz: cache invalidation failed after commit")

// Write is a mutation executed by ExecuteWrite. Authorization must already
// have passed.
type Write struct {
	Event        audit.EventType
	Actor        hierarchy.UserContext
	ResourceType hierarchy.ResourceKind
	ResourceID   string
	Operation    string

	// Apply runs the mutation inside the transaction
	Apply func(ctx context.Context, tx *sql.Tx) error

	// Before and After are the scoping projections of the written record.
	// Either may be nil for creates and deletes.
	Before *scopedcache.Entity
	After  *scopedcache.Entity

	// Users whose cached contexts the write changes
	Users []string

	// Restructure drops every cached context, for writes that move units
	Restructure bool

	// Metadata is copied into the audit event
	Metadata map[string]interface{}
}

// ExecuteWrite applies w in a transaction and invalidates the cache after
// commit. A rolled back write invalidates nothing.
func (e *Engine) ExecuteWrite(ctx context.Context, w Write) (err error) {
	ctx, span := tracer.Start(ctx, "authz.ExecuteWrite", trace.WithAttributes(
		attribute.String("orgscope.resource_type", string(w.ResourceType)),
		attribute.String("orgscope.operation", w.Operation),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "write failed")
		}
		span.End()
	}()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := w.Apply(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.log.WithError(rbErr).Error("failed to roll back write")
		}
		e.auditWrite(ctx, w, audit.EventStatusFailure, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		e.auditWrite(ctx, w, audit.EventStatusFailure, err)
		return fmt.Errorf("failed to commit: %w", err)
	}
	span.AddEvent("committed")

	invErr := e.invalidate(ctx, w)
	e.auditWrite(ctx, w, audit.EventStatusSuccess, invErr)
	return invErr
}

func (e *Engine) invalidate(ctx context.Context, w Write) error {
	tags := scopedcache.WriteTags(w.Before, w.After)
	var errs []error

	if err := e.cache.InvalidateTags(ctx, tags...); err != nil {
		errs = append(errs, err)
	}
	if w.Restructure {
		if err := e.contexts.InvalidateAll(ctx); err != nil {
			errs = append(errs, err)
		}
	} else if err := e.contexts.InvalidateUser(ctx, w.Users...); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	e.log.WithError(err).WithFields(logrus.Fields{
		"resource_type": string(w.ResourceType),
		"resource_id":   w.ResourceID,
		"tags":          len(tags),
	}).Error("cache invalidation failed after commit")
	return fmt.Errorf("%w: %v", ErrInvalidationFailed, err)
}

func (e *Engine) auditWrite(ctx context.Context, w Write, status audit.EventStatus, err error) {
	event := audit.NewEvent(ctx, w.Event, status)
	event.ActorID = w.Actor.UserID
	event.ActorRole = w.Actor.Role.String()
	event.OrganizationID = w.Actor.OrganizationID
	event.ResourceType = string(w.ResourceType)
	event.ResourceID = w.ResourceID
	event.Operation = w.Operation
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	for k, v := range w.Metadata {
		event.Metadata[k] = v
	}
	if w.Restructure {
		event.Metadata["restructure"] = true
	}
	e.writeAudit(ctx, event)
}

// UserUpdate holds the user fields to change; nil fields are left alone
type UserUpdate struct {
	OrganizationID *string `json:"organization_id,omitempty"`
	Status         *string `json:"status,omitempty"`
}

// Fields returns the names of the fields being changed
func (u UserUpdate) Fields() []string {
	var fields []string
	if u.OrganizationID != nil {
		fields = append(fields, "organization_id")
	}
	if u.Status != nil {
		fields = append(fields, "status")
	}
	return fields
}

// UpdateUser applies update to the target user when actor may change every
// field involved
func (e *Engine) UpdateUser(ctx context.Context, actor hierarchy.UserContext, targetID string, update UserUpdate) error {
	fields := update.Fields()
	if len(fields) == 0 {
		return fmt.Errorf("no fields to update")
	}

	target, err := e.TargetContext(ctx, targetID)
	if err != nil {
		return err
	}
	if err := permission.Require(e.AuthorizeFields(ctx, actor, target, fields)); err != nil {
		return err
	}
	if update.OrganizationID != nil {
		d := e.evaluator.EvaluateOrganizationChange(actor, *update.OrganizationID)
		e.record(ctx, audit.EventTypeUserDecision, actor, string(hierarchy.ResourceUsers), targetID, string(permission.OpChangeOrganization), d)
		if err := permission.Require(d); err != nil {
			return err
		}
	}

	before, err := e.userEntity(ctx, target)
	if err != nil {
		return err
	}
	after := *before
	if update.OrganizationID != nil {
		after.OrganizationID = *update.OrganizationID
	}

	var (
		sets []string
		args []interface{}
	)
	if update.OrganizationID != nil {
		args = append(args, *update.OrganizationID)
		sets = append(sets, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if update.Status != nil {
		args = append(args, *update.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, targetID)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	return e.ExecuteWrite(ctx, Write{
		Event:        audit.EventTypeUserUpdate,
		Actor:        actor,
		ResourceType: hierarchy.ResourceUsers,
		ResourceID:   targetID,
		Operation:    "update_fields",
		Apply: func(ctx context.Context, tx *sql.Tx) error {
			return execOne(ctx, tx, "user", targetID, query, args...)
		},
		Before: before,
		After:  &after,
		Users:  []string{targetID},
	})
}

// DeleteUser deactivates a user without active dependents
func (e *Engine) DeleteUser(ctx context.Context, actor hierarchy.UserContext, targetID string) error {
	target, err := e.TargetContext(ctx, targetID)
	if err != nil {
		return err
	}
	if err := permission.Require(e.AuthorizeUser(ctx, actor, target, permission.OpDelete)); err != nil {
		return err
	}
	if err := permission.CheckDeletable(ctx, e.dependents, permission.EntityUser, targetID); err != nil {
		e.auditDependents(ctx, actor, hierarchy.ResourceUsers, targetID, err)
		return err
	}

	before, err := e.userEntity(ctx, target)
	if err != nil {
		return err
	}

	return e.ExecuteWrite(ctx, Write{
		Event:        audit.EventTypeUserUpdate,
		Actor:        actor,
		ResourceType: hierarchy.ResourceUsers,
		ResourceID:   targetID,
		Operation:    string(permission.OpDelete),
		Apply: func(ctx context.Context, tx *sql.Tx) error {
			if err := execOne(ctx, tx, "user", targetID, `UPDATE users SET status = 'deleted' WHERE id = $1`, targetID); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `UPDATE positions SET active = FALSE WHERE user_id = $1`, targetID)
			return err
		},
		Before: before,
		Users:  []string{targetID},
	})
}

// deletableKinds maps unit types to the dependency kind checked before delete
var deletableKinds = map[hierarchy.UnitType]permission.EntityKind{
	hierarchy.UnitCompany:  permission.EntityOrganization,
	hierarchy.UnitRegional: permission.EntityRegion,
	hierarchy.UnitStore:    permission.EntityStore,
}

// DeleteUnit deletes an org unit without active dependents. Deleting a
// company unit deletes its organization and requires MASTER.
func (e *Engine) DeleteUnit(ctx context.Context, actor hierarchy.UserContext, unitID string) error {
	d, err := e.AuthorizeUnit(ctx, actor, unitID, permission.UnitDelete)
	if err != nil {
		return err
	}
	if err := permission.Require(d); err != nil {
		return err
	}

	unit, err := e.tree.Unit(ctx, unitID)
	if err != nil {
		return err
	}
	if unit.IsRoot() {
		od := e.evaluator.EvaluateDeleteOrganization(actor)
		e.record(ctx, audit.EventTypeOrgDecision, actor, string(hierarchy.ResourceOrganizations), unit.OrganizationID, "delete", od)
		if err := permission.Require(od); err != nil {
			return err
		}
	}

	kind, ok := deletableKinds[unit.Type]
	if !ok {
		return &hierarchy.PlacementError{Reason: fmt.Sprintf("unknown unit type %q", unit.Type)}
	}
	depID := unit.ID
	if kind == permission.EntityOrganization {
		depID = unit.OrganizationID
	}
	if err := permission.CheckDeletable(ctx, e.dependents, kind, depID); err != nil {
		e.auditDependents(ctx, actor, unitResource(unit.Type), unitID, err)
		return err
	}

	before, err := e.unitEntity(ctx, *unit)
	if err != nil {
		return err
	}

	return e.ExecuteWrite(ctx, Write{
		Event:        audit.EventTypeUnitDelete,
		Actor:        actor,
		ResourceType: unitResource(unit.Type),
		ResourceID:   unitID,
		Operation:    string(permission.UnitDelete),
		Apply: func(ctx context.Context, tx *sql.Tx) error {
			return execOne(ctx, tx, "unit", unitID, `DELETE FROM org_units WHERE id = $1`, unitID)
		},
		Before:      before,
		Restructure: true,
	})
}

// MoveUnit re-parents a unit. The actor needs update rights on the unit and
// create rights under the new parent.
func (e *Engine) MoveUnit(ctx context.Context, actor hierarchy.UserContext, unitID, newParentID string) error {
	for _, check := range []struct {
		id string
		op permission.UnitOp
	}{
		{unitID, permission.UnitUpdate},
		{newParentID, permission.UnitCreate},
	} {
		d, err := e.AuthorizeUnit(ctx, actor, check.id, check.op)
		if err != nil {
			return err
		}
		if err := permission.Require(d); err != nil {
			return err
		}
	}

	unit, err := e.tree.Unit(ctx, unitID)
	if err != nil {
		return err
	}
	moved := *unit
	moved.ParentID = newParentID
	if err := e.tree.ValidatePlacement(ctx, moved); err != nil {
		return err
	}

	before, err := e.unitEntity(ctx, *unit)
	if err != nil {
		return err
	}
	after, err := e.unitEntity(ctx, moved)
	if err != nil {
		return err
	}

	return e.ExecuteWrite(ctx, Write{
		Event:        audit.EventTypeUnitMove,
		Actor:        actor,
		ResourceType: unitResource(unit.Type),
		ResourceID:   unitID,
		Operation:    string(permission.UnitUpdate),
		Apply: func(ctx context.Context, tx *sql.Tx) error {
			return execOne(ctx, tx, "unit", unitID, `UPDATE org_units SET parent_id = $1 WHERE id = $2`, newParentID, unitID)
		},
		Before:      before,
		After:       after,
		Restructure: true,
	})
}

// AssignManager sets the manager of a unit. The manager must belong to the
// unit's organization and, below MASTER, rank under the actor within its
// reach.
func (e *Engine) AssignManager(ctx context.Context, actor hierarchy.UserContext, unitID, managerID string) error {
	d, err := e.AuthorizeUnit(ctx, actor, unitID, permission.UnitAssignManager)
	if err != nil {
		return err
	}
	if err := permission.Require(d); err != nil {
		return err
	}

	unit, err := e.tree.Unit(ctx, unitID)
	if err != nil {
		return err
	}
	manager, err := e.TargetContext(ctx, managerID)
	if err != nil {
		return err
	}
	md, err := e.evaluator.EvaluateManagerAssignment(ctx, actor, *unit, manager)
	if err != nil {
		return err
	}
	e.record(ctx, audit.EventTypeUnitDecision, actor, string(unitResource(unit.Type)), unitID, string(permission.UnitAssignManager), md)
	if err := permission.Require(md); err != nil {
		return err
	}

	entity, err := e.unitEntity(ctx, *unit)
	if err != nil {
		return err
	}

	return e.ExecuteWrite(ctx, Write{
		Event:        audit.EventTypeManagerAssign,
		Actor:        actor,
		ResourceType: unitResource(unit.Type),
		ResourceID:   unitID,
		Operation:    string(permission.UnitAssignManager),
		Apply: func(ctx context.Context, tx *sql.Tx) error {
			return execOne(ctx, tx, "unit", unitID, `UPDATE org_units SET manager_user_id = $1 WHERE id = $2`, managerID, unitID)
		},
		Before: entity,
		Users:  []string{managerID},
	})
}

// ActivatePosition makes positionID the only active position of targetID.
// The actor needs assign rights on the target as it is now and on the role
// and unit the position grants.
func (e *Engine) ActivatePosition(ctx context.Context, actor hierarchy.UserContext, targetID, positionID string) error {
	target, err := e.TargetContext(ctx, targetID)
	if err != nil {
		return err
	}
	if err := permission.Require(e.AuthorizeUser(ctx, actor, target, permission.OpAssign)); err != nil {
		return err
	}

	w := Write{
		Event:        audit.EventTypePositionActivate,
		Actor:        actor,
		ResourceType: hierarchy.ResourceUsers,
		ResourceID:   targetID,
		Operation:    string(permission.OpAssign),
		Users:        []string{targetID},
		Metadata:     map[string]interface{}{"position_id": positionID},
	}

	pos, err := e.contexts.Position(ctx, positionID)
	if err == nil && pos.UserID != targetID {
		err = hierarchy.NotFound("position", positionID)
	}
	if err != nil {
		e.auditWrite(ctx, w, audit.EventStatusFailure, err)
		return err
	}

	d, err := e.evaluator.EvaluateActivation(ctx, actor, *pos)
	if err != nil {
		return err
	}
	e.record(ctx, audit.EventTypeUserDecision, actor, string(hierarchy.ResourceUsers), targetID, "activate_position", d)
	if err := permission.Require(d); err != nil {
		return err
	}

	if w.Before, err = e.userEntity(ctx, target); err != nil {
		return err
	}
	if w.After, err = e.positionEntity(ctx, target, *pos); err != nil {
		return err
	}
	w.Apply = func(ctx context.Context, tx *sql.Tx) error {
		return usercontext.ActivatePositionTx(ctx, tx, targetID, positionID)
	}
	return e.ExecuteWrite(ctx, w)
}

func (e *Engine) auditDependents(ctx context.Context, actor hierarchy.UserContext, res hierarchy.ResourceKind, id string, err error) {
	event := audit.NewEvent(ctx, audit.EventTypeUnitDecision, audit.EventStatusDenied)
	if res == hierarchy.ResourceUsers {
		event.EventType = audit.EventTypeUserDecision
	}
	event.ActorID = actor.UserID
	event.ActorRole = actor.Role.String()
	event.OrganizationID = actor.OrganizationID
	event.ResourceType = string(res)
	event.ResourceID = id
	event.Operation = "delete"
	event.Rule = string(permission.RuleDependents)
	event.Reason = hierarchy.DenialReason(err)
	e.writeAudit(ctx, event)
}

// userEntity projects a user context for tag invalidation
func (e *Engine) userEntity(ctx context.Context, u hierarchy.UserContext) (*scopedcache.Entity, error) {
	entity := &scopedcache.Entity{
		Resource:       hierarchy.ResourceUsers,
		ID:             u.UserID,
		OrganizationID: u.OrganizationID,
		UnitID:         u.UnitID,
		UnitChain:      u.AncestorUnitChain,
		Role:           u.Role,
	}
	if entity.OrganizationID == hierarchy.Wildcard {
		entity.OrganizationID = ""
	}
	if u.UnitID != "" && len(u.AncestorUnitChain) == 0 {
		chain, err := e.tree.AncestorIDs(ctx, u.UnitID)
		if err != nil {
			return nil, err
		}
		entity.UnitChain = chain
	}
	return entity, nil
}

// positionEntity projects the user as it will look once pos is active
func (e *Engine) positionEntity(ctx context.Context, u hierarchy.UserContext, pos hierarchy.Position) (*scopedcache.Entity, error) {
	entity := &scopedcache.Entity{
		Resource:       hierarchy.ResourceUsers,
		ID:             u.UserID,
		OrganizationID: u.OrganizationID,
		UnitID:         pos.UnitID,
		Role:           pos.Role(),
	}
	if entity.OrganizationID == hierarchy.Wildcard {
		entity.OrganizationID = ""
	}
	if pos.UnitID != "" {
		chain, err := e.tree.AncestorIDs(ctx, pos.UnitID)
		if err != nil {
			return nil, err
		}
		entity.UnitChain = chain
	}
	return entity, nil
}

// unitEntity projects a unit for tag invalidation
func (e *Engine) unitEntity(ctx context.Context, u hierarchy.OrgUnit) (*scopedcache.Entity, error) {
	entity := &scopedcache.Entity{
		Resource:       unitResource(u.Type),
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		UnitID:         u.ID,
	}
	if u.IsRoot() {
		return entity, nil
	}
	chain, err := e.tree.AncestorIDs(ctx, u.ParentID)
	if err != nil {
		return nil, err
	}
	entity.UnitChain = append([]string{u.ParentID}, chain...)
	return entity, nil
}

func unitResource(t hierarchy.UnitType) hierarchy.ResourceKind {
	switch t {
	case hierarchy.UnitCompany:
		return hierarchy.ResourceOrganizations
	case hierarchy.UnitRegional:
		return hierarchy.ResourceRegions
	case hierarchy.UnitStore:
		return hierarchy.ResourceStores
	default:
		return hierarchy.ResourceUnits
	}
}

// execOne runs a statement that must affect exactly one row
func execOne(ctx context.Context, tx *sql.Tx, kind, id, query string, args ...interface{}) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", kind, err)
	}
	if n == 0 {
		return hierarchy.NotFound(kind, id)
	}
	return nil
}
