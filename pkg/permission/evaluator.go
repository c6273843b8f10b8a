package permission

import (
	"context"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/sirupsen/logrus"
)

// Tree is the subset of the org tree index the evaluator needs
type Tree interface {
	Unit(ctx context.Context, id string) (*hierarchy.OrgUnit, error)
	IsDescendant(ctx context.Context, ancestorID, candidateID string) (bool, error)
}

// Checker is the interface for permission checking
type Checker interface {
	CanOperate(actor, target hierarchy.UserContext, op UserOp) bool
	CanOperateOnUnit(ctx context.Context, actor hierarchy.UserContext, unitID string, op UnitOp) (bool, error)
}

// Evaluator decides allow/deny for mutations
type Evaluator struct {
	tree Tree
	log  *logrus.Logger
}

// NewEvaluator creates a new permission evaluator
func NewEvaluator(tree Tree, log *logrus.Logger) *Evaluator {
	if log == nil {
		log = logrus.New()
	}
	return &Evaluator{tree: tree, log: log}
}

// CanOperate reports whether actor may perform op on target
func (e *Evaluator) CanOperate(actor, target hierarchy.UserContext, op UserOp) bool {
	d := e.EvaluateUser(actor, target, op)
	e.trace(actor, string(op), d)
	return d.Allowed
}

// EvaluateUser evaluates a user-management mutation. Rules are applied in
// order and the first match wins. Acting on one's own account is never a
// management operation; self-service edits go through EvaluateFields.
func (e *Evaluator) EvaluateUser(actor, target hierarchy.UserContext, op UserOp) Decision {
	if actor.UserID != "" && actor.UserID == target.UserID {
		return deny(RuleSelf, "privileged changes to own account are not allowed")
	}

	if actor.Role == hierarchy.RoleMaster {
		return allow(RuleMaster, "master has unrestricted rights")
	}

	if actor.Role.Level() <= target.Role.Level() {
		return deny(RuleRank, "target role at or above actor level")
	}

	switch actor.Role {
	case hierarchy.RoleGO:
		if sameOrganization(actor, target) {
			return allow(RuleSameOrg, "target within actor organization")
		}
		return deny(RuleSameOrg, "target outside actor organization")

	case hierarchy.RoleGR:
		if !sameOrganization(actor, target) {
			return deny(RuleGRStoreManager, "target outside actor organization")
		}
		if target.Role != hierarchy.RoleStoreManager {
			return deny(RuleGRStoreManager, "regional managers may only manage store managers")
		}
		return allow(RuleGRStoreManager, "store manager within actor organization")

	case hierarchy.RoleStoreManager:
		return deny(RuleStoreManager, "store managers have no user management rights")
	}

	return deny(RuleNoRights, "role has no management rights")
}

// CanUpdateFields reports whether actor may change fields on target
func (e *Evaluator) CanUpdateFields(actor, target hierarchy.UserContext, fields []string) bool {
	return e.EvaluateFields(actor, target, fields).Allowed
}

// EvaluateFields evaluates a field-level update. Users may edit their own
// self-service fields; every other combination needs management rights for
// each operation the fields imply.
func (e *Evaluator) EvaluateFields(actor, target hierarchy.UserContext, fields []string) Decision {
	if len(fields) == 0 {
		return deny(RuleNoRights, "no fields to update")
	}

	if actor.UserID != "" && actor.UserID == target.UserID {
		for _, f := range fields {
			if _, ok := selfServiceFields[f]; !ok {
				return deny(RuleSelfService, "self-service is limited to name, phone and password")
			}
		}
		return allow(RuleSelfService, "self-service update")
	}

	var last Decision
	for _, op := range OpsForFields(fields) {
		last = e.EvaluateUser(actor, target, op)
		if !last.Allowed {
			return last
		}
	}
	return last
}

// CanOperateOnUnit reports whether actor may perform op on the unit
func (e *Evaluator) CanOperateOnUnit(ctx context.Context, actor hierarchy.UserContext, unitID string, op UnitOp) (bool, error) {
	d, err := e.EvaluateUnit(ctx, actor, unitID, op)
	if err != nil {
		return false, err
	}
	e.trace(actor, "unit:"+string(op), d)
	return d.Allowed, nil
}

// EvaluateUnit evaluates an org-unit mutation. MASTER may do anything, GO
// anything inside its organization, and GR only manager assignment inside
// its own region. STORE_MANAGER never has unit rights.
func (e *Evaluator) EvaluateUnit(ctx context.Context, actor hierarchy.UserContext, unitID string, op UnitOp) (Decision, error) {
	switch actor.Role {
	case hierarchy.RoleMaster:
		return allow(RuleMaster, "master has unrestricted rights"), nil
	case hierarchy.RoleStoreManager:
		return deny(RuleStoreManager, "store managers cannot modify units"), nil
	case hierarchy.RoleGO, hierarchy.RoleGR:
	default:
		return deny(RuleNoRights, "role has no unit rights"), nil
	}

	if actor.Role == hierarchy.RoleGR && op != UnitAssignManager {
		return deny(RuleGRRegion, "regional managers may only assign managers"), nil
	}

	return e.withinReach(ctx, actor, unitID)
}

// withinReach allows a GO on units of its organization and a GR on its
// own unit and the units below it. A unit that does not exist is reported
// like one in another organization.
func (e *Evaluator) withinReach(ctx context.Context, actor hierarchy.UserContext, unitID string) (Decision, error) {
	unit, err := e.tree.Unit(ctx, unitID)
	if hierarchy.IsNotFound(err) {
		return deny(RuleSameOrg, "unit outside actor organization"), nil
	}
	if err != nil {
		return Decision{}, err
	}
	if unit.OrganizationID != actor.OrganizationID {
		return deny(RuleSameOrg, "unit outside actor organization"), nil
	}

	switch actor.Role {
	case hierarchy.RoleGO:
		return allow(RuleSameOrg, "unit within actor organization"), nil
	case hierarchy.RoleGR:
	default:
		return deny(RuleNoRights, "role has no unit rights"), nil
	}

	if actor.UnitID == "" {
		return deny(RuleGRRegion, "unit outside actor region"), nil
	}
	if unit.ID == actor.UnitID {
		return allow(RuleGRRegion, "unit within actor region"), nil
	}
	within, err := e.tree.IsDescendant(ctx, actor.UnitID, unit.ID)
	if err != nil {
		return Decision{}, err
	}
	if !within {
		return deny(RuleGRRegion, "unit outside actor region"), nil
	}
	return allow(RuleGRRegion, "unit within actor region"), nil
}

// EvaluateActivation evaluates switching a user onto pos. The role the
// position grants must rank strictly below the actor and its unit must be
// within the actor's reach.
func (e *Evaluator) EvaluateActivation(ctx context.Context, actor hierarchy.UserContext, pos hierarchy.Position) (Decision, error) {
	if actor.Role == hierarchy.RoleMaster {
		return allow(RuleMaster, "master has unrestricted rights"), nil
	}

	role := pos.Role()
	if !role.Valid() {
		return deny(RuleNoRights, "position has no known role"), nil
	}
	if !actor.Role.Outranks(role) {
		return deny(RuleRank, "position role at or above actor level"), nil
	}
	if pos.UnitID == "" {
		return deny(RuleNoRights, "position has no unit"), nil
	}
	return e.withinReach(ctx, actor, pos.UnitID)
}

// EvaluateManagerAssignment evaluates naming manager as the manager of unit.
// The manager must belong to the unit's organization. Below MASTER, the
// manager must hold a position ranking strictly below the actor, in a unit
// within the actor's reach.
func (e *Evaluator) EvaluateManagerAssignment(ctx context.Context, actor hierarchy.UserContext, unit hierarchy.OrgUnit, manager hierarchy.UserContext) (Decision, error) {
	if manager.OrganizationID != unit.OrganizationID && !manager.IsMaster() {
		return deny(RuleSameOrg, "manager outside unit organization"), nil
	}
	if actor.Role == hierarchy.RoleMaster {
		return allow(RuleMaster, "master has unrestricted rights"), nil
	}
	if !manager.Role.Valid() {
		return deny(RuleNoRights, "manager has no active position"), nil
	}
	if !actor.Role.Outranks(manager.Role) {
		return deny(RuleRank, "manager role at or above actor level"), nil
	}
	if manager.UnitID == "" {
		return deny(RuleNoRights, "manager has no unit"), nil
	}
	return e.withinReach(ctx, actor, manager.UnitID)
}

// EvaluateOrganizationChange evaluates moving a user into destOrgID. Only
// MASTER may move users across organizations; everyone else may only name
// their own organization.
func (e *Evaluator) EvaluateOrganizationChange(actor hierarchy.UserContext, destOrgID string) Decision {
	if actor.Role == hierarchy.RoleMaster {
		return allow(RuleMaster, "master has unrestricted rights")
	}
	if actor.OrganizationID == "" || destOrgID != actor.OrganizationID {
		return deny(RuleSameOrg, "destination organization outside actor organization")
	}
	return allow(RuleSameOrg, "destination within actor organization")
}

// CanCreateOrganization reports whether actor may create a new organization
func (e *Evaluator) CanCreateOrganization(actor hierarchy.UserContext) bool {
	return e.EvaluateCreateOrganization(actor).Allowed
}

// EvaluateCreateOrganization allows MASTER only
func (e *Evaluator) EvaluateCreateOrganization(actor hierarchy.UserContext) Decision {
	if actor.Role == hierarchy.RoleMaster {
		return allow(RuleMaster, "master has unrestricted rights")
	}
	return deny(RuleMasterOnly, "only master may create organizations")
}

// EvaluateDeleteOrganization allows MASTER only. Organizations are deleted
// through their root unit.
func (e *Evaluator) EvaluateDeleteOrganization(actor hierarchy.UserContext) Decision {
	if actor.Role == hierarchy.RoleMaster {
		return allow(RuleMaster, "master has unrestricted rights")
	}
	return deny(RuleMasterOnly, "only master may delete organizations")
}

// Require converts a decision into an error
func Require(d Decision) error {
	if d.Allowed {
		return nil
	}
	return hierarchy.Deny(d.Reason)
}

func (e *Evaluator) trace(actor hierarchy.UserContext, op string, d Decision) {
	e.log.WithFields(logrus.Fields{
		"actor_id":   actor.UserID,
		"actor_role": actor.Role.String(),
		"operation":  op,
		"allowed":    d.Allowed,
		"rule":       d.Rule,
	}).Debug("permission decision")
}

func sameOrganization(actor, target hierarchy.UserContext) bool {
	return actor.OrganizationID != "" && actor.OrganizationID == target.OrganizationID
}
