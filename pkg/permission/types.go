package permission

import (
	"time"
)

// UserOp is a user-management mutation
type UserOp string

const (
	OpCreate             UserOp = "create"
	OpUpdate             UserOp = "update"
	OpDelete             UserOp = "delete"
	OpAssign             UserOp = "assign"
	OpChangeRole         UserOp = "change_role"
	OpChangeStatus       UserOp = "change_status"
	OpChangeOrganization UserOp = "change_organization"
)

// Privileged reports whether the operation touches privileged fields
func (o UserOp) Privileged() bool {
	switch o {
	case OpChangeRole, OpChangeStatus, OpChangeOrganization, OpAssign:
		return true
	default:
		return false
	}
}

// UnitOp is an org-unit mutation
type UnitOp string

const (
	// UnitCreate creates a child under the target unit
	UnitCreate        UnitOp = "create"
	UnitUpdate        UnitOp = "update"
	UnitDelete        UnitOp = "delete"
	UnitAssignManager UnitOp = "assign_manager"
)

// Rule names the rule that produced a decision
type Rule string

const (
	RuleMaster         Rule = "master"
	RuleSelf           Rule = "self"
	RuleSelfService    Rule = "self_service"
	RuleRank           Rule = "rank"
	RuleSameOrg        Rule = "same_organization"
	RuleGRStoreManager Rule = "gr_store_manager"
	RuleGRRegion       Rule = "gr_region"
	RuleStoreManager   Rule = "store_manager"
	RuleNoRights       Rule = "no_rights"
	RuleMasterOnly     Rule = "master_only"
	RuleDependents     Rule = "dependents"
)

// Decision is the result of a permission evaluation. Reason is safe to log
// and never contains entity identifiers.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Rule      Rule      `json:"rule"`
	Reason    string    `json:"reason"`
	CheckedAt time.Time `json:"checked_at"`
}

func allow(rule Rule, reason string) Decision {
	return Decision{Allowed: true, Rule: rule, Reason: reason, CheckedAt: time.Now().UTC()}
}

func deny(rule Rule, reason string) Decision {
	return Decision{Allowed: false, Rule: rule, Reason: reason, CheckedAt: time.Now().UTC()}
}

// Self-service fields may be edited by a user on their own account
var selfServiceFields = map[string]struct{}{
	"name":     {},
	"phone":    {},
	"password": {},
}

// privilegedFields maps field names to the operation that governs them
var privilegedFields = map[string]UserOp{
	"role":            OpChangeRole,
	"level":           OpChangeRole,
	"status":          OpChangeStatus,
	"active":          OpChangeStatus,
	"organization_id": OpChangeOrganization,
	"unit_id":         OpAssign,
	"position":        OpAssign,
	"departments":     OpAssign,
}

// OpsForFields returns the distinct operations needed to update fields
func OpsForFields(fields []string) []UserOp {
	seen := make(map[UserOp]struct{})
	var ops []UserOp
	for _, f := range fields {
		op, ok := privilegedFields[f]
		if !ok {
			op = OpUpdate
		}
		if _, dup := seen[op]; dup {
			continue
		}
		seen[op] = struct{}{}
		ops = append(ops, op)
	}
	return ops
}
