package hierarchy

import (
	"time"
)

// Wildcard grants every organization or department
const Wildcard = "*"

// UnitType represents the kind of an organizational unit
type UnitType string

const (
	UnitCompany  UnitType = "company"
	UnitRegional UnitType = "regional"
	UnitStore    UnitType = "store"
)

// Depth returns the expected tree depth of the unit type (root is 0)
func (t UnitType) Depth() int {
	switch t {
	case UnitCompany:
		return 0
	case UnitRegional:
		return 1
	case UnitStore:
		return 2
	default:
		return -1
	}
}

// ParentType returns the unit type required for the parent, and false for roots
func (t UnitType) ParentType() (UnitType, bool) {
	switch t {
	case UnitRegional:
		return UnitCompany, true
	case UnitStore:
		return UnitRegional, true
	default:
		return "", false
	}
}

// OrgUnit is a node in the organization/region/store tree
type OrgUnit struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	ParentID       string   `json:"parent_id,omitempty"` // empty for company units
	Type           UnitType `json:"type"`
	Active         bool     `json:"active"`
}

// IsRoot reports whether the unit has no parent
func (u OrgUnit) IsRoot() bool {
	return u.ParentID == ""
}

// Position binds a user to a unit with a role level
type Position struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	UnitID          string    `json:"unit_id,omitempty"`
	Level           int       `json:"level"`
	Active          bool      `json:"active"`
	AssignedAt      time.Time `json:"assigned_at"`
	DepartmentCodes []string  `json:"department_codes,omitempty"`
}

// Role returns the role equivalent of the position level
func (p Position) Role() Role {
	return RoleForLevel(p.Level)
}

// User is the minimal user row the engine needs
type User struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id,omitempty"`
	IsMaster       bool   `json:"is_master"`
	Status         string `json:"status"`
}

// UserContext is the derived organizational snapshot of a user
type UserContext struct {
	UserID          string   `json:"user_id"`
	Role            Role     `json:"role"`
	OrganizationID  string   `json:"organization_id,omitempty"`
	UnitID          string   `json:"unit_id,omitempty"`
	DepartmentCodes []string `json:"department_codes,omitempty"`

	// AncestorUnitChain lists the unit's ancestors from immediate parent to root
	AncestorUnitChain []string `json:"ancestor_unit_chain,omitempty"`

	// StoreID is set for STORE_MANAGER contexts
	StoreID string `json:"store_id,omitempty"`

	ResolvedAt time.Time `json:"resolved_at"`
}

// IsMaster reports whether the context belongs to a MASTER user
func (c UserContext) IsMaster() bool {
	return c.Role == RoleMaster
}

// HasDepartment reports whether the context grants the department code
func (c UserContext) HasDepartment(code string) bool {
	for _, d := range c.DepartmentCodes {
		if d == Wildcard || d == code {
			return true
		}
	}
	return false
}

// InChain reports whether unitID is the context's unit or one of its ancestors
func (c UserContext) InChain(unitID string) bool {
	if unitID == "" {
		return false
	}
	if c.UnitID == unitID {
		return true
	}
	for _, id := range c.AncestorUnitChain {
		if id == unitID {
			return true
		}
	}
	return false
}

// MasterContext returns the MASTER sentinel context
func MasterContext(userID string) UserContext {
	return UserContext{
		UserID:          userID,
		Role:            RoleMaster,
		OrganizationID:  Wildcard,
		DepartmentCodes: []string{Wildcard},
		ResolvedAt:      time.Now().UTC(),
	}
}

// ResourceKind identifies a class of scoped records
type ResourceKind string

const (
	ResourceOrganizations ResourceKind = "organizations"
	ResourceRegions       ResourceKind = "regions"
	ResourceStores        ResourceKind = "stores"
	ResourceUnits         ResourceKind = "units"
	ResourceUsers         ResourceKind = "users"
	ResourceDepartments   ResourceKind = "departments"
	ResourceTasks         ResourceKind = "tasks"
)

// ResourceKinds returns every known resource kind
func ResourceKinds() []ResourceKind {
	return []ResourceKind{
		ResourceOrganizations,
		ResourceRegions,
		ResourceStores,
		ResourceUnits,
		ResourceUsers,
		ResourceDepartments,
		ResourceTasks,
	}
}

// Valid reports whether k is a known resource kind
func (k ResourceKind) Valid() bool {
	for _, known := range ResourceKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// DepartmentScoped reports whether reads of the kind are restricted by department
func (k ResourceKind) DepartmentScoped() bool {
	return k == ResourceTasks || k == ResourceDepartments
}
