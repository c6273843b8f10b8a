package hierarchy

import (
	"strings"
)

// Role represents a hierarchy role
type Role string

const (
	RoleMaster       Role = "MASTER"
	RoleGO           Role = "GO"
	RoleGR           Role = "GR"
	RoleStoreManager Role = "STORE_MANAGER"

	// RoleNone is used for users without an active position
	RoleNone Role = ""
)

// roleRank is the authority rank table. Unknown roles rank 0.
var roleRank = map[Role]int{
	RoleMaster:       4,
	RoleGO:           3,
	RoleGR:           2,
	RoleStoreManager: 1,
}

// Roles returns all known roles in descending authority order
func Roles() []Role {
	return []Role{RoleMaster, RoleGO, RoleGR, RoleStoreManager}
}

// Level returns the role's rank
func (r Role) Level() int {
	return roleRank[r]
}

// Outranks reports whether r has strictly more authority than other
func (r Role) Outranks(other Role) bool {
	return r.Level() > other.Level()
}

// Valid reports whether r is one of the four hierarchy roles
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// String returns the role name
func (r Role) String() string {
	if r == RoleNone {
		return "NONE"
	}
	return string(r)
}

// ParseRole parses a role name. Unknown names map to RoleNone so that
// a malformed value never grants authority.
func ParseRole(s string) Role {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if r.Valid() {
		return r
	}
	return RoleNone
}

// RoleForLevel maps a stored position level to its role
func RoleForLevel(level int) Role {
	for role, rank := range roleRank {
		if rank == level {
			return role
		}
	}
	return RoleNone
}
