package scopedcache

import (
	"sort"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/scope"
)

// Tag derivation lives in this file only. Read paths tag entries with
// ReadTags or ItemTags; write paths invalidate WriteTags. Every tag a read
// can carry for an entity is produced by WriteTags for that entity.

// ClassTag tags every cached read of a resource
func ClassTag(res hierarchy.ResourceKind) string { return string(res) }

// ListTag tags every cached list of a resource
func ListTag(res hierarchy.ResourceKind) string { return string(res) + ":list" }

// AllTag tags unconstrained lists
func AllTag(res hierarchy.ResourceKind) string { return string(res) + ":all" }

// NoneTag tags lists resolved with the impossible scope
func NoneTag(res hierarchy.ResourceKind) string { return string(res) + ":none" }

// OrgTag tags reads scoped to an organization
func OrgTag(res hierarchy.ResourceKind, orgID string) string {
	return string(res) + ":org:" + orgID
}

// UnitTag tags reads scoped to a unit
func UnitTag(res hierarchy.ResourceKind, unitID string) string {
	return string(res) + ":unit:" + unitID
}

// RoleTag tags reads filtered by a role
func RoleTag(res hierarchy.ResourceKind, role hierarchy.Role) string {
	return string(res) + ":role:" + role.String()
}

// IDTag tags single-entity reads
func IDTag(res hierarchy.ResourceKind, id string) string {
	return string(res) + ":id:" + id
}

// Filter keys that narrow a list to an organization, unit or role
const (
	FilterOrganization = "organization_id"
	FilterUnit         = "unit_id"
	FilterRole         = "role"
)

// ReadTags returns the tags for a scoped list read
func ReadTags(res hierarchy.ResourceKind, f scope.ScopeFilter, filters map[string]string) []string {
	tags := newTagSet(ClassTag(res), ListTag(res))

	switch {
	case f.MatchNone:
		tags.add(NoneTag(res))
	case f.HasUnit():
		tags.add(UnitTag(res, f.UnitID))
	case f.HasOrganization():
		tags.add(OrgTag(res, f.OrganizationID))
	default:
		tags.add(AllTag(res))
	}
	if f.HasUnit() && f.HasOrganization() {
		tags.add(OrgTag(res, f.OrganizationID))
	}

	filters = NormalizeFilters(filters)
	if org := filters[FilterOrganization]; org != "" {
		tags.add(OrgTag(res, org))
	}
	if unit := filters[FilterUnit]; unit != "" {
		tags.add(UnitTag(res, unit))
	}
	if role := filters[FilterRole]; role != "" {
		tags.add(RoleTag(res, hierarchy.ParseRole(role)))
	}
	return tags.sorted()
}

// ItemTags returns the tags for a single-entity read
func ItemTags(res hierarchy.ResourceKind, id string) []string {
	return newTagSet(ClassTag(res), IDTag(res, id)).sorted()
}

// Entity is the scoping projection of a written record
type Entity struct {
	Resource       hierarchy.ResourceKind
	ID             string
	OrganizationID string

	// UnitID is the unit the record belongs to; for unit records, the unit itself
	UnitID string

	// UnitChain lists UnitID's ancestors
	UnitChain []string

	Role hierarchy.Role
}

// cascades lists the resources whose scoped reads depend on a resource's
// rows. Unit rows define visibility of everything attached to them.
var cascades = map[hierarchy.ResourceKind][]hierarchy.ResourceKind{
	hierarchy.ResourceOrganizations: {
		hierarchy.ResourceUnits, hierarchy.ResourceRegions, hierarchy.ResourceStores,
		hierarchy.ResourceUsers, hierarchy.ResourceTasks, hierarchy.ResourceDepartments,
	},
	hierarchy.ResourceRegions: {
		hierarchy.ResourceUnits, hierarchy.ResourceStores, hierarchy.ResourceUsers, hierarchy.ResourceTasks,
	},
	hierarchy.ResourceStores: {
		hierarchy.ResourceUnits, hierarchy.ResourceUsers, hierarchy.ResourceTasks,
	},
	hierarchy.ResourceUnits: {
		hierarchy.ResourceRegions, hierarchy.ResourceStores, hierarchy.ResourceUsers, hierarchy.ResourceTasks,
	},
	hierarchy.ResourceDepartments: {
		hierarchy.ResourceTasks, hierarchy.ResourceUsers,
	},
}

// EntityTags returns the tags a write to e invalidates when nothing about its
// placement changes
func EntityTags(e *Entity) []string {
	return WriteTags(e, nil)
}

// WriteTags returns every tag that a read could have attached to data derived
// from the entity, before and after the write. Either side may be nil for
// creates and deletes.
func WriteTags(before, after *Entity) []string {
	tags := newTagSet()
	for _, e := range []*Entity{before, after} {
		if e == nil {
			continue
		}
		entityTags(tags, e.Resource, e)
		for _, dep := range cascades[e.Resource] {
			entityTags(tags, dep, e)
		}
	}
	return tags.sorted()
}

func entityTags(tags tagSet, res hierarchy.ResourceKind, e *Entity) {
	tags.add(AllTag(res))
	if e.ID != "" && res == e.Resource {
		tags.add(IDTag(res, e.ID))
	}
	if e.OrganizationID != "" {
		tags.add(OrgTag(res, e.OrganizationID))
	}
	if e.UnitID != "" {
		tags.add(UnitTag(res, e.UnitID))
	}
	for _, u := range e.UnitChain {
		tags.add(UnitTag(res, u))
	}
	if e.Role != hierarchy.RoleNone {
		tags.add(RoleTag(res, e.Role))
	}
}

type tagSet map[string]struct{}

func newTagSet(tags ...string) tagSet {
	s := make(tagSet, len(tags))
	for _, t := range tags {
		s.add(t)
	}
	return s
}

func (s tagSet) add(tag string) {
	s[tag] = struct{}{}
}

func (s tagSet) sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
