package scopedcache

import (
	"testing"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/scope"
	"github.com/stretchr/testify/assert"
)

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func TestReadTags(t *testing.T) {
	tests := []struct {
		name    string
		filter  scope.ScopeFilter
		filters map[string]string
		want    []string
	}{
		{
			name:   "unconstrained",
			filter: scope.ScopeFilter{OrganizationID: hierarchy.Wildcard, DepartmentCodes: []string{hierarchy.Wildcard}},
			want:   []string{"users", "users:all", "users:list"},
		},
		{
			name:   "organization",
			filter: scope.ScopeFilter{OrganizationID: "org-1"},
			want:   []string{"users", "users:list", "users:org:org-1"},
		},
		{
			name:   "unit subtree",
			filter: scope.ScopeFilter{OrganizationID: "org-1", UnitID: "R1", IncludeDescendants: true},
			want:   []string{"users", "users:list", "users:org:org-1", "users:unit:R1"},
		},
		{
			name:   "match none",
			filter: scope.None(),
			want:   []string{"users", "users:list", "users:none"},
		},
		{
			name:    "request filters",
			filter:  scope.ScopeFilter{OrganizationID: "org-1"},
			filters: map[string]string{"Unit_ID": "S1", "role": "store_manager", "status": "active"},
			want: []string{
				"users", "users:list", "users:org:org-1",
				"users:role:STORE_MANAGER", "users:unit:S1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadTags(hierarchy.ResourceUsers, tt.filter, tt.filters))
		})
	}
}

func TestItemTags(t *testing.T) {
	assert.Equal(t, []string{"stores", "stores:id:S1"}, ItemTags(hierarchy.ResourceStores, "S1"))
}

// Any read whose scope could contain the entity must share a tag with the
// entity's write tags.
func TestWriteTags_CoverEveryReadScope(t *testing.T) {
	user := &Entity{
		Resource:       hierarchy.ResourceUsers,
		ID:             "u-7",
		OrganizationID: "org-1",
		UnitID:         "S1",
		UnitChain:      []string{"R1", "C1"},
		Role:           hierarchy.RoleStoreManager,
	}
	write := WriteTags(user, user)

	reads := map[string][]string{
		"master": ReadTags(hierarchy.ResourceUsers, scope.ScopeFilter{OrganizationID: hierarchy.Wildcard}, nil),
		"go":     ReadTags(hierarchy.ResourceUsers, scope.ScopeFilter{OrganizationID: "org-1"}, nil),
		"gr": ReadTags(hierarchy.ResourceUsers,
			scope.ScopeFilter{OrganizationID: "org-1", UnitID: "R1", IncludeDescendants: true}, nil),
		"store manager": ReadTags(hierarchy.ResourceUsers,
			scope.ScopeFilter{OrganizationID: "org-1", UnitID: "S1"}, nil),
		"role filtered": ReadTags(hierarchy.ResourceUsers,
			scope.ScopeFilter{OrganizationID: hierarchy.Wildcard}, map[string]string{"role": "STORE_MANAGER"}),
		"item": ItemTags(hierarchy.ResourceUsers, "u-7"),
	}

	for name, tags := range reads {
		t.Run(name, func(t *testing.T) {
			assert.True(t, intersects(write, tags), "write tags %v miss read tags %v", write, tags)
		})
	}

	// Reads that cannot contain the user are left alone.
	other := ReadTags(hierarchy.ResourceUsers, scope.ScopeFilter{OrganizationID: "org-1", UnitID: "R2", IncludeDescendants: true}, nil)
	assert.Contains(t, other, "users:org:org-1")
	assert.NotContains(t, write, "users:unit:R2")
}

func TestWriteTags_OrganizationChange(t *testing.T) {
	before := &Entity{Resource: hierarchy.ResourceUsers, ID: "u-1", OrganizationID: "org-a", Role: hierarchy.RoleGO}
	after := &Entity{Resource: hierarchy.ResourceUsers, ID: "u-1", OrganizationID: "org-b", Role: hierarchy.RoleGO}

	tags := WriteTags(before, after)
	assert.Contains(t, tags, "users:org:org-a")
	assert.Contains(t, tags, "users:org:org-b")
	assert.Contains(t, tags, "users:id:u-1")
	assert.Contains(t, tags, "users:all")
	assert.Contains(t, tags, "users:role:GO")
}

func TestWriteTags_Cascades(t *testing.T) {
	store := &Entity{
		Resource:       hierarchy.ResourceStores,
		ID:             "S1",
		OrganizationID: "org-1",
		UnitID:         "S1",
		UnitChain:      []string{"R1", "C1"},
	}
	tags := WriteTags(store, nil)

	for _, res := range []hierarchy.ResourceKind{hierarchy.ResourceUsers, hierarchy.ResourceTasks, hierarchy.ResourceUnits} {
		assert.Contains(t, tags, UnitTag(res, "S1"))
		assert.Contains(t, tags, UnitTag(res, "R1"))
		assert.Contains(t, tags, OrgTag(res, "org-1"))
		assert.Contains(t, tags, AllTag(res))
	}
	assert.Contains(t, tags, IDTag(hierarchy.ResourceStores, "S1"))
	assert.NotContains(t, tags, IDTag(hierarchy.ResourceUsers, "S1"))
}

func TestWriteTags_SortedAndUnique(t *testing.T) {
	e := &Entity{Resource: hierarchy.ResourceTasks, ID: "t-1", OrganizationID: "org-1", UnitID: "S1"}
	tags := WriteTags(e, e)

	seen := make(map[string]bool)
	for i, tag := range tags {
		assert.False(t, seen[tag], "duplicate tag %s", tag)
		seen[tag] = true
		if i > 0 {
			assert.Less(t, tags[i-1], tag)
		}
	}
	assert.Empty(t, WriteTags(nil, nil))
}

func TestEntityTags(t *testing.T) {
	e := &Entity{Resource: hierarchy.ResourceTasks, ID: "t-1", OrganizationID: "org-1", UnitID: "S1"}
	assert.Equal(t, WriteTags(e, e), EntityTags(e))
}
