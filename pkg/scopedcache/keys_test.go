package scopedcache

import (
	"strings"
	"testing"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySpec_Deterministic(t *testing.T) {
	base := KeySpec{
		Resource: hierarchy.ResourceUsers,
		Role:     hierarchy.RoleGR,
		Scope:    "org=org-1;unit=R1+",
		Filters:  map[string]string{"status": "active", "role": "STORE_MANAGER"},
		Page:     2,
		PerPage:  20,
		Sort:     "name",
	}

	reordered := base
	reordered.Filters = map[string]string{"role": "STORE_MANAGER", "status": "active"}
	assert.Equal(t, base.String(), reordered.String())

	messy := base
	messy.Filters = map[string]string{" Status ": " active", "ROLE": "STORE_MANAGER", "empty": "  "}
	messy.Sort = " NAME "
	assert.Equal(t, base.String(), messy.String())

	for i := 0; i < 10; i++ {
		assert.Equal(t, base.String(), base.String())
	}
}

func TestKeySpec_Distinguishes(t *testing.T) {
	base := KeySpec{
		Resource: hierarchy.ResourceUsers,
		Role:     hierarchy.RoleGR,
		Scope:    "org=org-1;unit=R1+",
		Page:     1,
		PerPage:  20,
	}

	variants := map[string]KeySpec{}
	v := base
	v.Resource = hierarchy.ResourceTasks
	variants["resource"] = v
	v = base
	v.Role = hierarchy.RoleGO
	variants["role"] = v
	v = base
	v.Scope = "org=org-1;unit=R2+"
	variants["scope"] = v
	v = base
	v.Filters = map[string]string{"status": "active"}
	variants["filters"] = v
	v = base
	v.Page = 2
	variants["page"] = v
	v = base
	v.PerPage = 50
	variants["per page"] = v
	v = base
	v.Sort = "created_at"
	variants["sort"] = v

	for name, variant := range variants {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, base.String(), variant.String())
		})
	}
}

func TestKeySpec_Format(t *testing.T) {
	key := KeySpec{
		Resource: hierarchy.ResourceStores,
		Role:     hierarchy.RoleMaster,
		Scope:    "all",
	}.String()
	assert.Equal(t, "stores:MASTER:all:-:p1:n0:sdefault", key)
	assert.Equal(t, "stores", ResourceOf(key))

	filtered := KeySpec{
		Resource: hierarchy.ResourceStores,
		Role:     hierarchy.RoleMaster,
		Scope:    "all",
		Filters:  map[string]string{"status": "active"},
	}.String()
	parts := strings.Split(filtered, ":")
	require.Len(t, parts, 7)
	assert.Len(t, parts[3], 16)
}

func TestKeySpec_Validate(t *testing.T) {
	assert.NoError(t, KeySpec{Resource: hierarchy.ResourceUsers, Scope: "none"}.Validate())
	assert.ErrorIs(t, KeySpec{Scope: "all"}.Validate(), ErrInvalidKey)
	assert.ErrorIs(t, KeySpec{Resource: hierarchy.ResourceUsers}.Validate(), ErrInvalidKey)
}

func TestResourceOf(t *testing.T) {
	assert.Equal(t, "usercontext", ResourceOf("usercontext:u-1"))
	assert.Equal(t, "plain", ResourceOf("plain"))
	assert.Equal(t, ":leading", ResourceOf(":leading"))
}
