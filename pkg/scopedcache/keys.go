package scopedcache

// Cache key generation for scoped reads.
//
// Key Invariants:
// 1. Same logical query (role, scope, filters, pagination, sort) = same key
// 2. Filter map order never affects the key (keys are sorted)
// 3. Filter key case and surrounding whitespace are normalized
// 4. Empty filter values are dropped: an absent filter and an empty one are the same query
// 5. Different users in the same role and scope share keys
//
// Key Format: "<resource>:<role>:<scope>:<filters-hash>:p<page>:n<per-page>:s<sort>"

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

// KeySpec describes a scoped read
type KeySpec struct {
	Resource hierarchy.ResourceKind
	Role     hierarchy.Role
	Scope    string // scope.ScopeFilter.Key()
	Filters  map[string]string
	Page     int
	PerPage  int
	Sort     string
}

// Validate checks that the spec can produce a key
func (k KeySpec) Validate() error {
	if k.Resource == "" {
		return fmt.Errorf("%w: resource required", ErrInvalidKey)
	}
	if k.Scope == "" {
		return fmt.Errorf("%w: scope required", ErrInvalidKey)
	}
	return nil
}

// String returns the deterministic cache key
func (k KeySpec) String() string {
	page := k.Page
	if page < 1 {
		page = 1
	}
	perPage := k.PerPage
	if perPage < 0 {
		perPage = 0
	}
	sortSpec := strings.ToLower(strings.TrimSpace(k.Sort))
	if sortSpec == "" {
		sortSpec = "default"
	}

	parts := []string{
		string(k.Resource),
		k.Role.String(),
		k.Scope,
		hashFilters(NormalizeFilters(k.Filters)),
		fmt.Sprintf("p%d", page),
		fmt.Sprintf("n%d", perPage),
		"s" + sortSpec,
	}
	return strings.Join(parts, ":")
}

// NormalizeFilters lowercases and trims keys, trims values, and drops empty values
func NormalizeFilters(filters map[string]string) map[string]string {
	out := make(map[string]string, len(filters))
	for k, v := range filters {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// hashFilters hashes the sorted filter set. "-" denotes no filters.
func hashFilters(filters map[string]string) string {
	if len(filters) == 0 {
		return "-"
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(filters[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ResourceOf extracts the resource segment of a key
func ResourceOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
