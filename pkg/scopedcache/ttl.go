package scopedcache

import (
	"fmt"
	"time"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

// TTLPolicy selects entry lifetimes from key popularity
type TTLPolicy struct {
	Short  time.Duration `yaml:"short"`
	Medium time.Duration `yaml:"medium"`

	// Long is the hot-key TTL per resource; DefaultLong covers the rest
	Long        map[hierarchy.ResourceKind]time.Duration `yaml:"long"`
	DefaultLong time.Duration                            `yaml:"default_long"`

	// Counter > HotThreshold selects Long, counter > WarmThreshold selects Medium
	WarmThreshold int64 `yaml:"warm_threshold"`
	HotThreshold  int64 `yaml:"hot_threshold"`

	// PopularityWindow is the lifetime of a popularity counter
	PopularityWindow time.Duration `yaml:"popularity_window"`
}

// DefaultTTLPolicy returns the default policy
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Short:  5 * time.Minute,
		Medium: 15 * time.Minute,
		Long: map[hierarchy.ResourceKind]time.Duration{
			hierarchy.ResourceOrganizations: 60 * time.Minute,
			hierarchy.ResourceRegions:       60 * time.Minute,
			hierarchy.ResourceStores:        60 * time.Minute,
			hierarchy.ResourceUnits:         60 * time.Minute,
			hierarchy.ResourceDepartments:   60 * time.Minute,
			hierarchy.ResourceUsers:         30 * time.Minute,
			hierarchy.ResourceTasks:         30 * time.Minute,
		},
		DefaultLong:      30 * time.Minute,
		WarmThreshold:    5,
		HotThreshold:     20,
		PopularityWindow: 24 * time.Hour,
	}
}

// LongFor returns the hot TTL of a resource
func (p TTLPolicy) LongFor(resource hierarchy.ResourceKind) time.Duration {
	if ttl, ok := p.Long[resource]; ok && ttl > 0 {
		return ttl
	}
	return p.DefaultLong
}

// Select returns the TTL for a key of resource with the given popularity
func (p TTLPolicy) Select(resource hierarchy.ResourceKind, popularity int64) time.Duration {
	switch {
	case popularity > p.HotThreshold:
		return p.LongFor(resource)
	case popularity > p.WarmThreshold:
		return p.Medium
	default:
		return p.Short
	}
}

// MaxTTL returns the longest TTL the policy can select
func (p TTLPolicy) MaxTTL() time.Duration {
	longest := p.Short
	for _, d := range []time.Duration{p.Medium, p.DefaultLong} {
		if d > longest {
			longest = d
		}
	}
	for _, d := range p.Long {
		if d > longest {
			longest = d
		}
	}
	return longest
}

// Validate checks the policy is usable and monotonic
func (p TTLPolicy) Validate() error {
	if p.Short <= 0 || p.Medium <= 0 || p.DefaultLong <= 0 {
		return fmt.Errorf("ttl tiers must be positive")
	}
	if p.Medium < p.Short {
		return fmt.Errorf("medium ttl %s is shorter than short ttl %s", p.Medium, p.Short)
	}
	if p.DefaultLong < p.Medium {
		return fmt.Errorf("default long ttl %s is shorter than medium ttl %s", p.DefaultLong, p.Medium)
	}
	for res, ttl := range p.Long {
		if ttl < p.Medium {
			return fmt.Errorf("long ttl for %s (%s) is shorter than medium ttl %s", res, ttl, p.Medium)
		}
	}
	if p.WarmThreshold < 0 || p.HotThreshold < p.WarmThreshold {
		return fmt.Errorf("popularity thresholds must satisfy 0 <= warm <= hot")
	}
	if p.PopularityWindow <= 0 {
		return fmt.Errorf("popularity window must be positive")
	}
	return nil
}
