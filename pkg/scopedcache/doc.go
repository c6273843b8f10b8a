// Package scopedcache caches scoped reads under deterministic keys and
// invalidates them through tags.
//
// Keys are built from a KeySpec, so two users with the same role and scope
// asking the same question share one entry. Entries carry tags derived in
// tags.go: reads attach ReadTags or ItemTags, and writes invalidate
// WriteTags for the entity before and after the change.
//
// Every hit bumps a per-key popularity counter that lives for a sliding
// window. When a key is recomputed its TTL is chosen from that counter:
//
//	counter > HotThreshold   long TTL for the resource
//	counter > WarmThreshold  medium TTL
//	otherwise                short TTL
//
// Two backends are provided. RedisBackend keeps one Redis set per tag and
// is shared across instances. MemoryBackend uses expirable LRUs and only
// sees its own process.
//
// Usage:
//
//	key := scopedcache.KeySpec{Resource: res, Role: uctx.Role, Scope: filter.Key()}.String()
//	stores, err := scopedcache.Remember(ctx, cache, key, res, scopedcache.ReadTags(res, filter, nil), load)
package scopedcache
