package scopedcache

import (
	"context"
	"time"
)

// Backend is the key-value store behind the cache. Implementations must be
// safe for concurrent use and provide atomic per-key operations; no cross-key
// transactions are required.
type Backend interface {
	// Get returns the value of key; a miss is (nil, false, nil)
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with ttl and records key under each tag
	Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error

	// Delete removes a single key
	Delete(ctx context.Context, key string) error

	// InvalidateTags removes every key recorded under any of tags and
	// returns the number of keys removed
	InvalidateTags(ctx context.Context, tags []string) (int, error)

	// IncrPopularity increments the key's popularity counter and returns the
	// new value. Counters expire after the backend's popularity window.
	IncrPopularity(ctx context.Context, key string) (int64, error)

	// Popularity returns the key's current popularity counter
	Popularity(ctx context.Context, key string) (int64, error)

	// Close releases backend resources
	Close() error
}
