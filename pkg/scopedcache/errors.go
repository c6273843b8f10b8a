package scopedcache

import "errors"

var (
	// ErrInvalidKey is returned when a cache key cannot be built
	ErrInvalidKey = errors.New("scopedcache: invalid key")

	// ErrInvalidTTL is returned when an entry would never expire
	ErrInvalidTTL = errors.New("scopedcache: ttl must be positive")
)
