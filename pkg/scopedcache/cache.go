package scopedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/platinummonkey/orgscope/pkg/scopedcache")

// Recorder receives cache events, typically for metrics
type Recorder interface {
	CacheHit(resource string)
	CacheMiss(resource string)
	CacheInvalidated(tags, keys int)
	CacheError(operation string)
}

type noopRecorder struct{}

func (noopRecorder) CacheHit(string)           {}
func (noopRecorder) CacheMiss(string)          {}
func (noopRecorder) CacheInvalidated(int, int) {}
func (noopRecorder) CacheError(string)         {}

// Stats represents cache statistics
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	Invalidations int64   `json:"invalidations"`
}

// Cache is the tagged, popularity-aware cache for scoped reads. It owns its
// entries; callers only see values through Get and Remember.
type Cache struct {
	backend  Backend
	policy   atomic.Pointer[TTLPolicy]
	group    singleflight.Group
	recorder Recorder
	log      *logrus.Logger

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// New creates a new cache over backend
func New(backend Backend, policy TTLPolicy, log *logrus.Logger, recorder Recorder) (*Cache, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ttl policy: %w", err)
	}
	if log == nil {
		log = logrus.New()
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	c := &Cache{backend: backend, recorder: recorder, log: log}
	c.policy.Store(&policy)
	return c, nil
}

// Policy returns the active TTL policy
func (c *Cache) Policy() TTLPolicy {
	return *c.policy.Load()
}

// SetPolicy replaces the TTL policy for subsequent puts
func (c *Cache) SetPolicy(p TTLPolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid ttl policy: %w", err)
	}
	c.policy.Store(&p)
	c.log.WithFields(logrus.Fields{
		"short":  p.Short.String(),
		"medium": p.Medium.String(),
		"hot":    p.HotThreshold,
		"warm":   p.WarmThreshold,
	}).Info("cache ttl policy updated")
	return nil
}

// Get loads the value of key into dest. A miss returns (false, nil). Every
// hit increments the key's popularity counter.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	resource := ResourceOf(key)

	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.recorder.CacheError("get")
		return false, err
	}
	if !ok {
		c.misses.Add(1)
		c.recorder.CacheMiss(resource)
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("dropping corrupt cache entry")
		_ = c.backend.Delete(ctx, key)
		c.misses.Add(1)
		c.recorder.CacheMiss(resource)
		return false, nil
	}

	c.hits.Add(1)
	c.recorder.CacheHit(resource)
	if _, err := c.backend.IncrPopularity(ctx, key); err != nil {
		c.recorder.CacheError("popularity")
		c.log.WithError(err).WithField("key", key).Debug("failed to bump popularity")
	}
	return true, nil
}

// Put stores value under key with the given tags and ttl
func (c *Cache) Put(ctx context.Context, key string, value interface{}, tags []string, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := c.backend.Set(ctx, key, data, tags, ttl); err != nil {
		c.recorder.CacheError("put")
		return err
	}
	return nil
}

// InvalidateTags removes every entry carrying any of tags
func (c *Cache) InvalidateTags(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}

	removed, err := c.backend.InvalidateTags(ctx, tags)
	if err != nil {
		c.recorder.CacheError("invalidate")
		return fmt.Errorf("failed to invalidate tags: %w", err)
	}

	c.invalidations.Add(1)
	c.recorder.CacheInvalidated(len(tags), removed)
	c.log.WithFields(logrus.Fields{
		"tags":    len(tags),
		"removed": removed,
	}).Debug("cache tags invalidated")
	return nil
}

// Popularity returns the popularity counter of key
func (c *Cache) Popularity(ctx context.Context, key string) (int64, error) {
	return c.backend.Popularity(ctx, key)
}

// SelectTTL picks the TTL for recomputing key from its popularity. Backend
// errors fall back to the short tier.
func (c *Cache) SelectTTL(ctx context.Context, key string, resource hierarchy.ResourceKind) time.Duration {
	policy := c.Policy()
	n, err := c.backend.Popularity(ctx, key)
	if err != nil {
		c.recorder.CacheError("popularity")
		return policy.Short
	}
	return policy.Select(resource, n)
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	stats := Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close closes the backend
func (c *Cache) Close() error {
	return c.backend.Close()
}

// Remember returns the cached value of key, computing and storing it with
// tags on a miss. The TTL comes from the key's popularity. Concurrent misses
// on the same key share one computation, and therefore one result value.
// Backend failures degrade to computing without the cache.
func Remember[T any](ctx context.Context, c *Cache, key string, resource hierarchy.ResourceKind, tags []string, compute func(context.Context) (T, error)) (T, error) {
	return remember(ctx, c, key, tags, func() time.Duration {
		return c.SelectTTL(ctx, key, resource)
	}, compute)
}

// RememberFixed is Remember with a fixed TTL instead of the popularity policy
func RememberFixed[T any](ctx context.Context, c *Cache, key string, tags []string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	return remember(ctx, c, key, tags, func() time.Duration { return ttl }, compute)
}

func remember[T any](ctx context.Context, c *Cache, key string, tags []string, ttlFor func() time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	ok, err := c.Get(ctx, key, &cached)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache read failed, computing")
	} else if ok {
		return cached, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		ctx, span := tracer.Start(ctx, "scopedcache.compute", trace.WithAttributes(attribute.String("orgscope.cache_key", key)))
		defer span.End()

		value, err := compute(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compute failed")
			return nil, err
		}
		if err := c.Put(ctx, key, value, tags, ttlFor()); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("cache write failed")
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if shared {
		trace.SpanFromContext(ctx).AddEvent("scopedcache.shared_compute")
	}
	return v.(T), nil
}
