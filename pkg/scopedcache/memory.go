package scopedcache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     []byte
	tags      []string
	expiresAt time.Time
}

// MemoryBackend is an in-process backend built on expirable LRUs. It suits
// single-instance deployments and tests; invalidations are not shared
// between processes.
//
// Lock order: mu, then the LRU's internal lock, then tagMu. The eviction
// callback runs under the LRU lock and only takes tagMu.
type MemoryBackend struct {
	mu      sync.Mutex
	entries *lru.LRU[string, memoryEntry]

	tagMu sync.Mutex
	tags  map[string]map[string]struct{}

	popMu      sync.Mutex
	popularity *lru.LRU[string, int64]
}

// NewMemoryBackend creates a new in-memory backend. maxTTL bounds every
// entry; shorter per-entry TTLs are enforced on read.
func NewMemoryBackend(maxEntries int, maxTTL, popularityWindow time.Duration) *MemoryBackend {
	if maxEntries < 10 {
		maxEntries = 10
	}

	b := &MemoryBackend{
		tags: make(map[string]map[string]struct{}),
	}
	b.entries = lru.NewLRU[string, memoryEntry](maxEntries, b.onEvict, maxTTL)
	b.popularity = lru.NewLRU[string, int64](maxEntries*4, nil, popularityWindow)
	return b
}

func (b *MemoryBackend) onEvict(key string, e memoryEntry) {
	b.tagMu.Lock()
	defer b.tagMu.Unlock()
	for _, tag := range e.tags {
		if keys, ok := b.tags[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(b.tags, tag)
			}
		}
	}
}

// Get implements Backend
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, ok := b.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		b.entries.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Backend
func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries.Add(key, memoryEntry{
		value:     value,
		tags:      append([]string(nil), tags...),
		expiresAt: time.Now().Add(ttl),
	})

	b.tagMu.Lock()
	for _, tag := range tags {
		keys, ok := b.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			b.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	b.tagMu.Unlock()

	return nil
}

// Delete implements Backend
func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.entries.Remove(key)
	return nil
}

// InvalidateTags implements Backend
func (b *MemoryBackend) InvalidateTags(ctx context.Context, tags []string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	victims := make(map[string]struct{})
	b.tagMu.Lock()
	for _, tag := range tags {
		for key := range b.tags[tag] {
			victims[key] = struct{}{}
		}
		delete(b.tags, tag)
	}
	b.tagMu.Unlock()

	removed := 0
	for key := range victims {
		if b.entries.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

// IncrPopularity implements Backend
func (b *MemoryBackend) IncrPopularity(ctx context.Context, key string) (int64, error) {
	b.popMu.Lock()
	defer b.popMu.Unlock()

	n, _ := b.popularity.Get(key)
	n++
	b.popularity.Add(key, n)
	return n, nil
}

// Popularity implements Backend
func (b *MemoryBackend) Popularity(ctx context.Context, key string) (int64, error) {
	n, _ := b.popularity.Peek(key)
	return n, nil
}

// Len returns the number of live entries
func (b *MemoryBackend) Len() int {
	return b.entries.Len()
}

// Close implements Backend
func (b *MemoryBackend) Close() error {
	b.entries.Purge()
	b.popularity.Purge()
	return nil
}
