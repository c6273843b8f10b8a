package scopedcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisBackendTest creates a Redis backend against miniredis
func setupRedisBackendTest(t *testing.T) (*RedisBackend, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := DialRedis(context.Background(), RedisOptions{URL: "redis://" + mr.Addr(), DB: -1})
	require.NoError(t, err)

	backend := NewRedisBackend(client, "orgscope", 2*time.Hour, 24*time.Hour)
	cleanup := func() {
		backend.Close()
		mr.Close()
	}
	return backend, mr, cleanup
}

type backendCase struct {
	name    string
	backend Backend
	// advance moves the backend clock past ttl
	advance func(d time.Duration)
	cleanup func()
}

func backendCases(t *testing.T) []backendCase {
	redisBackend, mr, cleanup := setupRedisBackendTest(t)
	return []backendCase{
		{
			name:    "redis",
			backend: redisBackend,
			advance: mr.FastForward,
			cleanup: cleanup,
		},
		{
			name:    "memory",
			backend: NewMemoryBackend(100, time.Hour, 24*time.Hour),
			advance: func(d time.Duration) { time.Sleep(d) },
			cleanup: func() {},
		},
	}
}

func TestBackend_Contract(t *testing.T) {
	ctx := context.Background()

	for _, bc := range backendCases(t) {
		bc := bc
		t.Run(bc.name, func(t *testing.T) {
			defer bc.cleanup()
			b := bc.backend

			t.Run("miss", func(t *testing.T) {
				data, ok, err := b.Get(ctx, "users:GR:unit=R1+:-:p1:n20:sdefault")
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Nil(t, data)
			})

			t.Run("round trip", func(t *testing.T) {
				require.NoError(t, b.Set(ctx, "k1", []byte(`{"a":1}`), []string{"users", "users:org:org-1"}, time.Minute))
				data, ok, err := b.Get(ctx, "k1")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, `{"a":1}`, string(data))
			})

			t.Run("rejects non-positive ttl", func(t *testing.T) {
				assert.ErrorIs(t, b.Set(ctx, "k0", []byte("x"), nil, 0), ErrInvalidTTL)
			})

			t.Run("invalidate by tag", func(t *testing.T) {
				require.NoError(t, b.Set(ctx, "a", []byte("1"), []string{"t:x", "t:shared"}, time.Minute))
				require.NoError(t, b.Set(ctx, "b", []byte("2"), []string{"t:y", "t:shared"}, time.Minute))
				require.NoError(t, b.Set(ctx, "c", []byte("3"), []string{"t:z"}, time.Minute))

				removed, err := b.InvalidateTags(ctx, []string{"t:shared", "t:x"})
				require.NoError(t, err)
				assert.Equal(t, 2, removed)

				_, ok, _ := b.Get(ctx, "a")
				assert.False(t, ok)
				_, ok, _ = b.Get(ctx, "b")
				assert.False(t, ok)
				_, ok, _ = b.Get(ctx, "c")
				assert.True(t, ok)

				removed, err = b.InvalidateTags(ctx, []string{"t:unknown"})
				require.NoError(t, err)
				assert.Zero(t, removed)
			})

			t.Run("retag after invalidate", func(t *testing.T) {
				require.NoError(t, b.Set(ctx, "d", []byte("4"), []string{"t:again"}, time.Minute))
				_, err := b.InvalidateTags(ctx, []string{"t:again"})
				require.NoError(t, err)
				require.NoError(t, b.Set(ctx, "d", []byte("5"), []string{"t:again"}, time.Minute))

				removed, err := b.InvalidateTags(ctx, []string{"t:again"})
				require.NoError(t, err)
				assert.Equal(t, 1, removed)
			})

			t.Run("delete", func(t *testing.T) {
				require.NoError(t, b.Set(ctx, "e", []byte("6"), nil, time.Minute))
				require.NoError(t, b.Delete(ctx, "e"))
				_, ok, _ := b.Get(ctx, "e")
				assert.False(t, ok)
			})

			t.Run("popularity", func(t *testing.T) {
				n, err := b.Popularity(ctx, "hot")
				require.NoError(t, err)
				assert.Zero(t, n)

				for i := 1; i <= 3; i++ {
					n, err = b.IncrPopularity(ctx, "hot")
					require.NoError(t, err)
					assert.Equal(t, int64(i), n)
				}
				n, err = b.Popularity(ctx, "hot")
				require.NoError(t, err)
				assert.Equal(t, int64(3), n)
			})

			t.Run("expiry", func(t *testing.T) {
				require.NoError(t, b.Set(ctx, "short", []byte("x"), []string{"t:short"}, 50*time.Millisecond))
				bc.advance(120 * time.Millisecond)
				_, ok, err := b.Get(ctx, "short")
				require.NoError(t, err)
				assert.False(t, ok)
			})
		})
	}
}

func TestRedisBackend_KeyLayout(t *testing.T) {
	ctx := context.Background()
	b, mr, cleanup := setupRedisBackendTest(t)
	defer cleanup()

	require.NoError(t, b.Set(ctx, "users:GO:org=org-1", []byte("[]"), []string{"users:org:org-1"}, 5*time.Minute))

	assert.True(t, mr.Exists("orgscope:entry:users:GO:org=org-1"))
	members, err := mr.SMembers("orgscope:tag:users:org:org-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:GO:org=org-1"}, members)

	// Tag sets outlive their members.
	assert.Equal(t, 5*time.Minute, mr.TTL("orgscope:entry:users:GO:org=org-1"))
	assert.Equal(t, 2*time.Hour, mr.TTL("orgscope:tag:users:org:org-1"))

	_, err = b.IncrPopularity(ctx, "users:GO:org=org-1")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, mr.TTL("orgscope:pop:users:GO:org=org-1"))
}

func TestRedisBackend_ErrorsWhenDown(t *testing.T) {
	ctx := context.Background()
	b, mr, cleanup := setupRedisBackendTest(t)
	defer cleanup()

	mr.Close()

	_, _, err := b.Get(ctx, "k")
	assert.Error(t, err)
	_, err = b.InvalidateTags(ctx, []string{"t"})
	assert.Error(t, err)
}

func TestDialRedis_InvalidURL(t *testing.T) {
	_, err := DialRedis(context.Background(), RedisOptions{URL: "not a url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

func TestDialRedis_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = DialRedis(context.Background(), RedisOptions{URL: "redis://" + addr, DB: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestMemoryBackend_EvictionCleansTags(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(10, time.Hour, time.Hour)

	for i := 0; i < 15; i++ {
		key := string(rune('a' + i))
		require.NoError(t, b.Set(ctx, key, []byte("v"), []string{"t:" + key, "t:all"}, time.Minute))
	}
	assert.Equal(t, 10, b.Len())

	b.tagMu.Lock()
	assert.Len(t, b.tags["t:all"], 10)
	_, stillIndexed := b.tags["t:a"]
	b.tagMu.Unlock()
	assert.False(t, stillIndexed)

	removed, err := b.InvalidateTags(ctx, []string{"t:all"})
	require.NoError(t, err)
	assert.Equal(t, 10, removed)
	assert.Zero(t, b.Len())
}

var _ Backend = (*RedisBackend)(nil)
var _ Backend = (*MemoryBackend)(nil)
