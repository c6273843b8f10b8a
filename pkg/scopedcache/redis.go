package scopedcache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures a Redis connection
type RedisOptions struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// DialRedis connects to Redis and verifies the connection
func DialRedis(ctx context.Context, o RedisOptions) (*redis.Client, error) {
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if o.Password != "" {
		opts.Password = o.Password
	}
	if o.DB >= 0 {
		opts.DB = o.DB
	}
	if o.MaxRetries > 0 {
		opts.MaxRetries = o.MaxRetries
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisBackend stores entries in Redis. Each tag is a Redis set holding the
// keys tagged with it.
type RedisBackend struct {
	client           *redis.Client
	prefix           string
	tagTTL           time.Duration
	popularityWindow time.Duration
}

// NewRedisBackend creates a new Redis backend. tagTTL must exceed the longest
// entry TTL so that a tag set never expires before its members.
func NewRedisBackend(client *redis.Client, namespace string, tagTTL, popularityWindow time.Duration) *RedisBackend {
	prefix := namespace
	if prefix != "" {
		prefix += ":"
	}
	return &RedisBackend{
		client:           client,
		prefix:           prefix,
		tagTTL:           tagTTL,
		popularityWindow: popularityWindow,
	}
}

func (b *RedisBackend) entryKey(key string) string { return b.prefix + "entry:" + key }
func (b *RedisBackend) tagKey(tag string) string   { return b.prefix + "tag:" + tag }
func (b *RedisBackend) popKey(key string) string   { return b.prefix + "pop:" + key }

// Get implements Backend
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, b.entryKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return data, true, nil
}

// Set implements Backend
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	tagTTL := b.tagTTL
	if tagTTL < ttl {
		tagTTL = ttl
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.entryKey(key), value, ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, b.tagKey(tag), key)
			pipe.Expire(ctx, b.tagKey(tag), tagTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete implements Backend
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.entryKey(key)).Err()
}

// InvalidateTags implements Backend. Only the members read are removed from
// each tag set, so keys tagged concurrently stay indexed.
func (b *RedisBackend) InvalidateTags(ctx context.Context, tags []string) (int, error) {
	members := make(map[string][]string, len(tags))
	unique := make(map[string]struct{})

	for _, tag := range tags {
		keys, err := b.client.SMembers(ctx, b.tagKey(tag)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to read tag %s: %w", tag, err)
		}
		if len(keys) == 0 {
			continue
		}
		members[tag] = keys
		for _, k := range keys {
			unique[k] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return 0, nil
	}

	entryKeys := make([]string, 0, len(unique))
	for k := range unique {
		entryKeys = append(entryKeys, b.entryKey(k))
	}

	var del *redis.IntCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, entryKeys...)
		for tag, keys := range members {
			args := make([]interface{}, len(keys))
			for i, k := range keys {
				args[i] = k
			}
			pipe.SRem(ctx, b.tagKey(tag), args...)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate tags: %w", err)
	}
	return int(del.Val()), nil
}

// IncrPopularity implements Backend. Each hit renews the counter's window.
func (b *RedisBackend) IncrPopularity(ctx context.Context, key string) (int64, error) {
	pipe := b.client.TxPipeline()
	incr := pipe.Incr(ctx, b.popKey(key))
	pipe.Expire(ctx, b.popKey(key), b.popularityWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment popularity: %w", err)
	}
	return incr.Val(), nil
}

// Popularity implements Backend
func (b *RedisBackend) Popularity(ctx context.Context, key string) (int64, error) {
	val, err := b.client.Get(ctx, b.popKey(key)).Result()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to read popularity: %w", err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt popularity counter: %w", err)
	}
	return n, nil
}

// Client returns the underlying Redis client for health checks
func (b *RedisBackend) Client() *redis.Client {
	return b.client
}

// Close implements Backend
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
