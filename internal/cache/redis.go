package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github-insight/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	fieldValue    = "v"
	fieldStoredAt = "t"
)

// RedisStore shares a cache between worker replicas. Each entry is a hash
// holding the value and its stored time; a sorted set scored by stored
// time indexes the entries for oldest-first eviction.
//
// Eviction across replicas is best effort: two concurrent puts may both
// trim, removing up to twice EvictCount entries.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	opts   Options
}

// NewRedisStore namespaces keys under prefix + opts.Name.
func NewRedisStore(client redis.Cmdable, prefix string, opts Options) *RedisStore {
	opts = opts.withDefaults()
	return &RedisStore{
		client: client,
		prefix: prefix + opts.Name + ":",
		opts:   opts,
	}
}

func (s *RedisStore) entryKey(key string) string { return s.prefix + "entry:" + key }

func (s *RedisStore) indexKey() string { return s.prefix + "index" }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	vals, err := s.client.HMGet(ctx, s.entryKey(key), fieldValue, fieldStoredAt).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, false, nil
	}

	value, _ := vals[0].(string)
	storedRaw, _ := vals[1].(string)
	nanos, err := strconv.ParseInt(storedRaw, 10, 64)
	if err != nil {
		return nil, false, nil
	}
	if s.opts.stale(time.Unix(0, nanos)) {
		return nil, false, nil
	}
	return []byte(value), true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	now := s.opts.Now()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.entryKey(key), fieldValue, value, fieldStoredAt, now.UnixNano())
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.UnixMilli()), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.evictOldest(ctx)
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

func (s *RedisStore) evictOldest(ctx context.Context) error {
	size, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if size <= int64(s.opts.MaxEntries) {
		return nil
	}

	oldest, err := s.client.ZRange(ctx, s.indexKey(), 0, int64(s.opts.EvictCount-1)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(oldest) == 0 {
		return nil
	}

	entryKeys := make([]string, len(oldest))
	members := make([]interface{}, len(oldest))
	for k, key := range oldest {
		entryKeys[k] = s.entryKey(key)
		members[k] = key
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, entryKeys...)
		pipe.ZRem(ctx, s.indexKey(), members...)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	metrics.CacheEvictions.WithLabelValues(s.opts.Name).Add(float64(len(oldest)))
	return nil
}

// NewRedisPair builds both caches on a shared redis.
func NewRedisPair(client redis.Cmdable, prefix string, providerOpts, responseOpts Options) Pair {
	providerOpts.Name, responseOpts.Name = "provider", "response"
	return Pair{
		Provider: NewProviderCache(NewRedisStore(client, prefix, providerOpts)),
		Response: NewResponseCache(NewRedisStore(client, prefix, responseOpts)),
	}
}
