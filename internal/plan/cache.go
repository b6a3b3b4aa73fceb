package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"shopifyapp/internal/metrics"
)

// Cache is the subset of a key/value store the decorator needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// ErrCacheMiss is returned by Cache.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

const defaultKey = "plan:default"

var _ Store = (*cachedStore)(nil)

type cachedStore struct {
	inner Store
	cache Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedStore wraps a Store with a read-through cache. Plans rarely change,
// so entries live for ttl and are dropped on Create.
func NewCachedStore(inner Store, cache Cache, ttl time.Duration, log zerolog.Logger) Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &cachedStore{inner: inner, cache: cache, ttl: ttl, log: log}
}

func (d *cachedStore) GetByID(ctx context.Context, id int64) (*Plan, error) {
	return d.read(ctx, fmt.Sprintf("plan:%d", id), func() (*Plan, error) {
		return d.inner.GetByID(ctx, id)
	})
}

func (d *cachedStore) GetDefault(ctx context.Context) (*Plan, error) {
	return d.read(ctx, defaultKey, func() (*Plan, error) {
		return d.inner.GetDefault(ctx)
	})
}

func (d *cachedStore) Create(ctx context.Context, p *Plan) error {
	if err := d.inner.Create(ctx, p); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, defaultKey, fmt.Sprintf("plan:%d", p.ID)); err != nil {
		d.log.Warn().Err(err).Int64("plan_id", p.ID).Msg("plan cache invalidation failed")
	}
	return nil
}

func (d *cachedStore) read(ctx context.Context, key string, load func() (*Plan, error)) (*Plan, error) {
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var p Plan
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("plan", "hit")
			return &p, nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache read failed")
	}

	metrics.IncCacheRequest("plan", "miss")
	p, err := load()
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("plan cache write failed")
		}
	}
	return p, nil
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	Client redis.UniversalClient
}

func (c RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (c RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}
