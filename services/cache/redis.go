package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/trezcool/mycourse/core"
)

const keyPrefix = "mycourse:"

// RedisCache shares cached entries between instances.
type RedisCache struct {
	rdb goredis.UniversalClient
}

var _ core.Cache = (*RedisCache)(nil)

// NewRedisCache connects to the configured redis and pings it.
func NewRedisCache(conf *core.Config) (*RedisCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        conf.Cache.RedisAddr,
		Password:    conf.Cache.RedisPassword,
		DB:          conf.Cache.RedisDB,
		DialTimeout: conf.Cache.RedisDialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), conf.Cache.RedisDialTimeout+time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return &RedisCache{rdb: rdb}, nil
}

func NewRedisCacheFromClient(rdb goredis.UniversalClient) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "reading %s", key)
	}
	if err = json.Unmarshal(data, dest); err != nil {
		return false, errors.Wrapf(err, "decoding cache entry %s", key)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding cache entry %s", key)
	}
	return errors.Wrapf(c.rdb.Set(ctx, keyPrefix+key, data, ttl).Err(), "writing %s", key)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, k := range keys {
		prefixed = append(prefixed, keyPrefix+k)
	}
	return errors.Wrap(c.rdb.Del(ctx, prefixed...).Err(), "deleting cache keys")
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
