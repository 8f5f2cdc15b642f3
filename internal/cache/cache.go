// Package cache stores JSON encoded operation results in Redis, keyed by the
// MD5 of the uploaded image.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dimuls/jdlib/internal/config"
)

const keyPrefix = "jdlib:"

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func New(cfg *config.RedisConfig, log *zap.Logger) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return NewWithClient(client, cfg.TTL, log)
}

func NewWithClient(client *redis.Client, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{client: client, ttl: ttl, log: log}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Key builds the cache key of op applied to data. maxSize is the downscale
// limit the result was computed with, 0 for none.
func Key(op string, data []byte, maxSize uint) string {
	sum := md5.Sum(data)
	key := keyPrefix + op + ":" + hex.EncodeToString(sum[:])
	if maxSize > 0 {
		key += ":" + strconv.FormatUint(uint64(maxSize), 10)
	}
	return key
}

// Get decodes the value at key into v. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		c.log.Error("failed to unmarshal cached result",
			zap.String("key", key), zap.Error(err))
		return false, err
	}

	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
