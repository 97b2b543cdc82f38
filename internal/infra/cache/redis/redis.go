package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "signedurl:"

type Config struct {
	Addr     string
	DB       int
	Password string
}

// Cache is the shared signed url tier kept in Redis.
type Cache struct {
	rdb    *redis.Client
	logger *zap.SugaredLogger
}

func New(cfg Config, logger *zap.SugaredLogger) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return &Cache{rdb: rdb, logger: logger}
}

func (c *Cache) Ping(ctx context.Context) error {
	err := c.rdb.Ping(ctx).Err()
	if err != nil {
		c.logger.Errorw("redis ping failed", "error", err)
	}
	return err
}

func (c *Cache) Close() {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Close(); err != nil {
		c.logger.Errorw("error while closing redis", "error", err)
	}
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Cache) Set(ctx context.Context, key, url string, ttl time.Duration) error {
	return c.rdb.Set(ctx, keyPrefix+key, url, ttl).Err()
}
