package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache 基于 Redis 的响应缓存，过期由 Redis 负责
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache 创建 Redis 缓存
func NewRedisCache(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "procurement:cache:"
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Get 读取缓存
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("读取 Redis 缓存失败: %w", err)
	}
	return data, true, nil
}

// Set 写入缓存
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.rdb.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("写入 Redis 缓存失败: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

// Purge Redis 自行过期，这里只清理没有 TTL 的残留键
func (c *RedisCache) Purge(ctx context.Context) (int, error) {
	removed := 0
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := c.rdb.TTL(ctx, key).Result()
		if err != nil {
			return removed, err
		}
		if ttl == -1 {
			if err := c.rdb.Del(ctx, key).Err(); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, iter.Err()
}

// TTL 返回过期时间
func (c *RedisCache) TTL() time.Duration {
	return c.ttl
}
