// Package cache 提供响应缓存：进程内 TTL 缓存与 Redis 缓存两种后端
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/metrics"
)

// Cache 键值缓存，写入为后写覆盖
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Purge 清理已过期条目，返回清理数量
	Purge(ctx context.Context) (int, error)
	TTL() time.Duration
}

// GetJSON 读取并反序列化缓存值
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var zero T
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		recordLookup(false)
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		recordLookup(false)
		return zero, false, fmt.Errorf("缓存值解析失败: %w", err)
	}
	recordLookup(true)
	return v, true, nil
}

// SetJSON 序列化后写入缓存
func SetJSON(ctx context.Context, c Cache, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("缓存值序列化失败: %w", err)
	}
	return c.Set(ctx, key, raw)
}

func recordLookup(hit bool) {
	if hit {
		metrics.ResponseCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	metrics.ResponseCacheTotal.WithLabelValues("miss").Inc()
}
