package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EmbeddingCache 向量缓存：本地 L1 + 可选 Redis L2
type EmbeddingCache struct {
	redis        redis.UniversalClient
	prefix       string
	ttl          time.Duration
	maxLocalSize int

	mu    sync.RWMutex
	local map[string][]float32
}

// CachedEmbedding Redis 中保存的向量
type CachedEmbedding struct {
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewEmbeddingCache 创建向量缓存，redisClient 可为 nil
func NewEmbeddingCache(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *EmbeddingCache {
	if prefix == "" {
		prefix = "emb:"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &EmbeddingCache{
		redis:        redisClient,
		prefix:       prefix,
		ttl:          ttl,
		maxLocalSize: 10000,
		local:        make(map[string][]float32),
	}
}

// Get 获取缓存的向量
func (c *EmbeddingCache) Get(ctx context.Context, text, model string) ([]float32, bool) {
	key := c.makeKey(text, model)

	c.mu.RLock()
	vec, ok := c.local[key]
	c.mu.RUnlock()
	if ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("local", "hit").Inc()
		return vec, true
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("local", "miss").Inc()

	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.WithContext(ctx).Warn("读取向量缓存失败", zap.Error(err))
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	var cached CachedEmbedding
	if json.Unmarshal(data, &cached) != nil {
		metrics.EmbeddingCacheTotal.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("redis", "hit").Inc()
	c.setLocal(key, cached.Vector)
	return cached.Vector, true
}

// Set 设置缓存
func (c *EmbeddingCache) Set(ctx context.Context, text, model string, vector []float32) {
	key := c.makeKey(text, model)
	c.setLocal(key, vector)

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(&CachedEmbedding{Vector: vector, Model: model, CreatedAt: time.Now()})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.WithContext(ctx).Warn("写入向量缓存失败", zap.Error(err))
	}
}

// LocalSize 本地缓存条目数
func (c *EmbeddingCache) LocalSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.local)
}

func (c *EmbeddingCache) makeKey(text, model string) string {
	hash := sha256.Sum256([]byte(text))
	return c.prefix + model + ":" + hex.EncodeToString(hash[:16])
}

func (c *EmbeddingCache) setLocal(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 满了清理一半
	if len(c.local) >= c.maxLocalSize {
		drop := c.maxLocalSize / 2
		for k := range c.local {
			if drop <= 0 {
				break
			}
			delete(c.local, k)
			drop--
		}
	}
	c.local[key] = vector
}

// CachedEmbeddingProvider 带缓存的 Embedding 提供者包装器
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	cache    *EmbeddingCache
}

// NewCachedEmbeddingProvider 创建带缓存的 Embedding 提供者
func NewCachedEmbeddingProvider(provider EmbeddingProvider, cache *EmbeddingCache) *CachedEmbeddingProvider {
	return &CachedEmbeddingProvider{provider: provider, cache: cache}
}

// Embed 单条向量化 (带缓存)
func (p *CachedEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	model := p.provider.GetModel()
	if vec, ok := p.cache.Get(ctx, text, model); ok {
		return vec, nil
	}
	vec, err := p.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(ctx, text, model, vec)
	return vec, nil
}

// EmbedBatch 批量向量化 (带缓存)，只对未命中的文本调用底层提供者
func (p *CachedEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := p.provider.GetModel()
	result := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := p.cache.Get(ctx, text, model); ok {
			result[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return result, nil
	}

	vectors, err := p.provider.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, &EmbeddingCountError{Expected: len(missing), Actual: len(vectors)}
	}
	for j, idx := range missingIdx {
		result[idx] = vectors[j]
		p.cache.Set(ctx, missing[j], model, vectors[j])
	}
	return result, nil
}

// GetModel 获取模型名称
func (p *CachedEmbeddingProvider) GetModel() string {
	return p.provider.GetModel()
}

// GetProviderName 获取提供者名称
func (p *CachedEmbeddingProvider) GetProviderName() string {
	return p.provider.GetProviderName()
}
