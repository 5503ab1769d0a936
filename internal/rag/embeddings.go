package rag

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// EmbeddingProvider 抽象不同向量模型/服务的统一接口。
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
	GetProviderName() string
}

// HashEmbeddingProvider 基于特征哈希的确定性向量化，跨进程稳定，用于测试和本地开发
type HashEmbeddingProvider struct {
	dimensions int
}

// NewHashEmbeddingProvider 创建确定性向量化提供者，维度默认 64
func NewHashEmbeddingProvider(dimensions int) *HashEmbeddingProvider {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &HashEmbeddingProvider{dimensions: dimensions}
}

// Embed 将文本转换为 L2 归一化向量，空文本得到零向量
func (p *HashEmbeddingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return p.embed(text), nil
}

// EmbedBatch 批量向量化，相同输入得到相同向量
func (p *HashEmbeddingProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.embed(text)
	}
	return out, nil
}

func (p *HashEmbeddingProvider) embed(text string) []float32 {
	vec := make([]float64, p.dimensions)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimensions))
		sign := 1.0
		if (sum>>63)&1 == 1 {
			sign = -1.0
		}
		vec[idx] += sign
	}
	return normalizeVector(vec)
}

// GetModel 获取模型名称
func (p *HashEmbeddingProvider) GetModel() string {
	return "hash-embedding"
}

// GetProviderName 获取提供商名称
func (p *HashEmbeddingProvider) GetProviderName() string {
	return "deterministic"
}

// Dimensions 向量维度
func (p *HashEmbeddingProvider) Dimensions() int {
	return p.dimensions
}

func normalizeVector(vec []float64) []float32 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// normalize32 返回归一化副本及其是否为零向量
func normalize32(vec []float32) ([]float64, bool) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	out := make([]float64, len(vec))
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return out, false
	}
	for i, v := range vec {
		out[i] = float64(v) / norm
	}
	return out, true
}
