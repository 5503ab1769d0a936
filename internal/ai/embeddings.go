package ai

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/metrics"
	"github.com/sadhurshan/esai-sub000/internal/rag"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 向量化提供方名称
const (
	EmbeddingProviderExternal = "external"
	EmbeddingProviderLocal    = "local"
)

const (
	defaultEmbeddingBatch   = 64
	embeddingConcurrency    = 4
	defaultEmbeddingModel   = string(openai.SmallEmbedding3)
	defaultLocalEmbedding   = "nomic-embed-text"
	localEmbeddingDummyAuth = "local"
)

// EmbeddingConfig 外部向量化配置
type EmbeddingConfig struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// OpenAIEmbeddingProvider OpenAI 兼容的向量化服务
// external 需要凭证；local 指向本地兼容服务，可不配置凭证
type OpenAIEmbeddingProvider struct {
	client    EmbeddingsClient
	name      string
	model     string
	dims      int
	batchSize int
	timeout   time.Duration
}

var _ rag.EmbeddingProvider = (*OpenAIEmbeddingProvider)(nil)

// NewOpenAIEmbeddingProvider 按配置创建向量化提供方
func NewOpenAIEmbeddingProvider(cfg EmbeddingConfig) (*OpenAIEmbeddingProvider, error) {
	name := cfg.Provider
	if name == "" {
		name = EmbeddingProviderExternal
	}
	apiKey := cfg.APIKey
	if name == EmbeddingProviderLocal {
		if cfg.BaseURL == "" {
			return nil, &ProviderConfigError{Provider: "embedding:" + name, Message: "本地向量化服务地址不能为空"}
		}
		if apiKey == "" {
			apiKey = localEmbeddingDummyAuth
		}
	}

	client, err := NewOpenAIClient("embedding:"+name, ClientConfig{APIKey: apiKey, BaseURL: cfg.BaseURL})
	if err != nil {
		return nil, err
	}
	return NewOpenAIEmbeddingProviderWithClient(client, cfg), nil
}

// NewOpenAIEmbeddingProviderWithClient 使用给定客户端创建
func NewOpenAIEmbeddingProviderWithClient(client EmbeddingsClient, cfg EmbeddingConfig) *OpenAIEmbeddingProvider {
	name := cfg.Provider
	if name == "" {
		name = EmbeddingProviderExternal
	}
	model := cfg.Model
	if model == "" {
		model = defaultEmbeddingModel
		if name == EmbeddingProviderLocal {
			model = defaultLocalEmbedding
		}
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultEmbeddingBatch
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAIEmbeddingProvider{
		client:    client,
		name:      name,
		model:     model,
		dims:      cfg.Dimensions,
		batchSize: batch,
		timeout:   timeout,
	}
}

// Embed 单条向量化
func (p *OpenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 分批并发调用，结果顺序与输入一致
func (p *OpenAIEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embeddingConcurrency)
	for offset := 0; offset < len(texts); offset += p.batchSize {
		end := offset + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		offset, batch := offset, texts[offset:end]
		g.Go(func() error {
			vectors, err := p.embedOnce(gctx, batch)
			if err != nil {
				return err
			}
			copy(out[offset:], vectors)
			return nil
		})
	}

	err := g.Wait()
	metrics.ModelCallDuration.WithLabelValues("embedding:"+p.name, p.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues("embedding:"+p.name, p.model, "error").Inc()
		logger.WithContext(ctx).Warn("向量化调用失败",
			zap.String("provider", p.name),
			zap.Int("texts", len(texts)),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.ModelCallsTotal.WithLabelValues("embedding:"+p.name, p.model, "ok").Inc()
	return out, nil
}

func (p *OpenAIEmbeddingProvider) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input:      batch,
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: p.dims,
	}
	resp, err := p.client.CreateEmbeddings(callCtx, req)
	if err != nil {
		return nil, wrapError("embedding:"+p.name, err)
	}
	if len(resp.Data) != len(batch) {
		countErr := &rag.EmbeddingCountError{Expected: len(batch), Actual: len(resp.Data)}
		return nil, &ProviderResponseError{
			Provider: "embedding:" + p.name,
			Type:     ErrorTypeMalformed,
			Message:  countErr.Error(),
			Err:      countErr,
		}
	}

	data := append([]openai.Embedding(nil), resp.Data...)
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// GetModel 模型名称
func (p *OpenAIEmbeddingProvider) GetModel() string {
	return p.model
}

// GetProviderName 提供方名称
func (p *OpenAIEmbeddingProvider) GetProviderName() string {
	return p.name
}

// NewEmbeddingProvider 按配置选择向量化实现
// deterministic 使用特征哈希；external/local 走 OpenAI 兼容接口
func NewEmbeddingProvider(cfg EmbeddingConfig) (rag.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "", ProviderDeterministic:
		return rag.NewHashEmbeddingProvider(cfg.Dimensions), nil
	case EmbeddingProviderExternal, EmbeddingProviderLocal:
		return NewOpenAIEmbeddingProvider(cfg)
	default:
		return nil, fmt.Errorf("未知的向量化提供方: %s", cfg.Provider)
	}
}
