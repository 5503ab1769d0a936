package ai

import (
	"context"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ChatCompletionClient OpenAI 兼容的对话补全接口，测试中以假实现替换
type ChatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// EmbeddingsClient OpenAI 兼容的向量化接口
type EmbeddingsClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// ClientConfig 客户端连接配置
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewOpenAIClient 创建 go-openai 客户端
func NewOpenAIClient(provider string, cfg ClientConfig) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, &ProviderConfigError{Provider: provider, Message: "API Key 不能为空"}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return openai.NewClientWithConfig(clientConfig), nil
}
