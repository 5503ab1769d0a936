package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/metrics"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	maxTemperature      = 0.2
	defaultMaxTokens    = 1200
	defaultTimeout      = 30 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
)

// refusalFinishReasons 视为拒答的结束原因
var refusalFinishReasons = map[string]struct{}{
	string(openai.FinishReasonContentFilter): {},
	"safety":                                 {},
	"refusal":                                {},
	string(openai.FinishReasonLength):        {},
}

// OpenAIConfig 外部模型配置
type OpenAIConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	Timeout          time.Duration
	MaxOutputTokens  int
	Temperature      float32
	MaxRetries       int
	SafetyIdentifier string
}

// OpenAIProvider OpenAI 兼容的外部模型，严格 JSON Schema 输出
type OpenAIProvider struct {
	client  ChatCompletionClient
	cfg     OpenAIConfig
	tokens  TokenCounter
	backoff time.Duration
}

// NewOpenAIProvider 创建外部提供方，缺少凭证时返回 ProviderConfigError
func NewOpenAIProvider(cfg OpenAIConfig, tokens TokenCounter) (*OpenAIProvider, error) {
	client, err := NewOpenAIClient(ProviderExternal, ClientConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	if err != nil {
		return nil, err
	}
	return NewOpenAIProviderWithClient(client, cfg, tokens), nil
}

// NewOpenAIProviderWithClient 使用给定客户端创建提供方
func NewOpenAIProviderWithClient(client ChatCompletionClient, cfg OpenAIConfig, tokens TokenCounter) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxTokens
	}
	if cfg.Temperature < 0 || cfg.Temperature > maxTemperature {
		cfg.Temperature = maxTemperature
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if tokens == nil {
		tokens = EstimateCounter{}
	}
	return &OpenAIProvider{client: client, cfg: cfg, tokens: tokens, backoff: defaultRetryBackoff}
}

// Name 提供方名称
func (p *OpenAIProvider) Name() string {
	return ProviderExternal
}

// GenerateAnswer 调用模型生成符合 schema 的 JSON
func (p *OpenAIProvider) GenerateAnswer(ctx context.Context, req *GenerateRequest) (map[string]any, error) {
	messages := req.Messages
	if len(messages) == 0 {
		messages = BuildMessages(req.Query, req.Contexts)
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = "answer"
	}
	metrics.PromptTokens.WithLabelValues(purpose).Observe(float64(CountMessages(p.tokens, messages)))

	chatReq := p.buildRequest(messages, req)

	start := time.Now()
	resp, err := p.createWithRetry(ctx, chatReq)
	metrics.ModelCallDuration.WithLabelValues(ProviderExternal, p.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues(ProviderExternal, p.cfg.Model, "error").Inc()
		return nil, err
	}

	if len(resp.Choices) == 0 {
		metrics.ModelCallsTotal.WithLabelValues(ProviderExternal, p.cfg.Model, "error").Inc()
		return nil, &ProviderResponseError{Provider: ProviderExternal, Type: ErrorTypeMalformed, Message: "响应中没有候选结果"}
	}

	choice := resp.Choices[0]
	if reason, refused := detectRefusal(choice); refused {
		metrics.ModelCallsTotal.WithLabelValues(ProviderExternal, p.cfg.Model, "refused").Inc()
		logger.WithContext(ctx).Warn("模型拒绝回答",
			zap.String("reason", reason),
			zap.String("model", p.cfg.Model),
		)
		return RefusedEnvelope(reason), nil
	}

	result, err := DecodeObject(choice.Message.Content)
	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues(ProviderExternal, p.cfg.Model, "error").Inc()
		return nil, &ProviderResponseError{
			Provider: ProviderExternal,
			Type:     ErrorTypeMalformed,
			Message:  "模型输出不是合法 JSON",
			Body:     truncateBody(choice.Message.Content),
			Err:      err,
		}
	}

	metrics.ModelCallsTotal.WithLabelValues(ProviderExternal, p.cfg.Model, "ok").Inc()
	return result, nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, req *GenerateRequest) openai.ChatCompletionRequest {
	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    chatMessages,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxOutputTokens,
	}

	if len(req.ResponseSchema) > 0 {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: req.ResponseSchema,
				Strict: true,
			},
		}
	}

	safetyID := req.SafetyIdentifier
	if safetyID == "" {
		safetyID = p.cfg.SafetyIdentifier
	}
	if safetyID != "" {
		chatReq.User = safetyID
		chatReq.Metadata = map[string]string{"safety_identifier": safetyID}
	}
	return chatReq
}

// createWithRetry 限流、服务端错误和超时按指数退避重试，每次调用单独计时
func (p *OpenAIProvider) createWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr *ProviderResponseError
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		resp, err := p.client.CreateChatCompletion(callCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}

		lastErr = wrapError(ProviderExternal, err)
		if errors.Is(ctx.Err(), context.Canceled) || !lastErr.Retryable() || attempt == p.cfg.MaxRetries {
			break
		}

		wait := p.backoff * time.Duration(1<<uint(attempt))
		logger.WithContext(ctx).Warn("模型调用失败，准备重试",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, wrapError(ProviderExternal, ctx.Err())
		case <-time.After(wait):
		}
	}
	return openai.ChatCompletionResponse{}, lastErr
}

// detectRefusal 结束原因、结构化拒答字段或拒答内容片段任一命中即视为拒答
func detectRefusal(choice openai.ChatCompletionChoice) (string, bool) {
	if _, ok := refusalFinishReasons[string(choice.FinishReason)]; ok {
		return string(choice.FinishReason), true
	}
	if strings.TrimSpace(choice.Message.Refusal) != "" {
		return "refusal", true
	}
	for _, part := range choice.Message.MultiContent {
		if string(part.Type) == "refusal" {
			return "refusal", true
		}
	}
	return "", false
}
