// Package answer 基于检索结果的问答
package answer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/cache"
	"github.com/sadhurshan/esai-sub000/internal/citation"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultTopK 默认检索条数
const DefaultTopK = 8

// 降级提示
const (
	WarningNoSources        = "No relevant sources found"
	WarningProviderFallback = "LLM provider unavailable; deterministic summary returned"
	WarningRetrievalFailed  = "Retrieval unavailable; answer could not be grounded"
	WarningInvalidResponse  = "LLM response failed schema validation; deterministic summary returned"
)

// ProviderResolver 按名称解析 LLM 提供方
type ProviderResolver interface {
	Resolve(ctx context.Context, name string) (ai.Provider, error)
	Default() string
	Deterministic() ai.Provider
}

// Request 问答请求
type Request struct {
	Tenant           string
	Query            string
	TopK             int
	Filters          rag.Filters
	LLMProvider      string
	SafetyIdentifier string
}

// Service 问答服务
type Service struct {
	retriever rag.Retriever
	providers ProviderResolver
	registry  *schema.Registry
	cache     cache.Cache
	packOpts  rag.PackOptions
	tracer    trace.Tracer
}

// NewService 创建问答服务，responseCache 可为 nil
func NewService(retriever rag.Retriever, providers ProviderResolver, registry *schema.Registry, responseCache cache.Cache, packOpts rag.PackOptions) *Service {
	return &Service{
		retriever: retriever,
		providers: providers,
		registry:  registry,
		cache:     responseCache,
		packOpts:  packOpts,
		tracer:    otel.Tracer("internal/answer"),
	}
}

// Answer 返回符合回答 schema 的信封，提供方失败时回落到确定性摘要
func (s *Service) Answer(ctx context.Context, req *Request) (*schema.AnswerEnvelope, error) {
	ctx, span := s.tracer.Start(ctx, "Answer")
	defer span.End()
	log := logger.WithContext(ctx).With(zap.String("tenant", req.Tenant))

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	providerName := req.LLMProvider
	if providerName == "" {
		providerName = s.providers.Default()
	}

	key := s.cacheKey(req, topK, providerName)
	if key != "" {
		if cached, ok, err := cache.GetJSON[schema.AnswerEnvelope](ctx, s.cache, key); err != nil {
			log.Warn("读取回答缓存失败", zap.Error(err))
		} else if ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return &cached, nil
		}
	}

	contexts, err := s.retriever.Retrieve(ctx, &rag.SearchRequest{
		Tenant:  req.Tenant,
		Query:   req.Query,
		TopK:    topK,
		Filters: req.Filters,
	}, s.packOpts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		log.Warn("问答检索失败", zap.Error(err))
		return noInformation(WarningRetrievalFailed), nil
	}
	if len(contexts) == 0 {
		env := noInformation(WarningNoSources)
		s.store(ctx, key, env)
		return env, nil
	}

	env, degraded := s.generate(ctx, req, providerName, contexts)
	if !degraded {
		s.store(ctx, key, env)
	}
	span.SetAttributes(
		attribute.Int("contexts", len(contexts)),
		attribute.Int("citations", len(env.Citations)),
		attribute.Bool("degraded", degraded),
	)
	return env, nil
}

// generate 调用提供方并校验引用；第二个返回值表示是否发生了降级
func (s *Service) generate(ctx context.Context, req *Request, providerName string, contexts []rag.ContextBlock) (*schema.AnswerEnvelope, bool) {
	log := logger.WithContext(ctx)
	var warnings []string
	degraded := false

	provider, err := s.providers.Resolve(ctx, providerName)
	if err != nil {
		log.Warn("LLM 提供方不可用，使用确定性摘要", zap.String("provider", providerName), zap.Error(err))
		provider = s.providers.Deterministic()
		warnings = append(warnings, WarningProviderFallback)
		degraded = true
	}

	genReq := &ai.GenerateRequest{
		Purpose:          "answer",
		Query:            req.Query,
		Contexts:         contexts,
		SchemaName:       "answer_envelope",
		ResponseSchema:   s.registry.AnswerSchema(),
		SafetyIdentifier: req.SafetyIdentifier,
	}
	result, err := provider.GenerateAnswer(ctx, genReq)
	if err != nil {
		log.Warn("LLM 生成失败，使用确定性摘要", zap.String("provider", provider.Name()), zap.Error(err))
		warnings = append(warnings, WarningProviderFallback)
		degraded = true
		result, err = s.providers.Deterministic().GenerateAnswer(ctx, genReq)
		if err != nil {
			return noInformation(WarningProviderFallback), true
		}
	}

	if ai.IsRefused(result) {
		env := toEnvelope(result)
		env.Warnings = citation.DedupeWarnings(append(warnings, env.Warnings...))
		return env, true
	}

	enforced, _ := citation.Enforce(result, contexts)
	env := toEnvelope(enforced)
	if err := s.registry.ValidateAnswer(env); err != nil {
		log.Warn("回答未通过校验，使用确定性摘要", zap.Error(err))
		fallback, ferr := s.providers.Deterministic().GenerateAnswer(ctx, genReq)
		if ferr != nil {
			return noInformation(WarningInvalidResponse), true
		}
		fallback, _ = citation.Enforce(fallback, contexts)
		env = toEnvelope(fallback)
		warnings = append(warnings, WarningInvalidResponse)
		degraded = true
	}

	env.Warnings = citation.DedupeWarnings(append(warnings, env.Warnings...))
	if degraded {
		env.NeedsHumanReview = true
	}
	return env, degraded
}

func (s *Service) store(ctx context.Context, key string, env *schema.AnswerEnvelope) {
	if key == "" {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, key, env); err != nil {
		logger.WithContext(ctx).Warn("写入回答缓存失败", zap.Error(err))
	}
}

// cacheKey 修订号随索引写入递增，重建索引后旧键自然失效
func (s *Service) cacheKey(req *Request, topK int, providerName string) string {
	if s.cache == nil {
		return ""
	}
	filters, _ := json.Marshal(req.Filters)
	raw := fmt.Sprintf("%s|%d|%s|%d|%s|%s",
		req.Tenant,
		s.retriever.Revision(req.Tenant),
		strings.TrimSpace(req.Query),
		topK,
		filters,
		providerName,
	)
	sum := sha256.Sum256([]byte(raw))
	return "answer:" + req.Tenant + ":" + hex.EncodeToString(sum[:])
}

func noInformation(warning string) *schema.AnswerEnvelope {
	return &schema.AnswerEnvelope{
		AnswerMarkdown:   ai.NoInformationAnswer,
		Citations:        []schema.Citation{},
		Confidence:       0,
		NeedsHumanReview: true,
		Warnings:         []string{warning},
	}
}

// toEnvelope 把通用映射收敛为类型化信封，无法解析的字段取零值
func toEnvelope(m map[string]any) *schema.AnswerEnvelope {
	env := &schema.AnswerEnvelope{}
	if err := schema.FromMap(m, env); err != nil {
		env = &schema.AnswerEnvelope{
			AnswerMarkdown:   fmt.Sprint(m["answer_markdown"]),
			NeedsHumanReview: true,
			Warnings:         citation.Warnings(m["warnings"]),
		}
	}
	if strings.TrimSpace(env.AnswerMarkdown) == "" {
		env.AnswerMarkdown = ai.NoInformationAnswer
		env.NeedsHumanReview = true
	}
	if env.Confidence < 0 {
		env.Confidence = 0
	} else if env.Confidence > 1 {
		env.Confidence = 1
	}
	env.Normalize()
	return env
}
