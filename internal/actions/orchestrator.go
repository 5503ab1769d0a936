// Package actions 动作编排：检索、确定性工具、LLM 生成、引用校验与合并
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/citation"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/metrics"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"
	"github.com/sadhurshan/esai-sub000/internal/tools"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultTopK 默认检索条数
const DefaultTopK = 8

// ErrUnknownAction 未注册的动作类型
var ErrUnknownAction = errors.New("unknown action type")

// 编排结果来源
const (
	OutcomeLLM         = "llm"
	OutcomeToolOnly    = "tool_only"
	OutcomePlaceholder = "placeholder"
)

// ProviderResolver 按名称解析 LLM 提供方
type ProviderResolver interface {
	Resolve(ctx context.Context, name string) (ai.Provider, error)
}

// PlanRequest 单次动作请求
type PlanRequest struct {
	Tenant           string
	ActionType       string
	Query            string
	Inputs           map[string]any
	UserContext      map[string]any
	TopK             int
	Filters          rag.Filters
	LLMProvider      string
	SafetyIdentifier string
	// WorkflowID 工作流步骤调用时填写，仅用于审计
	WorkflowID string
}

// Result 编排结果
type Result struct {
	Envelope *schema.ActionEnvelope
	Contexts []rag.ContextBlock
	Outcome  string
}

// Orchestrator 动作编排器
type Orchestrator struct {
	retriever rag.Retriever
	tools     tools.ExecutionProvider
	providers ProviderResolver
	registry  *schema.Registry
	packOpts  rag.PackOptions
	tracer    trace.Tracer
	now       func() time.Time
}

// NewOrchestrator 创建动作编排器
func NewOrchestrator(retriever rag.Retriever, executor tools.ExecutionProvider, providers ProviderResolver, registry *schema.Registry, packOpts rag.PackOptions) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		tools:     executor,
		providers: providers,
		registry:  registry,
		packOpts:  packOpts,
		tracer:    otel.Tracer("internal/actions"),
		now:       time.Now,
	}
}

// WithClock 设置时钟，占位负载的日期由它决定
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// PlanAction 执行一次动作，始终返回符合 schema 的动作信封
// 外部依赖失败在本地降级并写入 warnings，只有请求本身非法时返回错误
func (o *Orchestrator) PlanAction(ctx context.Context, req *PlanRequest) (*Result, error) {
	if !o.registry.Has(req.ActionType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.ActionType)
	}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.PlanAction")
	defer span.End()
	span.SetAttributes(
		attribute.String("action_type", req.ActionType),
		attribute.String("tenant", req.Tenant),
	)
	log := logger.WithContext(ctx).With(zap.String("action_type", req.ActionType), zap.String("tenant", req.Tenant))

	var warnings []string
	forceReview := false

	// 1. 检索
	contexts := o.retrieve(ctx, req, &warnings)
	if len(contexts) == 0 {
		warnings = append(warnings, WarningInsufficientContext)
		forceReview = true
	}

	// 2. 确定性工具
	toolEnv, toolOK := o.runTool(ctx, req, contexts, &warnings)
	if !toolOK {
		forceReview = true
	}

	// 3. LLM 生成与引用校验
	llmEnv, outcome := o.generate(ctx, req, contexts, toolEnv, &warnings)

	// 4. 合并与类型收敛
	merged := merge(toolEnv, llmEnv)
	env := coerce(req.ActionType, merged)
	if env.Summary == "" {
		env.Summary = Label(req.ActionType)
	}

	// 5. 负载校验，依次回落到工具负载和占位负载
	if err := o.registry.ValidatePayload(req.ActionType, env.Payload); err != nil {
		toolPayload, _ := toolEnv["payload"].(map[string]any)
		if llmEnv != nil && toolOK && o.registry.ValidatePayload(req.ActionType, toolPayload) == nil {
			log.Warn("LLM 负载未通过校验，使用工具负载", zap.Error(err))
			env.Payload = toolPayload
			warnings = append(warnings, WarningLLMPayloadInvalid)
		} else {
			log.Warn("负载未通过校验，使用占位负载", zap.Error(err))
			env.Payload = tools.Placeholder(req.ActionType, o.now().UTC())
			warnings = append(warnings, WarningPlaceholderPayload)
			outcome = OutcomePlaceholder
		}
		forceReview = true
	}

	env.Warnings = citation.DedupeWarnings(append(warnings, env.Warnings...))
	if forceReview {
		env.NeedsHumanReview = true
	}
	env.Normalize()

	if err := o.registry.ValidateAction(env); err != nil {
		// 到这里负载已经合法，信封字段均由本函数收敛，理论上不会发生
		span.RecordError(err)
		span.SetStatus(codes.Error, "envelope validation failed")
		log.Error("动作信封未通过校验", zap.Error(err))
	}

	metrics.ActionsTotal.WithLabelValues(req.ActionType, outcome).Inc()
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("citations", len(env.Citations)),
		attribute.Int("warnings", len(env.Warnings)),
	)
	return &Result{Envelope: env, Contexts: contexts, Outcome: outcome}, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, req *PlanRequest, warnings *[]string) []rag.ContextBlock {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Retrieve")
	defer span.End()

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	contexts, err := o.retriever.Retrieve(ctx, &rag.SearchRequest{
		Tenant:  req.Tenant,
		Query:   req.Query,
		TopK:    topK,
		Filters: req.Filters,
	}, o.packOpts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		logger.WithContext(ctx).Warn("动作检索失败，按无上下文继续", zap.Error(err))
		*warnings = append(*warnings, WarningRetrievalFailed)
		return nil
	}
	span.SetAttributes(attribute.Int("contexts", len(contexts)))
	return contexts
}

func (o *Orchestrator) runTool(ctx context.Context, req *PlanRequest, contexts []rag.ContextBlock, warnings *[]string) (map[string]any, bool) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Tool")
	defer span.End()

	res, err := o.tools.Execute(ctx, &tools.Request{
		Tenant:      req.Tenant,
		WorkflowID:  req.WorkflowID,
		ActionType:  req.ActionType,
		Query:       req.Query,
		Inputs:      req.Inputs,
		UserContext: req.UserContext,
		Contexts:    contexts,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		*warnings = append(*warnings, toolFailureWarning(req.ActionType, err))
		return toolEnvelope(req.ActionType, Label(req.ActionType), map[string]any{}, contexts), false
	}
	return toolEnvelope(req.ActionType, res.Summary, res.Payload, contexts), true
}

func toolFailureWarning(actionType string, err error) string {
	reason := "execution error"
	switch {
	case errors.Is(err, tools.ErrSideEffectBlocked):
		reason = "side effect blocked"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	}
	return fmt.Sprintf("Tool %s failed: %s", actionType, reason)
}

// generate 调用 LLM；返回 nil 表示只使用工具结果
func (o *Orchestrator) generate(ctx context.Context, req *PlanRequest, contexts []rag.ContextBlock, toolEnv map[string]any, warnings *[]string) (map[string]any, string) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.LLM")
	defer span.End()
	log := logger.WithContext(ctx)

	provider, err := o.providers.Resolve(ctx, req.LLMProvider)
	if err != nil {
		span.RecordError(err)
		log.Warn("LLM 提供方不可用", zap.String("provider", req.LLMProvider), zap.Error(err))
		*warnings = append(*warnings, WarningLLMUnavailable)
		return nil, OutcomeToolOnly
	}
	// 确定性提供方只会复述片段，动作场景直接使用工具结果
	if provider.Name() == ai.ProviderDeterministic {
		return nil, OutcomeToolOnly
	}
	span.SetAttributes(attribute.String("provider", provider.Name()))

	actionSchema, err := o.registry.ActionSchema(req.ActionType)
	if err != nil {
		*warnings = append(*warnings, WarningLLMUnavailable)
		return nil, OutcomeToolOnly
	}
	toolPayload, _ := toolEnv["payload"].(map[string]any)
	result, err := provider.GenerateAnswer(ctx, &ai.GenerateRequest{
		Purpose:          "action",
		Query:            req.Query,
		Contexts:         contexts,
		Messages:         ai.BuildMessages(buildActionPrompt(req, toolPayload), contexts),
		SchemaName:       "action_" + req.ActionType,
		ResponseSchema:   actionSchema,
		SafetyIdentifier: req.SafetyIdentifier,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm failed")
		log.Warn("LLM 生成失败，使用工具结果", zap.Error(err))
		*warnings = append(*warnings, WarningLLMUnavailable)
		return nil, OutcomeToolOnly
	}

	if ai.IsRefused(result) {
		// 拒答信封没有 payload，只保留告警与复核标记
		return map[string]any{
			"warnings":           result["warnings"],
			"needs_human_review": true,
			"citations":          []any{},
			"confidence":         0.0,
		}, OutcomeLLM
	}

	enforced, res := citation.Enforce(result, contexts)
	span.SetAttributes(attribute.Int("citations_kept", res.Kept), attribute.Int("citations_dropped", res.Dropped))
	return enforced, OutcomeLLM
}
