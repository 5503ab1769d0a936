package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/planner"

	"go.uber.org/zap"
)

// ErrNoBuilder 分类对应的构建器未配置
var ErrNoBuilder = errors.New("no builder for intent class")

// Request 对话请求
type Request struct {
	Tenant           string
	History          []ai.Message
	Text             string
	Inputs           map[string]any
	UserContext      map[string]any
	LLMProvider      string
	SafetyIdentifier string
}

// Response 路由结果
type Response struct {
	Classification
	Result any `json:"result"`
}

// Builder 按分类构建响应
type Builder interface {
	Build(ctx context.Context, req *Request, c Classification) (any, error)
}

// BuilderFunc 函数适配器
type BuilderFunc func(ctx context.Context, req *Request, c Classification) (any, error)

// Build 调用函数本身
func (f BuilderFunc) Build(ctx context.Context, req *Request, c Classification) (any, error) {
	return f(ctx, req, c)
}

// Refiner 对 general_qna 做二次分类
type Refiner interface {
	Refine(ctx context.Context, history []ai.Message, text string) (Classification, bool)
}

// Router 对话路由器
type Router struct {
	builders map[string]Builder
	refiner  Refiner
}

// NewRouter 创建路由器，四个构建器对应 answer/action/workflow/tool_request
func NewRouter(answer, action, workflow, toolRequest Builder) *Router {
	return &Router{builders: map[string]Builder{
		ClassAnswer:      answer,
		ClassAction:      action,
		ClassWorkflow:    workflow,
		ClassToolRequest: toolRequest,
	}}
}

// WithRefiner 设置二次分类器
func (r *Router) WithRefiner(refiner Refiner) *Router {
	r.refiner = refiner
	return r
}

// Route 分类并分发
func (r *Router) Route(ctx context.Context, req *Request) (*Response, error) {
	c := Classify(req.History, req.Text)
	if c.Intent == IntentGeneralQnA && r.refiner != nil {
		if refined, ok := r.refiner.Refine(ctx, req.History, req.Text); ok {
			logger.WithContext(ctx).Debug("意图二次分类",
				zap.String("from", string(c.Intent)),
				zap.String("to", string(refined.Intent)),
			)
			c = refined
		}
	}

	builder := r.builders[c.Class]
	if builder == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBuilder, c.Class)
	}
	result, err := builder.Build(ctx, req, c)
	if err != nil {
		return nil, err
	}
	return &Response{Classification: c, Result: result}, nil
}

// PlannerRefiner 用意图规划器的工具选择二次分类
type PlannerRefiner struct {
	planner *planner.Planner
}

// NewPlannerRefiner 创建基于规划器的二次分类器
func NewPlannerRefiner(p *planner.Planner) *PlannerRefiner {
	return &PlannerRefiner{planner: p}
}

// Refine 只有模型可用时才生效
func (r *PlannerRefiner) Refine(ctx context.Context, history []ai.Message, text string) (Classification, bool) {
	if r.planner == nil || !r.planner.HasModel() {
		return Classification{}, false
	}
	plan := r.planner.Plan(ctx, history, text)

	var name string
	switch plan.Kind() {
	case planner.PlanKindTool:
		name = *plan.Tool
	case planner.PlanKindClarification:
		name = plan.TargetTool
	default:
		return Classification{}, false
	}

	spec, ok := r.planner.Catalog().Get(name)
	if !ok {
		return Classification{}, false
	}
	switch {
	case spec.ActionType != "":
		return ForAction(spec.ActionType), true
	case spec.Kind == planner.KindWorkflow:
		return classification(IntentWorkflow, false), true
	case spec.Kind == planner.KindSearch || spec.Kind == planner.KindGet:
		return classification(IntentWorkspaceQnA, false), true
	default:
		return Classification{}, false
	}
}
