package chat

import (
	"context"
	"fmt"

	"github.com/sadhurshan/esai-sub000/internal/actions"
	"github.com/sadhurshan/esai-sub000/internal/answer"
	"github.com/sadhurshan/esai-sub000/internal/planner"
	"github.com/sadhurshan/esai-sub000/internal/schema"
	"github.com/sadhurshan/esai-sub000/internal/workflow"
)

// 对话内部的默认检索条数
const chatTopK = 8

// 对话启动的工作流类型
const (
	WorkflowProcurement      = "procurement"
	WorkflowProcureToPay     = "procure_to_pay"
	WorkflowInvoiceException = "invoice_exception"
)

// Answerer 问答服务
type Answerer interface {
	Answer(ctx context.Context, req *answer.Request) (*schema.AnswerEnvelope, error)
}

// ActionPlanner 动作编排
type ActionPlanner interface {
	PlanAction(ctx context.Context, req *actions.PlanRequest) (*actions.Result, error)
}

// WorkflowStarted 对话中启动工作流的结果
type WorkflowStarted struct {
	Workflow *workflow.Head `json:"workflow"`
	Step     *workflow.Step `json:"step"`
}

// NewAnswerBuilder 问答分支
func NewAnswerBuilder(answerer Answerer) Builder {
	return BuilderFunc(func(ctx context.Context, req *Request, _ Classification) (any, error) {
		return answerer.Answer(ctx, &answer.Request{
			Tenant:           req.Tenant,
			Query:            req.Text,
			TopK:             chatTopK,
			LLMProvider:      req.LLMProvider,
			SafetyIdentifier: req.SafetyIdentifier,
		})
	})
}

// NewActionBuilder 动作分支，动作类型取自分类结果
func NewActionBuilder(p ActionPlanner) Builder {
	return BuilderFunc(func(ctx context.Context, req *Request, c Classification) (any, error) {
		result, err := p.PlanAction(ctx, &actions.PlanRequest{
			Tenant:           req.Tenant,
			ActionType:       c.ActionType,
			Query:            req.Text,
			Inputs:           req.Inputs,
			UserContext:      req.UserContext,
			TopK:             chatTopK,
			LLMProvider:      req.LLMProvider,
			SafetyIdentifier: req.SafetyIdentifier,
		})
		if err != nil {
			return nil, err
		}
		return result.Envelope, nil
	})
}

// NewWorkflowBuilder 工作流分支：按文本选择模板，创建后立即起草第一步
func NewWorkflowBuilder(runner *workflow.Runner) Builder {
	return BuilderFunc(func(ctx context.Context, req *Request, _ Classification) (any, error) {
		wf, err := runner.Engine().Plan(ctx, &workflow.PlanRequest{
			Tenant:       req.Tenant,
			WorkflowType: WorkflowTypeFor(req.Text),
			Query:        req.Text,
			Inputs:       req.Inputs,
			UserContext:  req.UserContext,
			Metadata:     map[string]any{"source": "copilot_chat"},
		})
		if err != nil {
			return nil, err
		}
		step, err := runner.Next(ctx, wf.ID, workflow.DraftOptions{
			TopK:             chatTopK,
			LLMProvider:      req.LLMProvider,
			SafetyIdentifier: req.SafetyIdentifier,
		})
		if err != nil {
			return nil, fmt.Errorf("起草工作流首步失败: %w", err)
		}
		if wf, err = runner.Engine().Get(ctx, wf.ID); err != nil {
			return nil, err
		}
		return &WorkflowStarted{Workflow: wf.Head(), Step: step}, nil
	})
}

// NewToolRequestBuilder 工作区查询分支，返回规划器给出的工具调用，由调用方执行
func NewToolRequestBuilder(p *planner.Planner) Builder {
	return BuilderFunc(func(ctx context.Context, req *Request, _ Classification) (any, error) {
		return p.Plan(ctx, req.History, req.Text), nil
	})
}

// WorkflowTypeFor 从文本推断工作流模板
func WorkflowTypeFor(text string) string {
	t := normalize(text)
	for _, w := range []string{"invoice exception", "exception", "mismatch", "dispute"} {
		if containsWord(t, w) {
			return WorkflowInvoiceException
		}
	}
	for _, w := range []string{"procure to pay", "procure-to-pay", "p2p", "payment", "pay"} {
		if containsWord(t, w) {
			return WorkflowProcureToPay
		}
	}
	return WorkflowProcurement
}
