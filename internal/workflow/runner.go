package workflow

import (
	"context"
	"fmt"

	"github.com/sadhurshan/esai-sub000/internal/actions"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"

	"go.uber.org/zap"
)

// OutputKeySuffix 前序步骤产出在输入中的键后缀，如 invoice_match_output
const OutputKeySuffix = "_output"

// ActionPlanner 执行单个动作，由 actions.Orchestrator 实现
type ActionPlanner interface {
	PlanAction(ctx context.Context, req *actions.PlanRequest) (*actions.Result, error)
}

// DraftOptions 起草步骤时透传给编排器的参数
type DraftOptions struct {
	TopK             int
	Filters          rag.Filters
	LLMProvider      string
	SafetyIdentifier string
	// Refresh 已有草稿时也重新起草
	Refresh bool
}

// CompleteResult 审批结果，NextStep 在工作流结束时为空
type CompleteResult struct {
	Workflow *Workflow `json:"workflow"`
	NextStep *Step     `json:"next_step"`
}

// Runner 把引擎状态机和动作编排串起来
type Runner struct {
	engine  *Engine
	planner ActionPlanner
}

// NewRunner 创建步骤执行器
func NewRunner(engine *Engine, planner ActionPlanner) *Runner {
	return &Runner{engine: engine, planner: planner}
}

// Engine 底层引擎
func (r *Runner) Engine() *Engine {
	return r.engine
}

// Next 激活当前步骤并起草，终态返回 nil
func (r *Runner) Next(ctx context.Context, id string, opts DraftOptions) (*Step, error) {
	step, err := r.engine.GetNextStep(ctx, id)
	if err != nil || step == nil {
		return nil, err
	}
	if step.DraftOutput != nil && !opts.Refresh {
		return step, nil
	}

	wf, err := r.engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	req := &actions.PlanRequest{
		Tenant:           wf.Tenant,
		ActionType:       step.ActionType,
		Query:            wf.Query,
		Inputs:           BuildStepInputs(wf, step.StepIndex),
		UserContext:      wf.UserContext,
		TopK:             opts.TopK,
		Filters:          opts.Filters,
		LLMProvider:      opts.LLMProvider,
		SafetyIdentifier: opts.SafetyIdentifier,
		WorkflowID:       wf.ID,
	}
	result, err := r.planner.PlanAction(ctx, req)
	if err != nil {
		logger.WithContext(ctx).Error("步骤起草失败",
			zap.String("workflow_id", id),
			zap.Int("step_index", step.StepIndex),
			zap.String("action_type", step.ActionType),
			zap.Error(err),
		)
		if _, markErr := r.engine.MarkFailed(ctx, id, err.Error()); markErr != nil {
			logger.WithContext(ctx).Warn("标记工作流失败状态出错", zap.String("workflow_id", id), zap.Error(markErr))
		}
		return nil, engineErr(id, "draft_step", err)
	}

	draft, err := schema.ToMap(result.Envelope)
	if err != nil {
		return nil, fmt.Errorf("转换步骤草稿失败: %w", err)
	}
	return r.engine.UpdateStepDraft(ctx, id, step.StepIndex, draft)
}

// Complete 审批当前步骤，通过且未结束时起草下一步
func (r *Runner) Complete(ctx context.Context, id string, req CompleteRequest, opts DraftOptions) (*CompleteResult, error) {
	wf, err := r.engine.CompleteStep(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if wf.Status.Terminal() {
		return &CompleteResult{Workflow: wf}, nil
	}

	next, err := r.Next(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	if wf, err = r.engine.Get(ctx, id); err != nil {
		return nil, err
	}
	return &CompleteResult{Workflow: wf, NextStep: next}, nil
}

// BuildStepInputs 组装第 index 步的输入：
// 工作流输入，叠加步骤 required_inputs，再注入已批准前序步骤的负载。
// 负载放在 <action_type>_output 下，其顶层键仅在输入中不存在时补入，先完成的步骤优先
func BuildStepInputs(wf *Workflow, index int) map[string]any {
	inputs := copyMap(wf.Inputs)
	if index < 0 || index >= len(wf.Steps) {
		return inputs
	}
	for k, v := range wf.Steps[index].RequiredInputs {
		inputs[k] = v
	}
	for _, prior := range wf.Steps[:index] {
		if prior.ApprovalState != ApprovalApproved {
			continue
		}
		payload := stepPayload(prior.Output)
		inputs[prior.ActionType+OutputKeySuffix] = payload
		for k, v := range payload {
			if _, exists := inputs[k]; !exists {
				inputs[k] = v
			}
		}
	}
	return inputs
}

// stepPayload 产出带 payload 对象时取 payload，否则整体视为负载
func stepPayload(output map[string]any) map[string]any {
	if output == nil {
		return map[string]any{}
	}
	if payload, ok := output["payload"].(map[string]any); ok {
		return payload
	}
	return output
}
