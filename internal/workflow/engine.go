package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/actions"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/metrics"
	"github.com/sadhurshan/esai-sub000/internal/schema"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CustomWorkflowType 显式传入步骤且未指定类型时使用
const CustomWorkflowType = "custom"

// 状态迁移事件，用作指标标签
const (
	eventPlan      = "plan"
	eventStartStep = "start_step"
	eventDraft     = "draft"
	eventApprove   = "approve"
	eventReject    = "reject"
	eventAbort     = "abort"
	eventFail      = "fail"
)

// PlanRequest 创建工作流的参数
type PlanRequest struct {
	Tenant       string
	WorkflowType string
	Query        string
	// Steps 为空时按 WorkflowType 取模板；元素可以是动作类型字符串、
	// 含 action_type 的 map 或 StepSpec
	Steps       []any
	Inputs      map[string]any
	UserContext map[string]any
	Metadata    map[string]any
}

// CompleteRequest 审批当前步骤
type CompleteRequest struct {
	// Output 为空时记录当前草稿
	Output     map[string]any
	Approval   bool
	ApprovedBy string
}

// Engine 工作流状态机
// 所有迁移在同一把锁内完成：在副本上修改，持久化成功后才替换内存快照
type Engine struct {
	mu        sync.Mutex
	store     Store
	templates *TemplateLoader
	workflows map[string]*Workflow
	now       func() time.Time
	newID     func() string
}

// NewEngine 创建引擎并从存储恢复全部工作流
func NewEngine(ctx context.Context, store Store, templates *TemplateLoader) (*Engine, error) {
	loaded, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("恢复工作流失败: %w", err)
	}
	e := &Engine{
		store:     store,
		templates: templates,
		workflows: make(map[string]*Workflow, len(loaded)),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
	for _, wf := range loaded {
		e.workflows[wf.ID] = wf
	}
	metrics.WorkflowsLoaded.Set(float64(len(loaded)))
	logger.Info("工作流引擎已启动", zap.Int("loaded", len(loaded)))
	return e, nil
}

// WithClock 设置时钟
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Plan 创建并持久化工作流
func (e *Engine) Plan(ctx context.Context, req *PlanRequest) (*Workflow, error) {
	if strings.TrimSpace(req.Tenant) == "" {
		return nil, fmt.Errorf("%w: tenant 不能为空", ErrInvalidArgument)
	}
	workflowType := strings.TrimSpace(req.WorkflowType)

	var specs []StepSpec
	if len(req.Steps) > 0 {
		parsed, err := parseSteps(req.Steps)
		if err != nil {
			return nil, err
		}
		specs = parsed
		if workflowType == "" {
			workflowType = CustomWorkflowType
		}
	} else {
		if workflowType == "" {
			return nil, fmt.Errorf("%w: 需要 workflow_type 或 steps", ErrInvalidArgument)
		}
		tpl, ok := e.templates.Get(workflowType)
		if !ok {
			return nil, fmt.Errorf("%w: 未知工作流类型 %q", ErrInvalidArgument, workflowType)
		}
		specs = tpl.Steps
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: 工作流至少需要一个步骤", ErrInvalidArgument)
	}

	now := e.now()
	wf := &Workflow{
		ID:               e.newID(),
		Type:             workflowType,
		Tenant:           req.Tenant,
		Query:            req.Query,
		Inputs:           copyMap(req.Inputs),
		UserContext:      copyMap(req.UserContext),
		Metadata:         copyMap(req.Metadata),
		Steps:            make([]*Step, len(specs)),
		CurrentStepIndex: intPtr(0),
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i, spec := range specs {
		name := spec.Name
		if name == "" {
			name = actions.Label(spec.ActionType)
		}
		wf.Steps[i] = &Step{
			StepIndex:      i,
			Name:           name,
			ActionType:     spec.ActionType,
			Description:    spec.Description,
			RequiredInputs: copyMap(spec.RequiredInputs),
			ApprovalState:  ApprovalPending,
			Metadata:       copyMap(spec.Metadata),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	// 经过一次序列化，和从存储恢复的快照保持同一形态
	wf = wf.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Save(ctx, wf); err != nil {
		return nil, fmt.Errorf("持久化工作流失败: %w", err)
	}
	e.workflows[wf.ID] = wf
	metrics.WorkflowTransitionsTotal.WithLabelValues(wf.Type, eventPlan).Inc()
	logger.WithContext(ctx).Info("工作流已创建",
		zap.String("workflow_id", wf.ID),
		zap.String("workflow_type", wf.Type),
		zap.String("tenant", wf.Tenant),
		zap.Int("steps", len(wf.Steps)),
	)
	return wf.Clone(), nil
}

// Get 返回工作流快照副本
func (e *Engine) Get(_ context.Context, id string) (*Workflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	wf, ok := e.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return wf.Clone(), nil
}

// List 按创建时间列出租户下的工作流
func (e *Engine) List(_ context.Context, tenant string) []*Workflow {
	e.mu.Lock()
	result := make([]*Workflow, 0)
	for _, wf := range e.workflows {
		if tenant == "" || wf.Tenant == tenant {
			result = append(result, wf.Clone())
		}
	}
	e.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// GetNextStep 激活当前步骤并返回；终态返回 nil
// 当前步骤已激活时直接返回，不重复迁移
func (e *Engine) GetNextStep(ctx context.Context, id string) (*Step, error) {
	active := -1
	wf, err := e.mutate(ctx, id, "get_next_step", func(wf *Workflow) (string, error) {
		if wf.Status.Terminal() {
			return "", nil
		}
		step := wf.CurrentStep()
		if step == nil {
			return "", ErrNoActiveStep
		}
		switch step.ApprovalState {
		case ApprovalInProgress:
			active = step.StepIndex
			return "", nil
		case ApprovalPending:
			step.ApprovalState = ApprovalInProgress
			step.UpdatedAt = e.now()
			wf.Status = StatusInProgress
			active = step.StepIndex
			return eventStartStep, nil
		default:
			return "", ErrStepFinalized
		}
	})
	if err != nil || active < 0 {
		return nil, err
	}
	return wf.Steps[active], nil
}

// UpdateStepDraft 保存编排器最新产出，只允许当前激活步骤
func (e *Engine) UpdateStepDraft(ctx context.Context, id string, stepIndex int, draft map[string]any) (*Step, error) {
	wf, err := e.mutate(ctx, id, "update_step_draft", func(wf *Workflow) (string, error) {
		if wf.Status.Terminal() {
			return "", ErrInvalidTransition
		}
		if stepIndex < 0 || stepIndex >= len(wf.Steps) {
			return "", fmt.Errorf("%w: 步骤序号越界 %d", ErrInvalidArgument, stepIndex)
		}
		step := wf.Steps[stepIndex]
		switch step.ApprovalState {
		case ApprovalApproved, ApprovalRejected:
			return "", ErrStepFinalized
		case ApprovalPending:
			return "", ErrNoActiveStep
		}
		step.DraftOutput = copyMap(draft)
		step.UpdatedAt = e.now()
		return eventDraft, nil
	})
	if err != nil {
		return nil, err
	}
	return wf.Steps[stepIndex], nil
}

// CompleteStep 审批当前步骤：通过则前进或完成，驳回则终止
func (e *Engine) CompleteStep(ctx context.Context, id string, req CompleteRequest) (*Workflow, error) {
	return e.mutate(ctx, id, "complete_step", func(wf *Workflow) (string, error) {
		if wf.Status.Terminal() {
			return "", ErrInvalidTransition
		}
		step := wf.CurrentStep()
		if step == nil {
			return "", ErrNoActiveStep
		}
		switch step.ApprovalState {
		case ApprovalApproved, ApprovalRejected:
			return "", ErrStepFinalized
		case ApprovalPending:
			return "", ErrNoActiveStep
		}

		now := e.now()
		output := req.Output
		if output == nil {
			output = step.DraftOutput
		}
		step.Output = copyMap(output)
		step.ApprovedAt = &now
		step.UpdatedAt = now
		if req.ApprovedBy != "" {
			approver := req.ApprovedBy
			step.ApprovedBy = &approver
		}

		if !req.Approval {
			step.ApprovalState = ApprovalRejected
			wf.Status = StatusRejected
			wf.CurrentStepIndex = nil
			return eventReject, nil
		}

		step.ApprovalState = ApprovalApproved
		if next := step.StepIndex + 1; next < len(wf.Steps) {
			wf.CurrentStepIndex = intPtr(next)
		} else {
			wf.Status = StatusCompleted
			wf.CurrentStepIndex = nil
		}
		return eventApprove, nil
	})
}

// Abort 终止工作流
func (e *Engine) Abort(ctx context.Context, id, reason string) (*Workflow, error) {
	return e.terminate(ctx, id, "abort", StatusAborted, eventAbort, reason)
}

// MarkFailed 步骤执行出错时终止工作流
func (e *Engine) MarkFailed(ctx context.Context, id, reason string) (*Workflow, error) {
	return e.terminate(ctx, id, "mark_failed", StatusFailed, eventFail, reason)
}

func (e *Engine) terminate(ctx context.Context, id, op string, status Status, event, reason string) (*Workflow, error) {
	return e.mutate(ctx, id, op, func(wf *Workflow) (string, error) {
		if wf.Status.Terminal() {
			return "", ErrInvalidTransition
		}
		wf.Status = status
		wf.CurrentStepIndex = nil
		wf.AbortReason = reason
		return event, nil
	})
}

// mutate 在副本上执行 fn；fn 返回空事件表示无变更，不写存储
func (e *Engine) mutate(ctx context.Context, id, op string, fn func(wf *Workflow) (string, error)) (*Workflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	next := current.Clone()
	event, err := fn(next)
	if err != nil {
		return nil, engineErr(id, op, err)
	}
	if event == "" {
		return current.Clone(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next.UpdatedAt = e.now()
	if err := e.store.Save(ctx, next); err != nil {
		logger.WithContext(ctx).Error("持久化工作流失败",
			zap.String("workflow_id", id),
			zap.String("op", op),
			zap.Error(err),
		)
		return nil, fmt.Errorf("持久化工作流失败: %w", err)
	}
	e.workflows[id] = next
	metrics.WorkflowTransitionsTotal.WithLabelValues(next.Type, event).Inc()
	logger.WithContext(ctx).Debug("工作流状态迁移",
		zap.String("workflow_id", id),
		zap.String("event", event),
		zap.String("status", string(next.Status)),
	)
	return next.Clone(), nil
}

// parseSteps 解析显式步骤
func parseSteps(items []any) ([]StepSpec, error) {
	specs := make([]StepSpec, 0, len(items))
	for i, item := range items {
		var spec StepSpec
		switch v := item.(type) {
		case string:
			spec.ActionType = strings.TrimSpace(v)
		case StepSpec:
			spec = v
		case map[string]any:
			if err := schema.FromMap(v, &spec); err != nil {
				return nil, fmt.Errorf("%w: 第 %d 步格式错误: %v", ErrInvalidArgument, i, err)
			}
		default:
			return nil, fmt.Errorf("%w: 第 %d 步类型不支持 %T", ErrInvalidArgument, i, item)
		}
		if spec.ActionType == "" {
			return nil, fmt.Errorf("%w: 第 %d 步缺少 action_type", ErrInvalidArgument, i)
		}
		if !schema.IsActionType(spec.ActionType) {
			return nil, fmt.Errorf("%w: 第 %d 步动作类型未知 %q", ErrInvalidArgument, i, spec.ActionType)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
