package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound 工作流不存在
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrInvalidArgument 规划参数非法（空步骤、缺少 action_type 等）
	ErrInvalidArgument = errors.New("invalid workflow argument")
	// ErrInvalidTransition 当前状态不允许该迁移
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrNoActiveStep 没有处于 in_progress 的步骤
	ErrNoActiveStep = errors.New("no active step")
	// ErrStepFinalized 步骤已审批完成
	ErrStepFinalized = errors.New("step already finalized")
)

// EngineError 状态机错误，附带工作流与操作名
type EngineError struct {
	WorkflowID string
	Op         string
	Err        error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("workflow %s: %s: %v", e.WorkflowID, e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func engineErr(id, op string, err error) error {
	return &EngineError{WorkflowID: id, Op: op, Err: err}
}
