package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/metrics"
	"github.com/sadhurshan/esai-sub000/internal/schema"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultToolTimeout = 5 * time.Second

// ToolExecutionResult 工具执行结果
type ToolExecutionResult struct {
	ToolName string
	Summary  string
	Payload  map[string]any
	Duration time.Duration
}

// ToolExecutor 工具执行引擎
// 每次执行分配独立的拒绝型沙箱，恢复 panic 并限制执行时间
type ToolExecutor struct {
	registry   *ToolRegistry
	timeout    time.Duration
	now        func() time.Time
	newSandbox func() Sandbox
	recorder   ExecutionRecorder
}

// NewToolExecutor 创建工具执行引擎
func NewToolExecutor(registry *ToolRegistry) *ToolExecutor {
	return &ToolExecutor{
		registry:   registry,
		timeout:    defaultToolTimeout,
		now:        time.Now,
		newSandbox: func() Sandbox { return NewDenyAllSandbox() },
	}
}

// WithClock 设置时钟
func (e *ToolExecutor) WithClock(now func() time.Time) *ToolExecutor {
	e.now = now
	return e
}

// WithTimeout 设置单次执行超时
func (e *ToolExecutor) WithTimeout(d time.Duration) *ToolExecutor {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// WithRecorder 设置执行记录器，为空时不落库
func (e *ToolExecutor) WithRecorder(recorder ExecutionRecorder) *ToolExecutor {
	e.recorder = recorder
	return e
}

// Registry 底层注册表
func (e *ToolExecutor) Registry() *ToolRegistry {
	return e.registry
}

// Today 当天零点（UTC）
func (e *ToolExecutor) Today() time.Time {
	now := e.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Execute 执行工具
func (e *ToolExecutor) Execute(ctx context.Context, req *Request) (*ToolExecutionResult, error) {
	handler, exists := e.registry.Get(req.ActionType)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, req.ActionType)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	env := &Env{Sandbox: e.newSandbox(), Today: e.Today()}
	type outcome struct {
		out *Output
		err error
	}
	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithContext(ctx).Error("工具执行发生 panic",
					zap.String("tool", req.ActionType),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				done <- outcome{err: fmt.Errorf("工具 %s panic: %v", req.ActionType, r)}
			}
		}()
		out, err := handler.Execute(execCtx, env, req)
		done <- outcome{out: out, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-execCtx.Done():
		res = outcome{err: fmt.Errorf("工具 %s 执行超时: %w", req.ActionType, execCtx.Err())}
	}
	duration := time.Since(start)

	status := "success"
	var payload map[string]any
	var execErr error
	defer func() {
		metrics.ToolExecutionDuration.WithLabelValues(req.ActionType, status).Observe(duration.Seconds())
		e.record(ctx, req, start, duration, status, payload, execErr)
	}()

	if res.err != nil {
		status = "failed"
		if errors.Is(res.err, ErrSideEffectBlocked) {
			status = "blocked"
		}
		logger.WithContext(ctx).Warn("工具执行失败",
			zap.String("tool", req.ActionType),
			zap.Error(res.err),
		)
		execErr = res.err
		return nil, res.err
	}
	if res.out == nil {
		status = "failed"
		execErr = fmt.Errorf("工具 %s 没有返回结果", req.ActionType)
		return nil, execErr
	}

	var err error
	payload, err = schema.ToMap(res.out.Payload)
	if err != nil {
		status = "failed"
		execErr = fmt.Errorf("工具 %s 负载序列化失败: %w", req.ActionType, err)
		return nil, execErr
	}
	return &ToolExecutionResult{
		ToolName: req.ActionType,
		Summary:  res.out.Summary,
		Payload:  payload,
		Duration: duration,
	}, nil
}

// record 写入审计记录，失败只记日志
func (e *ToolExecutor) record(ctx context.Context, req *Request, start time.Time, duration time.Duration, status string, payload map[string]any, execErr error) {
	if e.recorder == nil {
		return
	}
	input, _ := json.Marshal(req.Inputs)
	output, _ := json.Marshal(payload)
	execution := &ToolExecution{
		ID:         uuid.NewString(),
		Tenant:     req.Tenant,
		ToolName:   req.ActionType,
		WorkflowID: req.WorkflowID,
		Input:      input,
		Output:     output,
		Status:     status,
		StartedAt:  start.UTC(),
		Duration:   duration.Milliseconds(),
	}
	if execErr != nil {
		msg := execErr.Error()
		execution.ErrorMessage = &msg
	}
	if err := e.recorder.Record(context.WithoutCancel(ctx), execution); err != nil {
		logger.WithContext(ctx).Warn("写入工具执行记录失败",
			zap.String("tool", req.ActionType),
			zap.Error(err),
		)
	}
}
