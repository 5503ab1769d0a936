package tools

import "context"

// ExecutionProvider 工具执行入口，编排层依赖接口而非具体实现
type ExecutionProvider interface {
	Execute(ctx context.Context, req *Request) (*ToolExecutionResult, error)
}

// ExecutionRecorder 执行记录持久化
type ExecutionRecorder interface {
	Record(ctx context.Context, execution *ToolExecution) error
}

var _ ExecutionProvider = (*ToolExecutor)(nil)
