package workflows

import (
	response "github.com/sadhurshan/esai-sub000/api/handlers/common"
	"github.com/sadhurshan/esai-sub000/internal/workflow"
)

// PlanWorkflowRequest 创建工作流请求
// rfq_id 与 goal 合并进 inputs；query 为空时使用 goal
type PlanWorkflowRequest struct {
	Tenant       response.TenantID `json:"tenant" binding:"required"`
	WorkflowType string            `json:"workflow_type"`
	Query        string            `json:"query"`
	Goal         string            `json:"goal"`
	RFQID        string            `json:"rfq_id"`
	Steps        []any             `json:"steps"`
	Inputs       map[string]any    `json:"inputs"`
	UserContext  map[string]any    `json:"user_context"`
	Metadata     map[string]any    `json:"metadata"`
}

// NextStepQuery 起草参数，通过查询串传入
type NextStepQuery struct {
	TopK             int    `form:"top_k" binding:"omitempty,min=1,max=25"`
	LLMProvider      string `form:"llm_provider" binding:"omitempty,oneof=deterministic external"`
	SafetyIdentifier string `form:"safety_identifier"`
	Refresh          bool   `form:"refresh"`
}

// NextStepResponse 当前步骤，工作流结束时 step 为 null
type NextStepResponse struct {
	WorkflowID string          `json:"workflow_id"`
	Status     workflow.Status `json:"status"`
	Step       *workflow.Step  `json:"step"`
}

// CompleteStepRequest 审批请求
type CompleteStepRequest struct {
	Output     map[string]any `json:"output"`
	Approval   *bool          `json:"approval" binding:"required"`
	ApprovedBy string         `json:"approved_by"`
}

// AbortRequest 终止请求
type AbortRequest struct {
	Reason string `json:"reason"`
}

// ListResponse 工作流列表
type ListResponse struct {
	Items []*workflow.Head `json:"items"`
	Total int              `json:"total"`
}
