// Package workflow 采购工作流：步骤规划、人工审批状态机与快照持久化
package workflow

import (
	"encoding/json"
	"time"
)

// Status 工作流状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusAborted    Status = "aborted"
	StatusFailed     Status = "failed"
)

// Terminal 是否为终态
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusAborted, StatusFailed:
		return true
	}
	return false
}

// ApprovalState 步骤审批状态
type ApprovalState string

const (
	ApprovalPending    ApprovalState = "pending"
	ApprovalInProgress ApprovalState = "in_progress"
	ApprovalApproved   ApprovalState = "approved"
	ApprovalRejected   ApprovalState = "rejected"
)

// Step 工作流步骤
type Step struct {
	StepIndex      int            `json:"step_index"`
	Name           string         `json:"name"`
	ActionType     string         `json:"action_type"`
	Description    string         `json:"description,omitempty"`
	RequiredInputs map[string]any `json:"required_inputs"`
	DraftOutput    map[string]any `json:"draft_output"`
	Output         map[string]any `json:"output"`
	ApprovalState  ApprovalState  `json:"approval_state"`
	ApprovedBy     *string        `json:"approved_by"`
	ApprovedAt     *time.Time     `json:"approved_at"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Workflow 工作流快照，持久化格式即其 JSON
type Workflow struct {
	ID               string         `json:"workflow_id"`
	Type             string         `json:"workflow_type"`
	Tenant           string         `json:"tenant"`
	Query            string         `json:"query"`
	Inputs           map[string]any `json:"inputs"`
	UserContext      map[string]any `json:"user_context"`
	Metadata         map[string]any `json:"metadata"`
	Steps            []*Step        `json:"steps"`
	CurrentStepIndex *int           `json:"current_step_index"`
	Status           Status         `json:"status"`
	AbortReason      string         `json:"abort_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CurrentStep 当前步骤，终态时为 nil
func (w *Workflow) CurrentStep() *Step {
	if w.CurrentStepIndex == nil {
		return nil
	}
	i := *w.CurrentStepIndex
	if i < 0 || i >= len(w.Steps) {
		return nil
	}
	return w.Steps[i]
}

// Clone 深拷贝，状态变更都在副本上进行
func (w *Workflow) Clone() *Workflow {
	data, err := json.Marshal(w)
	if err != nil {
		// 快照只含 JSON 可表示的值
		panic(err)
	}
	var out Workflow
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

// Head 列表与创建接口返回的摘要
type Head struct {
	ID               string    `json:"workflow_id"`
	Type             string    `json:"workflow_type"`
	Tenant           string    `json:"tenant"`
	Status           Status    `json:"status"`
	CurrentStepIndex *int      `json:"current_step_index"`
	Steps            []string  `json:"steps"`
	CreatedAt        time.Time `json:"created_at"`
}

// Head 生成摘要
func (w *Workflow) Head() *Head {
	steps := make([]string, len(w.Steps))
	for i, s := range w.Steps {
		steps[i] = s.ActionType
	}
	return &Head{
		ID:               w.ID,
		Type:             w.Type,
		Tenant:           w.Tenant,
		Status:           w.Status,
		CurrentStepIndex: w.CurrentStepIndex,
		Steps:            steps,
		CreatedAt:        w.CreatedAt,
	}
}

func intPtr(i int) *int { return &i }
