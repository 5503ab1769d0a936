package workflows

import (
	"net/http"
	"strings"

	response "github.com/sadhurshan/esai-sub000/api/handlers/common"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/workflow"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultTopK = 8

// WorkflowHandler 审批工作流处理器
type WorkflowHandler struct {
	runner *workflow.Runner
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(runner *workflow.Runner) *WorkflowHandler {
	return &WorkflowHandler{runner: runner}
}

// Plan 创建工作流
// @Summary 创建审批工作流
// @Tags Workflows
// @Accept json
// @Produce json
// @Param request body PlanWorkflowRequest true "工作流"
// @Success 200 {object} workflow.Head
// @Failure 422 {object} response.ErrorResponse
// @Router /workflows/plan [post]
func (h *WorkflowHandler) Plan(c *gin.Context) {
	var req PlanWorkflowRequest
	if !response.BindJSON(c, &req) {
		return
	}

	inputs := make(map[string]any, len(req.Inputs)+2)
	for k, v := range req.Inputs {
		inputs[k] = v
	}
	if req.RFQID != "" {
		inputs["rfq_id"] = req.RFQID
	}
	if req.Goal != "" {
		inputs["goal"] = req.Goal
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = strings.TrimSpace(req.Goal)
	}

	ctx := logger.WithTenant(c.Request.Context(), req.Tenant.String())
	wf, err := h.runner.Engine().Plan(ctx, &workflow.PlanRequest{
		Tenant:       req.Tenant.String(),
		WorkflowType: req.WorkflowType,
		Query:        query,
		Steps:        req.Steps,
		Inputs:       inputs,
		UserContext:  req.UserContext,
		Metadata:     req.Metadata,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf.Head())
}

// List 租户的工作流列表
// @Summary 工作流列表
// @Tags Workflows
// @Produce json
// @Param tenant query string true "租户"
// @Success 200 {object} ListResponse
// @Router /workflows [get]
func (h *WorkflowHandler) List(c *gin.Context) {
	tenant := strings.TrimSpace(c.Query("tenant"))
	if tenant == "" {
		c.JSON(http.StatusUnprocessableEntity, response.ErrorResponse{
			Success: false,
			Code:    response.CodeValidation,
			Message: "参数错误",
			Details: []string{"tenant: 必填"},
		})
		return
	}

	all := h.runner.Engine().List(c.Request.Context(), tenant)
	items := make([]*workflow.Head, 0, len(all))
	for _, wf := range all {
		items = append(items, wf.Head())
	}
	c.JSON(http.StatusOK, ListResponse{Items: items, Total: len(items)})
}

// Get 工作流完整快照
// @Summary 获取工作流
// @Tags Workflows
// @Produce json
// @Param id path string true "工作流 ID"
// @Success 200 {object} workflow.Workflow
// @Failure 404 {object} response.ErrorResponse
// @Router /workflows/{id} [get]
func (h *WorkflowHandler) Get(c *gin.Context) {
	wf, err := h.runner.Engine().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// Next 激活并起草当前步骤
// @Summary 获取下一步
// @Tags Workflows
// @Produce json
// @Param id path string true "工作流 ID"
// @Success 200 {object} NextStepResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /workflows/{id}/next [get]
func (h *WorkflowHandler) Next(c *gin.Context) {
	var q NextStepQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.ErrorResponse{
			Success: false,
			Code:    response.CodeValidation,
			Message: "参数错误: " + err.Error(),
		})
		return
	}

	id := c.Param("id")
	step, err := h.runner.Next(c.Request.Context(), id, draftOptions(q))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	wf, err := h.runner.Engine().Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NextStepResponse{WorkflowID: wf.ID, Status: wf.Status, Step: step})
}

// Complete 审批当前步骤
// @Summary 审批步骤
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "工作流 ID"
// @Param request body CompleteStepRequest true "审批结果"
// @Success 200 {object} workflow.CompleteResult
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /workflows/{id}/complete [post]
func (h *WorkflowHandler) Complete(c *gin.Context) {
	var req CompleteStepRequest
	if !response.BindJSON(c, &req) {
		return
	}

	id := c.Param("id")
	result, err := h.runner.Complete(c.Request.Context(), id, workflow.CompleteRequest{
		Output:     req.Output,
		Approval:   *req.Approval,
		ApprovedBy: req.ApprovedBy,
	}, draftOptions(NextStepQuery{}))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	logger.WithContext(c.Request.Context()).Info("工作流步骤已审批",
		zap.String("workflow_id", id),
		zap.Bool("approval", *req.Approval),
		zap.String("status", string(result.Workflow.Status)),
	)
	c.JSON(http.StatusOK, result)
}

// Abort 终止工作流
// @Summary 终止工作流
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "工作流 ID"
// @Success 200 {object} workflow.Workflow
// @Router /workflows/{id}/abort [post]
func (h *WorkflowHandler) Abort(c *gin.Context) {
	var req AbortRequest
	// 请求体可选
	if c.Request.ContentLength > 0 && !response.BindJSON(c, &req) {
		return
	}

	wf, err := h.runner.Engine().Abort(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func draftOptions(q NextStepQuery) workflow.DraftOptions {
	topK := q.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	return workflow.DraftOptions{
		TopK:             topK,
		LLMProvider:      q.LLMProvider,
		SafetyIdentifier: q.SafetyIdentifier,
		Refresh:          q.Refresh,
	}
}
