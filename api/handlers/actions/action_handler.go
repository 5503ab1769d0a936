package actions

import (
	"context"
	"net/http"

	response "github.com/sadhurshan/esai-sub000/api/handlers/common"
	actionpkg "github.com/sadhurshan/esai-sub000/internal/actions"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/rag"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultTopK = 8

// Planner 执行单个动作
type Planner interface {
	PlanAction(ctx context.Context, req *actionpkg.PlanRequest) (*actionpkg.Result, error)
}

// PlanRequest 动作请求
type PlanRequest struct {
	Tenant           response.TenantID `json:"tenant" binding:"required"`
	ActionType       string            `json:"action_type" binding:"required"`
	Query            string            `json:"query"`
	Inputs           map[string]any    `json:"inputs"`
	UserContext      map[string]any    `json:"user_context"`
	TopK             int               `json:"top_k" binding:"omitempty,min=1,max=25"`
	Filters          rag.Filters       `json:"filters"`
	LLMProvider      string            `json:"llm_provider" binding:"omitempty,oneof=deterministic external"`
	SafetyIdentifier string            `json:"safety_identifier"`
}

// ActionHandler 动作处理器
type ActionHandler struct {
	planner Planner
}

// NewActionHandler 创建动作处理器
func NewActionHandler(planner Planner) *ActionHandler {
	return &ActionHandler{planner: planner}
}

// Plan 执行动作并返回动作信封
// @Summary 执行单个采购动作
// @Tags Actions
// @Accept json
// @Produce json
// @Param request body PlanRequest true "动作请求"
// @Success 200 {object} schema.ActionEnvelope
// @Failure 422 {object} response.ErrorResponse
// @Router /actions/plan [post]
func (h *ActionHandler) Plan(c *gin.Context) {
	var req PlanRequest
	if !response.BindJSON(c, &req) {
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = defaultTopK
	}

	ctx := logger.WithTenant(c.Request.Context(), req.Tenant.String())
	result, err := h.planner.PlanAction(ctx, &actionpkg.PlanRequest{
		Tenant:           req.Tenant.String(),
		ActionType:       req.ActionType,
		Query:            req.Query,
		Inputs:           req.Inputs,
		UserContext:      req.UserContext,
		TopK:             topK,
		Filters:          req.Filters,
		LLMProvider:      req.LLMProvider,
		SafetyIdentifier: req.SafetyIdentifier,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}

	logger.WithContext(ctx).Debug("动作完成",
		zap.String("action_type", req.ActionType),
		zap.String("outcome", result.Outcome),
		zap.Int("contexts", len(result.Contexts)),
	)
	c.JSON(http.StatusOK, result.Envelope)
}
