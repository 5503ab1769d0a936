package copilot

import (
	"context"
	"net/http"

	response "github.com/sadhurshan/esai-sub000/api/handlers/common"
	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/chat"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/planner"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IntentPlanner 意图规划
type IntentPlanner interface {
	Plan(ctx context.Context, history []ai.Message, prompt string) *planner.Plan
}

// ChatRouter 对话路由
type ChatRouter interface {
	Route(ctx context.Context, req *chat.Request) (*chat.Response, error)
}

// Message 对话历史中的一条消息
type Message struct {
	Role    string `json:"role" binding:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// IntentRequest 意图规划请求
type IntentRequest struct {
	Messages []Message `json:"messages" binding:"dive"`
	Prompt   string    `json:"prompt" binding:"required"`
}

// ChatRequest 对话请求
type ChatRequest struct {
	Tenant           response.TenantID `json:"tenant" binding:"required"`
	Messages         []Message         `json:"messages" binding:"dive"`
	Prompt           string            `json:"prompt" binding:"required"`
	Inputs           map[string]any    `json:"inputs"`
	UserContext      map[string]any    `json:"user_context"`
	LLMProvider      string            `json:"llm_provider" binding:"omitempty,oneof=deterministic external"`
	SafetyIdentifier string            `json:"safety_identifier"`
}

// CopilotHandler 采购助手处理器
type CopilotHandler struct {
	planner IntentPlanner
	router  ChatRouter
}

// NewCopilotHandler 创建助手处理器
func NewCopilotHandler(planner IntentPlanner, router ChatRouter) *CopilotHandler {
	return &CopilotHandler{planner: planner, router: router}
}

// Intent 把用户输入规划为工具调用、澄清、计划或文本回复
// @Summary 意图规划
// @Tags Copilot
// @Accept json
// @Produce json
// @Param request body IntentRequest true "对话"
// @Success 200 {object} planner.Plan
// @Failure 422 {object} response.ErrorResponse
// @Router /copilot/intent [post]
func (h *CopilotHandler) Intent(c *gin.Context) {
	var req IntentRequest
	if !response.BindJSON(c, &req) {
		return
	}
	plan := h.planner.Plan(c.Request.Context(), toHistory(req.Messages), req.Prompt)
	c.JSON(http.StatusOK, plan)
}

// Chat 分类用户输入并分发到问答、动作、工作流或工具请求
// @Summary 助手对话
// @Tags Copilot
// @Accept json
// @Produce json
// @Param request body ChatRequest true "对话"
// @Success 200 {object} chat.Response
// @Failure 422 {object} response.ErrorResponse
// @Router /copilot/chat [post]
func (h *CopilotHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if !response.BindJSON(c, &req) {
		return
	}

	ctx := logger.WithTenant(c.Request.Context(), req.Tenant.String())
	resp, err := h.router.Route(ctx, &chat.Request{
		Tenant:           req.Tenant.String(),
		History:          toHistory(req.Messages),
		Text:             req.Prompt,
		Inputs:           req.Inputs,
		UserContext:      req.UserContext,
		LLMProvider:      req.LLMProvider,
		SafetyIdentifier: req.SafetyIdentifier,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}

	logger.WithContext(ctx).Debug("对话已路由",
		zap.String("intent", string(resp.Intent)),
		zap.String("class", resp.Class),
		zap.Bool("follow_up", resp.FollowUp),
	)
	c.JSON(http.StatusOK, resp)
}

func toHistory(messages []Message) []ai.Message {
	history := make([]ai.Message, 0, len(messages))
	for _, m := range messages {
		history = append(history, ai.Message{Role: m.Role, Content: m.Content})
	}
	return history
}
