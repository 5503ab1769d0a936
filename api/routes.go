package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有业务路由
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	registerKnowledgeRoutes(router, h)
	registerActionRoutes(router, h)
	registerWorkflowRoutes(router, h)
	registerCopilotRoutes(router, h)

	// 工具执行审计（仅 SQL 存储启用）
	if h.Tools != nil {
		registerToolRoutes(router, h)
	}
}

// registerKnowledgeRoutes 索引、检索与问答
func registerKnowledgeRoutes(router *gin.Engine, h *Handlers) {
	router.POST("/index/document", h.Documents.IndexDocument)
	router.DELETE("/index/document", h.Documents.DeleteDocument)
	router.POST("/search", h.Search.Search)
	router.POST("/answer", h.Search.Answer)
}

func registerActionRoutes(router *gin.Engine, h *Handlers) {
	router.POST("/actions/plan", h.Actions.Plan)
}

// registerWorkflowRoutes 审批工作流
func registerWorkflowRoutes(router *gin.Engine, h *Handlers) {
	workflowsGroup := router.Group("/workflows")
	{
		workflowsGroup.POST("/plan", h.Workflows.Plan)
		workflowsGroup.GET("", h.Workflows.List)
		workflowsGroup.GET("/:id", h.Workflows.Get)

		// 步骤推进
		workflowsGroup.GET("/:id/next", h.Workflows.Next)
		workflowsGroup.POST("/:id/complete", h.Workflows.Complete)
		workflowsGroup.POST("/:id/abort", h.Workflows.Abort)
	}
}

func registerCopilotRoutes(router *gin.Engine, h *Handlers) {
	copilotGroup := router.Group("/copilot")
	{
		copilotGroup.POST("/intent", h.Copilot.Intent)
		copilotGroup.POST("/chat", h.Copilot.Chat)
	}
}

func registerToolRoutes(router *gin.Engine, h *Handlers) {
	toolsGroup := router.Group("/tools")
	{
		toolsGroup.GET("/executions", h.Tools.List)
	}
}
