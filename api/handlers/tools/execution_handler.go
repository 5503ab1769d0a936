package tools

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	response "github.com/sadhurshan/esai-sub000/api/handlers/common"
	"github.com/sadhurshan/esai-sub000/internal/middleware"
	"github.com/sadhurshan/esai-sub000/internal/tools"

	"github.com/gin-gonic/gin"
)

const maxListLimit = 200

// ExecutionLister 工具执行审计查询
type ExecutionLister interface {
	ListByTenant(ctx context.Context, tenant string, limit int) ([]tools.ToolExecution, error)
}

// ExecutionListResponse 执行记录列表
type ExecutionListResponse struct {
	Items []tools.ToolExecution `json:"items"`
	Total int                   `json:"total"`
}

// ExecutionHandler 工具执行审计处理器
type ExecutionHandler struct {
	lister ExecutionLister
}

// NewExecutionHandler 创建处理器
func NewExecutionHandler(lister ExecutionLister) *ExecutionHandler {
	return &ExecutionHandler{lister: lister}
}

// List 列出租户最近的工具执行记录
// @Summary 工具执行记录
// @Tags Tools
// @Produce json
// @Param tenant query string true "租户"
// @Param limit query int false "条数，默认 50"
// @Success 200 {object} ExecutionListResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /tools/executions [get]
func (h *ExecutionHandler) List(c *gin.Context) {
	var details []string
	tenant := strings.TrimSpace(c.Query("tenant"))
	if tenant == "" {
		details = append(details, "tenant: 必填")
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			details = append(details, "limit: 必须是整数")
		case n < 1:
			details = append(details, "limit: 不能小于 1")
		case n > maxListLimit:
			details = append(details, "limit: 不能大于 "+strconv.Itoa(maxListLimit))
		default:
			limit = n
		}
	}
	if len(details) > 0 {
		c.JSON(http.StatusUnprocessableEntity, response.ErrorResponse{
			Success:   false,
			Code:      response.CodeValidation,
			Message:   "参数错误",
			Details:   details,
			RequestID: middleware.GetRequestIDFromGin(c),
		})
		return
	}

	items, err := h.lister.ListByTenant(c.Request.Context(), tenant, limit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if items == nil {
		items = []tools.ToolExecution{}
	}
	c.JSON(http.StatusOK, ExecutionListResponse{Items: items, Total: len(items)})
}
