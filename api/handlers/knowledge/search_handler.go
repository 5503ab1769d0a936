package knowledge

import (
	"context"
	"net/http"

	response "github.com/sadhurshan/esai-sub000/api/handlers/common"
	"github.com/sadhurshan/esai-sub000/internal/answer"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"

	"github.com/gin-gonic/gin"
)

// Answerer 基于检索的问答
type Answerer interface {
	Answer(ctx context.Context, req *answer.Request) (*schema.AnswerEnvelope, error)
}

// SearchHandler 检索与问答处理器
type SearchHandler struct {
	indexer  Indexer
	answerer Answerer
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(indexer Indexer, answerer Answerer) *SearchHandler {
	return &SearchHandler{indexer: indexer, answerer: answerer}
}

// Search 语义检索
// @Summary 语义检索
// @Tags Knowledge
// @Accept json
// @Produce json
// @Param request body SearchRequest true "检索请求"
// @Success 200 {object} SearchResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /search [post]
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if !response.BindJSON(c, &req) {
		return
	}

	ctx := logger.WithTenant(c.Request.Context(), req.Tenant.String())
	hits, err := h.indexer.Search(ctx, &rag.SearchRequest{
		Tenant:  req.Tenant.String(),
		Query:   req.Query,
		TopK:    topKOrDefault(req.TopK),
		Filters: req.Filters,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if hits == nil {
		hits = []rag.SearchHit{}
	}
	c.JSON(http.StatusOK, SearchResponse{Status: response.StatusOK, Hits: hits})
}

// Answer 基于已索引资料回答问题，返回问答信封
// @Summary 问答
// @Tags Knowledge
// @Accept json
// @Produce json
// @Param request body AnswerRequest true "问答请求"
// @Success 200 {object} schema.AnswerEnvelope
// @Failure 422 {object} response.ErrorResponse
// @Router /answer [post]
func (h *SearchHandler) Answer(c *gin.Context) {
	var req AnswerRequest
	if !response.BindJSON(c, &req) {
		return
	}

	ctx := logger.WithTenant(c.Request.Context(), req.Tenant.String())
	envelope, err := h.answerer.Answer(ctx, &answer.Request{
		Tenant:           req.Tenant.String(),
		Query:            req.Query,
		TopK:             topKOrDefault(req.TopK),
		Filters:          req.Filters,
		LLMProvider:      req.LLMProvider,
		SafetyIdentifier: req.SafetyIdentifier,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope)
}
