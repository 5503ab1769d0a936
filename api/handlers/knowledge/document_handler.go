package knowledge

import (
	"context"
	"net/http"

	response "github.com/sadhurshan/esai-sub000/api/handlers/common"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/rag"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Indexer 文档索引与检索
type Indexer interface {
	IndexDocument(ctx context.Context, req *rag.IndexDocumentRequest) (int, error)
	DeleteDocument(ctx context.Context, tenant, docID, docVersion string) (int, error)
	Search(ctx context.Context, req *rag.SearchRequest) ([]rag.SearchHit, error)
}

// DocumentHandler 文档入库处理器
type DocumentHandler struct {
	indexer Indexer
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(indexer Indexer) *DocumentHandler {
	return &DocumentHandler{indexer: indexer}
}

// IndexDocument 分块、向量化并写入索引
// @Summary 文档入库
// @Tags Knowledge
// @Accept json
// @Produce json
// @Param request body IndexDocumentRequest true "文档"
// @Success 200 {object} IndexDocumentResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /index/document [post]
func (h *DocumentHandler) IndexDocument(c *gin.Context) {
	var req IndexDocumentRequest
	if !response.BindJSON(c, &req) {
		return
	}

	ctx := logger.WithTenant(c.Request.Context(), req.Tenant.String())
	count, err := h.indexer.IndexDocument(ctx, &rag.IndexDocumentRequest{
		Tenant:     req.Tenant.String(),
		DocID:      req.DocID,
		DocVersion: req.DocVersion,
		Title:      req.Title,
		SourceType: req.SourceType,
		MimeType:   req.MimeType,
		Text:       req.Text,
		Metadata:   req.Metadata,
		ACL:        req.ACL,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}

	logger.WithContext(ctx).Info("文档已入库",
		zap.String("doc_id", req.DocID),
		zap.String("doc_version", req.DocVersion),
		zap.Int("chunks", count),
	)
	c.JSON(http.StatusOK, IndexDocumentResponse{Status: response.StatusOK, IndexedChunks: count})
}

// DeleteDocument 删除文档分块
// @Summary 删除文档
// @Tags Knowledge
// @Accept json
// @Produce json
// @Param request body DeleteDocumentRequest true "删除条件"
// @Success 200 {object} DeleteDocumentResponse
// @Router /index/document [delete]
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var req DeleteDocumentRequest
	if !response.BindJSON(c, &req) {
		return
	}

	count, err := h.indexer.DeleteDocument(c.Request.Context(), req.Tenant.String(), req.DocID, req.DocVersion)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DeleteDocumentResponse{Status: response.StatusOK, DeletedChunks: count})
}
