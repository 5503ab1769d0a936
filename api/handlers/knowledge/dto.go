package knowledge

import (
	response "github.com/sadhurshan/esai-sub000/api/handlers/common"
	"github.com/sadhurshan/esai-sub000/internal/rag"
)

// DefaultTopK 未指定 top_k 时的检索条数
const DefaultTopK = 8

// IndexDocumentRequest 文档入库请求
type IndexDocumentRequest struct {
	Tenant     response.TenantID `json:"tenant" binding:"required"`
	DocID      string            `json:"doc_id" binding:"required"`
	DocVersion string            `json:"doc_version" binding:"required"`
	Title      string            `json:"title" binding:"required"`
	SourceType string            `json:"source_type" binding:"required"`
	MimeType   string            `json:"mime_type" binding:"required"`
	Text       string            `json:"text" binding:"required"`
	Metadata   map[string]any    `json:"metadata"`
	ACL        []string          `json:"acl"`
}

// IndexDocumentResponse 入库结果
type IndexDocumentResponse struct {
	Status        string `json:"status"`
	IndexedChunks int    `json:"indexed_chunks"`
}

// DeleteDocumentRequest 删除请求，doc_version 为空时删除全部版本
type DeleteDocumentRequest struct {
	Tenant     response.TenantID `json:"tenant" binding:"required"`
	DocID      string            `json:"doc_id" binding:"required"`
	DocVersion string            `json:"doc_version"`
}

// DeleteDocumentResponse 删除结果
type DeleteDocumentResponse struct {
	Status        string `json:"status"`
	DeletedChunks int    `json:"deleted_chunks"`
}

// SearchRequest 语义检索请求
type SearchRequest struct {
	Tenant  response.TenantID `json:"tenant" binding:"required"`
	Query   string            `json:"query" binding:"required"`
	TopK    int               `json:"top_k" binding:"omitempty,min=1,max=25"`
	Filters rag.Filters       `json:"filters"`
}

// SearchResponse 检索结果
type SearchResponse struct {
	Status string          `json:"status"`
	Hits   []rag.SearchHit `json:"hits"`
}

// AnswerRequest 问答请求
type AnswerRequest struct {
	Tenant           response.TenantID `json:"tenant" binding:"required"`
	Query            string            `json:"query" binding:"required"`
	TopK             int               `json:"top_k" binding:"omitempty,min=1,max=25"`
	Filters          rag.Filters       `json:"filters"`
	LLMProvider      string            `json:"llm_provider" binding:"omitempty,oneof=deterministic external"`
	SafetyIdentifier string            `json:"safety_identifier"`
}

func topKOrDefault(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	return topK
}
