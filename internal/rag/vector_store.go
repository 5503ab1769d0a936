package rag

import (
	"context"
	"fmt"
)

// SnippetLimit 命中片段的最大字符数
const SnippetLimit = 250

// SearchHit 描述一次相似度检索的返回结果。
type SearchHit struct {
	DocID      string         `json:"doc_id"`
	DocVersion string         `json:"doc_version"`
	ChunkID    int            `json:"chunk_id"`
	Score      float64        `json:"score"`
	Title      string         `json:"title"`
	Snippet    string         `json:"snippet"`
	Metadata   map[string]any `json:"metadata"`
}

// ContextBlock 打包后送给模型的上下文块，(doc_id, doc_version, chunk_id) 即引用键
type ContextBlock = SearchHit

// CitationKey 引用键，按字符串比较
func CitationKey(docID, docVersion string, chunkID any) string {
	return fmt.Sprintf("%s\x00%s\x00%v", docID, docVersion, chunkID)
}

// Key 返回命中的引用键
func (h SearchHit) Key() string {
	return CitationKey(h.DocID, h.DocVersion, h.ChunkID)
}

// Filters 检索过滤条件
// doc_id、doc_version、source_type 精确匹配；tags 任一重叠即通过；其它键与元数据精确比较。值为 nil 的键忽略。
type Filters map[string]any

// VectorStore 抽象按租户隔离的分块写入、检索与删除
type VectorStore interface {
	// Upsert 原子替换 (doc_id, doc_version) 的全部分块，返回写入数量
	Upsert(ctx context.Context, tenant, docID, docVersion string, chunks []ChunkResult, embeddings [][]float32, metadata map[string]any) (int, error)
	Search(ctx context.Context, tenant string, queryVector []float32, topK int, filters Filters) ([]SearchHit, error)
	// Delete docVersion 为空时删除文档的所有版本，返回删除数量
	Delete(ctx context.Context, tenant, docID, docVersion string) (int, error)
	// Revision 租户索引的修订号，每次写入或删除递增
	Revision(tenant string) uint64
}
