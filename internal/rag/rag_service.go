package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/metrics"

	"go.uber.org/zap"
)

// Retriever 检索接口，动作编排和问答只依赖它
type Retriever interface {
	Retrieve(ctx context.Context, req *SearchRequest, opts PackOptions) ([]ContextBlock, error)
	Revision(tenant string) uint64
}

// RAGService 文档索引与检索服务
type RAGService struct {
	vectorStore       VectorStore
	embeddingProvider EmbeddingProvider
	chunker           *Chunker
}

// NewRAGService 创建RAG服务实例
func NewRAGService(vectorStore VectorStore, embeddingProvider EmbeddingProvider, chunker *Chunker) *RAGService {
	return &RAGService{
		vectorStore:       vectorStore,
		embeddingProvider: embeddingProvider,
		chunker:           chunker,
	}
}

// IndexDocumentRequest 文档入库请求
type IndexDocumentRequest struct {
	Tenant     string
	DocID      string
	DocVersion string
	Title      string
	SourceType string
	MimeType   string
	Text       string
	Metadata   map[string]any
	ACL        []string
}

// IndexDocument 分块、向量化并写入索引，返回写入的分块数
func (s *RAGService) IndexDocument(ctx context.Context, req *IndexDocumentRequest) (int, error) {
	if strings.TrimSpace(req.Tenant) == "" || strings.TrimSpace(req.DocID) == "" || strings.TrimSpace(req.DocVersion) == "" {
		return 0, fmt.Errorf("%w: tenant、doc_id、doc_version 不能为空", ErrInvalidArgument)
	}

	chunks, err := s.chunker.ChunkDocument(req.Text)
	if err != nil {
		return 0, fmt.Errorf("文档分块失败: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var embeddings [][]float32
	if len(texts) > 0 {
		embeddings, err = s.embeddingProvider.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("向量化失败: %w", err)
		}
		if len(embeddings) != len(texts) {
			return 0, &EmbeddingCountError{Expected: len(texts), Actual: len(embeddings)}
		}
	}

	metadata := make(map[string]any, len(req.Metadata)+5)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["title"] = req.Title
	metadata["source_type"] = req.SourceType
	metadata["mime_type"] = req.MimeType
	if len(req.ACL) > 0 {
		metadata["acl_roles"] = append([]string(nil), req.ACL...)
	}
	if _, ok := metadata["tags"]; !ok {
		metadata["tags"] = []string{}
	}

	count, err := s.vectorStore.Upsert(ctx, req.Tenant, req.DocID, req.DocVersion, chunks, embeddings, metadata)
	if err != nil {
		return 0, fmt.Errorf("写入向量索引失败: %w", err)
	}
	metrics.RAGChunksIndexed.Add(float64(count))

	logger.WithContext(ctx).Info("文档已索引",
		zap.String("tenant", req.Tenant),
		zap.String("doc_id", req.DocID),
		zap.String("doc_version", req.DocVersion),
		zap.Int("chunks", count),
		zap.String("embedding_provider", s.embeddingProvider.GetProviderName()),
	)
	return count, nil
}

// DeleteDocument 删除文档，docVersion 为空时删除全部版本
func (s *RAGService) DeleteDocument(ctx context.Context, tenant, docID, docVersion string) (int, error) {
	removed, err := s.vectorStore.Delete(ctx, tenant, docID, docVersion)
	if err != nil {
		return 0, err
	}
	logger.WithContext(ctx).Info("文档已删除",
		zap.String("tenant", tenant),
		zap.String("doc_id", docID),
		zap.String("doc_version", docVersion),
		zap.Int("chunks", removed),
	)
	return removed, nil
}

// SearchRequest 搜索请求
type SearchRequest struct {
	Tenant  string
	Query   string
	TopK    int
	Filters Filters
}

// Search 语义搜索
func (s *RAGService) Search(ctx context.Context, req *SearchRequest) ([]SearchHit, error) {
	start := time.Now()

	queryEmbedding, err := s.embeddingProvider.Embed(ctx, req.Query)
	if err != nil {
		metrics.RAGSearchesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	hits, err := s.vectorStore.Search(ctx, req.Tenant, queryEmbedding, req.TopK, req.Filters)
	if err != nil {
		metrics.RAGSearchesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("向量搜索失败: %w", err)
	}

	metrics.RAGSearchDuration.Observe(time.Since(start).Seconds())
	metrics.RAGSearchesTotal.WithLabelValues("success").Inc()
	return hits, nil
}

// Retrieve 检索并打包上下文
func (s *RAGService) Retrieve(ctx context.Context, req *SearchRequest, opts PackOptions) ([]ContextBlock, error) {
	hits, err := s.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return PackContext(hits, opts), nil
}

// Revision 租户索引修订号，用于缓存失效
func (s *RAGService) Revision(tenant string) uint64 {
	return s.vectorStore.Revision(tenant)
}
