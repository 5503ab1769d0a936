package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/metrics"
	"github.com/sadhurshan/esai-sub000/internal/rag"
)

// DefaultSummaryItems 确定性摘要取用的片段数
const DefaultSummaryItems = 3

// NoInformationAnswer 无可用上下文时的回答
const NoInformationAnswer = "Not enough information in indexed sources."

// DeterministicProvider 不调用模型，用前 N 个片段生成要点摘要
type DeterministicProvider struct {
	maxItems int
}

// NewDeterministicProvider 创建确定性提供方
func NewDeterministicProvider(maxItems int) *DeterministicProvider {
	if maxItems <= 0 {
		maxItems = DefaultSummaryItems
	}
	return &DeterministicProvider{maxItems: maxItems}
}

// Name 提供方名称
func (p *DeterministicProvider) Name() string {
	return ProviderDeterministic
}

// GenerateAnswer 生成要点摘要
func (p *DeterministicProvider) GenerateAnswer(_ context.Context, req *GenerateRequest) (map[string]any, error) {
	metrics.ModelCallsTotal.WithLabelValues(ProviderDeterministic, "none", "ok").Inc()

	contexts := req.Contexts
	if len(contexts) > p.maxItems {
		contexts = contexts[:p.maxItems]
	}

	if len(contexts) == 0 {
		return map[string]any{
			"answer_markdown":    NoInformationAnswer,
			"citations":          []any{},
			"confidence":         0.0,
			"needs_human_review": true,
			"warnings":           []any{},
		}, nil
	}

	lines := make([]string, 0, len(contexts))
	citations := make([]any, 0, len(contexts))
	for _, block := range contexts {
		snippet := rag.Snippet(block.Snippet, rag.SnippetLimit)
		label := block.Title
		if label == "" {
			label = block.DocID
		}
		lines = append(lines, fmt.Sprintf("- **%s**: %s [%s#%d]", label, strings.TrimSpace(snippet), block.DocID, block.ChunkID))
		citations = append(citations, map[string]any{
			"doc_id":      block.DocID,
			"doc_version": block.DocVersion,
			"chunk_id":    block.ChunkID,
			"score":       block.Score,
			"snippet":     snippet,
		})
	}

	return map[string]any{
		"answer_markdown":    strings.Join(lines, "\n"),
		"citations":          citations,
		"confidence":         0.35,
		"needs_human_review": false,
		"warnings":           []any{},
	}, nil
}
