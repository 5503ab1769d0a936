package ai

import (
	"context"
	"encoding/json"

	"github.com/sadhurshan/esai-sub000/internal/rag"
)

// 提供方名称
const (
	ProviderDeterministic = "deterministic"
	ProviderExternal      = "external"
)

// RefusedAnswer 拒答时的固定回答
const RefusedAnswer = "The model declined to answer this request."

// GenerateRequest 生成请求
type GenerateRequest struct {
	// Purpose 用于指标区分，answer / action
	Purpose  string
	Query    string
	Contexts []rag.ContextBlock
	// Messages 为空时按固定模板组装
	Messages         []Message
	SchemaName       string
	ResponseSchema   json.RawMessage
	SafetyIdentifier string
}

// Provider LLM 提供方
// 返回值为符合 ResponseSchema 的 JSON 对象
type Provider interface {
	Name() string
	GenerateAnswer(ctx context.Context, req *GenerateRequest) (map[string]any, error)
}

// RefusedEnvelope 拒答信封，对同类拒答信号结构恒定
func RefusedEnvelope(reason string) map[string]any {
	if reason == "" {
		reason = "refusal"
	}
	return map[string]any{
		"answer_markdown":    RefusedAnswer,
		"citations":          []any{},
		"confidence":         0.0,
		"needs_human_review": true,
		"warnings":           []any{"refused: " + reason},
	}
}

// IsRefused 判断结果是否为拒答信封
func IsRefused(result map[string]any) bool {
	warnings, _ := result["warnings"].([]any)
	for _, w := range warnings {
		if s, ok := w.(string); ok && len(s) >= 7 && s[:7] == "refused" {
			return true
		}
	}
	return false
}
