package actions

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/citation"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"
)

// 工具信封引用上限
const maxToolCitations = 5

// 工具信封置信度
const (
	toolConfidenceWithCitations = 0.55
	toolConfidenceNoCitations   = 0.25
)

// 降级提示
const (
	WarningInsufficientContext = "Insufficient grounded context for this action"
	WarningNoToolCitations     = "No citations captured for tool output"
	WarningLLMUnavailable      = "LLM provider unavailable; deterministic tool result only"
	WarningLLMPayloadInvalid   = "LLM payload failed schema validation; deterministic tool payload used"
	WarningPlaceholderPayload  = "Deterministic placeholder payload returned; manual completion required"
	WarningRetrievalFailed     = "Retrieval unavailable; proceeding without grounded context"
)

// contextCitations 取前 N 个上下文块作为引用
func contextCitations(contexts []rag.ContextBlock, limit int) []any {
	if len(contexts) > limit {
		contexts = contexts[:limit]
	}
	out := make([]any, 0, len(contexts))
	for _, block := range contexts {
		out = append(out, map[string]any{
			"doc_id":      block.DocID,
			"doc_version": block.DocVersion,
			"chunk_id":    block.ChunkID,
			"score":       block.Score,
			"snippet":     rag.Snippet(block.Snippet, rag.SnippetLimit),
		})
	}
	return out
}

// toolEnvelope 包装确定性工具结果
func toolEnvelope(actionType, summary string, payload map[string]any, contexts []rag.ContextBlock) map[string]any {
	citations := contextCitations(contexts, maxToolCitations)
	confidence := toolConfidenceNoCitations
	warnings := []any{WarningNoToolCitations}
	if len(citations) > 0 {
		confidence = toolConfidenceWithCitations
		warnings = []any{}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return map[string]any{
		"action_type":        actionType,
		"summary":            summary,
		"payload":            payload,
		"citations":          citations,
		"confidence":         confidence,
		"needs_human_review": true,
		"warnings":           warnings,
	}
}

// merge 用 LLM 结果覆盖工具结果：payload 浅合并，其余字段 LLM 存在时优先
func merge(tool, llm map[string]any) map[string]any {
	out := make(map[string]any, len(tool))
	for k, v := range tool {
		out[k] = v
	}
	if llm == nil {
		return out
	}

	toolPayload, _ := tool["payload"].(map[string]any)
	payload := make(map[string]any, len(toolPayload))
	for k, v := range toolPayload {
		payload[k] = v
	}
	if llmPayload, ok := llm["payload"].(map[string]any); ok {
		for k, v := range llmPayload {
			payload[k] = v
		}
	}
	out["payload"] = payload

	for _, key := range []string{"summary", "citations", "confidence", "warnings", "needs_human_review"} {
		if v, ok := llm[key]; ok && v != nil {
			if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			out[key] = v
		}
	}
	return out
}

// coerce 把通用映射转换为类型化信封，无法识别的值回落到零值
func coerce(actionType string, m map[string]any) *schema.ActionEnvelope {
	env := &schema.ActionEnvelope{
		ActionType:       actionType,
		Summary:          strings.TrimSpace(asString(m["summary"])),
		Citations:        coerceCitations(m["citations"]),
		Confidence:       clampUnit(asFloat(m["confidence"])),
		NeedsHumanReview: asBool(m["needs_human_review"]),
		Warnings:         citation.Warnings(m["warnings"]),
	}
	if payload, ok := m["payload"].(map[string]any); ok {
		env.Payload = payload
	}
	env.Normalize()
	return env
}

func coerceCitations(v any) []schema.Citation {
	items, _ := v.([]any)
	out := make([]schema.Citation, 0, len(items))
	for _, item := range items {
		c, ok := item.(map[string]any)
		if !ok {
			continue
		}
		chunkID, err := strconv.Atoi(asString(c["chunk_id"]))
		if err != nil || chunkID < 0 {
			continue
		}
		out = append(out, schema.Citation{
			DocID:      asString(c["doc_id"]),
			DocVersion: asString(c["doc_version"]),
			ChunkID:    chunkID,
			Score:      asFloat(c["score"]),
			Snippet:    rag.Snippet(asString(c["snippet"]), rag.SnippetLimit),
		})
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case json.Number:
		return t.String()
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	default:
		return false
	}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
