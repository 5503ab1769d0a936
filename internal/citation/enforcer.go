package citation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/metrics"
	"github.com/sadhurshan/esai-sub000/internal/rag"
)

// 引用校验告警
const (
	WarningUnverified  = "One or more citations could not be verified against retrieved sources"
	WarningNoCitations = "Response did not include verifiable citations"
)

const (
	fieldCitations   = "citations"
	fieldWarnings    = "warnings"
	fieldNeedsReview = "needs_human_review"
)

// Result 校验统计
type Result struct {
	Kept    int
	Dropped int
}

// Enforce 按上下文清单重建信封中的引用列表
// 引用三元组按字符串比较；保留项的 chunk_id 转为整数，缺失分数继承上下文块，片段截断到 250 字符。
// 返回新的信封，不修改入参；对同一上下文重复调用结果不变。
func Enforce(envelope map[string]any, contexts []rag.ContextBlock) (map[string]any, Result) {
	out := make(map[string]any, len(envelope)+3)
	for k, v := range envelope {
		out[k] = v
	}

	manifest := make(map[string]rag.ContextBlock, len(contexts))
	for _, block := range contexts {
		manifest[rag.CitationKey(block.DocID, block.DocVersion, block.ChunkID)] = block
	}

	raw, _ := envelope[fieldCitations].([]any)
	if raw == nil {
		raw = toAnySlice(envelope[fieldCitations])
	}

	kept := make([]any, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	dropped := 0
	for _, item := range raw {
		entry, ok := toMap(item)
		if !ok {
			dropped++
			continue
		}
		docID := asString(entry["doc_id"])
		docVersion := asString(entry["doc_version"])
		chunkKey := asString(entry["chunk_id"])
		key := rag.CitationKey(docID, docVersion, chunkKey)

		block, ok := manifest[key]
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		score, ok := asFloat(entry["score"])
		if !ok {
			score = block.Score
		}
		snippet := asString(entry["snippet"])
		if strings.TrimSpace(snippet) == "" {
			snippet = block.Snippet
		}
		kept = append(kept, map[string]any{
			"doc_id":      block.DocID,
			"doc_version": block.DocVersion,
			"chunk_id":    block.ChunkID,
			"score":       score,
			"snippet":     rag.Snippet(snippet, rag.SnippetLimit),
		})
	}
	out[fieldCitations] = kept

	warnings := Warnings(envelope[fieldWarnings])
	if dropped > 0 {
		warnings = append(warnings, WarningUnverified)
		out[fieldNeedsReview] = true
		metrics.CitationsDroppedTotal.Add(float64(dropped))
	}
	if len(kept) == 0 && len(contexts) > 0 {
		warnings = append(warnings, WarningNoCitations)
		out[fieldNeedsReview] = true
	}
	out[fieldWarnings] = toAnyStrings(DedupeWarnings(warnings))

	return out, Result{Kept: len(kept), Dropped: dropped}
}

// DedupeWarnings 去重并保持首次出现顺序
func DedupeWarnings(warnings []string) []string {
	out := make([]string, 0, len(warnings))
	seen := make(map[string]struct{}, len(warnings))
	for _, w := range warnings {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Warnings 把任意告警值转换为字符串列表
func Warnings(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []string:
		return append([]string{}, t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{t}
	default:
		return []string{}
	}
}

func toAnyStrings(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

func toAnySlice(v any) []any {
	switch t := v.(type) {
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out
	case nil:
		return nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		var out []any
		if json.Unmarshal(data, &out) != nil {
			return nil
		}
		return out
	}
}

func toMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case nil:
		return nil, false
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, false
		}
		var out map[string]any
		if json.Unmarshal(data, &out) != nil || out == nil {
			return nil, false
		}
		return out, true
	}
}

// asString 统一转为字符串比较，整数值的浮点数不带小数部分
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return asString(float64(t))
	case json.Number:
		return asString(t.String())
	default:
		return fmt.Sprint(t)
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
