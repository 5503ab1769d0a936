package citation

import (
	"strings"
	"testing"

	"github.com/sadhurshan/esai-sub000/internal/rag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocks() []rag.ContextBlock {
	return []rag.ContextBlock{
		{DocID: "d-1", DocVersion: "v1", ChunkID: 0, Score: 0.82, Title: "Terms", Snippet: strings.Repeat("t", 400)},
	}
}

func TestEnforce_DropsUnknownCitations(t *testing.T) {
	env := map[string]any{
		"answer_markdown": "Net 30 [d-1#0]",
		"citations": []any{
			map[string]any{"doc_id": "d-1", "doc_version": "v1", "chunk_id": 0.0, "score": 0.9, "snippet": strings.Repeat("x", 300)},
			map[string]any{"doc_id": "d-missing", "doc_version": "v99", "chunk_id": 999.0, "score": 0.1, "snippet": "made up"},
		},
		"confidence":         0.7,
		"needs_human_review": false,
		"warnings":           []any{},
	}

	out, res := Enforce(env, blocks())
	assert.Equal(t, 1, res.Kept)
	assert.Equal(t, 1, res.Dropped)

	citations := out["citations"].([]any)
	require.Len(t, citations, 1)
	c := citations[0].(map[string]any)
	assert.Equal(t, "d-1", c["doc_id"])
	assert.Equal(t, "v1", c["doc_version"])
	assert.Equal(t, 0, c["chunk_id"])
	assert.Equal(t, 0.9, c["score"])
	assert.LessOrEqual(t, len([]rune(c["snippet"].(string))), rag.SnippetLimit)

	assert.Equal(t, true, out["needs_human_review"])
	assert.Contains(t, out["warnings"], WarningUnverified)

	// 入参不被修改
	assert.Len(t, env["citations"], 2)
	assert.Equal(t, false, env["needs_human_review"])
}

func TestEnforce_StringComparisonAndScoreInheritance(t *testing.T) {
	env := map[string]any{
		"citations": []any{
			map[string]any{"doc_id": "d-1", "doc_version": "v1", "chunk_id": "0"},
			map[string]any{"doc_id": "d-1", "doc_version": "v1", "chunk_id": 0},
		},
		"needs_human_review": false,
	}
	out, res := Enforce(env, blocks())
	assert.Equal(t, 1, res.Kept)
	assert.Equal(t, 0, res.Dropped)

	c := out["citations"].([]any)[0].(map[string]any)
	assert.Equal(t, 0, c["chunk_id"])
	assert.Equal(t, 0.82, c["score"])
	assert.Len(t, []rune(c["snippet"].(string)), rag.SnippetLimit)
	assert.Equal(t, false, out["needs_human_review"])
	assert.Empty(t, out["warnings"])
}

func TestEnforce_EmptyCitationsWithContext(t *testing.T) {
	out, _ := Enforce(map[string]any{"citations": []any{}}, blocks())
	assert.Equal(t, true, out["needs_human_review"])
	assert.Equal(t, []any{WarningNoCitations}, out["warnings"])
}

func TestEnforce_NoContextNoCitations(t *testing.T) {
	out, _ := Enforce(map[string]any{"citations": []any{}, "warnings": []any{"a", "a", "b"}}, nil)
	assert.Nil(t, out["needs_human_review"])
	assert.Equal(t, []any{"a", "b"}, out["warnings"])
}

func TestEnforce_Idempotent(t *testing.T) {
	env := map[string]any{
		"citations": []any{
			map[string]any{"doc_id": "d-1", "doc_version": "v1", "chunk_id": 0.0},
			map[string]any{"doc_id": "nope", "doc_version": "v1", "chunk_id": 1.0},
		},
		"warnings": []any{"existing"},
	}
	once, _ := Enforce(env, blocks())
	twice, res := Enforce(once, blocks())
	assert.Equal(t, once, twice)
	assert.Equal(t, 0, res.Dropped)
}

func TestWarnings(t *testing.T) {
	assert.Equal(t, []string{"a"}, Warnings([]any{"a", 3}))
	assert.Equal(t, []string{"x"}, Warnings("x"))
	assert.Empty(t, Warnings(nil))
	assert.Equal(t, []string{"a", "b"}, DedupeWarnings([]string{" a", "b", "a", ""}))
}
