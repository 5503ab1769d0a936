package ai

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sadhurshan/esai-sub000/internal/rag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicProvider_Empty(t *testing.T) {
	out, err := NewDeterministicProvider(0).GenerateAnswer(context.Background(), &GenerateRequest{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, NoInformationAnswer, out["answer_markdown"])
	assert.Equal(t, 0.0, out["confidence"])
	assert.Equal(t, true, out["needs_human_review"])
	assert.Empty(t, out["citations"])
}

func TestDeterministicProvider_Bullets(t *testing.T) {
	contexts := make([]rag.ContextBlock, 0, 5)
	for i := 0; i < 5; i++ {
		contexts = append(contexts, rag.ContextBlock{
			DocID: fmt.Sprintf("d-%d", i), DocVersion: "v1", ChunkID: i, Score: 0.5,
			Title: fmt.Sprintf("Doc %d", i), Snippet: strings.Repeat("s", 300),
		})
	}

	out, err := NewDeterministicProvider(3).GenerateAnswer(context.Background(), &GenerateRequest{Query: "x", Contexts: contexts})
	require.NoError(t, err)

	assert.Equal(t, 0.35, out["confidence"])
	citations := out["citations"].([]any)
	require.Len(t, citations, 3)
	first := citations[0].(map[string]any)
	assert.Equal(t, "d-0", first["doc_id"])
	assert.LessOrEqual(t, len(first["snippet"].(string)), rag.SnippetLimit)

	md := out["answer_markdown"].(string)
	assert.Equal(t, 3, strings.Count(md, "- **"))
}

func TestBuildMessages(t *testing.T) {
	t.Run("with sources", func(t *testing.T) {
		contexts := []rag.ContextBlock{
			{DocID: "d-1", DocVersion: "v2", ChunkID: 4, Title: "Spec", Snippet: strings.Repeat("word ", 200)},
		}
		msgs := BuildMessages("  what is it?  ", contexts)
		require.Len(t, msgs, 3)
		assert.Equal(t, RoleSystem, msgs[0].Role)
		assert.Contains(t, msgs[0].Content, "Use only the provided sources")
		assert.Equal(t, RoleDeveloper, msgs[1].Role)
		assert.Equal(t, RoleUser, msgs[2].Role)

		user := msgs[2].Content
		assert.True(t, strings.HasPrefix(user, "what is it?"))
		assert.Contains(t, user, "Sources:\n[1] title=\"Spec\" doc_id=d-1 doc_version=v2 chunk_id=4")
		lines := strings.Split(user, "\n")
		assert.LessOrEqual(t, len([]rune(lines[len(lines)-1])), manifestLineLimit)
	})

	t.Run("without sources", func(t *testing.T) {
		msgs := BuildMessages("q", nil)
		assert.Contains(t, msgs[2].Content, noSourcesLine)
	})
}

func TestRepairJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, RepairJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, RepairJSON(`Here you go: {"a":1} thanks`))

	_, err := DecodeObject("null")
	assert.Error(t, err)
}

func TestTrimHistory(t *testing.T) {
	counter := EstimateCounter{}
	history := []Message{
		{Role: RoleSystem, Content: strings.Repeat("s", 40)},
		{Role: RoleUser, Content: strings.Repeat("a", 400)},
		{Role: RoleAssistant, Content: strings.Repeat("b", 40)},
		{Role: RoleUser, Content: strings.Repeat("c", 40)},
	}

	kept := TrimHistory(counter, history, 50)
	require.Len(t, kept, 3)
	assert.Equal(t, RoleSystem, kept[0].Role)
	assert.Equal(t, history[3], kept[2])

	assert.Equal(t, history, TrimHistory(counter, history, 10000))

	tiny := TrimHistory(counter, history[1:], 1)
	require.Len(t, tiny, 1)
	assert.Equal(t, history[3], tiny[0])
}
