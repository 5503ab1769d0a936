package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sadhurshan/esai-sub000/internal/rag"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// manifestLineLimit 来源清单单行最大字符数
const manifestLineLimit = 600

const (
	systemPrompt = "You are a procurement assistant. Use only the provided sources. " +
		"Cite doc_id and chunk_id for every fact you state. Never invent data, numbers, suppliers or documents."
	developerPrompt = "Output a single valid JSON object that matches the provided JSON schema exactly. " +
		"Do not wrap it in code fences and do not add commentary."
	noSourcesLine = "(no sources were retrieved for this request)"
)

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildMessages 组装固定三段式提示词
func BuildMessages(query string, contexts []rag.ContextBlock) []Message {
	var user strings.Builder
	user.WriteString(strings.TrimSpace(query))
	user.WriteString("\n\n")
	user.WriteString(SourcesManifest(contexts))

	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleDeveloper, Content: developerPrompt},
		{Role: RoleUser, Content: user.String()},
	}
}

// SourcesManifest 来源清单，每个上下文块一行
func SourcesManifest(contexts []rag.ContextBlock) string {
	var b strings.Builder
	b.WriteString("Sources:\n")
	if len(contexts) == 0 {
		b.WriteString(noSourcesLine)
		return b.String()
	}
	for i, block := range contexts {
		line := fmt.Sprintf("[%d] title=%q doc_id=%s doc_version=%s chunk_id=%d snippet=%q",
			i+1, block.Title, block.DocID, block.DocVersion, block.ChunkID, rag.Snippet(block.Snippet, rag.SnippetLimit))
		b.WriteString(truncateRunes(line, manifestLineLimit))
		if i < len(contexts)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
