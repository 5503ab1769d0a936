package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func hit(doc string, chunk int, snippet string) SearchHit {
	return SearchHit{DocID: doc, DocVersion: "v1", ChunkID: chunk, Score: 0.5, Snippet: snippet}
}

func TestPackContextDiversityFirst(t *testing.T) {
	hits := []SearchHit{
		hit("a", 0, "a zero"),
		hit("a", 1, "a one"),
		hit("a", 2, "a two"),
		hit("b", 0, "b zero"),
	}
	blocks := PackContext(hits, PackOptions{MaxChars: 1000, MaxChunks: 2, PerDocLimit: 4})
	assert.Len(t, blocks, 2)
	assert.Equal(t, "a", blocks[0].DocID)
	assert.Equal(t, "b", blocks[1].DocID)
}

func TestPackContextRejections(t *testing.T) {
	hits := []SearchHit{
		hit("a", 0, "Same   Text"),
		hit("a", 0, "different"),      // 重复标识
		hit("b", 0, "same text"),      // 归一化后重复
		{DocID: "", DocVersion: "v1"}, // 缺少标识
		hit("a", 1, "a1"),
		hit("a", 2, "a2"),
		hit("a", 3, "a3"), // 超过单文档上限
	}
	blocks := PackContext(hits, PackOptions{MaxChars: 1000, MaxChunks: 10, PerDocLimit: 3})
	keys := make([]string, 0, len(blocks))
	for _, b := range blocks {
		keys = append(keys, b.DocID+":"+b.Snippet)
	}
	assert.Equal(t, []string{"a:Same   Text", "a:a1", "a:a2"}, keys)
}

func TestPackContextCharBudget(t *testing.T) {
	long := strings.Repeat("x", 400)
	hits := []SearchHit{
		hit("a", 0, long),
		hit("b", 0, "short"),
		hit("c", 0, strings.Repeat("y", 240)),
	}
	blocks := PackContext(hits, PackOptions{MaxChars: 100, MaxChunks: 10, PerDocLimit: 4})
	assert.Len(t, blocks, 1, "首个片段总是入选")
	assert.Equal(t, SnippetLimit, utf8.RuneCountInString(blocks[0].Snippet))

	blocks = PackContext(hits[1:], PackOptions{MaxChars: 200, MaxChunks: 10, PerDocLimit: 4})
	total := 0
	for _, b := range blocks[1:] {
		total += utf8.RuneCountInString(b.Snippet)
	}
	assert.LessOrEqual(t, total+utf8.RuneCountInString(blocks[0].Snippet), 250)
	assert.Len(t, blocks, 1)
}

func TestPackContextZeroBudgets(t *testing.T) {
	hits := []SearchHit{hit("a", 0, "x")}
	assert.Empty(t, PackContext(hits, PackOptions{MaxChars: 0, MaxChunks: 1, PerDocLimit: 1}))
	assert.Empty(t, PackContext(hits, PackOptions{MaxChars: 1, MaxChunks: 0, PerDocLimit: 1}))
	assert.Empty(t, PackContext(hits, PackOptions{MaxChars: 1, MaxChunks: 1, PerDocLimit: 0}))
	assert.Len(t, PackContext(hits, DefaultPackOptions()), 1)
}
