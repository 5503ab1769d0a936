package rag

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Chunker 文档分块器
type Chunker struct {
	MaxChars int // 分块最大字符数
	Overlap  int // 相邻分块重叠字符数
}

// NewChunker 创建分块器，参数非法时返回 ErrInvalidArgument
func NewChunker(maxChars, overlap int) (*Chunker, error) {
	if err := validateChunkArgs(maxChars, overlap); err != nil {
		return nil, err
	}
	return &Chunker{MaxChars: maxChars, Overlap: overlap}, nil
}

// ChunkResult 分块结果，偏移量按字符（rune）计
type ChunkResult struct {
	ChunkIndex  int    `json:"chunk_index"`
	Text        string `json:"text"`
	CharStart   int    `json:"char_start"`
	CharEnd     int    `json:"char_end"`
	ContentHash string `json:"content_hash"`
}

// ChunkDocument 对文档进行分块
func (c *Chunker) ChunkDocument(content string) ([]ChunkResult, error) {
	return ChunkText(content, c.MaxChars, c.Overlap)
}

func validateChunkArgs(maxChars, overlap int) error {
	if maxChars <= 0 {
		return fmt.Errorf("%w: max_chars 必须为正数，当前 %d", ErrInvalidArgument, maxChars)
	}
	if overlap < 0 || overlap >= maxChars {
		return fmt.Errorf("%w: overlap 必须满足 0 <= overlap < max_chars，当前 %d", ErrInvalidArgument, overlap)
	}
	return nil
}

// ChunkText 贪心窗口分块
// 每个窗口末尾（非文末）在回看范围内寻找最靠后的首选边界：
// 段落 > 换行 > 句末标点后接空白。下一块从 stop-overlap 开始，不前进时从 stop 开始。
func ChunkText(text string, maxChars, overlap int) ([]ChunkResult, error) {
	if err := validateChunkArgs(maxChars, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	n := len(runes)
	chunks := make([]ChunkResult, 0)
	if n == 0 {
		return chunks, nil
	}

	lookback := maxChars / 2
	if lookback > 600 {
		lookback = 600
	}
	if lookback < 100 {
		lookback = 100
	}

	start := 0
	for start < n {
		stop := start + maxChars
		if stop > n {
			stop = n
		}
		if stop < n {
			floor := stop - lookback
			if floor < start+1 {
				floor = start + 1
			}
			if b := findBoundary(runes, floor, stop); b > start {
				stop = b
			}
		}

		piece := string(runes[start:stop])
		chunks = append(chunks, ChunkResult{
			ChunkIndex:  len(chunks),
			Text:        piece,
			CharStart:   start,
			CharEnd:     stop,
			ContentHash: hashContent(piece),
		})
		if stop >= n {
			break
		}

		next := stop - overlap
		if next <= start {
			next = stop
		}
		start = next
	}
	return chunks, nil
}

// findBoundary 返回 (floor, stop] 内最优边界的切分位置，没有时返回 -1
func findBoundary(runes []rune, floor, stop int) int {
	if pos := lastParagraphBreak(runes, floor, stop); pos > 0 {
		return pos
	}
	for i := stop - 1; i >= floor-1 && i >= 0; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := stop - 1; i >= floor-1 && i >= 0; i-- {
		if i+1 >= len(runes) || !isSentenceEnd(runes[i]) {
			continue
		}
		switch runes[i+1] {
		case ' ', '\n', '\t', '\r':
			return i + 1
		}
	}
	return -1
}

func lastParagraphBreak(runes []rune, floor, stop int) int {
	for end := stop; end >= floor; end-- {
		if end >= 4 && string(runes[end-4:end]) == "\r\n\r\n" {
			return end
		}
		if end >= 2 && runes[end-1] == '\n' && runes[end-2] == '\n' {
			return end
		}
	}
	return -1
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// hashContent 计算内容哈希
func hashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}

// Snippet 截取前 limit 个字符
func Snippet(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// NormalizeSnippet 小写并折叠空白，用于去重
func NormalizeSnippet(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
