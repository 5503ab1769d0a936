package ai

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// messageOverhead 每条消息的角色等额外开销
const messageOverhead = 4

// TokenCounter token 计数器
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter 基于 tiktoken 的精确计数
type TiktokenCounter struct {
	tkm *tiktoken.Tiktoken
}

// NewTiktokenCounter 按模型加载编码，未识别的模型回退到 cl100k_base
// 首次加载需要下载 BPE 文件
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("加载 tiktoken 编码失败: %w", err)
		}
	}
	return &TiktokenCounter{tkm: tkm}, nil
}

// Count 计算 token 数
func (c *TiktokenCounter) Count(text string) int {
	return len(c.tkm.Encode(text, nil, nil))
}

// EstimateCounter 按 4 字符约 1 token 估算
type EstimateCounter struct{}

// Count 估算 token 数
func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// CountMessages 计算消息列表的 token 总数
func CountMessages(counter TokenCounter, messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += counter.Count(msg.Content) + messageOverhead
	}
	return total
}

// TrimHistory 在 token 预算内保留最新的消息
// 首条 system 消息总是保留；至少保留最新的一条
func TrimHistory(counter TokenCounter, history []Message, maxTokens int) []Message {
	if len(history) == 0 || maxTokens <= 0 {
		return history
	}
	if CountMessages(counter, history) <= maxTokens {
		return history
	}

	hasSystem := history[0].Role == RoleSystem
	used := 0
	floor := 0
	if hasSystem {
		used = counter.Count(history[0].Content) + messageOverhead
		floor = 1
	}

	start := len(history)
	for i := len(history) - 1; i >= floor; i-- {
		cost := counter.Count(history[i].Content) + messageOverhead
		if used+cost > maxTokens {
			break
		}
		used += cost
		start = i
	}
	if start == len(history) {
		start = len(history) - 1
		if hasSystem && start == 0 {
			return history[:1]
		}
	}

	kept := make([]Message, 0, len(history)-start+1)
	if hasSystem && start > 0 {
		kept = append(kept, history[0])
	}
	return append(kept, history[start:]...)
}
