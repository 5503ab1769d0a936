package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

// RepairJSON 修复模型输出中常见的格式问题
// 移除 Markdown 代码块标记，并截取首个 '{' 到最后一个 '}' 之间的内容
func RepairJSON(input string) string {
	cleaned := strings.TrimSpace(input)

	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
			if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[:len(lines)-1]
			}
			cleaned = strings.Join(lines, "\n")
		}
	}

	cleaned = strings.TrimSpace(cleaned)
	if !strings.HasPrefix(cleaned, "{") {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start >= 0 && end > start {
			cleaned = cleaned[start : end+1]
		}
	}
	return cleaned
}

// DecodeObject 修复并解析 JSON 对象
func DecodeObject(content string) (map[string]any, error) {
	out := make(map[string]any)
	if err := json.Unmarshal([]byte(RepairJSON(content)), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("响应不是 JSON 对象")
	}
	return out, nil
}
