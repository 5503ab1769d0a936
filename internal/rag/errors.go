package rag

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument 参数不满足约束（分块参数、向量数量等）
var ErrInvalidArgument = errors.New("invalid argument")

// EmbeddingCountError 向量化返回数量与输入不一致
type EmbeddingCountError struct {
	Expected int
	Actual   int
}

func (e *EmbeddingCountError) Error() string {
	return fmt.Sprintf("embedding count mismatch: expected %d, got %d", e.Expected, e.Actual)
}
