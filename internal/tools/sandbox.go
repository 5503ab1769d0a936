package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSideEffectBlocked 工具尝试执行被禁止的副作用操作
var ErrSideEffectBlocked = errors.New("side effect blocked")

// ErrUnknownTool 未注册的工具
var ErrUnknownTool = errors.New("unknown tool")

// Sandbox 工具可用的 I/O 能力
// 工具只能通过它访问网络、子进程与数据库，默认实现全部拒绝
type Sandbox interface {
	HTTP(ctx context.Context, method, url string) error
	Exec(ctx context.Context, name string, args ...string) error
	Query(ctx context.Context, statement string) error
}

// DenyAllSandbox 拒绝一切副作用，并记录尝试
type DenyAllSandbox struct {
	mu       sync.Mutex
	attempts []string
}

// NewDenyAllSandbox 创建拒绝一切的沙箱，每次工具调用独立一份
func NewDenyAllSandbox() *DenyAllSandbox {
	return &DenyAllSandbox{}
}

// HTTP 拒绝网络访问
func (s *DenyAllSandbox) HTTP(_ context.Context, method, url string) error {
	return s.block(fmt.Sprintf("http %s %s", method, url))
}

// Exec 拒绝子进程
func (s *DenyAllSandbox) Exec(_ context.Context, name string, _ ...string) error {
	return s.block("exec " + name)
}

// Query 拒绝数据库访问
func (s *DenyAllSandbox) Query(_ context.Context, statement string) error {
	return s.block("query " + statement)
}

// Attempts 被拦截的操作
func (s *DenyAllSandbox) Attempts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.attempts...)
}

func (s *DenyAllSandbox) block(op string) error {
	s.mu.Lock()
	s.attempts = append(s.attempts, op)
	s.mu.Unlock()
	return fmt.Errorf("%w: %s", ErrSideEffectBlocked, op)
}
