package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/sadhurshan/esai-sub000/internal/logger"

	"go.uber.org/zap"
)

// ProviderFactory 按名称解析 LLM 提供方
// external 在首次使用时创建；创建失败（如缺少凭证）的错误会被缓存并在每次解析时返回
type ProviderFactory struct {
	defaultName   string
	deterministic Provider
	newExternal   func() (Provider, error)

	mu        sync.Mutex
	external  Provider
	extErr    error
	extLoaded bool
}

// NewProviderFactory 创建提供方工厂
func NewProviderFactory(defaultName string, cfg OpenAIConfig, tokens TokenCounter) *ProviderFactory {
	return NewProviderFactoryWith(defaultName, NewDeterministicProvider(DefaultSummaryItems), func() (Provider, error) {
		p, err := NewOpenAIProvider(cfg, tokens)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// NewProviderFactoryWith 使用自定义构造函数，便于测试注入
func NewProviderFactoryWith(defaultName string, deterministic Provider, newExternal func() (Provider, error)) *ProviderFactory {
	if defaultName == "" {
		defaultName = ProviderDeterministic
	}
	return &ProviderFactory{
		defaultName:   defaultName,
		deterministic: deterministic,
		newExternal:   newExternal,
	}
}

// Default 默认提供方名称
func (f *ProviderFactory) Default() string {
	return f.defaultName
}

// Deterministic 确定性提供方，用作降级
func (f *ProviderFactory) Deterministic() Provider {
	return f.deterministic
}

// Resolve 解析提供方，name 为空时使用默认值
func (f *ProviderFactory) Resolve(ctx context.Context, name string) (Provider, error) {
	if name == "" {
		name = f.defaultName
	}
	switch name {
	case ProviderDeterministic:
		return f.deterministic, nil
	case ProviderExternal:
		return f.loadExternal(ctx)
	default:
		return nil, fmt.Errorf("未知的 LLM 提供方: %s", name)
	}
}

func (f *ProviderFactory) loadExternal(ctx context.Context) (Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.extLoaded {
		f.external, f.extErr = f.newExternal()
		f.extLoaded = true
		if f.extErr != nil {
			logger.WithContext(ctx).Warn("外部 LLM 提供方不可用", zap.Error(f.extErr))
		}
	}
	return f.external, f.extErr
}
