package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sadhurshan/esai-sub000/internal/schema"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// StepSpec 模板或请求中的单个步骤定义
type StepSpec struct {
	ActionType     string         `yaml:"action_type" json:"action_type"`
	Name           string         `yaml:"name" json:"name,omitempty"`
	Description    string         `yaml:"description" json:"description,omitempty"`
	RequiredInputs map[string]any `yaml:"required_inputs" json:"required_inputs,omitempty"`
	Metadata       map[string]any `yaml:"metadata" json:"metadata,omitempty"`
}

// Template 工作流模板
type Template struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Steps       []StepSpec `yaml:"steps" json:"steps"`
}

// TemplateConfig 模板配置文件
type TemplateConfig struct {
	Templates map[string]*Template `yaml:"templates"`
}

// TemplateLoader workflow_type 到步骤序列的映射
type TemplateLoader struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// NewTemplateLoader 创建加载器并载入内置模板
func NewTemplateLoader() (*TemplateLoader, error) {
	l := &TemplateLoader{templates: make(map[string]*Template)}
	if err := l.load(defaultTemplates); err != nil {
		return nil, fmt.Errorf("加载内置模板失败: %w", err)
	}
	return l, nil
}

// LoadFromFile 从文件加载模板，同名模板覆盖内置定义
func (l *TemplateLoader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取模板配置文件失败: %w", err)
	}
	return l.load(data)
}

func (l *TemplateLoader) load(data []byte) error {
	var cfg TemplateConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("解析模板配置失败: %w", err)
	}
	for key, tpl := range cfg.Templates {
		if tpl == nil || len(tpl.Steps) == 0 {
			return fmt.Errorf("模板 %s 没有步骤", key)
		}
		for i, step := range tpl.Steps {
			if !schema.IsActionType(step.ActionType) {
				return fmt.Errorf("模板 %s 第 %d 步动作类型非法: %q", key, i, step.ActionType)
			}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, tpl := range cfg.Templates {
		l.templates[key] = tpl
	}
	return nil
}

// Get 获取模板
func (l *TemplateLoader) Get(workflowType string) (*Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tpl, ok := l.templates[workflowType]
	return tpl, ok
}

// Types 已注册的工作流类型
func (l *TemplateLoader) Types() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	types := make([]string, 0, len(l.templates))
	for key := range l.templates {
		types = append(types, key)
	}
	sort.Strings(types)
	return types
}
