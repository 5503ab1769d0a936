package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"
)

// Env 工具运行环境
type Env struct {
	Sandbox Sandbox
	// Today 当天零点（UTC），日期缺省值都从它推导
	Today time.Time
}

// Request 工具输入
type Request struct {
	Tenant      string
	WorkflowID  string
	ActionType  string
	Query       string
	Inputs      map[string]any
	UserContext map[string]any
	Contexts    []rag.ContextBlock
}

// Output 工具输出，Payload 为 schema 包中对应动作的负载结构
type Output struct {
	Summary string
	Payload any
}

// ToolHandler 确定性工具，只能通过 env.Sandbox 访问外部资源
type ToolHandler interface {
	Execute(ctx context.Context, env *Env, req *Request) (*Output, error)
}

// ToolFunc 函数适配器
type ToolFunc func(ctx context.Context, env *Env, req *Request) (*Output, error)

// Execute 调用函数本身
func (f ToolFunc) Execute(ctx context.Context, env *Env, req *Request) (*Output, error) {
	return f(ctx, env, req)
}

// ToolRegistry 工具注册表，键为动作类型
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolHandler
}

// NewToolRegistry 创建空注册表
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]ToolHandler)}
}

// NewBuiltinRegistry 注册全部内置采购工具
func NewBuiltinRegistry() *ToolRegistry {
	r := NewToolRegistry()
	for actionType, fn := range map[string]ToolFunc{
		schema.ActionRFQDraft:                  RFQDraft,
		schema.ActionSupplierMessage:           SupplierMessage,
		schema.ActionMaintenanceChecklist:      MaintenanceChecklist,
		schema.ActionInventoryWhatIf:           InventoryWhatIf,
		schema.ActionCompareQuotes:             CompareQuotes,
		schema.ActionPODraft:                   PODraft,
		schema.ActionReceiptDraft:              ReceiptDraft,
		schema.ActionInvoiceDraft:              InvoiceDraft,
		schema.ActionInvoiceMatch:              InvoiceMatch,
		schema.ActionInvoiceMismatchResolution: ResolveInvoiceMismatch,
		schema.ActionPaymentDraft:              PaymentDraft,
		schema.ActionItemDraft:                 ItemDraft,
		schema.ActionSupplierOnboardDraft:      SupplierOnboardDraft,
	} {
		r.tools[actionType] = fn
	}
	return r
}

// Register 注册工具，重复注册返回错误
func (r *ToolRegistry) Register(name string, handler ToolHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("工具 %s 已注册", name)
	}
	r.tools[name] = handler
	return nil
}

// Replace 注册或覆盖工具
func (r *ToolRegistry) Replace(name string, handler ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = handler
}

// Get 获取工具
func (r *ToolRegistry) Get(name string) (ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, exists := r.tools[name]
	return handler, exists
}

// List 已注册的工具名，按字母序
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count 工具数量
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
