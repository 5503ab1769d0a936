package schema

import (
	"encoding/json"
	"fmt"
)

// 动作类型
const (
	ActionRFQDraft                  = "rfq_draft"
	ActionSupplierMessage           = "supplier_message"
	ActionMaintenanceChecklist      = "maintenance_checklist"
	ActionInventoryWhatIf           = "inventory_whatif"
	ActionCompareQuotes             = "compare_quotes"
	ActionPODraft                   = "po_draft"
	ActionReceiptDraft              = "receipt_draft"
	ActionInvoiceDraft              = "invoice_draft"
	ActionInvoiceMatch              = "invoice_match"
	ActionInvoiceMismatchResolution = "invoice_mismatch_resolution"
	ActionPaymentDraft              = "payment_draft"
	ActionItemDraft                 = "item_draft"
	ActionSupplierOnboardDraft      = "supplier_onboard_draft"
)

// ActionTypes 全部动作类型，顺序固定
var ActionTypes = []string{
	ActionRFQDraft,
	ActionSupplierMessage,
	ActionMaintenanceChecklist,
	ActionInventoryWhatIf,
	ActionCompareQuotes,
	ActionPODraft,
	ActionReceiptDraft,
	ActionInvoiceDraft,
	ActionInvoiceMatch,
	ActionInvoiceMismatchResolution,
	ActionPaymentDraft,
	ActionItemDraft,
	ActionSupplierOnboardDraft,
}

// IsActionType 判断是否为已注册动作
func IsActionType(actionType string) bool {
	for _, t := range ActionTypes {
		if t == actionType {
			return true
		}
	}
	return false
}

// Citation 引用，(doc_id, doc_version, chunk_id) 为引用键
type Citation struct {
	DocID      string  `json:"doc_id"`
	DocVersion string  `json:"doc_version"`
	ChunkID    int     `json:"chunk_id" jsonschema:"minimum=0"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet" jsonschema:"maxLength=250"`
}

// AnswerEnvelope 问答响应
type AnswerEnvelope struct {
	AnswerMarkdown   string     `json:"answer_markdown" jsonschema:"minLength=1"`
	Citations        []Citation `json:"citations"`
	Confidence       float64    `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	NeedsHumanReview bool       `json:"needs_human_review"`
	Warnings         []string   `json:"warnings"`
}

// ActionEnvelope 动作响应，Payload 结构由 ActionType 决定
type ActionEnvelope struct {
	ActionType       string         `json:"action_type"`
	Summary          string         `json:"summary"`
	Payload          map[string]any `json:"payload"`
	Citations        []Citation     `json:"citations"`
	Confidence       float64        `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	NeedsHumanReview bool           `json:"needs_human_review"`
	Warnings         []string       `json:"warnings"`
}

// Normalize 保证切片与映射非空，序列化后满足 schema 的数组类型要求
func (e *ActionEnvelope) Normalize() {
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	if e.Citations == nil {
		e.Citations = []Citation{}
	}
	if e.Warnings == nil {
		e.Warnings = []string{}
	}
}

// Normalize 同上
func (e *AnswerEnvelope) Normalize() {
	if e.Citations == nil {
		e.Citations = []Citation{}
	}
	if e.Warnings == nil {
		e.Warnings = []string{}
	}
}

// ToMap 通过 JSON 往返把结构体转换为通用映射
func ToMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化失败: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("转换为对象失败: %w", err)
	}
	return out, nil
}

// FromMap 把通用映射解码为结构体
func FromMap(m map[string]any, out any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解码失败: %w", err)
	}
	return nil
}

// DedupeStrings 去重并保持首次出现顺序，丢弃空串
func DedupeStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
