// Package planner 意图规划：把用户输入映射到函数目录中的工具、多步计划或澄清问题
package planner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/schema"
)

// 工具类别
const (
	KindDraft    = "draft"
	KindSearch   = "search"
	KindGet      = "get"
	KindInfo     = "info"
	KindWorkflow = "workflow"
	KindPlan     = "plan"
)

// PlanToolName 多步计划元工具
const PlanToolName = "copilot.plan"

// FunctionSpec 函数描述
type FunctionSpec struct {
	Name        string
	Description string
	Kind        string
	// ActionType 草稿类工具对应的动作类型
	ActionType string
	Parameters map[string]any
	Required   []string

	validator *schema.Validator
}

// WireName 发送给模型的名称，点号不被函数名接受
func (f *FunctionSpec) WireName() string {
	return EncodeName(f.Name)
}

// EncodeName 目录名转为线上名称
func EncodeName(name string) string {
	return strings.ReplaceAll(name, ".", "__")
}

// DecodeName 线上名称还原为目录名
func DecodeName(name string) string {
	return strings.ReplaceAll(name, "__", ".")
}

// Catalog 函数目录
type Catalog struct {
	specs map[string]*FunctionSpec
	order []string
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func enumProp(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

func arrayProp(desc string, items map[string]any) map[string]any {
	return map[string]any{"type": "array", "description": desc, "items": items}
}

func params(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func searchSpec(entity, plural string) *FunctionSpec {
	return &FunctionSpec{
		Name:        "workspace.search_" + plural,
		Description: fmt.Sprintf("Search existing %s in the workspace by keyword or status.", strings.ReplaceAll(plural, "_", " ")),
		Kind:        KindSearch,
		Parameters: params(map[string]any{
			"query":  prop("string", "Free-text keywords"),
			"status": prop("string", "Optional status filter"),
			"limit":  map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
		}),
	}
}

func getSpec(entity string) *FunctionSpec {
	return &FunctionSpec{
		Name:        "workspace.get_" + entity,
		Description: fmt.Sprintf("Fetch a single %s by id.", strings.ReplaceAll(entity, "_", " ")),
		Kind:        KindGet,
		Parameters:  params(map[string]any{"id": prop("string", "Record id")}, "id"),
		Required:    []string{"id"},
	}
}

func builtinSpecs() []*FunctionSpec {
	quote := params(map[string]any{
		"supplier_id": prop("string", "Supplier id"),
		"price":       prop("number", "Total or unit price"),
		"lead_time":   prop("number", "Lead time in days"),
		"quality":     prop("number", "Quality score 0-1"),
		"risk":        prop("number", "Risk score 0-1"),
	}, "supplier_id")
	step := params(map[string]any{
		"tool": prop("string", "Catalog tool name"),
		"args": map[string]any{"type": "object"},
	}, "tool")
	step["additionalProperties"] = true

	specs := []*FunctionSpec{
		{
			Name:        "build_rfq_draft",
			Description: "Draft a request for quotation from the user's requirements.",
			Kind:        KindDraft,
			ActionType:  schema.ActionRFQDraft,
			Parameters: params(map[string]any{
				"rfq_title":         prop("string", "Short RFQ title, e.g. the part or service"),
				"scope_summary":     prop("string", "What is being sourced"),
				"quantity":          prop("number", "Requested quantity"),
				"material":          prop("string", "Material or grade"),
				"delivery_location": prop("string", "Ship-to site"),
				"lead_time_days":    prop("integer", "Required lead time in days"),
				"response_due_date": prop("string", "YYYY-MM-DD"),
				"qa_certification":  prop("boolean", "Whether QA certification is required"),
				"terms":             arrayProp("Extra terms and conditions", prop("string", "Term")),
			}, "rfq_title"),
			Required: []string{"rfq_title"},
		},
		{
			Name:        "build_supplier_message",
			Description: "Draft a message to a supplier.",
			Kind:        KindDraft,
			ActionType:  schema.ActionSupplierMessage,
			Parameters: params(map[string]any{
				"supplier_name": prop("string", "Supplier to contact"),
				"goal":          prop("string", "What the message should achieve"),
				"tone":          enumProp("Message tone", "formal", "friendly", "firm"),
			}, "supplier_name", "goal"),
			Required: []string{"supplier_name", "goal"},
		},
		{
			Name:        "build_maintenance_checklist",
			Description: "Build a maintenance troubleshooting checklist for an asset.",
			Kind:        KindDraft,
			ActionType:  schema.ActionMaintenanceChecklist,
			Parameters: params(map[string]any{
				"asset":   prop("string", "Asset or machine"),
				"symptom": prop("string", "Observed symptom"),
			}, "asset", "symptom"),
			Required: []string{"asset", "symptom"},
		},
		{
			Name:        "build_inventory_whatif",
			Description: "Run an inventory what-if projection for an item.",
			Kind:        KindDraft,
			ActionType:  schema.ActionInventoryWhatIf,
			Parameters: params(map[string]any{
				"item_code":        prop("string", "Item code"),
				"current_stock":    prop("number", "On-hand quantity"),
				"daily_usage":      prop("number", "Average daily usage"),
				"lead_time_days":   prop("number", "Replenishment lead time"),
				"usage_change_pct": prop("number", "Usage change in percent"),
			}, "item_code"),
			Required: []string{"item_code"},
		},
		{
			Name:        "compare_quotes",
			Description: "Compare supplier quotes for an RFQ and recommend a winner.",
			Kind:        KindDraft,
			ActionType:  schema.ActionCompareQuotes,
			Parameters: params(map[string]any{
				"rfq_id": prop("string", "RFQ id"),
				"quotes": arrayProp("Quotes to compare", quote),
			}, "rfq_id"),
			Required: []string{"rfq_id"},
		},
		{
			Name:        "build_po_draft",
			Description: "Draft a purchase order for an awarded supplier.",
			Kind:        KindDraft,
			ActionType:  schema.ActionPODraft,
			Parameters: params(map[string]any{
				"supplier_id": prop("string", "Awarded supplier"),
				"rfq_id":      prop("string", "Source RFQ id"),
				"currency":    prop("string", "ISO currency code"),
			}, "supplier_id"),
			Required: []string{"supplier_id"},
		},
		{
			Name:        "build_invoice_draft",
			Description: "Draft a supplier invoice against a purchase order.",
			Kind:        KindDraft,
			ActionType:  schema.ActionInvoiceDraft,
			Parameters: params(map[string]any{
				"po_id":         prop("string", "Purchase order id"),
				"invoice_date":  prop("string", "YYYY-MM-DD"),
				"payment_terms": prop("string", "e.g. Net 30"),
			}, "po_id"),
			Required: []string{"po_id"},
		},
		{
			Name:        "build_item_draft",
			Description: "Draft a new item master record.",
			Kind:        KindDraft,
			ActionType:  schema.ActionItemDraft,
			Parameters: params(map[string]any{
				"name":     prop("string", "Item name"),
				"category": prop("string", "Item category"),
				"uom":      prop("string", "Unit of measure"),
			}, "name"),
			Required: []string{"name"},
		},
		{
			Name:        "build_supplier_onboard_draft",
			Description: "Draft an onboarding package for a new supplier.",
			Kind:        KindDraft,
			ActionType:  schema.ActionSupplierOnboardDraft,
			Parameters: params(map[string]any{
				"supplier_name": prop("string", "Legal supplier name"),
				"country":       prop("string", "ISO country code"),
				"categories":    arrayProp("Supplied categories", prop("string", "Category")),
			}, "supplier_name"),
			Required: []string{"supplier_name"},
		},
		{
			Name:        "workspace.three_way_match",
			Description: "Run a three-way match of an invoice against its PO and receipt.",
			Kind:        KindDraft,
			ActionType:  schema.ActionInvoiceMatch,
			Parameters: params(map[string]any{
				"invoice_id": prop("string", "Invoice id"),
				"po_id":      prop("string", "Purchase order id"),
			}, "invoice_id"),
			Required: []string{"invoice_id"},
		},
		{
			Name:        "workspace.resolve_invoice_mismatch",
			Description: "Propose a resolution for invoice match exceptions.",
			Kind:        KindDraft,
			ActionType:  schema.ActionInvoiceMismatchResolution,
			Parameters: params(map[string]any{
				"invoice_id":           prop("string", "Invoice id"),
				"preferred_resolution": enumProp("Preferred outcome", "hold", "partial_approve", "request_credit_note", "adjust_po"),
			}, "invoice_id"),
			Required: []string{"invoice_id"},
		},
		{
			Name:        "workspace.help",
			Description: "Explain what the copilot can do.",
			Kind:        KindInfo,
			Parameters:  params(map[string]any{"topic": prop("string", "Optional topic")}),
		},
		{
			Name:        "workspace.procurement_snapshot",
			Description: "Summarize open RFQs, POs, receipts and invoices.",
			Kind:        KindInfo,
			Parameters:  params(map[string]any{}),
		},
		{
			Name:        "workflow.start",
			Description: "Start a multi-step procurement workflow.",
			Kind:        KindWorkflow,
			Parameters: params(map[string]any{
				"workflow_type": enumProp("Workflow template", "procurement", "procure_to_pay", "invoice_exception"),
				"goal":          prop("string", "What the workflow should achieve"),
				"rfq_id":        prop("string", "Existing RFQ id"),
			}, "workflow_type"),
			Required: []string{"workflow_type"},
		},
		{
			Name:        PlanToolName,
			Description: "Return an ordered multi-step plan when the request needs several tools.",
			Kind:        KindPlan,
			Parameters:  params(map[string]any{"steps": arrayProp("Ordered steps", step)}, "steps"),
			Required:    []string{"steps"},
		},
	}

	for _, entity := range []struct{ one, many string }{
		{"rfq", "rfqs"},
		{"purchase_order", "purchase_orders"},
		{"receipt", "receipts"},
		{"invoice", "invoices"},
		{"payment", "payments"},
		{"contract", "contracts"},
		{"item", "items"},
		{"supplier", "suppliers"},
	} {
		specs = append(specs, searchSpec(entity.one, entity.many), getSpec(entity.one))
	}
	return specs
}

// NewCatalog 创建内置函数目录并编译参数 schema
func NewCatalog() (*Catalog, error) {
	c := &Catalog{specs: make(map[string]*FunctionSpec)}
	for _, spec := range builtinSpecs() {
		v, err := schema.Compile("planner_"+EncodeName(spec.Name), spec.Parameters)
		if err != nil {
			return nil, err
		}
		spec.validator = v
		c.specs[spec.Name] = spec
		c.order = append(c.order, spec.Name)
	}
	sort.Strings(c.order)
	return c, nil
}

// Get 按目录名或线上名称查找
func (c *Catalog) Get(name string) (*FunctionSpec, bool) {
	spec, ok := c.specs[DecodeName(strings.TrimSpace(name))]
	return spec, ok
}

// Names 全部目录名，已排序
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// ForAction 动作类型对应的草稿工具
func (c *Catalog) ForAction(actionType string) (*FunctionSpec, bool) {
	for _, name := range c.order {
		if spec := c.specs[name]; spec.ActionType == actionType {
			return spec, true
		}
	}
	return nil, false
}

// MissingArgs 缺失或为空的必填参数，按声明顺序
func (f *FunctionSpec) MissingArgs(args map[string]any) []string {
	missing := make([]string, 0)
	for _, key := range f.Required {
		if isEmpty(args[key]) {
			missing = append(missing, key)
		}
	}
	return missing
}

// ValidateArgs 按参数 schema 校验
func (f *FunctionSpec) ValidateArgs(args map[string]any) error {
	if f.validator == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	return f.validator.Validate(args)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// parametersJSON 序列化参数 schema
func (f *FunctionSpec) parametersJSON() json.RawMessage {
	raw, err := json.Marshal(f.Parameters)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}
