package schema

import "reflect"

// RFQLineItem 询价行
type RFQLineItem struct {
	PartID      string  `json:"part_id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity" jsonschema:"minimum=0"`
	UOM         string  `json:"uom"`
	Material    string  `json:"material"`
	TargetDate  string  `json:"target_date" jsonschema:"format=date"`
}

// RubricCriterion 评标维度
type RubricCriterion struct {
	Criterion string  `json:"criterion"`
	Weight    float64 `json:"weight" jsonschema:"minimum=0,maximum=1"`
}

// RFQDraftPayload 询价单草稿
type RFQDraftPayload struct {
	RFQTitle                string            `json:"rfq_title" jsonschema:"minLength=1"`
	ScopeSummary            string            `json:"scope_summary"`
	LineItems               []RFQLineItem     `json:"line_items"`
	DeliveryLocation        string            `json:"delivery_location"`
	QACertificationRequired bool              `json:"qa_certification_required"`
	ResponseDueDate         string            `json:"response_due_date" jsonschema:"format=date"`
	TermsAndConditions      []string          `json:"terms_and_conditions"`
	QuestionsForSuppliers   []string          `json:"questions_for_suppliers"`
	EvaluationRubric        []RubricCriterion `json:"evaluation_rubric"`
}

// SupplierMessagePayload 供应商沟通消息
type SupplierMessagePayload struct {
	SupplierName        string   `json:"supplier_name"`
	Subject             string   `json:"subject" jsonschema:"minLength=1"`
	MessageBody         string   `json:"message_body" jsonschema:"minLength=1"`
	Tone                string   `json:"tone" jsonschema:"enum=formal|friendly|firm"`
	NegotiationPoints   []string `json:"negotiation_points"`
	FallbackOptions     []string `json:"fallback_options"`
	ResponseRequestedBy string   `json:"response_requested_by" jsonschema:"format=date"`
}

// MaintenanceChecklistPayload 设备维护检查清单
type MaintenanceChecklistPayload struct {
	AssetID            string   `json:"asset_id"`
	Symptom            string   `json:"symptom"`
	SafetyNotes        []string `json:"safety_notes"`
	DiagnosticSteps    []string `json:"diagnostic_steps"`
	LikelyCauses       []string `json:"likely_causes"`
	RecommendedActions []string `json:"recommended_actions"`
	WhenToEscalate     []string `json:"when_to_escalate"`
}

// InventoryWhatIfPayload 库存推演
type InventoryWhatIfPayload struct {
	ItemCode              string   `json:"item_code"`
	CurrentStock          float64  `json:"current_stock" jsonschema:"minimum=0"`
	DailyUsage            float64  `json:"daily_usage" jsonschema:"minimum=0"`
	LeadTimeDays          int      `json:"lead_time_days" jsonschema:"minimum=0"`
	SafetyStock           float64  `json:"safety_stock" jsonschema:"minimum=0"`
	ReorderPoint          float64  `json:"reorder_point" jsonschema:"minimum=0"`
	DaysOfCover           float64  `json:"days_of_cover" jsonschema:"minimum=0"`
	ProjectedStockoutDate string   `json:"projected_stockout_date" jsonschema:"format=date"`
	StockoutRisk          string   `json:"stockout_risk" jsonschema:"enum=low|medium|high"`
	RecommendedOrderQty   float64  `json:"recommended_order_qty" jsonschema:"minimum=0"`
	Assumptions           []string `json:"assumptions"`
}

// QuoteWeights 报价比较权重
type QuoteWeights struct {
	Price    float64 `json:"price"`
	LeadTime float64 `json:"lead_time"`
	Quality  float64 `json:"quality"`
	Risk     float64 `json:"risk"`
}

// QuoteRanking 单个报价的评分
type QuoteRanking struct {
	Rank            int     `json:"rank" jsonschema:"minimum=1"`
	SupplierID      string  `json:"supplier_id"`
	SupplierName    string  `json:"supplier_name"`
	Price           float64 `json:"price" jsonschema:"minimum=0"`
	LeadTimeDays    float64 `json:"lead_time_days" jsonschema:"minimum=0"`
	Quality         float64 `json:"quality" jsonschema:"minimum=0,maximum=1"`
	Risk            float64 `json:"risk" jsonschema:"minimum=0,maximum=1"`
	NormalizedScore float64 `json:"normalized_score" jsonschema:"minimum=0,maximum=100"`
}

// CompareQuotesPayload 报价比较结果
type CompareQuotesPayload struct {
	Rankings       []QuoteRanking `json:"rankings"`
	Recommendation string         `json:"recommendation"`
	Weights        QuoteWeights   `json:"weights"`
}

// POLineItem 采购订单行
type POLineItem struct {
	LineNo       int     `json:"line_no" jsonschema:"minimum=1"`
	ItemCode     string  `json:"item_code"`
	Description  string  `json:"description"`
	Quantity     float64 `json:"quantity" jsonschema:"minimum=0"`
	UOM          string  `json:"uom"`
	UnitPrice    float64 `json:"unit_price" jsonschema:"minimum=0"`
	TaxRate      float64 `json:"tax_rate" jsonschema:"minimum=0,maximum=1"`
	LineTotal    float64 `json:"line_total" jsonschema:"minimum=0"`
	DeliveryDate string  `json:"delivery_date" jsonschema:"format=date"`
}

// PODraftPayload 采购订单草稿
type PODraftPayload struct {
	PONumber     string       `json:"po_number" jsonschema:"minLength=1"`
	RFQID        string       `json:"rfq_id"`
	SupplierID   string       `json:"supplier_id"`
	SupplierName string       `json:"supplier_name"`
	Currency     string       `json:"currency" jsonschema:"minLength=3,maxLength=3"`
	LineItems    []POLineItem `json:"line_items"`
	Subtotal     float64      `json:"subtotal" jsonschema:"minimum=0"`
	TaxTotal     float64      `json:"tax_total" jsonschema:"minimum=0"`
	Total        float64      `json:"total" jsonschema:"minimum=0"`
	PaymentTerms string       `json:"payment_terms"`
	Incoterm     string       `json:"incoterm"`
	DeliveryDate string       `json:"delivery_date" jsonschema:"format=date"`
	Notes        []string     `json:"notes"`
}

// ReceiptLine 收货行
type ReceiptLine struct {
	LineReference string  `json:"line_reference"`
	ItemCode      string  `json:"item_code"`
	Description   string  `json:"description"`
	ExpectedQty   float64 `json:"expected_qty" jsonschema:"minimum=0"`
	ReceivedQty   float64 `json:"received_qty" jsonschema:"minimum=0"`
	AcceptedQty   float64 `json:"accepted_qty" jsonschema:"minimum=0"`
	RejectedQty   float64 `json:"rejected_qty" jsonschema:"minimum=0"`
	Condition     string  `json:"condition" jsonschema:"enum=good|damaged|short"`
}

// ReceiptDraftPayload 收货单草稿
type ReceiptDraftPayload struct {
	ReceiptNumber string        `json:"receipt_number" jsonschema:"minLength=1"`
	POID          string        `json:"po_id"`
	ReceivedDate  string        `json:"received_date" jsonschema:"format=date"`
	ReceivedBy    string        `json:"received_by"`
	LineItems     []ReceiptLine `json:"line_items"`
	Status        string        `json:"status" jsonschema:"enum=complete|partial|discrepancy"`
	Discrepancies []string      `json:"discrepancies"`
}

// InvoiceLine 发票行
type InvoiceLine struct {
	LineReference string  `json:"line_reference"`
	ItemCode      string  `json:"item_code"`
	Description   string  `json:"description"`
	Quantity      float64 `json:"quantity" jsonschema:"minimum=0"`
	UnitPrice     float64 `json:"unit_price" jsonschema:"minimum=0"`
	TaxRate       float64 `json:"tax_rate" jsonschema:"minimum=0,maximum=1"`
	LineTotal     float64 `json:"line_total" jsonschema:"minimum=0"`
}

// InvoiceDraftPayload 发票草稿
type InvoiceDraftPayload struct {
	InvoiceNumber string        `json:"invoice_number" jsonschema:"minLength=1"`
	POID          string        `json:"po_id"`
	SupplierID    string        `json:"supplier_id"`
	InvoiceDate   string        `json:"invoice_date" jsonschema:"format=date"`
	DueDate       string        `json:"due_date" jsonschema:"format=date"`
	Currency      string        `json:"currency" jsonschema:"minLength=3,maxLength=3"`
	LineItems     []InvoiceLine `json:"line_items"`
	Subtotal      float64       `json:"subtotal" jsonschema:"minimum=0"`
	TaxTotal      float64       `json:"tax_total" jsonschema:"minimum=0"`
	Total         float64       `json:"total" jsonschema:"minimum=0"`
	PaymentTerms  string        `json:"payment_terms"`
}

// MatchMismatch 三单匹配差异
type MatchMismatch struct {
	LineReference string  `json:"line_reference"`
	ItemCode      string  `json:"item_code"`
	Type          string  `json:"type" jsonschema:"enum=missing_po_line|qty|receipt_qty|price|tax"`
	Severity      string  `json:"severity" jsonschema:"enum=info|warning|risk"`
	Expected      float64 `json:"expected"`
	Actual        float64 `json:"actual"`
	Variance      float64 `json:"variance"`
	Detail        string  `json:"detail"`
}

// MatchRecommendation 匹配建议
type MatchRecommendation struct {
	Status string `json:"status" jsonschema:"enum=approve|hold"`
	Reason string `json:"reason"`
}

// InvoiceMatchPayload 三单匹配结果
type InvoiceMatchPayload struct {
	InvoiceID      string              `json:"invoice_id"`
	POID           string              `json:"po_id"`
	ReceiptID      string              `json:"receipt_id"`
	MatchedLines   int                 `json:"matched_lines" jsonschema:"minimum=0"`
	Mismatches     []MatchMismatch     `json:"mismatches"`
	MatchScore     float64             `json:"match_score" jsonschema:"minimum=0,maximum=1"`
	Recommendation MatchRecommendation `json:"recommendation"`
}

// ResolutionDecision 差异处理决策
type ResolutionDecision struct {
	Type       string  `json:"type" jsonschema:"enum=hold|partial_approve|request_credit_note|adjust_po"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
}

// ResolutionAction 处理动作
type ResolutionAction struct {
	Action  string `json:"action"`
	Owner   string `json:"owner"`
	Detail  string `json:"detail"`
	DueDate string `json:"due_date" jsonschema:"format=date"`
}

// ImpactedLine 受影响的发票行
type ImpactedLine struct {
	LineReference     string `json:"line_reference"`
	Issue             string `json:"issue"`
	RecommendedAction string `json:"recommended_action"`
}

// InvoiceMismatchResolutionPayload 发票差异处理方案
type InvoiceMismatchResolutionPayload struct {
	InvoiceID     string             `json:"invoice_id"`
	Resolution    ResolutionDecision `json:"resolution"`
	Actions       []ResolutionAction `json:"actions"`
	ImpactedLines []ImpactedLine     `json:"impacted_lines"`
	NextSteps     []string           `json:"next_steps"`
}

// PaymentDraftPayload 付款草稿
type PaymentDraftPayload struct {
	PaymentReference     string  `json:"payment_reference" jsonschema:"minLength=1"`
	InvoiceID            string  `json:"invoice_id"`
	POID                 string  `json:"po_id"`
	SupplierID           string  `json:"supplier_id"`
	Amount               float64 `json:"amount" jsonschema:"minimum=0"`
	Currency             string  `json:"currency" jsonschema:"minLength=3,maxLength=3"`
	PaymentMethod        string  `json:"payment_method" jsonschema:"enum=ach|wire|check|card"`
	ScheduledDate        string  `json:"scheduled_date" jsonschema:"format=date"`
	EarlyPaymentDiscount float64 `json:"early_payment_discount" jsonschema:"minimum=0"`
	Memo                 string  `json:"memo"`
}

// ItemSpecification 物料规格
type ItemSpecification struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ItemDraftPayload 物料主数据草稿
type ItemDraftPayload struct {
	ItemCode           string              `json:"item_code" jsonschema:"minLength=1"`
	Name               string              `json:"name" jsonschema:"minLength=1"`
	Description        string              `json:"description"`
	Category           string              `json:"category"`
	UOM                string              `json:"uom"`
	Specifications     []ItemSpecification `json:"specifications"`
	PreferredSuppliers []string            `json:"preferred_suppliers"`
	ReorderPoint       float64             `json:"reorder_point" jsonschema:"minimum=0"`
	LeadTimeDays       int                 `json:"lead_time_days" jsonschema:"minimum=0"`
}

// SupplierOnboardDraftPayload 供应商准入草稿
type SupplierOnboardDraftPayload struct {
	SupplierName      string   `json:"supplier_name" jsonschema:"minLength=1"`
	ContactEmail      string   `json:"contact_email"`
	ContactPhone      string   `json:"contact_phone"`
	Country           string   `json:"country"`
	Categories        []string `json:"categories"`
	RequiredDocuments []string `json:"required_documents"`
	ComplianceChecks  []string `json:"compliance_checks"`
	RiskNotes         []string `json:"risk_notes"`
	NextSteps         []string `json:"next_steps"`
}

// payloadTypes 动作类型到负载结构的映射
var payloadTypes = map[string]reflect.Type{
	ActionRFQDraft:                  reflect.TypeOf(RFQDraftPayload{}),
	ActionSupplierMessage:           reflect.TypeOf(SupplierMessagePayload{}),
	ActionMaintenanceChecklist:      reflect.TypeOf(MaintenanceChecklistPayload{}),
	ActionInventoryWhatIf:           reflect.TypeOf(InventoryWhatIfPayload{}),
	ActionCompareQuotes:             reflect.TypeOf(CompareQuotesPayload{}),
	ActionPODraft:                   reflect.TypeOf(PODraftPayload{}),
	ActionReceiptDraft:              reflect.TypeOf(ReceiptDraftPayload{}),
	ActionInvoiceDraft:              reflect.TypeOf(InvoiceDraftPayload{}),
	ActionInvoiceMatch:              reflect.TypeOf(InvoiceMatchPayload{}),
	ActionInvoiceMismatchResolution: reflect.TypeOf(InvoiceMismatchResolutionPayload{}),
	ActionPaymentDraft:              reflect.TypeOf(PaymentDraftPayload{}),
	ActionItemDraft:                 reflect.TypeOf(ItemDraftPayload{}),
	ActionSupplierOnboardDraft:      reflect.TypeOf(SupplierOnboardDraftPayload{}),
}
