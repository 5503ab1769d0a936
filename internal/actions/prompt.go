package actions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/schema"
)

var actionLabels = map[string]string{
	schema.ActionRFQDraft:                  "RFQ draft",
	schema.ActionSupplierMessage:           "Supplier message",
	schema.ActionMaintenanceChecklist:      "Maintenance checklist",
	schema.ActionInventoryWhatIf:           "Inventory what-if analysis",
	schema.ActionCompareQuotes:             "Quote comparison",
	schema.ActionPODraft:                   "Purchase order draft",
	schema.ActionReceiptDraft:              "Goods receipt draft",
	schema.ActionInvoiceDraft:              "Invoice draft",
	schema.ActionInvoiceMatch:              "Invoice three-way match",
	schema.ActionInvoiceMismatchResolution: "Invoice mismatch resolution",
	schema.ActionPaymentDraft:              "Payment draft",
	schema.ActionItemDraft:                 "Item master draft",
	schema.ActionSupplierOnboardDraft:      "Supplier onboarding draft",
}

// Label 动作的可读名称
func Label(actionType string) string {
	if label, ok := actionLabels[actionType]; ok {
		return label
	}
	return actionType
}

func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// buildActionPrompt 动作提示词，作为用户消息的正文
func buildActionPrompt(req *PlanRequest, toolPayload map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s (%s)\n", Label(req.ActionType), req.ActionType)
	fmt.Fprintf(&b, "User goal: %s\n", strings.TrimSpace(req.Query))
	fmt.Fprintf(&b, "User context: %s\n", compactJSON(req.UserContext))
	fmt.Fprintf(&b, "Inputs: %s\n", compactJSON(req.Inputs))
	fmt.Fprintf(&b, "Deterministic draft payload: %s\n", compactJSON(toolPayload))
	b.WriteString("Refine the draft into a complete action envelope. Use only the retrieved sources below; ")
	b.WriteString("keep values from the deterministic draft unless a source supports a change, and cite every source you rely on.")
	return b.String()
}
