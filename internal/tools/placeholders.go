package tools

import (
	"time"

	"github.com/sadhurshan/esai-sub000/internal/schema"
)

// Placeholder 工具失败或 LLM 负载不可用时的最小合法负载
func Placeholder(actionType string, today time.Time) map[string]any {
	date := today.Format(dateLayout)
	var payload any
	switch actionType {
	case schema.ActionRFQDraft:
		payload = schema.RFQDraftPayload{
			RFQTitle:              "Request for Quotation",
			LineItems:             []schema.RFQLineItem{},
			ResponseDueDate:       date,
			TermsAndConditions:    []string{},
			QuestionsForSuppliers: []string{},
			EvaluationRubric:      []schema.RubricCriterion{},
		}
	case schema.ActionSupplierMessage:
		payload = schema.SupplierMessagePayload{
			Subject:             "Supplier follow-up",
			MessageBody:         "Draft pending review.",
			Tone:                "formal",
			NegotiationPoints:   []string{},
			FallbackOptions:     []string{},
			ResponseRequestedBy: date,
		}
	case schema.ActionMaintenanceChecklist:
		payload = schema.MaintenanceChecklistPayload{
			SafetyNotes:        []string{},
			DiagnosticSteps:    []string{},
			LikelyCauses:       []string{},
			RecommendedActions: []string{},
			WhenToEscalate:     []string{},
		}
	case schema.ActionInventoryWhatIf:
		payload = schema.InventoryWhatIfPayload{
			ProjectedStockoutDate: date,
			StockoutRisk:          "medium",
			Assumptions:           []string{},
		}
	case schema.ActionCompareQuotes:
		payload = schema.CompareQuotesPayload{Rankings: []schema.QuoteRanking{}, Weights: quoteWeights}
	case schema.ActionPODraft:
		payload = schema.PODraftPayload{
			PONumber:     "PO-DRAFT",
			Currency:     "USD",
			LineItems:    []schema.POLineItem{},
			DeliveryDate: date,
			Notes:        []string{},
		}
	case schema.ActionReceiptDraft:
		payload = schema.ReceiptDraftPayload{
			ReceiptNumber: "GRN-DRAFT",
			ReceivedDate:  date,
			LineItems:     []schema.ReceiptLine{},
			Status:        "partial",
			Discrepancies: []string{},
		}
	case schema.ActionInvoiceDraft:
		payload = schema.InvoiceDraftPayload{
			InvoiceNumber: "INV-DRAFT",
			InvoiceDate:   date,
			DueDate:       date,
			Currency:      "USD",
			LineItems:     []schema.InvoiceLine{},
		}
	case schema.ActionInvoiceMatch:
		payload = schema.InvoiceMatchPayload{
			Mismatches:     []schema.MatchMismatch{},
			Recommendation: schema.MatchRecommendation{Status: "hold", Reason: "Match not evaluated"},
		}
	case schema.ActionInvoiceMismatchResolution:
		payload = schema.InvoiceMismatchResolutionPayload{
			Resolution:    schema.ResolutionDecision{Type: "hold", Summary: "Manual review required", Confidence: 0.15},
			Actions:       []schema.ResolutionAction{},
			ImpactedLines: []schema.ImpactedLine{},
			NextSteps:     []string{},
		}
	case schema.ActionPaymentDraft:
		payload = schema.PaymentDraftPayload{
			PaymentReference: "PAY-DRAFT",
			Currency:         "USD",
			PaymentMethod:    "ach",
			ScheduledDate:    date,
		}
	case schema.ActionItemDraft:
		payload = schema.ItemDraftPayload{
			ItemCode:           "ITEM-NEW",
			Name:               "New item",
			Specifications:     []schema.ItemSpecification{},
			PreferredSuppliers: []string{},
		}
	case schema.ActionSupplierOnboardDraft:
		payload = schema.SupplierOnboardDraftPayload{
			SupplierName:      "New supplier",
			Categories:        []string{},
			RequiredDocuments: []string{},
			ComplianceChecks:  []string{},
			RiskNotes:         []string{},
			NextSteps:         []string{},
		}
	default:
		return map[string]any{}
	}
	m, err := schema.ToMap(payload)
	if err != nil {
		return map[string]any{}
	}
	return m
}
