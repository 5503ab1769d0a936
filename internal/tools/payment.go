package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/schema"
)

// 形如 "2/10 Net 30" 的提前付款折扣条款
var earlyDiscountPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%?\s*/\s*(\d+)`)

func earlyDiscount(terms string) (pct float64, days int, ok bool) {
	m := earlyDiscountPattern.FindStringSubmatch(terms)
	if m == nil {
		return 0, 0, false
	}
	pct, err1 := strconv.ParseFloat(m[1], 64)
	days, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || pct <= 0 || pct >= 100 {
		return 0, 0, false
	}
	return pct, min(days, maxPaymentTermDays), true
}

// PaymentDraft 付款草稿
func PaymentDraft(_ context.Context, env *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	match := in.sub("invoice_match_output")

	invoiceID := in.str(match.str("", "invoice_id"), "invoice_id", "invoice_number")
	if invoiceID == "" {
		invoiceID = contextMeta(req.Contexts, "invoice_id", "invoice_number")
	}
	poID := in.str(match.str("", "po_id"), "po_id", "po_number")
	if poID == "" {
		poID = contextMeta(req.Contexts, "po_id", "po_number")
	}

	amount := clamp(in.num(0, "amount", "total", "invoice_total", "amount_due"), 0, 1e12)
	terms := in.str(defaultPaymentTerms, "payment_terms")
	base := env.Today
	if d, ok := parseDate(in.str("", "invoice_date")); ok {
		base = d
	}

	scheduled := base.AddDate(0, 0, paymentTermDays(terms, 30))
	if d, ok := parseDate(in.str("", "due_date")); ok {
		scheduled = d
	}
	discount := 0.0
	if pct, days, ok := earlyDiscount(terms); ok {
		early := base.AddDate(0, 0, days)
		if !early.Before(env.Today) {
			scheduled = early
			discount = round2(amount * pct / 100)
		}
	}
	if scheduled.Before(env.Today) {
		scheduled = env.Today
	}

	memoParts := make([]string, 0, 3)
	if invoiceID != "" {
		memoParts = append(memoParts, "Payment for invoice "+invoiceID)
	}
	if poID != "" {
		memoParts = append(memoParts, "PO "+poID)
	}
	if status := in.sub("recommendation").str(match.sub("recommendation").str("", "status"), "status"); status == "hold" {
		memoParts = append(memoParts, "match on hold, release only after approval")
	}
	memo := in.str(strings.Join(memoParts, "; "), "memo")

	payload := schema.PaymentDraftPayload{
		PaymentReference:     in.str("PAY-DRAFT-"+env.Today.Format("20060102"), "payment_reference"),
		InvoiceID:            invoiceID,
		POID:                 poID,
		SupplierID:           in.str(contextMeta(req.Contexts, "supplier_id"), "supplier_id"),
		Amount:               round2(amount),
		Currency:             currency(in.str("", "currency")),
		PaymentMethod:        enumOr(in.str("", "payment_method", "method"), "ach", "ach", "wire", "check", "card"),
		ScheduledDate:        in.date(scheduled, "scheduled_date", "payment_date"),
		EarlyPaymentDiscount: discount,
		Memo:                 memo,
	}
	return &Output{
		Summary: fmt.Sprintf("Payment %s of %.2f %s scheduled %s", payload.PaymentReference, payload.Amount, payload.Currency, payload.ScheduledDate),
		Payload: payload,
	}, nil
}
