package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/schema"
)

// 三单匹配容差
const (
	qtyTolerancePct      = 0.02
	qtyRiskPct           = 0.10
	receiptTolerancePct  = 0.02
	priceTolerancePct    = 0.01
	priceRiskPct         = 0.05
	taxInfoThreshold     = 0.005
	taxWarningThreshold  = 0.02
	minAbsoluteTolerance = 0.01
)

// 严重程度权重，用于计算处理方案置信度
var severityWeights = map[string]float64{
	"info":    0.05,
	"warning": 0.15,
	"risk":    0.35,
}

type matchLine struct {
	ref    string
	item   string
	qty    float64
	price  float64
	tax    float64
	hasTax bool
}

// lineIndex 按行号索引，物料编码作为二级查找键
type lineIndex struct {
	byRef  map[string]matchLine
	byItem map[string]matchLine
	count  int
}

func indexLines(lines []matchLine) lineIndex {
	idx := lineIndex{byRef: make(map[string]matchLine), byItem: make(map[string]matchLine), count: len(lines)}
	for _, l := range lines {
		if l.ref != "" {
			idx.byRef[l.ref] = l
		}
		if l.item != "" {
			if _, exists := idx.byItem[l.item]; !exists {
				idx.byItem[l.item] = l
			}
		}
	}
	return idx
}

func (idx lineIndex) find(l matchLine) (matchLine, bool) {
	if found, ok := idx.byRef[l.ref]; ok && l.ref != "" {
		return found, true
	}
	if found, ok := idx.byItem[l.item]; ok && l.item != "" {
		return found, true
	}
	return matchLine{}, false
}

func normalizeLines(rows []args, qtyKeys ...string) []matchLine {
	lines := make([]matchLine, 0, len(rows))
	for i, row := range rows {
		l := matchLine{
			ref:   lineRef(row, i),
			item:  strings.ToUpper(row.str("", "item_code", "part_id", "sku")),
			qty:   clamp(row.num(0, qtyKeys...), -1e9, 1e9),
			price: clamp(row.num(0, "price", "unit_price"), -1e12, 1e12),
		}
		if row.has("tax", "tax_rate") {
			l.tax = unitFraction(row.num(0, "tax", "tax_rate"))
			l.hasTax = true
		}
		lines = append(lines, l)
	}
	return lines
}

// documentLines 读取单据行：先看子对象，再看扁平的 <prefix>_lines
func documentLines(in args, prefix string, subKeys []string, qtyKeys ...string) ([]matchLine, string) {
	doc := in.sub(subKeys...)
	rows := doc.list("lines", "line_items")
	if rows == nil {
		rows = in.list(prefix + "_lines")
	}
	id := doc.str("", prefix+"_id", prefix+"_number", "id", "receipt_number", "grn_number")
	if id == "" {
		id = in.str("", prefix+"_id", prefix+"_number")
	}
	return normalizeLines(rows, qtyKeys...), id
}

func exceeds(diff, base, pct float64) bool {
	return math.Abs(diff) > math.Max(minAbsoluteTolerance, pct*math.Abs(base))
}

func formatNum(v float64) string {
	return strconv.FormatFloat(round4(v), 'f', -1, 64)
}

func threeWayMatch(invoice, po, receipt []matchLine) ([]schema.MatchMismatch, int) {
	poIdx := indexLines(po)
	receiptIdx := indexLines(receipt)
	mismatches := make([]schema.MatchMismatch, 0)
	matched := 0

	for _, inv := range invoice {
		before := len(mismatches)
		add := func(kind, severity string, expected, actual float64, detail string) {
			mismatches = append(mismatches, schema.MatchMismatch{
				LineReference: inv.ref,
				ItemCode:      inv.item,
				Type:          kind,
				Severity:      severity,
				Expected:      round4(expected),
				Actual:        round4(actual),
				Variance:      round4(actual - expected),
				Detail:        detail,
			})
		}

		poLine, ok := poIdx.find(inv)
		if !ok {
			add("missing_po_line", "risk", 0, inv.qty*inv.price,
				fmt.Sprintf("Invoice line %s has no matching purchase order line", inv.ref))
			continue
		}

		if diff := inv.qty - poLine.qty; exceeds(diff, poLine.qty, qtyTolerancePct) {
			severity := "warning"
			if poLine.qty == 0 || math.Abs(diff) > qtyRiskPct*poLine.qty {
				severity = "risk"
			}
			add("qty", severity, poLine.qty, inv.qty,
				fmt.Sprintf("Invoiced qty %s vs PO qty %s", formatNum(inv.qty), formatNum(poLine.qty)))
		}

		if receiptIdx.count > 0 {
			received := 0.0
			if rcv, ok := receiptIdx.find(inv); ok {
				received = rcv.qty
			}
			if inv.qty > received+math.Max(minAbsoluteTolerance, receiptTolerancePct*received) {
				add("receipt_qty", "warning", received, inv.qty,
					fmt.Sprintf("Invoiced qty %s exceeds received qty %s", formatNum(inv.qty), formatNum(received)))
			}
		}

		if diff := inv.price - poLine.price; exceeds(diff, poLine.price, priceTolerancePct) {
			severity := "warning"
			if poLine.price == 0 || math.Abs(diff) > priceRiskPct*poLine.price {
				severity = "risk"
			}
			add("price", severity, poLine.price, inv.price,
				fmt.Sprintf("Invoiced price %s vs PO price %s", formatNum(inv.price), formatNum(poLine.price)))
		}

		if inv.hasTax && poLine.hasTax {
			diff := math.Abs(inv.tax - poLine.tax)
			if diff > taxInfoThreshold {
				severity := "info"
				if diff > taxWarningThreshold {
					severity = "warning"
				}
				add("tax", severity, poLine.tax, inv.tax,
					fmt.Sprintf("Invoiced tax rate %s vs PO tax rate %s", formatNum(inv.tax), formatNum(poLine.tax)))
			}
		}

		if len(mismatches) == before {
			matched++
		}
	}
	return mismatches, matched
}

// InvoiceMatch 发票、采购订单、收货单三单匹配
func InvoiceMatch(_ context.Context, _ *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	invoice, invoiceID := documentLines(in, "invoice", []string{"invoice", "invoice_draft_output"}, "quantity", "qty")
	po, poID := documentLines(in, "po", []string{"po", "purchase_order", "po_draft_output"}, "quantity", "qty")
	receipt, receiptID := documentLines(in, "receipt", []string{"receipt", "receipt_draft_output"},
		"received_qty", "accepted_qty", "quantity", "qty")
	if poID == "" {
		poID = contextMeta(req.Contexts, "po_id", "po_number")
	}

	mismatches, matched := threeWayMatch(invoice, po, receipt)
	score := math.Max(0, 1-math.Min(0.8, 0.15*float64(len(mismatches))))

	rec := schema.MatchRecommendation{Status: "approve", Reason: "Invoice matches purchase order and receipt within tolerance"}
	if len(invoice) == 0 {
		rec = schema.MatchRecommendation{Status: "hold", Reason: "No invoice lines supplied"}
		score = 0
	} else if len(mismatches) > 0 {
		rec = schema.MatchRecommendation{Status: "hold", Reason: fmt.Sprintf("%d mismatch(es) require review", len(mismatches))}
	}

	payload := schema.InvoiceMatchPayload{
		InvoiceID:      invoiceID,
		POID:           poID,
		ReceiptID:      receiptID,
		MatchedLines:   matched,
		Mismatches:     mismatches,
		MatchScore:     round4(score),
		Recommendation: rec,
	}
	return &Output{
		Summary: fmt.Sprintf("Three-way match: %d of %d line(s) matched, recommendation %s", matched, len(invoice), rec.Status),
		Payload: payload,
	}, nil
}

var resolutionAliases = map[string]string{
	"hold":                "hold",
	"block":               "hold",
	"partial":             "partial_approve",
	"partial_approve":     "partial_approve",
	"approve_partial":     "partial_approve",
	"credit":              "request_credit_note",
	"credit_note":         "request_credit_note",
	"request_credit_note": "request_credit_note",
	"adjust":              "adjust_po",
	"adjust_po":           "adjust_po",
	"po_adjustment":       "adjust_po",
	"amend_po":            "adjust_po",
}

func preferredResolution(in args) string {
	pref := strings.ToLower(in.str("", "preferred_resolution", "preference", "resolution_preference"))
	pref = strings.NewReplacer(" ", "_", "-", "_").Replace(pref)
	return resolutionAliases[pref]
}

func chooseResolution(mismatches []args) string {
	hasRisk, positive, negative, qtyOnly := false, false, false, len(mismatches) > 0
	for _, m := range mismatches {
		if m.str("", "severity") == "risk" {
			hasRisk = true
		}
		v := m.num(0, "variance")
		if v > 0 {
			positive = true
		}
		if v < 0 {
			negative = true
		}
		if m.str("", "type") != "qty" && m.str("", "type") != "receipt_qty" {
			qtyOnly = false
		}
	}
	switch {
	case hasRisk || len(mismatches) >= 3:
		return "hold"
	case positive:
		return "request_credit_note"
	case qtyOnly || negative:
		return "adjust_po"
	default:
		return "partial_approve"
	}
}

func impactedLine(m args) schema.ImpactedLine {
	variance := formatNum(m.num(0, "variance"))
	line := schema.ImpactedLine{LineReference: m.str("unknown", "line_reference", "line")}
	switch m.str("", "type") {
	case "missing_po_line":
		line.Issue = "Invoice line not found on purchase order"
		line.RecommendedAction = "Confirm the line was ordered or reject it from the invoice"
	case "qty":
		line.Issue = "Invoiced quantity differs from PO quantity by " + variance
		line.RecommendedAction = "Reconcile invoiced quantity with the purchase order"
	case "receipt_qty":
		line.Issue = "Invoiced quantity exceeds received quantity by " + variance
		line.RecommendedAction = "Confirm receipt or bill only the received quantity"
	case "price":
		line.Issue = "Unit price differs from PO price by " + variance
		line.RecommendedAction = "Align pricing with the PO or obtain a price amendment"
	case "tax":
		line.Issue = "Tax rate differs from PO tax rate by " + variance
		line.RecommendedAction = "Validate tax treatment with the supplier"
	default:
		line.Issue = m.str("Unclassified mismatch", "detail")
		line.RecommendedAction = "Review line manually"
	}
	return line
}

func resolutionPlan(kind string, env *Env, variance float64) ([]schema.ResolutionAction, []string, string) {
	due := func(days int) string { return env.Today.AddDate(0, 0, days).Format(dateLayout) }
	switch kind {
	case "hold":
		return []schema.ResolutionAction{
				{Action: "Place invoice on payment hold", Owner: "accounts_payable", Detail: "Block payment until discrepancies are cleared", DueDate: due(1)},
				{Action: "Notify supplier of discrepancies", Owner: "buyer", Detail: "Share mismatch details and request corrected documents", DueDate: due(3)},
			}, []string{"Collect supplier response", "Re-run three-way match on corrected documents"},
			"Hold the invoice until high-risk discrepancies are resolved"
	case "request_credit_note":
		return []schema.ResolutionAction{
				{Action: "Request credit note from supplier", Owner: "buyer", Detail: fmt.Sprintf("Over-billed variance %s", formatNum(variance)), DueDate: due(5)},
				{Action: "Hold over-billed lines", Owner: "accounts_payable", Detail: "Release remaining lines once credit note is received", DueDate: due(1)},
			}, []string{"Track credit note receipt", "Apply credit against the invoice before payment"},
			"Request a credit note for over-billed amounts"
	case "adjust_po":
		return []schema.ResolutionAction{
				{Action: "Amend purchase order", Owner: "buyer", Detail: "Update PO lines to reflect agreed quantities or prices", DueDate: due(3)},
				{Action: "Re-run three-way match", Owner: "accounts_payable", Detail: "Validate invoice against the amended PO", DueDate: due(4)},
			}, []string{"Obtain approval for PO amendment", "Release invoice after successful match"},
			"Adjust the purchase order to reflect the invoiced values"
	default:
		return []schema.ResolutionAction{
				{Action: "Approve matched lines for payment", Owner: "accounts_payable", Detail: "Pay lines within tolerance", DueDate: due(1)},
				{Action: "Review remaining lines", Owner: "buyer", Detail: "Resolve minor discrepancies with supplier", DueDate: due(3)},
			}, []string{"Schedule payment for approved lines", "Close out remaining discrepancies"},
			"Partially approve the invoice and review minor discrepancies"
	}
}

// ResolveInvoiceMismatch 发票差异处理方案
func ResolveInvoiceMismatch(_ context.Context, env *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	mismatches := in.list("mismatches")
	if mismatches == nil {
		mismatches = in.sub("invoice_match_output").list("mismatches")
	}

	severity, variance := 0.0, 0.0
	impacted := make([]schema.ImpactedLine, 0, len(mismatches))
	for _, m := range mismatches {
		severity += severityWeights[m.str("", "severity")]
		if v := m.num(0, "variance"); v > 0 {
			variance = math.Min(variance+v, 1e15)
		}
		impacted = append(impacted, impactedLine(m))
	}
	severity = clamp(severity, 0, 1)

	kind := preferredResolution(in)
	if kind == "" {
		kind = chooseResolution(mismatches)
	}
	actions, nextSteps, summary := resolutionPlan(kind, env, variance)
	if len(mismatches) == 0 {
		nextSteps = append(nextSteps, "No mismatches supplied; confirm match result before release")
	}

	invoiceID := in.str("", "invoice_id", "invoice_number")
	if invoiceID == "" {
		invoiceID = in.sub("invoice_match_output").str("", "invoice_id")
	}

	payload := schema.InvoiceMismatchResolutionPayload{
		InvoiceID: invoiceID,
		Resolution: schema.ResolutionDecision{
			Type:       kind,
			Summary:    summary,
			Confidence: round4(math.Max(0.15, 1-severity)),
		},
		Actions:       actions,
		ImpactedLines: impacted,
		NextSteps:     nextSteps,
	}
	return &Output{
		Summary: fmt.Sprintf("Resolution %s for %d mismatch(es)", kind, len(mismatches)),
		Payload: payload,
	}, nil
}
