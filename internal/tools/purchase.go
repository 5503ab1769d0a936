package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/schema"
)

const defaultPaymentTerms = "Net 30"

// winningQuote 从上一步的报价比较结果中取推荐供应商
func winningQuote(in args) (id, name string, price, lead float64) {
	id = in.str("", "supplier_id", "recommendation", "selected_supplier")
	rankings := in.list("rankings")
	if id == "" && len(rankings) > 0 {
		id = rankings[0].str("", "supplier_id")
	}
	for _, r := range rankings {
		if r.str("", "supplier_id") == id {
			return id, r.str(id, "supplier_name"), r.num(0, "price"), r.num(0, "lead_time_days")
		}
	}
	return id, in.str(id, "supplier_name"), 0, 0
}

func lineRef(line args, index int) string {
	return line.str(strconv.Itoa(index+1), "line_reference", "line_no", "line", "ref")
}

// PODraft 采购订单草稿
func PODraft(_ context.Context, env *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	supplierID, supplierName, quotedPrice, quotedLead := winningQuote(in)
	if supplierID == "" {
		supplierID = contextMeta(req.Contexts, "supplier_id", "supplier")
	}
	if supplierID == "" {
		supplierID = "TBD"
	}
	if supplierName == "" {
		supplierName = contextMeta(req.Contexts, "supplier_name")
	}
	if supplierName == "" {
		supplierName = supplierID
	}

	leadDays := leadTimeDays(in, int(clamp(quotedLead, 0, maxLeadDays)), "lead_time_days")
	deliveryDate := in.date(env.Today.AddDate(0, 0, leadDays), "delivery_date", "need_by")
	defaultTax := unitFraction(in.num(0, "tax_rate", "tax"))

	lines := make([]schema.POLineItem, 0)
	for i, line := range in.list("line_items", "lines") {
		qty := clamp(line.num(1, "quantity", "qty"), 0, 1e9)
		price := clamp(line.num(quotedPrice, "unit_price", "price"), 0, 1e12)
		lines = append(lines, schema.POLineItem{
			LineNo:       i + 1,
			ItemCode:     line.str(fmt.Sprintf("ITEM-%d", i+1), "item_code", "part_id", "sku"),
			Description:  line.str("", "description", "name"),
			Quantity:     qty,
			UOM:          line.str("ea", "uom"),
			UnitPrice:    round2(price),
			TaxRate:      unitFraction(line.num(defaultTax, "tax_rate", "tax")),
			LineTotal:    round2(qty * price),
			DeliveryDate: line.date(mustParse(deliveryDate), "delivery_date", "target_date"),
		})
	}
	if len(lines) == 0 {
		qty := clamp(in.num(1, "quantity", "qty"), 0, 1e9)
		price := clamp(in.num(quotedPrice, "unit_price", "price"), 0, 1e12)
		lines = append(lines, schema.POLineItem{
			LineNo:       1,
			ItemCode:     in.str("ITEM-1", "item_code", "part_id", "sku"),
			Description:  in.str(strings.TrimSpace(req.Query), "description", "item", "rfq_title"),
			Quantity:     qty,
			UOM:          in.str("ea", "uom"),
			UnitPrice:    round2(price),
			TaxRate:      defaultTax,
			LineTotal:    round2(qty * price),
			DeliveryDate: deliveryDate,
		})
	}

	var subtotal, taxTotal float64
	for _, line := range lines {
		subtotal += line.LineTotal
		taxTotal += line.LineTotal * line.TaxRate
	}

	notes := make([]string, 0, 2)
	if quotedPrice == 0 && !in.has("unit_price", "price") {
		notes = append(notes, "Unit prices not supplied; confirm pricing before issuing")
	}
	if supplierID == "TBD" {
		notes = append(notes, "Supplier not selected")
	}

	payload := schema.PODraftPayload{
		PONumber:     in.str("PO-DRAFT-"+env.Today.Format("20060102"), "po_number"),
		RFQID:        in.str(contextMeta(req.Contexts, "rfq_id"), "rfq_id", "rfq_number"),
		SupplierID:   supplierID,
		SupplierName: supplierName,
		Currency:     currency(in.str("", "currency")),
		LineItems:    lines,
		Subtotal:     round2(subtotal),
		TaxTotal:     round2(taxTotal),
		Total:        round2(subtotal + taxTotal),
		PaymentTerms: in.str(defaultPaymentTerms, "payment_terms"),
		Incoterm:     strings.ToUpper(in.str("FCA", "incoterm")),
		DeliveryDate: deliveryDate,
		Notes:        mergeUnique(maxMergedItems, in.strs("notes"), notes),
	}
	return &Output{
		Summary: fmt.Sprintf("Draft %s for %s totalling %.2f %s", payload.PONumber, supplierName, payload.Total, payload.Currency),
		Payload: payload,
	}, nil
}

// ReceiptDraft 收货单草稿
func ReceiptDraft(_ context.Context, env *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	poID := in.str("", "po_id", "po_number")
	if poID == "" {
		poID = contextMeta(req.Contexts, "po_id", "po_number")
	}

	lines := make([]schema.ReceiptLine, 0)
	discrepancies := make([]string, 0)
	status := "complete"
	for i, line := range in.list("line_items", "lines", "receipt_lines") {
		expected := clamp(line.num(0, "expected_qty", "quantity", "qty"), 0, 1e9)
		received := clamp(line.num(expected, "received_qty", "received"), 0, 1e9)
		rejected := clamp(line.num(0, "rejected_qty", "rejected"), 0, received)
		accepted := clamp(line.num(received-rejected, "accepted_qty"), 0, received)
		ref := lineRef(line, i)

		condition := "good"
		switch {
		case rejected > 0:
			condition = "damaged"
			status = "discrepancy"
			discrepancies = append(discrepancies, fmt.Sprintf("Line %s: %s rejected on inspection", ref, strconv.FormatFloat(rejected, 'f', -1, 64)))
		case received < expected:
			condition = "short"
			if status == "complete" {
				status = "partial"
			}
			discrepancies = append(discrepancies, fmt.Sprintf("Line %s: received %s of %s", ref,
				strconv.FormatFloat(received, 'f', -1, 64), strconv.FormatFloat(expected, 'f', -1, 64)))
		}
		lines = append(lines, schema.ReceiptLine{
			LineReference: ref,
			ItemCode:      line.str("", "item_code", "part_id", "sku"),
			Description:   line.str("", "description", "name"),
			ExpectedQty:   expected,
			ReceivedQty:   received,
			AcceptedQty:   accepted,
			RejectedQty:   rejected,
			Condition:     enumOr(line.str(condition, "condition"), condition, "good", "damaged", "short"),
		})
	}

	payload := schema.ReceiptDraftPayload{
		ReceiptNumber: in.str("GRN-DRAFT-"+env.Today.Format("20060102"), "receipt_number", "grn_number"),
		POID:          poID,
		ReceivedDate:  in.date(env.Today, "received_date"),
		ReceivedBy:    in.str(asArgs(req.UserContext).str("receiving", "user_name", "user_id"), "received_by"),
		LineItems:     lines,
		Status:        status,
		Discrepancies: discrepancies,
	}
	return &Output{
		Summary: fmt.Sprintf("Receipt %s drafted with %d line(s), status %s", payload.ReceiptNumber, len(lines), status),
		Payload: payload,
	}, nil
}

// InvoiceDraft 发票草稿
func InvoiceDraft(_ context.Context, env *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	defaultTax := unitFraction(in.num(0, "tax_rate", "tax"))

	lines := make([]schema.InvoiceLine, 0)
	var subtotal, taxTotal float64
	for i, line := range in.list("line_items", "lines", "invoice_lines") {
		qty := clamp(line.num(0, "quantity", "accepted_qty", "received_qty", "qty"), 0, 1e9)
		price := clamp(line.num(0, "unit_price", "price"), 0, 1e12)
		tax := unitFraction(line.num(defaultTax, "tax_rate", "tax"))
		total := round2(qty * price)
		subtotal += total
		taxTotal += total * tax
		lines = append(lines, schema.InvoiceLine{
			LineReference: lineRef(line, i),
			ItemCode:      line.str("", "item_code", "part_id", "sku"),
			Description:   line.str("", "description", "name"),
			Quantity:      qty,
			UnitPrice:     round2(price),
			TaxRate:       tax,
			LineTotal:     total,
		})
	}

	terms := in.str(defaultPaymentTerms, "payment_terms")
	invoiceDate := in.date(env.Today, "invoice_date")
	due := mustParse(invoiceDate).AddDate(0, 0, paymentTermDays(terms, 30))

	poID := in.str("", "po_id", "po_number")
	if poID == "" {
		poID = contextMeta(req.Contexts, "po_id", "po_number")
	}
	supplierID := in.str("", "supplier_id")
	if supplierID == "" {
		supplierID = contextMeta(req.Contexts, "supplier_id")
	}

	payload := schema.InvoiceDraftPayload{
		InvoiceNumber: in.str("INV-DRAFT-"+env.Today.Format("20060102"), "invoice_number"),
		POID:          poID,
		SupplierID:    supplierID,
		InvoiceDate:   invoiceDate,
		DueDate:       in.date(due, "due_date"),
		Currency:      currency(in.str("", "currency")),
		LineItems:     lines,
		Subtotal:      round2(subtotal),
		TaxTotal:      round2(taxTotal),
		Total:         round2(subtotal + taxTotal),
		PaymentTerms:  terms,
	}
	return &Output{
		Summary: fmt.Sprintf("Invoice %s drafted for %.2f %s, due %s", payload.InvoiceNumber, payload.Total, payload.Currency, payload.DueDate),
		Payload: payload,
	}, nil
}
