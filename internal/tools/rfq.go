package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/schema"
)

const maxMergedItems = 6

var (
	rfqTitlePattern    = regexp.MustCompile(`(?i)\brfq\s+for\s+([^,.;\n]+)`)
	rfqQtyPattern      = regexp.MustCompile(`(?i)\bqty\s*[:=]?\s*(\d+(?:\.\d+)?)`)
	rfqPiecesPattern   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:pcs|pieces|units|ea)\b`)
	rfqMaterialPattern = regexp.MustCompile(`(?i)\bmaterial\s*[:=]?\s*([^,.;\n]+)`)
	rfqLeadPattern     = regexp.MustCompile(`(?i)\blead\s*time\s*(?:of\s*)?(\d+)\s*(days?|weeks?)`)
	rfqDeliveryPattern = regexp.MustCompile(`(?i)\bdeliver(?:y|ed)?\s+(?:to|at)\s+([^,.;\n]+)`)
	rfqQAPattern       = regexp.MustCompile(`(?i)\b(iso\s*9001|as\s*9100|qa\s+cert\w*|certificate\s+of\s+conformance|coc)\b`)
	trailingStopWords  = regexp.MustCompile(`(?i)\s+(with|qty|material|lead|deliver\w*|by|due)\b.*$`)
)

var defaultRFQTerms = []string{
	"Quotes valid for 30 days from submission",
	"Prices must include packaging and delivery to the stated location",
	"Supplier must confirm lead time and capacity in writing",
}

var defaultRFQQuestions = []string{
	"What is your confirmed lead time for the quoted quantity?",
	"Are volume or early payment discounts available?",
}

// rfqPrompt 从自然语言中解析出的询价要素
type rfqPrompt struct {
	title    string
	qty      float64
	material string
	leadDays int
	location string
	qa       bool
}

func parseRFQPrompt(text string) rfqPrompt {
	var p rfqPrompt
	if m := rfqTitlePattern.FindStringSubmatch(text); m != nil {
		p.title = strings.TrimSpace(trailingStopWords.ReplaceAllString(m[1], ""))
	}
	if m := rfqQtyPattern.FindStringSubmatch(text); m != nil {
		p.qty, _ = strconv.ParseFloat(m[1], 64)
	} else if m := rfqPiecesPattern.FindStringSubmatch(text); m != nil {
		p.qty, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := rfqMaterialPattern.FindStringSubmatch(text); m != nil {
		p.material = strings.TrimSpace(trailingStopWords.ReplaceAllString(m[1], ""))
	}
	if m := rfqLeadPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		if strings.HasPrefix(strings.ToLower(m[2]), "week") {
			n *= 7
		}
		p.leadDays = n
	}
	if m := rfqDeliveryPattern.FindStringSubmatch(text); m != nil {
		p.location = strings.TrimSpace(trailingStopWords.ReplaceAllString(m[1], ""))
	}
	p.qa = rfqQAPattern.MatchString(text)
	return p
}

// RFQDraft 询价单草稿
func RFQDraft(_ context.Context, env *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	parsed := parseRFQPrompt(req.Query + "\n" + in.str("", "prompt", "description"))

	title := in.str(parsed.title, "rfq_title", "title")
	if title == "" {
		title = in.str("", "item", "part", "item_name")
	}
	if title == "" {
		title = "Request for Quotation"
	} else if !strings.Contains(strings.ToLower(title), "rfq") {
		title = "RFQ for " + title
	}

	leadDays := leadTimeDays(in, parsed.leadDays, "lead_time_days", "lead_time")
	qty := clamp(in.num(parsed.qty, "quantity", "qty"), 0, 1e9)
	material := in.str(parsed.material, "material")
	location := in.str(parsed.location, "delivery_location", "location")
	if location == "" {
		location = contextMeta(req.Contexts, "delivery_location", "site", "plant")
	}
	if location == "" {
		location = "To be confirmed"
	}
	qa := in.boolean(parsed.qa, "qa_certification_required", "qa_required")
	uom := in.str("ea", "uom")
	targetDate := env.Today.AddDate(0, 0, leadDays)

	lines := make([]schema.RFQLineItem, 0)
	for i, line := range in.list("line_items", "items") {
		lines = append(lines, schema.RFQLineItem{
			PartID:      line.str(fmt.Sprintf("LINE-%d", i+1), "part_id", "item_code", "sku"),
			Description: line.str(title, "description", "name"),
			Quantity:    clamp(line.num(1, "quantity", "qty"), 0, 1e9),
			UOM:         line.str(uom, "uom"),
			Material:    line.str(material, "material"),
			TargetDate:  line.date(targetDate, "target_date", "need_by"),
		})
	}
	if len(lines) == 0 {
		if qty <= 0 {
			qty = 1
		}
		lines = append(lines, schema.RFQLineItem{
			PartID:      in.str("LINE-1", "part_id", "item_code", "sku"),
			Description: strings.TrimPrefix(title, "RFQ for "),
			Quantity:    qty,
			UOM:         uom,
			Material:    material,
			TargetDate:  in.date(targetDate, "target_date", "need_by"),
		})
	}

	inferredTerms := make([]string, 0, 4)
	if qa {
		inferredTerms = append(inferredTerms, "Certificate of Conformance and QA documentation required with each shipment")
	}
	if material != "" {
		inferredTerms = append(inferredTerms, fmt.Sprintf("Material must conform to %s specification with mill certs", material))
	}
	inferredTerms = append(inferredTerms, fmt.Sprintf("Delivery required within %d days of award", leadDays))

	inferredQuestions := make([]string, 0, 3)
	if material != "" {
		inferredQuestions = append(inferredQuestions, fmt.Sprintf("Can you supply traceability for %s?", material))
	}
	if qa {
		inferredQuestions = append(inferredQuestions, "Which quality certifications do you currently hold?")
	}

	scope := in.str("", "scope_summary", "scope")
	if scope == "" {
		scope = fmt.Sprintf("Quotation requested for %s", strings.TrimPrefix(title, "RFQ for "))
		if qty > 0 {
			scope += fmt.Sprintf(" (qty %s %s)", strconv.FormatFloat(qty, 'f', -1, 64), uom)
		}
		if sources := contextTitles(req.Contexts, 3); len(sources) > 0 {
			scope += "; references: " + strings.Join(sources, ", ")
		}
	}

	payload := schema.RFQDraftPayload{
		RFQTitle:                title,
		ScopeSummary:            scope,
		LineItems:               lines,
		DeliveryLocation:        location,
		QACertificationRequired: qa,
		ResponseDueDate:         in.date(env.Today.AddDate(0, 0, 7), "response_due_date", "due_date"),
		TermsAndConditions:      mergeUnique(maxMergedItems, in.strs("terms_and_conditions", "terms"), inferredTerms, defaultRFQTerms),
		QuestionsForSuppliers:   mergeUnique(maxMergedItems, in.strs("questions_for_suppliers", "questions"), inferredQuestions, defaultRFQQuestions),
		EvaluationRubric: []schema.RubricCriterion{
			{Criterion: "price", Weight: 0.45},
			{Criterion: "lead_time", Weight: 0.20},
			{Criterion: "quality", Weight: 0.25},
			{Criterion: "risk", Weight: 0.10},
		},
	}
	return &Output{
		Summary: fmt.Sprintf("Drafted %s with %d line item(s), responses due %s", title, len(lines), payload.ResponseDueDate),
		Payload: payload,
	}, nil
}
