package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/schema"
)

var (
	itemNamePattern     = regexp.MustCompile(`(?i)\b(?:item|part|sku)\s+(?:for\s+)?([^,.;\n]+)`)
	supplierNamePattern = regexp.MustCompile(`(?i)\bonboard(?:ing)?\s+(?:new\s+)?(?:supplier|vendor)?\s*([^,.;\n]+)`)
	nonCodeChars        = regexp.MustCompile(`[^A-Z0-9]+`)
)

func itemCodeFrom(name string) string {
	code := strings.Trim(nonCodeChars.ReplaceAllString(strings.ToUpper(name), "-"), "-")
	if len(code) > 24 {
		code = strings.TrimRight(code[:24], "-")
	}
	if code == "" {
		return "ITEM-NEW"
	}
	return "ITEM-" + code
}

func specifications(in args) []schema.ItemSpecification {
	specs := make([]schema.ItemSpecification, 0)
	for _, row := range in.list("specifications", "specs") {
		name := row.str("", "name", "key")
		if name == "" {
			continue
		}
		specs = append(specs, schema.ItemSpecification{Name: name, Value: row.str("", "value")})
	}
	if len(specs) > 0 {
		return specs
	}
	attrs := in.sub("specifications", "attributes")
	for _, key := range sortedKeys(attrs) {
		specs = append(specs, schema.ItemSpecification{Name: key, Value: toString(attrs[key])})
	}
	return specs
}

// ItemDraft 物料主数据草稿
func ItemDraft(_ context.Context, _ *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	name := in.str("", "name", "item_name")
	if name == "" {
		if m := itemNamePattern.FindStringSubmatch(req.Query); m != nil {
			name = strings.TrimSpace(m[1])
		}
	}
	if name == "" {
		name = "New item"
	}

	lead := in.days(defaultLeadDays, maxLeadDays, "lead_time_days", "lead_time")
	usage := clamp(in.num(0, "daily_usage"), 0, 1e9)
	reorder := clamp(in.num(usage*float64(lead)+usage*7, "reorder_point"), 0, 1e12)

	suppliers := in.strs("preferred_suppliers", "suppliers")
	if len(suppliers) == 0 {
		if s := contextMeta(req.Contexts, "supplier_name", "supplier"); s != "" {
			suppliers = []string{s}
		}
	}

	payload := schema.ItemDraftPayload{
		ItemCode:           in.str(itemCodeFrom(name), "item_code", "sku"),
		Name:               name,
		Description:        in.str(name, "description"),
		Category:           in.str(contextMeta(req.Contexts, "category"), "category"),
		UOM:                in.str("ea", "uom"),
		Specifications:     specifications(in),
		PreferredSuppliers: mergeUnique(maxMergedItems, suppliers),
		ReorderPoint:       round2(reorder),
		LeadTimeDays:       lead,
	}
	if payload.Category == "" {
		payload.Category = "Uncategorized"
	}
	return &Output{
		Summary: fmt.Sprintf("Item master draft %s (%s)", payload.ItemCode, name),
		Payload: payload,
	}, nil
}

// SupplierOnboardDraft 供应商准入草稿
func SupplierOnboardDraft(_ context.Context, _ *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	name := in.str("", "supplier_name", "name", "supplier")
	if name == "" {
		if m := supplierNamePattern.FindStringSubmatch(req.Query); m != nil {
			name = strings.TrimSpace(m[1])
		}
	}
	if name == "" {
		name = "New supplier"
	}
	country := strings.ToUpper(in.str("", "country"))
	email := in.str("", "contact_email", "email")
	phone := in.str("", "contact_phone", "phone")
	categories := in.strs("categories", "category")

	docs := []string{"Signed supplier code of conduct", "Bank account verification letter", "Certificate of insurance"}
	switch country {
	case "", "US", "USA":
		docs = append(docs, "W-9 form")
	default:
		docs = append(docs, "W-8BEN-E form")
	}
	for _, c := range categories {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "manufactur") || strings.Contains(lc, "machin") || strings.Contains(lc, "aerospace") {
			docs = append(docs, "ISO 9001 certificate")
			break
		}
	}

	checks := []string{"Sanctions and denied-party screening", "Tax ID validation", "Duplicate supplier check"}
	riskNotes := make([]string, 0, 3)
	if email == "" {
		riskNotes = append(riskNotes, "No contact email supplied")
	}
	if country != "" && country != "US" && country != "USA" {
		checks = append(checks, "Export control and import duty review")
		riskNotes = append(riskNotes, "Cross-border supplier; confirm incoterms and currency")
	}
	if len(categories) == 0 {
		riskNotes = append(riskNotes, "Supply categories not specified")
	}

	payload := schema.SupplierOnboardDraftPayload{
		SupplierName:      name,
		ContactEmail:      email,
		ContactPhone:      phone,
		Country:           country,
		Categories:        categories,
		RequiredDocuments: mergeUnique(8, in.strs("required_documents"), docs),
		ComplianceChecks:  mergeUnique(maxMergedItems, checks),
		RiskNotes:         riskNotes,
		NextSteps: []string{
			"Send onboarding questionnaire to " + name,
			"Collect required documents",
			"Route for procurement and finance approval",
		},
	}
	return &Output{
		Summary: fmt.Sprintf("Onboarding draft for %s requiring %d document(s)", name, len(payload.RequiredDocuments)),
		Payload: payload,
	}, nil
}
