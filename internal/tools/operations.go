package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/schema"
)

const maxCoverDays = 365

// SupplierMessage 供应商沟通消息草稿
func SupplierMessage(_ context.Context, env *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	supplier := in.str("", "supplier_name", "supplier")
	if supplier == "" {
		supplier = contextMeta(req.Contexts, "supplier_name", "supplier")
	}
	if supplier == "" {
		supplier = "Supplier"
	}
	tone := enumOr(in.str("", "tone"), "formal", "formal", "friendly", "firm")
	topic := in.str(strings.TrimSpace(req.Query), "topic", "goal")
	if topic == "" {
		topic = "our recent order"
	}
	points := mergeUnique(maxMergedItems, in.strs("negotiation_points", "points"))
	if len(points) == 0 {
		points = []string{"Confirm pricing and delivery schedule", "Request written confirmation of lead time"}
	}
	fallbacks := mergeUnique(maxMergedItems, in.strs("fallback_options", "fallbacks"))
	if len(fallbacks) == 0 {
		fallbacks = []string{"Split delivery across two shipments", "Source remaining quantity from an alternate supplier"}
	}
	respondBy := in.date(env.Today.AddDate(0, 0, 5), "response_requested_by", "respond_by")

	greeting := "Dear " + supplier + " team,"
	closing := "Kind regards,"
	switch tone {
	case "friendly":
		greeting = "Hi " + supplier + " team,"
		closing = "Thanks so much,"
	case "firm":
		closing = "Regards,"
	}
	var body strings.Builder
	body.WriteString(greeting + "\n\n")
	body.WriteString(fmt.Sprintf("We are writing regarding %s. Please review the following points:\n", topic))
	for _, p := range points {
		body.WriteString("- " + p + "\n")
	}
	body.WriteString(fmt.Sprintf("\nWe would appreciate your response by %s.\n\n%s\nProcurement", respondBy, closing))

	payload := schema.SupplierMessagePayload{
		SupplierName:        supplier,
		Subject:             in.str("Regarding "+topic, "subject"),
		MessageBody:         body.String(),
		Tone:                tone,
		NegotiationPoints:   points,
		FallbackOptions:     fallbacks,
		ResponseRequestedBy: respondBy,
	}
	return &Output{
		Summary: fmt.Sprintf("Drafted %s message to %s requesting response by %s", tone, supplier, respondBy),
		Payload: payload,
	}, nil
}

// 症状关键词到诊断步骤与可能原因
var symptomPlaybook = []struct {
	keywords []string
	steps    []string
	causes   []string
}{
	{
		keywords: []string{"vibration", "vibrat", "shak"},
		steps:    []string{"Measure vibration amplitude at each bearing housing", "Check mounting bolts and alignment"},
		causes:   []string{"Bearing wear", "Shaft misalignment", "Loose mounting"},
	},
	{
		keywords: []string{"leak", "drip", "seep"},
		steps:    []string{"Locate leak source with the unit depressurized", "Inspect seals, gaskets and fittings"},
		causes:   []string{"Seal degradation", "Loose fitting", "Cracked housing"},
	},
	{
		keywords: []string{"overheat", "hot", "temperature"},
		steps:    []string{"Record operating temperature against rated limits", "Check cooling airflow and lubricant level"},
		causes:   []string{"Insufficient lubrication", "Blocked cooling path", "Overload"},
	},
	{
		keywords: []string{"noise", "grind", "squeal", "knock"},
		steps:    []string{"Isolate noise location with the unit under load", "Inspect belts, gears and couplings"},
		causes:   []string{"Worn belt or gear", "Bearing failure", "Foreign object"},
	},
	{
		keywords: []string{"trip", "electrical", "power", "fault"},
		steps:    []string{"Review controller fault codes", "Check supply voltage and motor current draw"},
		causes:   []string{"Motor winding fault", "Supply imbalance", "Controller fault"},
	},
}

// MaintenanceChecklist 设备维护检查清单
func MaintenanceChecklist(_ context.Context, _ *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	symptom := in.str(strings.TrimSpace(req.Query), "symptom", "issue")
	if symptom == "" {
		symptom = "Unspecified fault"
	}
	assetID := in.str("", "asset_id", "asset", "equipment_id")
	if assetID == "" {
		assetID = contextMeta(req.Contexts, "asset_id", "equipment_id")
	}
	if assetID == "" {
		assetID = "UNKNOWN-ASSET"
	}

	lower := strings.ToLower(symptom)
	steps := []string{"Review maintenance history for " + assetID}
	causes := make([]string, 0, 4)
	for _, entry := range symptomPlaybook {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				steps = append(steps, entry.steps...)
				causes = append(causes, entry.causes...)
				break
			}
		}
	}
	if len(causes) == 0 {
		steps = append(steps, "Perform visual inspection of the asset", "Compare readings with the manufacturer baseline")
		causes = append(causes, "Wear beyond service interval", "Operating outside design parameters")
	}
	for _, title := range contextTitles(req.Contexts, 2) {
		steps = append(steps, "Follow the procedure in "+title)
	}

	payload := schema.MaintenanceChecklistPayload{
		AssetID: assetID,
		Symptom: symptom,
		SafetyNotes: mergeUnique(maxMergedItems, in.strs("safety_notes"), []string{
			"Apply lockout/tagout before opening guards",
			"Wear required PPE for the work area",
		}),
		DiagnosticSteps:    mergeUnique(8, steps),
		LikelyCauses:       mergeUnique(maxMergedItems, causes),
		RecommendedActions: mergeUnique(maxMergedItems, in.strs("recommended_actions"), []string{"Replace worn components with OEM parts", "Verify operation after repair and log findings"}),
		WhenToEscalate: []string{
			"Fault persists after recommended actions",
			"Any safety device is damaged or bypassed",
			"Repair requires parts not held in stock",
		},
	}
	return &Output{
		Summary: fmt.Sprintf("Maintenance checklist for %s covering %d diagnostic step(s)", assetID, len(payload.DiagnosticSteps)),
		Payload: payload,
	}, nil
}

// InventoryWhatIf 库存推演：再订货点、覆盖天数与断货风险
func InventoryWhatIf(_ context.Context, env *Env, req *Request) (*Output, error) {
	in := asArgs(req.Inputs)
	itemCode := in.str("", "item_code", "sku", "part_id")
	if itemCode == "" {
		itemCode = contextMeta(req.Contexts, "item_code", "sku")
	}
	if itemCode == "" {
		itemCode = "UNKNOWN-ITEM"
	}

	stock := clamp(in.num(0, "current_stock", "on_hand", "stock"), 0, 1e12)
	usage := clamp(in.num(0, "daily_usage", "usage_per_day"), 0, 1e9)
	assumptions := make([]string, 0, 4)
	if in.has("usage_change_pct") {
		change := in.num(0, "usage_change_pct")
		usage = clamp(usage*(1+change/100), 0, 1e9)
		assumptions = append(assumptions, fmt.Sprintf("Daily usage adjusted by %s%%", formatNum(change)))
	}
	lead := in.days(0, maxLeadDays, "lead_time_days", "lead_time")
	if lead <= 0 {
		lead = defaultLeadDays
		assumptions = append(assumptions, "Lead time defaulted to 14 days")
	}
	safety := math.Min(in.num(-1, "safety_stock"), 1e12)
	if safety < 0 {
		safety = usage * 7
		assumptions = append(assumptions, "Safety stock defaulted to 7 days of usage")
	}
	reviewDays := in.days(30, maxLeadDays, "review_period_days", "order_cycle_days")

	reorderPoint := usage*float64(lead) + safety
	cover := float64(maxCoverDays)
	if usage > 0 {
		cover = math.Min(stock/usage, maxCoverDays)
	} else {
		assumptions = append(assumptions, "No consumption recorded; cover capped at 365 days")
	}

	risk := "low"
	switch {
	case cover < float64(lead):
		risk = "high"
	case stock < reorderPoint:
		risk = "medium"
	}

	orderQty := 0.0
	if stock < reorderPoint || risk != "low" {
		orderQty = math.Max(0, reorderPoint+usage*float64(reviewDays)-stock)
	}
	assumptions = append(assumptions, fmt.Sprintf("Order quantity covers a %d day review period", reviewDays))

	payload := schema.InventoryWhatIfPayload{
		ItemCode:              itemCode,
		CurrentStock:          round2(stock),
		DailyUsage:            round2(usage),
		LeadTimeDays:          lead,
		SafetyStock:           round2(safety),
		ReorderPoint:          round2(reorderPoint),
		DaysOfCover:           round2(cover),
		ProjectedStockoutDate: env.Today.AddDate(0, 0, int(math.Floor(cover))).Format(dateLayout),
		StockoutRisk:          risk,
		RecommendedOrderQty:   math.Ceil(orderQty),
		Assumptions:           assumptions,
	}
	return &Output{
		Summary: fmt.Sprintf("%s has %.1f day(s) of cover; stockout risk %s", itemCode, payload.DaysOfCover, risk),
		Payload: payload,
	}, nil
}
