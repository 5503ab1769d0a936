// Package chat 对话路由：关键词意图分类与依赖分发
package chat

import (
	"regexp"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/schema"
)

// Intent 对话意图
type Intent string

// 非动作类意图；动作类意图直接使用动作类型
const (
	IntentGeneralQnA   Intent = "general_qna"
	IntentWorkspaceQnA Intent = "workspace_qna"
	IntentWorkflow     Intent = "workflow"
)

// 分发类别
const (
	ClassAnswer      = "answer"
	ClassAction      = "action"
	ClassWorkflow    = "workflow"
	ClassToolRequest = "tool_request"
)

// followUpLookback 追问时回看的历史用户消息条数
const followUpLookback = 5

// Classification 分类结果
type Classification struct {
	Intent     Intent `json:"intent"`
	Class      string `json:"class"`
	ActionType string `json:"action_type,omitempty"`
	// FollowUp 意图来自历史消息
	FollowUp bool `json:"follow_up,omitempty"`
}

type intentPhrases struct {
	intent  Intent
	phrases []string
}

// 按顺序匹配，较具体的短语在前
var intentTable = []intentPhrases{
	{IntentWorkflow, []string{"start workflow", "start a workflow", "procurement workflow", "exception workflow", "procure to pay", "procure-to-pay", "kick off", "kickoff", "sourcing workflow"}},
	{Intent(schema.ActionInvoiceMismatchResolution), []string{"resolve mismatch", "resolve the mismatch", "invoice exception", "mismatch resolution", "resolve invoice", "credit note"}},
	{Intent(schema.ActionInvoiceMatch), []string{"three-way match", "three way match", "3-way match", "3 way match", "match invoice", "match the invoice", "invoice match"}},
	{Intent(schema.ActionSupplierOnboardDraft), []string{"onboard supplier", "onboard a supplier", "supplier onboarding", "new supplier", "register supplier", "onboarding"}},
	{Intent(schema.ActionCompareQuotes), []string{"compare quotes", "compare the quotes", "quote comparison", "rank quotes", "best quote", "score the quotes"}},
	{Intent(schema.ActionRFQDraft), []string{"draft a rfq", "draft an rfq", "draft rfq", "create rfq", "create an rfq", "new rfq", "request for quotation", "rfq for"}},
	{Intent(schema.ActionPODraft), []string{"draft a po", "draft po", "create po", "create a po", "purchase order draft", "draft a purchase order", "create a purchase order", "raise a po"}},
	{Intent(schema.ActionReceiptDraft), []string{"goods receipt", "receive goods", "receiving report", "grn", "draft receipt", "record receipt"}},
	{Intent(schema.ActionInvoiceDraft), []string{"draft invoice", "draft an invoice", "create invoice", "create an invoice", "invoice draft"}},
	{Intent(schema.ActionPaymentDraft), []string{"schedule payment", "payment draft", "draft payment", "pay the invoice", "pay invoice", "release payment"}},
	{Intent(schema.ActionSupplierMessage), []string{"message the supplier", "email the supplier", "write to supplier", "supplier message", "negotiate with", "follow up with supplier"}},
	{Intent(schema.ActionMaintenanceChecklist), []string{"maintenance checklist", "troubleshoot", "machine is", "pump is", "overheating", "vibration", "leaking"}},
	{Intent(schema.ActionInventoryWhatIf), []string{"what if", "what-if", "stockout", "stock out", "reorder point", "safety stock", "run out of"}},
	{Intent(schema.ActionItemDraft), []string{"new item", "create item", "draft item", "item master", "add a part", "new part", "new sku"}},
}

var (
	greetingPattern = regexp.MustCompile(`(?i)^\s*(?:hi|hello|hey|hiya|good (?:morning|afternoon|evening)|thanks|thank you|cheers)\b[\s!.,?]*$`)
	followUpPattern = regexp.MustCompile(`(?i)\b(?:update|revise|continue|change|adjust|edit|modify|redo|also|same)\b`)
	whitespace      = regexp.MustCompile(`\s+`)
)

var workspaceKeywords = []string{
	"rfq", "rfqs", "quote", "quotes", "purchase order", "purchase orders", "po", "pos",
	"invoice", "invoices", "receipt", "receipts", "payment", "payments",
	"supplier", "suppliers", "vendor", "vendors", "item", "items", "inventory", "contract", "contracts",
}

var lookupPhrases = []string{
	"how many", "list", "show me", "show all", "which", "status of", "what is the status", "find", "search", "open", "pending", "overdue",
}

func normalize(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(strings.ToLower(text), " "))
}

// containsWord 按词边界匹配单词或短语
func containsWord(text, word string) bool {
	padded := " " + strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' {
			return r
		}
		return ' '
	}, text) + " "
	return strings.Contains(padded, " "+word+" ")
}

func hasWorkspaceKeyword(text string) bool {
	for _, kw := range workspaceKeywords {
		if containsWord(text, kw) {
			return true
		}
	}
	return false
}

func hasLookupPhrase(text string) bool {
	for _, p := range lookupPhrases {
		if containsWord(text, p) {
			return true
		}
	}
	return false
}

func matchIntent(text string) (Intent, bool) {
	for _, entry := range intentTable {
		for _, phrase := range entry.phrases {
			if containsWord(text, phrase) {
				return entry.intent, true
			}
		}
	}
	return "", false
}

// Classify 纯函数分类，history 为此前的对话消息
func Classify(history []ai.Message, text string) Classification {
	text = normalize(text)
	switch {
	case text == "":
		return classification(IntentGeneralQnA, false)
	case greetingPattern.MatchString(text):
		return classification(IntentGeneralQnA, false)
	case hasWorkspaceKeyword(text) && hasLookupPhrase(text):
		return classification(IntentWorkspaceQnA, false)
	}

	if intent, ok := matchIntent(text); ok {
		return classification(intent, false)
	}

	if followUpPattern.MatchString(text) {
		seen := 0
		for i := len(history) - 1; i >= 0 && seen < followUpLookback; i-- {
			if history[i].Role != ai.RoleUser {
				continue
			}
			seen++
			if intent, ok := matchIntent(normalize(history[i].Content)); ok {
				return classification(intent, true)
			}
		}
	}

	if hasWorkspaceKeyword(text) {
		return classification(IntentWorkspaceQnA, false)
	}
	return classification(IntentGeneralQnA, false)
}

func classification(intent Intent, followUp bool) Classification {
	c := Classification{Intent: intent, FollowUp: followUp}
	switch {
	case intent == IntentGeneralQnA:
		c.Class = ClassAnswer
	case intent == IntentWorkspaceQnA:
		c.Class = ClassToolRequest
	case intent == IntentWorkflow:
		c.Class = ClassWorkflow
	case schema.IsActionType(string(intent)):
		c.Class = ClassAction
		c.ActionType = string(intent)
	default:
		c.Class = ClassAnswer
	}
	return c
}

// ForAction 动作类型对应的分类
func ForAction(actionType string) Classification {
	return classification(Intent(actionType), false)
}
