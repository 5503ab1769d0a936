package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/metrics"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// 规划结果类别
const (
	PlanKindTool          = "tool"
	PlanKindPlan          = "plan"
	PlanKindClarification = "clarification"
	PlanKindMessage       = "message"
)

const clarificationTool = "clarification"

const plannerSystemPrompt = "You are the procurement copilot router. Always respond by calling exactly one function. " +
	"Use draft tools when the user asks to draft, create, make or start a document. " +
	"Use workspace search or get tools only when the user asks to find, search, list or show existing records. " +
	"Use copilot__plan when the request clearly needs several tools in sequence. Never invent ids."

const fallbackMessage = "I could not map that request to a procurement tool. Could you rephrase what you need?"

// Step 计划中的一步
type Step struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Plan 规划结果
// Tool 为 nil 时表示纯文本回复
type Plan struct {
	Tool        *string        `json:"tool"`
	Args        map[string]any `json:"args,omitempty"`
	Steps       []Step         `json:"steps,omitempty"`
	TargetTool  string         `json:"target_tool,omitempty"`
	MissingArgs []string       `json:"missing_args,omitempty"`
	Question    string         `json:"question,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// Kind 结果类别
func (p *Plan) Kind() string {
	switch {
	case p.Tool == nil:
		return PlanKindMessage
	case *p.Tool == PlanToolName:
		return PlanKindPlan
	case *p.Tool == clarificationTool:
		return PlanKindClarification
	default:
		return PlanKindTool
	}
}

func toolPlan(name string, args map[string]any) *Plan {
	if args == nil {
		args = map[string]any{}
	}
	return &Plan{Tool: &name, Args: args}
}

func messagePlan(message string) *Plan {
	return &Plan{Message: message}
}

func clarificationPlan(target *FunctionSpec, missing []string, args map[string]any) *Plan {
	name := clarificationTool
	if args == nil {
		args = map[string]any{}
	}
	return &Plan{
		Tool:        &name,
		TargetTool:  target.Name,
		MissingArgs: missing,
		Question:    clarificationQuestion(target, missing),
		Args:        args,
	}
}

func clarificationQuestion(target *FunctionSpec, missing []string) string {
	labels := make([]string, len(missing))
	for i, m := range missing {
		labels[i] = strings.ReplaceAll(m, "_", " ")
	}
	return fmt.Sprintf("To %s, I need the following: %s. Could you provide them?",
		strings.ToLower(strings.TrimSuffix(target.Description, ".")), strings.Join(labels, ", "))
}

var (
	politePrefix = `^\s*(?:(?:please|pls|kindly|can you|could you|would you|help me|i want to|i'd like to|let's|lets)\s+)*`
	draftVerb    = regexp.MustCompile(`(?i)` + politePrefix + `(?:draft|create|make|start)\b`)
	searchVerb   = regexp.MustCompile(`(?i)` + politePrefix + `(?:find|search|list|show)\b`)

	// 关键词按顺序匹配，供应商准入短语优先于 supplier 单词
	draftKeywords = []struct {
		pattern *regexp.Regexp
		tool    string
	}{
		{regexp.MustCompile(`(?i)\b(?:onboard(?:ing)?|new supplier|register (?:a )?supplier|supplier registration)\b`), "build_supplier_onboard_draft"},
		{regexp.MustCompile(`(?i)\brfqs?\b|request for quot`), "build_rfq_draft"},
		{regexp.MustCompile(`(?i)\bpurchase orders?\b|\bpos?\b`), "build_po_draft"},
		{regexp.MustCompile(`(?i)\binvoices?\b`), "build_invoice_draft"},
		{regexp.MustCompile(`(?i)\b(?:items?|parts?|skus?)\b`), "build_item_draft"},
	}
)

// IsDraftRequest 以草稿动词开头且不以检索动词开头
func IsDraftRequest(prompt string) bool {
	return draftVerb.MatchString(prompt) && !searchVerb.MatchString(prompt)
}

// closestDraftTool 按关键词找到最接近的草稿工具
func closestDraftTool(prompt string) string {
	for _, kw := range draftKeywords {
		if kw.pattern.MatchString(prompt) {
			return kw.tool
		}
	}
	return ""
}

// Options 规划器配置
type Options struct {
	Model            string
	Temperature      float32
	ContextMessages  int
	MaxHistoryTokens int
	Timeout          time.Duration
}

// Planner 意图规划器，请求之间无状态
type Planner struct {
	client  ai.ChatCompletionClient
	catalog *Catalog
	tokens  ai.TokenCounter
	opts    Options
}

// NewPlanner 创建规划器；client 为 nil 时只使用关键词规划
func NewPlanner(client ai.ChatCompletionClient, catalog *Catalog, tokens ai.TokenCounter, opts Options) *Planner {
	if opts.ContextMessages <= 0 {
		opts.ContextMessages = 8
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if tokens == nil {
		tokens = ai.EstimateCounter{}
	}
	return &Planner{client: client, catalog: catalog, tokens: tokens, opts: opts}
}

// HasModel 是否配置了模型
func (p *Planner) HasModel() bool {
	return p.client != nil
}

// Catalog 函数目录
func (p *Planner) Catalog() *Catalog {
	return p.catalog
}

// Plan 规划用户输入；模型不可用时回落到关键词规划，不返回错误
func (p *Planner) Plan(ctx context.Context, history []ai.Message, prompt string) *Plan {
	plan := p.plan(ctx, history, prompt)
	metrics.IntentPlansTotal.WithLabelValues(plan.Kind()).Inc()
	return plan
}

func (p *Planner) plan(ctx context.Context, history []ai.Message, prompt string) *Plan {
	log := logger.WithContext(ctx)
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return messagePlan(fallbackMessage)
	}
	if p.client == nil {
		return p.heuristic(prompt)
	}

	req := p.buildRequest(history, prompt)
	callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(callCtx, req)
	metrics.ModelCallDuration.WithLabelValues(ai.ProviderExternal, p.opts.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues(ai.ProviderExternal, p.opts.Model, "error").Inc()
		log.Warn("意图规划模型调用失败，使用关键词规划", zap.Error(err))
		return p.heuristic(prompt)
	}
	metrics.ModelCallsTotal.WithLabelValues(ai.ProviderExternal, p.opts.Model, "ok").Inc()

	name, rawArgs, content := firstCall(resp)
	if name == "" {
		if strings.TrimSpace(content) != "" {
			return messagePlan(strings.TrimSpace(content))
		}
		return messagePlan(fallbackMessage)
	}

	args := map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		decoded, err := ai.DecodeObject(rawArgs)
		if err != nil {
			log.Warn("函数参数解析失败", zap.String("tool", name), zap.Error(err))
		} else if decoded != nil {
			args = decoded
		}
	}
	return p.resolve(ctx, prompt, DecodeName(name), args)
}

// resolve 对模型选择的工具应用路由保护、计划过滤与缺参澄清
func (p *Planner) resolve(ctx context.Context, prompt, name string, args map[string]any) *Plan {
	spec, ok := p.catalog.Get(name)
	if !ok {
		logger.WithContext(ctx).Warn("模型返回了未知工具", zap.String("tool", name))
		return messagePlan(fallbackMessage)
	}

	if spec.Kind == KindPlan {
		steps := p.filterSteps(args["steps"])
		if len(steps) == 0 {
			return messagePlan(fallbackMessage)
		}
		planName := PlanToolName
		return &Plan{Tool: &planName, Steps: steps}
	}

	if (spec.Kind == KindSearch || spec.Kind == KindGet) && IsDraftRequest(prompt) {
		if target, ok := p.catalog.Get(closestDraftTool(prompt)); ok {
			return clarificationPlan(target, append([]string(nil), target.Required...), map[string]any{})
		}
	}

	if missing := spec.MissingArgs(args); len(missing) > 0 {
		return clarificationPlan(spec, missing, args)
	}
	if err := spec.ValidateArgs(args); err != nil {
		logger.WithContext(ctx).Warn("函数参数未通过校验", zap.String("tool", spec.Name), zap.Error(err))
		return clarificationPlan(spec, append([]string(nil), spec.Required...), args)
	}
	return toolPlan(spec.Name, args)
}

func (p *Planner) filterSteps(raw any) []Step {
	items, _ := raw.([]any)
	steps := make([]Step, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["tool"].(string)
		name = DecodeName(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, known := p.catalog.Get(name); !known || name == PlanToolName {
			continue
		}
		args, _ := m["args"].(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		steps = append(steps, Step{Tool: name, Args: args})
	}
	return steps
}

// heuristic 无模型时：草稿请求按关键词给出澄清，其余返回提示
func (p *Planner) heuristic(prompt string) *Plan {
	if IsDraftRequest(prompt) {
		if target, ok := p.catalog.Get(closestDraftTool(prompt)); ok {
			return clarificationPlan(target, append([]string(nil), target.Required...), map[string]any{})
		}
	}
	return messagePlan(fallbackMessage)
}

func (p *Planner) buildRequest(history []ai.Message, prompt string) openai.ChatCompletionRequest {
	if len(history) > p.opts.ContextMessages {
		history = history[len(history)-p.opts.ContextMessages:]
	}
	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: plannerSystemPrompt})
	for _, m := range history {
		if m.Role == ai.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: prompt})
	messages = ai.TrimHistory(p.tokens, messages, p.opts.MaxHistoryTokens)
	metrics.PromptTokens.WithLabelValues("planner").Observe(float64(ai.CountMessages(p.tokens, messages)))

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	names := p.catalog.Names()
	tools := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		spec, _ := p.catalog.Get(name)
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.WireName(),
				Description: spec.Description,
				Parameters:  spec.parametersJSON(),
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:       p.opts.Model,
		Messages:    chatMessages,
		Temperature: p.opts.Temperature,
		Tools:       tools,
		ToolChoice:  "required",
	}
}

// firstCall 取第一个工具调用，兼容旧版 function_call
func firstCall(resp openai.ChatCompletionResponse) (name, args, content string) {
	if len(resp.Choices) == 0 {
		return "", "", ""
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		return msg.ToolCalls[0].Function.Name, msg.ToolCalls[0].Function.Arguments, msg.Content
	}
	if msg.FunctionCall != nil {
		return msg.FunctionCall.Name, msg.FunctionCall.Arguments, msg.Content
	}
	return "", "", msg.Content
}
