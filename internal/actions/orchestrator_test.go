package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/citation"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"
	"github.com/sadhurshan/esai-sub000/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeRetriever struct {
	blocks []rag.ContextBlock
	err    error
	last   *rag.SearchRequest
}

func (f *fakeRetriever) Retrieve(_ context.Context, req *rag.SearchRequest, _ rag.PackOptions) ([]rag.ContextBlock, error) {
	f.last = req
	return f.blocks, f.err
}

func (f *fakeRetriever) Revision(string) uint64 { return 1 }

type fakeProvider struct {
	result map[string]any
	err    error
	calls  int
	last   *ai.GenerateRequest
}

func (p *fakeProvider) Name() string { return ai.ProviderExternal }

func (p *fakeProvider) GenerateAnswer(_ context.Context, req *ai.GenerateRequest) (map[string]any, error) {
	p.calls++
	p.last = req
	return p.result, p.err
}

var bracketContexts = []rag.ContextBlock{
	{DocID: "spec-1", DocVersion: "v1", ChunkID: 0, Score: 0.91, Title: "Bracket spec", Snippet: "Aluminum bracket 6061-T6, anodized, 500 pcs."},
	{DocID: "spec-1", DocVersion: "v1", ChunkID: 1, Score: 0.72, Title: "Bracket spec", Snippet: "Deliver to Plant 2 within four weeks."},
}

func newOrchestrator(t *testing.T, retriever rag.Retriever, provider ai.Provider, registry *tools.ToolRegistry) *Orchestrator {
	t.Helper()
	schemas, err := schema.NewRegistry()
	require.NoError(t, err)
	if registry == nil {
		registry = tools.NewBuiltinRegistry()
	}
	executor := tools.NewToolExecutor(registry).WithClock(func() time.Time { return fixedNow })
	factory := ai.NewProviderFactoryWith(ai.ProviderDeterministic, ai.NewDeterministicProvider(ai.DefaultSummaryItems), func() (ai.Provider, error) {
		if provider == nil {
			return nil, errors.New("OPENAI_API_KEY not set")
		}
		return provider, nil
	})
	return NewOrchestrator(retriever, executor, factory, schemas, rag.PackOptions{MaxChars: 9000, MaxChunks: 12, PerDocLimit: 4}).
		WithClock(func() time.Time { return fixedNow })
}

func rfqRequest(provider string) *PlanRequest {
	return &PlanRequest{
		Tenant:      "1",
		ActionType:  schema.ActionRFQDraft,
		Query:       "RFQ for aluminum brackets qty 500 deliver to Plant 2",
		LLMProvider: provider,
	}
}

func TestPlanAction_ToolOnlyWithDeterministicProvider(t *testing.T) {
	retriever := &fakeRetriever{blocks: bracketContexts}
	o := newOrchestrator(t, retriever, nil, nil)

	res, err := o.PlanAction(context.Background(), rfqRequest(ai.ProviderDeterministic))
	require.NoError(t, err)

	env := res.Envelope
	assert.Equal(t, OutcomeToolOnly, res.Outcome)
	assert.Equal(t, schema.ActionRFQDraft, env.ActionType)
	assert.True(t, env.NeedsHumanReview)
	assert.InDelta(t, toolConfidenceWithCitations, env.Confidence, 1e-9)
	assert.Len(t, env.Citations, 2)
	assert.Empty(t, env.Warnings)
	assert.Equal(t, DefaultTopK, retriever.last.TopK)
	assert.Contains(t, env.Payload["rfq_title"], "aluminum brackets")
}

func TestPlanAction_NoContextForcesReview(t *testing.T) {
	o := newOrchestrator(t, &fakeRetriever{}, nil, nil)

	res, err := o.PlanAction(context.Background(), rfqRequest(""))
	require.NoError(t, err)

	env := res.Envelope
	assert.True(t, env.NeedsHumanReview)
	assert.Empty(t, env.Citations)
	assert.InDelta(t, toolConfidenceNoCitations, env.Confidence, 1e-9)
	assert.Contains(t, env.Warnings, WarningInsufficientContext)
	assert.Contains(t, env.Warnings, WarningNoToolCitations)
}

func TestPlanAction_RetrievalErrorDegrades(t *testing.T) {
	o := newOrchestrator(t, &fakeRetriever{err: errors.New("vector store down")}, nil, nil)

	res, err := o.PlanAction(context.Background(), rfqRequest(""))
	require.NoError(t, err)
	assert.Contains(t, res.Envelope.Warnings, WarningRetrievalFailed)
	assert.True(t, res.Envelope.NeedsHumanReview)
}

func TestPlanAction_LLMOverridesAndCitationsEnforced(t *testing.T) {
	provider := &fakeProvider{result: map[string]any{
		"action_type": schema.ActionRFQDraft,
		"summary":     "RFQ for 500 anodized brackets",
		"payload":     map[string]any{"rfq_title": "RFQ for anodized aluminum brackets"},
		"citations": []any{
			map[string]any{"doc_id": "spec-1", "doc_version": "v1", "chunk_id": "0", "score": 0.9, "snippet": "Aluminum bracket"},
			map[string]any{"doc_id": "ghost", "doc_version": "v9", "chunk_id": 4, "score": 0.5, "snippet": "made up"},
		},
		"confidence":         0.82,
		"needs_human_review": false,
		"warnings":           []any{},
	}}
	o := newOrchestrator(t, &fakeRetriever{blocks: bracketContexts}, provider, nil)

	res, err := o.PlanAction(context.Background(), rfqRequest(ai.ProviderExternal))
	require.NoError(t, err)
	require.Equal(t, 1, provider.calls)
	assert.Equal(t, "action_"+schema.ActionRFQDraft, provider.last.SchemaName)
	assert.NotEmpty(t, provider.last.ResponseSchema)

	env := res.Envelope
	assert.Equal(t, OutcomeLLM, res.Outcome)
	assert.Equal(t, "RFQ for 500 anodized brackets", env.Summary)
	assert.Equal(t, "RFQ for anodized aluminum brackets", env.Payload["rfq_title"])
	// 工具负载中未被覆盖的字段保留
	assert.Contains(t, env.Payload, "line_items")
	require.Len(t, env.Citations, 1)
	assert.Equal(t, "spec-1", env.Citations[0].DocID)
	assert.Equal(t, 0, env.Citations[0].ChunkID)
	assert.Contains(t, env.Warnings, citation.WarningUnverified)
	assert.True(t, env.NeedsHumanReview)
	assert.InDelta(t, 0.82, env.Confidence, 1e-9)
}

func TestPlanAction_ProviderErrorFallsBackToTool(t *testing.T) {
	provider := &fakeProvider{err: errors.New("upstream 503")}
	o := newOrchestrator(t, &fakeRetriever{blocks: bracketContexts}, provider, nil)

	res, err := o.PlanAction(context.Background(), rfqRequest(ai.ProviderExternal))
	require.NoError(t, err)
	assert.Equal(t, OutcomeToolOnly, res.Outcome)
	assert.Contains(t, res.Envelope.Warnings, WarningLLMUnavailable)
	assert.True(t, res.Envelope.NeedsHumanReview)
	assert.Len(t, res.Envelope.Citations, 2)
}

func TestPlanAction_MissingCredentialsFallsBackToTool(t *testing.T) {
	o := newOrchestrator(t, &fakeRetriever{blocks: bracketContexts}, nil, nil)

	res, err := o.PlanAction(context.Background(), rfqRequest(ai.ProviderExternal))
	require.NoError(t, err)
	assert.Contains(t, res.Envelope.Warnings, WarningLLMUnavailable)
}

func TestPlanAction_InvalidLLMPayloadUsesToolPayload(t *testing.T) {
	provider := &fakeProvider{result: map[string]any{
		"summary":   "broken",
		"payload":   map[string]any{"line_items": "not a list"},
		"citations": []any{map[string]any{"doc_id": "spec-1", "doc_version": "v1", "chunk_id": 1}},
		"warnings":  []any{},
	}}
	o := newOrchestrator(t, &fakeRetriever{blocks: bracketContexts}, provider, nil)

	res, err := o.PlanAction(context.Background(), rfqRequest(ai.ProviderExternal))
	require.NoError(t, err)

	env := res.Envelope
	assert.Contains(t, env.Warnings, WarningLLMPayloadInvalid)
	assert.True(t, env.NeedsHumanReview)
	assert.IsType(t, []any{}, env.Payload["line_items"])
}

func TestPlanAction_BlockedToolReturnsPlaceholder(t *testing.T) {
	registry := tools.NewBuiltinRegistry()
	registry.Replace(schema.ActionPODraft, tools.ToolFunc(func(ctx context.Context, env *tools.Env, _ *tools.Request) (*tools.Output, error) {
		if err := env.Sandbox.HTTP(ctx, "POST", "https://erp.example/po"); err != nil {
			return nil, err
		}
		return &tools.Output{Summary: "unreachable"}, nil
	}))
	o := newOrchestrator(t, &fakeRetriever{blocks: bracketContexts}, nil, registry)

	res, err := o.PlanAction(context.Background(), &PlanRequest{Tenant: "1", ActionType: schema.ActionPODraft, Query: "draft a PO"})
	require.NoError(t, err)

	env := res.Envelope
	assert.Equal(t, OutcomePlaceholder, res.Outcome)
	assert.Contains(t, env.Warnings, "Tool po_draft failed: side effect blocked")
	assert.Contains(t, env.Warnings, WarningPlaceholderPayload)
	assert.True(t, env.NeedsHumanReview)
	assert.Equal(t, "PO-DRAFT", env.Payload["po_number"])
	assert.Equal(t, "2026-03-02", env.Payload["delivery_date"])
}

func TestPlanAction_UnknownAction(t *testing.T) {
	o := newOrchestrator(t, &fakeRetriever{}, nil, nil)

	_, err := o.PlanAction(context.Background(), &PlanRequest{Tenant: "1", ActionType: "launch_rocket"})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestMerge_LLMWinsOnPayloadKeys(t *testing.T) {
	tool := toolEnvelope(schema.ActionSupplierMessage, "tool", map[string]any{"subject": "a", "tone": "formal"}, nil)
	merged := merge(tool, map[string]any{"payload": map[string]any{"subject": "b"}, "summary": "  "})

	payload := merged["payload"].(map[string]any)
	assert.Equal(t, "b", payload["subject"])
	assert.Equal(t, "formal", payload["tone"])
	assert.Equal(t, "tool", merged["summary"])
	// 工具负载本身不被修改
	assert.Equal(t, "a", tool["payload"].(map[string]any)["subject"])
}
