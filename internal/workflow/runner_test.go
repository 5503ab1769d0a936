package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/actions"
	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"
	"github.com/sadhurshan/esai-sub000/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPlanner struct {
	requests []*actions.PlanRequest
	payloads map[string]map[string]any
	err      error
}

func (p *recordingPlanner) PlanAction(_ context.Context, req *actions.PlanRequest) (*actions.Result, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	payload := p.payloads[req.ActionType]
	if payload == nil {
		payload = map[string]any{}
	}
	env := &schema.ActionEnvelope{
		ActionType:       req.ActionType,
		Summary:          "draft " + req.ActionType,
		Payload:          payload,
		Confidence:       0.55,
		NeedsHumanReview: true,
	}
	env.Normalize()
	return &actions.Result{Envelope: env, Outcome: actions.OutcomeToolOnly}, nil
}

func TestRunner_ThreadsApprovedOutputs(t *testing.T) {
	ctx := context.Background()
	e, _ := newFileEngine(t)
	planner := &recordingPlanner{payloads: map[string]map[string]any{
		schema.ActionInvoiceMatch: {
			"invoice_id": "INV-88",
			"mismatches": []any{map[string]any{"type": "qty", "line_reference": "1"}},
		},
	}}
	runner := NewRunner(e, planner)

	wf, err := e.Plan(ctx, &PlanRequest{
		Tenant:       "7",
		WorkflowType: "invoice_exception",
		Query:        "Resolve INV-88",
		Inputs:       map[string]any{"invoice_id": "INV-88-ORIGINAL", "currency": "USD"},
	})
	require.NoError(t, err)

	step, err := runner.Next(ctx, wf.ID, DraftOptions{TopK: 5})
	require.NoError(t, err)
	require.NotNil(t, step.DraftOutput)
	assert.Equal(t, schema.ActionInvoiceMatch, step.DraftOutput["action_type"])
	assert.Equal(t, wf.ID, planner.requests[0].WorkflowID)
	assert.Equal(t, 5, planner.requests[0].TopK)

	result, err := runner.Complete(ctx, wf.ID, CompleteRequest{Approval: true}, DraftOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.NextStep)
	assert.Equal(t, 1, result.NextStep.StepIndex)
	assert.NotNil(t, result.NextStep.DraftOutput)

	require.Len(t, planner.requests, 2)
	inputs := planner.requests[1].Inputs
	matchOutput, ok := inputs["invoice_match_output"].(map[string]any)
	require.True(t, ok, "前序负载放在 <action_type>_output 下")
	assert.Equal(t, "INV-88", matchOutput["invoice_id"])
	assert.NotNil(t, inputs["mismatches"], "前序顶层键补入输入")
	assert.Equal(t, "INV-88-ORIGINAL", inputs["invoice_id"], "已有输入不被覆盖")
	assert.Equal(t, "USD", inputs["currency"])
}

func TestRunner_NextReusesExistingDraft(t *testing.T) {
	ctx := context.Background()
	e, _ := newFileEngine(t)
	planner := &recordingPlanner{}
	runner := NewRunner(e, planner)
	wf := planProcurement(t, e)

	_, err := runner.Next(ctx, wf.ID, DraftOptions{})
	require.NoError(t, err)
	_, err = runner.Next(ctx, wf.ID, DraftOptions{})
	require.NoError(t, err)
	assert.Len(t, planner.requests, 1)

	_, err = runner.Next(ctx, wf.ID, DraftOptions{Refresh: true})
	require.NoError(t, err)
	assert.Len(t, planner.requests, 2)
}

func TestRunner_PlannerErrorFailsWorkflow(t *testing.T) {
	ctx := context.Background()
	e, _ := newFileEngine(t)
	runner := NewRunner(e, &recordingPlanner{err: errors.New("unknown action")})
	wf := planProcurement(t, e)

	_, err := runner.Next(ctx, wf.ID, DraftOptions{})
	var engineErr *EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "draft_step", engineErr.Op)

	got, err := e.Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Nil(t, got.CurrentStepIndex)
}

func TestRunner_RejectStopsWithoutDrafting(t *testing.T) {
	ctx := context.Background()
	e, _ := newFileEngine(t)
	planner := &recordingPlanner{}
	runner := NewRunner(e, planner)
	wf := planProcurement(t, e)

	_, err := runner.Next(ctx, wf.ID, DraftOptions{})
	require.NoError(t, err)
	result, err := runner.Complete(ctx, wf.ID, CompleteRequest{Approval: false, ApprovedBy: "buyer-2"}, DraftOptions{})
	require.NoError(t, err)

	assert.Nil(t, result.NextStep)
	assert.Equal(t, StatusRejected, result.Workflow.Status)
	assert.Len(t, planner.requests, 1)
}

type emptyRetriever struct{}

func (emptyRetriever) Retrieve(context.Context, *rag.SearchRequest, rag.PackOptions) ([]rag.ContextBlock, error) {
	return nil, nil
}

func (emptyRetriever) Revision(string) uint64 { return 0 }

// 真实编排器与内置工具走完 procurement 三步
func TestRunner_ProcurementWithOrchestrator(t *testing.T) {
	ctx := context.Background()
	e, _ := newFileEngine(t)

	schemas, err := schema.NewRegistry()
	require.NoError(t, err)
	now := func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	executor := tools.NewToolExecutor(tools.NewBuiltinRegistry()).WithClock(now)
	providers := ai.NewProviderFactoryWith(ai.ProviderDeterministic, ai.NewDeterministicProvider(ai.DefaultSummaryItems), func() (ai.Provider, error) {
		return nil, errors.New("no credentials")
	})
	orchestrator := actions.NewOrchestrator(emptyRetriever{}, executor, providers, schemas, rag.DefaultPackOptions()).WithClock(now)
	runner := NewRunner(e, orchestrator)

	wf := planProcurement(t, e)
	step, err := runner.Next(ctx, wf.ID, DraftOptions{})
	require.NoError(t, err)
	require.NotNil(t, step.DraftOutput)
	assert.Equal(t, true, step.DraftOutput["needs_human_review"])

	var result *CompleteResult
	for i := 0; i < 3; i++ {
		result, err = runner.Complete(ctx, wf.ID, CompleteRequest{Approval: true, ApprovedBy: "buyer-1"}, DraftOptions{})
		require.NoError(t, err)
		if i < 2 {
			require.NotNil(t, result.NextStep)
			assert.Equal(t, i+1, result.NextStep.StepIndex)
			assert.NotNil(t, result.NextStep.DraftOutput)
		}
	}
	assert.Equal(t, StatusCompleted, result.Workflow.Status)
	assert.Nil(t, result.Workflow.CurrentStepIndex)
	assert.Nil(t, result.NextStep)
}
