package chat

import (
	"context"
	"testing"

	"github.com/sadhurshan/esai-sub000/internal/actions"
	"github.com/sadhurshan/esai-sub000/internal/answer"
	"github.com/sadhurshan/esai-sub000/internal/planner"
	"github.com/sadhurshan/esai-sub000/internal/schema"
	"github.com/sadhurshan/esai-sub000/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowTypeFor(t *testing.T) {
	tests := map[string]string{
		"start a procurement workflow for valves":       WorkflowProcurement,
		"kick off procure to pay for the pump order":     WorkflowProcureToPay,
		"start workflow to pay supplier ACME":            WorkflowProcureToPay,
		"start an exception workflow for INV-88":         WorkflowInvoiceException,
		"kickoff: invoice mismatch on INV-9 needs a fix": WorkflowInvoiceException,
		"payload review workflow":                        WorkflowProcurement,
	}
	for text, want := range tests {
		assert.Equal(t, want, WorkflowTypeFor(text), text)
	}
}

type fakeAnswerer struct{ req *answer.Request }

func (f *fakeAnswerer) Answer(_ context.Context, req *answer.Request) (*schema.AnswerEnvelope, error) {
	f.req = req
	env := &schema.AnswerEnvelope{AnswerMarkdown: "ok"}
	env.Normalize()
	return env, nil
}

type fakeActions struct{ reqs []*actions.PlanRequest }

func (f *fakeActions) PlanAction(_ context.Context, req *actions.PlanRequest) (*actions.Result, error) {
	f.reqs = append(f.reqs, req)
	env := &schema.ActionEnvelope{ActionType: req.ActionType, Summary: "draft", NeedsHumanReview: true}
	env.Normalize()
	return &actions.Result{Envelope: env, Outcome: actions.OutcomeToolOnly}, nil
}

func newRunner(t *testing.T, p workflow.ActionPlanner) *workflow.Runner {
	t.Helper()
	store, err := workflow.NewFileStore(t.TempDir())
	require.NoError(t, err)
	templates, err := workflow.NewTemplateLoader()
	require.NoError(t, err)
	engine, err := workflow.NewEngine(context.Background(), store, templates)
	require.NoError(t, err)
	return workflow.NewRunner(engine, p)
}

func TestBuilders_EndToEnd(t *testing.T) {
	ctx := context.Background()
	answerer := &fakeAnswerer{}
	acts := &fakeActions{}
	catalog, err := planner.NewCatalog()
	require.NoError(t, err)
	p := planner.NewPlanner(nil, catalog, nil, planner.Options{})

	router := NewRouter(
		NewAnswerBuilder(answerer),
		NewActionBuilder(acts),
		NewWorkflowBuilder(newRunner(t, acts)),
		NewToolRequestBuilder(p),
	)

	t.Run("answer", func(t *testing.T) {
		resp, err := router.Route(ctx, &Request{Tenant: "1", Text: "what does incoterms mean"})
		require.NoError(t, err)
		assert.Equal(t, ClassAnswer, resp.Class)
		require.NotNil(t, answerer.req)
		assert.Equal(t, "what does incoterms mean", answerer.req.Query)
	})

	t.Run("action", func(t *testing.T) {
		resp, err := router.Route(ctx, &Request{Tenant: "1", Text: "please schedule payment for INV-1", Inputs: map[string]any{"invoice_id": "INV-1"}})
		require.NoError(t, err)
		env, ok := resp.Result.(*schema.ActionEnvelope)
		require.True(t, ok)
		assert.Equal(t, schema.ActionPaymentDraft, env.ActionType)
		assert.Equal(t, "INV-1", acts.reqs[len(acts.reqs)-1].Inputs["invoice_id"])
	})

	t.Run("workflow", func(t *testing.T) {
		resp, err := router.Route(ctx, &Request{Tenant: "9", Text: "start an exception workflow for INV-88"})
		require.NoError(t, err)
		assert.Equal(t, ClassWorkflow, resp.Class)
		started, ok := resp.Result.(*WorkflowStarted)
		require.True(t, ok)
		assert.Equal(t, WorkflowInvoiceException, started.Workflow.Type)
		assert.Equal(t, workflow.StatusInProgress, started.Workflow.Status)
		require.NotNil(t, started.Step)
		assert.Equal(t, schema.ActionInvoiceMatch, started.Step.ActionType)
		assert.NotNil(t, started.Step.DraftOutput)
	})

	t.Run("tool request", func(t *testing.T) {
		resp, err := router.Route(ctx, &Request{Tenant: "1", Text: "show me supplier ACME"})
		require.NoError(t, err)
		assert.Equal(t, ClassToolRequest, resp.Class)
		_, ok := resp.Result.(*planner.Plan)
		assert.True(t, ok)
	})
}
