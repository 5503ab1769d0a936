package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		intent Intent
		class  string
	}{
		{"empty", "   ", IntentGeneralQnA, ClassAnswer},
		{"greeting", "Hello!", IntentGeneralQnA, ClassAnswer},
		{"workspace lookup", "How many open invoices do we have?", IntentWorkspaceQnA, ClassToolRequest},
		{"show me", "show me supplier ACME", IntentWorkspaceQnA, ClassToolRequest},
		{"rfq draft", "draft a rfq for 200 hex bolts", Intent(schema.ActionRFQDraft), ClassAction},
		{"three way match", "run a three-way match on INV-9", Intent(schema.ActionInvoiceMatch), ClassAction},
		{"checklist is not list", "maintenance checklist for pump 4", Intent(schema.ActionMaintenanceChecklist), ClassAction},
		{"workflow", "start a procurement workflow for valves", IntentWorkflow, ClassWorkflow},
		{"bare keyword", "thoughts on this vendor", IntentWorkspaceQnA, ClassToolRequest},
		{"general", "what does incoterms mean", IntentGeneralQnA, ClassAnswer},
		{"po is a word", "draft a policy memo", IntentGeneralQnA, ClassAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(nil, tt.text)
			assert.Equal(t, tt.intent, c.Intent)
			assert.Equal(t, tt.class, c.Class)
		})
	}
}

func TestClassify_ActionTypeSet(t *testing.T) {
	c := Classify(nil, "please schedule payment for INV-1")
	assert.Equal(t, ClassAction, c.Class)
	assert.Equal(t, schema.ActionPaymentDraft, c.ActionType)
}

func TestClassify_FollowUpRescansHistory(t *testing.T) {
	history := []ai.Message{
		{Role: ai.RoleUser, Content: "draft an rfq for gaskets"},
		{Role: ai.RoleAssistant, Content: "Here is the RFQ draft"},
		{Role: ai.RoleUser, Content: "make it 500 units"},
	}
	c := Classify(history, "revise it with a two week lead time")
	assert.Equal(t, Intent(schema.ActionRFQDraft), c.Intent)
	assert.True(t, c.FollowUp)

	// 超出回看窗口的历史不参与
	long := []ai.Message{{Role: ai.RoleUser, Content: "draft an rfq for gaskets"}}
	for i := 0; i < followUpLookback; i++ {
		long = append(long, ai.Message{Role: ai.RoleUser, Content: "ok"})
	}
	assert.Equal(t, IntentGeneralQnA, Classify(long, "continue").Intent)
}

type recordingBuilder struct {
	name  string
	calls int
	last  Classification
}

func (b *recordingBuilder) Build(_ context.Context, _ *Request, c Classification) (any, error) {
	b.calls++
	b.last = c
	return b.name, nil
}

type staticRefiner struct {
	c  Classification
	ok bool
}

func (r staticRefiner) Refine(context.Context, []ai.Message, string) (Classification, bool) {
	return r.c, r.ok
}

func TestRouter_Dispatch(t *testing.T) {
	answer := &recordingBuilder{name: "answer"}
	action := &recordingBuilder{name: "action"}
	workflow := &recordingBuilder{name: "workflow"}
	toolRequest := &recordingBuilder{name: "tool"}
	router := NewRouter(answer, action, workflow, toolRequest)

	resp, err := router.Route(context.Background(), &Request{Tenant: "1", Text: "draft an invoice for PO-7"})
	require.NoError(t, err)
	assert.Equal(t, "action", resp.Result)
	assert.Equal(t, schema.ActionInvoiceDraft, action.last.ActionType)

	resp, err = router.Route(context.Background(), &Request{Tenant: "1", Text: "list pending receipts"})
	require.NoError(t, err)
	assert.Equal(t, "tool", resp.Result)

	resp, err = router.Route(context.Background(), &Request{Tenant: "1", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Result)
	assert.Equal(t, 1, answer.calls)
}

func TestRouter_RefinerOnlyForGeneral(t *testing.T) {
	answer := &recordingBuilder{name: "answer"}
	action := &recordingBuilder{name: "action"}
	router := NewRouter(answer, action, nil, nil).
		WithRefiner(staticRefiner{c: ForAction(schema.ActionItemDraft), ok: true})

	resp, err := router.Route(context.Background(), &Request{Text: "we need a record for the new gasket"})
	require.NoError(t, err)
	assert.Equal(t, "action", resp.Result)
	assert.Equal(t, schema.ActionItemDraft, resp.ActionType)
}

func TestRouter_MissingBuilder(t *testing.T) {
	router := NewRouter(&recordingBuilder{name: "answer"}, nil, nil, nil)

	_, err := router.Route(context.Background(), &Request{Text: "start a procurement workflow"})
	assert.True(t, errors.Is(err, ErrNoBuilder))
}

func TestRouter_BuilderErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	failing := BuilderFunc(func(context.Context, *Request, Classification) (any, error) { return nil, boom })
	router := NewRouter(failing, nil, nil, nil)

	_, err := router.Route(context.Background(), &Request{Text: "hello"})
	assert.ErrorIs(t, err, boom)
}
