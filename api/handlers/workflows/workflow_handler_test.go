package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/actions"
	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"
	"github.com/sadhurshan/esai-sub000/internal/tools"
	"github.com/sadhurshan/esai-sub000/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyRetriever struct{}

func (emptyRetriever) Retrieve(context.Context, *rag.SearchRequest, rag.PackOptions) ([]rag.ContextBlock, error) {
	return nil, nil
}

func (emptyRetriever) Revision(string) uint64 { return 0 }

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store, err := workflow.NewFileStore(t.TempDir())
	require.NoError(t, err)
	templates, err := workflow.NewTemplateLoader()
	require.NoError(t, err)
	engine, err := workflow.NewEngine(ctx, store, templates)
	require.NoError(t, err)

	registry, err := schema.NewRegistry()
	require.NoError(t, err)
	now := func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	providers := ai.NewProviderFactoryWith(ai.ProviderDeterministic, ai.NewDeterministicProvider(ai.DefaultSummaryItems), func() (ai.Provider, error) {
		return nil, errors.New("no credentials")
	})
	orchestrator := actions.NewOrchestrator(emptyRetriever{}, tools.NewToolExecutor(tools.NewBuiltinRegistry()).WithClock(now), providers, registry, rag.DefaultPackOptions()).WithClock(now)

	h := NewWorkflowHandler(workflow.NewRunner(engine, orchestrator))
	router := gin.New()
	router.POST("/workflows/plan", h.Plan)
	router.GET("/workflows", h.List)
	router.GET("/workflows/:id", h.Get)
	router.GET("/workflows/:id/next", h.Next)
	router.POST("/workflows/:id/complete", h.Complete)
	router.POST("/workflows/:id/abort", h.Abort)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func planProcurement(t *testing.T, router *gin.Engine) workflow.Head {
	t.Helper()
	w := do(t, router, http.MethodPost, "/workflows/plan", map[string]any{
		"tenant":        42,
		"workflow_type": "procurement",
		"goal":          "Source 500 stainless fasteners",
		"rfq_id":        "RFQ-1001",
		"inputs":        map[string]any{"quantity": 500},
		"user_context":  map[string]any{},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[workflow.Head](t, w)
}

func TestWorkflow_HappyPath(t *testing.T) {
	router := setupRouter(t)
	head := planProcurement(t, router)

	assert.Equal(t, "42", head.Tenant)
	assert.Equal(t, workflow.StatusPending, head.Status)
	assert.Equal(t, []string{"rfq_draft", "compare_quotes", "po_draft"}, head.Steps)
	require.NotNil(t, head.CurrentStepIndex)
	assert.Equal(t, 0, *head.CurrentStepIndex)

	w := do(t, router, http.MethodGet, "/workflows/"+head.ID+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	next := decode[NextStepResponse](t, w)
	require.NotNil(t, next.Step)
	assert.Equal(t, 0, next.Step.StepIndex)
	assert.Equal(t, workflow.ApprovalInProgress, next.Step.ApprovalState)
	assert.NotNil(t, next.Step.DraftOutput)
	assert.Equal(t, workflow.StatusInProgress, next.Status)

	var result workflow.CompleteResult
	for i := 0; i < 3; i++ {
		w = do(t, router, http.MethodPost, "/workflows/"+head.ID+"/complete", map[string]any{"approval": true, "approved_by": "buyer-1"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		result = decode[workflow.CompleteResult](t, w)
		if i == 0 {
			require.NotNil(t, result.Workflow.CurrentStepIndex)
			assert.Equal(t, 1, *result.Workflow.CurrentStepIndex)
			require.NotNil(t, result.NextStep)
			assert.Equal(t, "compare_quotes", result.NextStep.ActionType)
		}
	}
	assert.Equal(t, workflow.StatusCompleted, result.Workflow.Status)
	assert.Nil(t, result.Workflow.CurrentStepIndex)
	assert.Nil(t, result.NextStep)

	w = do(t, router, http.MethodGet, "/workflows/"+head.ID+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"workflow_id":"`+head.ID+`","status":"completed","step":null}`, w.Body.String())

	w = do(t, router, http.MethodGet, "/workflows/"+head.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	full := decode[workflow.Workflow](t, w)
	assert.Equal(t, "RFQ-1001", full.Inputs["rfq_id"])
	assert.Equal(t, "Source 500 stainless fasteners", full.Query)
	for _, step := range full.Steps {
		assert.Equal(t, workflow.ApprovalApproved, step.ApprovalState)
		require.NotNil(t, step.ApprovedBy)
		assert.Equal(t, "buyer-1", *step.ApprovedBy)
	}
}

func TestWorkflow_RejectTerminates(t *testing.T) {
	router := setupRouter(t)
	head := planProcurement(t, router)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/workflows/"+head.ID+"/next", nil).Code)
	w := do(t, router, http.MethodPost, "/workflows/"+head.ID+"/complete", map[string]any{"approval": false})
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[workflow.CompleteResult](t, w)
	assert.Equal(t, workflow.StatusRejected, result.Workflow.Status)
	assert.Nil(t, result.Workflow.CurrentStepIndex)

	w = do(t, router, http.MethodPost, "/workflows/"+head.ID+"/complete", map[string]any{"approval": true})
	assert.Equal(t, http.StatusBadRequest, w.Code, "终态工作流不能再审批")
}

func TestWorkflow_Errors(t *testing.T) {
	router := setupRouter(t)

	w := do(t, router, http.MethodGet, "/workflows/missing/next", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/workflows/plan", map[string]any{"tenant": 1, "workflow_type": "unknown_flow"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPost, "/workflows/plan", map[string]any{"tenant": 1, "steps": []any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "零步骤工作流必须失败")

	head := planProcurement(t, router)
	w = do(t, router, http.MethodPost, "/workflows/"+head.ID+"/complete", map[string]any{"approved_by": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "approval 必填")

	w = do(t, router, http.MethodPost, "/workflows/"+head.ID+"/complete", map[string]any{"approval": true})
	assert.Equal(t, http.StatusBadRequest, w.Code, "步骤未激活")
}

func TestWorkflow_ExplicitStepsListAndAbort(t *testing.T) {
	router := setupRouter(t)

	w := do(t, router, http.MethodPost, "/workflows/plan", map[string]any{
		"tenant": "7",
		"query":  "Pay the supplier",
		"steps":  []any{"invoice_match", map[string]any{"action_type": "payment_draft", "name": "Schedule payment"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	head := decode[workflow.Head](t, w)
	assert.Equal(t, workflow.CustomWorkflowType, head.Type)
	assert.Equal(t, []string{"invoice_match", "payment_draft"}, head.Steps)

	w = do(t, router, http.MethodGet, "/workflows?tenant=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ListResponse](t, w)
	assert.Equal(t, 1, list.Total)

	w = do(t, router, http.MethodGet, "/workflows", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPost, "/workflows/"+head.ID+"/abort", map[string]any{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, w.Code)
	aborted := decode[workflow.Workflow](t, w)
	assert.Equal(t, workflow.StatusAborted, aborted.Status)
	assert.Equal(t, "duplicate", aborted.AbortReason)
	assert.Nil(t, aborted.CurrentStepIndex)

	w = do(t, router, http.MethodPost, "/workflows/"+head.ID+"/abort", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
