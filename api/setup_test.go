package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	response "github.com/sadhurshan/esai-sub000/api/handlers/common"
	"github.com/sadhurshan/esai-sub000/internal/config"
	"github.com/sadhurshan/esai-sub000/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContainer(t *testing.T, mutate func(*config.Config)) *AppContainer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Workflow.StorageDir = t.TempDir()
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	container, err := NewAppContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(container.Close)
	return container
}

func send(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_Probes(t *testing.T) {
	router := SetupRouter(newTestContainer(t, nil))

	w := send(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"procurement-ai"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	w = send(router, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","database":"disabled","redis":"disabled"}`, w.Body.String())

	w = send(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "procurement_ai_api_requests_total")
}

func TestSetupRouter_IndexSearchAnswer(t *testing.T) {
	router := SetupRouter(newTestContainer(t, nil))

	w := send(router, http.MethodPost, "/answer", map[string]any{"tenant": 1, "query": "x"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "Not enough information in indexed sources.", envelope["answer_markdown"])
	assert.Equal(t, true, envelope["needs_human_review"])

	w = send(router, http.MethodPost, "/index/document", map[string]any{
		"tenant":      1,
		"doc_id":      "policy-1",
		"doc_version": "v1",
		"title":       "Supplier onboarding policy",
		"source_type": "manual",
		"mime_type":   "text/plain",
		"text":        "Suppliers must provide an ISO 9001 certificate before onboarding.",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = send(router, http.MethodPost, "/search", map[string]any{"tenant": 1, "query": "ISO 9001 certificate"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "policy-1")

	w = send(router, http.MethodDelete, "/index/document", map[string]any{"tenant": 1, "doc_id": "policy-1"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRouter_ToolRoutesRequireSQLStore(t *testing.T) {
	router := SetupRouter(newTestContainer(t, nil))
	w := send(router, http.MethodGet, "/tools/executions?tenant=1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	router = SetupRouter(newTestContainer(t, func(cfg *config.Config) {
		cfg.Workflow.Store = "sql"
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = filepath.Join(t.TempDir(), "workflows.db")
	}))
	w = send(router, http.MethodPost, "/actions/plan", map[string]any{
		"tenant":      5,
		"action_type": "compare_quotes",
		"query":       "compare the quotes",
		"inputs": map[string]any{"quotes": []any{
			map[string]any{"s": "A", "price": 100, "lead": 10, "quality": 0.9, "risk": 0.1},
			map[string]any{"s": "B", "price": 120, "lead": 8, "quality": 0.8, "risk": 0.2},
		}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = send(router, http.MethodGet, "/tools/executions?tenant=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"toolName":"compare_quotes"`)
}

func TestRecovery_ReturnsErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware(), Recovery())
	router.GET("/boom", func(*gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeInternal, resp.Code)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestSetupRouter_RateLimit(t *testing.T) {
	router := SetupRouter(newTestContainer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RPS = 0.001
		cfg.RateLimit.Burst = 1
	}))

	body := map[string]any{"tenant": 1, "query": "x"}
	require.Equal(t, http.StatusOK, send(router, http.MethodPost, "/search", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, send(router, http.MethodPost, "/search", body).Code)

	// 探针不受限流影响
	assert.Equal(t, http.StatusOK, send(router, http.MethodGet, "/health", nil).Code)
}
