package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	response "github.com/sadhurshan/esai-sub000/api/handlers/common"
	"github.com/sadhurshan/esai-sub000/internal/schema"
	"github.com/sadhurshan/esai-sub000/internal/tools"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRecorder(t *testing.T) *tools.GormExecutionRecorder {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	recorder, err := tools.NewGormExecutionRecorder(db, true)
	require.NoError(t, err)
	return recorder
}

func setupRouter(lister ExecutionLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewExecutionHandler(lister)
	router := gin.New()
	router.GET("/tools/executions", h.List)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestList_ReturnsTenantExecutions(t *testing.T) {
	recorder := newRecorder(t)
	exec := tools.NewToolExecutor(tools.NewBuiltinRegistry()).WithRecorder(recorder)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := exec.Execute(ctx, &tools.Request{Tenant: "42", ActionType: schema.ActionCompareQuotes, Inputs: map[string]any{"quotes": []any{}}})
		require.NoError(t, err)
	}
	_, err := exec.Execute(ctx, &tools.Request{Tenant: "7", ActionType: schema.ActionCompareQuotes, Inputs: map[string]any{"quotes": []any{}}})
	require.NoError(t, err)

	router := setupRouter(recorder)

	w := get(router, "/tools/executions?tenant=42")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ExecutionListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	for _, item := range resp.Items {
		assert.Equal(t, "42", item.Tenant)
		assert.Equal(t, schema.ActionCompareQuotes, item.ToolName)
		assert.Equal(t, "success", item.Status)
	}

	w = get(router, "/tools/executions?tenant=42&limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)

	w = get(router, "/tools/executions?tenant=unknown")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"total":0}`, w.Body.String())
}

func TestList_Validation(t *testing.T) {
	router := setupRouter(newRecorder(t))

	tests := []struct {
		name   string
		path   string
		detail string
	}{
		{"missing tenant", "/tools/executions", "tenant: 必填"},
		{"non numeric limit", "/tools/executions?tenant=1&limit=abc", "limit: 必须是整数"},
		{"zero limit", "/tools/executions?tenant=1&limit=0", "limit: 不能小于 1"},
		{"limit too large", "/tools/executions?tenant=1&limit=500", "limit: 不能大于 200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, tt.path)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code)
			var resp response.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, response.CodeValidation, resp.Code)
			assert.Contains(t, resp.Details, tt.detail)
		})
	}
}

type failingLister struct{}

func (failingLister) ListByTenant(context.Context, string, int) ([]tools.ToolExecution, error) {
	return nil, errors.New("database is locked")
}

func TestList_StoreFailureIsInternal(t *testing.T) {
	w := get(setupRouter(failingLister{}), "/tools/executions?tenant=1")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "database is locked")
}
