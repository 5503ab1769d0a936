package tools

import (
	"context"
	"testing"

	"github.com/sadhurshan/esai-sub000/internal/schema"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestGormExecutionRecorder(t *testing.T) {
	recorder, err := NewGormExecutionRecorder(openTestDB(t), true)
	require.NoError(t, err)

	exec := newTestExecutor().WithRecorder(recorder)
	exec.Registry().Replace("blocked", ToolFunc(func(ctx context.Context, env *Env, _ *Request) (*Output, error) {
		return nil, env.Sandbox.Exec(ctx, "curl")
	}))

	ctx := context.Background()
	_, err = exec.Execute(ctx, &Request{Tenant: "42", WorkflowID: "wf-1", ActionType: schema.ActionCompareQuotes, Inputs: map[string]any{"quotes": []any{}}})
	require.NoError(t, err)
	_, err = exec.Execute(ctx, &Request{Tenant: "42", ActionType: "blocked"})
	require.Error(t, err)
	_, err = exec.Execute(ctx, &Request{Tenant: "7", ActionType: schema.ActionItemDraft})
	require.NoError(t, err)

	records, err := recorder.ListByTenant(ctx, "42", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byTool := map[string]ToolExecution{}
	for _, r := range records {
		byTool[r.ToolName] = r
	}
	ok := byTool[schema.ActionCompareQuotes]
	assert.Equal(t, "success", ok.Status)
	assert.Equal(t, "wf-1", ok.WorkflowID)
	assert.Nil(t, ok.ErrorMessage)
	assert.Contains(t, string(ok.Output), "rankings")

	blocked := byTool["blocked"]
	assert.Equal(t, "blocked", blocked.Status)
	require.NotNil(t, blocked.ErrorMessage)
	assert.Contains(t, *blocked.ErrorMessage, "side effect blocked")
}
