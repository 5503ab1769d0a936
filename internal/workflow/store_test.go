package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func sampleWorkflow(id string) *Workflow {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &Workflow{
		ID:               id,
		Type:             "invoice_exception",
		Tenant:           "7",
		Query:            "Resolve INV-88",
		Inputs:           map[string]any{"invoice_id": "INV-88"},
		UserContext:      map[string]any{},
		Metadata:         map[string]any{},
		CurrentStepIndex: intPtr(0),
		Status:           StatusPending,
		Steps: []*Step{{
			StepIndex:     0,
			Name:          "Three-way match",
			ActionType:    "invoice_match",
			ApprovalState: ApprovalPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	wf := sampleWorkflow("wf-a")
	require.NoError(t, store.Save(ctx, wf))
	wf.Status = StatusInProgress
	require.NoError(t, store.Save(ctx, wf))

	got, err := store.Load(ctx, "wf-a")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, "INV-88", got.Inputs["invoice_id"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "临时文件不应残留")
	assert.Equal(t, "wf-a.json", entries[0].Name())
}

func TestFileStore_Errors(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(ctx, "nope")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	err = store.Save(ctx, sampleWorkflow("../escape"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFileStore_LoadAllSkipsUnparseable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, sampleWorkflow("wf-1")))
	require.NoError(t, store.Save(ctx, sampleWorkflow("wf-2")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wf-3.json"), []byte("[]garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, wf := range all {
		ids = append(ids, wf.ID)
	}
	assert.ElementsMatch(t, []string{"wf-1", "wf-2"}, ids)
}

func setupSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:workflow_store_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "打开 sqlite 失败")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store := NewSQLStore(db)
	require.NoError(t, store.Migrate())
	return store
}

func TestSQLStore_UpsertAndLoad(t *testing.T) {
	ctx := context.Background()
	store := setupSQLStore(t)

	wf := sampleWorkflow("wf-sql")
	require.NoError(t, store.Save(ctx, wf))

	wf.Status = StatusCompleted
	wf.CurrentStepIndex = nil
	wf.Steps[0].ApprovalState = ApprovalApproved
	require.NoError(t, store.Save(ctx, wf))

	got, err := store.Load(ctx, "wf-sql")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Nil(t, got.CurrentStepIndex)
	assert.Equal(t, ApprovalApproved, got.Steps[0].ApprovalState)

	var count int64
	require.NoError(t, store.db.Model(&WorkflowRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestSQLStore_LoadAllSkipsBrokenSnapshot(t *testing.T) {
	ctx := context.Background()
	store := setupSQLStore(t)

	require.NoError(t, store.Save(ctx, sampleWorkflow("wf-1")))
	require.NoError(t, store.db.Create(&WorkflowRecord{ID: "wf-bad", Snapshot: []byte(`"not an object"`)}).Error)

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "wf-1", all[0].ID)
}

func TestSQLStore_BacksEngine(t *testing.T) {
	ctx := context.Background()
	store := setupSQLStore(t)
	e := newTestEngine(t, store)
	wf := planProcurement(t, e)

	_, err := e.GetNextStep(ctx, wf.ID)
	require.NoError(t, err)

	restarted := newTestEngine(t, store)
	got, err := restarted.Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
}
