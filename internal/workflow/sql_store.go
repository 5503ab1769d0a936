package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkflowRecord SQL 存储的行，完整快照放在 JSON 列
type WorkflowRecord struct {
	ID           string         `gorm:"primaryKey;size:64"`
	Tenant       string         `gorm:"size:128;index"`
	WorkflowType string         `gorm:"size:64"`
	Status       string         `gorm:"size:32;index"`
	Snapshot     datatypes.JSON
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName 表名
func (WorkflowRecord) TableName() string {
	return "procurement_workflows"
}

// SQLStore 基于 GORM 的存储，postgres 或 sqlite
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore 创建 SQL 存储
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate 建表
func (s *SQLStore) Migrate() error {
	if err := s.db.AutoMigrate(&WorkflowRecord{}); err != nil {
		return fmt.Errorf("迁移工作流表失败: %w", err)
	}
	return nil
}

// Save 按主键 upsert
func (s *SQLStore) Save(ctx context.Context, wf *Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("序列化工作流失败: %w", err)
	}
	record := &WorkflowRecord{
		ID:           wf.ID,
		Tenant:       wf.Tenant,
		WorkflowType: wf.Type,
		Status:       string(wf.Status),
		Snapshot:     datatypes.JSON(data),
		CreatedAt:    wf.CreatedAt,
		UpdatedAt:    wf.UpdatedAt,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "snapshot", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("保存工作流失败: %w", err)
	}
	return nil
}

// Load 读取单个工作流
func (s *SQLStore) Load(ctx context.Context, id string) (*Workflow, error) {
	var record WorkflowRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("查询工作流失败: %w", err)
	}
	return decodeRecord(&record)
}

// LoadAll 读取全部工作流
func (s *SQLStore) LoadAll(ctx context.Context) ([]*Workflow, error) {
	var records []WorkflowRecord
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询工作流列表失败: %w", err)
	}
	result := make([]*Workflow, 0, len(records))
	for i := range records {
		wf, err := decodeRecord(&records[i])
		if err != nil {
			logger.Warn("跳过无法解析的工作流记录", zap.String("workflow_id", records[i].ID), zap.Error(err))
			continue
		}
		result = append(result, wf)
	}
	return result, nil
}

func decodeRecord(record *WorkflowRecord) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(record.Snapshot, &wf); err != nil {
		return nil, fmt.Errorf("解析工作流快照失败: %w", err)
	}
	if wf.ID == "" {
		wf.ID = record.ID
	}
	return &wf, nil
}
