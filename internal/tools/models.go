package tools

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ToolExecution 工具执行审计记录
type ToolExecution struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	Tenant     string `json:"tenant" gorm:"size:64;index"`
	ToolName   string `json:"toolName" gorm:"size:100;not null;index"`
	WorkflowID string `json:"workflowId,omitempty" gorm:"size:64;index"`

	// 输入输出
	Input        datatypes.JSON `json:"input"`
	Output       datatypes.JSON `json:"output"`
	ErrorMessage *string        `json:"errorMessage,omitempty" gorm:"type:text"`

	// 执行状态
	Status    string    `json:"status" gorm:"size:20;not null"` // success, failed, blocked
	StartedAt time.Time `json:"startedAt" gorm:"not null"`
	Duration  int64     `json:"duration"` // 毫秒

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}

// TableName 表名
func (ToolExecution) TableName() string {
	return "tool_executions"
}

// GormExecutionRecorder 把执行记录写入 SQL 数据库
type GormExecutionRecorder struct {
	db *gorm.DB
}

// NewGormExecutionRecorder 创建记录器，autoMigrate 时自动建表
func NewGormExecutionRecorder(db *gorm.DB, autoMigrate bool) (*GormExecutionRecorder, error) {
	if autoMigrate {
		if err := db.AutoMigrate(&ToolExecution{}); err != nil {
			return nil, fmt.Errorf("迁移 tool_executions 失败: %w", err)
		}
	}
	return &GormExecutionRecorder{db: db}, nil
}

// Record 写入一条执行记录
func (r *GormExecutionRecorder) Record(ctx context.Context, execution *ToolExecution) error {
	return r.db.WithContext(ctx).Create(execution).Error
}

// ListByTenant 按时间倒序列出租户最近的执行记录
func (r *GormExecutionRecorder) ListByTenant(ctx context.Context, tenant string, limit int) ([]ToolExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []ToolExecution
	err := r.db.WithContext(ctx).
		Where("tenant = ?", tenant).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
