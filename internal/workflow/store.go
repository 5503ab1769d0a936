package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/logger"

	"go.uber.org/zap"
)

// Store 工作流快照存储，每次状态变更写入完整快照
type Store interface {
	Save(ctx context.Context, wf *Workflow) error
	Load(ctx context.Context, id string) (*Workflow, error)
	// LoadAll 启动恢复；单个快照解析失败时记录日志并跳过
	LoadAll(ctx context.Context) ([]*Workflow, error)
}

// FileStore 每个工作流一个 <id>.json 文件
type FileStore struct {
	dir string
}

// NewFileStore 创建文件存储，目录不存在时自动创建
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建工作流目录失败: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: 非法工作流 ID %q", ErrInvalidArgument, id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Save 先写临时文件再 rename，读者只会看到完整快照
func (s *FileStore) Save(_ context.Context, wf *Workflow) error {
	target, err := s.path(wf.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化工作流失败: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, wf.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // rename 成功后为空操作

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入工作流快照失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("刷盘失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("替换工作流快照失败: %w", err)
	}
	return nil
}

// Load 读取单个工作流
func (s *FileStore) Load(_ context.Context, id string) (*Workflow, error) {
	target, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("读取工作流快照失败: %w", err)
	}
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("解析工作流快照失败: %w", err)
	}
	return &wf, nil
}

// LoadAll 扫描目录下全部快照
func (s *FileStore) LoadAll(ctx context.Context) ([]*Workflow, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("遍历工作流目录失败: %w", err)
	}

	result := make([]*Workflow, 0, len(files))
	for _, file := range files {
		id := strings.TrimSuffix(filepath.Base(file), ".json")
		wf, err := s.Load(ctx, id)
		if err != nil {
			logger.Warn("跳过无法加载的工作流快照", zap.String("file", file), zap.Error(err))
			continue
		}
		if wf.ID == "" {
			logger.Warn("跳过缺少 ID 的工作流快照", zap.String("file", file))
			continue
		}
		result = append(result, wf)
	}
	return result, nil
}
