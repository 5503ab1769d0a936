package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sadhurshan/esai-sub000/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix = "workflow:"
	redisIndexKey  = "workflow:index"
)

// RedisStore 快照存成 JSON 字符串，另维护一个 ID 集合用于启动恢复
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) key(id string) string {
	return redisKeyPrefix + id
}

// Save 快照与索引在同一事务内写入，不设过期
func (s *RedisStore) Save(ctx context.Context, wf *Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("序列化工作流失败: %w", err)
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(wf.ID), data, 0)
		pipe.SAdd(ctx, redisIndexKey, wf.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("保存工作流失败: %w", err)
	}
	return nil
}

// Load 读取单个工作流
func (s *RedisStore) Load(ctx context.Context, id string) (*Workflow, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("获取工作流失败: %w", err)
	}
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("解析工作流快照失败: %w", err)
	}
	return &wf, nil
}

// LoadAll 按索引集合批量读取
func (s *RedisStore) LoadAll(ctx context.Context) ([]*Workflow, error) {
	ids, err := s.redis.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("读取工作流索引失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	result := make([]*Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := s.Load(ctx, id)
		if err != nil {
			logger.Warn("跳过无法加载的工作流快照", zap.String("workflow_id", id), zap.Error(err))
			continue
		}
		result = append(result, wf)
	}
	return result, nil
}
