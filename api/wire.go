package api

import (
	"context"
	"fmt"
	"time"

	actionHandlers "github.com/sadhurshan/esai-sub000/api/handlers/actions"
	copilotHandlers "github.com/sadhurshan/esai-sub000/api/handlers/copilot"
	knowledgeHandlers "github.com/sadhurshan/esai-sub000/api/handlers/knowledge"
	toolHandlers "github.com/sadhurshan/esai-sub000/api/handlers/tools"
	"github.com/sadhurshan/esai-sub000/api/handlers/workflows"
	"github.com/sadhurshan/esai-sub000/internal/actions"
	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/answer"
	"github.com/sadhurshan/esai-sub000/internal/cache"
	"github.com/sadhurshan/esai-sub000/internal/chat"
	"github.com/sadhurshan/esai-sub000/internal/config"
	"github.com/sadhurshan/esai-sub000/internal/infra"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/planner"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"
	"github.com/sadhurshan/esai-sub000/internal/tools"
	"github.com/sadhurshan/esai-sub000/internal/workflow"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 组合根，所有单例在启动时创建一次
type AppContainer struct {
	Config      *config.Config
	DB          *gorm.DB
	RedisClient redis.UniversalClient

	ResponseCache cache.Cache
	Schemas       *schema.Registry
	RAGService    *rag.RAGService
	Providers     *ai.ProviderFactory
	ToolExecutor  *tools.ToolExecutor
	ToolRecorder  *tools.GormExecutionRecorder
	Orchestrator  *actions.Orchestrator
	AnswerService *answer.Service
	Planner       *planner.Planner
	ChatRouter    *chat.Router
	WorkflowRun   *workflow.Runner

	stopPurge context.CancelFunc
}

// Handlers HTTP 处理器集合
type Handlers struct {
	Documents *knowledgeHandlers.DocumentHandler
	Search    *knowledgeHandlers.SearchHandler
	Actions   *actionHandlers.ActionHandler
	Workflows *workflows.WorkflowHandler
	Copilot   *copilotHandlers.CopilotHandler
	Tools     *toolHandlers.ExecutionHandler
}

// NewAppContainer 按配置初始化全部依赖
func NewAppContainer(ctx context.Context, cfg *config.Config) (*AppContainer, error) {
	c := &AppContainer{Config: cfg}

	if err := c.initRedis(ctx); err != nil {
		return nil, err
	}
	if err := c.initDatabase(); err != nil {
		return nil, err
	}
	c.initCache(ctx)

	if err := c.initRAG(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initActions(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initWorkflow(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initCopilot(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// InitHandlers 创建处理器
func (c *AppContainer) InitHandlers() *Handlers {
	h := &Handlers{
		Documents: knowledgeHandlers.NewDocumentHandler(c.RAGService),
		Search:    knowledgeHandlers.NewSearchHandler(c.RAGService, c.AnswerService),
		Actions:   actionHandlers.NewActionHandler(c.Orchestrator),
		Workflows: workflows.NewWorkflowHandler(c.WorkflowRun),
		Copilot:   copilotHandlers.NewCopilotHandler(c.Planner, c.ChatRouter),
	}
	if c.ToolRecorder != nil {
		h.Tools = toolHandlers.NewExecutionHandler(c.ToolRecorder)
	}
	return h
}

// Close 释放外部连接
func (c *AppContainer) Close() {
	if c.stopPurge != nil {
		c.stopPurge()
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			logger.Warn("关闭 Redis 失败", zap.Error(err))
		}
	}
	if err := infra.CloseDatabase(c.DB); err != nil {
		logger.Warn("关闭数据库失败", zap.Error(err))
	}
}

// --- 内部初始化方法 ---

func (c *AppContainer) initRedis(ctx context.Context) error {
	cfg := c.Config
	needRedis := cfg.Redis.Enabled || cfg.Workflow.Store == "redis" || cfg.Cache.Backend == "redis"
	if !needRedis {
		return nil
	}

	rdb, err := infra.NewRedis(ctx, &cfg.Redis)
	if err != nil {
		// Redis 存储工作流时不可降级
		if cfg.Workflow.Store == "redis" {
			return fmt.Errorf("初始化 Redis 失败: %w", err)
		}
		logger.Warn("Redis 不可用，缓存退回进程内实现", zap.Error(err))
		return nil
	}
	c.RedisClient = rdb
	return nil
}

func (c *AppContainer) initDatabase() error {
	if c.Config.Workflow.Store != "sql" {
		return nil
	}
	db, err := infra.OpenDatabase(&c.Config.Database)
	if err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	c.DB = db
	return nil
}

func (c *AppContainer) initCache(ctx context.Context) {
	ttl := time.Duration(c.Config.Cache.TTLSeconds) * time.Second
	if c.Config.Cache.Backend == "redis" && c.RedisClient != nil {
		c.ResponseCache = cache.NewRedisCache(c.RedisClient, "answer:", ttl)
		return
	}

	c.ResponseCache = cache.NewMemoryCache(ttl)
	purgeCtx, cancel := context.WithCancel(ctx)
	c.stopPurge = cancel
	go c.purgeLoop(purgeCtx, ttl)
}

// purgeLoop 定期清理进程内缓存的过期条目
func (c *AppContainer) purgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := c.ResponseCache.Purge(ctx); err != nil {
				logger.Warn("清理响应缓存失败", zap.Error(err))
			} else if n > 0 {
				logger.Debug("已清理过期缓存", zap.Int("count", n))
			}
		}
	}
}

func (c *AppContainer) initRAG() error {
	ragCfg := c.Config.RAG
	chunker, err := rag.NewChunker(ragCfg.Chunk.MaxChars, ragCfg.Chunk.Overlap)
	if err != nil {
		return fmt.Errorf("初始化分块器失败: %w", err)
	}

	embedder, err := ai.NewEmbeddingProvider(ai.EmbeddingConfig{
		Provider:   ragCfg.Embedding.Provider,
		BaseURL:    ragCfg.Embedding.BaseURL,
		APIKey:     ragCfg.Embedding.APIKey,
		Model:      ragCfg.Embedding.Model,
		Dimensions: ragCfg.Embedding.Dimensions,
		BatchSize:  ragCfg.Embedding.BatchSize,
		Timeout:    time.Duration(ragCfg.Embedding.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("初始化向量化服务失败: %w", err)
	}
	if ragCfg.Embedding.CacheEnabled {
		embedder = rag.NewCachedEmbeddingProvider(embedder, rag.NewEmbeddingCache(c.RedisClient, "emb:", 0))
		logger.Info("向量缓存已启用", zap.Bool("redis_l2", c.RedisClient != nil))
	}

	c.RAGService = rag.NewRAGService(rag.NewMemoryVectorStore(), embedder, chunker)
	return nil
}

func (c *AppContainer) initActions() error {
	cfg := c.Config
	schemas, err := schema.NewRegistry()
	if err != nil {
		return fmt.Errorf("初始化 schema 注册表失败: %w", err)
	}
	c.Schemas = schemas

	c.Providers = ai.NewProviderFactory(cfg.LLM.DefaultProvider, ai.OpenAIConfig{
		APIKey:           cfg.LLM.APIKey,
		BaseURL:          cfg.LLM.BaseURL,
		Model:            cfg.LLM.Model,
		Timeout:          time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxOutputTokens:  cfg.LLM.MaxOutputTokens,
		Temperature:      cfg.LLM.Temperature,
		MaxRetries:       cfg.LLM.MaxRetries,
		SafetyIdentifier: cfg.LLM.SafetyIdentifier,
	}, c.tokenCounter())

	c.ToolExecutor = tools.NewToolExecutor(tools.NewBuiltinRegistry())
	if c.DB != nil {
		recorder, err := tools.NewGormExecutionRecorder(c.DB, cfg.Database.AutoMigrate)
		if err != nil {
			return err
		}
		c.ToolRecorder = recorder
		c.ToolExecutor.WithRecorder(recorder)
	}

	c.Orchestrator = actions.NewOrchestrator(c.RAGService, c.ToolExecutor, c.Providers, schemas, packOptions(cfg.RAG.Action))
	c.AnswerService = answer.NewService(c.RAGService, c.Providers, schemas, c.ResponseCache, packOptions(cfg.RAG.Answer))
	return nil
}

func (c *AppContainer) initWorkflow(ctx context.Context) error {
	cfg := c.Config.Workflow
	templates, err := workflow.NewTemplateLoader()
	if err != nil {
		return err
	}
	if cfg.TemplatesPath != "" {
		if err := templates.LoadFromFile(cfg.TemplatesPath); err != nil {
			return fmt.Errorf("加载工作流模板失败: %w", err)
		}
	}

	var store workflow.Store
	switch cfg.Store {
	case "sql":
		sqlStore := workflow.NewSQLStore(c.DB)
		if c.Config.Database.AutoMigrate {
			if err := sqlStore.Migrate(); err != nil {
				return err
			}
		}
		store = sqlStore
	case "redis":
		store = workflow.NewRedisStore(c.RedisClient)
	default:
		fileStore, err := workflow.NewFileStore(cfg.StorageDir)
		if err != nil {
			return err
		}
		store = fileStore
	}

	engine, err := workflow.NewEngine(ctx, store, templates)
	if err != nil {
		return err
	}
	c.WorkflowRun = workflow.NewRunner(engine, c.Orchestrator)
	logger.Info("工作流引擎已就绪", zap.String("store", cfg.Store), zap.Strings("templates", templates.Types()))
	return nil
}

func (c *AppContainer) initCopilot() error {
	cfg := c.Config
	catalog, err := planner.NewCatalog()
	if err != nil {
		return fmt.Errorf("初始化函数目录失败: %w", err)
	}

	var client ai.ChatCompletionClient
	if cfg.LLM.DefaultProvider == ai.ProviderExternal {
		oc, err := ai.NewOpenAIClient(ai.ProviderExternal, ai.ClientConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			logger.Warn("意图规划模型不可用，使用关键词规划", zap.Error(err))
		} else {
			client = oc
		}
	}

	c.Planner = planner.NewPlanner(client, catalog, c.tokenCounter(), planner.Options{
		Model:            cfg.LLM.Model,
		Temperature:      cfg.LLM.Temperature,
		ContextMessages:  cfg.Planner.ContextMessages,
		MaxHistoryTokens: cfg.Planner.MaxHistoryTokens,
		Timeout:          time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	c.ChatRouter = chat.NewRouter(
		chat.NewAnswerBuilder(c.AnswerService),
		chat.NewActionBuilder(c.Orchestrator),
		chat.NewWorkflowBuilder(c.WorkflowRun),
		chat.NewToolRequestBuilder(c.Planner),
	).WithRefiner(chat.NewPlannerRefiner(c.Planner))
	return nil
}

func (c *AppContainer) tokenCounter() ai.TokenCounter {
	counter, err := ai.NewTiktokenCounter(c.Config.LLM.Model)
	if err != nil {
		logger.Warn("tiktoken 编码不可用，使用估算计数", zap.Error(err))
		return ai.EstimateCounter{}
	}
	return counter
}

func packOptions(p config.PackConfig) rag.PackOptions {
	return rag.PackOptions{MaxChars: p.MaxChars, MaxChunks: p.MaxChunks, PerDocLimit: p.PerDocLimit}
}
