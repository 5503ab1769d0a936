package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	LLM       LLMConfig       `mapstructure:"llm"`
	RAG       RagConfig       `mapstructure:"rag"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置（仅 workflow.store=sql 时使用）
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	DSN             string `mapstructure:"dsn"`    // sqlite 文件路径或完整 DSN
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// 连接模式: standalone(单节点), sentinel(哨兵), cluster(集群)
	Mode string `mapstructure:"mode"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
	ClusterAddrs  []string `mapstructure:"cluster_addrs"`

	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// LLMConfig 大模型配置
type LLMConfig struct {
	DefaultProvider  string  `mapstructure:"default_provider"` // deterministic, external
	BaseURL          string  `mapstructure:"base_url"`
	APIKey           string  `mapstructure:"api_key"`
	Model            string  `mapstructure:"model"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxOutputTokens  int     `mapstructure:"max_output_tokens"`
	Temperature      float32 `mapstructure:"temperature"`
	SafetyIdentifier string  `mapstructure:"safety_identifier"`
	MaxRetries       int     `mapstructure:"max_retries"`
}

// RagConfig RAG 相关配置
type RagConfig struct {
	Chunk     ChunkConfig     `mapstructure:"chunk"`
	Answer    PackConfig      `mapstructure:"answer"`
	Action    PackConfig      `mapstructure:"action"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

// ChunkConfig 分块参数
type ChunkConfig struct {
	MaxChars int `mapstructure:"max_chars"`
	Overlap  int `mapstructure:"overlap"`
}

// PackConfig 上下文打包预算
type PackConfig struct {
	MaxChars    int `mapstructure:"max_chars"`
	MaxChunks   int `mapstructure:"max_chunks"`
	PerDocLimit int `mapstructure:"per_doc_limit"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	Provider       string `mapstructure:"provider"` // deterministic, external, local
	Dimensions     int    `mapstructure:"dimensions"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	BatchSize      int    `mapstructure:"batch_size"`
	CacheEnabled   bool   `mapstructure:"cache_enabled"`
}

// PlannerConfig 意图规划配置
type PlannerConfig struct {
	ContextMessages  int `mapstructure:"context_messages"`
	MaxHistoryTokens int `mapstructure:"max_history_tokens"`
}

// WorkflowConfig 工作流存储配置
type WorkflowConfig struct {
	Store         string `mapstructure:"store"` // file, sql, redis
	StorageDir    string `mapstructure:"storage_dir"`
	TemplatesPath string `mapstructure:"templates_path"` // 为空时使用内置模板
}

// CacheConfig 响应缓存配置
type CacheConfig struct {
	Backend    string `mapstructure:"backend"` // memory, redis
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
// 配置文件不存在时仅使用默认值和环境变量
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		v.SetConfigName(env)
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // APP_LLM_API_KEY

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Default 返回仅包含默认值的配置，测试和本地工具使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 60)
	v.SetDefault("server.write_timeout", 120)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/workflows.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("llm.default_provider", "deterministic")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout_seconds", 30)
	v.SetDefault("llm.max_output_tokens", 1200)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("rag.chunk.max_chars", 1200)
	v.SetDefault("rag.chunk.overlap", 150)
	v.SetDefault("rag.answer.max_chars", 12000)
	v.SetDefault("rag.answer.max_chunks", 12)
	v.SetDefault("rag.answer.per_doc_limit", 4)
	v.SetDefault("rag.action.max_chars", 9000)
	v.SetDefault("rag.action.max_chunks", 12)
	v.SetDefault("rag.action.per_doc_limit", 4)
	v.SetDefault("rag.embedding.provider", "deterministic")
	v.SetDefault("rag.embedding.dimensions", 64)
	v.SetDefault("rag.embedding.model", "text-embedding-3-small")
	v.SetDefault("rag.embedding.timeout_seconds", 30)
	v.SetDefault("rag.embedding.batch_size", 64)

	v.SetDefault("planner.context_messages", 8)
	v.SetDefault("planner.max_history_tokens", 3000)

	v.SetDefault("workflow.store", "file")
	v.SetDefault("workflow.storage_dir", "./data/workflows")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_seconds", 300)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rps", 20)
	v.SetDefault("ratelimit.burst", 40)
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.Cache.TTLSeconds < 1 {
		return fmt.Errorf("cache.ttl_seconds 必须 >= 1，当前 %d", c.Cache.TTLSeconds)
	}
	switch c.LLM.DefaultProvider {
	case "deterministic", "external":
	default:
		return fmt.Errorf("llm.default_provider 不支持: %q", c.LLM.DefaultProvider)
	}
	switch c.RAG.Embedding.Provider {
	case "deterministic", "external", "local":
	default:
		return fmt.Errorf("rag.embedding.provider 不支持: %q", c.RAG.Embedding.Provider)
	}
	if c.RAG.Embedding.Dimensions <= 0 {
		return fmt.Errorf("rag.embedding.dimensions 必须为正数")
	}
	if c.RAG.Chunk.MaxChars <= 0 || c.RAG.Chunk.Overlap < 0 || c.RAG.Chunk.Overlap >= c.RAG.Chunk.MaxChars {
		return fmt.Errorf("rag.chunk 参数非法: max_chars=%d overlap=%d", c.RAG.Chunk.MaxChars, c.RAG.Chunk.Overlap)
	}
	for name, p := range map[string]PackConfig{"answer": c.RAG.Answer, "action": c.RAG.Action} {
		if p.MaxChars < 0 || p.MaxChunks < 0 || p.PerDocLimit < 0 {
			return fmt.Errorf("rag.%s 预算不能为负数", name)
		}
	}
	if c.Planner.ContextMessages < 1 {
		return fmt.Errorf("planner.context_messages 必须 >= 1")
	}
	switch c.Workflow.Store {
	case "file":
		if c.Workflow.StorageDir == "" {
			return fmt.Errorf("workflow.storage_dir 不能为空")
		}
	case "sql", "redis":
	default:
		return fmt.Errorf("workflow.store 不支持: %q", c.Workflow.Store)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend 不支持: %q", c.Cache.Backend)
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.DSN
	}
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
