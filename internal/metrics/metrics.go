package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_ai_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procurement_ai_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// APIResponseSize API 响应体大小（字节）
	APIResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procurement_ai_api_response_size_bytes",
			Help:    "API 响应体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)
)

// RAG 指标
var (
	// RAGSearchesTotal 检索次数
	RAGSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_ai_rag_searches_total",
			Help: "向量检索总数",
		},
		[]string{"status"},
	)

	// RAGSearchDuration 检索耗时
	RAGSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "procurement_ai_rag_search_duration_seconds",
			Help:    "向量检索耗时分布（含查询向量化）",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// RAGChunksIndexed 写入的分块数
	RAGChunksIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "procurement_ai_rag_chunks_indexed_total",
			Help: "写入向量索引的分块总数",
		},
	)

	// EmbeddingCacheTotal 向量缓存命中情况
	EmbeddingCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_ai_embedding_cache_total",
			Help: "向量缓存命中/未命中次数",
		},
		[]string{"layer", "result"}, // layer: local, redis; result: hit, miss
	)
)

// 模型调用指标
var (
	// ModelCallsTotal 模型调用总数
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_ai_model_calls_total",
			Help: "模型调用总数",
		},
		[]string{"provider", "model", "outcome"}, // outcome: ok, refused, error
	)

	// ModelCallDuration 模型调用耗时
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procurement_ai_model_call_duration_seconds",
			Help:    "模型调用耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	// PromptTokens 提示词 token 数
	PromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procurement_ai_prompt_tokens",
			Help:    "发送给模型的提示词 token 数分布",
			Buckets: []float64{100, 500, 1000, 2000, 4000, 8000, 16000},
		},
		[]string{"purpose"}, // answer, action, planner
	)
)

// 动作与工具指标
var (
	// ActionsTotal 动作执行次数
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_ai_actions_total",
			Help: "动作编排执行次数",
		},
		[]string{"action_type", "outcome"}, // outcome: llm, tool_only, placeholder
	)

	// ToolExecutionDuration 工具执行耗时
	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procurement_ai_tool_execution_duration_seconds",
			Help:    "确定性工具执行耗时",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1},
		},
		[]string{"tool", "status"},
	)

	// CitationsDroppedTotal 被剔除的引用数
	CitationsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "procurement_ai_citations_dropped_total",
			Help: "未能通过检索清单校验而被剔除的引用数",
		},
	)

	// IntentPlansTotal 意图规划结果
	IntentPlansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_ai_intent_plans_total",
			Help: "意图规划结果分布",
		},
		[]string{"kind"}, // tool, plan, clarification, message
	)
)

// 工作流指标
var (
	// WorkflowTransitionsTotal 工作流状态迁移次数
	WorkflowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_ai_workflow_transitions_total",
			Help: "工作流状态迁移次数",
		},
		[]string{"workflow_type", "event"}, // plan, start_step, approve, reject, abort, fail
	)

	// WorkflowsLoaded 启动时恢复的工作流数
	WorkflowsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "procurement_ai_workflows_loaded",
			Help: "启动时从存储恢复的工作流数",
		},
	)
)

// 缓存指标
var (
	// ResponseCacheTotal 响应缓存命中情况
	ResponseCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurement_ai_response_cache_total",
			Help: "响应缓存命中/未命中次数",
		},
		[]string{"result"},
	)
)
