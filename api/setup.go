package api

import (
	"time"

	"github.com/sadhurshan/esai-sub000/internal/metrics"
	middlewarepkg "github.com/sadhurshan/esai-sub000/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 创建 Gin 路由并挂载中间件与全部业务路由
func SetupRouter(container *AppContainer) *gin.Engine {
	router := gin.New()
	cfg := container.Config

	// 全局中间件，请求 ID 必须最先注入
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())

	// Prometheus 指标收集中间件
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 业务路由按客户端 IP 限流，探针不计入
	if cfg.RateLimit.Enabled {
		limiter := middlewarepkg.NewRateLimiter(&middlewarepkg.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RPS,
			BurstSize:         cfg.RateLimit.Burst,
			IdleTTL:           10 * time.Minute,
		})
		router.Use(middlewarepkg.RateLimitMiddleware(limiter))
	}

	RegisterRoutes(router, container.InitHandlers())
	return router
}
