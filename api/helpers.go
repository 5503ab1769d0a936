package api

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/infra"
	"github.com/sadhurshan/esai-sub000/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	serviceName      = "procurement-ai"
	readinessTimeout = 2 * time.Second
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// HealthCheck 健康检查
// @Summary 服务健康检查
// @Description 返回基础健康状态，可供监控探针使用
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Service: serviceName})
	}
}

// ReadinessCheck 就绪检查
// @Summary 服务就绪检查
// @Description 检查已启用的数据库与 Redis 连通性
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func ReadinessCheck(container *AppContainer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		resp := ReadinessResponse{Status: "ready", Database: "disabled", Redis: "disabled"}

		if container.DB != nil {
			if err := infra.PingDatabase(ctx, container.DB); err != nil {
				logger.Warn("数据库就绪检查失败", zap.Error(err))
				resp.Status = "not_ready"
				resp.Reason = "database ping failed"
				resp.Database = "unreachable"
			} else {
				resp.Database = "connected"
			}
		}

		if container.RedisClient != nil {
			if err := infra.PingRedis(ctx, container.RedisClient); err != nil {
				logger.Warn("Redis 就绪检查失败", zap.Error(err))
				resp.Status = "not_ready"
				if resp.Reason == "" {
					resp.Reason = "redis ping failed"
				}
				resp.Redis = "unreachable"
			} else {
				resp.Redis = "connected"
			}
		}

		status := http.StatusOK
		if resp.Status != "ready" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	}
}

// --- 环境变量辅助函数 ---

// getEnvList 读取逗号分隔的环境变量列表
func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var res []string
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			res = append(res, v)
		}
	}
	return res
}

func stringInSlice(target string, list []string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// defaultIfEmpty 返回非空列表或默认值
func defaultIfEmpty(list []string, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}
