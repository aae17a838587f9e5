package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPinger Redis 探活来源（*storage/redis.Client 实现）
type RedisPinger interface {
	HealthCheck(ctx context.Context) error
	PoolStats() *redis.PoolStats
}

// RedisChecker Redis健康检查器
type RedisChecker struct {
	client RedisPinger
}

// NewRedisChecker 创建Redis健康检查器
func NewRedisChecker(client RedisPinger) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string { return "redis" }

// Check Redis 只承载状态发布，不可用时降级而非不健康
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.client.HealthCheck(ctx); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "ping failed: " + err.Error(),
			Latency: time.Since(start),
		}
	}

	latency := time.Since(start)
	status := StatusHealthy
	message := "ok"
	if latency > 100*time.Millisecond {
		status = StatusDegraded
		message = "high latency"
	}

	details := map[string]any{"latency_ms": latency.Milliseconds()}
	if ps := c.client.PoolStats(); ps != nil {
		details["total_conns"] = ps.TotalConns
		details["idle_conns"] = ps.IdleConns
		details["timeouts"] = ps.Timeouts
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: latency}
}
