package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/solarman-proxy/internal/tcpserver"
)

// ListenerStats 代理监听器的统计来源（*tcpserver.Server 实现）
type ListenerStats interface {
	GetLimiterStats() tcpserver.LimiterStats
	GetRateLimiterStats() tcpserver.RateLimiterStats
	GetCircuitBreakerStats() *tcpserver.CircuitBreakerStats
}

// TCPChecker 代理监听器健康检查器
type TCPChecker struct {
	server ListenerStats
}

// NewTCPChecker 创建TCP健康检查器
func NewTCPChecker(server ListenerStats) *TCPChecker {
	return &TCPChecker{server: server}
}

func (c *TCPChecker) Name() string { return "tcp" }

// Check 连接利用率超过 80% 降级，超过 95% 不健康；熔断打开视为降级
func (c *TCPChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	ls := c.server.GetLimiterStats()

	status := StatusHealthy
	message := "ok"
	switch {
	case ls.Utilization > 0.95:
		status = StatusUnhealthy
		message = "connection limit near exhausted"
	case ls.Utilization > 0.8:
		status = StatusDegraded
		message = "high connection usage"
	}

	details := map[string]any{
		"active_connections": ls.ActiveConnections,
		"max_connections":    ls.MaxConnections,
		"rejected_total":     ls.RejectedTotal,
		"utilization":        fmt.Sprintf("%.2f%%", ls.Utilization*100),
	}

	rl := c.server.GetRateLimiterStats()
	details["accept_rate_per_second"] = rl.RatePerSecond
	details["accept_rate_rejected"] = rl.RejectedTotal

	if cb := c.server.GetCircuitBreakerStats(); cb != nil {
		details["circuit_breaker_state"] = cb.State
		details["consecutive_failures"] = cb.ConsecutiveFailures
		if cb.State == tcpserver.StateOpen.String() && status == StatusHealthy {
			status = StatusDegraded
			message = "circuit breaker open"
		}
	}

	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
