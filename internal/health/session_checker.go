package health

import (
	"context"
	"time"

	"github.com/taoyao-code/solarman-proxy/internal/session"
)

// SessionStats 会话统计来源（*session.Session 实现）
type SessionStats interface {
	Stats() session.Stats
	Address() string
}

// SessionChecker logger 会话健康检查器。
// 未连接只算降级：下一次请求会按需重连。
type SessionChecker struct {
	sess SessionStats
}

func NewSessionChecker(sess SessionStats) *SessionChecker {
	return &SessionChecker{sess: sess}
}

func (c *SessionChecker) Name() string { return "logger" }

func (c *SessionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	st := c.sess.Stats()

	details := map[string]any{
		"address":   c.sess.Address(),
		"state":     st.State.String(),
		"exchanges": st.Exchanges,
		"failures":  st.Failures,
		"dials":     st.Dials,
		"stale":     st.StaleFrames,
		"pings":     st.Pings,
		"last_seq":  st.LastSequence,
	}
	if !st.LastExchange.IsZero() {
		details["last_exchange"] = st.LastExchange.UTC().Format(time.RFC3339)
	}
	if st.LastError != "" {
		details["last_error"] = st.LastError
	}

	res := CheckResult{Status: StatusHealthy, Message: "connected", Details: details}
	if st.State != session.Connected {
		res.Status = StatusDegraded
		res.Message = "logger " + st.State.String()
	}
	res.Latency = time.Since(start)
	return res
}
