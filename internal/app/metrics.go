package app

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/solarman-proxy/internal/metrics"
	"github.com/taoyao-code/solarman-proxy/internal/session"
	"github.com/taoyao-code/solarman-proxy/internal/tcpserver"
)

// NewMetrics 初始化注册表与应用指标
func NewMetrics() (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	return reg, appm
}

// ListenerCallbacks 监听器事件 -> Prometheus
func ListenerCallbacks(appm *metrics.AppMetrics) tcpserver.MetricsCallbacks {
	return tcpserver.MetricsCallbacks{
		OnAccept: func() {
			appm.ClientAccepted.Inc()
			appm.ClientActive.Inc()
		},
		OnClose:    func() { appm.ClientActive.Dec() },
		OnReject:   func(reason string) { appm.ClientRejected.WithLabelValues(reason).Inc() },
		OnBytesIn:  func(n int) { appm.BytesIn.Add(float64(n)) },
		OnBytesOut: func(n int) { appm.BytesOut.Add(float64(n)) },
	}
}

// SessionMetrics 会话事件 -> Prometheus（实现 session.Observer）
type SessionMetrics struct {
	m *metrics.AppMetrics

	mu   sync.Mutex
	prev session.State
}

func NewSessionMetrics(m *metrics.AppMetrics) *SessionMetrics {
	return &SessionMetrics{m: m, prev: session.Disconnected}
}

// OnStateChange Connecting 之后的迁移即一次拨号结果
func (o *SessionMetrics) OnStateChange(s session.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.m.SessionState.Set(float64(s))
	if o.prev == session.Connecting {
		if s == session.Connected {
			o.m.ReconnectTotal.WithLabelValues("ok").Inc()
		} else {
			o.m.ReconnectTotal.WithLabelValues("error").Inc()
		}
	}
	o.prev = s
}

func (o *SessionMetrics) OnExchange(result string, d time.Duration) {
	o.m.ExchangeTotal.WithLabelValues(result).Inc()
	o.m.ExchangeSeconds.Observe(d.Seconds())
}

func (o *SessionMetrics) OnFrame(kind string) {
	o.m.FramesTotal.WithLabelValues(kind).Inc()
}
