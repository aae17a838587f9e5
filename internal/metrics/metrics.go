package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 代理业务指标
type AppMetrics struct {
	ClientAccepted  prometheus.Counter
	ClientActive    prometheus.Gauge
	ClientRejected  *prometheus.CounterVec // labels: reason=limit|rate|shutdown
	BytesIn         prometheus.Counter     // 客户端 -> 代理
	BytesOut        prometheus.Counter     // 代理 -> 客户端
	ExchangeTotal   *prometheus.CounterVec // labels: result=ok|timeout|no_socket|connect|invalid|empty|error
	ExchangeSeconds prometheus.Histogram
	SessionState    prometheus.Gauge       // 0=disconnected 1=connecting 2=connected
	ReconnectTotal  *prometheus.CounterVec // labels: result=ok|error
	FramesTotal     *prometheus.CounterVec // labels: kind=response|stale|ping|other
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		ClientAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_client_accept_total",
			Help: "Total accepted Modbus client connections.",
		}),
		ClientActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_client_active",
			Help: "Current number of connected Modbus clients.",
		}),
		ClientRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_client_rejected_total",
			Help: "Rejected client connections by reason.",
		}, []string{"reason"}),
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_bytes_received_total",
			Help: "Total RTU bytes received from clients.",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_bytes_sent_total",
			Help: "Total RTU bytes sent to clients.",
		}),
		ExchangeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "v5_exchange_total",
			Help: "V5 request/response exchanges by result.",
		}, []string{"result"}),
		ExchangeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "v5_exchange_duration_seconds",
			Help:    "Latency of V5 exchanges with the data logger.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "v5_session_state",
			Help: "Logger session state (0=disconnected, 1=connecting, 2=connected).",
		}),
		ReconnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "v5_reconnect_total",
			Help: "Logger connection attempts by result.",
		}, []string{"result"}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "v5_frames_total",
			Help: "Inbound V5 frames by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.ClientAccepted, m.ClientActive, m.ClientRejected, m.BytesIn, m.BytesOut,
		m.ExchangeTotal, m.ExchangeSeconds, m.SessionState, m.ReconnectTotal, m.FramesTotal)
	return m
}
