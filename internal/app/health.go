package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/solarman-proxy/internal/health"
	"github.com/taoyao-code/solarman-proxy/internal/session"
	"github.com/taoyao-code/solarman-proxy/internal/tcpserver"
)

// NewHealthAggregator 创建健康检查聚合器，初始只含会话检查
func NewHealthAggregator(sess *session.Session) *health.Aggregator {
	return health.NewAggregator(health.NewSessionChecker(sess))
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r gin.IRoutes, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// AddTCPChecker 添加监听器检查器到聚合器
func AddTCPChecker(aggregator *health.Aggregator, tcpServer *tcpserver.Server) {
	aggregator.AddChecker(health.NewTCPChecker(tcpServer))
}

// NewReady 启动阶段就绪标记
func NewReady() *health.Readiness { return health.New() }
