package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/solarman-proxy/internal/config"
	"github.com/taoyao-code/solarman-proxy/internal/tcpserver"
)

// NewTCPServer 根据配置创建代理监听器
func NewTCPServer(cfg cfgpkg.ProxyConfig, ex tcpserver.Exchanger, logger *zap.Logger) *tcpserver.Server {
	return tcpserver.New(cfg, ex, logger)
}
