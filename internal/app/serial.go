package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/solarman-proxy/internal/config"
	"github.com/taoyao-code/solarman-proxy/internal/serialport"
)

// NewSerialBridge 串口前端；未启用时返回 nil
func NewSerialBridge(cfg cfgpkg.SerialConfig, fwd serialport.Forwarder, logger *zap.Logger) *serialport.Bridge {
	if !cfg.Enable {
		return nil
	}
	return serialport.New(cfg, fwd, logger, nil)
}
