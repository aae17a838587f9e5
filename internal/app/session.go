package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/solarman-proxy/internal/config"
	"github.com/taoyao-code/solarman-proxy/internal/session"
)

// NewSession 构造 logger 会话；observers 为 nil 的项被忽略
func NewSession(cfg cfgpkg.LoggerConfig, logger *zap.Logger, observers ...session.Observer) *session.Session {
	opts := make([]session.Option, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			opts = append(opts, session.WithObserver(o))
		}
	}
	sc := session.ConfigFrom(cfg)
	logger.Info("logger session configured",
		zap.String("address", sc.Address),
		zap.Uint32("serial", sc.Serial),
		zap.Bool("auto_reconnect", sc.AutoReconnect),
		zap.Duration("timeout", sc.Timeout))
	return session.New(sc, logger, opts...)
}
