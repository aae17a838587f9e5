package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/solarman-proxy/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/solarman-proxy/internal/config"
	"github.com/taoyao-code/solarman-proxy/internal/logging"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Modbus RTU over TCP proxy",
		Long: `Run the proxy in front of one Solarman V5 data logger.

Flags override the configuration file and SOLARMAN_* environment variables:
  solarman-proxy serve -l 192.168.1.50 -s 2612749371 -p 1502`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cfgpkg.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := logging.InitLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			zap.ReplaceGlobals(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return bootstrap.Run(ctx, cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "config file (default $SOLARMAN_CONFIG or ./configs/example.yaml)")
	f.StringP("bind", "b", "0.0.0.0", "proxy bind address")
	f.IntP("port", "p", 1502, "proxy listen port")
	f.StringP("logger", "l", "", "data logger IP address or host")
	f.Int("logger-port", 8899, "data logger V5 port")
	f.Uint32P("serial", "s", 0, "data logger serial number")
	f.Bool("auto-reconnect", true, "reconnect to the logger on demand after connection loss")
	f.IntP("timeout", "t", 10, "logger response timeout in seconds")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}
