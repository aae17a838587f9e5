// Package cli 命令行入口：serve / decode / probe
package cli

import (
	"github.com/spf13/cobra"

	"github.com/taoyao-code/solarman-proxy/internal/app/bootstrap"
)

// NewRootCmd 构造根命令
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "solarman-proxy",
		Short: "Modbus RTU over TCP proxy for Solarman V5 data loggers",
		Long: `solarman-proxy exposes a Solarman (IGEN Tech) V5 data logger as a plain
Modbus RTU over TCP endpoint.

Clients send raw RTU requests to the proxy; each request is wrapped in a V5
frame, sent to the logger over a single shared connection, and the RTU payload
of the correlated response is written back to the client.

Commands:
  serve   run the proxy
  decode  print a field-by-field report of a captured V5 frame
  probe   read registers through a running proxy`,
		Version:       bootstrap.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newDecodeCmd(), newProbeCmd())
	return root
}

// Execute 运行根命令
func Execute() error {
	return NewRootCmd().Execute()
}
