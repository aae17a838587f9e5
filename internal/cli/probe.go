package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/spf13/cobra"
)

type probeOptions struct {
	addr    string
	unit    uint8
	start   uint16
	count   uint16
	regType string
	timeout time.Duration
}

func newProbeCmd() *cobra.Command {
	opts := probeOptions{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Read registers through a running proxy",
		Long: `Connect to a running proxy as an RTU over TCP Modbus client and read a
block of holding or input registers, printing one register per line:
  solarman-proxy probe --addr 127.0.0.1:1502 --start 20 --count 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.addr, "addr", "a", "127.0.0.1:1502", "proxy address")
	f.Uint8VarP(&opts.unit, "unit", "u", 1, "modbus unit (slave) id")
	f.Uint16Var(&opts.start, "start", 0, "first register address")
	f.Uint16VarP(&opts.count, "count", "c", 1, "number of registers")
	f.StringVar(&opts.regType, "type", "holding", "register type: holding or input")
	f.DurationVarP(&opts.timeout, "timeout", "t", 10*time.Second, "request timeout")
	return cmd
}

func runProbe(w io.Writer, opts probeOptions) error {
	var regType modbus.RegType
	switch strings.ToLower(opts.regType) {
	case "holding":
		regType = modbus.HOLDING_REGISTER
	case "input":
		regType = modbus.INPUT_REGISTER
	default:
		return fmt.Errorf("unknown register type %q", opts.regType)
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     "rtuovertcp://" + opts.addr,
		Speed:   9600,
		Timeout: opts.timeout,
	})
	if err != nil {
		return fmt.Errorf("create modbus client: %w", err)
	}
	if err := client.Open(); err != nil {
		return fmt.Errorf("connect %s: %w", opts.addr, err)
	}
	defer client.Close()

	if err := client.SetUnitId(opts.unit); err != nil {
		return err
	}
	regs, err := client.ReadRegisters(opts.start, opts.count, regType)
	if err != nil {
		return fmt.Errorf("read registers %d+%d: %w", opts.start, opts.count, err)
	}
	for i, v := range regs {
		fmt.Fprintf(w, "%d\t%d\t0x%04x\n", int(opts.start)+i, v, v)
	}
	return nil
}
