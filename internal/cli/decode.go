package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	v5 "github.com/taoyao-code/solarman-proxy/internal/protocol/v5"
)

func newDecodeCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "decode <hex>...",
		Short: "Decode a captured V5 frame",
		Long: `Decode a V5 frame given as hex and print every header field, the checksum
and RTU CRC validity, and a summary of the embedded Modbus RTU message.

Whitespace between hex bytes is ignored, so a frame may be split across
several arguments:
  solarman-proxy decode a5 17 00 10 45 ...`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd.OutOrStdout(), strings.Join(args, " "), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	return cmd
}

func runDecode(w io.Writer, hexFrame, format string) error {
	raw, err := v5.ParseHex(hexFrame)
	if err != nil {
		return err
	}
	f, err := v5.Decode(raw)
	if err != nil {
		return err
	}
	report := v5.NewReport(f)

	switch strings.ToLower(format) {
	case "text", "":
		return report.WriteText(w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(report)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
