package v5

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/taoyao-code/solarman-proxy/internal/protocol/rtu"
)

// Report 单帧诊断报告（逐字段）
type Report struct {
	Start          string     `json:"start" yaml:"start"`
	StartValid     bool       `json:"start_valid" yaml:"start_valid"`
	Checksum       string     `json:"checksum" yaml:"checksum"`
	ChecksumValid  bool       `json:"checksum_valid" yaml:"checksum_valid"`
	Length         uint16     `json:"length" yaml:"length"`
	ControlCode    string     `json:"control_code" yaml:"control_code"`
	ControlCodeHex string     `json:"control_code_hex" yaml:"control_code_hex"`
	Sequence       [2]uint8   `json:"sequence" yaml:"sequence"`
	Serial         uint32     `json:"serial" yaml:"serial"`
	SerialHex      string     `json:"serial_hex" yaml:"serial_hex"`
	FrameType      string     `json:"frame_type" yaml:"frame_type"`
	FrameTypeValue uint8      `json:"frame_type_value" yaml:"frame_type_value"`
	Status         uint8      `json:"status" yaml:"status"`
	TotalWorkTime  uint32     `json:"total_work_time" yaml:"total_work_time"`
	PowerOnTime    uint32     `json:"power_on_time" yaml:"power_on_time"`
	OffsetTime     uint32     `json:"offset_time" yaml:"offset_time"`
	FrameTime      time.Time  `json:"frame_time" yaml:"frame_time"`
	RTU            *RTUReport `json:"rtu,omitempty" yaml:"rtu,omitempty"`
}

// RTUReport 内嵌 RTU 负载概要
type RTUReport struct {
	Kind         string  `json:"kind" yaml:"kind"`
	StartAt      int     `json:"start_at" yaml:"start_at"`
	Head         string  `json:"head" yaml:"head"`
	SlaveAddress uint8   `json:"slave_address" yaml:"slave_address"`
	FunctionCode uint8   `json:"function_code" yaml:"function_code"`
	FrameCRC     string  `json:"frame_crc" yaml:"frame_crc"`
	CRC          string  `json:"crc" yaml:"crc"`
	CRCValid     bool    `json:"crc_valid" yaml:"crc_valid"`
	StartAddress *uint16 `json:"start_address,omitempty" yaml:"start_address,omitempty"`
	Quantity     *uint16 `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Size         *int    `json:"size,omitempty" yaml:"size,omitempty"`
	Data         string  `json:"data,omitempty" yaml:"data,omitempty"`
}

// ParseHex 解析十六进制帧文本，忽略空白
func ParseHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return b, nil
}

// NewReport 由已解析帧生成报告
func NewReport(f *Frame) *Report {
	r := &Report{
		Start:          fmt.Sprintf("%02x", f.Start),
		StartValid:     f.Start == StartByte,
		Checksum:       fmt.Sprintf("%02x", f.Checksum),
		ChecksumValid:  f.ChecksumValid,
		Length:         f.Length,
		ControlCode:    f.ControlCode.String(),
		ControlCodeHex: fmt.Sprintf("%04x", uint16(f.ControlCode)),
		Sequence:       [2]uint8{f.Sequence.Request, f.Sequence.Response},
		Serial:         f.LoggerSerial,
		SerialHex:      fmt.Sprintf("%08x", f.LoggerSerial),
		FrameType:      f.FrameType.String(),
		FrameTypeValue: uint8(f.FrameType),
		Status:         f.Status,
		TotalWorkTime:  f.TotalWorkTime,
		PowerOnTime:    f.PowerOnTime,
		OffsetTime:     f.OffsetTime,
		FrameTime:      time.Unix(int64(f.FrameTime()), 0).UTC(),
	}
	if f.FrameType != FrameKeepAlive {
		r.RTU = newRTUReport(f)
	}
	return r
}

func newRTUReport(f *Frame) *RTUReport {
	p := f.RTUPayload
	rr := &RTUReport{
		Kind:     "Unknown",
		StartAt:  payloadOffset(f.ControlCode, f.FrameType),
		FrameCRC: fmt.Sprintf("%04x", f.FrameCRC),
		CRCValid: f.RTUCRCValid,
	}
	head := p
	if len(head) > 5 {
		head = head[:5]
	}
	rr.Head = hex.EncodeToString(head)
	if len(p) >= 2 {
		rr.SlaveAddress, rr.FunctionCode = p[0], p[1]
		c := rtu.CRCBytes(p[:len(p)-2])
		rr.CRC = fmt.Sprintf("%04x", binary.BigEndian.Uint16(c[:]))
	}

	switch f.ControlCode {
	case ControlRequest:
		rr.Kind = "Request"
		if s := rtu.Describe(p); s.HasRange {
			start, qty := s.Start, s.Quantity
			rr.StartAddress, rr.Quantity = &start, &qty
		}
	case ControlResponse:
		rr.Kind = "Response"
		size := len(p)
		rr.Size = &size
		rr.Data = hex.EncodeToString(p)
	}
	return rr
}

// WriteText 按字段输出人类可读报告
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Frame start: %s (valid: %t)\n", r.Start, r.StartValid)
	fmt.Fprintf(&b, "V5 Checksum: %s (valid: %t)\n", r.Checksum, r.ChecksumValid)
	fmt.Fprintf(&b, "Length: %d\n", r.Length)
	fmt.Fprintf(&b, "Control Code: %s (hex: %s)\n", r.ControlCode, r.ControlCodeHex)
	fmt.Fprintf(&b, "Sequence numbers: (%d, %d) (hex: %02x %02x)\n", r.Sequence[0], r.Sequence[1], r.Sequence[0], r.Sequence[1])
	fmt.Fprintf(&b, "Serial Hex: %s\n", r.SerialHex)
	fmt.Fprintf(&b, "Serial: %d\n", r.Serial)
	fmt.Fprintf(&b, "Frame Type (%s): %d\n", r.FrameType, r.FrameTypeValue)
	fmt.Fprintf(&b, "Frame Status: %d\n", r.Status)
	fmt.Fprintf(&b, "Total Time: %d\n", r.TotalWorkTime)
	fmt.Fprintf(&b, "PowerOn Time: %d\n", r.PowerOnTime)
	fmt.Fprintf(&b, "Offset Time: %d\n", r.OffsetTime)
	fmt.Fprintf(&b, "Frame Time: %s\n", r.FrameTime.Format(time.DateTime))
	if r.RTU != nil {
		rr := r.RTU
		fmt.Fprintf(&b, "Checksum: %s - RTU start at: %d (%s)\n", rr.FrameCRC, rr.StartAt, rr.Head)
		fmt.Fprintf(&b, "========== RTU Payload - [%s] ==========\n", rr.Kind)
		fmt.Fprintf(&b, "\tSlave address: %d\n", rr.SlaveAddress)
		fmt.Fprintf(&b, "\tFunction code: %d\n", rr.FunctionCode)
		fmt.Fprintf(&b, "\tCRC: %s (valid: %t)\n", rr.CRC, rr.CRCValid)
		if rr.StartAddress != nil {
			fmt.Fprintf(&b, "\tRequest Start Addr: %d (%02x)\n", *rr.StartAddress, *rr.StartAddress)
			fmt.Fprintf(&b, "\tRequest Quantity: %d (%02x)\n", *rr.Quantity, *rr.Quantity)
		}
		if rr.Size != nil {
			fmt.Fprintf(&b, "\tQuantity: %d\n", *rr.Size)
			fmt.Fprintf(&b, "\tData: %s\n", rr.Data)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
