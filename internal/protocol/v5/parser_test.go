package v5

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/taoyao-code/solarman-proxy/internal/protocol/rtu"
)

const (
	// logger 2612749371，读保持寄存器 20 起 4 个，seq=0x5c
	requestHex = "a5170010455c003b64bb9b020000000000000000000000000000010300140004040dec15"
	// 对应响应：status=1，时间字段 1000/200/1700000000，4 个寄存器
	responseHex = "a51b0010155c2d3b64bb9b0201e8030000c800000000f1536501030800010002000300040d145415"
	// 省略帧类型与状态的心跳（len=0）及仅带帧类型的心跳（len=1）
	shortPingHex = "a50000104721003b64bb9b6d15"
	pingTypeHex  = "a50100104721003b64bb9b006e15"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := ParseHex(s)
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	return b
}

func TestDecode_Request(t *testing.T) {
	raw := mustHex(t, requestHex)
	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ControlCode != ControlRequest || f.Sequence.Request != 0x5c || f.Sequence.Response != 0 {
		t.Fatalf("unexpected header: %+v", f)
	}
	if f.LoggerSerial != 2612749371 || f.FrameType != FrameInverter || f.Length != 23 {
		t.Fatalf("unexpected header: %+v", f)
	}
	if !f.ChecksumValid || !f.RTUCRCValid || !f.Valid() || !f.LengthValid(raw) {
		t.Fatalf("integrity flags: checksum=%v crc=%v", f.ChecksumValid, f.RTUCRCValid)
	}
	want := rtu.AppendCRC([]byte{0x01, 0x03, 0x00, 0x14, 0x00, 0x04})
	if !bytes.Equal(f.RTUPayload, want) {
		t.Fatalf("payload=% X want % X", f.RTUPayload, want)
	}
	if f.FrameCRC != 0x040D {
		t.Fatalf("frame crc=%04x", f.FrameCRC)
	}
}

func TestDecode_Response(t *testing.T) {
	f, err := Decode(mustHex(t, responseHex))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ControlCode != ControlResponse || f.Sequence != (Sequence{0x5c, 0x2d}) || f.Status != 1 {
		t.Fatalf("unexpected header: %+v", f)
	}
	if f.TotalWorkTime != 1000 || f.PowerOnTime != 200 || f.OffsetTime != 1700000000 {
		t.Fatalf("times: %d %d %d", f.TotalWorkTime, f.PowerOnTime, f.OffsetTime)
	}
	if len(f.RTUPayload) != 13 || f.RTUPayload[2] != 8 || !f.RTUCRCValid {
		t.Fatalf("payload=% X", f.RTUPayload)
	}
	if f.FrameTime() != 1000+200+1700000000 {
		t.Fatalf("frame time=%d", f.FrameTime())
	}
}

func TestDecode_ShortKeepalive(t *testing.T) {
	for _, h := range []string{shortPingHex, pingTypeHex} {
		raw := mustHex(t, h)
		f, err := Decode(raw)
		if err != nil {
			t.Fatalf("%d bytes: unexpected error: %v", len(raw), err)
		}
		if f.ControlCode != ControlLoggerPing || f.FrameType != FrameKeepAlive || f.Status != 0 {
			t.Fatalf("%d bytes: unexpected header: %+v", len(raw), f)
		}
		if f.Sequence.Request != 0x21 || f.LoggerSerial != 2612749371 {
			t.Fatalf("%d bytes: unexpected header: %+v", len(raw), f)
		}
		if !f.Valid() || !f.LengthValid(raw) || len(f.RTUPayload) != 0 {
			t.Fatalf("%d bytes: valid=%v payload=% X", len(raw), f.Valid(), f.RTUPayload)
		}
	}
}

func TestFrameTime_DoesNotWrap(t *testing.T) {
	f := &Frame{TotalWorkTime: math.MaxUint32, PowerOnTime: math.MaxUint32, OffsetTime: 2}
	if want := uint64(math.MaxUint32)*2 + 2; f.FrameTime() != want {
		t.Fatalf("frame time=%d want %d", f.FrameTime(), want)
	}
}

func TestDecode_Malformed(t *testing.T) {
	good := mustHex(t, requestHex)
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"过短", good[:MinFrameLen-1], ErrShortFrame},
		{"非心跳帧缺少时间字段", []byte{0xA5, 0x01, 0x00, 0x10, 0x15, 0, 0, 0, 0, 0, 0, 0x02, 0x28, 0x15}, ErrTruncated},
		{"起始字节错误", append([]byte{0x00}, good[1:]...), ErrInvalidStart},
		{"结束字节错误", append(append([]byte{}, good[:len(good)-1]...), 0x16), ErrInvalidEnd},
		{"头部超出帧长", []byte{0xA5, 0x02, 0x00, 0x10, 0x45, 0, 0, 0, 0, 0, 0, 0x02, 0x00, 0x57, 0x15}, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v want %v", err, tt.want)
			}
			if !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("err %v should be malformed", err)
			}
		})
	}
}

func TestDecode_ChecksumIsNonFatal(t *testing.T) {
	raw := mustHex(t, requestHex)
	raw[len(raw)-2] ^= 0xFF
	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode must succeed: %v", err)
	}
	if f.ChecksumValid || f.Valid() {
		t.Fatalf("checksum should be invalid")
	}
	if !errors.Is(f.Validate(), ErrChecksumInvalid) {
		t.Fatalf("validate=%v", f.Validate())
	}
}

func TestDecode_RTUCRCIsNonFatal(t *testing.T) {
	payload := []byte{0x01, 0x03, 0x00, 0x14, 0x00, 0x04, 0x00, 0x00}
	f, err := Decode(Build(ControlRequest, Sequence{Request: 1}, 7, FrameInverter, payload))
	if err != nil {
		t.Fatalf("decode must succeed: %v", err)
	}
	if !f.ChecksumValid || f.RTUCRCValid {
		t.Fatalf("flags checksum=%v crc=%v", f.ChecksumValid, f.RTUCRCValid)
	}
	if !errors.Is(f.Validate(), ErrRTUCRCInvalid) {
		t.Fatalf("validate=%v", f.Validate())
	}
}

func TestChecksumSensitivity(t *testing.T) {
	raw := mustHex(t, requestHex)
	// 起始字节与校验和之间任一字节变化都会改变累加和
	for i := 1; i < len(raw)-2; i++ {
		mut := append([]byte{}, raw...)
		mut[i]++
		f, err := Decode(mut)
		if err != nil {
			// 修改 len/控制码/帧类型后可能导致头部越界
			if errors.Is(err, ErrMalformedFrame) {
				continue
			}
			t.Fatalf("byte %d: %v", i, err)
		}
		if f.ChecksumValid {
			t.Fatalf("byte %d: checksum still valid", i)
		}
	}
}

func TestRTUStartOffset(t *testing.T) {
	tests := []struct {
		cc   ControlCode
		want int
	}{
		{ControlRequest, 26},
		{ControlLoggerResponse, 26},
		{ControlResponse, 25},
		{ControlLoggerPing, 25},
		{ControlPingAck, 25},
		{ControlCode(0x1234), 25},
		{ControlCode(0xFFFF), 25},
	}
	for _, tt := range tests {
		if got := RTUStartOffset(tt.cc); got != tt.want {
			t.Errorf("RTUStartOffset(%v) = %d, want %d", tt.cc, got, tt.want)
		}
	}
}

func TestDecode_ControlCodePatchShiftsPayload(t *testing.T) {
	raw := mustHex(t, requestHex)
	req, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// 控制码改为 Response：负载起点前移一个字节
	patched := append([]byte{}, raw...)
	patched[3], patched[4] = 0x10, 0x15
	resp, err := Decode(patched)
	if err != nil {
		t.Fatalf("decode patched: %v", err)
	}
	if resp.ControlCode != ControlResponse {
		t.Fatalf("cc=%v", resp.ControlCode)
	}
	if len(resp.RTUPayload) != len(req.RTUPayload)+1 {
		t.Fatalf("payload len %d vs %d", len(resp.RTUPayload), len(req.RTUPayload))
	}
	if !bytes.Equal(resp.RTUPayload[1:], req.RTUPayload) || resp.RTUPayload[0] != raw[25] {
		t.Fatalf("payload not shifted by one byte: % X", resp.RTUPayload)
	}
}

func TestDecode_UnknownCodesAreRepresentable(t *testing.T) {
	raw := Build(ControlCode(0x4110), Sequence{1, 2}, 99, FrameType(7), rtu.AppendCRC([]byte{0x01, 0x02}))
	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.ControlCode.Known() || f.ControlCode != 0x4110 || f.ControlCode.String() != "Unknown(0x4110)" {
		t.Fatalf("cc=%v", f.ControlCode)
	}
	if f.FrameType.Known() || f.FrameType.String() != "Unknown(7)" {
		t.Fatalf("ft=%v", f.FrameType)
	}
	if !f.RTUCRCValid {
		t.Fatalf("crc should be valid")
	}
}
