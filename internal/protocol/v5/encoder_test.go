package v5

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/solarman-proxy/internal/protocol/rtu"
)

func TestBuildRequest_MatchesWire(t *testing.T) {
	payload := rtu.AppendCRC([]byte{0x01, 0x03, 0x00, 0x14, 0x00, 0x04})
	got := BuildRequest(0x5c, 2612749371, payload)
	assert.Equal(t, requestHex, hex.EncodeToString(got))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	codes := []ControlCode{ControlRequest, ControlResponse, ControlLoggerPing, ControlLoggerResponse, ControlPingAck, ControlCode(0x9999)}
	types := []FrameType{FrameKeepAlive, FrameLogger, FrameInverter, FrameType(0x10)}
	payloads := [][]byte{
		rtu.AppendCRC(nil),
		rtu.AppendCRC([]byte{0x01, 0x04, 0x00, 0x28, 0x00, 0x0A}),
		rtu.AppendCRC([]byte{0x01, 0x03, 0x04, 0x12, 0x34, 0x56, 0x78}),
	}

	for _, cc := range codes {
		for _, ft := range types {
			for _, p := range payloads {
				in := &Frame{
					ControlCode:   cc,
					Sequence:      Sequence{Request: 0xFE, Response: 0x07},
					LoggerSerial:  0xDEADBEEF,
					FrameType:     ft,
					Status:        0x01,
					StatusExt:     0x02,
					TotalWorkTime: 11,
					PowerOnTime:   22,
					OffsetTime:    33,
					RTUPayload:    p,
				}
				raw := Encode(in)
				out, err := Decode(raw)
				require.NoError(t, err, "cc=%v ft=%v", cc, ft)

				assert.Equal(t, StartByte, out.Start)
				assert.Equal(t, EndByte, out.End)
				assert.True(t, out.LengthValid(raw))
				assert.Equal(t, cc, out.ControlCode)
				assert.Equal(t, in.Sequence, out.Sequence)
				assert.Equal(t, in.LoggerSerial, out.LoggerSerial)
				assert.Equal(t, ft, out.FrameType)
				assert.Equal(t, in.Status, out.Status)
				assert.True(t, bytes.Equal(p, out.RTUPayload), "payload cc=%v ft=%v", cc, ft)
				assert.True(t, out.ChecksumValid)
				assert.True(t, out.RTUCRCValid)

				if cc.hasStatusExt() {
					assert.Equal(t, in.StatusExt, out.StatusExt)
				}
				if ft == FrameKeepAlive {
					assert.Zero(t, out.TotalWorkTime)
					assert.Zero(t, out.PowerOnTime)
					assert.Zero(t, out.OffsetTime)
				} else {
					assert.Equal(t, in.TotalWorkTime, out.TotalWorkTime)
					assert.Equal(t, in.PowerOnTime, out.PowerOnTime)
					assert.Equal(t, in.OffsetTime, out.OffsetTime)
				}

				// 再次编码应得到相同字节
				assert.Equal(t, raw, Encode(out))
			}
		}
	}
}

func TestKeepAliveFrameHasNoTimeFields(t *testing.T) {
	crcOnly := rtu.AppendCRC(nil)
	raw := Build(ControlLoggerPing, Sequence{Request: 3}, 1234, FrameKeepAlive, crcOnly)
	// 头部 11 + 类型/状态 2 + CRC 2 + 尾部 2
	require.Len(t, raw, 17)

	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), f.TotalWorkTime)
	assert.Equal(t, uint32(0), f.PowerOnTime)
	assert.Equal(t, uint32(0), f.OffsetTime)
	assert.Equal(t, []byte{0xFF, 0xFF}, f.RTUPayload)
	assert.True(t, f.ChecksumValid)
	assert.True(t, f.RTUCRCValid)
	assert.Equal(t, uint16(4), f.Length)
}

func TestBuildPingAck(t *testing.T) {
	ping, err := Decode(Build(ControlLoggerPing, Sequence{Request: 0x21, Response: 0x09}, 42, FrameKeepAlive, nil))
	require.NoError(t, err)

	raw := BuildPingAck(ping, 1700000000)
	ack, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, ControlPingAck, ack.ControlCode)
	assert.Equal(t, ping.Sequence, ack.Sequence)
	assert.Equal(t, uint32(42), ack.LoggerSerial)
	assert.Equal(t, FrameKeepAlive, ack.FrameType)
	assert.Equal(t, byte(0x01), ack.Status)
	assert.Equal(t, uint16(10), ack.Length)
	require.Len(t, ack.RTUPayload, 8)
	assert.Equal(t, uint32(1700000000), binary.LittleEndian.Uint32(ack.RTUPayload[:4]))
	assert.True(t, ack.ChecksumValid)
}
