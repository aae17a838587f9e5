package v5

import "encoding/binary"

// Encode 按帧字段构造字节流（与 Decode 互逆）。
// Length/Checksum/End 由编码过程计算，忽略 f 中对应字段。
func Encode(f *Frame) []byte {
	off := payloadOffset(f.ControlCode, f.FrameType)
	total := off + len(f.RTUPayload) + TrailerLen
	buf := make([]byte, 0, total)

	// header
	buf = append(buf, StartByte)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(total-Overhead))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(f.ControlCode))
	buf = append(buf, f.Sequence.Request, f.Sequence.Response)
	buf = binary.LittleEndian.AppendUint32(buf, f.LoggerSerial)

	// payload header
	buf = append(buf, byte(f.FrameType), f.Status)
	if f.ControlCode.hasStatusExt() {
		buf = append(buf, f.StatusExt)
	}
	if f.FrameType.hasTimes() {
		buf = binary.LittleEndian.AppendUint32(buf, f.TotalWorkTime)
		buf = binary.LittleEndian.AppendUint32(buf, f.PowerOnTime)
		buf = binary.LittleEndian.AppendUint32(buf, f.OffsetTime)
	}

	// rtu 原样拷贝
	buf = append(buf, f.RTUPayload...)

	// trailer 占位后回填校验和
	buf = append(buf, 0, EndByte)
	buf[len(buf)-2] = frameChecksum(buf)
	return buf
}

// Build 构造一帧：状态与时间字段置零
func Build(cc ControlCode, seq Sequence, serial uint32, ft FrameType, payload []byte) []byte {
	return Encode(&Frame{
		ControlCode:  cc,
		Sequence:     seq,
		LoggerSerial: serial,
		FrameType:    ft,
		RTUPayload:   payload,
	})
}

// BuildRequest 构造下行 Modbus 请求帧（帧类型 Inverter）
func BuildRequest(seq byte, serial uint32, rtuFrame []byte) []byte {
	return Build(ControlRequest, Sequence{Request: seq}, serial, FrameInverter, rtuFrame)
}

// BuildPingAck 构造心跳应答：回显序列号，负载为 unix 时间 + 4字节0
func BuildPingAck(ping *Frame, unix uint32) []byte {
	payload := make([]byte, 8)
	putUint32(payload[0:4], unix)
	return Encode(&Frame{
		ControlCode:  ControlPingAck,
		Sequence:     ping.Sequence,
		LoggerSerial: ping.LoggerSerial,
		FrameType:    FrameKeepAlive,
		Status:       0x01,
		RTUPayload:   payload,
	})
}
