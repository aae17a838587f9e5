package v5

import (
	"encoding/binary"
	"fmt"
)

// Frame Solarman V5 帧结构
// 格式：a5(1) + len(2,LE) + ctrl(2,LE) + seq(2) + serial(4,LE) + type(1) + status(1) + [ext(1)]
//
//	+ [totalWork(4) + powerOn(4) + offset(4)] + rtu(var) + checksum(1) + 15(1)
//
// ext 仅在请求类控制码（Request/LoggerResponse）出现；时间字段仅在非 KeepAlive 帧出现。
type Frame struct {
	Start        byte
	Length       uint16 // 头部 len 字段：帧长 - 13
	ControlCode  ControlCode
	Sequence     Sequence
	LoggerSerial uint32
	FrameType    FrameType
	Status       byte
	StatusExt    byte // 请求类帧的附加头字节（传感器类型高字节）

	TotalWorkTime uint32
	PowerOnTime   uint32
	OffsetTime    uint32

	RTUPayload []byte // 内嵌 Modbus RTU 帧，含自身 CRC16
	Checksum   byte
	End        byte

	FrameCRC      uint16 // RTU 负载末尾两字节（按大端解释）
	ChecksumValid bool
	RTUCRCValid   bool
}

// Sequence 序列号字节对：请求计数 + 响应计数
type Sequence struct {
	Request  byte
	Response byte
}

func (s Sequence) String() string { return fmt.Sprintf("%02x%02x", s.Request, s.Response) }

const (
	StartByte byte = 0xA5
	EndByte   byte = 0x15

	// HeaderLen 起始字节到 logger 序列号
	HeaderLen = 11
	// TrailerLen 校验和 + 结束字节
	TrailerLen = 2
	// Overhead 帧长与 len 字段之差
	Overhead = HeaderLen + TrailerLen
	// MinFrameLen 最短帧（len=0 的心跳）：仅头部 + 尾部
	MinFrameLen = Overhead

	timeFieldsLen = 12
	timeOffset    = HeaderLen + 2
)

// ControlCode V5 控制码；未知值按原值保留，不视为错误
type ControlCode uint16

const (
	ControlRequest        ControlCode = 0x4510 // 主机 -> logger
	ControlResponse       ControlCode = 0x1510 // logger -> 主机
	ControlLoggerPing     ControlCode = 0x4710 // logger 心跳
	ControlLoggerResponse ControlCode = 0x4210 // logger 上报/应答
	ControlPingAck        ControlCode = 0x1710 // 主机对心跳的应答
)

// Known 是否为已定义的控制码
func (c ControlCode) Known() bool {
	switch c {
	case ControlRequest, ControlResponse, ControlLoggerPing, ControlLoggerResponse, ControlPingAck:
		return true
	}
	return false
}

func (c ControlCode) String() string {
	switch c {
	case ControlRequest:
		return "Request"
	case ControlResponse:
		return "Response"
	case ControlLoggerPing:
		return "LoggerPing"
	case ControlLoggerResponse:
		return "LoggerResponse"
	case ControlPingAck:
		return "PingAck"
	}
	return fmt.Sprintf("Unknown(0x%04x)", uint16(c))
}

// hasStatusExt 请求类控制码比其它帧多一个头字节
func (c ControlCode) hasStatusExt() bool {
	return c == ControlRequest || c == ControlLoggerResponse
}

// FrameType 帧类型
type FrameType uint8

const (
	FrameKeepAlive FrameType = 0
	FrameLogger    FrameType = 1
	FrameInverter  FrameType = 2
)

// Known 是否为已定义帧类型
func (t FrameType) Known() bool { return t <= FrameInverter }

func (t FrameType) String() string {
	switch t {
	case FrameKeepAlive:
		return "KeepAlive"
	case FrameLogger:
		return "Logger"
	case FrameInverter:
		return "Inverter"
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// hasTimes 时间字段仅在非心跳帧出现
func (t FrameType) hasTimes() bool { return t != FrameKeepAlive }

// RTUStartOffset 根据控制码返回完整帧中 RTU 负载起始位置
func RTUStartOffset(cc ControlCode) int {
	if cc.hasStatusExt() {
		return 26
	}
	return 25
}

// payloadOffset 考虑心跳帧缺少时间字段后的实际负载偏移
func payloadOffset(cc ControlCode, ft FrameType) int {
	off := RTUStartOffset(cc)
	if !ft.hasTimes() {
		off -= timeFieldsLen
	}
	return off
}

// FrameTime 三个时间字段之和（秒）；按 uint64 累加，避免溢出回绕
func (f *Frame) FrameTime() uint64 {
	return uint64(f.TotalWorkTime) + uint64(f.PowerOnTime) + uint64(f.OffsetTime)
}

// Len 帧总长度
func (f *Frame) Len() int { return int(f.Length) + Overhead }

// Valid 起止字节与校验和均正确
func (f *Frame) Valid() bool {
	return f.Start == StartByte && f.End == EndByte && f.ChecksumValid
}

// Validate 将完整性标志转换为错误，供需要严格策略的调用方使用
func (f *Frame) Validate() error {
	if !f.ChecksumValid {
		return ErrChecksumInvalid
	}
	if !f.RTUCRCValid {
		return ErrRTUCRCInvalid
	}
	return nil
}

func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
