package rtu

import (
	"encoding/binary"
	"fmt"
)

// Modbus 功能码
const (
	FuncReadCoils              byte = 0x01
	FuncReadDiscreteInputs     byte = 0x02
	FuncReadHoldingRegisters   byte = 0x03
	FuncReadInputRegisters     byte = 0x04
	FuncWriteSingleCoil        byte = 0x05
	FuncWriteSingleRegister    byte = 0x06
	FuncWriteMultipleCoils     byte = 0x0F
	FuncWriteMultipleRegisters byte = 0x10
)

// MinFrameLen 最短 RTU 帧：地址+功能码+1字节数据+CRC
const MinFrameLen = 5

// Summary 请求帧概要，用于日志与诊断
type Summary struct {
	Slave    byte
	Function byte
	// HasRange 为 true 时 Start/Quantity 有效
	HasRange bool
	Start    uint16
	Quantity uint16
	Length   int
}

// Describe 解析 RTU 请求帧的形状（不校验 CRC）
func Describe(frame []byte) Summary {
	s := Summary{Length: len(frame)}
	if len(frame) < 2 {
		return s
	}
	s.Slave, s.Function = frame[0], frame[1]
	switch s.Function {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters,
		FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
		if len(frame) >= 6 {
			s.HasRange = true
			s.Start = binary.BigEndian.Uint16(frame[2:4])
			s.Quantity = binary.BigEndian.Uint16(frame[4:6])
		}
	case FuncWriteSingleCoil, FuncWriteSingleRegister:
		if len(frame) >= 4 {
			s.HasRange = true
			s.Start = binary.BigEndian.Uint16(frame[2:4])
			s.Quantity = 1
		}
	}
	return s
}

func (s Summary) String() string {
	if s.Length < 2 {
		return fmt.Sprintf("len=%d", s.Length)
	}
	if s.HasRange {
		return fmt.Sprintf("slave=%d fc=0x%02X start=%d qty=%d len=%d", s.Slave, s.Function, s.Start, s.Quantity, s.Length)
	}
	return fmt.Sprintf("slave=%d fc=0x%02X len=%d", s.Slave, s.Function, s.Length)
}

// IsException 功能码最高位置位表示异常响应
func IsException(frame []byte) bool {
	return len(frame) >= 2 && frame[1]&0x80 != 0
}
