package rtu

import (
	"errors"

	"github.com/sigurn/crc16"
)

var (
	// ErrShortFrame RTU 帧不足以容纳 CRC
	ErrShortFrame = errors.New("rtu frame too short")
	// ErrCRCMismatch CRC 校验失败
	ErrCRCMismatch = errors.New("rtu crc mismatch")
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC16 计算 Modbus CRC16（初值0xFFFF，多项式0xA001反射）
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// CRCBytes 按线序（低字节在前）返回 CRC
func CRCBytes(data []byte) [2]byte {
	crc := CRC16(data)
	return [2]byte{byte(crc), byte(crc >> 8)}
}

// AppendCRC 在帧尾追加 CRC，返回新切片
func AppendCRC(data []byte) []byte {
	c := CRCBytes(data)
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, c[0], c[1])
}

// ValidCRC 校验末尾两字节是否为前序字节的 CRC
func ValidCRC(frame []byte) bool {
	return VerifyCRC(frame) == nil
}

// VerifyCRC 同 ValidCRC，返回具体错误
func VerifyCRC(frame []byte) error {
	if len(frame) < 2 {
		return ErrShortFrame
	}
	want := CRCBytes(frame[:len(frame)-2])
	if frame[len(frame)-2] != want[0] || frame[len(frame)-1] != want[1] {
		return ErrCRCMismatch
	}
	return nil
}
