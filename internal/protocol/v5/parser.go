package v5

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/taoyao-code/solarman-proxy/internal/protocol/rtu"
)

var (
	// ErrMalformedFrame 帧结构无法解析
	ErrMalformedFrame = errors.New("malformed v5 frame")
	ErrShortFrame     = fmt.Errorf("%w: short frame", ErrMalformedFrame)
	ErrInvalidStart   = fmt.Errorf("%w: invalid start byte", ErrMalformedFrame)
	ErrInvalidEnd     = fmt.Errorf("%w: invalid end byte", ErrMalformedFrame)
	ErrTruncated      = fmt.Errorf("%w: header exceeds frame", ErrMalformedFrame)

	// 以下两个错误不会由 Decode 返回，仅用于 Frame.Validate
	ErrChecksumInvalid = errors.New("v5 checksum invalid")
	ErrRTUCRCInvalid   = errors.New("rtu crc invalid")
)

// Checksum V5 校验和：累加（溢出丢弃高位）
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// frameChecksum 覆盖起始字节之后、校验和之前的全部字节
func frameChecksum(raw []byte) byte {
	return Checksum(raw[1 : len(raw)-TrailerLen])
}

// Decode 解析一帧。
// 起止字节错误直接返回错误；校验和与 RTU CRC 不一致时仍解析成功，结果通过标志暴露。
func Decode(raw []byte) (*Frame, error) {
	if len(raw) < MinFrameLen {
		return nil, ErrShortFrame
	}
	if raw[0] != StartByte {
		return nil, ErrInvalidStart
	}
	if raw[len(raw)-1] != EndByte {
		return nil, ErrInvalidEnd
	}

	f := &Frame{
		Start:        raw[0],
		Length:       binary.LittleEndian.Uint16(raw[1:3]),
		ControlCode:  ControlCode(binary.LittleEndian.Uint16(raw[3:5])),
		Sequence:     Sequence{Request: raw[5], Response: raw[6]},
		LoggerSerial: binary.LittleEndian.Uint32(raw[7:11]),
		Checksum:     raw[len(raw)-2],
		End:          raw[len(raw)-1],
	}

	// 心跳帧可省略帧类型与状态字节，缺省按 KeepAlive / 0 处理
	body := len(raw) - TrailerLen
	if body > HeaderLen {
		f.FrameType = FrameType(raw[HeaderLen])
	}
	if body > HeaderLen+1 {
		f.Status = raw[HeaderLen+1]
	}

	off := payloadOffset(f.ControlCode, f.FrameType)
	if off > body {
		if f.FrameType.hasTimes() {
			return nil, ErrTruncated
		}
		off = body
	}
	if f.ControlCode.hasStatusExt() && timeOffset < body {
		f.StatusExt = raw[timeOffset]
	}
	if f.FrameType.hasTimes() {
		t := timeOffset
		if f.ControlCode.hasStatusExt() {
			t++
		}
		f.TotalWorkTime = binary.LittleEndian.Uint32(raw[t : t+4])
		f.PowerOnTime = binary.LittleEndian.Uint32(raw[t+4 : t+8])
		f.OffsetTime = binary.LittleEndian.Uint32(raw[t+8 : t+12])
	}

	f.ChecksumValid = frameChecksum(raw) == f.Checksum

	payload := raw[off:body]
	f.RTUPayload = make([]byte, len(payload))
	copy(f.RTUPayload, payload)
	if n := len(payload); n >= 2 {
		f.FrameCRC = binary.BigEndian.Uint16(payload[n-2:])
		f.RTUCRCValid = rtu.ValidCRC(payload)
	}
	return f, nil
}

// LengthValid len 字段与实际帧长一致
func (f *Frame) LengthValid(raw []byte) bool {
	return int(f.Length)+Overhead == len(raw)
}
