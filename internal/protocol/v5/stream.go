package v5

import "encoding/binary"

// StreamDecoder 处理半包/粘包的流式解码器：按起始字节 + len 字段切分
type StreamDecoder struct {
	buf         []byte
	maxFrameLen int // 保护上限，避免畸形数据占用过多内存
	discarded   int
}

// NewStreamDecoder 创建流式解码器
func NewStreamDecoder(maxFrameLen int) *StreamDecoder {
	if maxFrameLen <= 0 {
		maxFrameLen = 1024
	}
	return &StreamDecoder{maxFrameLen: maxFrameLen}
}

// Feed 追加数据并尽可能解出多帧；仅返回起止字节与校验和均正确的帧
func (d *StreamDecoder) Feed(p []byte) []*Frame {
	if len(p) == 0 {
		return nil
	}
	d.buf = append(d.buf, p...)
	var frames []*Frame

	for {
		start := indexStart(d.buf)
		if start < 0 {
			// 无起始字节，整体丢弃
			d.discarded += len(d.buf)
			d.buf = d.buf[:0]
			return frames
		}
		if start > 0 {
			d.discarded += start
			d.buf = d.buf[start:]
		}
		if len(d.buf) < 3 {
			return frames
		}
		total := int(binary.LittleEndian.Uint16(d.buf[1:3])) + Overhead
		if total < MinFrameLen || total > d.maxFrameLen {
			d.slide()
			continue
		}
		if len(d.buf) < total {
			// 半包，等待更多
			return frames
		}

		candidate := d.buf[:total]
		if candidate[total-1] != EndByte {
			d.slide()
			continue
		}
		fr, err := Decode(candidate)
		if err != nil || !fr.Valid() {
			d.slide()
			continue
		}
		frames = append(frames, fr)
		d.buf = d.buf[total:]
		if len(d.buf) == 0 {
			// 释放底层数组，避免长期持有
			d.buf = nil
			return frames
		}
	}
}

// Discarded 累计丢弃的字节数
func (d *StreamDecoder) Discarded() int { return d.discarded }

// Buffered 当前缓冲的未成帧字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

// Reset 清空缓冲（重连时调用）
func (d *StreamDecoder) Reset() { d.buf = nil }

func (d *StreamDecoder) slide() {
	d.discarded++
	d.buf = d.buf[1:]
}

func indexStart(b []byte) int {
	for i, v := range b {
		if v == StartByte {
			return i
		}
	}
	return -1
}
