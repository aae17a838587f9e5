package v5

import "sync"

// Sequencer 请求序列号生成器（单字节，模256递增）
type Sequencer struct {
	mu   sync.Mutex
	last byte
}

// NewSequencer 以 start 为当前值创建；首个 Next 返回 start+1
func NewSequencer(start byte) *Sequencer {
	return &Sequencer{last: start}
}

// Next 递增并返回新的请求序列号
func (s *Sequencer) Next() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

// Current 最近一次发出的序列号
func (s *Sequencer) Current() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset 重连后重置起点
func (s *Sequencer) Reset(start byte) {
	s.mu.Lock()
	s.last = start
	s.mu.Unlock()
}

// Correlates 响应帧回显的请求序列号与已发送的一致
func Correlates(sent byte, f *Frame) bool {
	return f != nil && f.Sequence.Request == sent
}
