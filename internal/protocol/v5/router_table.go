package v5

import "sync"

// Handler 帧处理函数
type Handler func(f *Frame) error

// Table 路由表（控制码 -> handler），未注册的控制码交给 fallback
type Table struct {
	mu       sync.RWMutex
	handlers map[ControlCode]Handler
	fallback Handler
}

func NewTable() *Table { return &Table{handlers: make(map[ControlCode]Handler)} }

func (t *Table) Register(cc ControlCode, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[cc] = h
}

// SetFallback 设置未知/未注册控制码的处理函数
func (t *Table) SetFallback(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallback = h
}

func (t *Table) Route(f *Frame) error {
	t.mu.RLock()
	h, ok := t.handlers[f.ControlCode]
	if !ok {
		h = t.fallback
	}
	t.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h(f)
}
