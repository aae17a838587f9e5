package health

import "sync/atomic"

// Readiness 启动阶段就绪标记：监听器已启动且会话已初始化
type Readiness struct {
	listener atomic.Bool
	session  atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetListenerReady(v bool) { r.listener.Store(v) }
func (r *Readiness) SetSessionReady(v bool)  { r.session.Store(v) }

// Ready 各子系统均已就绪
func (r *Readiness) Ready() bool {
	return r.listener.Load() && r.session.Load()
}
