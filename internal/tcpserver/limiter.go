package tcpserver

import "sync/atomic"

// ConnectionLimiter 客户端并发连接上限（信号量）
type ConnectionLimiter struct {
	sem      chan struct{}
	maxConn  int
	active   atomic.Int64
	rejected atomic.Int64
}

// NewConnectionLimiter 创建连接限流器；maxConn<=0 时取 64
func NewConnectionLimiter(maxConn int) *ConnectionLimiter {
	if maxConn <= 0 {
		maxConn = 64
	}
	return &ConnectionLimiter{sem: make(chan struct{}, maxConn), maxConn: maxConn}
}

// TryAcquire 非阻塞获取许可；已满时计入拒绝数
func (l *ConnectionLimiter) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		l.rejected.Add(1)
		return false
	}
}

// Release 释放许可
func (l *ConnectionLimiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
	default:
	}
}

// Current 当前活跃连接数
func (l *ConnectionLimiter) Current() int { return int(l.active.Load()) }

// MaxConnections 最大连接数
func (l *ConnectionLimiter) MaxConnections() int { return l.maxConn }

// Stats 统计快照
func (l *ConnectionLimiter) Stats() LimiterStats {
	cur := l.Current()
	return LimiterStats{
		MaxConnections:    l.maxConn,
		ActiveConnections: cur,
		RejectedTotal:     l.rejected.Load(),
		Utilization:       float64(cur) / float64(l.maxConn),
	}
}

// LimiterStats 连接限流统计
type LimiterStats struct {
	MaxConnections    int     `json:"max_connections"`
	ActiveConnections int     `json:"active_connections"`
	RejectedTotal     int64   `json:"rejected_total"`
	Utilization       float64 `json:"utilization"`
}
