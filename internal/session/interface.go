package session

import (
	"context"
	"net"
	"time"
)

// State 会话状态
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// 入站帧分类，供 Observer.OnFrame 使用
const (
	FrameResponse = "response"
	FrameStale    = "stale"
	FramePing     = "ping"
	FrameForeign  = "foreign"
	FrameOther    = "other"
)

// Dialer 建立到 logger 的连接；默认 net.Dialer
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Observer 会话事件回调（指标、状态发布）。
// 回调在会话内部 goroutine 中同步执行，实现方不应阻塞。
type Observer interface {
	OnStateChange(s State)
	OnExchange(result string, d time.Duration)
	OnFrame(kind string)
}

// Stats 会话统计快照
type Stats struct {
	State        State
	Exchanges    uint64
	Failures     uint64
	Dials        uint64
	StaleFrames  uint64
	Pings        uint64
	LastSequence uint8 // 最近一次发出的请求序列号
	LastExchange time.Time
	LastError    string
}
