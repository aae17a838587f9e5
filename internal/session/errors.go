package session

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConnection 无法建立到 logger 的 TCP 连接
	ErrConnection = errors.New("logger connection failed")
	// ErrTimeout 超时未收到关联响应；连接保持
	ErrTimeout = errors.New("logger response timeout")
	// ErrNoSocketAvailable 会话已断开且未能（或不允许）重连
	ErrNoSocketAvailable = errors.New("no logger socket available")
	// ErrInvalidResponse 严格模式下响应 RTU CRC 错误
	ErrInvalidResponse = errors.New("invalid logger response")
	// ErrEmptyResponse logger 未带回逆变器应答
	ErrEmptyResponse = errors.New("empty logger response")
	// ErrClosed 会话被主动断开
	ErrClosed = errors.New("session closed")

	// errNotSent 写失败，请求未发出，重连后可以安全重发
	errNotSent = errors.New("request not sent")
	// errLinkLost 请求已发出后连接断开，不再重发
	errLinkLost = errors.New("link lost while awaiting response")
)

// ConnectError 连接失败详情
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// Result 将交换错误归类为指标标签
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNoSocketAvailable):
		return "no_socket"
	case errors.Is(err, ErrConnection):
		return "connect"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}
