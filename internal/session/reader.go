package session

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	v5 "github.com/taoyao-code/solarman-proxy/internal/protocol/v5"
)

// link 一条物理连接及其读循环的生命周期
type link struct {
	conn net.Conn
	done chan struct{}

	writeMu sync.Mutex

	once sync.Once
	mu   sync.Mutex
	err  error
}

func newLink(conn net.Conn) *link {
	return &link{conn: conn, done: make(chan struct{})}
}

// write 整帧写出；请求写入与心跳应答共用同一把锁，避免交错
func (l *link) write(b []byte, timeout time.Duration) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if timeout > 0 {
		_ = l.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	_, err := l.conn.Write(b)
	return err
}

func (l *link) close(cause error) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err = cause
		l.mu.Unlock()
		_ = l.conn.Close()
		close(l.done)
	})
}

func (l *link) cause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *link) closedByUser() bool {
	return errors.Is(l.cause(), ErrClosed)
}

// readLoop 持续读取并分发入站帧，直到连接关闭
func (s *Session) readLoop(lnk *link) {
	dec := v5.NewStreamDecoder(s.cfg.MaxFrameLen)
	routes := s.routes(lnk)
	buf := make([]byte, 1024)

	for {
		n, err := lnk.conn.Read(buf)
		if n > 0 {
			before := dec.Discarded()
			for _, f := range dec.Feed(buf[:n]) {
				if f.LoggerSerial != s.cfg.Serial {
					s.log.Debug("drop frame from foreign serial",
						zap.Uint32("serial", f.LoggerSerial),
						zap.Stringer("control", f.ControlCode))
					s.notifyFrame(FrameForeign)
					continue
				}
				if rerr := routes.Route(f); rerr != nil {
					s.log.Warn("frame handler failed", zap.Stringer("control", f.ControlCode), zap.Error(rerr))
				}
			}
			if d := dec.Discarded() - before; d > 0 {
				s.log.Debug("discarded unframed bytes", zap.Int("bytes", d), zap.Int("buffered", dec.Buffered()))
			}
		}
		if err != nil {
			select {
			case <-lnk.done:
				// 主动关闭
			default:
				s.drop(lnk, err)
			}
			return
		}
	}
}

// routes 构造按控制码分发的路由表；心跳应答写回同一连接
func (s *Session) routes(lnk *link) *v5.Table {
	t := v5.NewTable()
	t.Register(v5.ControlResponse, s.onResponse)
	t.Register(v5.ControlLoggerPing, func(f *v5.Frame) error {
		s.pings.Add(1)
		s.notifyFrame(FramePing)
		if !s.cfg.AnswerKeepalive {
			return nil
		}
		s.log.Debug("answer logger keepalive", zap.Stringer("seq", f.Sequence))
		return lnk.write(v5.BuildPingAck(f, uint32(s.now().Unix())), s.cfg.Timeout)
	})
	t.SetFallback(func(f *v5.Frame) error {
		s.notifyFrame(FrameOther)
		s.log.Debug("ignore unsolicited frame",
			zap.Stringer("control", f.ControlCode),
			zap.Stringer("type", f.FrameType),
			zap.Int("rtu_len", len(f.RTUPayload)))
		return nil
	})
	return t
}

// onResponse 把关联响应投递给等待中的交换；其余视为过期帧丢弃
func (s *Session) onResponse(f *v5.Frame) error {
	s.mu.Lock()
	p := s.pending
	if p != nil && v5.Correlates(p.seq, f) {
		s.pending = nil
	} else {
		p = nil
	}
	s.mu.Unlock()

	if p == nil {
		s.stale.Add(1)
		s.notifyFrame(FrameStale)
		s.log.Debug("drop stale response", zap.Stringer("seq", f.Sequence))
		return nil
	}
	s.notifyFrame(FrameResponse)
	p.ch <- f
	return nil
}
