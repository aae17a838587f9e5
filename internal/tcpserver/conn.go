package tcpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/solarman-proxy/internal/protocol/rtu"
)

// clientConn 单个 RTU over TCP 客户端连接
type clientConn struct {
	s        *Server
	c        net.Conn
	id       uint64
	log      *zap.Logger
	opened   time.Time
	requests int
}

func newClientConn(s *Server, c net.Conn) *clientConn {
	id := s.nextConnID.Add(1)
	return &clientConn{
		s:      s,
		c:      c,
		id:     id,
		log:    s.logger.With(zap.Uint64("conn_id", id), zap.String("remote_addr", c.RemoteAddr().String())),
		opened: time.Now(),
	}
}

// serve 读取一个请求块、转发、写回应答，直到客户端关闭
func (cc *clientConn) serve(ctx context.Context) {
	defer cc.c.Close()
	cc.log.Info("client connected")
	defer func() {
		cc.log.Info("client disconnected",
			zap.Int("requests", cc.requests),
			zap.Duration("duration", time.Since(cc.opened)))
	}()

	buf := make([]byte, cc.s.cfg.ReadBufferSize)
	for {
		if idle := cc.s.cfg.IdleTimeout; idle > 0 {
			_ = cc.c.SetReadDeadline(time.Now().Add(idle))
		}
		n, err := cc.c.Read(buf)
		if n > 0 {
			cc.requests++
			if cc.s.metrics.OnBytesIn != nil {
				cc.s.metrics.OnBytesIn(n)
			}
			req := make([]byte, n)
			copy(req, buf[:n])
			cc.log.Debug("client request", zap.Stringer("request", rtu.Describe(req)))

			resp := cc.s.Forward(ctx, req)
			if len(resp) > 0 {
				if _, werr := cc.c.Write(resp); werr != nil {
					cc.log.Debug("write reply failed", zap.Error(werr))
					return
				}
				if cc.s.metrics.OnBytesOut != nil {
					cc.s.metrics.OnBytesOut(len(resp))
				}
			}
		}
		if err != nil {
			var ne net.Error
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.As(err, &ne) && ne.Timeout():
				cc.log.Info("client idle timeout")
			default:
				cc.log.Debug("client read failed", zap.Error(err))
			}
			return
		}
	}
}
