package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/solarman-proxy/internal/config"
)

// Exchanger 将一个 RTU 请求转换为 RTU 响应（由 logger 会话实现）
type Exchanger interface {
	Exchange(ctx context.Context, req []byte) ([]byte, error)
}

// MetricsCallbacks 可选指标回调
type MetricsCallbacks struct {
	OnAccept   func()
	OnClose    func()
	OnReject   func(reason string)
	OnBytesIn  func(n int)
	OnBytesOut func(n int)
}

// Server RTU over TCP 监听器：所有客户端共享同一个 Exchanger
type Server struct {
	cfg    cfgpkg.ProxyConfig
	ex     Exchanger
	logger *zap.Logger

	ln       net.Listener
	wg       sync.WaitGroup
	stopC    chan struct{}
	stopOnce sync.Once
	baseCtx  context.Context
	cancel   context.CancelFunc

	nextConnID  atomic.Uint64
	connLimiter *ConnectionLimiter
	rateLimiter *RateLimiter
	breaker     *CircuitBreaker // 未启用时为 nil
	metrics     MetricsCallbacks

	mu    sync.Mutex
	conns map[uint64]*clientConn
}

// New 创建监听器（未启动）
func New(cfg cfgpkg.ProxyConfig, ex Exchanger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         cfg,
		ex:          ex,
		logger:      logger,
		stopC:       make(chan struct{}),
		baseCtx:     ctx,
		cancel:      cancel,
		connLimiter: NewConnectionLimiter(cfg.MaxConnections),
		rateLimiter: NewRateLimiter(cfg.AcceptRate, cfg.AcceptBurst),
		conns:       make(map[uint64]*clientConn),
	}
	if cfg.Breaker.Enable {
		s.breaker = NewCircuitBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown)
		s.breaker.SetStateChangeCallback(func(from, to BreakerState) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		})
	}
	return s
}

// SetMetricsCallbacks 设置指标回调；需在 Start 之前调用
func (s *Server) SetMetricsCallbacks(cb MetricsCallbacks) { s.metrics = cb }

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("proxy listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("max_connections", s.connLimiter.MaxConnections()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// 短暂错误等待后重试
			s.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.rateLimiter.Allow() {
			s.reject(conn, "rate")
			continue
		}
		if !s.connLimiter.TryAcquire() {
			s.reject(conn, "limit")
			continue
		}
		if s.metrics.OnAccept != nil {
			s.metrics.OnAccept()
		}

		cc := newClientConn(s, conn)
		s.mu.Lock()
		s.conns[cc.id] = cc
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.connLimiter.Release()
			defer s.untrack(cc)
			cc.serve(s.baseCtx)
		}()
	}
}

func (s *Server) reject(conn net.Conn, reason string) {
	s.logger.Warn("client rejected",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.String("reason", reason))
	if s.metrics.OnReject != nil {
		s.metrics.OnReject(reason)
	}
	_ = conn.Close()
}

func (s *Server) untrack(cc *clientConn) {
	s.mu.Lock()
	delete(s.conns, cc.id)
	s.mu.Unlock()
	if s.metrics.OnClose != nil {
		s.metrics.OnClose()
	}
}

// Forward 把一个客户端请求交给共享会话；任何失败都返回空应答，不影响连接与其它客户端
func (s *Server) Forward(ctx context.Context, req []byte) []byte {
	var resp []byte
	call := func() error {
		r, err := s.ex.Exchange(ctx, req)
		resp = r
		return err
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Call(call)
	} else {
		err = call()
	}
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
			s.logger.Debug("forward short-circuited", zap.Error(err))
		}
		return nil
	}
	return resp
}

// Addr 实际监听地址；未启动时为 nil
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ActiveConnections 当前客户端连接数
func (s *Server) ActiveConnections() int { return s.connLimiter.Current() }

// MaxConnections 客户端连接上限
func (s *Server) MaxConnections() int { return s.connLimiter.MaxConnections() }

// GetLimiterStats 连接限流统计
func (s *Server) GetLimiterStats() LimiterStats { return s.connLimiter.Stats() }

// GetRateLimiterStats accept 速率统计
func (s *Server) GetRateLimiterStats() RateLimiterStats { return s.rateLimiter.Stats() }

// GetCircuitBreakerStats 熔断器统计；未启用时返回 nil
func (s *Server) GetCircuitBreakerStats() *CircuitBreakerStats {
	if s.breaker == nil {
		return nil
	}
	st := s.breaker.Stats()
	return &st
}

// Shutdown 停止监听，关闭所有客户端连接并等待其退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopC)
		if s.ln != nil {
			_ = s.ln.Close()
		}
		s.cancel()
		s.mu.Lock()
		for _, cc := range s.conns {
			_ = cc.c.Close()
		}
		s.mu.Unlock()
	})

	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		s.logger.Info("proxy listener stopped")
		return nil
	}
}
