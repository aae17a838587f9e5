package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/solarman-proxy/internal/config"
	"github.com/taoyao-code/solarman-proxy/internal/protocol/rtu"
	v5 "github.com/taoyao-code/solarman-proxy/internal/protocol/v5"
)

// Config 会话参数
type Config struct {
	Address         string // host:port
	Serial          uint32
	AutoReconnect   bool
	Timeout         time.Duration // 等待关联响应的时限
	ConnectTimeout  time.Duration
	AnswerKeepalive bool
	StrictCRC       bool
	MaxFrameLen     int
}

// ConfigFrom 由 logger 配置段构造会话参数
func ConfigFrom(c config.LoggerConfig) Config {
	return Config{
		Address:         c.Addr(),
		Serial:          c.Serial,
		AutoReconnect:   c.AutoReconnect,
		Timeout:         c.SocketTimeout(),
		ConnectTimeout:  c.ConnectTimeout,
		AnswerKeepalive: c.AnswerKeepalive,
		StrictCRC:       c.StrictCRC,
		MaxFrameLen:     c.MaxFrameLen,
	}
}

// Option 会话可选项
type Option func(*Session)

// WithDialer 替换默认拨号器
func WithDialer(d Dialer) Option { return func(s *Session) { s.dialer = d } }

// WithObserver 追加事件观察者
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithSequenceStart 指定每次连接后的序列号起点（默认随机非零）
func WithSequenceStart(fn func() byte) Option { return func(s *Session) { s.seqStart = fn } }

// Session 与单个 logger 的长连接会话。
// Exchange 通过 gate 串行化：同一时刻最多一个请求在途，对应唯一的 pending 槽位。
type Session struct {
	cfg       Config
	log       *zap.Logger
	dialer    Dialer
	observers []Observer
	seq       *v5.Sequencer
	seqStart  func() byte
	now       func() time.Time

	gate chan struct{}

	mu      sync.Mutex
	state   State
	link    *link
	pending *pending
	closed  bool // Disconnect 之后不再自动重连，直到再次 Connect

	exchanges atomic.Uint64
	failures  atomic.Uint64
	dials     atomic.Uint64
	stale     atomic.Uint64
	pings     atomic.Uint64
	lastAt    atomic.Int64
	lastErr   atomic.Value // string
}

type pending struct {
	seq byte
	ch  chan *v5.Frame
}

// New 创建会话；不会立即连接
func New(cfg Config, log *zap.Logger, opts ...Option) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.MaxFrameLen <= 0 {
		cfg.MaxFrameLen = 1024
	}
	s := &Session{
		cfg:      cfg,
		log:      log.With(zap.String("logger_addr", cfg.Address), zap.Uint32("logger_serial", cfg.Serial)),
		dialer:   &net.Dialer{KeepAlive: 30 * time.Second},
		seq:      v5.NewSequencer(0),
		seqStart: func() byte { return byte(rand.IntN(255) + 1) },
		now:      time.Now,
		gate:     make(chan struct{}, 1),
	}
	s.lastErr.Store("")
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State 当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Serial logger 序列号
func (s *Session) Serial() uint32 { return s.cfg.Serial }

// Address logger 地址
func (s *Session) Address() string { return s.cfg.Address }

// Stats 统计快照
func (s *Session) Stats() Stats {
	st := Stats{
		State:        s.State(),
		Exchanges:    s.exchanges.Load(),
		Failures:     s.failures.Load(),
		Dials:        s.dials.Load(),
		StaleFrames:  s.stale.Load(),
		Pings:        s.pings.Load(),
		LastSequence: s.seq.Current(),
		LastError:    s.lastErr.Load().(string),
	}
	if ns := s.lastAt.Load(); ns > 0 {
		st.LastExchange = time.Unix(0, ns)
	}
	return st
}

// Connect 建立连接（已连接时直接返回）；同时解除 Disconnect 的关闭状态
func (s *Session) Connect(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()
	if s.currentLink() != nil {
		return nil
	}
	_, err := s.connect(ctx)
	return err
}

// Disconnect 关闭连接并唤醒等待中的交换；可重复调用。
// 之后的 Exchange 返回 ErrNoSocketAvailable，直到再次调用 Connect。
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.closed = true
	lnk := s.link
	s.link = nil
	changed := s.setStateLocked(Disconnected)
	s.mu.Unlock()

	if lnk != nil {
		lnk.close(ErrClosed)
		s.log.Info("logger disconnected")
	}
	if changed {
		s.notifyState(Disconnected)
	}
}

// Exchange 发送一个 RTU 请求并等待关联的 RTU 响应。
// 连接丢失时按 AutoReconnect 最多重连一次；请求已发出后不会重发。
func (s *Session) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	start := s.now()
	resp, err := s.exchange(ctx, req)
	elapsed := s.now().Sub(start)

	s.exchanges.Add(1)
	s.lastAt.Store(s.now().UnixNano())
	if err != nil {
		s.failures.Add(1)
		s.lastErr.Store(err.Error())
		s.log.Warn("exchange failed",
			zap.Stringer("request", rtu.Describe(req)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	} else {
		s.lastErr.Store("")
	}
	result := Result(err)
	for _, o := range s.observers {
		o.OnExchange(result, elapsed)
	}
	return resp, err
}

func (s *Session) exchange(ctx context.Context, req []byte) ([]byte, error) {
	dialed := false

	lnk := s.currentLink()
	if lnk == nil {
		if s.userClosed() {
			return nil, fmt.Errorf("%w: %w", ErrNoSocketAvailable, ErrClosed)
		}
		if !s.cfg.AutoReconnect {
			return nil, ErrNoSocketAvailable
		}
		dialed = true
		var err error
		if lnk, err = s.connect(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoSocketAvailable, err)
		}
	}

	resp, err := s.roundTrip(ctx, lnk, req)
	switch {
	case errors.Is(err, errNotSent):
		// 未发出，允许在本次调用内重连并发送一次
		if !s.cfg.AutoReconnect || dialed || s.userClosed() {
			return nil, fmt.Errorf("%w: %w", ErrNoSocketAvailable, err)
		}
		if lnk, err = s.connect(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoSocketAvailable, err)
		}
		resp, err = s.roundTrip(ctx, lnk, req)
		if errors.Is(err, errNotSent) || errors.Is(err, errLinkLost) {
			return nil, fmt.Errorf("%w: %w", ErrNoSocketAvailable, err)
		}
		return resp, err

	case errors.Is(err, errLinkLost):
		// 已发出的请求不重发；仅恢复连接供后续调用使用
		if s.cfg.AutoReconnect && !dialed && !lnk.closedByUser() && !s.userClosed() {
			if _, cerr := s.connect(ctx); cerr != nil {
				return nil, fmt.Errorf("%w: %w", ErrNoSocketAvailable, cerr)
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrNoSocketAvailable, err)
	}
	return resp, err
}

// roundTrip 在给定连接上完成一次请求/响应
func (s *Session) roundTrip(ctx context.Context, lnk *link, req []byte) ([]byte, error) {
	seq := s.seq.Next()
	p := &pending{seq: seq, ch: make(chan *v5.Frame, 1)}

	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.pending == p {
			s.pending = nil
		}
		s.mu.Unlock()
	}()

	if err := lnk.write(v5.BuildRequest(seq, s.cfg.Serial, req), s.cfg.Timeout); err != nil {
		s.drop(lnk, err)
		return nil, fmt.Errorf("%w: %w", errNotSent, err)
	}

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case f := <-p.ch:
		return s.accept(f)
	case <-lnk.done:
		return nil, fmt.Errorf("%w: %w", errLinkLost, lnk.cause())
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// accept 对关联响应应用校验策略并返回 RTU 负载副本
func (s *Session) accept(f *v5.Frame) ([]byte, error) {
	if len(f.RTUPayload) < rtu.MinFrameLen {
		return nil, fmt.Errorf("%w: rtu payload %d bytes", ErrEmptyResponse, len(f.RTUPayload))
	}
	if !f.RTUCRCValid {
		if s.cfg.StrictCRC {
			return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, v5.ErrRTUCRCInvalid)
		}
		s.log.Warn("response rtu crc invalid, passing through",
			zap.Uint8("seq", f.Sequence.Request),
			zap.Binary("rtu", f.RTUPayload))
	}
	if rtu.IsException(f.RTUPayload) {
		// 异常响应原样透传，由 Modbus 客户端解释
		s.log.Debug("logger returned modbus exception",
			zap.Uint8("seq", f.Sequence.Request),
			zap.Binary("rtu", f.RTUPayload))
	}
	out := make([]byte, len(f.RTUPayload))
	copy(out, f.RTUPayload)
	return out, nil
}

// connect 拨号并启动后台读循环；调用方持有 gate
func (s *Session) connect(ctx context.Context) (*link, error) {
	s.mu.Lock()
	changed := s.setStateLocked(Connecting)
	s.mu.Unlock()
	if changed {
		s.notifyState(Connecting)
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	s.dials.Add(1)
	conn, err := s.dialer.DialContext(dctx, "tcp", s.cfg.Address)
	if err != nil {
		s.mu.Lock()
		changed = s.setStateLocked(Disconnected)
		s.mu.Unlock()
		if changed {
			s.notifyState(Disconnected)
		}
		s.log.Warn("logger connect failed", zap.Error(err))
		return nil, &ConnectError{Addr: s.cfg.Address, Err: err}
	}

	lnk := newLink(conn)
	s.seq.Reset(s.seqStart())

	s.mu.Lock()
	old := s.link
	s.link = lnk
	s.setStateLocked(Connected)
	s.mu.Unlock()
	if old != nil {
		old.close(ErrClosed)
	}
	s.notifyState(Connected)

	s.log.Info("logger connected", zap.String("local", conn.LocalAddr().String()))
	go s.readLoop(lnk)
	return lnk, nil
}

// drop 连接出错后摘除；仅对当前连接生效
func (s *Session) drop(lnk *link, err error) {
	s.mu.Lock()
	current := s.link == lnk
	changed := false
	if current {
		s.link = nil
		changed = s.setStateLocked(Disconnected)
	}
	s.mu.Unlock()

	lnk.close(err)
	if current {
		s.log.Warn("logger connection lost", zap.Error(err))
	}
	if changed {
		s.notifyState(Disconnected)
	}
}

func (s *Session) userClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) currentLink() *link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

func (s *Session) setStateLocked(st State) bool {
	if s.state == st {
		return false
	}
	s.state = st
	return true
}

func (s *Session) notifyState(st State) {
	for _, o := range s.observers {
		o.OnStateChange(st)
	}
}

func (s *Session) notifyFrame(kind string) {
	for _, o := range s.observers {
		o.OnFrame(kind)
	}
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() { <-s.gate }
