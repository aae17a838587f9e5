package tcpserver

import (
	"errors"
	"sync"
	"time"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	StateClosed   BreakerState = iota // 正常转发
	StateOpen                         // 熔断：直接返回空应答
	StateHalfOpen                     // 试探：放行少量请求
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen 熔断期内拒绝转发
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests 半开状态试探请求已满
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreaker 会话前置熔断器：连续失败达到阈值后在冷却期内快速失败，
// 冷却结束进入半开，试探成功 probes 次恢复，任一失败重新熔断。
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	consecutive  int // closed 状态下的连续失败数
	probes       int // half-open 已放行的试探数
	probeOK      int
	openedAt     time.Time
	lastChange   time.Time
	tripCount    int64
	totalFailure int64
	totalSuccess int64

	threshold int
	cooldown  time.Duration
	maxProbes int
	now       func() time.Time

	onStateChange func(from, to BreakerState)
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	cb := &CircuitBreaker{
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		maxProbes: 2,
		now:       time.Now,
	}
	cb.lastChange = cb.now()
	return cb
}

// Call 执行 fn，受熔断器保护；熔断时不调用 fn
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.transitionTo(StateHalfOpen)
		cb.probes, cb.probeOK = 0, 0
		fallthrough
	case StateHalfOpen:
		if cb.probes >= cb.maxProbes {
			return ErrTooManyRequests
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.totalFailure++
		switch cb.state {
		case StateClosed:
			cb.consecutive++
			if cb.consecutive >= cb.threshold {
				cb.trip()
			}
		case StateHalfOpen:
			cb.trip()
		}
		return
	}

	cb.totalSuccess++
	switch cb.state {
	case StateClosed:
		cb.consecutive = 0
	case StateHalfOpen:
		cb.probeOK++
		if cb.probeOK >= cb.maxProbes {
			cb.consecutive = 0
			cb.transitionTo(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.tripCount++
	cb.transitionTo(StateOpen)
}

func (cb *CircuitBreaker) transitionTo(to BreakerState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.lastChange = cb.now()
	if cb.onStateChange != nil {
		// 异步回调，避免持锁执行外部逻辑
		go cb.onStateChange(from, to)
	}
}

// State 当前状态；冷却期已过的 open 状态仍报告 open，直到下一次调用
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// SetStateChangeCallback 设置状态变化回调
func (cb *CircuitBreaker) SetStateChangeCallback(fn func(from, to BreakerState)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// Reset 手动恢复到 closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutive, cb.probes, cb.probeOK = 0, 0, 0
	cb.transitionTo(StateClosed)
}

// Stats 统计快照
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		State:               cb.state.String(),
		ConsecutiveFailures: cb.consecutive,
		FailureTotal:        cb.totalFailure,
		SuccessTotal:        cb.totalSuccess,
		TripCount:           cb.tripCount,
		LastStateChange:     cb.lastChange,
	}
}

// CircuitBreakerStats 熔断器统计信息
type CircuitBreakerStats struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FailureTotal        int64     `json:"failure_total"`
	SuccessTotal        int64     `json:"success_total"`
	TripCount           int64     `json:"trip_count"`
	LastStateChange     time.Time `json:"last_state_change"`
}
