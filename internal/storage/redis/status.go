package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/solarman-proxy/internal/session"
)

// HashStore 状态写入目标（*Client 实现）
type HashStore interface {
	PublishHash(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error
}

// StatusKey logger 状态哈希键
func StatusKey(prefix string, serial uint32) string {
	return fmt.Sprintf("%slogger:%d", prefix, serial)
}

// StatusPublisher 把会话状态异步发布到 Redis 哈希。
// 作为 session.Observer 挂载：回调只更新内存快照，由 Run 负责写入。
type StatusPublisher struct {
	store      HashStore
	key        string
	ttl        time.Duration
	instanceID string
	address    string
	log        *zap.Logger
	now        func() time.Time

	mu          sync.Mutex
	state       session.State
	lastResult  string
	lastLatency time.Duration
	lastAt      time.Time
	exchanges   uint64
	pings       uint64

	dirty chan struct{}
}

// NewStatusPublisher 创建状态发布器
func NewStatusPublisher(store HashStore, prefix string, serial uint32, address, instanceID string, ttl time.Duration, log *zap.Logger) *StatusPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &StatusPublisher{
		store:      store,
		key:        StatusKey(prefix, serial),
		ttl:        ttl,
		instanceID: instanceID,
		address:    address,
		log:        log,
		now:        time.Now,
		dirty:      make(chan struct{}, 1),
	}
}

// Key 发布使用的哈希键
func (p *StatusPublisher) Key() string { return p.key }

func (p *StatusPublisher) OnStateChange(s session.State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.markDirty()
}

func (p *StatusPublisher) OnExchange(result string, d time.Duration) {
	p.mu.Lock()
	p.lastResult = result
	p.lastLatency = d
	p.lastAt = p.now()
	p.exchanges++
	p.mu.Unlock()
	p.markDirty()
}

func (p *StatusPublisher) OnFrame(kind string) {
	if kind != session.FramePing {
		return
	}
	p.mu.Lock()
	p.pings++
	p.mu.Unlock()
}

func (p *StatusPublisher) markDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// Snapshot 当前待发布字段
func (p *StatusPublisher) Snapshot() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	fields := map[string]any{
		"state":       p.state.String(),
		"instance_id": p.instanceID,
		"logger_addr": p.address,
		"exchanges":   strconv.FormatUint(p.exchanges, 10),
		"pings":       strconv.FormatUint(p.pings, 10),
		"updated_at":  p.now().UTC().Format(time.RFC3339),
	}
	if !p.lastAt.IsZero() {
		fields["last_result"] = p.lastResult
		fields["last_latency_ms"] = strconv.FormatInt(p.lastLatency.Milliseconds(), 10)
		fields["last_exchange_at"] = p.lastAt.UTC().Format(time.RFC3339)
	}
	return fields
}

// Run 状态变化时立即写入，另按 ttl/2 周期刷新以保持键存活
func (p *StatusPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.ttl / 2)
	defer ticker.Stop()

	p.flush(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.dirty:
			p.flush(ctx)
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

func (p *StatusPublisher) flush(ctx context.Context) {
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.store.PublishHash(wctx, p.key, p.Snapshot(), p.ttl); err != nil && ctx.Err() == nil {
		p.log.Warn("publish logger status failed", zap.String("key", p.key), zap.Error(err))
	}
}
