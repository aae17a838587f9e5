package tcpserver

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter accept 速率限制（令牌桶），抵御客户端重连风暴
type RateLimiter struct {
	limiter  *rate.Limiter
	perSec   int
	burst    int
	allowed  atomic.Int64
	rejected atomic.Int64
}

// NewRateLimiter ratePerSec<=0 表示不限速
func NewRateLimiter(ratePerSec, burst int) *RateLimiter {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		if burst <= 0 {
			burst = ratePerSec * 2
		}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		perSec:  ratePerSec,
		burst:   burst,
	}
}

// Allow 非阻塞取令牌
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowed.Add(1)
		return true
	}
	l.rejected.Add(1)
	return false
}

// Stats 统计快照
func (l *RateLimiter) Stats() RateLimiterStats {
	return RateLimiterStats{
		RatePerSecond: l.perSec,
		Burst:         l.burst,
		AllowedTotal:  l.allowed.Load(),
		RejectedTotal: l.rejected.Load(),
	}
}

// RateLimiterStats 速率限流统计
type RateLimiterStats struct {
	RatePerSecond int   `json:"rate_per_second"`
	Burst         int   `json:"burst"`
	AllowedTotal  int64 `json:"allowed_total"`
	RejectedTotal int64 `json:"rejected_total"`
}
