package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ==================== CallRateLimiter 远程调用限流器 ====================

// CallRateLimiter 按用户的令牌桶限流，防止频繁触发分析/生成/发布
type CallRateLimiter struct {
	limiters sync.Map // key -> *rate.Limiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewCallRateLimiter rps<=0 时不限流
func NewCallRateLimiter(rps float64, burst int) *CallRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &CallRateLimiter{limit: limit, burst: burst, now: time.Now}
}

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 需要等待的时间
}

// Check 消耗一个令牌；不足时不消耗并返回等待时间
func (r *CallRateLimiter) Check(key string) CheckResult {
	actual, _ := r.limiters.LoadOrStore(key, rate.NewLimiter(r.limit, r.burst))
	lim := actual.(*rate.Limiter)

	now := r.now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return CheckResult{Allowed: false, RetryAfter: time.Second}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return CheckResult{Allowed: false, RetryAfter: delay}
	}
	return CheckResult{Allowed: true}
}

// Reset 重置指定 key 的限流
func (r *CallRateLimiter) Reset(key string) {
	r.limiters.Delete(key)
}
