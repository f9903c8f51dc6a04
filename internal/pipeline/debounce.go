package pipeline

import (
	"sync"
	"time"
)

// Debouncer 取消并重启式防抖：静默 delay 后执行最后一次触发对应的动作。
// maxWait > 0 时，连续触发超过 maxWait 会强制执行一次。
type Debouncer struct {
	mu      sync.Mutex
	clock   Clock
	delay   time.Duration
	maxWait time.Duration
	fn      func()

	timer        Timer
	pendingSince time.Time
	seq          uint64
}

// NewDebouncer 创建防抖器
func NewDebouncer(clock Clock, delay, maxWait time.Duration, fn func()) *Debouncer {
	if clock == nil {
		clock = RealClock()
	}
	return &Debouncer{clock: clock, delay: delay, maxWait: maxWait, fn: fn}
}

// Trigger 重新计时
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if d.timer != nil {
		d.timer.Stop()
	} else {
		d.pendingSince = now
	}

	wait := d.delay
	if d.maxWait > 0 {
		if remaining := d.maxWait - now.Sub(d.pendingSince); remaining < wait {
			wait = remaining
		}
		if wait < 0 {
			wait = 0
		}
	}

	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(wait, func() { d.fire(seq) })
}

// Flush 有待执行动作时立即同步执行
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.timer == nil {
		d.mu.Unlock()
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.seq++
	d.mu.Unlock()

	d.fn()
	return true
}

// Cancel 丢弃待执行动作
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// Pending 是否有待执行动作
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	// Stop 与回调竞争时，旧回调可能仍被调度
	if seq != d.seq || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
