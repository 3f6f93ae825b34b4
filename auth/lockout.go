package auth

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// lockout 按客户端地址记录自动登录锁定窗口，过期项在查询时清除
type lockout struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	window time.Duration
	until  map[string]time.Time
}

func newLockout(clock clockwork.Clock, window time.Duration) *lockout {
	return &lockout{
		clock:  clock,
		window: window,
		until:  make(map[string]time.Time),
	}
}

func (l *lockout) blocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.until[key]
	if !ok {
		return false
	}
	if !l.clock.Now().Before(until) {
		delete(l.until, key)
		return false
	}
	return true
}

// arm 开始或延长锁定窗口
func (l *lockout) arm(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.window <= 0 {
		return
	}
	l.until[key] = l.clock.Now().Add(l.window)
}

func (l *lockout) setWindow(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.window = d
}
