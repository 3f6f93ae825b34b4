package session

import (
	"github.com/jonboulle/clockwork"

	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/metrics"
)

// Option 会话表选项
type Option func(*Table)

// WithClock 替换时钟，测试中注入 clockwork 的假时钟
func WithClock(c clockwork.Clock) Option {
	return func(t *Table) {
		t.clock = c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(t *Table) {
		t.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Table) {
		t.metrics = m
	}
}

// WithExpiresWithActiveClients 有客户端连接的会话是否仍然过期
func WithExpiresWithActiveClients(v bool) Option {
	return func(t *Table) {
		t.withClients = v
	}
}

// WithRemoveHook 会话被移除后调用
func WithRemoveHook(fn func(Info)) Option {
	return func(t *Table) {
		t.hooks = append(t.hooks, fn)
	}
}
