package websocket

import (
	"net/http"
	"time"

	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/metrics"
)

// Config 连接参数，服务端与客户端共用
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	// 单条入站消息的最大字节数
	MaxMessageSize int64
	PingInterval   time.Duration
	// 超过 PongWait 未收到任何数据则认为连接已断开
	PongWait     time.Duration
	WriteTimeout time.Duration
	// 每个连接的待发送帧数，写满时断开该连接
	SendQueueSize int
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		MaxMessageSize:  1 << 20,
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		WriteTimeout:    10 * time.Second,
		SendQueueSize:   256,
	}
}

// Option 分发器选项
type Option func(*Dispatcher)

func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) {
		d.cfg = cfg
	}
}

func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithCookieName 升级请求中会话 cookie 的名称
func WithCookieName(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.cookieName = name
		}
	}
}

// WithCheckOrigin 替换跨域检查，默认只允许同源
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(d *Dispatcher) {
		d.checkOrigin = fn
	}
}
