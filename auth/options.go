package auth

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/metrics"
)

// DefaultAllowedPaths 始终放行的静态资源
var DefaultAllowedPaths = []string{
	"/client.js",
	"/client.libs.js",
	"/client.min.js",
	"/client.min.js.map",
	"/public/**",
}

const (
	DefaultSessionTimeout = 2 * time.Minute
	DefaultLockout        = 5 * time.Minute
	DefaultLogoutPath     = "/logout"
)

type Option func(*Gate)

func WithClock(c clockwork.Clock) Option {
	return func(g *Gate) {
		g.clock = c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithCookieName 会话 cookie 名，默认 "sesh"
func WithCookieName(name string) Option {
	return func(g *Gate) {
		g.cookieName = name
	}
}

// WithSessionTimeout 非记住登录会话的超时
func WithSessionTimeout(d time.Duration) Option {
	return func(g *Gate) {
		g.timeout = d
	}
}

// WithAllowedPaths 替换始终放行的路径
func WithAllowedPaths(paths ...string) Option {
	return func(g *Gate) {
		g.allowedPaths = paths
	}
}

// WithAnonymous 没有 Authenticator 时为每个访问者创建会话
func WithAnonymous(v bool) Option {
	return func(g *Gate) {
		g.anonymous = v
	}
}

// WithPurgeSeriesOnMismatch 系列号存在但令牌不匹配时清除整个系列
func WithPurgeSeriesOnMismatch(v bool) Option {
	return func(g *Gate) {
		g.purgeSeries = v
	}
}

// WithRemoveStaleToken 令牌匹配但系列号不同时移除该令牌的会话
func WithRemoveStaleToken(v bool) Option {
	return func(g *Gate) {
		g.removeStale = v
	}
}

// WithLockout 自动登录锁定窗口
func WithLockout(d time.Duration) Option {
	return func(g *Gate) {
		g.lockoutWindow = d
	}
}

func WithLoginPage(h gin.HandlerFunc) Option {
	return func(g *Gate) {
		g.loginPage = h
	}
}

func WithLogoutPath(p string) Option {
	return func(g *Gate) {
		g.logoutPath = p
	}
}

func WithAuthenticators(auths ...Authenticator) Option {
	return func(g *Gate) {
		g.authenticators = append(g.authenticators, auths...)
	}
}
