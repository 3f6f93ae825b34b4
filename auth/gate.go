package auth

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"github.com/kochabx/wsgate/core/util/id"
	"github.com/kochabx/wsgate/errors"
	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/metrics"
	middleware "github.com/kochabx/wsgate/middleware/http"
	"github.com/kochabx/wsgate/session"
)

const loginPageHTML = `<html><head><title>Access Denied</title></head><body>Access Denied Please log in</body></html>`

// DefaultLoginPage 返回 403 拒绝访问页
func DefaultLoginPage(c *gin.Context) {
	c.Data(http.StatusForbidden, "text/html; charset=utf-8", []byte(loginPageHTML))
}

// Gate 请求拦截器，在其它处理之前把请求绑定到会话或驱动登录
type Gate struct {
	table   *session.Table
	clock   clockwork.Clock
	logger  *log.Logger
	metrics *metrics.Metrics
	lockout *lockout

	mu             sync.RWMutex
	authenticators []Authenticator
	allowedPaths   []string
	allowed        *middleware.PathMatcher
	timeout        time.Duration
	loginPage      gin.HandlerFunc

	cookieName    string
	logoutPath    string
	anonymous     bool
	purgeSeries   bool
	removeStale   bool
	lockoutWindow time.Duration
}

// New 创建拦截器。会话被移除时按注册的逆序调用每个 Authenticator 的 Unregister。
func New(table *session.Table, opts ...Option) *Gate {
	g := &Gate{
		table:         table,
		clock:         clockwork.NewRealClock(),
		allowedPaths:  DefaultAllowedPaths,
		timeout:       DefaultSessionTimeout,
		loginPage:     DefaultLoginPage,
		cookieName:    session.DefaultCookieName,
		logoutPath:    DefaultLogoutPath,
		purgeSeries:   true,
		removeStale:   true,
		lockoutWindow: DefaultLockout,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = log.OrGlobal(g.logger).Module("auth")
	g.allowed = middleware.NewPathMatcher(g.allowedPaths)
	g.lockout = newLockout(g.clock, g.lockoutWindow)
	table.OnRemove(g.logout)
	return g
}

// Middleware 把拦截器包装为 gin 中间件
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Intercept(c) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// Intercept 处理一次请求。返回 true 表示继续后续处理，
// false 表示响应已经写出。
func (g *Gate) Intercept(c *gin.Context) bool {
	pair, hasCookie := session.FromRequest(c.Request, g.cookieName)
	urlPath := c.Request.URL.Path

	if urlPath == g.logoutPath && hasCookie {
		if _, ok := g.table.Find(pair.Token, pair.SeriesID); ok {
			g.table.Remove(pair.Token)
			if referer := c.Request.Referer(); referer != "" {
				c.Redirect(http.StatusFound, referer)
				return false
			}
			g.renderLoginPage(c)
			return false
		}
	}

	g.mu.RLock()
	allowed := g.allowed.Match(urlPath)
	g.mu.RUnlock()
	if allowed {
		return true
	}

	if hasCookie {
		if info, ok := g.table.Find(pair.Token, pair.SeriesID); ok {
			bindIdentity(c, info.ConstToken)
			g.table.Touch(pair.Token)
			return true
		}
		g.discard(c, pair)
	}

	return g.authenticate(c)
}

// discard 处理没有匹配会话的 cookie
func (g *Gate) discard(c *gin.Context, pair session.Pair) {
	if g.purgeSeries && g.table.RemoveSeriesID(pair.SeriesID) {
		g.metrics.TheftSuspected()
		g.logger.Warn().Str("client_ip", c.ClientIP()).
			Msg("token theft assumed, deleting all tokens that relate to this series")
	}
	if g.removeStale {
		if _, ok := g.table.Find(pair.Token, ""); ok {
			g.table.RemoveWithReason(pair.Token, metrics.ReasonStale)
			g.logger.Info().Str("client_ip", c.ClientIP()).Msg("removed session of stale cookie")
		}
	}
}

// authenticate 没有有效会话时获取凭据并登录
func (g *Gate) authenticate(c *gin.Context) bool {
	g.mu.RLock()
	auths := slices.Clone(g.authenticators)
	anonymous := g.anonymous
	g.mu.RUnlock()

	if len(auths) == 0 {
		if anonymous {
			return g.doLogin(c, &Credentials{})
		}
		g.renderLoginPage(c)
		return false
	}

	for _, a := range auths {
		src, ok := a.(CredentialSource)
		if !ok {
			continue
		}
		if creds := src.Credentials(c); creds != nil {
			return g.doLogin(c, creds)
		}
		if c.Writer.Written() || c.IsAborted() {
			return false
		}
	}

	g.renderLoginPage(c)
	return false
}

// doLogin 用凭据登录，成功后写回新的会话 cookie
func (g *Gate) doLogin(c *gin.Context, creds *Credentials) bool {
	if creds.Token != nil {
		return g.relogin(c, creds)
	}

	pair := session.NewPair()
	constToken, err := g.Login(c.Request.Context(), pair, creds)
	if err != nil {
		g.respond(c, creds, err)
		return false
	}
	http.SetCookie(c.Writer, pair.Cookie(g.cookieName))
	bindIdentity(c, constToken)
	g.respond(c, creds, nil)
	return !c.Writer.Written() && !c.IsAborted()
}

// relogin 凭据携带已有会话的令牌：未锁定且会话存在时直接复用，
// 否则开启或延长该地址的锁定窗口
func (g *Gate) relogin(c *gin.Context, creds *Credentials) bool {
	tok := creds.Token
	if tok.Token == "" {
		g.respond(c, creds, ErrNoToken)
		return false
	}

	key := c.ClientIP()
	if !g.lockout.blocked(key) {
		if info, ok := g.table.Find(tok.Token, tok.SeriesID); ok {
			g.metrics.Login(metrics.LoginReused)
			http.SetCookie(c.Writer, tok.Cookie(g.cookieName))
			bindIdentity(c, info.ConstToken)
			g.respond(c, creds, nil)
			return !c.Writer.Written() && !c.IsAborted()
		}
	}

	g.lockout.arm(key)
	g.metrics.Login(metrics.LoginBlocked)
	g.logger.Warn().Str("client_ip", key).Msg("auto login failed, lockout armed")
	g.respond(c, creds, ErrAutoLoginBlocked)
	return false
}

func (g *Gate) respond(c *gin.Context, creds *Credentials, err error) {
	if creds.Respond != nil {
		creds.Respond(c, err)
		return
	}
	if err != nil {
		g.renderLoginPage(c)
	}
}

// Login 依次调用每个 Authenticator。第 i 个失败时逆序撤销 0..i-1，
// 全部成功后创建会话并返回常量令牌。
func (g *Gate) Login(ctx context.Context, pair session.Pair, creds *Credentials) (string, error) {
	g.mu.RLock()
	auths := slices.Clone(g.authenticators)
	timeout := g.timeout
	g.mu.RUnlock()

	if creds == nil {
		creds = &Credentials{}
	}
	constToken := id.Generate()
	shared := make(map[string]any)

	for i, a := range auths {
		if err := a.Validate(ctx, constToken, creds, shared); err != nil {
			for j := i - 1; j >= 0; j-- {
				auths[j].Unregister(constToken)
			}
			g.metrics.Login(metrics.LoginFailed)
			g.logger.Info().Err(err).Int("step", i).Msg("login failed")
			return "", err
		}
	}

	if creds.Remember {
		timeout = 0
	}
	if err := g.table.Create(pair.Token, pair.SeriesID, constToken, timeout, shared); err != nil {
		for j := len(auths) - 1; j >= 0; j-- {
			auths[j].Unregister(constToken)
		}
		g.metrics.Login(metrics.LoginFailed)
		return "", errors.Wrap(err, errors.Code(err), "create session")
	}
	g.metrics.Login(metrics.LoginSuccess)
	return constToken, nil
}

// logout 会话移除钩子
func (g *Gate) logout(info session.Info) {
	g.mu.RLock()
	auths := slices.Clone(g.authenticators)
	g.mu.RUnlock()
	for j := len(auths) - 1; j >= 0; j-- {
		auths[j].Unregister(info.ConstToken)
	}
}

func (g *Gate) renderLoginPage(c *gin.Context) {
	g.mu.RLock()
	page := g.loginPage
	g.mu.RUnlock()
	page(c)
	c.Abort()
}

// AddAuthenticator 追加 Authenticator 到登录链末尾
func (g *Gate) AddAuthenticator(a Authenticator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authenticators = append(g.authenticators, a)
}

// AddAllowedPath 追加始终放行的路径
func (g *Gate) AddAllowedPath(paths ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed = g.allowed.With(paths...)
}

func (g *Gate) SetLoginPage(h gin.HandlerFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loginPage = h
}

// SetSessionTimeout 修改之后创建的会话的超时
func (g *Gate) SetSessionTimeout(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timeout = d
}

func (g *Gate) SessionTimeout() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.timeout
}

func (g *Gate) SetExpiresWithActiveClients(v bool) {
	g.table.SetExpiresWithActiveClients(v)
}

func (g *Gate) SetLockout(d time.Duration) {
	g.lockout.setWindow(d)
}

// Table 返回会话表
func (g *Gate) Table() *session.Table {
	return g.table
}
