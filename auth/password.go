package auth

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/kochabx/wsgate/errors"
	"github.com/kochabx/wsgate/session"
)

// DefaultLoginPath 密码登录表单提交的路径
const DefaultLoginPath = "/login"

// PasswordAuthenticator 用户名密码登录，密码以 bcrypt 哈希保存。
// 凭据来自提交到登录路径的 POST 表单: username、password、remember，
// 或携带已有会话 cookie 值的 token 字段。
type PasswordAuthenticator struct {
	path string

	mu     sync.RWMutex
	users  map[string][]byte // 用户名 -> bcrypt 哈希
	active map[string]string // 常量令牌 -> 用户名
	// dummy 用于未知用户的比较，代价取已配置哈希中的最高值
	dummy []byte
}

// NewPasswordAuthenticator 创建密码认证器，users 为用户名到 bcrypt 哈希的映射
func NewPasswordAuthenticator(users map[string]string, loginPath string) *PasswordAuthenticator {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	p := &PasswordAuthenticator{
		path:   loginPath,
		active: make(map[string]string),
	}
	p.SetUsers(users)
	return p
}

// SetUsers 替换用户表，已登录的会话不受影响
func (p *PasswordAuthenticator) SetUsers(users map[string]string) {
	m := make(map[string][]byte, len(users))
	cost := 0
	for name, hash := range users {
		m[name] = []byte(hash)
		if c, err := bcrypt.Cost(m[name]); err == nil && c > cost {
			cost = c
		}
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	p.mu.RLock()
	dummy := p.dummy
	p.mu.RUnlock()
	if c, err := bcrypt.Cost(dummy); err != nil || c != cost {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("wsgate"), cost)
	}

	p.mu.Lock()
	p.users = m
	p.dummy = dummy
	p.mu.Unlock()
}

// HashPassword 生成 bcrypt 哈希
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.Wrap(err, 400, "hash password")
	}
	return string(hash), nil
}

// Credentials 实现 CredentialSource
func (p *PasswordAuthenticator) Credentials(c *gin.Context) *Credentials {
	if c.Request.Method != http.MethodPost || c.Request.URL.Path != p.path {
		return nil
	}

	creds := &Credentials{
		Values: map[string]string{
			"username": c.PostForm("username"),
			"password": c.PostForm("password"),
		},
		Respond: respondLogin,
	}
	creds.Remember, _ = strconv.ParseBool(c.PostForm("remember"))

	if raw, ok := c.GetPostForm("token"); ok {
		pair, _ := session.ParseCookie(raw)
		creds.Token = &pair
	}
	return creds
}

// respondLogin 成功时跳转到首页，失败时返回错误状态
func respondLogin(c *gin.Context, err error) {
	if err != nil {
		e := errors.FromError(err)
		c.AbortWithStatusJSON(e.Code, e.Status)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// Validate 实现 Authenticator
func (p *PasswordAuthenticator) Validate(_ context.Context, identity string, creds *Credentials, shared map[string]any) error {
	name := creds.Value("username")

	p.mu.RLock()
	hash, ok := p.users[name]
	dummy := p.dummy
	p.mu.RUnlock()
	if !ok || name == "" {
		// 未知用户同样比较一次
		_ = bcrypt.CompareHashAndPassword(dummy, []byte(creds.Value("password")))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(creds.Value("password"))); err != nil {
		return ErrInvalidCredentials
	}

	shared["user"] = name
	p.mu.Lock()
	p.active[identity] = name
	p.mu.Unlock()
	return nil
}

// Unregister 实现 Authenticator
func (p *PasswordAuthenticator) Unregister(identity string) {
	p.mu.Lock()
	delete(p.active, identity)
	p.mu.Unlock()
}

// User 返回已登录会话的用户名
func (p *PasswordAuthenticator) User(identity string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	name, ok := p.active[identity]
	return name, ok
}
