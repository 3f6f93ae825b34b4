package session

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/kochabx/wsgate/core/util/id"
)

// DefaultCookieName 会话 cookie 名
const DefaultCookieName = "sesh"

const (
	tokenBytes  = 10
	seriesBytes = 10
)

// Pair 会话 cookie 中的令牌与系列号
type Pair struct {
	Token    string
	SeriesID string
}

// NewPair 生成新的随机令牌与系列号
func NewPair() Pair {
	return Pair{Token: id.Hex(tokenBytes), SeriesID: id.Hex(seriesBytes)}
}

// Encode 编码为 cookie 值 "token-seriesId"
func (p Pair) Encode() string {
	return url.PathEscape(p.Token + "-" + p.SeriesID)
}

// ParseCookie 解析 cookie 值。URL 解码后必须恰好包含一个 "-" 且两侧非空，
// 否则视为不存在。
func ParseCookie(value string) (Pair, bool) {
	if value == "" {
		return Pair{}, false
	}
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return Pair{}, false
	}
	parts := strings.Split(decoded, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, false
	}
	return Pair{Token: parts[0], SeriesID: parts[1]}, true
}

// FromRequest 从请求中读取名为 name 的会话 cookie
func FromRequest(r *http.Request, name string) (Pair, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return Pair{}, false
	}
	return ParseCookie(c.Value)
}

// Cookie 构造写回客户端的会话 cookie
func (p Pair) Cookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    p.Encode(),
		Path:     "/",
		HttpOnly: true,
	}
}
