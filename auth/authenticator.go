package auth

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/kochabx/wsgate/session"
)

// Authenticator 登录链中的一环
type Authenticator interface {
	// Validate 校验凭据，返回的错误作为失败信息交给客户端。
	// identity 是新会话的常量令牌，shared 在整条链中共享并成为会话数据。
	Validate(ctx context.Context, identity string, creds *Credentials, shared map[string]any) error
	// Unregister 撤销 identity 的登录状态，登录回滚与会话移除时调用
	Unregister(identity string)
}

// CredentialSource 可从请求中提取凭据的 Authenticator
type CredentialSource interface {
	// Credentials 返回请求携带的凭据，没有凭据时返回 nil。
	// 若已自行写出响应（例如需要后续交互），返回 nil 即可终止本次请求。
	Credentials(c *gin.Context) *Credentials
}

// Credentials 登录凭据
type Credentials struct {
	Values map[string]string
	// Remember 为真时会话永不过期
	Remember bool
	// Token 已有会话的 cookie，用于从另一个客户端重新登录
	Token *session.Pair
	// Respond 写出登录结果，err 为 nil 表示成功；为 nil 时失败渲染登录页，成功继续处理请求
	Respond func(c *gin.Context, err error)
}

// Value 返回凭据字段
func (c *Credentials) Value(key string) string {
	if c == nil || c.Values == nil {
		return ""
	}
	return c.Values[key]
}
