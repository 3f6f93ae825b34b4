package auth

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/kochabx/wsgate/core/util"
)

// IdentityKey gin 上下文中常量令牌的键
const IdentityKey = "wsgate.identity"

type identityKey struct{}

// WithIdentity 把常量令牌放入 ctx
func WithIdentity(ctx context.Context, constToken string) context.Context {
	return context.WithValue(ctx, identityKey{}, constToken)
}

// Identity 返回请求绑定会话的常量令牌
func Identity(ctx context.Context) (string, error) {
	return util.CtxValue[string](ctx, identityKey{})
}

// IdentityFromGin 返回 gin 请求绑定会话的常量令牌，未绑定时为空
func IdentityFromGin(c *gin.Context) string {
	return c.GetString(IdentityKey)
}

func bindIdentity(c *gin.Context, constToken string) {
	c.Set(IdentityKey, constToken)
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), constToken))
}
