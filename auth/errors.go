package auth

import "github.com/kochabx/wsgate/errors"

var (
	// ErrAutoLoginBlocked 自动登录处于锁定窗口
	ErrAutoLoginBlocked = errors.TooManyRequests("auto login blocked")
	// ErrNoToken 凭据中的令牌为空
	ErrNoToken = errors.BadRequest("no token given")
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.Unauthorized("invalid credentials")
)
