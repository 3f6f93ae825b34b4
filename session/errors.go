package session

import "github.com/kochabx/wsgate/errors"

var (
	// ErrNoSession 没有与凭据匹配的会话
	ErrNoSession = errors.Unauthorized("no session")
	// ErrTheftSuspected 系列号匹配但令牌不匹配，该系列已被清除
	ErrTheftSuspected = errors.Unauthorized("token theft suspected")
	// ErrClientUnknown 客户端标识未绑定会话
	ErrClientUnknown = errors.NotFound("client unknown")
	// ErrDuplicateToken 令牌或常量令牌已被占用
	ErrDuplicateToken = errors.Conflict("duplicate session token")
)
