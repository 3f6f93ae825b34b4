package util

import (
	"context"

	"github.com/kochabx/wsgate/errors"
)

// CtxValue 取出 ctx 中 key 对应的 T 类型值。
// 值不存在返回 404，ctx 为 nil 或类型不符返回 500。
func CtxValue[T any](ctx context.Context, key any) (T, error) {
	var zero T
	if ctx == nil {
		return zero, errors.Internal("nil context for key %v", key)
	}
	switch v := ctx.Value(key).(type) {
	case nil:
		return zero, errors.NotFound("no context value for key %v", key)
	case T:
		return v, nil
	default:
		return zero, errors.Internal("context value for key %v is %T, want %T", key, v, zero)
	}
}
