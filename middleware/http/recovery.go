package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"os"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kochabx/wsgate/errors"
	"github.com/kochabx/wsgate/log"
)

// RecoveryConfig Recovery 中间件配置
type RecoveryConfig struct {
	StackTrace bool // 是否记录堆栈信息
	Logger     *log.Logger
}

// Recovery 创建 Recovery 中间件
func Recovery(cfgs ...RecoveryConfig) gin.HandlerFunc {
	cfg := RecoveryConfig{
		StackTrace: true,
	}
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}
	logger := log.OrGlobal(cfg.Logger).Module("http")

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				// 请求头中可能带有会话 cookie，交给脱敏写入器处理
				httpRequest, _ := httputil.DumpRequest(c.Request, false)

				if isBrokenPipe(rec) {
					logger.Warn().
						Str("error", fmt.Sprintf("%v", rec)).
						Bytes("request", httpRequest).
						Msg("broken pipe")
					_ = c.Error(fmt.Errorf("%v", rec))
					c.Abort()
					return
				}

				event := logger.Error().
					Str("error", fmt.Sprintf("%v", rec)).
					Bytes("request", httpRequest)
				if cfg.StackTrace {
					event = event.Bytes("stack", debug.Stack())
				}
				event.Msg("panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, errors.Internal("internal server error").Status)
			}
		}()
		c.Next()
	}
}

// isBrokenPipe 检查是否为断开的连接错误
func isBrokenPipe(err any) bool {
	if ne, ok := err.(*net.OpError); ok {
		if se, ok := ne.Err.(*os.SyscallError); ok {
			errStr := strings.ToLower(se.Error())
			return strings.Contains(errStr, "broken pipe") ||
				strings.Contains(errStr, "connection reset by peer")
		}
	}
	return false
}
