package log

import (
	"github.com/rs/zerolog"
)

// G 全局日志实例，仅用于启动阶段和未注入 Logger 的组件
var G *Logger

func init() {
	G = New()
}

// SetGlobalLogger 设置全局日志记录器
func SetGlobalLogger(logger *Logger) {
	if logger != nil {
		G = logger
	}
}

// SetGlobalLevel 设置全局日志级别
func SetGlobalLevel(level zerolog.Level) {
	G.Logger = G.Logger.Level(level)
}

// OrGlobal 返回 l，为 nil 时返回全局实例
func OrGlobal(l *Logger) *Logger {
	if l == nil {
		return G
	}
	return l
}

func Debug() *zerolog.Event { return G.Debug() }

func Info() *zerolog.Event { return G.Info() }

func Warn() *zerolog.Event { return G.Warn() }

// Error 返回 error 级别的日志事件（带堆栈）
func Error() *zerolog.Event { return G.Error().Stack() }

func Fatal() *zerolog.Event { return G.Fatal().Stack() }
