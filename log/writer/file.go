package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RotateConfig 日志文件与轮转参数
type RotateConfig struct {
	Mode     RotateMode
	Filepath string
	Filename string
	FileExt  string
	Time     TimeRotateConfig
	Size     SizeRotateConfig
}

// TimeRotateConfig 按时间轮转，单位为小时
type TimeRotateConfig struct {
	MaxAge       int
	RotationTime int
}

// SizeRotateConfig 按大小轮转
type SizeRotateConfig struct {
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
}

// File 按轮转模式创建文件 writer，目录不存在时创建
func File(c RotateConfig) (io.WriteCloser, error) {
	if err := os.MkdirAll(c.Filepath, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", c.Filepath, err)
	}
	switch c.Mode {
	case RotateModeTime:
		return timeRotateWriter(c)
	case RotateModeSize:
		return sizeRotateWriter(c), nil
	}
	return nil, fmt.Errorf("unsupported rotate mode: %v", c.Mode)
}

// path 返回 <dir>/<name>[.<suffix>].<ext>
func (c RotateConfig) path(suffix string) string {
	name := c.Filename
	if suffix != "" {
		name += "." + suffix
	}
	return filepath.Join(c.Filepath, name+"."+c.FileExt)
}
