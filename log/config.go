package log

import (
	"github.com/kochabx/wsgate/log/writer"
)

// FileConfig 日志文件配置
type FileConfig struct {
	Filepath   string            `json:"filepath" mapstructure:"filepath"`
	Filename   string            `json:"filename" mapstructure:"filename"`
	FileExt    string            `json:"file_ext" mapstructure:"file_ext"`
	RotateMode writer.RotateMode `json:"rotate_mode" mapstructure:"rotate_mode"`
	// 按时间轮转：保留小时数 / 轮转间隔小时数
	MaxAgeHours       int `json:"max_age_hours" mapstructure:"max_age_hours"`
	RotationTimeHours int `json:"rotation_time_hours" mapstructure:"rotation_time_hours"`
	// 按大小轮转
	MaxSizeMB  int  `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int  `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int  `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool `json:"compress" mapstructure:"compress"`
}

// applyDefaults 填充未设置的字段
func (c *FileConfig) applyDefaults() {
	if c.Filepath == "" {
		c.Filepath = "log"
	}
	if c.Filename == "" {
		c.Filename = "wsgate"
	}
	if c.FileExt == "" {
		c.FileExt = "log"
	}
	if c.MaxAgeHours == 0 {
		c.MaxAgeHours = 24
	}
	if c.RotationTimeHours == 0 {
		c.RotationTimeHours = 1
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 30
	}
}

// toWriterConfig 转换为 writer.RotateConfig
func (c *FileConfig) toWriterConfig() writer.RotateConfig {
	return writer.RotateConfig{
		Filepath: c.Filepath,
		Filename: c.Filename,
		FileExt:  c.FileExt,
		Mode:     c.RotateMode,
		Time: writer.TimeRotateConfig{
			MaxAge:       c.MaxAgeHours,
			RotationTime: c.RotationTimeHours,
		},
		Size: writer.SizeRotateConfig{
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		},
	}
}
