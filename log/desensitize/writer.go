package desensitize

import (
	"io"
)

// Writer 在写入前对内容脱敏
type Writer struct {
	writer io.Writer
	hook   *Hook
}

// NewWriter 创建脱敏 writer
func NewWriter(w io.Writer, hook *Hook) *Writer {
	if w == nil || hook == nil {
		panic("desensitize: writer and hook cannot be nil")
	}
	return &Writer{writer: w, hook: hook}
}

// Write 实现 io.Writer，返回值以输入长度为准
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 || w.hook.Len() == 0 {
		return w.writer.Write(p)
	}

	text := string(p)
	masked := w.hook.Desensitize(text)
	if masked == text {
		return w.writer.Write(p)
	}
	if _, err := io.WriteString(w.writer, masked); err != nil {
		return 0, err
	}
	return len(p), nil
}
