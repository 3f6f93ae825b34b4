package id

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// Generate 生成 UUID
func Generate() string {
	return uuid.New().String()
}

// Hex 生成 n 个随机字节的十六进制串
func Hex(n int) string {
	b := make([]byte, n)
	// crypto/rand.Read 不会返回错误
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Unique 生成在 taken 中不存在的 n 字节随机标识，冲突时重试
func Unique(n int, taken func(string) bool) string {
	for {
		s := Hex(n)
		if taken == nil || !taken(s) {
			return s
		}
	}
}
