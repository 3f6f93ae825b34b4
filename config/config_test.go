package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kochabx/wsgate/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

// TestDefaults 没有配置文件时使用默认值
func TestDefaults(t *testing.T) {
	s, _, err := Load("config.yaml", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.Server.Addr)
	assert.Equal(t, "/websocket", s.Server.WebSocketPath)
	assert.Equal(t, 2*time.Minute, s.Session.Timeout)
	assert.Equal(t, "sesh", s.Session.CookieName)
	assert.False(t, s.Session.Anonymous)
	assert.True(t, s.Session.PurgeSeriesOnMismatch)
	assert.True(t, s.Session.RemoveStaleToken)
	assert.Equal(t, 5*time.Minute, s.Auth.AutoLoginLockout)
	assert.Equal(t, []string{"websocket"}, s.Plugins)
	assert.Equal(t, 256, s.WebSocket.SendQueueSize)
}

func TestFileOverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  addr: ":9000"
session:
  timeout: 30s
  expires_with_active_clients: true
plugins: [websocket, chat, files]
auth:
  users:
    alice: "$2a$10$abcdefghijklmnopqrstuv"
log:
  level: debug
  file:
    filename: gate
    rotate_mode: size
`)
	s, _, err := Load("config.yaml", dir)
	require.NoError(t, err)

	assert.Equal(t, ":9000", s.Server.Addr)
	assert.Equal(t, 30*time.Second, s.Session.Timeout)
	assert.True(t, s.Session.ExpiresWithActiveClients)
	assert.Equal(t, []string{"websocket", "chat", "files"}, s.Plugins)
	assert.Contains(t, s.Auth.Users, "alice")
	assert.Equal(t, "debug", s.Log.Level)
	require.NotNil(t, s.Log.File)
	assert.Equal(t, "gate", s.Log.File.Filename)
	// 未覆盖的键保持默认
	assert.Equal(t, "/metrics", s.Server.MetricsPath)
}

// TestEnvOverride 环境变量覆盖文件与默认值
func TestEnvOverride(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("SESSION_COOKIE_NAME", "gate")

	s, _, err := Load("config.yaml", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ":7070", s.Server.Addr)
	assert.Equal(t, "gate", s.Session.CookieName)
}

func TestValidationFailure(t *testing.T) {
	dir := writeConfig(t, `
websocket:
  ping_interval: 90s
  pong_wait: 30s
`)
	_, _, err := Load("config.yaml", dir)
	require.Error(t, err)
	assert.Equal(t, 400, errors.Code(err))
	assert.Contains(t, err.Error(), "websocket.pong_wait: pong_wait must be greater than PingInterval")
}

func TestParseError(t *testing.T) {
	dir := writeConfig(t, "server: [unterminated")
	_, _, err := Load("config.yaml", dir)
	require.Error(t, err)
}

// TestReloadNotifiesSubscribers 重新加载后通知订阅者
func TestReloadNotifiesSubscribers(t *testing.T) {
	dir := writeConfig(t, "session:\n  timeout: 10s\n")
	s, c, err := Load("config.yaml", dir)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, s.Session.Timeout)

	var seen []time.Duration
	c.OnChange(func() { seen = append(seen, s.Session.Timeout) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("session:\n  timeout: 45s\n"), 0o600))
	require.NoError(t, c.Reload())

	assert.Equal(t, []time.Duration{45 * time.Second}, seen)
}

// TestReloadReplacesSettings 重新加载后删除的用户不再保留，校验失败时保持原配置
func TestReloadReplacesSettings(t *testing.T) {
	dir := writeConfig(t, `
auth:
  users:
    alice: "hash-a"
    mallory: "hash-m"
`)
	s, c, err := Load("config.yaml", dir)
	require.NoError(t, err)
	require.Len(t, s.Auth.Users, 2)

	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("auth:\n  users:\n    alice: \"hash-a\"\n"), 0o600))
	require.NoError(t, c.Reload())
	assert.Equal(t, map[string]string{"alice": "hash-a"}, s.Auth.Users)

	notified := 0
	c.OnChange(func() { notified++ })
	require.NoError(t, os.WriteFile(file, []byte("session:\n  timeout: 45s\nwebsocket:\n  pong_wait: 1s\n"), 0o600))
	err = c.Reload()
	require.Error(t, err)
	assert.Equal(t, 400, errors.Code(err))
	assert.Equal(t, 0, notified)
	assert.Equal(t, 2*time.Minute, s.Session.Timeout)
	assert.Equal(t, map[string]string{"alice": "hash-a"}, s.Auth.Users)
}

func TestRequiredFileMissing(t *testing.T) {
	target := new(Settings)
	c := New(target, WithLoader(NewFileLoader("absent.yaml", []string{t.TempDir()}, viper.New(), nil)))
	err := c.Load()
	require.Error(t, err)
	assert.Equal(t, 404, errors.Code(err))
}
