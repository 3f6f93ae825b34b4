package config

import (
	"time"

	"github.com/kochabx/wsgate/log"
)

// Settings is the gateway configuration file layout
type Settings struct {
	Server    ServerSettings    `mapstructure:"server"`
	Session   SessionSettings   `mapstructure:"session"`
	Auth      AuthSettings      `mapstructure:"auth"`
	WebSocket WebSocketSettings `mapstructure:"websocket"`
	// Plugins is the ordered plugin table, the index of a name is its pluginId
	Plugins []string    `mapstructure:"plugins" validate:"dive,required"`
	Log     LogSettings `mapstructure:"log"`
}

type ServerSettings struct {
	Addr          string `mapstructure:"addr" validate:"required"`
	WebSocketPath string `mapstructure:"websocket_path" validate:"required,startswith=/"`
	MetricsPath   string `mapstructure:"metrics_path"`
	HealthPath    string `mapstructure:"health_path"`
}

type SessionSettings struct {
	// Timeout of non-remembered sessions, renewed on every touch
	Timeout                  time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ExpiresWithActiveClients bool          `mapstructure:"expires_with_active_clients"`
	CookieName               string        `mapstructure:"cookie_name" validate:"required"`
	// Anonymous creates a session for every visitor when no authenticator is registered
	Anonymous             bool `mapstructure:"anonymous"`
	PurgeSeriesOnMismatch bool `mapstructure:"purge_series_on_mismatch"`
	RemoveStaleToken      bool `mapstructure:"remove_stale_token"`
}

type AuthSettings struct {
	// AllowedPaths bypass the gate: exact, "/prefix/**" or glob
	AllowedPaths     []string      `mapstructure:"allowed_paths"`
	AutoLoginLockout time.Duration `mapstructure:"autologin_lockout" validate:"gte=0"`
	LoginPath        string        `mapstructure:"login_path"`
	// Users maps a user name to its bcrypt hash for the password authenticator
	Users map[string]string `mapstructure:"users"`
}

type WebSocketSettings struct {
	ReadBufferSize  int           `mapstructure:"read_buffer_size" validate:"gt=0"`
	WriteBufferSize int           `mapstructure:"write_buffer_size" validate:"gt=0"`
	MaxMessageSize  int64         `mapstructure:"max_message_size" validate:"gt=0"`
	PingInterval    time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	PongWait        time.Duration `mapstructure:"pong_wait" validate:"gtfield=PingInterval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	SendQueueSize   int           `mapstructure:"send_queue_size" validate:"gt=0"`
}

type LogSettings struct {
	Level       string          `mapstructure:"level"`
	Desensitize bool            `mapstructure:"desensitize"`
	File        *log.FileConfig `mapstructure:"file"`
}

// Defaults returns the default value of every settings key
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":           ":8080",
		"server.websocket_path": "/websocket",
		"server.metrics_path":   "/metrics",
		"server.health_path":    "/health",

		"session.timeout":                     2 * time.Minute,
		"session.expires_with_active_clients": false,
		"session.cookie_name":                 "sesh",
		"session.anonymous":                   false,
		"session.purge_series_on_mismatch":    true,
		"session.remove_stale_token":          true,

		"auth.allowed_paths":     []string{"/public/**", "/client.js", "/client.min.js", "/client.min.js.map", "/client.libs.js"},
		"auth.autologin_lockout": 5 * time.Minute,
		"auth.login_path":        "/login",

		"websocket.read_buffer_size":  4096,
		"websocket.write_buffer_size": 4096,
		"websocket.max_message_size":  1 << 20,
		"websocket.ping_interval":     54 * time.Second,
		"websocket.pong_wait":         60 * time.Second,
		"websocket.write_timeout":     10 * time.Second,
		"websocket.send_queue_size":   256,

		"plugins": []string{"websocket"},

		"log.level":       "info",
		"log.desensitize": true,
	}
}

// Load reads Settings from file (optional), environment and defaults
func Load(file string, paths ...string) (*Settings, *Config, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	s := new(Settings)
	c := New(s, WithFile(file, paths...), WithDefaults(Defaults()))
	if err := c.Load(); err != nil {
		return nil, nil, err
	}
	return s, c, nil
}
