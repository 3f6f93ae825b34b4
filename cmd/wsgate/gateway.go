package main

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/kochabx/wsgate/auth"
	"github.com/kochabx/wsgate/channel"
	"github.com/kochabx/wsgate/config"
	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/log/desensitize"
	"github.com/kochabx/wsgate/metrics"
	middleware "github.com/kochabx/wsgate/middleware/http"
	"github.com/kochabx/wsgate/session"
	transporthttp "github.com/kochabx/wsgate/transport/http"
	"github.com/kochabx/wsgate/transport/websocket"
)

// echoPlugin 把 0 号通道上收到的负载原样发回发送者
const echoPlugin = "echo"

// gateway 持有网关的全部组件
type gateway struct {
	logger     *log.Logger
	prom       *metrics.Prometheus
	metrics    *metrics.Metrics
	table      *session.Table
	gate       *auth.Gate
	passwords  *auth.PasswordAuthenticator
	registry   *channel.Registry
	dispatcher *websocket.Dispatcher
	engine     *gin.Engine
	server     *transporthttp.Server
}

func newLogger(s config.LogSettings) (*log.Logger, error) {
	opts := []log.Option{log.WithLevel(log.ParseLevel(s.Level))}
	if s.Desensitize {
		opts = append(opts, log.WithDesensitize(desensitize.NewHook(desensitize.SessionRules()...)))
	}
	if s.File != nil {
		return log.NewMulti(*s.File, opts...)
	}
	return log.New(opts...), nil
}

func newGateway(s *config.Settings, logger *log.Logger) (*gateway, error) {
	g := &gateway{logger: logger}

	g.prom = metrics.NewPrometheus().
		WithGoCollectorRuntimeMetrics().
		WithProcessCollector().
		WithBuildInfoCollector()
	g.metrics = metrics.New(g.prom.Registry())

	g.table = session.New(
		session.WithLogger(logger),
		session.WithMetrics(g.metrics),
		session.WithExpiresWithActiveClients(s.Session.ExpiresWithActiveClients),
	)

	var auths []auth.Authenticator
	if len(s.Auth.Users) > 0 {
		g.passwords = auth.NewPasswordAuthenticator(s.Auth.Users, s.Auth.LoginPath)
		auths = append(auths, g.passwords)
	}
	allowed := append(slices.Clone(s.Auth.AllowedPaths), s.Server.WebSocketPath)
	for _, p := range []string{s.Server.HealthPath, s.Server.MetricsPath} {
		if p != "" {
			allowed = append(allowed, p)
		}
	}
	g.gate = auth.New(g.table,
		auth.WithLogger(logger),
		auth.WithMetrics(g.metrics),
		auth.WithCookieName(s.Session.CookieName),
		auth.WithSessionTimeout(s.Session.Timeout),
		auth.WithAllowedPaths(allowed...),
		auth.WithAnonymous(s.Session.Anonymous),
		auth.WithPurgeSeriesOnMismatch(s.Session.PurgeSeriesOnMismatch),
		auth.WithRemoveStaleToken(s.Session.RemoveStaleToken),
		auth.WithLockout(s.Auth.AutoLoginLockout),
		auth.WithAuthenticators(auths...),
	)

	g.registry = channel.NewRegistry(s.Plugins, g.table,
		channel.WithLogger(logger),
		channel.WithMetrics(g.metrics),
	)
	if slices.Contains(s.Plugins, echoPlugin) {
		if _, err := g.registry.Channel(echoPlugin, 0, echo, nil); err != nil {
			return nil, err
		}
	}

	ws := s.WebSocket
	g.dispatcher = websocket.NewDispatcher(g.table, g.registry,
		websocket.WithLogger(logger),
		websocket.WithMetrics(g.metrics),
		websocket.WithCookieName(s.Session.CookieName),
		websocket.WithConfig(websocket.Config{
			ReadBufferSize:  ws.ReadBufferSize,
			WriteBufferSize: ws.WriteBufferSize,
			MaxMessageSize:  ws.MaxMessageSize,
			PingInterval:    ws.PingInterval,
			PongWait:        ws.PongWait,
			WriteTimeout:    ws.WriteTimeout,
			SendQueueSize:   ws.SendQueueSize,
		}),
	)

	g.engine = gin.New()
	g.engine.Use(
		middleware.Recovery(middleware.RecoveryConfig{StackTrace: true, Logger: logger}),
		middleware.Logger(middleware.LoggerConfig{
			SkipPaths: []string{s.Server.HealthPath, s.Server.MetricsPath},
			Identity:  auth.IdentityFromGin,
			Logger:    logger,
		}),
		g.gate.Middleware(),
	)
	g.engine.GET(s.Server.WebSocketPath, g.dispatcher.Handle)
	g.engine.GET("/session", g.sessionInfo)

	g.server = transporthttp.NewServer(s.Server.Addr, g.engine,
		transporthttp.WithMeta(transporthttp.Meta{Name: "wsgate"}),
		transporthttp.WithLogger(logger),
		transporthttp.WithHealth(s.Server.HealthPath),
		transporthttp.WithMetrics(s.Server.MetricsPath, g.prom.Registry()),
	)
	return g, nil
}

func echo(ch *channel.Channel, m channel.Message) {
	_ = ch.Send(m.Payload, channel.SendTo(m.ClientID))
}

// sessionInfo 返回当前请求绑定的会话
func (g *gateway) sessionInfo(c *gin.Context) {
	identity := auth.IdentityFromGin(c)
	resp := gin.H{"identity": identity}
	if data, ok := g.table.SessionData(identity); ok {
		if user, ok := data["user"]; ok {
			resp["user"] = user
		}
	}
	c.JSON(http.StatusOK, resp)
}

// apply 重新应用可热更新的配置
func (g *gateway) apply(s *config.Settings) {
	g.gate.SetSessionTimeout(s.Session.Timeout)
	g.gate.SetExpiresWithActiveClients(s.Session.ExpiresWithActiveClients)
	g.gate.SetLockout(s.Auth.AutoLoginLockout)
	if g.passwords != nil {
		g.passwords.SetUsers(s.Auth.Users)
	}
	g.logger.Info().
		Dur("session_timeout", s.Session.Timeout).
		Bool("expires_with_active_clients", s.Session.ExpiresWithActiveClients).
		Msg("settings applied")
}

// closeSessions 停止过期定时器
func (g *gateway) closeSessions(context.Context) error {
	g.table.Close()
	return nil
}
