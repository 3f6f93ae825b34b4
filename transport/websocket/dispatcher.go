package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kochabx/wsgate/channel"
	"github.com/kochabx/wsgate/core/util/id"
	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/metrics"
	"github.com/kochabx/wsgate/session"
)

// clientIDBytes 客户端 id 的随机字节数
const clientIDBytes = 8

// Dispatcher 接受 websocket 连接，为每个连接分配客户端 id 并绑定到会话，
// 入站消息交给通道注册表，断开时清理通道注册与会话绑定。
type Dispatcher struct {
	cfg         Config
	table       *session.Table
	registry    *channel.Registry
	logger      *log.Logger
	metrics     *metrics.Metrics
	cookieName  string
	checkOrigin func(r *http.Request) bool
	upgrader    websocket.Upgrader

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher 创建分发器
func NewDispatcher(table *session.Table, registry *channel.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:        DefaultConfig(),
		table:      table,
		registry:   registry,
		cookieName: session.DefaultCookieName,
		conns:      make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = log.OrGlobal(d.logger).Module("websocket")
	d.upgrader = websocket.Upgrader{
		ReadBufferSize:  d.cfg.ReadBufferSize,
		WriteBufferSize: d.cfg.WriteBufferSize,
		CheckOrigin:     d.checkOrigin,
	}
	return d
}

// Handle gin 处理函数
func (d *Dispatcher) Handle(c *gin.Context) {
	d.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP 升级连接并阻塞到连接结束
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.isClosed() {
		http.Error(w, ErrDispatcherDown.Message, ErrDispatcherDown.Code)
		return
	}
	ws, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写出错误响应
		d.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	c, ok := d.accept(ws)
	if !ok {
		ws.Close()
		return
	}
	defer d.wg.Done()
	go c.writeLoop()

	pair, _ := session.FromRequest(r, d.cookieName)
	if err := d.table.RegisterClientToken(pair, c.id); err != nil {
		d.logger.Info().Err(err).Str("client_id", c.id).Str("remote_addr", r.RemoteAddr).Msg("connection without session")
		_ = c.Send(d.registry.ErrorFrame(channel.NoSession))
		c.close()
		c.wait()
		d.forget(c)
		return
	}

	d.metrics.ConnectionOpened()
	d.logger.Debug().Str("client_id", c.id).Msg("client connected")

	c.readLoop(func(kind channel.MessageKind, data []byte) {
		d.onMessage(c, kind, data)
	})

	d.registry.UnregisterClient(c.id)
	d.table.UnregisterClientToken(c.id)
	c.close()
	c.wait()
	d.forget(c)
	d.metrics.ConnectionClosed()
	d.logger.Debug().Str("client_id", c.id).Msg("client disconnected")
}

// accept 分配不冲突的客户端 id 并登记连接
func (d *Dispatcher) accept(ws *websocket.Conn) (*conn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, false
	}
	clientID := id.Unique(clientIDBytes, func(s string) bool {
		_, taken := d.conns[s]
		return taken
	})
	c := newConn(clientID, ws, d.cfg, d.logger)
	d.conns[clientID] = c
	d.wg.Add(1)
	return c, true
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dispatcher) forget(c *conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, c.id)
}

// onMessage 会话已被移除的客户端收到 NO_SESSION 错误帧，连接保持
func (d *Dispatcher) onMessage(c *conn, kind channel.MessageKind, data []byte) {
	if !d.table.ValidClient(c.id) {
		d.metrics.Frame("session", metrics.FrameRejected)
		_ = c.Send(d.registry.ErrorFrame(channel.NoSession))
		return
	}
	// 错误已由注册表记录
	_ = d.registry.OnMessage(c, kind, data)
}

// Conn 返回已连接的客户端
func (d *Dispatcher) Conn(clientID string) (channel.Conn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.conns[clientID]
	return c, ok
}

// Disconnect 断开指定客户端，清理在其读协程退出时完成
func (d *Dispatcher) Disconnect(clientID string) bool {
	d.mu.Lock()
	c, ok := d.conns[clientID]
	d.mu.Unlock()
	if ok {
		c.close()
	}
	return ok
}

// Len 返回当前连接数
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Close 关闭所有连接并等待处理结束，之后的升级请求会被拒绝
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	conns := make([]*conn, 0, len(d.conns))
	for _, c := range d.conns {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
