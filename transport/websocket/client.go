package websocket

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kochabx/wsgate/channel"
	"github.com/kochabx/wsgate/errors"
	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/session"
)

// Status 客户端连接状态
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "CONNECTED"
	case StatusErrored:
		return "ERRORED"
	}
	return "DISCONNECTED"
}

var (
	ErrClientClosed   = errors.ServiceUnavailable("client closed")
	ErrInvalidURL     = errors.BadRequest("invalid websocket url")
	ErrPendingFull    = errors.ServiceUnavailable("pending queue full")
	ErrMaxRetries     = errors.ServiceUnavailable("max reconnection attempts reached")
	ErrAlreadyStarted = errors.Conflict("client already connected")
	errLinkClosed     = errors.ServiceUnavailable("link closed")
)

// ReconnectConfig 重连配置
type ReconnectConfig struct {
	Enable bool
	// 最大重连次数，0 表示不限制
	MaxRetries        int
	Interval          time.Duration
	MaxInterval       time.Duration
	BackoffMultiplier float64
}

func defaultReconnect() ReconnectConfig {
	return ReconnectConfig{
		Enable:            true,
		MaxRetries:        5,
		Interval:          time.Second,
		MaxInterval:       30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// delay 第 attempt 次重连前的等待时间
func (r ReconnectConfig) delay(attempt int) time.Duration {
	d := r.Interval
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * r.BackoffMultiplier)
		if r.MaxInterval > 0 && d > r.MaxInterval {
			return r.MaxInterval
		}
	}
	return d
}

type (
	// FrameHandler 收到所注册通道上的一帧
	FrameHandler  func(p channel.Payload)
	ErrorHandler  func(err error)
	StatusHandler func(s Status)
)

// ClientOption 客户端选项
type ClientOption func(*Client)

func WithClientConfig(cfg Config) ClientOption {
	return func(c *Client) {
		c.cfg = cfg
	}
}

func WithReconnect(r ReconnectConfig) ClientOption {
	return func(c *Client) {
		c.reconnect = r
	}
}

func WithHeaders(h http.Header) ClientOption {
	return func(c *Client) {
		c.headers = h.Clone()
	}
}

// WithSession 握手时携带会话 cookie
func WithSession(cookieName string, pair session.Pair) ClientOption {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = http.Header{}
		}
		c.headers.Add("Cookie", (&http.Cookie{Name: cookieName, Value: pair.Encode()}).String())
	}
}

func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.dialer.HandshakeTimeout = d
	}
}

// WithErrorPlugin 服务端错误帧所在的插件 id，默认 0
func WithErrorPlugin(pluginID uint16) ClientOption {
	return func(c *Client) {
		c.errorPlugin = pluginID
	}
}

func WithClientLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

type outbound struct {
	kind int
	data []byte
}

type channelKey struct {
	plugin  uint16
	channel uint16
}

// link 一次物理连接
type link struct {
	ws   *websocket.Conn
	out  chan outbound
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() { close(l.done) })
}

// Client 说通道协议的 websocket 客户端。断线期间的发送先排队，
// 重连后重新注册所有通道再发出排队的帧。
type Client struct {
	cfg         Config
	reconnect   ReconnectConfig
	headers     http.Header
	dialer      *websocket.Dialer
	errorPlugin uint16
	logger      *log.Logger

	mu             sync.Mutex
	url            string
	link           *link
	status         Status
	closed         bool
	retries        int
	timer          *time.Timer
	channels       map[channelKey][]FrameHandler
	pending        []outbound
	errorHandlers  []ErrorHandler
	statusHandlers []StatusHandler
}

// NewClient 创建客户端
func NewClient(opts ...ClientOption) *Client {
	cfg := DefaultConfig()
	c := &Client{
		cfg:       cfg,
		reconnect: defaultReconnect(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		channels: make(map[channelKey][]FrameHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dialer.ReadBufferSize = c.cfg.ReadBufferSize
	c.dialer.WriteBufferSize = c.cfg.WriteBufferSize
	c.logger = log.OrGlobal(c.logger).Module("websocket-client")
	return c
}

// Connect 连接到服务端
func (c *Client) Connect(ctx context.Context, wsURL string) error {
	u, err := url.Parse(wsURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return ErrInvalidURL
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.link != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.url = wsURL
	c.retries = 0
	c.mu.Unlock()

	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	target, headers := c.url, c.headers
	c.mu.Unlock()

	ws, _, err := c.dialer.DialContext(ctx, target, headers)
	if err != nil {
		err = errors.Wrap(err, 503, "dial %s", target)
		c.setStatus(StatusErrored)
		c.emitError(err)
		return err
	}
	ws.SetReadLimit(c.cfg.MaxMessageSize)

	l := &link{
		ws:   ws,
		out:  make(chan outbound, c.cfg.SendQueueSize),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return ErrClientClosed
	}
	c.link = l
	c.retries = 0
	// 先重新注册通道，再发出断线期间排队的帧
	keys := make([]channelKey, 0, len(c.channels))
	for key := range c.channels {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b channelKey) int {
		if a.plugin != b.plugin {
			return int(a.plugin) - int(b.plugin)
		}
		return int(a.channel) - int(b.channel)
	})
	backlog := make([]outbound, 0, len(keys)+len(c.pending))
	for _, key := range keys {
		backlog = append(backlog, command(channel.CommandRegister, key))
	}
	backlog = append(backlog, c.pending...)
	c.pending = nil
	c.mu.Unlock()

	go c.writeLoop(l, backlog)
	c.setStatus(StatusConnected)
	go c.readLoop(l)
	return nil
}

func command(cmd channel.Command, key channelKey) outbound {
	env := channel.Envelope{Command: cmd, PluginID: key.plugin, ChannelID: key.channel}
	return outbound{kind: websocket.TextMessage, data: env.Encode()}
}

// enqueue 阻塞到入队或连接关闭，调用方不得持有 Client.mu
func (l *link) enqueue(msg outbound) bool {
	select {
	case l.out <- msg:
		return true
	case <-l.done:
		return false
	}
}

// writeLoop 先写完 backlog，再处理发送队列
func (c *Client) writeLoop(l *link, backlog []outbound) {
	defer l.ws.Close()
	for _, msg := range backlog {
		select {
		case <-l.done:
			c.writeClose(l)
			return
		default:
		}
		if !c.write(l, msg) {
			return
		}
	}
	for {
		select {
		case msg := <-l.out:
			if !c.write(l, msg) {
				return
			}
		case <-l.done:
			c.writeClose(l)
			return
		}
	}
}

func (c *Client) write(l *link, msg outbound) bool {
	_ = l.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := l.ws.WriteMessage(msg.kind, msg.data); err != nil {
		l.close()
		c.emitError(errors.Wrap(err, 503, "write message"))
		return false
	}
	return true
}

func (c *Client) writeClose(l *link) {
	_ = l.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout))
}

func (c *Client) readLoop(l *link) {
	defer c.disconnected(l)
	for {
		messageType, data, err := l.ws.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.emitError(errors.Wrap(err, 503, "read message"))
				}
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		c.dispatch(data)
	}
}

// dispatch 错误帧交给错误处理器，其它帧交给对应通道的处理器
func (c *Client) dispatch(data []byte) {
	frame, err := channel.DecodeFrame(data)
	if err != nil {
		c.logger.Error().Err(err).Int("size", len(data)).Msg("invalid frame")
		return
	}

	if frame.PluginID == c.errorPlugin && frame.ChannelID == 0 && frame.Payload.Type() == channel.TypeObject {
		var body struct {
			Error *int `json:"error"`
		}
		if frame.Payload.Decode(&body) == nil && body.Error != nil {
			if *body.Error == channel.NoSession {
				c.emitError(session.ErrNoSession)
			} else {
				c.emitError(errors.New(500, "server error %d", *body.Error))
			}
			return
		}
	}

	c.mu.Lock()
	handlers := slices.Clone(c.channels[channelKey{frame.PluginID, frame.ChannelID}])
	c.mu.Unlock()
	for _, h := range handlers {
		h(frame.Payload)
	}
}

func (c *Client) disconnected(l *link) {
	l.close()

	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	c.link = nil
	closed := c.closed
	c.mu.Unlock()

	c.setStatus(StatusDisconnected)
	if !closed {
		c.scheduleReconnect()
	}
}

// scheduleReconnect 按指数退避安排下一次重连
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.reconnect.Enable {
		return
	}
	if c.reconnect.MaxRetries > 0 && c.retries >= c.reconnect.MaxRetries {
		go c.emitError(ErrMaxRetries)
		return
	}
	c.retries++
	delay := c.reconnect.delay(c.retries)
	c.logger.Debug().Int("attempt", c.retries).Dur("delay", delay).Msg("reconnecting")

	c.timer = time.AfterFunc(delay, func() {
		if err := c.dial(context.Background()); err != nil && !errors.Is(err, ErrClientClosed) {
			c.scheduleReconnect()
		}
	})
}

// Register 注册通道处理器，已连接时立即发送注册命令，否则在连接建立后发送
func (c *Client) Register(pluginID, channelID uint16, h FrameHandler) error {
	key := channelKey{pluginID, channelID}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	_, existed := c.channels[key]
	if h != nil {
		c.channels[key] = append(c.channels[key], h)
	} else if !existed {
		c.channels[key] = nil
	}
	l := c.link
	c.mu.Unlock()

	if existed || l == nil {
		return nil
	}
	if !l.enqueue(command(channel.CommandRegister, key)) {
		return errLinkClosed
	}
	return nil
}

// Unregister 移除通道的所有处理器
func (c *Client) Unregister(pluginID, channelID uint16) error {
	key := channelKey{pluginID, channelID}
	c.mu.Lock()
	if _, ok := c.channels[key]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.channels, key)
	l := c.link
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	if !l.enqueue(command(channel.CommandUnregister, key)) {
		return errLinkClosed
	}
	return nil
}

// Send 向通道发送负载。未连接时排队，队列上限为 SendQueueSize。
func (c *Client) Send(pluginID, channelID uint16, p channel.Payload) error {
	msg := outbound{
		kind: websocket.BinaryMessage,
		data: channel.Frame{PluginID: pluginID, ChannelID: channelID, Payload: p}.Encode(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	l := c.link
	if l == nil {
		defer c.mu.Unlock()
		if len(c.pending) >= c.cfg.SendQueueSize {
			return ErrPendingFull
		}
		c.pending = append(c.pending, msg)
		return nil
	}
	c.mu.Unlock()

	select {
	case l.out <- msg:
		return nil
	case <-l.done:
		return errLinkClosed
	case <-time.After(c.cfg.WriteTimeout):
		return errors.ServiceUnavailable("send timeout")
	}
}

// SendObject 以 JSON 对象负载发送
func (c *Client) SendObject(pluginID, channelID uint16, v any) error {
	p, err := channel.Object(v)
	if err != nil {
		return err
	}
	return c.Send(pluginID, channelID, p)
}

func (c *Client) OnError(h ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandlers = append(c.errorHandlers, h)
}

func (c *Client) OnStatus(h StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusHandlers = append(c.statusHandlers, h)
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	handlers := slices.Clone(c.statusHandlers)
	c.mu.Unlock()
	for _, h := range handlers {
		h(s)
	}
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	handlers := slices.Clone(c.errorHandlers)
	c.mu.Unlock()
	for _, h := range handlers {
		h(err)
	}
}

// Close 关闭连接并停止重连
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	l := c.link
	c.mu.Unlock()

	if l != nil {
		l.close()
	}
	return nil
}
