package channel

import (
	"slices"
	"sort"
	"sync"

	"github.com/kochabx/wsgate/errors"
	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/metrics"
)

// Conn 一个已连接的 websocket 客户端
type Conn interface {
	ID() string
	Send(data []byte) error
}

// IdentityResolver 由客户端 id 查找会话的常量令牌
type IdentityResolver interface {
	ClientToken(clientID string) (string, bool)
}

// Message 投递给通道回调的一条入站消息
type Message struct {
	Identity string
	ClientID string
	Conn     Conn
	Payload  Payload
}

type (
	MessageFunc  func(ch *Channel, msg Message)
	CloseFunc    func(identity, clientID string)
	RegisterFunc func(conn Conn, identity string)
)

// Channel 一个 (pluginId, channelId) 上的发布订阅端点
type Channel struct {
	pluginID  uint16
	channelID uint16
	key       string
	reg       *Registry
	resolver  IdentityResolver
	logger    *log.Logger
	metrics   *metrics.Metrics

	mu        sync.RWMutex
	conns     map[string]Conn
	callbacks []MessageFunc
	observers []RegisterFunc
	onClose   CloseFunc
}

func newChannel(reg *Registry, pluginID, channelID uint16) *Channel {
	return &Channel{
		pluginID:  pluginID,
		channelID: channelID,
		key:       channelKey(pluginID, channelID),
		reg:       reg,
		resolver:  reg.resolver,
		logger:    reg.logger,
		metrics:   reg.metrics,
		conns:     make(map[string]Conn),
	}
}

// ID 返回 "<pluginId>_<channelId>"
func (c *Channel) ID() string {
	return c.key
}

func (c *Channel) PluginID() uint16 {
	return c.pluginID
}

func (c *Channel) ChannelID() uint16 {
	return c.channelID
}

// Register 把连接加入通道并通知注册观察者。重复注册只替换连接。
func (c *Channel) Register(conn Conn) {
	clientID := conn.ID()

	c.reg.mu.Lock()
	c.mu.Lock()
	_, existed := c.conns[clientID]
	c.conns[clientID] = conn
	observers := slices.Clone(c.observers)
	c.mu.Unlock()
	c.reg.track(clientID, c)
	c.reg.mu.Unlock()

	if !existed {
		c.metrics.AddRegistrations(1)
	}
	if len(observers) == 0 {
		return
	}
	identity := c.identity(clientID)
	for _, fn := range observers {
		fn(conn, identity)
	}
}

// Unregister 移除连接并调用关闭回调，连接未注册时返回 false
func (c *Channel) Unregister(clientID string) bool {
	c.reg.mu.Lock()
	removed := c.detach(clientID)
	c.reg.untrack(clientID, c)
	c.reg.mu.Unlock()

	if removed {
		c.closed(clientID)
	}
	return removed
}

// detach 调用方持有 reg.mu
func (c *Channel) detach(clientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.conns[clientID]; !ok {
		return false
	}
	delete(c.conns, clientID)
	return true
}

// closed 在所有锁之外执行
func (c *Channel) closed(clientID string) {
	c.metrics.AddRegistrations(-1)
	c.mu.RLock()
	fn := c.onClose
	c.mu.RUnlock()
	if fn != nil {
		fn(c.identity(clientID), clientID)
	}
}

// OnRegister 添加注册观察者
func (c *Channel) OnRegister(fn RegisterFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// AddCallback 添加消息回调
func (c *Channel) AddCallback(fn MessageFunc) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// SetCloseCallback 设置连接离开通道时的回调
func (c *Channel) SetCloseCallback(fn CloseFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// Receive 把消息依次交给每个回调
func (c *Channel) Receive(msg Message) {
	c.mu.RLock()
	callbacks := slices.Clone(c.callbacks)
	c.mu.RUnlock()

	for _, fn := range callbacks {
		fn(c, msg)
	}
}

type sendOptions struct {
	to     string
	filter func(conn Conn, identity string) bool
}

// SendOption 发送选项
type SendOption func(*sendOptions)

// SendTo 只发送给指定客户端，不经过 filter
func SendTo(clientID string) SendOption {
	return func(o *sendOptions) {
		o.to = clientID
	}
}

// WithFilter 广播时只发送给 filter 返回 true 的连接
func WithFilter(filter func(conn Conn, identity string) bool) SendOption {
	return func(o *sendOptions) {
		o.filter = filter
	}
}

// Send 发送负载。默认广播给所有已注册连接，单个连接的发送错误不影响其它连接。
func (c *Channel) Send(p Payload, opts ...SendOption) error {
	return c.send(Frame{PluginID: c.pluginID, ChannelID: c.channelID, Payload: p}.Encode(), opts)
}

// SendBinary 以二进制负载发送
func (c *Channel) SendBinary(b []byte, opts ...SendOption) error {
	return c.Send(Binary(b), opts...)
}

func (c *Channel) send(data []byte, opts []SendOption) error {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.RLock()
	var targets []Conn
	if o.to != "" {
		if conn, ok := c.conns[o.to]; ok {
			targets = append(targets, conn)
		}
	} else {
		targets = make([]Conn, 0, len(c.conns))
		for _, conn := range c.conns {
			targets = append(targets, conn)
		}
	}
	c.mu.RUnlock()

	var errs []error
	for _, conn := range targets {
		if o.to == "" && o.filter != nil && !o.filter(conn, c.identity(conn.ID())) {
			continue
		}
		if err := conn.Send(data); err != nil {
			c.logger.Debug().Err(err).Str("channel", c.key).Str("client_id", conn.ID()).Msg("send failed")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), 503, "channel %s: %d sends failed", c.key, len(errs))
	}
	return nil
}

// Registration 返回客户端 id 到连接的快照
func (c *Channel) Registration() map[string]Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Conn, len(c.conns))
	for id, conn := range c.conns {
		out[id] = conn
	}
	return out
}

// RegisteredTokens 返回已注册连接对应的常量令牌，去重并排序
func (c *Channel) RegisteredTokens() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.conns))
	for id := range c.conns {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		token := c.identity(id)
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func (c *Channel) identity(clientID string) string {
	if c.resolver == nil {
		return ""
	}
	token, _ := c.resolver.ClientToken(clientID)
	return token
}
