package channel

import (
	"slices"
	"sync"

	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/metrics"
)

// WebSocketPlugin 网关自身的插件名，错误帧在它的 0 号通道上发送
const WebSocketPlugin = "websocket"

// MessageKind 入站消息类型，取值与 websocket 帧操作码一致
type MessageKind int

const (
	TextMessage   MessageKind = 1
	BinaryMessage MessageKind = 2
)

type channelID struct {
	plugin  uint16
	channel uint16
}

// Registry 按 (pluginId, channelId) 管理通道，并维护客户端到通道的反向索引，
// 连接断开时据此一次清理它的全部注册。
type Registry struct {
	plugins  []string
	resolver IdentityResolver
	logger   *log.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	channels map[channelID]*Channel
	byClient map[string]map[channelID]*Channel
}

// Option 注册表选项
type Option func(*Registry)

func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry 插件 id 为其在 plugins 中的下标，缺少 websocket 插件时追加到末尾
func NewRegistry(plugins []string, resolver IdentityResolver, opts ...Option) *Registry {
	plugins = slices.Clone(plugins)
	if !slices.Contains(plugins, WebSocketPlugin) {
		plugins = append(plugins, WebSocketPlugin)
	}
	r := &Registry{
		plugins:  plugins,
		resolver: resolver,
		channels: make(map[channelID]*Channel),
		byClient: make(map[string]map[channelID]*Channel),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.OrGlobal(r.logger).Module("channel")
	return r
}

func (r *Registry) Plugins() []string {
	return slices.Clone(r.plugins)
}

// PluginID 返回插件名对应的 id
func (r *Registry) PluginID(name string) (uint16, error) {
	i := slices.Index(r.plugins, name)
	if i < 0 {
		return 0, ErrUnknownPlugin
	}
	return uint16(i), nil
}

// ErrorFrame 编码 websocket 插件上的错误帧
func (r *Registry) ErrorFrame(code int) []byte {
	id, _ := r.PluginID(WebSocketPlugin)
	return ErrorFrame(id, code)
}

// Channel 按插件名获取通道，不存在时创建。通道已存在时追加 cb，
// 并在尚未设置关闭回调时使用 onClose。
func (r *Registry) Channel(pluginName string, id uint16, cb MessageFunc, onClose CloseFunc) (*Channel, error) {
	pluginID, err := r.PluginID(pluginName)
	if err != nil {
		return nil, err
	}
	ch := r.Open(pluginID, id)
	ch.AddCallback(cb)
	if onClose != nil {
		ch.mu.Lock()
		if ch.onClose == nil {
			ch.onClose = onClose
		}
		ch.mu.Unlock()
	}
	return ch, nil
}

// Open 返回通道，不存在时创建
func (r *Registry) Open(pluginID, id uint16) *Channel {
	key := channelID{pluginID, id}
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[key]
	if !ok {
		ch = newChannel(r, pluginID, id)
		r.channels[key] = ch
	}
	return ch
}

// Lookup 只查找已存在的通道
func (r *Registry) Lookup(pluginID, id uint16) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[channelID{pluginID, id}]
	return ch, ok
}

// Len 返回通道数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// ClientChannels 返回客户端已注册的通道数
func (r *Registry) ClientChannels(clientID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byClient[clientID])
}

// track 与 untrack 的调用方持有 r.mu
func (r *Registry) track(clientID string, ch *Channel) {
	set, ok := r.byClient[clientID]
	if !ok {
		set = make(map[channelID]*Channel)
		r.byClient[clientID] = set
	}
	set[channelID{ch.pluginID, ch.channelID}] = ch
}

func (r *Registry) untrack(clientID string, ch *Channel) {
	set, ok := r.byClient[clientID]
	if !ok {
		return
	}
	delete(set, channelID{ch.pluginID, ch.channelID})
	if len(set) == 0 {
		delete(r.byClient, clientID)
	}
}

// UnregisterClient 从客户端注册过的所有通道中移除它，返回移除的通道数
func (r *Registry) UnregisterClient(clientID string) int {
	r.mu.Lock()
	set := r.byClient[clientID]
	delete(r.byClient, clientID)
	removed := make([]*Channel, 0, len(set))
	for _, ch := range set {
		if ch.detach(clientID) {
			removed = append(removed, ch)
		}
	}
	r.mu.Unlock()

	for _, ch := range removed {
		ch.closed(clientID)
	}
	return len(removed)
}

// OnMessage 处理一条入站消息：文本为注册控制消息，二进制为数据帧。
// 返回的错误只用于记录，连接保持打开。
func (r *Registry) OnMessage(conn Conn, kind MessageKind, data []byte) error {
	switch kind {
	case TextMessage:
		return r.onCommand(conn, data)
	case BinaryMessage:
		return r.onFrame(conn, data)
	}
	r.metrics.Frame("unsupported", metrics.FrameRejected)
	return ErrMalformedFrame
}

func (r *Registry) onCommand(conn Conn, data []byte) error {
	env, err := ParseEnvelope(data)
	if err != nil {
		r.metrics.Frame("command", metrics.FrameMalformed)
		r.logger.Error().Err(err).Str("client_id", conn.ID()).Msg("invalid command")
		return err
	}

	ch, ok := r.Lookup(env.PluginID, env.ChannelID)
	if !ok {
		r.metrics.Frame("command", metrics.FrameUnknown)
		r.logger.Error().Str("plugin", r.pluginName(env.PluginID)).
			Uint16("channel_id", env.ChannelID).Stringer("command", env.Command).
			Msg("unknown channel")
		return ErrUnknownChannel
	}

	switch env.Command {
	case CommandRegister:
		ch.Register(conn)
	case CommandUnregister:
		ch.Unregister(conn.ID())
	}
	r.metrics.Frame("command", metrics.FrameOK)
	return nil
}

func (r *Registry) onFrame(conn Conn, data []byte) error {
	frame, err := DecodeFrame(data)
	if err != nil {
		r.metrics.Frame("data", metrics.FrameMalformed)
		r.logger.Error().Err(err).Str("client_id", conn.ID()).Int("size", len(data)).Msg("invalid frame")
		return err
	}

	ch, ok := r.Lookup(frame.PluginID, frame.ChannelID)
	if !ok {
		r.metrics.Frame("data", metrics.FrameUnknown)
		r.logger.Error().Str("plugin", r.pluginName(frame.PluginID)).
			Uint16("channel_id", frame.ChannelID).Msg("unknown channel")
		return ErrUnknownChannel
	}

	r.metrics.Frame("data", metrics.FrameOK)
	ch.Receive(Message{
		Identity: ch.identity(conn.ID()),
		ClientID: conn.ID(),
		Conn:     conn,
		Payload:  frame.Payload,
	})
	return nil
}

func (r *Registry) pluginName(id uint16) string {
	if int(id) < len(r.plugins) {
		return r.plugins[id]
	}
	return "unknown"
}
