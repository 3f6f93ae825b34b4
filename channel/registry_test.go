package channel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kochabx/wsgate/errors"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) received() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, 0, len(c.frames))
	for _, b := range c.frames {
		f, err := DecodeFrame(b)
		if err == nil {
			out = append(out, f)
		}
	}
	return out
}

type identities map[string]string

func (m identities) ClientToken(clientID string) (string, bool) {
	token, ok := m[clientID]
	return token, ok
}

func newTestRegistry() *Registry {
	return NewRegistry([]string{"websocket", "echo", "chat"}, identities{"c1": "T1", "c2": "T2", "c3": "T1"})
}

func register(t *testing.T, r *Registry, conn Conn, plugin, channel uint16) {
	t.Helper()
	msg := Envelope{Command: CommandRegister, PluginID: plugin, ChannelID: channel}.Encode()
	require.NoError(t, r.OnMessage(conn, TextMessage, msg))
}

func TestRegistryPlugins(t *testing.T) {
	r := NewRegistry([]string{"chat"}, nil)
	assert.Equal(t, []string{"chat", "websocket"}, r.Plugins())

	id, err := r.PluginID("websocket")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id)

	_, err = r.PluginID("nope")
	assert.ErrorIs(t, err, ErrUnknownPlugin)
	_, err = r.Channel("nope", 0, nil, nil)
	assert.Equal(t, 404, errors.Code(err))

	f, err := DecodeFrame(r.ErrorFrame(NoSession))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), f.PluginID)
}

// TestRegisterAndReceive 注册 (2,5) 后发送的数据帧交给回调，并带上会话身份
func TestRegisterAndReceive(t *testing.T) {
	r := newTestRegistry()

	var got []Message
	var observed []string
	ch, err := r.Channel("chat", 5, func(_ *Channel, m Message) { got = append(got, m) }, nil)
	require.NoError(t, err)
	ch.OnRegister(func(conn Conn, identity string) { observed = append(observed, conn.ID()+"="+identity) })
	assert.Equal(t, "2_5", ch.ID())

	c1 := &fakeConn{id: "c1"}
	register(t, r, c1, 2, 5)
	assert.Equal(t, []string{"c1=T1"}, observed)
	assert.Contains(t, ch.Registration(), "c1")

	data := Frame{PluginID: 2, ChannelID: 5, Payload: Text("hello")}.Encode()
	require.NoError(t, r.OnMessage(c1, BinaryMessage, data))
	require.Len(t, got, 1)
	assert.Equal(t, "T1", got[0].Identity)
	assert.Equal(t, "c1", got[0].ClientID)
	assert.Equal(t, "hello", got[0].Payload.String())
	assert.Same(t, c1, got[0].Conn)
}

func TestChannelAddsCallbackWhenExisting(t *testing.T) {
	r := newTestRegistry()
	var calls []string
	a, err := r.Channel("echo", 1, func(*Channel, Message) { calls = append(calls, "a") }, nil)
	require.NoError(t, err)
	b, err := r.Channel("echo", 1, func(*Channel, Message) { calls = append(calls, "b") }, nil)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, r.Len())

	a.Receive(Message{})
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestRegisterUnknownChannelIgnored(t *testing.T) {
	r := newTestRegistry()
	c1 := &fakeConn{id: "c1"}

	msg := Envelope{Command: CommandRegister, PluginID: 2, ChannelID: 9}.Encode()
	assert.ErrorIs(t, r.OnMessage(c1, TextMessage, msg), ErrUnknownChannel)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.ClientChannels("c1"))

	data := Frame{PluginID: 2, ChannelID: 9, Payload: Text("x")}.Encode()
	assert.ErrorIs(t, r.OnMessage(c1, BinaryMessage, data), ErrUnknownChannel)
}

func TestMalformedMessagesDropped(t *testing.T) {
	r := newTestRegistry()
	var calls int
	_, err := r.Channel("chat", 0, func(*Channel, Message) { calls++ }, nil)
	require.NoError(t, err)
	c1 := &fakeConn{id: "c1"}

	assert.ErrorIs(t, r.OnMessage(c1, BinaryMessage, []byte{2, 0}), ErrMalformedFrame)
	assert.ErrorIs(t, r.OnMessage(c1, TextMessage, []byte("{")), ErrMalformedFrame)
	assert.ErrorIs(t, r.OnMessage(c1, TextMessage, []byte(`{"command":3,"pluginId":2,"channelId":0}`)), ErrUnknownCommand)
	assert.ErrorIs(t, r.OnMessage(c1, MessageKind(9), nil), ErrMalformedFrame)
	assert.Zero(t, calls)
}

func TestSendTargets(t *testing.T) {
	r := newTestRegistry()
	ch, err := r.Channel("chat", 1, nil, nil)
	require.NoError(t, err)
	c1, c2, c3 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}, &fakeConn{id: "c3"}
	for _, c := range []*fakeConn{c1, c2, c3} {
		register(t, r, c, 2, 1)
	}

	t.Run("broadcast", func(t *testing.T) {
		require.NoError(t, ch.Send(Text("all")))
		for _, c := range []*fakeConn{c1, c2, c3} {
			frames := c.received()
			require.Len(t, frames, 1)
			assert.Equal(t, "all", frames[0].Payload.String())
			assert.Equal(t, uint16(2), frames[0].PluginID)
			assert.Equal(t, uint16(1), frames[0].ChannelID)
		}
	})

	t.Run("send to", func(t *testing.T) {
		require.NoError(t, ch.SendBinary([]byte{1, 2}, SendTo("c2")))
		assert.Len(t, c1.received(), 1)
		assert.Len(t, c3.received(), 1)
		frames := c2.received()
		require.Len(t, frames, 2)
		assert.Equal(t, TypeBinary, frames[1].Payload.Type())

		require.NoError(t, ch.Send(Text("nobody"), SendTo("c9")))
	})

	t.Run("filter", func(t *testing.T) {
		only := WithFilter(func(_ Conn, identity string) bool { return identity == "T1" })
		require.NoError(t, ch.Send(Text("t1"), only))
		assert.Len(t, c1.received(), 2)
		assert.Len(t, c2.received(), 2)
		assert.Len(t, c3.received(), 2)

		// 定向发送不受 filter 约束
		require.NoError(t, ch.Send(Text("direct"), SendTo("c2"), only))
		frames := c2.received()
		require.Len(t, frames, 3)
		assert.Equal(t, "direct", frames[2].Payload.String())
		assert.Len(t, c1.received(), 2)
	})

	t.Run("failure does not stop others", func(t *testing.T) {
		c2.err = errors.ServiceUnavailable("closed")
		err := ch.Send(Text("x"))
		require.Error(t, err)
		assert.Equal(t, 503, errors.Code(err))
		assert.Len(t, c1.received(), 3)
		assert.Len(t, c3.received(), 3)
	})

	assert.Equal(t, []string{"T1", "T2"}, ch.RegisteredTokens())
}

func TestUnregisterClient(t *testing.T) {
	r := newTestRegistry()
	var closed []string
	onClose := func(identity, clientID string) { closed = append(closed, clientID+"="+identity) }
	a, err := r.Channel("chat", 1, nil, onClose)
	require.NoError(t, err)
	b, err := r.Channel("echo", 2, nil, onClose)
	require.NoError(t, err)

	c1, c2 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}
	register(t, r, c1, 2, 1)
	register(t, r, c1, 1, 2)
	register(t, r, c2, 2, 1)
	assert.Equal(t, 2, r.ClientChannels("c1"))

	assert.Equal(t, 2, r.UnregisterClient("c1"))
	assert.Equal(t, 0, r.UnregisterClient("c1"))
	assert.Equal(t, 0, r.ClientChannels("c1"))
	assert.ElementsMatch(t, []string{"c1=T1", "c1=T1"}, closed)
	assert.NotContains(t, a.Registration(), "c1")
	assert.Empty(t, b.Registration())
	assert.Contains(t, a.Registration(), "c2")
}

func TestUnregisterCommand(t *testing.T) {
	r := newTestRegistry()
	var closed int
	ch, err := r.Channel("chat", 1, nil, func(string, string) { closed++ })
	require.NoError(t, err)
	c1 := &fakeConn{id: "c1"}
	register(t, r, c1, 2, 1)

	msg := Envelope{Command: CommandUnregister, PluginID: 2, ChannelID: 1}.Encode()
	require.NoError(t, r.OnMessage(c1, TextMessage, msg))
	require.NoError(t, r.OnMessage(c1, TextMessage, msg))
	assert.Equal(t, 1, closed)
	assert.Empty(t, ch.Registration())
	assert.Equal(t, 0, r.ClientChannels("c1"))
	assert.False(t, ch.Unregister("c1"))
}
