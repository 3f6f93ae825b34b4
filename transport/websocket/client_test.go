package websocket

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kochabx/wsgate/channel"
	"github.com/kochabx/wsgate/errors"
	"github.com/kochabx/wsgate/session"
)

type inbox struct {
	mu   sync.Mutex
	msgs []string
}

func (b *inbox) add(p channel.Payload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, p.String())
}

func (b *inbox) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.msgs...)
}

func fastReconnect() ReconnectConfig {
	return ReconnectConfig{Enable: true, Interval: 10 * time.Millisecond, MaxInterval: 50 * time.Millisecond, BackoffMultiplier: 2}
}

func newTestClient(t *testing.T, f *fixture, opts ...ClientOption) *Client {
	t.Helper()
	c := NewClient(append([]ClientOption{
		WithSession(session.DefaultCookieName, f.pair),
		WithReconnect(fastReconnect()),
	}, opts...)...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientRegisterAndReceive(t *testing.T) {
	f := newFixture(t)
	c := newTestClient(t, f)

	var box inbox
	require.NoError(t, c.Register(chatPlugin, chatChannel, box.add))
	require.NoError(t, c.Connect(context.Background(), f.url))
	assert.Equal(t, StatusConnected, c.Status())

	require.Eventually(t, func() bool { return len(f.chat.Registration()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, f.chat.Send(channel.Text("hi")))
	require.Eventually(t, func() bool { return len(box.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hi"}, box.snapshot())
}

func TestClientQueuesUntilConnected(t *testing.T) {
	f := newFixture(t)
	c := newTestClient(t, f)

	require.NoError(t, c.Send(chatPlugin, chatChannel, channel.Text("early")))
	require.NoError(t, c.SendObject(chatPlugin, chatChannel, map[string]int{"n": 1}))
	require.NoError(t, c.Connect(context.Background(), f.url))

	for _, want := range []string{"early", `{"n":1}`} {
		select {
		case m := <-f.received:
			assert.Equal(t, want, m.Payload.String())
		case <-time.After(2 * time.Second):
			t.Fatalf("%s not delivered", want)
		}
	}
}

func TestClientNoSession(t *testing.T) {
	f := newFixture(t)
	c := NewClient(WithReconnect(ReconnectConfig{}))
	t.Cleanup(func() { c.Close() })

	errs := make(chan error, 4)
	c.OnError(func(err error) { errs <- err })
	require.NoError(t, c.Connect(context.Background(), f.url))

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, session.ErrNoSession))
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
	require.Eventually(t, func() bool { return c.Status() == StatusDisconnected }, 2*time.Second, 5*time.Millisecond)
}

// TestClientReregistersAfterReconnect 服务端断开后客户端重连并重新注册通道
func TestClientReregistersAfterReconnect(t *testing.T) {
	f := newFixture(t)
	c := newTestClient(t, f)

	var mu sync.Mutex
	var statuses []Status
	c.OnStatus(func(s Status) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	var box inbox
	require.NoError(t, c.Register(chatPlugin, chatChannel, box.add))
	require.NoError(t, c.Connect(context.Background(), f.url))
	require.Eventually(t, func() bool { return f.lastClientID() != "" }, 2*time.Second, 5*time.Millisecond)
	first := f.lastClientID()

	require.True(t, f.dispatcher.Disconnect(first))
	require.Eventually(t, func() bool {
		id := f.lastClientID()
		return id != first && len(f.chat.Registration()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.chat.Send(channel.Text("again")))
	require.Eventually(t, func() bool { return len(box.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusConnected, StatusDisconnected, StatusConnected}, statuses)
}

func TestClientUnregister(t *testing.T) {
	f := newFixture(t)
	c := newTestClient(t, f)
	require.NoError(t, c.Connect(context.Background(), f.url))
	require.NoError(t, c.Register(chatPlugin, chatChannel, nil))
	require.Eventually(t, func() bool { return len(f.chat.Registration()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Unregister(chatPlugin, chatChannel))
	require.Eventually(t, func() bool { return len(f.chat.Registration()) == 0 }, 2*time.Second, 5*time.Millisecond)
}

// TestClientBacklogOnDroppedLink 积压超过发送队列且对端立即断开时不能卡住
func TestClientBacklogOnDroppedLink(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if tcp, ok := ws.UnderlyingConn().(*net.TCPConn); ok {
			_ = tcp.SetLinger(0)
		}
		ws.Close()
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.SendQueueSize = 1
	c := NewClient(WithClientConfig(cfg), WithReconnect(ReconnectConfig{}))

	for i := range 2000 {
		require.NoError(t, c.Register(uint16(i%3+1), uint16(i), nil))
	}
	require.NoError(t, c.Send(1, 0, channel.Text("queued")))

	connected := make(chan error, 1)
	go func() {
		connected <- c.Connect(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	}()
	select {
	case err := <-connected:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("connect blocked")
	}

	require.Eventually(t, func() bool { return c.Status() == StatusDisconnected }, 3*time.Second, 5*time.Millisecond)

	registered := make(chan error, 1)
	go func() { registered <- c.Register(9, 9, nil) }()
	select {
	case <-registered:
	case <-time.After(3 * time.Second):
		t.Fatal("register blocked")
	}

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("close blocked")
	}
}

func TestClientConnectErrors(t *testing.T) {
	c := NewClient(WithReconnect(ReconnectConfig{}))
	assert.ErrorIs(t, c.Connect(context.Background(), "http://example.com"), ErrInvalidURL)

	var statuses []Status
	c.OnStatus(func(s Status) { statuses = append(statuses, s) })
	err := c.Connect(context.Background(), "ws://127.0.0.1:1/ws")
	require.Error(t, err)
	assert.Equal(t, 503, errors.Code(err))
	assert.Equal(t, []Status{StatusErrored}, statuses)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(0, 0, channel.Text("x")), ErrClientClosed)
	assert.ErrorIs(t, c.Connect(context.Background(), "ws://127.0.0.1:1/ws"), ErrClientClosed)
}

func TestReconnectDelay(t *testing.T) {
	r := ReconnectConfig{Interval: time.Second, MaxInterval: 5 * time.Second, BackoffMultiplier: 2}
	assert.Equal(t, time.Second, r.delay(1))
	assert.Equal(t, 2*time.Second, r.delay(2))
	assert.Equal(t, 4*time.Second, r.delay(3))
	assert.Equal(t, 5*time.Second, r.delay(4))
	assert.Equal(t, "ERRORED", StatusErrored.String())
}
