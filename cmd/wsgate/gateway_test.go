package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kochabx/wsgate/auth"
	"github.com/kochabx/wsgate/channel"
	"github.com/kochabx/wsgate/config"
	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/session"
	"github.com/kochabx/wsgate/transport/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	gw       *gateway
	settings *config.Settings
	server   *httptest.Server
	logs     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	settings, _, err := config.Load("wsgate-test.yaml", t.TempDir())
	require.NoError(t, err)

	hash, err := auth.HashPassword("secret", bcrypt.MinCost)
	require.NoError(t, err)
	settings.Auth.Users = map[string]string{"alice": hash}
	settings.Plugins = []string{"websocket", "echo"}

	h := &harness{settings: settings, logs: &bytes.Buffer{}}
	logger := log.NewWriter(h.logs)
	h.gw, err = newGateway(settings, logger)
	require.NoError(t, err)

	h.server = httptest.NewServer(h.gw.engine)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, h.gw.dispatcher.Close(ctx))
		h.server.Close()
		assert.NoError(t, h.gw.closeSessions(ctx))
	})
	return h
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// login 以表单登录并返回会话 cookie
func (h *harness) login(t *testing.T, password string) (*http.Response, session.Pair) {
	t.Helper()
	client := &http.Client{CheckRedirect: noRedirect}
	form := url.Values{"username": {"alice"}, "password": {password}}
	resp, err := client.PostForm(h.server.URL+"/login", form)
	require.NoError(t, err)
	resp.Body.Close()

	for _, c := range resp.Cookies() {
		if c.Name == session.DefaultCookieName {
			pair, ok := session.ParseCookie(c.Value)
			require.True(t, ok)
			return resp, pair
		}
	}
	return resp, session.Pair{}
}

func TestLoginAndSessionEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = h.login(t, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, pair := h.login(t, "secret")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.NotEmpty(t, pair.Token)

	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/session", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: pair.Encode()})
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "alice", body["user"])
	info, ok := h.gw.table.Find(pair.Token, pair.SeriesID)
	require.True(t, ok)
	assert.Equal(t, info.ConstToken, body["identity"])
}

func TestEchoOverWebSocket(t *testing.T) {
	h := newHarness(t)
	_, pair := h.login(t, "secret")

	c := websocket.NewClient(
		websocket.WithSession(session.DefaultCookieName, pair),
		websocket.WithReconnect(websocket.ReconnectConfig{}),
	)
	t.Cleanup(func() { c.Close() })

	echoID, err := h.gw.registry.PluginID("echo")
	require.NoError(t, err)
	got := make(chan string, 1)
	require.NoError(t, c.Register(echoID, 0, func(p channel.Payload) { got <- p.String() }))

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + h.settings.Server.WebSocketPath
	require.NoError(t, c.Connect(context.Background(), wsURL))
	require.NoError(t, c.Send(echoID, 0, channel.Text("marco")))

	select {
	case s := <-got:
		assert.Equal(t, "marco", s)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}
}

func TestHealthAndMetricsBypassGate(t *testing.T) {
	h := newHarness(t)
	_, _ = h.login(t, "secret")

	for _, path := range []string{h.settings.Server.HealthPath, h.settings.Server.MetricsPath} {
		resp, err := http.Get(h.server.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		if path == h.settings.Server.MetricsPath {
			assert.Contains(t, string(body), `wsgate_logins_total{result="success"} 1`)
		}
	}
}

func TestApplySettings(t *testing.T) {
	h := newHarness(t)
	s := *h.settings
	s.Session.Timeout = 10 * time.Minute
	s.Session.ExpiresWithActiveClients = true
	h.gw.apply(&s)

	assert.Equal(t, 10*time.Minute, h.gw.gate.SessionTimeout())
	assert.True(t, h.gw.table.ExpiresWithActiveClients())
	assert.Contains(t, h.logs.String(), "settings applied")
}
