package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wsgate"

// 会话移除原因
const (
	ReasonLogout  = "logout"
	ReasonExpired = "expired"
	ReasonTheft   = "theft"
	ReasonStale   = "stale"
	ReasonForced  = "forced"
)

// 登录结果
const (
	LoginSuccess = "success"
	LoginFailed  = "failed"
	LoginReused  = "reused"
	LoginBlocked = "blocked"
)

// 帧处理结果
const (
	FrameOK        = "ok"
	FrameMalformed = "malformed"
	FrameUnknown   = "unknown_channel"
	FrameRejected  = "rejected"
)

// Metrics 网关的会话与通道指标。所有方法对 nil 接收者安全，
// 未启用指标时组件可以直接持有 nil。
type Metrics struct {
	sessionsActive       prometheus.Gauge
	sessionsRemoved      *prometheus.CounterVec
	theftSuspected       prometheus.Counter
	logins               *prometheus.CounterVec
	connectionsActive    prometheus.Gauge
	frames               *prometheus.CounterVec
	channelRegistrations prometheus.Gauge
}

// New 创建指标并注册到 reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions.",
		}),
		sessionsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_removed_total",
			Help:      "Sessions removed, by reason.",
		}, []string{"reason"}),
		theftSuspected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "theft_suspected_total",
			Help:      "Series purged after a token/series mismatch.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts, by result.",
		}, []string{"result"}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Open websocket connections bound to a session.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Inbound frames, by kind and result.",
		}, []string{"kind", "result"}),
		channelRegistrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_registrations",
			Help:      "Client registrations across all channels.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.sessionsActive,
			m.sessionsRemoved,
			m.theftSuspected,
			m.logins,
			m.connectionsActive,
			m.frames,
			m.channelRegistrations,
		)
	}
	return m
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) SessionRemoved(reason string) {
	if m == nil {
		return
	}
	m.sessionsRemoved.WithLabelValues(reason).Inc()
}

func (m *Metrics) TheftSuspected() {
	if m == nil {
		return
	}
	m.theftSuspected.Inc()
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

// Frame 记录一个入站帧，kind 为 "data" 或 "command"
func (m *Metrics) Frame(kind, result string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) AddRegistrations(delta int) {
	if m == nil {
		return
	}
	m.channelRegistrations.Add(float64(delta))
}
